package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/Stan-Mash/lease-management-system-sub002/internal/model"
)

// Keys holds the server-side secrets. EncryptionKey must be 32 bytes
// (AES-256); HashSecret keys the verification digest.
type Keys struct {
	EncryptionKey []byte
	HashSecret    []byte
}

// NewKeys validates key material up front so misconfiguration fails at boot
// rather than on the first OTP issuance.
func NewKeys(encryptionKey, hashSecret []byte) (*Keys, error) {
	if len(encryptionKey) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(encryptionKey))
	}
	if len(hashSecret) == 0 {
		return nil, errors.New("hash secret must not be empty")
	}
	return &Keys{EncryptionKey: encryptionKey, HashSecret: hashSecret}, nil
}

// Encrypt encrypts data using AES-GCM and returns the ciphertext and nonce.
func (k *Keys) Encrypt(plaintext string) ([]byte, []byte, error) {
	block, err := aes.NewCipher(k.EncryptionKey)
	if err != nil {
		return nil, nil, err
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}

	nonce := make([]byte, aesgcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, err
	}

	ciphertext := aesgcm.Seal(nil, nonce, []byte(plaintext), nil)
	return ciphertext, nonce, nil
}

// Decrypt decrypts AES-GCM encrypted data.
func (k *Keys) Decrypt(ciphertext, nonce []byte) (string, error) {
	block, err := aes.NewCipher(k.EncryptionKey)
	if err != nil {
		return "", err
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

// VerificationHash computes the keyed digest over the lease's immutable
// identity fields. The digest is deterministic for unchanged inputs and
// cannot be forged without the server secret.
func (k *Keys) VerificationHash(lease *model.Lease) string {
	var b strings.Builder
	b.WriteString(lease.SerialNumber)
	b.WriteString("|")
	b.WriteString(lease.ReferenceNumber)
	b.WriteString("|")
	b.WriteString(lease.TenantID.String())
	b.WriteString("|")
	b.WriteString(lease.PropertyID.String())

	mac := hmac.New(sha256.New, k.HashSecret)
	mac.Write([]byte(b.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHash recomputes the verification hash and compares it against the
// candidate in constant time.
func (k *Keys) VerifyHash(lease *model.Lease, candidate string) bool {
	expected := k.VerificationHash(lease)
	return hmac.Equal([]byte(expected), []byte(candidate))
}

// OTPCodeLength is the number of digits in an issued code.
const OTPCodeLength = 6

var otpCeiling = big.NewInt(1_000_000)

// GenerateOTPCode draws a zero-padded 6-digit code from crypto/rand.
func GenerateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, otpCeiling)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// ContentHash returns the hex-encoded SHA-256 digest of document bytes,
// stored at ingestion and compared on every integrity check.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
