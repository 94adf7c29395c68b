package model

import (
	"time"

	"github.com/google/uuid"
)

// OTP purposes. The digital signing flow only accepts challenges tagged
// PurposeDigitalSigning.
const (
	PurposeDigitalSigning = "digital_signing"
	PurposePhoneChange    = "phone_change"
)

// OTPChallenge represents the otp_challenges table. One row per issued code.
// The destination phone is encrypted at rest; Phone is the transient
// plaintext and is never stored.
type OTPChallenge struct {
	ID             uuid.UUID  `json:"id"`
	LeaseID        uuid.UUID  `json:"lease_id"`
	Phone          string     `json:"-"`
	EncryptedPhone []byte     `json:"-"`
	PhoneIV        []byte     `json:"-"`
	Code           string     `json:"-"`
	Purpose        string     `json:"purpose"`
	SentAt         time.Time  `json:"sent_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	IsVerified     bool       `json:"is_verified"`
	VerifiedAt     *time.Time `json:"verified_at,omitempty"`
	SupersededAt   *time.Time `json:"superseded_at,omitempty"`
}

// IsExpired reports whether the challenge is past its expiry or has been
// superseded by a resend. Expiry is evaluated lazily against now.
func (c *OTPChallenge) IsExpired(now time.Time) bool {
	if c.SupersededAt != nil {
		return true
	}
	return now.After(c.ExpiresAt)
}

// IsLive reports whether the challenge can still be verified.
func (c *OTPChallenge) IsLive(now time.Time) bool {
	return !c.IsVerified && !c.IsExpired(now)
}

// CaptureModality identifies how a signature image was produced.
type CaptureModality string

const (
	ModalityCanvas CaptureModality = "canvas"
	ModalityPhoto  CaptureModality = "photo"
)

// SignatureRecord represents the signature_records table. One per executed
// lease, immutable once created; a correction requires a new lease version.
type SignatureRecord struct {
	ID             uuid.UUID       `json:"id"`
	LeaseID        uuid.UUID       `json:"lease_id"`
	Image          []byte          `json:"-"`
	Modality       CaptureModality `json:"modality"`
	Latitude       *float64        `json:"latitude,omitempty"`
	Longitude      *float64        `json:"longitude,omitempty"`
	UserAgent      string          `json:"user_agent,omitempty"`
	ScreenInfo     string          `json:"screen_info,omitempty"`
	IPAddress      string          `json:"ip_address,omitempty"`
	OTPChallengeID uuid.UUID       `json:"otp_challenge_id"`
	CreatedAt      time.Time       `json:"created_at"`
}

// SigningStatus summarizes where a lease stands in the digital signing flow.
type SigningStatus struct {
	LeaseID      uuid.UUID     `json:"lease_id"`
	State        WorkflowState `json:"state"`
	OTPVerified  bool          `json:"otp_verified"`
	Signed       bool          `json:"signed"`
	SignedAt     *time.Time    `json:"signed_at,omitempty"`
	CanSign      bool          `json:"can_sign"`
	BlockedCause string        `json:"blocked_cause,omitempty"`
}
