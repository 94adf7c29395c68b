package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Stan-Mash/lease-management-system-sub002/internal/crypto"
	"github.com/Stan-Mash/lease-management-system-sub002/internal/model"
	"github.com/Stan-Mash/lease-management-system-sub002/internal/monitoring"
	"github.com/Stan-Mash/lease-management-system-sub002/internal/notify"
	"github.com/Stan-Mash/lease-management-system-sub002/internal/store"
)

// OTPConfig holds the tunable product constants of the challenge flow.
type OTPConfig struct {
	// TTL is how long an issued code stays verifiable.
	TTL time.Duration
	// RateWindow and RateMax cap issuance: at most RateMax challenges per
	// lease within a trailing RateWindow.
	RateWindow time.Duration
	RateMax    int
	// RetentionDays bounds how long challenge rows are kept.
	RetentionDays int
}

// DefaultOTPConfig returns the product defaults.
func DefaultOTPConfig() OTPConfig {
	return OTPConfig{
		TTL:           10 * time.Minute,
		RateWindow:    time.Hour,
		RateMax:       3,
		RetentionDays: 30,
	}
}

// OTPService issues, delivers and verifies one-time codes gating digital
// lease signing.
type OTPService struct {
	otps     OTPStore
	leases   LeaseStore
	keys     *crypto.Keys
	notifier notify.Notifier
	cfg      OTPConfig
	now      func() time.Time
}

// NewOTPService creates an OTPService.
func NewOTPService(otps OTPStore, leases LeaseStore, keys *crypto.Keys, notifier notify.Notifier, cfg OTPConfig) *OTPService {
	return &OTPService{
		otps:     otps,
		leases:   leases,
		keys:     keys,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

// GenerateAndSend mints a fresh challenge for the lease and delivers it to
// phone. If delivery fails after the row was persisted, the challenge is
// returned together with a SendingFailureError so the caller can retry
// delivery without re-minting.
func (s *OTPService) GenerateAndSend(ctx context.Context, leaseID uuid.UUID, phone, purpose string) (*model.OTPChallenge, error) {
	return s.issue(ctx, leaseID, phone, purpose, false)
}

// Resend supersedes every live challenge for the lease, then issues a fresh
// one, guaranteeing at most one live challenge per lease. Resends count
// against the same issuance window.
func (s *OTPService) Resend(ctx context.Context, leaseID uuid.UUID, phone, purpose string) (*model.OTPChallenge, error) {
	return s.issue(ctx, leaseID, phone, purpose, true)
}

func (s *OTPService) issue(ctx context.Context, leaseID uuid.UUID, phone, purpose string, supersede bool) (*model.OTPChallenge, error) {
	lease, err := s.leases.GetByID(ctx, leaseID)
	if err != nil {
		return nil, err
	}
	if lease == nil {
		return nil, ErrLeaseNotFound
	}

	code, err := crypto.GenerateOTPCode()
	if err != nil {
		return nil, err
	}
	encryptedPhone, iv, err := s.keys.Encrypt(phone)
	if err != nil {
		return nil, err
	}

	now := s.now()
	ch := &model.OTPChallenge{
		LeaseID:        leaseID,
		Phone:          phone,
		EncryptedPhone: encryptedPhone,
		PhoneIV:        iv,
		Code:           code,
		Purpose:        purpose,
		SentAt:         now,
		ExpiresAt:      now.Add(s.cfg.TTL),
	}

	err = s.otps.Issue(ctx, ch, now.Add(-s.cfg.RateWindow), s.cfg.RateMax, supersede)
	if err != nil {
		if errors.Is(err, store.ErrRateLimited) {
			monitoring.OTPChallengesIssued.WithLabelValues("rate_limited").Inc()
			return nil, &RateLimitError{Window: s.cfg.RateWindow, Max: s.cfg.RateMax}
		}
		log.Error().Err(err).Str("lease_id", leaseID.String()).Msg("Failed to persist OTP challenge")
		return nil, err
	}

	// The row is committed at this point. A delivery failure is surfaced
	// distinctly and does not undo persistence.
	if err := s.notifier.SendOTP(ctx, phone, code); err != nil {
		monitoring.OTPChallengesIssued.WithLabelValues("send_failed").Inc()
		log.Error().Err(err).Str("lease_id", leaseID.String()).Msg("Failed to deliver OTP code")
		return ch, &SendingFailureError{Challenge: ch, Cause: err}
	}

	monitoring.OTPChallengesIssued.WithLabelValues("sent").Inc()
	log.Info().
		Str("lease_id", leaseID.String()).
		Str("challenge_id", ch.ID.String()).
		Bool("resend", supersede).
		Msg("OTP challenge issued")
	return ch, nil
}

// Verify checks code against the lease's live challenge. It returns false
// (never an error) when no live challenge exists, the code does not match,
// or the challenge expired. Expired and superseded rows are filtered by the
// store's live lookup, so both surface as no_live_challenge. A successful
// verification flips the single-use flag, so a repeat attempt with the same
// code returns false.
func (s *OTPService) Verify(ctx context.Context, leaseID uuid.UUID, code, purpose string) (bool, error) {
	now := s.now()
	ch, err := s.otps.GetLive(ctx, leaseID, purpose, now)
	if err != nil {
		return false, err
	}
	if ch == nil {
		monitoring.OTPVerifications.WithLabelValues("no_live_challenge").Inc()
		return false, nil
	}
	if subtle.ConstantTimeCompare([]byte(ch.Code), []byte(code)) != 1 {
		monitoring.OTPVerifications.WithLabelValues("mismatch").Inc()
		return false, nil
	}

	flipped, err := s.otps.MarkVerified(ctx, ch.ID, now)
	if err != nil {
		return false, err
	}
	if !flipped {
		// Lost a race with another verification of the same challenge.
		monitoring.OTPVerifications.WithLabelValues("already_used").Inc()
		return false, nil
	}

	monitoring.OTPVerifications.WithLabelValues("verified").Inc()
	log.Info().
		Str("lease_id", leaseID.String()).
		Str("challenge_id", ch.ID.String()).
		Msg("OTP challenge verified")
	return true, nil
}

// HasVerified reports whether the lease holds a verified challenge for the
// purpose.
func (s *OTPService) HasVerified(ctx context.Context, leaseID uuid.UUID, purpose string) (bool, error) {
	ch, err := s.otps.GetVerified(ctx, leaseID, purpose)
	if err != nil {
		return false, err
	}
	return ch != nil, nil
}

// Cleanup purges challenge rows older than olderThanDays. Rows referenced
// by a signature record's audit chain are kept. Maintenance path, not hot.
func (s *OTPService) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		olderThanDays = s.cfg.RetentionDays
	}
	cutoff := s.now().AddDate(0, 0, -olderThanDays)
	count, err := s.otps.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("OTP cleanup failed")
		return 0, err
	}
	if count > 0 {
		log.Info().Int64("purged", count).Time("cutoff", cutoff).Msg("OTP cleanup completed")
	}
	return count, nil
}
