package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Stan-Mash/lease-management-system-sub002/internal/model"
	"github.com/Stan-Mash/lease-management-system-sub002/internal/store"
)

// CapturePayload is the client-supplied evidence accompanying a signature.
// Geolocation and device metadata are optional enrichments.
type CapturePayload struct {
	Image      []byte
	Modality   model.CaptureModality
	Latitude   *float64
	Longitude  *float64
	UserAgent  string
	ScreenInfo string
	IPAddress  string
}

// SignatureService records signing events. It never mutates lease workflow
// state; advancing the lease after a capture is the orchestrator's job.
type SignatureService struct {
	signatures SignatureStore
	otps       OTPStore
	leases     LeaseStore
	now        func() time.Time
}

// NewSignatureService creates a SignatureService.
func NewSignatureService(signatures SignatureStore, otps OTPStore, leases LeaseStore) *SignatureService {
	return &SignatureService{
		signatures: signatures,
		otps:       otps,
		leases:     leases,
		now:        time.Now,
	}
}

// CanSign reports whether the lease is ready for signature capture: a
// verified digital-signing challenge exists and no signature has been
// recorded yet.
func (s *SignatureService) CanSign(ctx context.Context, leaseID uuid.UUID) (bool, error) {
	verified, err := s.otps.GetVerified(ctx, leaseID, model.PurposeDigitalSigning)
	if err != nil {
		return false, err
	}
	if verified == nil {
		return false, nil
	}
	signed, err := s.signatures.ExistsForLease(ctx, leaseID)
	if err != nil {
		return false, err
	}
	return !signed, nil
}

// CaptureSignature records the signing event. Signing is single-shot: an
// existing record rejects the capture with ErrAlreadySigned and no second
// row is created. The stored record references the challenge that
// authorized it, chaining phone-possession proof to the signature.
func (s *SignatureService) CaptureSignature(ctx context.Context, leaseID uuid.UUID, payload CapturePayload) (*model.SignatureRecord, error) {
	lease, err := s.leases.GetByID(ctx, leaseID)
	if err != nil {
		return nil, err
	}
	if lease == nil {
		return nil, ErrLeaseNotFound
	}

	existing, err := s.signatures.ExistsForLease(ctx, leaseID)
	if err != nil {
		return nil, err
	}
	if existing {
		return nil, ErrAlreadySigned
	}

	verified, err := s.otps.GetVerified(ctx, leaseID, model.PurposeDigitalSigning)
	if err != nil {
		return nil, err
	}
	if verified == nil {
		return nil, ErrSigningIncomplete
	}

	rec := &model.SignatureRecord{
		LeaseID:        leaseID,
		Image:          payload.Image,
		Modality:       payload.Modality,
		Latitude:       payload.Latitude,
		Longitude:      payload.Longitude,
		UserAgent:      payload.UserAgent,
		ScreenInfo:     payload.ScreenInfo,
		IPAddress:      payload.IPAddress,
		OTPChallengeID: verified.ID,
	}
	if err := s.signatures.Create(ctx, rec); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrAlreadySigned
		}
		log.Error().Err(err).Str("lease_id", leaseID.String()).Msg("Failed to persist signature record")
		return nil, err
	}

	if err := s.leases.AttachSignature(ctx, leaseID, rec.ID); err != nil && !errors.Is(err, store.ErrDuplicate) {
		log.Error().Err(err).Str("lease_id", leaseID.String()).Msg("Failed to link signature to lease")
		return nil, err
	}

	log.Info().
		Str("lease_id", leaseID.String()).
		Str("signature_id", rec.ID.String()).
		Str("challenge_id", verified.ID.String()).
		Str("modality", string(rec.Modality)).
		Msg("Signature captured")
	return rec, nil
}

// GetSigningStatus summarizes the lease's position in the digital flow.
func (s *SignatureService) GetSigningStatus(ctx context.Context, leaseID uuid.UUID) (*model.SigningStatus, error) {
	lease, err := s.leases.GetByID(ctx, leaseID)
	if err != nil {
		return nil, err
	}
	if lease == nil {
		return nil, ErrLeaseNotFound
	}

	verified, err := s.otps.GetVerified(ctx, leaseID, model.PurposeDigitalSigning)
	if err != nil {
		return nil, err
	}
	rec, err := s.signatures.GetByLease(ctx, leaseID)
	if err != nil {
		return nil, err
	}

	status := &model.SigningStatus{
		LeaseID:     leaseID,
		State:       lease.WorkflowState,
		OTPVerified: verified != nil,
		Signed:      rec != nil,
	}
	if rec != nil {
		status.SignedAt = &rec.CreatedAt
	}
	switch {
	case rec != nil:
		status.BlockedCause = "already signed"
	case verified == nil:
		status.BlockedCause = "awaiting code verification"
	default:
		status.CanSign = true
	}
	return status, nil
}
