package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Stan-Mash/lease-management-system-sub002/internal/model"
	"github.com/Stan-Mash/lease-management-system-sub002/internal/monitoring"
	"github.com/Stan-Mash/lease-management-system-sub002/internal/notify"
	"github.com/Stan-Mash/lease-management-system-sub002/internal/store"
)

// ErrSigningIncomplete blocks the digital-path entry into tenant_signed when
// the OTP or signature prerequisite has not completed.
var ErrSigningIncomplete = errors.New("digital signing requirements not met")

// WorkflowService owns lease lifecycle transitions. It consults the OTP and
// signature stores only to guard the digital-signing entry; side effects are
// dispatched after the state write, never before.
type WorkflowService struct {
	leases     LeaseStore
	otps       OTPStore
	signatures SignatureStore
	notifier   notify.Notifier
	now        func() time.Time
}

// NewWorkflowService creates a WorkflowService.
func NewWorkflowService(leases LeaseStore, otps OTPStore, signatures SignatureStore, notifier notify.Notifier) *WorkflowService {
	return &WorkflowService{
		leases:     leases,
		otps:       otps,
		signatures: signatures,
		notifier:   notifier,
		now:        time.Now,
	}
}

// CreateDraft validates and persists a new lease in the draft state.
func (s *WorkflowService) CreateDraft(ctx context.Context, lease *model.Lease) error {
	if lease.ReferenceNumber == "" {
		return errors.New("reference number is required")
	}
	if lease.TenantID == uuid.Nil || lease.LandlordID == uuid.Nil || lease.PropertyID == uuid.Nil {
		return errors.New("tenant, landlord and property are required")
	}
	if !lease.EndDate.After(lease.StartDate) {
		return errors.New("end date must be after start date")
	}
	if err := s.leases.Create(ctx, lease); err != nil {
		log.Error().Err(err).Str("reference", lease.ReferenceNumber).Msg("Failed to create lease")
		return err
	}
	log.Info().Str("lease_id", lease.ID.String()).Str("reference", lease.ReferenceNumber).Msg("Lease drafted")
	return nil
}

// CanTransition reports whether the adjacency list permits current -> target.
func (s *WorkflowService) CanTransition(current, target model.WorkflowState) bool {
	return current.CanTransitionTo(target)
}

// Transition moves the lease to target on behalf of actor. The write is a
// single compare-and-swap on (state, version); the loser of a concurrent
// race gets TransitionConflictError and must re-read.
func (s *WorkflowService) Transition(ctx context.Context, leaseID uuid.UUID, target model.WorkflowState, actor uuid.UUID) (*model.Lease, error) {
	started := s.now()

	lease, err := s.leases.GetByID(ctx, leaseID)
	if err != nil {
		log.Error().Err(err).Str("lease_id", leaseID.String()).Msg("Failed to load lease for transition")
		return nil, err
	}
	if lease == nil {
		return nil, ErrLeaseNotFound
	}

	current := lease.WorkflowState
	if !current.CanTransitionTo(target) {
		monitoring.LeaseTransitions.WithLabelValues(string(target), "invalid").Inc()
		return nil, &InvalidTransitionError{From: current, To: target}
	}

	if target == model.StateTenantSigned && current == model.StatePendingOTP {
		if err := s.checkDigitalSigningComplete(ctx, lease); err != nil {
			monitoring.LeaseTransitions.WithLabelValues(string(target), "blocked").Inc()
			return nil, err
		}
	}

	if err := s.leases.UpdateState(ctx, lease.ID, current, target, lease.Version); err != nil {
		if errors.Is(err, store.ErrStaleVersion) {
			monitoring.LeaseTransitions.WithLabelValues(string(target), "conflict").Inc()
			return nil, &TransitionConflictError{LeaseID: lease.ID.String()}
		}
		log.Error().Err(err).Str("lease_id", lease.ID.String()).Msg("Failed to persist transition")
		return nil, err
	}

	lease.WorkflowState = target
	lease.Version++
	lease.UpdatedAt = s.now()

	monitoring.LeaseTransitions.WithLabelValues(string(target), "applied").Inc()
	monitoring.TransitionDuration.Observe(s.now().Sub(started).Seconds())

	log.Info().
		Str("lease_id", lease.ID.String()).
		Str("actor", actor.String()).
		Str("from", string(current)).
		Str("to", string(target)).
		Msg("Lease transitioned")

	// Notifications run after the state change and are at-most-once,
	// best effort; a delivery failure never rolls the transition back.
	s.notifier.Notify(ctx, s.transitionEvent(lease, current, target), nil)

	return lease, nil
}

// checkDigitalSigningComplete enforces the prerequisites for entering
// tenant_signed from the digital path: a verified, unexpired challenge and a
// captured signature record.
func (s *WorkflowService) checkDigitalSigningComplete(ctx context.Context, lease *model.Lease) error {
	verified, err := s.otps.GetVerified(ctx, lease.ID, model.PurposeDigitalSigning)
	if err != nil {
		return err
	}
	if verified == nil {
		return fmt.Errorf("%w: no verified code for this lease", ErrSigningIncomplete)
	}
	if verified.IsExpired(s.now()) {
		return fmt.Errorf("%w: code verification has gone stale, request a new code", ErrSigningIncomplete)
	}

	signed, err := s.signatures.ExistsForLease(ctx, lease.ID)
	if err != nil {
		return err
	}
	if !signed {
		return fmt.Errorf("%w: signature has not been captured", ErrSigningIncomplete)
	}
	return nil
}

func (s *WorkflowService) transitionEvent(lease *model.Lease, from, to model.WorkflowState) string {
	return fmt.Sprintf("lease %s moved from %s to %s", lease.ReferenceNumber, from.Label(), to.Label())
}
