package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Stan-Mash/lease-management-system-sub002/internal/model"
	"github.com/Stan-Mash/lease-management-system-sub002/internal/store"
)

// signingRig wires the workflow, OTP and signature services over shared
// fakes so tests can drive the digital signing flow end to end.
type signingRig struct {
	workflow   *WorkflowService
	otp        *OTPService
	signature  *SignatureService
	leases     *fakeLeaseStore
	otps       *fakeOTPStore
	signatures *fakeSignatureStore
	notifier   *fakeNotifier
	lease      *model.Lease
	actor      uuid.UUID
}

func newSigningRig(t *testing.T) *signingRig {
	t.Helper()
	leases := newFakeLeaseStore()
	otps := newFakeOTPStore()
	signatures := newFakeSignatureStore()
	notifier := &fakeNotifier{}
	return &signingRig{
		workflow:   NewWorkflowService(leases, otps, signatures, notifier),
		otp:        NewOTPService(otps, leases, testCryptoKeys(t), notifier, DefaultOTPConfig()),
		signature:  NewSignatureService(signatures, otps, leases),
		leases:     leases,
		otps:       otps,
		signatures: signatures,
		notifier:   notifier,
		lease:      seedLease(t, leases),
		actor:      uuid.New(),
	}
}

// forceState puts the stored lease into an arbitrary workflow state, skipping
// the intermediate transitions a test does not care about.
func (r *signingRig) forceState(t *testing.T, state model.WorkflowState) {
	t.Helper()
	r.leases.mu.Lock()
	defer r.leases.mu.Unlock()
	lease, ok := r.leases.leases[r.lease.ID]
	require.True(t, ok)
	lease.WorkflowState = state
	r.lease.WorkflowState = state
	r.lease.Version = lease.Version
}

func TestCreateDraftValidation(t *testing.T) {
	rig := newSigningRig(t)
	ctx := context.Background()

	base := model.Lease{
		ReferenceNumber: "REF-100",
		TenantID:        uuid.New(),
		LandlordID:      uuid.New(),
		PropertyID:      uuid.New(),
		StartDate:       time.Now(),
		EndDate:         time.Now().AddDate(1, 0, 0),
	}

	noRef := base
	noRef.ReferenceNumber = ""
	assert.Error(t, rig.workflow.CreateDraft(ctx, &noRef))

	noTenant := base
	noTenant.TenantID = uuid.Nil
	assert.Error(t, rig.workflow.CreateDraft(ctx, &noTenant))

	badDates := base
	badDates.EndDate = badDates.StartDate
	assert.Error(t, rig.workflow.CreateDraft(ctx, &badDates))

	valid := base
	require.NoError(t, rig.workflow.CreateDraft(ctx, &valid))
	assert.Equal(t, model.StateDraft, valid.WorkflowState)
	assert.Equal(t, int64(1), valid.Version)
	assert.NotEqual(t, uuid.Nil, valid.ID)
}

func TestTransitionAppliesAndNotifies(t *testing.T) {
	rig := newSigningRig(t)
	ctx := context.Background()

	updated, err := rig.workflow.Transition(ctx, rig.lease.ID, model.StateReceived, rig.actor)
	require.NoError(t, err)
	assert.Equal(t, model.StateReceived, updated.WorkflowState)
	assert.Equal(t, int64(2), updated.Version)

	stored, err := rig.leases.GetByID(ctx, rig.lease.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateReceived, stored.WorkflowState)

	require.Len(t, rig.notifier.events, 1)
	assert.Contains(t, rig.notifier.events[0], rig.lease.ReferenceNumber)
}

func TestTransitionRejectsOffGraphMove(t *testing.T) {
	rig := newSigningRig(t)

	_, err := rig.workflow.Transition(context.Background(), rig.lease.ID, model.StateActive, rig.actor)
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, model.StateDraft, invalid.From)
	assert.Equal(t, model.StateActive, invalid.To)

	// The refused move leaves the lease and its version untouched, and no
	// notification goes out.
	stored, err := rig.leases.GetByID(context.Background(), rig.lease.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateDraft, stored.WorkflowState)
	assert.Equal(t, int64(1), stored.Version)
	assert.Empty(t, rig.notifier.events)
}

func TestTransitionUnknownLease(t *testing.T) {
	rig := newSigningRig(t)
	_, err := rig.workflow.Transition(context.Background(), uuid.New(), model.StateReceived, rig.actor)
	assert.ErrorIs(t, err, ErrLeaseNotFound)
}

// staleOnceLeaseStore fails the first state write with a stale-version error,
// imitating a concurrent transition winning the compare-and-swap.
type staleOnceLeaseStore struct {
	*fakeLeaseStore
	fired bool
}

func (s *staleOnceLeaseStore) UpdateState(ctx context.Context, id uuid.UUID, from, to model.WorkflowState, expectedVersion int64) error {
	if !s.fired {
		s.fired = true
		return store.ErrStaleVersion
	}
	return s.fakeLeaseStore.UpdateState(ctx, id, from, to, expectedVersion)
}

func TestTransitionConflictSurfacesAsRetryable(t *testing.T) {
	leases := newFakeLeaseStore()
	stale := &staleOnceLeaseStore{fakeLeaseStore: leases}
	notifier := &fakeNotifier{}
	workflow := NewWorkflowService(stale, newFakeOTPStore(), newFakeSignatureStore(), notifier)
	lease := seedLease(t, leases)

	_, err := workflow.Transition(context.Background(), lease.ID, model.StateReceived, uuid.New())
	var conflict *TransitionConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, lease.ID.String(), conflict.LeaseID)
	assert.Empty(t, notifier.events)

	// A retry after re-reading goes through.
	_, err = workflow.Transition(context.Background(), lease.ID, model.StateReceived, uuid.New())
	assert.NoError(t, err)
}

func TestDigitalSigningGuard(t *testing.T) {
	rig := newSigningRig(t)
	ctx := context.Background()
	rig.forceState(t, model.StatePendingOTP)

	// No verified code yet.
	_, err := rig.workflow.Transition(ctx, rig.lease.ID, model.StateTenantSigned, rig.actor)
	assert.ErrorIs(t, err, ErrSigningIncomplete)

	// Verified code but no captured signature.
	ch, err := rig.otp.GenerateAndSend(ctx, rig.lease.ID, "+254700000001", model.PurposeDigitalSigning)
	require.NoError(t, err)
	ok, err := rig.otp.Verify(ctx, rig.lease.ID, ch.Code, model.PurposeDigitalSigning)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = rig.workflow.Transition(ctx, rig.lease.ID, model.StateTenantSigned, rig.actor)
	assert.ErrorIs(t, err, ErrSigningIncomplete)

	// Both prerequisites met.
	_, err = rig.signature.CaptureSignature(ctx, rig.lease.ID, CapturePayload{
		Image:    []byte("stroke-data"),
		Modality: model.ModalityCanvas,
	})
	require.NoError(t, err)

	updated, err := rig.workflow.Transition(ctx, rig.lease.ID, model.StateTenantSigned, rig.actor)
	require.NoError(t, err)
	assert.Equal(t, model.StateTenantSigned, updated.WorkflowState)
}

func TestDigitalSigningGuardRejectsStaleVerification(t *testing.T) {
	rig := newSigningRig(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	rig.otp.now = func() time.Time { return *clock }
	rig.workflow.now = func() time.Time { return *clock }

	rig.forceState(t, model.StatePendingOTP)

	ch, err := rig.otp.GenerateAndSend(ctx, rig.lease.ID, "+254700000001", model.PurposeDigitalSigning)
	require.NoError(t, err)
	ok, err := rig.otp.Verify(ctx, rig.lease.ID, ch.Code, model.PurposeDigitalSigning)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = rig.signature.CaptureSignature(ctx, rig.lease.ID, CapturePayload{
		Image:    []byte("stroke-data"),
		Modality: model.ModalityCanvas,
	})
	require.NoError(t, err)

	// A day later the verified challenge is long past its TTL; the entry
	// into tenant_signed must demand a fresh verification.
	*clock = clock.Add(24 * time.Hour)
	_, err = rig.workflow.Transition(ctx, rig.lease.ID, model.StateTenantSigned, rig.actor)
	assert.ErrorIs(t, err, ErrSigningIncomplete)

	stored, err := rig.leases.GetByID(ctx, rig.lease.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatePendingOTP, stored.WorkflowState)
}

func TestGuardOnlyAppliesToDigitalEntry(t *testing.T) {
	rig := newSigningRig(t)
	ctx := context.Background()

	// The wet-ink path enters tenant_signed without any challenge on file.
	rig.forceState(t, model.StatePendingTenantSignature)
	updated, err := rig.workflow.Transition(ctx, rig.lease.ID, model.StateTenantSigned, rig.actor)
	require.NoError(t, err)
	assert.Equal(t, model.StateTenantSigned, updated.WorkflowState)
}

func TestFullDigitalSigningScenario(t *testing.T) {
	rig := newSigningRig(t)
	ctx := context.Background()

	path := []model.WorkflowState{
		model.StateReceived,
		model.StatePendingLandlordApproval,
		model.StateApproved,
		model.StateSentDigital,
		model.StatePendingOTP,
	}
	for _, next := range path {
		_, err := rig.workflow.Transition(ctx, rig.lease.ID, next, rig.actor)
		require.NoError(t, err, "transition to %s", next)
	}

	ch, err := rig.otp.GenerateAndSend(ctx, rig.lease.ID, "+254700000001", model.PurposeDigitalSigning)
	require.NoError(t, err)

	wrong := "000000"
	if ch.Code == wrong {
		wrong = "000001"
	}
	ok, err := rig.otp.Verify(ctx, rig.lease.ID, wrong, model.PurposeDigitalSigning)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rig.otp.Verify(ctx, rig.lease.ID, ch.Code, model.PurposeDigitalSigning)
	require.NoError(t, err)
	require.True(t, ok)

	canSign, err := rig.signature.CanSign(ctx, rig.lease.ID)
	require.NoError(t, err)
	require.True(t, canSign)

	rec, err := rig.signature.CaptureSignature(ctx, rig.lease.ID, CapturePayload{
		Image:    []byte("stroke-data"),
		Modality: model.ModalityCanvas,
	})
	require.NoError(t, err)
	assert.Equal(t, ch.ID, rec.OTPChallengeID)

	updated, err := rig.workflow.Transition(ctx, rig.lease.ID, model.StateTenantSigned, rig.actor)
	require.NoError(t, err)
	assert.Equal(t, model.StateTenantSigned, updated.WorkflowState)
	assert.True(t, updated.IsSigned())

	// One event per applied transition.
	assert.Len(t, rig.notifier.events, len(path)+1)
}
