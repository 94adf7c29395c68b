package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArchivedIsOnlyTerminalState(t *testing.T) {
	assert.Empty(t, StateArchived.ValidTransitions())
	assert.True(t, StateArchived.IsTerminal())

	for _, s := range AllWorkflowStates {
		if s == StateArchived {
			continue
		}
		assert.False(t, s.IsTerminal(), "state %s must have an exit", s)
	}
}

func TestArchivedReachableOnlyFromClosedStates(t *testing.T) {
	allowed := map[WorkflowState]bool{
		StateExpired:    true,
		StateTerminated: true,
		StateCancelled:  true,
	}
	for _, s := range AllWorkflowStates {
		assert.Equal(t, allowed[s], s.CanTransitionTo(StateArchived),
			"archived reachability from %s", s)
	}
}

func TestAdjacencyTargetsAreValidStates(t *testing.T) {
	for _, s := range AllWorkflowStates {
		for _, next := range s.ValidTransitions() {
			assert.True(t, next.IsValid(), "%s -> %s", s, next)
			assert.NotEqual(t, s, next, "no self transitions")
		}
	}
}

func TestNoFallbackTransitions(t *testing.T) {
	assert.False(t, StateDraft.CanTransitionTo(StateActive))
	assert.False(t, StateActive.CanTransitionTo(StateDraft))
	assert.False(t, StatePendingOTP.CanTransitionTo(StateActive))
	assert.False(t, StatePrinted.CanTransitionTo(StateTenantSigned))
}

func TestDigitalPathAdjacency(t *testing.T) {
	assert.True(t, StateApproved.CanTransitionTo(StateSentDigital))
	assert.True(t, StateSentDigital.CanTransitionTo(StatePendingOTP))
	assert.True(t, StatePendingOTP.CanTransitionTo(StateTenantSigned))
	// resend path: fall back to sent_digital rather than a fresh lease
	assert.True(t, StatePendingOTP.CanTransitionTo(StateSentDigital))
}

func TestParseWorkflowState(t *testing.T) {
	s, err := ParseWorkflowState("pending_otp")
	assert.NoError(t, err)
	assert.Equal(t, StatePendingOTP, s)

	_, err = ParseWorkflowState("signed_maybe")
	assert.Error(t, err)
}

func TestValidTransitionsReturnsCopy(t *testing.T) {
	first := StateDraft.ValidTransitions()
	first[0] = StateArchived
	assert.False(t, StateDraft.CanTransitionTo(StateArchived))
}

func TestEveryStateHasLabelAndPhase(t *testing.T) {
	seen := make(map[Phase]bool)
	for _, s := range AllWorkflowStates {
		assert.NotEmpty(t, s.Label())
		assert.NotEmpty(t, s.Color())
		seen[s.Phase()] = true
	}
	assert.Len(t, seen, 5)
}

func TestInvalidStatePanics(t *testing.T) {
	assert.Panics(t, func() { WorkflowState("bogus").ValidTransitions() })
	assert.Panics(t, func() { WorkflowState("bogus").Label() })
}
