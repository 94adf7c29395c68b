package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WorkflowState is the single authoritative lifecycle stage of a lease.
// The set is closed; transitions are governed by ValidTransitions.
type WorkflowState string

const (
	// Drafting phase
	StateDraft                   WorkflowState = "draft"
	StateReceived                WorkflowState = "received"
	StatePendingLandlordApproval WorkflowState = "pending_landlord_approval"
	StateApproved                WorkflowState = "approved"

	// Physical execution
	StatePrinted                WorkflowState = "printed"
	StateCheckedOut             WorkflowState = "checked_out"
	StatePendingTenantSignature WorkflowState = "pending_tenant_signature"
	StateReturnedUnsigned       WorkflowState = "returned_unsigned"

	// Digital execution
	StateSentDigital  WorkflowState = "sent_digital"
	StatePendingOTP   WorkflowState = "pending_otp"
	StateTenantSigned WorkflowState = "tenant_signed"

	// Legal processing
	StateWithLawyer     WorkflowState = "with_lawyer"
	StatePendingUpload  WorkflowState = "pending_upload"
	StatePendingDeposit WorkflowState = "pending_deposit"

	// Lifecycle
	StateActive         WorkflowState = "active"
	StateRenewalOffered WorkflowState = "renewal_offered"
	StateExpired        WorkflowState = "expired"
	StateTerminated     WorkflowState = "terminated"
	StateCancelled      WorkflowState = "cancelled"
	StateArchived       WorkflowState = "archived"
)

// AllWorkflowStates lists every member of the closed set.
var AllWorkflowStates = []WorkflowState{
	StateDraft, StateReceived, StatePendingLandlordApproval, StateApproved,
	StatePrinted, StateCheckedOut, StatePendingTenantSignature, StateReturnedUnsigned,
	StateSentDigital, StatePendingOTP, StateTenantSigned,
	StateWithLawyer, StatePendingUpload, StatePendingDeposit,
	StateActive, StateRenewalOffered, StateExpired, StateTerminated,
	StateCancelled, StateArchived,
}

// workflowAdjacency is the explicit whitelist of allowed next states.
// There is no fallback transition; a state absent from a list is forbidden.
// archived is the only universal terminal state and is reachable only from
// expired, terminated and cancelled.
var workflowAdjacency = map[WorkflowState][]WorkflowState{
	StateDraft:                   {StateReceived, StateCancelled},
	StateReceived:                {StatePendingLandlordApproval, StateCancelled},
	StatePendingLandlordApproval: {StateApproved, StateDraft, StateCancelled},
	StateApproved:                {StatePrinted, StateSentDigital, StateCancelled},

	StatePrinted:                {StateCheckedOut, StateCancelled},
	StateCheckedOut:             {StatePendingTenantSignature, StateReturnedUnsigned, StateCancelled},
	StatePendingTenantSignature: {StateTenantSigned, StateReturnedUnsigned, StateCancelled},
	StateReturnedUnsigned:       {StatePrinted, StateCancelled},

	StateSentDigital: {StatePendingOTP, StateCancelled},
	StatePendingOTP:  {StateTenantSigned, StateSentDigital, StateCancelled},

	StateTenantSigned:   {StateWithLawyer, StatePendingDeposit, StateCancelled},
	StateWithLawyer:     {StatePendingUpload, StateCancelled},
	StatePendingUpload:  {StatePendingDeposit, StateCancelled},
	StatePendingDeposit: {StateActive, StateCancelled},

	StateActive:         {StateRenewalOffered, StateExpired, StateTerminated},
	StateRenewalOffered: {StateActive, StateExpired, StateTerminated},
	StateExpired:        {StateArchived},
	StateTerminated:     {StateArchived},
	StateCancelled:      {StateArchived},
	StateArchived:       {},
}

// ValidTransitions returns the allowed next states for s. The returned slice
// is a copy; callers may not mutate the adjacency table.
func (s WorkflowState) ValidTransitions() []WorkflowState {
	next, ok := workflowAdjacency[s]
	if !ok {
		panic(fmt.Sprintf("model: workflow state %q outside the closed set", s))
	}
	out := make([]WorkflowState, len(next))
	copy(out, next)
	return out
}

// CanTransitionTo reports whether target is in the whitelist for s.
func (s WorkflowState) CanTransitionTo(target WorkflowState) bool {
	for _, next := range s.ValidTransitions() {
		if next == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s has no outgoing transitions.
func (s WorkflowState) IsTerminal() bool {
	return len(s.ValidTransitions()) == 0
}

// IsValid reports whether s belongs to the closed set.
func (s WorkflowState) IsValid() bool {
	_, ok := workflowAdjacency[s]
	return ok
}

// ParseWorkflowState converts a stored string into a WorkflowState.
func ParseWorkflowState(raw string) (WorkflowState, error) {
	s := WorkflowState(raw)
	if !s.IsValid() {
		return "", fmt.Errorf("unknown workflow state %q", raw)
	}
	return s, nil
}

// Phase groups states for display and reporting.
type Phase string

const (
	PhaseDrafting          Phase = "drafting"
	PhasePhysicalExecution Phase = "physical_execution"
	PhaseDigitalExecution  Phase = "digital_execution"
	PhaseLegalProcessing   Phase = "legal_processing"
	PhaseLifecycle         Phase = "lifecycle"
)

// Phase returns the lifecycle phase the state belongs to.
func (s WorkflowState) Phase() Phase {
	switch s {
	case StateDraft, StateReceived, StatePendingLandlordApproval, StateApproved:
		return PhaseDrafting
	case StatePrinted, StateCheckedOut, StatePendingTenantSignature, StateReturnedUnsigned:
		return PhasePhysicalExecution
	case StateSentDigital, StatePendingOTP, StateTenantSigned:
		return PhaseDigitalExecution
	case StateWithLawyer, StatePendingUpload, StatePendingDeposit:
		return PhaseLegalProcessing
	case StateActive, StateRenewalOffered, StateExpired, StateTerminated, StateCancelled, StateArchived:
		return PhaseLifecycle
	}
	panic(fmt.Sprintf("model: workflow state %q outside the closed set", s))
}

// Label returns the human-readable name shown in admin listings.
func (s WorkflowState) Label() string {
	switch s {
	case StateDraft:
		return "Draft"
	case StateReceived:
		return "Received"
	case StatePendingLandlordApproval:
		return "Pending Landlord Approval"
	case StateApproved:
		return "Approved"
	case StatePrinted:
		return "Printed"
	case StateCheckedOut:
		return "Checked Out"
	case StatePendingTenantSignature:
		return "Pending Tenant Signature"
	case StateReturnedUnsigned:
		return "Returned Unsigned"
	case StateSentDigital:
		return "Sent Digitally"
	case StatePendingOTP:
		return "Pending OTP Verification"
	case StateTenantSigned:
		return "Signed by Tenant"
	case StateWithLawyer:
		return "With Lawyer"
	case StatePendingUpload:
		return "Pending Upload"
	case StatePendingDeposit:
		return "Pending Deposit"
	case StateActive:
		return "Active"
	case StateRenewalOffered:
		return "Renewal Offered"
	case StateExpired:
		return "Expired"
	case StateTerminated:
		return "Terminated"
	case StateCancelled:
		return "Cancelled"
	case StateArchived:
		return "Archived"
	}
	panic(fmt.Sprintf("model: workflow state %q outside the closed set", s))
}

// Color returns the badge color admin listings render the state with.
func (s WorkflowState) Color() string {
	switch s.Phase() {
	case PhaseDrafting:
		return "gray"
	case PhasePhysicalExecution:
		return "blue"
	case PhaseDigitalExecution:
		return "indigo"
	case PhaseLegalProcessing:
		return "amber"
	default:
		switch s {
		case StateActive, StateRenewalOffered:
			return "green"
		case StateCancelled, StateTerminated:
			return "red"
		}
		return "slate"
	}
}

// Lease represents the leases table. ReferenceNumber and SerialNumber are
// immutable once assigned; WorkflowState changes only through the state
// machine; Version backs the optimistic concurrency check on transitions.
type Lease struct {
	ID                uuid.UUID     `json:"id"`
	ReferenceNumber   string        `json:"reference_number"`
	SerialNumber      string        `json:"serial_number,omitempty"`
	TenantID          uuid.UUID     `json:"tenant_id"`
	LandlordID        uuid.UUID     `json:"landlord_id"`
	PropertyID        uuid.UUID     `json:"property_id"`
	UnitLabel         string        `json:"unit_label"`
	MonthlyRent       int64         `json:"monthly_rent"`
	Deposit           int64         `json:"deposit"`
	Currency          string        `json:"currency"`
	StartDate         time.Time     `json:"start_date"`
	EndDate           time.Time     `json:"end_date"`
	WorkflowState     WorkflowState `json:"workflow_state"`
	VerificationHash  string        `json:"verification_hash,omitempty"`
	SignatureRecordID *uuid.UUID    `json:"signature_record_id,omitempty"`
	Version           int64         `json:"version"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// IsSigned reports whether a signature has been captured for the lease.
func (l *Lease) IsSigned() bool {
	return l.SignatureRecordID != nil
}
