package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/Stan-Mash/lease-management-system-sub002/internal/model"
)

// Sentinel errors for errors.Is matching. All of these are recoverable and
// returned to the caller; only closed-set violations panic.
var (
	ErrRateLimitExceeded    = errors.New("otp issuance rate limit exceeded, wait before requesting another code")
	ErrExpiredOrInvalidCode = errors.New("code expired or invalid, request a new one")
	ErrAlreadySigned        = errors.New("lease has already been signed")
	ErrIntegrityMismatch    = errors.New("document content does not match its stored hash")
	ErrLeaseNotFound        = errors.New("lease not found")
	ErrDocumentNotFound     = errors.New("document not found")
)

// InvalidTransitionError reports a state change outside the adjacency list.
// It carries both states for diagnostics.
type InvalidTransitionError struct {
	From model.WorkflowState
	To   model.WorkflowState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("transition from %q to %q is not allowed", e.From, e.To)
}

// InvalidDocumentTransitionError is the document-review counterpart.
type InvalidDocumentTransitionError struct {
	From model.DocumentStatus
	To   model.DocumentStatus
}

func (e *InvalidDocumentTransitionError) Error() string {
	return fmt.Sprintf("document status change from %q to %q is not allowed", e.From, e.To)
}

// TransitionConflictError means a concurrent transition won the optimistic
// concurrency race; the caller should re-read and retry or give up.
type TransitionConflictError struct {
	LeaseID string
}

func (e *TransitionConflictError) Error() string {
	return fmt.Sprintf("lease %s was modified concurrently, retry the transition", e.LeaseID)
}

// SendingFailureError means the notification channel failed after the OTP
// row was persisted. The caller can retry delivery without re-minting a
// code; Challenge carries the persisted row.
type SendingFailureError struct {
	Challenge *model.OTPChallenge
	Cause     error
}

func (e *SendingFailureError) Error() string {
	return fmt.Sprintf("failed to deliver code: %v", e.Cause)
}

func (e *SendingFailureError) Unwrap() error {
	return e.Cause
}

// RateLimitError wraps ErrRateLimitExceeded with the window facts a caller
// needs to produce an actionable message.
type RateLimitError struct {
	Window time.Duration
	Max    int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("at most %d codes may be requested per %s", e.Max, e.Window)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}
