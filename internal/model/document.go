package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DocumentStatus is the review state of an uploaded supporting document.
// It is independent of the owning lease's workflow state.
type DocumentStatus string

const (
	DocPendingReview DocumentStatus = "pending_review"
	DocInReview      DocumentStatus = "in_review"
	DocApproved      DocumentStatus = "approved"
	DocRejected      DocumentStatus = "rejected"
	DocLinked        DocumentStatus = "linked"
)

// documentAdjacency mirrors the lease machine's design: explicit whitelist,
// no fallback, linked is the sole terminal state. rejected re-enters review
// after the uploader fixes the document.
var documentAdjacency = map[DocumentStatus][]DocumentStatus{
	DocPendingReview: {DocInReview},
	DocInReview:      {DocApproved, DocRejected},
	DocApproved:      {DocLinked},
	DocRejected:      {DocInReview},
	DocLinked:        {},
}

// ValidTransitions returns the allowed next statuses for s.
func (s DocumentStatus) ValidTransitions() []DocumentStatus {
	next, ok := documentAdjacency[s]
	if !ok {
		panic(fmt.Sprintf("model: document status %q outside the closed set", s))
	}
	out := make([]DocumentStatus, len(next))
	copy(out, next)
	return out
}

// CanTransitionTo reports whether target is allowed from s.
func (s DocumentStatus) CanTransitionTo(target DocumentStatus) bool {
	for _, next := range s.ValidTransitions() {
		if next == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s has no outgoing transitions.
func (s DocumentStatus) IsTerminal() bool {
	return len(s.ValidTransitions()) == 0
}

// IsValid reports whether s belongs to the closed set.
func (s DocumentStatus) IsValid() bool {
	_, ok := documentAdjacency[s]
	return ok
}

// Document represents the documents table. ContentHash is computed at
// ingestion and never recomputed in place; integrity checks compare against
// it and append audit entries.
type Document struct {
	ID          uuid.UUID      `json:"id"`
	LeaseID     uuid.UUID      `json:"lease_id"`
	FileName    string         `json:"file_name"`
	StoragePath string         `json:"storage_path"`
	ContentHash string         `json:"content_hash"`
	SizeBytes   int64          `json:"size_bytes"`
	Status      DocumentStatus `json:"status"`
	UploadedBy  uuid.UUID      `json:"uploaded_by"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// AuditAction is the action recorded against a document.
type AuditAction string

const (
	ActionUpload         AuditAction = "upload"
	ActionView           AuditAction = "view"
	ActionPreview        AuditAction = "preview"
	ActionDownload       AuditAction = "download"
	ActionEdit           AuditAction = "edit"
	ActionDelete         AuditAction = "delete"
	ActionApprove        AuditAction = "approve"
	ActionReject         AuditAction = "reject"
	ActionLink           AuditAction = "link"
	ActionStatusChange   AuditAction = "status_change"
	ActionIntegrityCheck AuditAction = "integrity_check"
)

// AuditCategory buckets audit actions for filtering and review queues.
type AuditCategory string

const (
	CategoryAccess       AuditCategory = "access"
	CategoryModification AuditCategory = "modification"
	CategoryWorkflow     AuditCategory = "workflow"
	CategoryIntegrity    AuditCategory = "integrity"
)

// Category returns the bucket an action belongs to.
func (a AuditAction) Category() AuditCategory {
	switch a {
	case ActionView, ActionPreview, ActionDownload:
		return CategoryAccess
	case ActionUpload, ActionEdit, ActionDelete:
		return CategoryModification
	case ActionApprove, ActionReject, ActionLink, ActionStatusChange:
		return CategoryWorkflow
	case ActionIntegrityCheck:
		return CategoryIntegrity
	}
	panic(fmt.Sprintf("model: audit action %q outside the closed set", a))
}

// DocumentAuditEntry represents the document_audit_entries table. Rows are
// append-only and outlive their document; a nil ActorID means the system
// acted on its own (scheduled integrity sweep, cleanup).
type DocumentAuditEntry struct {
	ID                uuid.UUID     `json:"id"`
	DocumentID        uuid.UUID     `json:"document_id"`
	ActorID           *uuid.UUID    `json:"actor_id,omitempty"`
	Action            AuditAction   `json:"action"`
	Category          AuditCategory `json:"category"`
	IntegrityVerified *bool         `json:"integrity_verified,omitempty"`
	Detail            string        `json:"detail,omitempty"`
	IPAddress         string        `json:"ip_address,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}
