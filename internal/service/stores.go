package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Stan-Mash/lease-management-system-sub002/internal/model"
)

// The services depend on these narrow store interfaces rather than the
// concrete repositories so tests can substitute in-memory fakes.

// LeaseStore is the persistence surface the workflow, signature and
// verification services need.
type LeaseStore interface {
	Create(ctx context.Context, lease *model.Lease) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Lease, error)
	GetBySerial(ctx context.Context, serial string) (*model.Lease, error)
	GetByReference(ctx context.Context, ref string) (*model.Lease, error)
	UpdateState(ctx context.Context, id uuid.UUID, from, to model.WorkflowState, expectedVersion int64) error
	AssignSerial(ctx context.Context, id uuid.UUID, serial, verificationHash string) error
	AttachSignature(ctx context.Context, id, signatureRecordID uuid.UUID) error
	NextSerialValue(ctx context.Context, prefix string, year int) (int64, error)
	SerialExists(ctx context.Context, serial string) (bool, error)
}

// OTPStore is the persistence surface of the OTP challenge service.
type OTPStore interface {
	Issue(ctx context.Context, ch *model.OTPChallenge, windowStart time.Time, maxInWindow int, supersede bool) error
	GetLive(ctx context.Context, leaseID uuid.UUID, purpose string, now time.Time) (*model.OTPChallenge, error)
	MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	GetVerified(ctx context.Context, leaseID uuid.UUID, purpose string) (*model.OTPChallenge, error)
	CountSince(ctx context.Context, leaseID uuid.UUID, since time.Time) (int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SignatureStore is the persistence surface of the signature service.
type SignatureStore interface {
	Create(ctx context.Context, rec *model.SignatureRecord) error
	GetByLease(ctx context.Context, leaseID uuid.UUID) (*model.SignatureRecord, error)
	ExistsForLease(ctx context.Context, leaseID uuid.UUID) (bool, error)
}

// DocumentStore is the persistence surface of the document service.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *model.Document) error
	GetDocument(ctx context.Context, id uuid.UUID) (*model.Document, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.DocumentStatus) error
	AppendAudit(ctx context.Context, entry *model.DocumentAuditEntry) error
	ListAudit(ctx context.Context, documentID uuid.UUID) ([]*model.DocumentAuditEntry, error)
	ListPendingReview(ctx context.Context, limit int) ([]*model.Document, error)
	ListNeedingAttention(ctx context.Context, limit int) ([]*model.Document, error)
}
