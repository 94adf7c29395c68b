package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Stan-Mash/lease-management-system-sub002/internal/crypto"
	"github.com/Stan-Mash/lease-management-system-sub002/internal/model"
	"github.com/Stan-Mash/lease-management-system-sub002/internal/monitoring"
	"github.com/Stan-Mash/lease-management-system-sub002/internal/storage"
	"github.com/Stan-Mash/lease-management-system-sub002/internal/store"
)

// DocumentService owns supporting-document ingestion, the review status
// machine and the append-only audit trail.
type DocumentService struct {
	docs  DocumentStore
	blobs storage.BlobStore
	now   func() time.Time
}

// NewDocumentService creates a DocumentService.
func NewDocumentService(docs DocumentStore, blobs storage.BlobStore) *DocumentService {
	return &DocumentService{docs: docs, blobs: blobs, now: time.Now}
}

// Upload stores the bytes, computes the ingestion-time content hash and
// records the upload in the audit trail.
func (s *DocumentService) Upload(ctx context.Context, leaseID uuid.UUID, fileName string, data []byte, actor uuid.UUID, ip string) (*model.Document, error) {
	path, err := s.blobs.Store(data)
	if err != nil {
		log.Error().Err(err).Str("lease_id", leaseID.String()).Msg("Failed to store document bytes")
		return nil, err
	}

	doc := &model.Document{
		LeaseID:     leaseID,
		FileName:    fileName,
		StoragePath: path,
		ContentHash: crypto.ContentHash(data),
		SizeBytes:   int64(len(data)),
		UploadedBy:  actor,
	}
	if err := s.docs.CreateDocument(ctx, doc); err != nil {
		log.Error().Err(err).Str("lease_id", leaseID.String()).Msg("Failed to persist document")
		return nil, err
	}

	if _, err := s.RecordAction(ctx, doc.ID, &actor, model.ActionUpload, fileName, ip); err != nil {
		return nil, err
	}
	return doc, nil
}

// RecordAction appends an audit entry for the action. The category is
// derived from the action; a nil actor marks a system action.
func (s *DocumentService) RecordAction(ctx context.Context, documentID uuid.UUID, actor *uuid.UUID, action model.AuditAction, detail, ip string) (*model.DocumentAuditEntry, error) {
	entry := &model.DocumentAuditEntry{
		DocumentID: documentID,
		ActorID:    actor,
		Action:     action,
		Category:   action.Category(),
		Detail:     detail,
		IPAddress:  ip,
	}
	if err := s.docs.AppendAudit(ctx, entry); err != nil {
		log.Error().Err(err).Str("document_id", documentID.String()).Msg("Failed to append audit entry")
		return nil, err
	}
	return entry, nil
}

// VerifyIntegrity recomputes the hash of the stored bytes and compares it
// against the ingestion-time hash. The outcome is always appended to the
// audit trail; a mismatch additionally fires the alert hook. History is
// never amended, each check is a new entry.
func (s *DocumentService) VerifyIntegrity(ctx context.Context, documentID uuid.UUID, actor *uuid.UUID, ip string) (bool, error) {
	doc, err := s.docs.GetDocument(ctx, documentID)
	if err != nil {
		return false, err
	}
	if doc == nil {
		return false, ErrDocumentNotFound
	}

	ok := false
	detail := ""
	if s.blobs.Exists(doc.StoragePath) {
		data, err := s.blobs.Read(doc.StoragePath)
		if err != nil {
			detail = fmt.Sprintf("read failed: %v", err)
		} else {
			ok = crypto.ContentHash(data) == doc.ContentHash
			if !ok {
				detail = "content hash mismatch"
			}
		}
	} else {
		detail = "stored file missing"
	}

	entry := &model.DocumentAuditEntry{
		DocumentID:        documentID,
		ActorID:           actor,
		Action:            model.ActionIntegrityCheck,
		Category:          model.CategoryIntegrity,
		IntegrityVerified: &ok,
		Detail:            detail,
		IPAddress:         ip,
	}
	if err := s.docs.AppendAudit(ctx, entry); err != nil {
		log.Error().Err(err).Str("document_id", documentID.String()).Msg("Failed to record integrity check")
		return false, err
	}

	if ok {
		monitoring.IntegrityChecks.WithLabelValues("verified").Inc()
		return true, nil
	}

	monitoring.IntegrityChecks.WithLabelValues("failed").Inc()
	monitoring.IntegrityAlert(detail, map[string]string{
		"document_id": documentID.String(),
		"lease_id":    doc.LeaseID.String(),
		"file_name":   doc.FileName,
	})
	return false, nil
}

// TransitionStatus moves the document's review status through its guarded
// machine and records the change in the audit trail.
func (s *DocumentService) TransitionStatus(ctx context.Context, documentID uuid.UUID, target model.DocumentStatus, actor *uuid.UUID, ip string) (*model.Document, error) {
	doc, err := s.docs.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}

	current := doc.Status
	if !current.CanTransitionTo(target) {
		return nil, &InvalidDocumentTransitionError{From: current, To: target}
	}

	if err := s.docs.UpdateStatus(ctx, documentID, current, target); err != nil {
		if errors.Is(err, store.ErrStaleVersion) {
			return nil, &InvalidDocumentTransitionError{From: current, To: target}
		}
		return nil, err
	}
	doc.Status = target
	doc.UpdatedAt = s.now()

	action := statusAction(target)
	if _, err := s.RecordAction(ctx, documentID, actor, action, fmt.Sprintf("%s -> %s", current, target), ip); err != nil {
		return nil, err
	}
	return doc, nil
}

func statusAction(target model.DocumentStatus) model.AuditAction {
	switch target {
	case model.DocApproved:
		return model.ActionApprove
	case model.DocRejected:
		return model.ActionReject
	case model.DocLinked:
		return model.ActionLink
	default:
		return model.ActionStatusChange
	}
}

// PendingReview returns documents waiting for a reviewer.
func (s *DocumentService) PendingReview(ctx context.Context, limit int) ([]*model.Document, error) {
	return s.docs.ListPendingReview(ctx, limit)
}

// NeedsAttention returns documents whose latest integrity check failed.
func (s *DocumentService) NeedsAttention(ctx context.Context, limit int) ([]*model.Document, error) {
	return s.docs.ListNeedingAttention(ctx, limit)
}

// AuditTrail returns the full audit history of a document, oldest first.
func (s *DocumentService) AuditTrail(ctx context.Context, documentID uuid.UUID) ([]*model.DocumentAuditEntry, error) {
	return s.docs.ListAudit(ctx, documentID)
}
