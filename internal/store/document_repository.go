package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/Stan-Mash/lease-management-system-sub002/internal/model"
)

// DocumentRepository handles database operations for documents and their
// append-only audit trail.
type DocumentRepository struct {
	db *sql.DB
}

// NewDocumentRepository creates a DocumentRepository.
func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// CreateDocument inserts a document row with its ingestion-time content hash.
func (r *DocumentRepository) CreateDocument(ctx context.Context, doc *model.Document) error {
	doc.ID = uuid.New()
	doc.Status = model.DocPendingReview
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = doc.CreatedAt

	query := `
		INSERT INTO documents (id, lease_id, file_name, storage_path, content_hash,
			size_bytes, status, uploaded_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		doc.ID, doc.LeaseID, doc.FileName, doc.StoragePath, doc.ContentHash,
		doc.SizeBytes, string(doc.Status), doc.UploadedBy, doc.CreatedAt, doc.UpdatedAt,
	)
	return err
}

// GetDocument retrieves a document by ID, or nil.
func (r *DocumentRepository) GetDocument(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	query := `
		SELECT id, lease_id, file_name, storage_path, content_hash,
			size_bytes, status, uploaded_by, created_at, updated_at
		FROM documents WHERE id = $1
	`
	doc := &model.Document{}
	var status string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&doc.ID, &doc.LeaseID, &doc.FileName, &doc.StoragePath, &doc.ContentHash,
		&doc.SizeBytes, &status, &doc.UploadedBy, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	doc.Status = model.DocumentStatus(status)
	return doc, nil
}

// UpdateStatus moves the document's review status with a compare-and-swap
// on the current status, mirroring the lease transition write.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.DocumentStatus) error {
	query := `
		UPDATE documents
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
	`
	result, err := r.db.ExecContext(ctx, query, id, string(to), string(from))
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrStaleVersion
	}
	return nil
}

// AppendAudit inserts an audit entry. Entries are never updated or deleted.
func (r *DocumentRepository) AppendAudit(ctx context.Context, entry *model.DocumentAuditEntry) error {
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()

	query := `
		INSERT INTO document_audit_entries (id, document_id, actor_id, action, category,
			integrity_verified, detail, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.DocumentID, entry.ActorID, string(entry.Action), string(entry.Category),
		entry.IntegrityVerified, entry.Detail, entry.IPAddress, entry.CreatedAt,
	)
	return err
}

// ListAudit returns the audit trail for a document, oldest first.
func (r *DocumentRepository) ListAudit(ctx context.Context, documentID uuid.UUID) ([]*model.DocumentAuditEntry, error) {
	query := `
		SELECT id, document_id, actor_id, action, category,
			integrity_verified, detail, ip_address, created_at
		FROM document_audit_entries
		WHERE document_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*model.DocumentAuditEntry
	for rows.Next() {
		entry := &model.DocumentAuditEntry{}
		var action, category string
		if err := rows.Scan(
			&entry.ID, &entry.DocumentID, &entry.ActorID, &action, &category,
			&entry.IntegrityVerified, &entry.Detail, &entry.IPAddress, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entry.Action = model.AuditAction(action)
		entry.Category = model.AuditCategory(category)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ListPendingReview returns documents waiting for a reviewer, oldest first.
func (r *DocumentRepository) ListPendingReview(ctx context.Context, limit int) ([]*model.Document, error) {
	return r.listByStatus(ctx, model.DocPendingReview, limit)
}

// ListNeedingAttention returns documents whose latest integrity check
// failed. Failed checks must surface in review queues, never disappear.
func (r *DocumentRepository) ListNeedingAttention(ctx context.Context, limit int) ([]*model.Document, error) {
	query := `
		SELECT d.id, d.lease_id, d.file_name, d.storage_path, d.content_hash,
			d.size_bytes, d.status, d.uploaded_by, d.created_at, d.updated_at
		FROM documents d
		WHERE EXISTS (
			SELECT 1 FROM document_audit_entries e
			WHERE e.document_id = d.id
				AND e.category = 'integrity'
				AND e.integrity_verified = FALSE
				AND e.created_at = (
					SELECT MAX(created_at) FROM document_audit_entries
					WHERE document_id = d.id AND category = 'integrity'
				)
		)
		ORDER BY d.updated_at ASC
		LIMIT $1
	`
	return r.queryDocuments(ctx, query, limit)
}

func (r *DocumentRepository) listByStatus(ctx context.Context, status model.DocumentStatus, limit int) ([]*model.Document, error) {
	query := `
		SELECT id, lease_id, file_name, storage_path, content_hash,
			size_bytes, status, uploaded_by, created_at, updated_at
		FROM documents
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	return r.queryDocuments(ctx, query, string(status), limit)
}

func (r *DocumentRepository) queryDocuments(ctx context.Context, query string, args ...interface{}) ([]*model.Document, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*model.Document
	for rows.Next() {
		doc := &model.Document{}
		var status string
		if err := rows.Scan(
			&doc.ID, &doc.LeaseID, &doc.FileName, &doc.StoragePath, &doc.ContentHash,
			&doc.SizeBytes, &status, &doc.UploadedBy, &doc.CreatedAt, &doc.UpdatedAt,
		); err != nil {
			return nil, err
		}
		doc.Status = model.DocumentStatus(status)
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}
