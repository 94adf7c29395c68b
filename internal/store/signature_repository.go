package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Stan-Mash/lease-management-system-sub002/internal/model"
)

// SignatureRepository handles database operations for signature records.
type SignatureRepository struct {
	db *sql.DB
}

// NewSignatureRepository creates a SignatureRepository.
func NewSignatureRepository(db *sql.DB) *SignatureRepository {
	return &SignatureRepository{db: db}
}

// Create inserts a signature record. The unique index on lease_id is the
// last line of defense for the single-shot invariant; a violation surfaces
// as ErrDuplicate.
func (r *SignatureRepository) Create(ctx context.Context, rec *model.SignatureRecord) error {
	rec.ID = uuid.New()
	rec.CreatedAt = time.Now()

	query := `
		INSERT INTO signature_records (id, lease_id, image, modality, latitude, longitude,
			user_agent, screen_info, ip_address, otp_challenge_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.LeaseID, rec.Image, string(rec.Modality), rec.Latitude, rec.Longitude,
		rec.UserAgent, rec.ScreenInfo, rec.IPAddress, rec.OTPChallengeID, rec.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

// GetByLease returns the signature record for the lease, or nil.
func (r *SignatureRepository) GetByLease(ctx context.Context, leaseID uuid.UUID) (*model.SignatureRecord, error) {
	query := `
		SELECT id, lease_id, image, modality, latitude, longitude,
			user_agent, screen_info, ip_address, otp_challenge_id, created_at
		FROM signature_records
		WHERE lease_id = $1
	`
	rec := &model.SignatureRecord{}
	var modality string
	err := r.db.QueryRowContext(ctx, query, leaseID).Scan(
		&rec.ID, &rec.LeaseID, &rec.Image, &modality, &rec.Latitude, &rec.Longitude,
		&rec.UserAgent, &rec.ScreenInfo, &rec.IPAddress, &rec.OTPChallengeID, &rec.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.Modality = model.CaptureModality(modality)
	return rec, nil
}

// ExistsForLease reports whether the lease already has a signature record.
func (r *SignatureRepository) ExistsForLease(ctx context.Context, leaseID uuid.UUID) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM signature_records WHERE lease_id = $1`, leaseID,
	).Scan(&count)
	return count > 0, err
}
