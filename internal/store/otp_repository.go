package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/Stan-Mash/lease-management-system-sub002/internal/model"
)

// OTPRepository handles database operations for OTP challenges.
type OTPRepository struct {
	db *sql.DB
}

// NewOTPRepository creates an OTPRepository.
func NewOTPRepository(db *sql.DB) *OTPRepository {
	return &OTPRepository{db: db}
}

// Issue persists a new challenge inside a transaction that serializes all
// issuance for the lease (advisory lock), enforces the rolling-window cap,
// and optionally supersedes every prior live challenge. The cap check and
// the insert are atomic, so two concurrent resends cannot both slip under
// the limit.
func (r *OTPRepository) Issue(ctx context.Context, ch *model.OTPChallenge, windowStart time.Time, maxInWindow int, supersede bool) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Per-lease serialization for the issuance path.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, ch.LeaseID.String()); err != nil {
		return err
	}

	var issued int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM otp_challenges WHERE lease_id = $1 AND sent_at > $2`,
		ch.LeaseID, windowStart,
	).Scan(&issued)
	if err != nil {
		return err
	}
	if maxInWindow > 0 && issued >= maxInWindow {
		return ErrRateLimited
	}

	if supersede {
		_, err = tx.ExecContext(ctx,
			`UPDATE otp_challenges
			 SET superseded_at = $2
			 WHERE lease_id = $1 AND purpose = $3 AND is_verified = FALSE AND superseded_at IS NULL`,
			ch.LeaseID, ch.SentAt, ch.Purpose,
		)
		if err != nil {
			return err
		}
	}

	ch.ID = uuid.New()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO otp_challenges (id, lease_id, encrypted_phone, phone_iv, code, purpose,
			sent_at, expires_at, is_verified)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE)`,
		ch.ID, ch.LeaseID, ch.EncryptedPhone, ch.PhoneIV, ch.Code, ch.Purpose,
		ch.SentAt, ch.ExpiresAt,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

const otpColumns = `id, lease_id, encrypted_phone, phone_iv, code, purpose,
	sent_at, expires_at, is_verified, verified_at, superseded_at`

func scanChallenge(row *sql.Row) (*model.OTPChallenge, error) {
	ch := &model.OTPChallenge{}
	err := row.Scan(
		&ch.ID, &ch.LeaseID, &ch.EncryptedPhone, &ch.PhoneIV, &ch.Code, &ch.Purpose,
		&ch.SentAt, &ch.ExpiresAt, &ch.IsVerified, &ch.VerifiedAt, &ch.SupersededAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// GetLive returns the single live (unverified, unsuperseded, unexpired as of
// now) challenge for the lease and purpose, or nil.
func (r *OTPRepository) GetLive(ctx context.Context, leaseID uuid.UUID, purpose string, now time.Time) (*model.OTPChallenge, error) {
	query := `
		SELECT ` + otpColumns + `
		FROM otp_challenges
		WHERE lease_id = $1 AND purpose = $2
			AND is_verified = FALSE AND superseded_at IS NULL AND expires_at > $3
		ORDER BY sent_at DESC
		LIMIT 1
	`
	return scanChallenge(r.db.QueryRowContext(ctx, query, leaseID, purpose, now))
}

// MarkVerified flips is_verified exactly once. A second attempt against the
// same row affects zero rows and returns false, which makes verification
// single-use.
func (r *OTPRepository) MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE otp_challenges
		 SET is_verified = TRUE, verified_at = $2
		 WHERE id = $1 AND is_verified = FALSE AND superseded_at IS NULL`,
		id, at,
	)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// GetVerified returns the most recent verified challenge for the lease and
// purpose, or nil.
func (r *OTPRepository) GetVerified(ctx context.Context, leaseID uuid.UUID, purpose string) (*model.OTPChallenge, error) {
	query := `
		SELECT ` + otpColumns + `
		FROM otp_challenges
		WHERE lease_id = $1 AND purpose = $2 AND is_verified = TRUE
		ORDER BY verified_at DESC
		LIMIT 1
	`
	return scanChallenge(r.db.QueryRowContext(ctx, query, leaseID, purpose))
}

// CountSince counts challenges issued for the lease after the cutoff.
func (r *OTPRepository) CountSince(ctx context.Context, leaseID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM otp_challenges WHERE lease_id = $1 AND sent_at > $2`,
		leaseID, since,
	).Scan(&count)
	return count, err
}

// DeleteOlderThan purges challenge rows older than the cutoff, except rows
// an existing signature record points at. Live (unexpired) rows are always
// newer than any sane cutoff, so the sweep never touches them.
func (r *OTPRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM otp_challenges c
		 WHERE c.sent_at < $1
			AND NOT EXISTS (
				SELECT 1 FROM signature_records s WHERE s.otp_challenge_id = c.id
			)`,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
