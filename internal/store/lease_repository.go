package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Stan-Mash/lease-management-system-sub002/internal/model"
)

// RedisClient is the subset of redis.Client the repository uses; an
// interface so tests can stub the cache.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetEx(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

const leaseCacheTTL = 1 * time.Hour

// LeaseRepository handles database operations for leases, including the
// optimistic-concurrency transition write and serial sequence allocation.
type LeaseRepository struct {
	db    *sql.DB
	redis RedisClient // nil disables caching
}

// NewLeaseRepository creates a LeaseRepository. redis may be nil.
func NewLeaseRepository(db *sql.DB, redis RedisClient) *LeaseRepository {
	return &LeaseRepository{db: db, redis: redis}
}

func leaseCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("lease:%s", id.String())
}

// Create inserts a new lease in the draft state with version 1.
func (r *LeaseRepository) Create(ctx context.Context, lease *model.Lease) error {
	query := `
		INSERT INTO leases (id, reference_number, tenant_id, landlord_id, property_id,
			unit_label, monthly_rent, deposit, currency, start_date, end_date,
			workflow_state, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	lease.ID = uuid.New()
	lease.WorkflowState = model.StateDraft
	lease.Version = 1
	lease.CreatedAt = time.Now()
	lease.UpdatedAt = lease.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		lease.ID, lease.ReferenceNumber, lease.TenantID, lease.LandlordID, lease.PropertyID,
		lease.UnitLabel, lease.MonthlyRent, lease.Deposit, lease.Currency,
		lease.StartDate, lease.EndDate, string(lease.WorkflowState), lease.Version,
		lease.CreatedAt, lease.UpdatedAt,
	)
	return err
}

const leaseColumns = `id, reference_number, serial_number, tenant_id, landlord_id, property_id,
	unit_label, monthly_rent, deposit, currency, start_date, end_date,
	workflow_state, verification_hash, signature_record_id, version, created_at, updated_at`

func scanLease(row *sql.Row) (*model.Lease, error) {
	lease := &model.Lease{}
	var serial, hash sql.NullString
	var state string
	err := row.Scan(
		&lease.ID, &lease.ReferenceNumber, &serial, &lease.TenantID, &lease.LandlordID,
		&lease.PropertyID, &lease.UnitLabel, &lease.MonthlyRent, &lease.Deposit,
		&lease.Currency, &lease.StartDate, &lease.EndDate, &state, &hash,
		&lease.SignatureRecordID, &lease.Version, &lease.CreatedAt, &lease.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	lease.SerialNumber = serial.String
	lease.VerificationHash = hash.String
	lease.WorkflowState, err = model.ParseWorkflowState(state)
	if err != nil {
		return nil, err
	}
	return lease, nil
}

// GetByID retrieves a lease by ID, consulting the cache first.
func (r *LeaseRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Lease, error) {
	if r.redis != nil {
		cached, err := r.redis.Get(ctx, leaseCacheKey(id)).Result()
		if err == nil {
			lease := &model.Lease{}
			if err := json.Unmarshal([]byte(cached), lease); err == nil {
				return lease, nil
			}
		}
	}

	query := fmt.Sprintf(`SELECT %s FROM leases WHERE id = $1`, leaseColumns)
	lease, err := scanLease(r.db.QueryRowContext(ctx, query, id))
	if err != nil || lease == nil {
		return lease, err
	}

	if r.redis != nil {
		if data, err := json.Marshal(lease); err == nil {
			r.redis.SetEx(ctx, leaseCacheKey(lease.ID), data, leaseCacheTTL)
		}
	}
	return lease, nil
}

// GetBySerial retrieves a lease by its serial number.
func (r *LeaseRepository) GetBySerial(ctx context.Context, serial string) (*model.Lease, error) {
	query := fmt.Sprintf(`SELECT %s FROM leases WHERE serial_number = $1`, leaseColumns)
	return scanLease(r.db.QueryRowContext(ctx, query, serial))
}

// GetByReference retrieves a lease by its reference number.
func (r *LeaseRepository) GetByReference(ctx context.Context, ref string) (*model.Lease, error) {
	query := fmt.Sprintf(`SELECT %s FROM leases WHERE reference_number = $1`, leaseColumns)
	return scanLease(r.db.QueryRowContext(ctx, query, ref))
}

// UpdateState applies a workflow transition with an optimistic version
// check. A concurrent transition that already bumped the version makes this
// write affect zero rows, which surfaces as ErrStaleVersion.
func (r *LeaseRepository) UpdateState(ctx context.Context, id uuid.UUID, from, to model.WorkflowState, expectedVersion int64) error {
	query := `
		UPDATE leases
		SET workflow_state = $2, version = version + 1, updated_at = now()
		WHERE id = $1 AND workflow_state = $3 AND version = $4
	`
	result, err := r.db.ExecContext(ctx, query, id, string(to), string(from), expectedVersion)
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
	r.invalidate(ctx, id)
	return nil
}

// AssignSerial writes the serial number and verification hash exactly once;
// a lease that already carries a serial is left untouched.
func (r *LeaseRepository) AssignSerial(ctx context.Context, id uuid.UUID, serial, verificationHash string) error {
	query := `
		UPDATE leases
		SET serial_number = $2, verification_hash = $3, updated_at = now()
		WHERE id = $1 AND serial_number IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, id, serial, verificationHash)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrDuplicate
	}
	r.invalidate(ctx, id)
	return nil
}

// AttachSignature links a captured signature record to the lease.
func (r *LeaseRepository) AttachSignature(ctx context.Context, id, signatureRecordID uuid.UUID) error {
	query := `
		UPDATE leases
		SET signature_record_id = $2, updated_at = now()
		WHERE id = $1 AND signature_record_id IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, id, signatureRecordID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrDuplicate
	}
	r.invalidate(ctx, id)
	return nil
}

// NextSerialValue atomically advances the per-year sequence and returns the
// new value. The upsert makes the first allocation of a year create the row.
func (r *LeaseRepository) NextSerialValue(ctx context.Context, prefix string, year int) (int64, error) {
	query := `
		INSERT INTO serial_sequences (year, prefix, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (year) DO UPDATE SET last_value = serial_sequences.last_value + 1
		RETURNING last_value
	`
	var value int64
	err := r.db.QueryRowContext(ctx, query, year, prefix).Scan(&value)
	return value, err
}

// SerialExists reports whether any lease already carries the serial.
func (r *LeaseRepository) SerialExists(ctx context.Context, serial string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM leases WHERE serial_number = $1`, serial).Scan(&count)
	return count > 0, err
}

func (r *LeaseRepository) invalidate(ctx context.Context, id uuid.UUID) {
	if r.redis != nil {
		r.redis.Del(ctx, leaseCacheKey(id))
	}
}
