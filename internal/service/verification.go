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
)

// ErrSerialExhausted means repeated allocations kept colliding with
// existing serials, which indicates a corrupted sequence row.
var ErrSerialExhausted = errors.New("could not allocate a unique serial number")

// PublicLeaseFacts is the projection the public verification endpoint
// returns. It carries only what is already printed on the document, never
// financial terms or party identifiers.
type PublicLeaseFacts struct {
	SerialNumber string    `json:"serial_number"`
	StateLabel   string    `json:"state"`
	Phase        string    `json:"phase"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	UnitLabel    string    `json:"unit_label"`
}

// VerificationService allocates serial numbers and backs the public
// QR-code verification flow.
type VerificationService struct {
	leases LeaseStore
	keys   *crypto.Keys
	prefix string
	now    func() time.Time
}

// NewVerificationService creates a VerificationService. prefix is the
// serial number prefix, e.g. "LSE".
func NewVerificationService(leases LeaseStore, keys *crypto.Keys, prefix string) *VerificationService {
	return &VerificationService{
		leases: leases,
		keys:   keys,
		prefix: prefix,
		now:    time.Now,
	}
}

const serialAllocationAttempts = 5

// GenerateUnique allocates the next serial for the current year, formatted
// PREFIX-YYYY-NNNN. The sequence row advances atomically, so concurrent
// allocations get distinct values; the collision check against existing
// leases is a guard for sequence resets.
func (s *VerificationService) GenerateUnique(ctx context.Context) (string, error) {
	year := s.now().Year()
	for attempt := 0; attempt < serialAllocationAttempts; attempt++ {
		value, err := s.leases.NextSerialValue(ctx, s.prefix, year)
		if err != nil {
			return "", err
		}
		serial := fmt.Sprintf("%s-%d-%04d", s.prefix, year, value)

		exists, err := s.leases.SerialExists(ctx, serial)
		if err != nil {
			return "", err
		}
		if !exists {
			return serial, nil
		}
		log.Warn().Str("serial", serial).Msg("Serial collision, advancing sequence")
	}
	return "", ErrSerialExhausted
}

// AssignSerial allocates a serial for the lease and stamps it together with
// the verification hash. Assignment happens at most once; a lease that
// already carries a serial is returned unchanged.
func (s *VerificationService) AssignSerial(ctx context.Context, leaseID uuid.UUID) (*model.Lease, error) {
	lease, err := s.leases.GetByID(ctx, leaseID)
	if err != nil {
		return nil, err
	}
	if lease == nil {
		return nil, ErrLeaseNotFound
	}
	if lease.SerialNumber != "" {
		return lease, nil
	}

	serial, err := s.GenerateUnique(ctx)
	if err != nil {
		return nil, err
	}

	lease.SerialNumber = serial
	lease.VerificationHash = s.keys.VerificationHash(lease)

	if err := s.leases.AssignSerial(ctx, leaseID, serial, lease.VerificationHash); err != nil {
		return nil, err
	}

	log.Info().
		Str("lease_id", leaseID.String()).
		Str("serial", serial).
		Msg("Serial number assigned")
	return lease, nil
}

// GenerateVerificationHash recomputes the keyed digest for the lease.
func (s *VerificationService) GenerateVerificationHash(lease *model.Lease) string {
	return s.keys.VerificationHash(lease)
}

// VerifyHash checks a candidate digest against the lease's identity fields.
func (s *VerificationService) VerifyHash(lease *model.Lease, candidate string) bool {
	return s.keys.VerifyHash(lease, candidate)
}

// VerifyPublic resolves serialOrReference, checks the candidate hash and,
// when genuine, returns the public-safe projection. A miss on either lookup
// or hash yields (nil, false) with no error so callers cannot distinguish
// "no such lease" from "wrong hash".
func (s *VerificationService) VerifyPublic(ctx context.Context, serialOrReference, candidate string) (*PublicLeaseFacts, bool, error) {
	lease, err := s.leases.GetBySerial(ctx, serialOrReference)
	if err != nil {
		return nil, false, err
	}
	if lease == nil {
		lease, err = s.leases.GetByReference(ctx, serialOrReference)
		if err != nil {
			return nil, false, err
		}
	}
	if lease == nil || lease.SerialNumber == "" {
		return nil, false, nil
	}

	if !s.keys.VerifyHash(lease, candidate) {
		return nil, false, nil
	}

	return &PublicLeaseFacts{
		SerialNumber: lease.SerialNumber,
		StateLabel:   lease.WorkflowState.Label(),
		Phase:        string(lease.WorkflowState.Phase()),
		StartDate:    lease.StartDate,
		EndDate:      lease.EndDate,
		UnitLabel:    lease.UnitLabel,
	}, true, nil
}
