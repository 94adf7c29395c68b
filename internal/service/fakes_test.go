package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Stan-Mash/lease-management-system-sub002/internal/model"
	"github.com/Stan-Mash/lease-management-system-sub002/internal/store"
)

// In-memory store fakes mirroring the repositories' row-level semantics,
// including the compare-and-swap writes and the issuance window check.

type fakeLeaseStore struct {
	mu      sync.Mutex
	leases  map[uuid.UUID]*model.Lease
	serials map[int]int64
}

func newFakeLeaseStore() *fakeLeaseStore {
	return &fakeLeaseStore{
		leases:  make(map[uuid.UUID]*model.Lease),
		serials: make(map[int]int64),
	}
}

func (f *fakeLeaseStore) Create(ctx context.Context, lease *model.Lease) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	lease.ID = uuid.New()
	lease.WorkflowState = model.StateDraft
	lease.Version = 1
	lease.CreatedAt = time.Now()
	lease.UpdatedAt = lease.CreatedAt
	cp := *lease
	f.leases[lease.ID] = &cp
	return nil
}

func (f *fakeLeaseStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Lease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lease, ok := f.leases[id]
	if !ok {
		return nil, nil
	}
	cp := *lease
	return &cp, nil
}

func (f *fakeLeaseStore) GetBySerial(ctx context.Context, serial string) (*model.Lease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, lease := range f.leases {
		if lease.SerialNumber == serial && serial != "" {
			cp := *lease
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeLeaseStore) GetByReference(ctx context.Context, ref string) (*model.Lease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, lease := range f.leases {
		if lease.ReferenceNumber == ref {
			cp := *lease
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeLeaseStore) UpdateState(ctx context.Context, id uuid.UUID, from, to model.WorkflowState, expectedVersion int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	lease, ok := f.leases[id]
	if !ok || lease.WorkflowState != from || lease.Version != expectedVersion {
		return store.ErrStaleVersion
	}
	lease.WorkflowState = to
	lease.Version++
	lease.UpdatedAt = time.Now()
	return nil
}

func (f *fakeLeaseStore) AssignSerial(ctx context.Context, id uuid.UUID, serial, verificationHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	lease, ok := f.leases[id]
	if !ok || lease.SerialNumber != "" {
		return store.ErrDuplicate
	}
	lease.SerialNumber = serial
	lease.VerificationHash = verificationHash
	return nil
}

func (f *fakeLeaseStore) AttachSignature(ctx context.Context, id, signatureRecordID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	lease, ok := f.leases[id]
	if !ok || lease.SignatureRecordID != nil {
		return store.ErrDuplicate
	}
	lease.SignatureRecordID = &signatureRecordID
	return nil
}

func (f *fakeLeaseStore) NextSerialValue(ctx context.Context, prefix string, year int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.serials[year]++
	return f.serials[year], nil
}

func (f *fakeLeaseStore) SerialExists(ctx context.Context, serial string) (bool, error) {
	lease, err := f.GetBySerial(ctx, serial)
	return lease != nil, err
}

type fakeOTPStore struct {
	mu         sync.Mutex
	challenges []*model.OTPChallenge
	// referencedFn lets tests mark challenges as referenced by a
	// signature record so cleanup keeps them.
	referencedFn func(uuid.UUID) bool
}

func newFakeOTPStore() *fakeOTPStore {
	return &fakeOTPStore{}
}

func (f *fakeOTPStore) Issue(ctx context.Context, ch *model.OTPChallenge, windowStart time.Time, maxInWindow int, supersede bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	issued := 0
	for _, existing := range f.challenges {
		if existing.LeaseID == ch.LeaseID && existing.SentAt.After(windowStart) {
			issued++
		}
	}
	if maxInWindow > 0 && issued >= maxInWindow {
		return store.ErrRateLimited
	}

	if supersede {
		at := ch.SentAt
		for _, existing := range f.challenges {
			if existing.LeaseID == ch.LeaseID && existing.Purpose == ch.Purpose &&
				!existing.IsVerified && existing.SupersededAt == nil {
				existing.SupersededAt = &at
			}
		}
	}

	ch.ID = uuid.New()
	cp := *ch
	f.challenges = append(f.challenges, &cp)
	return nil
}

func (f *fakeOTPStore) GetLive(ctx context.Context, leaseID uuid.UUID, purpose string, now time.Time) (*model.OTPChallenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *model.OTPChallenge
	for _, ch := range f.challenges {
		if ch.LeaseID == leaseID && ch.Purpose == purpose && ch.IsLive(now) {
			if latest == nil || ch.SentAt.After(latest.SentAt) {
				latest = ch
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeOTPStore) MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.challenges {
		if ch.ID == id && !ch.IsVerified && ch.SupersededAt == nil {
			ch.IsVerified = true
			verifiedAt := at
			ch.VerifiedAt = &verifiedAt
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeOTPStore) GetVerified(ctx context.Context, leaseID uuid.UUID, purpose string) (*model.OTPChallenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *model.OTPChallenge
	for _, ch := range f.challenges {
		if ch.LeaseID == leaseID && ch.Purpose == purpose && ch.IsVerified {
			if latest == nil || (ch.VerifiedAt != nil && latest.VerifiedAt != nil && ch.VerifiedAt.After(*latest.VerifiedAt)) {
				latest = ch
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeOTPStore) CountSince(ctx context.Context, leaseID uuid.UUID, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, ch := range f.challenges {
		if ch.LeaseID == leaseID && ch.SentAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeOTPStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []*model.OTPChallenge
	var deleted int64
	for _, ch := range f.challenges {
		if ch.SentAt.Before(cutoff) && !f.referenced(ch.ID) {
			deleted++
			continue
		}
		kept = append(kept, ch)
	}
	f.challenges = kept
	return deleted, nil
}

func (f *fakeOTPStore) referenced(id uuid.UUID) bool {
	return f.referencedFn != nil && f.referencedFn(id)
}

type fakeSignatureStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*model.SignatureRecord // keyed by lease id
}

func newFakeSignatureStore() *fakeSignatureStore {
	return &fakeSignatureStore{records: make(map[uuid.UUID]*model.SignatureRecord)}
}

func (f *fakeSignatureStore) Create(ctx context.Context, rec *model.SignatureRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.records[rec.LeaseID]; exists {
		return store.ErrDuplicate
	}
	rec.ID = uuid.New()
	rec.CreatedAt = time.Now()
	cp := *rec
	f.records[rec.LeaseID] = &cp
	return nil
}

func (f *fakeSignatureStore) GetByLease(ctx context.Context, leaseID uuid.UUID) (*model.SignatureRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[leaseID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeSignatureStore) ExistsForLease(ctx context.Context, leaseID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.records[leaseID]
	return ok, nil
}

type fakeDocumentStore struct {
	mu      sync.Mutex
	docs    map[uuid.UUID]*model.Document
	entries []*model.DocumentAuditEntry
}

func newFakeDocumentStore() *fakeDocumentStore {
	return &fakeDocumentStore{docs: make(map[uuid.UUID]*model.Document)}
}

func (f *fakeDocumentStore) CreateDocument(ctx context.Context, doc *model.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc.ID = uuid.New()
	doc.Status = model.DocPendingReview
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = doc.CreatedAt
	cp := *doc
	f.docs[doc.ID] = &cp
	return nil
}

func (f *fakeDocumentStore) GetDocument(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *doc
	return &cp, nil
}

func (f *fakeDocumentStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.DocumentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok || doc.Status != from {
		return store.ErrStaleVersion
	}
	doc.Status = to
	doc.UpdatedAt = time.Now()
	return nil
}

func (f *fakeDocumentStore) AppendAudit(ctx context.Context, entry *model.DocumentAuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()
	cp := *entry
	f.entries = append(f.entries, &cp)
	return nil
}

func (f *fakeDocumentStore) ListAudit(ctx context.Context, documentID uuid.UUID) ([]*model.DocumentAuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.DocumentAuditEntry
	for _, entry := range f.entries {
		if entry.DocumentID == documentID {
			cp := *entry
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeDocumentStore) ListPendingReview(ctx context.Context, limit int) ([]*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Document
	for _, doc := range f.docs {
		if doc.Status == model.DocPendingReview && len(out) < limit {
			cp := *doc
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeDocumentStore) ListNeedingAttention(ctx context.Context, limit int) ([]*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	failed := make(map[uuid.UUID]bool)
	for _, entry := range f.entries {
		if entry.Category == model.CategoryIntegrity && entry.IntegrityVerified != nil {
			failed[entry.DocumentID] = !*entry.IntegrityVerified
		}
	}
	var out []*model.Document
	for id, isFailed := range failed {
		if isFailed && len(out) < limit {
			if doc, ok := f.docs[id]; ok {
				cp := *doc
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	sent     []string // phone numbers OTP codes were sent to
	events   []string
	sendErr  error
	lastCode string
}

func (f *fakeNotifier) SendOTP(ctx context.Context, phone, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, phone)
	f.lastCode = code
	return nil
}

func (f *fakeNotifier) Notify(ctx context.Context, event string, recipients []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

type fakeBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{blobs: make(map[string][]byte)}
}

func (f *fakeBlobStore) Store(data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := uuid.New().String()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.blobs[path] = cp
	return path, nil
}

func (f *fakeBlobStore) Read(path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[path]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (f *fakeBlobStore) Exists(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.blobs[path]
	return ok
}
