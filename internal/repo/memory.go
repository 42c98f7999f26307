package repo

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/infolock/server/internal/model"
)

// In-memory stores back DEV_MODE without a database and the unit tests.
// Each method holds the store mutex for its whole read-modify-write.

type memoryPrincipal struct {
	p                 model.Principal
	verifyTokenHash   string
	verifyTokenExpiry time.Time
}

// MemoryPrincipalRepo is a PrincipalRepo kept in process memory
type MemoryPrincipalRepo struct {
	mu    sync.Mutex
	byRef map[model.OwnerRef]*memoryPrincipal
}

var _ PrincipalRepo = (*MemoryPrincipalRepo)(nil)

// NewMemoryPrincipalRepo creates an empty in-memory principal store
func NewMemoryPrincipalRepo() *MemoryPrincipalRepo {
	return &MemoryPrincipalRepo{byRef: make(map[model.OwnerRef]*memoryPrincipal)}
}

func (r *MemoryPrincipalRepo) Create(ctx context.Context, p model.Principal) (model.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.byRef {
		if existing.p.Kind != p.Kind {
			continue
		}
		if strings.EqualFold(existing.p.Identity, p.Identity) {
			return model.Principal{}, ErrDuplicate
		}
		if p.Kind == model.KindAdmin && strings.EqualFold(existing.p.Email, p.Email) {
			return model.Principal{}, ErrDuplicate
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	r.byRef[p.Ref()] = &memoryPrincipal{p: p}
	return p, nil
}

func (r *MemoryPrincipalRepo) FindByIdentity(ctx context.Context, kind model.PrincipalKind, identity string) (model.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, mp := range r.byRef {
		if mp.p.Kind == kind && strings.EqualFold(mp.p.Identity, identity) {
			return mp.p, nil
		}
	}
	return model.Principal{}, ErrNotFound
}

func (r *MemoryPrincipalRepo) FindByRef(ctx context.Context, ref model.OwnerRef) (model.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	mp, ok := r.byRef[ref]
	if !ok {
		return model.Principal{}, ErrNotFound
	}
	return mp.p, nil
}

func (r *MemoryPrincipalRepo) RecordFailedAttempt(ctx context.Context, ref model.OwnerRef, policy LockoutPolicy, now time.Time) (FailedAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	mp, ok := r.byRef[ref]
	if !ok {
		return FailedAttempt{}, ErrNotFound
	}
	wasLocked := mp.p.Lockout.LockedAt(now)
	mp.p.Lockout = nextLockout(mp.p.Lockout, policy, now)
	return FailedAttempt{Lockout: mp.p.Lockout, AlreadyLocked: wasLocked}, nil
}

func (r *MemoryPrincipalRepo) ResetLockout(ctx context.Context, ref model.OwnerRef, lastLogin *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	mp, ok := r.byRef[ref]
	if !ok {
		return ErrNotFound
	}
	mp.p.Lockout = model.Lockout{}
	if lastLogin != nil {
		t := *lastLogin
		mp.p.LastLogin = &t
	}
	return nil
}

func (r *MemoryPrincipalRepo) SetVerificationToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	mp, ok := r.byRef[model.OwnerRef{Kind: model.KindUser, ID: userID}]
	if !ok {
		return ErrNotFound
	}
	mp.verifyTokenHash = tokenHash
	mp.verifyTokenExpiry = expiresAt
	return nil
}

func (r *MemoryPrincipalRepo) ConsumeVerificationToken(ctx context.Context, tokenHash string, now time.Time) (model.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, mp := range r.byRef {
		if mp.p.Kind != model.KindUser || mp.p.IsVerified || mp.verifyTokenHash == "" {
			continue
		}
		if mp.verifyTokenHash == tokenHash && mp.verifyTokenExpiry.After(now) {
			mp.p.IsVerified = true
			mp.verifyTokenHash = ""
			mp.verifyTokenExpiry = time.Time{}
			return mp.p, nil
		}
	}
	return model.Principal{}, ErrNotFound
}

type memoryOtp struct {
	rec model.OtpRecord
	seq int64
}

// MemoryOtpRepo is an OtpRepo kept in process memory
type MemoryOtpRepo struct {
	mu      sync.Mutex
	seq     int64
	records map[uuid.UUID]*memoryOtp
}

var _ OtpRepo = (*MemoryOtpRepo)(nil)

// NewMemoryOtpRepo creates an empty in-memory OTP store
func NewMemoryOtpRepo() *MemoryOtpRepo {
	return &MemoryOtpRepo{records: make(map[uuid.UUID]*memoryOtp)}
}

func (r *MemoryOtpRepo) Insert(ctx context.Context, rec model.OtpRecord, replaceExisting bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if replaceExisting {
		for id, mo := range r.records {
			if mo.rec.Owner == rec.Owner {
				delete(r.records, id)
			}
		}
	}
	r.seq++
	r.records[rec.ID] = &memoryOtp{rec: rec, seq: r.seq}
	return nil
}

func (r *MemoryOtpRepo) LatestActive(ctx context.Context, owner model.OwnerRef, now time.Time) (model.OtpRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *memoryOtp
	for _, mo := range r.records {
		if mo.rec.Owner != owner || !mo.rec.ExpiresAt.After(now) {
			continue
		}
		if best == nil ||
			mo.rec.CreatedAt.After(best.rec.CreatedAt) ||
			(mo.rec.CreatedAt.Equal(best.rec.CreatedAt) && mo.seq > best.seq) {
			best = mo
		}
	}
	if best == nil {
		return model.OtpRecord{}, ErrNotFound
	}
	return best.rec, nil
}

func (r *MemoryOtpRepo) Consume(ctx context.Context, rec model.OtpRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[rec.ID]; !ok {
		return false, nil
	}
	delete(r.records, rec.ID)
	return true, nil
}

func (r *MemoryOtpRepo) ReserveAttempt(ctx context.Context, rec model.OtpRecord, limit int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	mo, ok := r.records[rec.ID]
	if !ok || mo.rec.AttemptCount >= limit {
		return false, nil
	}
	mo.rec.AttemptCount++
	return true, nil
}

func (r *MemoryOtpRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, mo := range r.records {
		if !mo.rec.ExpiresAt.After(now) {
			delete(r.records, id)
			n++
		}
	}
	return n, nil
}

// Count returns the number of stored records for owner, expired or not
func (r *MemoryOtpRepo) Count(owner model.OwnerRef) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, mo := range r.records {
		if mo.rec.Owner == owner {
			n++
		}
	}
	return n
}

// MemoryActivityRepo is an ActivityRepo kept in process memory
type MemoryActivityRepo struct {
	mu      sync.Mutex
	entries []model.ActivityEntry
}

var _ ActivityRepo = (*MemoryActivityRepo)(nil)

func NewMemoryActivityRepo() *MemoryActivityRepo {
	return &MemoryActivityRepo{}
}

func (r *MemoryActivityRepo) Record(ctx context.Context, entry model.ActivityEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, entry)
	return nil
}

// Entries returns a copy of everything recorded so far
func (r *MemoryActivityRepo) Entries() []model.ActivityEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.ActivityEntry, len(r.entries))
	copy(out, r.entries)
	return out
}
