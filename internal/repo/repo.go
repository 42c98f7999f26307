package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/infolock/server/internal/model"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// LockoutPolicy drives the atomic failed-attempt update
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// FailedAttempt is the outcome of RecordFailedAttempt. AlreadyLocked reports
// a lock that was in force before the attempt; such an attempt is not counted.
type FailedAttempt struct {
	Lockout       model.Lockout
	AlreadyLocked bool
}

// PrincipalRepo defines the record store for users and admins.
// RecordFailedAttempt and ResetLockout must be single atomic updates.
type PrincipalRepo interface {
	Create(ctx context.Context, p model.Principal) (model.Principal, error)
	FindByIdentity(ctx context.Context, kind model.PrincipalKind, identity string) (model.Principal, error)
	FindByRef(ctx context.Context, ref model.OwnerRef) (model.Principal, error)
	RecordFailedAttempt(ctx context.Context, ref model.OwnerRef, policy LockoutPolicy, now time.Time) (FailedAttempt, error)
	ResetLockout(ctx context.Context, ref model.OwnerRef, lastLogin *time.Time) error
	SetVerificationToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error
	ConsumeVerificationToken(ctx context.Context, tokenHash string, now time.Time) (model.Principal, error)
}

// OtpRepo defines the record store for one-time codes.
// Consume is a conditional delete: exactly one caller observes true per record.
// ReserveAttempt increments the attempt counter only while it is below limit,
// in a single atomic step; it reports false once the record is exhausted or gone.
type OtpRepo interface {
	Insert(ctx context.Context, rec model.OtpRecord, replaceExisting bool) error
	LatestActive(ctx context.Context, owner model.OwnerRef, now time.Time) (model.OtpRecord, error)
	Consume(ctx context.Context, rec model.OtpRecord) (bool, error)
	ReserveAttempt(ctx context.Context, rec model.OtpRecord, limit int) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ActivityRepo is the append-only audit sink
type ActivityRepo interface {
	Record(ctx context.Context, entry model.ActivityEntry) error
}

// nextLockout applies the failed-attempt rules to a snapshot. The Postgres
// implementation expresses the same rules in a single UPDATE. A lock still in
// force only records the attempt time.
func nextLockout(cur model.Lockout, policy LockoutPolicy, now time.Time) model.Lockout {
	next := cur
	t := now
	next.LastAttempt = &t
	if cur.LockedAt(now) {
		return next
	}

	if cur.IsLocked && cur.LockUntil != nil && !cur.LockUntil.After(now) {
		next.AttemptCount = 1
		next.IsLocked = false
		next.LockUntil = nil
	} else {
		next.AttemptCount = cur.AttemptCount + 1
	}
	if next.AttemptCount >= policy.Threshold {
		until := now.Add(policy.Duration)
		next.IsLocked = true
		next.LockUntil = &until
	}
	return next
}
