package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/infolock/server/internal/model"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

type principalRepo struct {
	db *sql.DB
}

// NewPrincipalRepo creates a PrincipalRepo backed by the users and admins tables
func NewPrincipalRepo(db *sql.DB) PrincipalRepo {
	return &principalRepo{db: db}
}

// tableFor maps a kind onto its table. The result is interpolated into SQL,
// so only the closed set below may be returned.
func tableFor(kind model.PrincipalKind) (string, error) {
	switch kind {
	case model.KindUser:
		return "users", nil
	case model.KindAdmin:
		return "admins", nil
	}
	return "", fmt.Errorf("unknown principal kind %q", kind)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

const userColumns = `id, email, name, phone, password_hash, is_verified,
	attempt_count, last_attempt, is_locked, lock_until, last_login, created_at`

const adminColumns = `id, username, email, role, password_hash,
	attempt_count, last_attempt, is_locked, lock_until, last_login, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (model.Principal, error) {
	p := model.Principal{Kind: model.KindUser, Role: model.RoleUser}
	var phone sql.NullString
	err := row.Scan(
		&p.ID,
		&p.Email,
		&p.Name,
		&phone,
		&p.PasswordHash,
		&p.IsVerified,
		&p.Lockout.AttemptCount,
		&p.Lockout.LastAttempt,
		&p.Lockout.IsLocked,
		&p.Lockout.LockUntil,
		&p.LastLogin,
		&p.CreatedAt,
	)
	if err != nil {
		return model.Principal{}, err
	}
	p.Identity = p.Email
	p.Phone = phone.String
	return p, nil
}

func scanAdmin(row rowScanner) (model.Principal, error) {
	p := model.Principal{Kind: model.KindAdmin, IsVerified: true}
	var role string
	err := row.Scan(
		&p.ID,
		&p.Identity,
		&p.Email,
		&role,
		&p.PasswordHash,
		&p.Lockout.AttemptCount,
		&p.Lockout.LastAttempt,
		&p.Lockout.IsLocked,
		&p.Lockout.LockUntil,
		&p.LastLogin,
		&p.CreatedAt,
	)
	if err != nil {
		return model.Principal{}, err
	}
	p.Role = model.Role(role)
	return p, nil
}

func scanPrincipal(kind model.PrincipalKind, row rowScanner) (model.Principal, error) {
	if kind == model.KindAdmin {
		return scanAdmin(row)
	}
	return scanUser(row)
}

func columnsFor(kind model.PrincipalKind) string {
	if kind == model.KindAdmin {
		return adminColumns
	}
	return userColumns
}

// Create inserts a new principal; identity and email are stored lowercased
func (r *principalRepo) Create(ctx context.Context, p model.Principal) (model.Principal, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))

	var row *sql.Row
	switch p.Kind {
	case model.KindUser:
		p.Identity = p.Email
		row = r.db.QueryRowContext(ctx, `
			INSERT INTO users (id, email, name, phone, password_hash, is_verified)
			VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
			RETURNING `+userColumns,
			p.ID, p.Email, p.Name, p.Phone, p.PasswordHash, p.IsVerified)
	case model.KindAdmin:
		p.Identity = strings.ToLower(strings.TrimSpace(p.Identity))
		row = r.db.QueryRowContext(ctx, `
			INSERT INTO admins (id, username, email, role, password_hash)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+adminColumns,
			p.ID, p.Identity, p.Email, string(p.Role), p.PasswordHash)
	default:
		return model.Principal{}, fmt.Errorf("unknown principal kind %q", p.Kind)
	}

	created, err := scanPrincipal(p.Kind, row)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Principal{}, ErrDuplicate
		}
		return model.Principal{}, fmt.Errorf("failed to insert %s: %w", p.Kind, err)
	}
	return created, nil
}

// FindByIdentity looks up a user by email or an admin by username
func (r *principalRepo) FindByIdentity(ctx context.Context, kind model.PrincipalKind, identity string) (model.Principal, error) {
	table, err := tableFor(kind)
	if err != nil {
		return model.Principal{}, err
	}
	column := "email"
	if kind == model.KindAdmin {
		column = "username"
	}

	query := `SELECT ` + columnsFor(kind) + ` FROM ` + table + ` WHERE ` + column + ` = $1`
	p, err := scanPrincipal(kind, r.db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(identity))))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Principal{}, ErrNotFound
		}
		return model.Principal{}, fmt.Errorf("failed to query %s: %w", kind, err)
	}
	return p, nil
}

func (r *principalRepo) FindByRef(ctx context.Context, ref model.OwnerRef) (model.Principal, error) {
	table, err := tableFor(ref.Kind)
	if err != nil {
		return model.Principal{}, err
	}

	query := `SELECT ` + columnsFor(ref.Kind) + ` FROM ` + table + ` WHERE id = $1`
	p, err := scanPrincipal(ref.Kind, r.db.QueryRowContext(ctx, query, ref.ID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Principal{}, ErrNotFound
		}
		return model.Principal{}, fmt.Errorf("failed to query %s: %w", ref.Kind, err)
	}
	return p, nil
}

// RecordFailedAttempt increments the counter and applies the lock in one statement.
// An expired lock restarts the counter at 1; a lock still in force is left as is
// and reported through AlreadyLocked.
func (r *principalRepo) RecordFailedAttempt(ctx context.Context, ref model.OwnerRef, policy LockoutPolicy, now time.Time) (FailedAttempt, error) {
	table, err := tableFor(ref.Kind)
	if err != nil {
		return FailedAttempt{}, err
	}

	query := `
		WITH next AS (
			SELECT id,
			       CASE
			           WHEN is_locked AND lock_until > $2 THEN attempt_count
			           WHEN is_locked AND lock_until <= $2 THEN 1
			           ELSE attempt_count + 1
			       END AS cnt,
			       (is_locked AND lock_until > $2) AS still_locked,
			       lock_until AS cur_until
			FROM ` + table + `
			WHERE id = $1
			FOR UPDATE
		)
		UPDATE ` + table + ` t
		SET attempt_count = next.cnt,
		    last_attempt = $2,
		    is_locked = next.still_locked OR next.cnt >= $3,
		    lock_until = CASE
		        WHEN next.still_locked THEN next.cur_until
		        WHEN next.cnt >= $3 THEN $4::timestamptz
		        ELSE NULL
		    END
		FROM next
		WHERE t.id = next.id
		RETURNING t.attempt_count, t.last_attempt, t.is_locked, t.lock_until, next.still_locked
	`
	var res FailedAttempt
	err = r.db.QueryRowContext(ctx, query, ref.ID, now, policy.Threshold, now.Add(policy.Duration)).Scan(
		&res.Lockout.AttemptCount,
		&res.Lockout.LastAttempt,
		&res.Lockout.IsLocked,
		&res.Lockout.LockUntil,
		&res.AlreadyLocked,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FailedAttempt{}, ErrNotFound
		}
		return FailedAttempt{}, fmt.Errorf("record failed attempt: %w", err)
	}
	return res, nil
}

// ResetLockout clears the counters and lock, and sets last_login when given
func (r *principalRepo) ResetLockout(ctx context.Context, ref model.OwnerRef, lastLogin *time.Time) error {
	table, err := tableFor(ref.Kind)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE `+table+`
		SET attempt_count = 0,
		    last_attempt = NULL,
		    is_locked = FALSE,
		    lock_until = NULL,
		    last_login = COALESCE($2, last_login)
		WHERE id = $1
	`, ref.ID, lastLogin)
	if err != nil {
		return fmt.Errorf("reset lockout: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *principalRepo) SetVerificationToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET verification_token_hash = $2, verification_expires_at = $3
		WHERE id = $1
	`, userID, tokenHash, expiresAt)
	if err != nil {
		return fmt.Errorf("set verification token: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ConsumeVerificationToken marks the owning user verified and clears the token.
// The conditional UPDATE makes a second use of the same token miss.
func (r *principalRepo) ConsumeVerificationToken(ctx context.Context, tokenHash string, now time.Time) (model.Principal, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET is_verified = TRUE,
		    verification_token_hash = NULL,
		    verification_expires_at = NULL
		WHERE verification_token_hash = $1
		  AND verification_expires_at > $2
		  AND NOT is_verified
		RETURNING `+userColumns,
		tokenHash, now)
	p, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Principal{}, ErrNotFound
		}
		return model.Principal{}, fmt.Errorf("consume verification token: %w", err)
	}
	return p, nil
}
