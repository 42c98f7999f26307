package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/infolock/server/internal/model"
)

type otpRepo struct {
	db *sql.DB
}

// NewOtpRepo creates an OtpRepo backed by the otp_records table
func NewOtpRepo(db *sql.DB) OtpRepo {
	return &otpRepo{db: db}
}

// Insert stores a new record. With replaceExisting, every prior record of the
// owner is removed in the same transaction. Uses an advisory lock per owner so
// concurrent issues serialize.
func (r *otpRepo) Insert(ctx context.Context, rec model.OtpRecord, replaceExisting bool) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(1, hashtext($1))`, rec.Owner.String())
	if err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}

	if replaceExisting {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM otp_records
			WHERE owner_kind = $1 AND owner_id = $2
		`, string(rec.Owner.Kind), rec.Owner.ID)
		if err != nil {
			return fmt.Errorf("delete existing records: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO otp_records (id, owner_kind, owner_id, code_hash, attempt_count, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, string(rec.Owner.Kind), rec.Owner.ID, rec.CodeHash, rec.AttemptCount, rec.ExpiresAt, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LatestActive returns the newest unexpired record for the owner. Records
// created in the same instant are ordered by insertion sequence.
func (r *otpRepo) LatestActive(ctx context.Context, owner model.OwnerRef, now time.Time) (model.OtpRecord, error) {
	query := `
		SELECT id, owner_kind, owner_id, code_hash, attempt_count, expires_at, created_at
		FROM otp_records
		WHERE owner_kind = $1
		  AND owner_id = $2
		  AND expires_at > $3
		ORDER BY created_at DESC, seq DESC
		LIMIT 1
	`
	var rec model.OtpRecord
	var kind string
	err := r.db.QueryRowContext(ctx, query, string(owner.Kind), owner.ID, now).Scan(
		&rec.ID,
		&kind,
		&rec.Owner.ID,
		&rec.CodeHash,
		&rec.AttemptCount,
		&rec.ExpiresAt,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.OtpRecord{}, ErrNotFound
		}
		return model.OtpRecord{}, fmt.Errorf("query record: %w", err)
	}
	rec.Owner.Kind = model.PrincipalKind(kind)
	return rec, nil
}

// Consume deletes the record; only the caller whose DELETE hit a row wins
func (r *otpRepo) Consume(ctx context.Context, rec model.OtpRecord) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM otp_records WHERE id = $1`, rec.ID)
	if err != nil {
		return false, fmt.Errorf("consume record: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume record: %w", err)
	}
	return n == 1, nil
}

// ReserveAttempt bumps attempt_count only while it is below limit; the row lock
// taken by the UPDATE serialises concurrent reservations
func (r *otpRepo) ReserveAttempt(ctx context.Context, rec model.OtpRecord, limit int) (bool, error) {
	var newCount int
	err := r.db.QueryRowContext(ctx, `
		UPDATE otp_records
		SET attempt_count = attempt_count + 1
		WHERE id = $1 AND attempt_count < $2
		RETURNING attempt_count
	`, rec.ID, limit).Scan(&newCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("reserve attempt: %w", err)
	}
	return true, nil
}

// DeleteExpired removes records whose expiry has passed
func (r *otpRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM otp_records WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
