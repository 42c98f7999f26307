package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/infolock/server/internal/model"
	"github.com/infolock/server/internal/repo"
)

const otpDigits = 6

var otpSpace = big.NewInt(1_000_000)

// OtpOutcome is the result of checking a presented code
type OtpOutcome int

const (
	OtpValid OtpOutcome = iota
	OtpInvalid
	OtpNoActiveCode
)

// OtpConfig holds the challenge policy
type OtpConfig struct {
	TTL                 time.Duration
	MaxAttempts         int
	InvalidateOnReissue bool
}

// OtpManager issues and verifies single-use numeric codes. Only a bcrypt hash
// of each code is stored.
type OtpManager struct {
	repo   repo.OtpRepo
	hasher PasswordHasher
	cfg    OtpConfig
	now    func() time.Time
	// generate is replaced in tests
	generate func() (string, error)
}

func NewOtpManager(otpRepo repo.OtpRepo, hasher PasswordHasher, cfg OtpConfig) *OtpManager {
	return &OtpManager{
		repo:     otpRepo,
		hasher:   hasher,
		cfg:      cfg,
		now:      time.Now,
		generate: generateOTPCode,
	}
}

// TTL is the validity window of issued codes
func (m *OtpManager) TTL() time.Duration {
	return m.cfg.TTL
}

// Issue creates a new challenge for owner and returns the plaintext code for delivery
func (m *OtpManager) Issue(ctx context.Context, owner model.OwnerRef) (string, error) {
	code, err := m.generate()
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	hash, err := m.hasher.Hash(code)
	if err != nil {
		return "", err
	}

	now := m.now().UTC()
	rec := model.OtpRecord{
		ID:        uuid.New(),
		Owner:     owner,
		CodeHash:  hash,
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.TTL),
	}
	if err := m.repo.Insert(ctx, rec, m.cfg.InvalidateOnReissue); err != nil {
		return "", fmt.Errorf("store code: %w", err)
	}
	return code, nil
}

// Check compares code against the newest unexpired challenge. Every
// comparison first reserves one of the challenge's attempts in the store, so
// at most MaxAttempts codes are ever compared per challenge, however many
// requests run at once. A match consumes the record. A challenge that has used
// up its attempts is treated as absent.
func (m *OtpManager) Check(ctx context.Context, owner model.OwnerRef, code string) (OtpOutcome, error) {
	rec, err := m.repo.LatestActive(ctx, owner, m.now().UTC())
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return OtpNoActiveCode, nil
		}
		return OtpInvalid, fmt.Errorf("load code: %w", err)
	}
	if m.cfg.MaxAttempts > 0 {
		if rec.AttemptCount >= m.cfg.MaxAttempts {
			return OtpNoActiveCode, nil
		}
		reserved, err := m.repo.ReserveAttempt(ctx, rec, m.cfg.MaxAttempts)
		if err != nil {
			return OtpInvalid, fmt.Errorf("reserve attempt: %w", err)
		}
		if !reserved {
			// exhausted or consumed by a concurrent request
			return OtpNoActiveCode, nil
		}
	}

	if !m.hasher.Compare(rec.CodeHash, code) {
		return OtpInvalid, nil
	}

	consumed, err := m.repo.Consume(ctx, rec)
	if err != nil {
		return OtpInvalid, fmt.Errorf("consume code: %w", err)
	}
	if !consumed {
		// a concurrent verification won
		return OtpInvalid, nil
	}
	return OtpValid, nil
}

// Verify is Check collapsed to a boolean
func (m *OtpManager) Verify(ctx context.Context, owner model.OwnerRef, code string) (bool, error) {
	outcome, err := m.Check(ctx, owner, code)
	return outcome == OtpValid, err
}

// Sweep removes expired records from stores without native TTL
func (m *OtpManager) Sweep(ctx context.Context) (int64, error) {
	return m.repo.DeleteExpired(ctx, m.now().UTC())
}

func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, otpSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}
