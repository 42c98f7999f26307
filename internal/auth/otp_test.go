package auth

import (
	"context"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/infolock/server/internal/model"
	"github.com/infolock/server/internal/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestOtp(t *testing.T, invalidate bool, codes ...string) (*OtpManager, *repo.MemoryOtpRepo, *testClock) {
	t.Helper()
	clock := newTestClock()
	store := repo.NewMemoryOtpRepo()
	m := NewOtpManager(store, NewBcryptHasher(bcrypt.MinCost), OtpConfig{
		TTL:                 5 * time.Minute,
		MaxAttempts:         5,
		InvalidateOnReissue: invalidate,
	})
	m.now = clock.Now
	if len(codes) > 0 {
		next := 0
		m.generate = func() (string, error) {
			c := codes[next%len(codes)]
			next++
			return c, nil
		}
	}
	return m, store, clock
}

func newOwner() model.OwnerRef {
	return model.OwnerRef{Kind: model.KindUser, ID: uuid.New()}
}

func TestGenerateOTPCode(t *testing.T) {
	six := regexp.MustCompile(`^[0-9]{6}$`)
	for i := 0; i < 500; i++ {
		code, err := generateOTPCode()
		require.NoError(t, err)
		require.Regexp(t, six, code)
	}
}

func TestOtpManager_LeadingZerosPreserved(t *testing.T) {
	m, _, _ := newTestOtp(t, true, "042913")
	ctx := context.Background()
	owner := newOwner()

	code, err := m.Issue(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "042913", code)

	outcome, err := m.Check(ctx, owner, "042914")
	require.NoError(t, err)
	assert.Equal(t, OtpInvalid, outcome)

	outcome, err = m.Check(ctx, owner, "42913")
	require.NoError(t, err)
	assert.Equal(t, OtpInvalid, outcome)

	ok, err := m.Verify(ctx, owner, "042913")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOtpManager_SingleUse(t *testing.T) {
	m, store, _ := newTestOtp(t, true)
	ctx := context.Background()
	owner := newOwner()

	code, err := m.Issue(ctx, owner)
	require.NoError(t, err)

	ok, err := m.Verify(ctx, owner, code)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Zero(t, store.Count(owner))

	ok, err = m.Verify(ctx, owner, code)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOtpManager_Expiry(t *testing.T) {
	m, _, clock := newTestOtp(t, true)
	ctx := context.Background()
	owner := newOwner()

	code, err := m.Issue(ctx, owner)
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	outcome, err := m.Check(ctx, owner, code)
	require.NoError(t, err)
	assert.Equal(t, OtpNoActiveCode, outcome)
}

func TestOtpManager_MismatchKeepsCodeUsable(t *testing.T) {
	m, store, _ := newTestOtp(t, true, "111111")
	ctx := context.Background()
	owner := newOwner()

	_, err := m.Issue(ctx, owner)
	require.NoError(t, err)

	ok, err := m.Verify(ctx, owner, "222222")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, store.Count(owner), "a wrong code must not delete the record")

	ok, err = m.Verify(ctx, owner, "111111")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOtpManager_AttemptsExhausted(t *testing.T) {
	m, _, _ := newTestOtp(t, true, "111111")
	ctx := context.Background()
	owner := newOwner()

	_, err := m.Issue(ctx, owner)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		outcome, err := m.Check(ctx, owner, "000000")
		require.NoError(t, err)
		require.Equal(t, OtpInvalid, outcome)
	}

	outcome, err := m.Check(ctx, owner, "111111")
	require.NoError(t, err)
	assert.Equal(t, OtpNoActiveCode, outcome)
}

func TestOtpManager_LastAttemptCanStillSucceed(t *testing.T) {
	m, _, _ := newTestOtp(t, true, "111111")
	ctx := context.Background()
	owner := newOwner()

	_, err := m.Issue(ctx, owner)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		outcome, err := m.Check(ctx, owner, "000000")
		require.NoError(t, err)
		require.Equal(t, OtpInvalid, outcome)
	}
	outcome, err := m.Check(ctx, owner, "111111")
	require.NoError(t, err)
	assert.Equal(t, OtpValid, outcome)
}

// slowHasher stands in for a production bcrypt cost so concurrent checks overlap
type slowHasher struct {
	inner    PasswordHasher
	delay    time.Duration
	compares atomic.Int64
}

func (h *slowHasher) Hash(secret string) (string, error) { return h.inner.Hash(secret) }

func (h *slowHasher) Compare(hash, secret string) bool {
	h.compares.Add(1)
	time.Sleep(h.delay)
	return h.inner.Compare(hash, secret)
}

func TestOtpManager_ConcurrentGuessesBoundedByMaxAttempts(t *testing.T) {
	store := repo.NewMemoryOtpRepo()
	hasher := &slowHasher{inner: NewBcryptHasher(bcrypt.MinCost), delay: 50 * time.Millisecond}
	m := NewOtpManager(store, hasher, OtpConfig{TTL: 5 * time.Minute, MaxAttempts: 5, InvalidateOnReissue: true})
	m.generate = func() (string, error) { return "111111", nil }
	ctx := context.Background()
	owner := newOwner()

	_, err := m.Issue(ctx, owner)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var invalid, noCode atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := m.Check(ctx, owner, "000000")
			assert.NoError(t, err)
			switch outcome {
			case OtpInvalid:
				invalid.Add(1)
			case OtpNoActiveCode:
				noCode.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 5, hasher.compares.Load(), "only reserved attempts reach the hash")
	assert.EqualValues(t, 5, invalid.Load())
	assert.EqualValues(t, 45, noCode.Load())

	outcome, err := m.Check(ctx, owner, "111111")
	require.NoError(t, err)
	assert.Equal(t, OtpNoActiveCode, outcome, "the right code is refused once the challenge is spent")
}

func TestOtpManager_NewestCodeWins(t *testing.T) {
	m, store, clock := newTestOtp(t, false, "111111", "222222")
	ctx := context.Background()
	owner := newOwner()

	_, err := m.Issue(ctx, owner)
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = m.Issue(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 2, store.Count(owner))

	ok, err := m.Verify(ctx, owner, "111111")
	require.NoError(t, err)
	assert.False(t, ok, "older code is not honored")

	ok, err = m.Verify(ctx, owner, "222222")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOtpManager_ReissueInvalidatesPrior(t *testing.T) {
	m, store, _ := newTestOtp(t, true, "111111", "222222")
	ctx := context.Background()
	owner := newOwner()

	_, err := m.Issue(ctx, owner)
	require.NoError(t, err)
	_, err = m.Issue(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Count(owner))
}

func TestOtpManager_Sweep(t *testing.T) {
	m, store, clock := newTestOtp(t, false)
	ctx := context.Background()
	owner := newOwner()

	_, err := m.Issue(ctx, owner)
	require.NoError(t, err)
	clock.Advance(10 * time.Minute)

	n, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Zero(t, store.Count(owner))
}
