package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/infolock/server/internal/audit"
	"github.com/infolock/server/internal/model"
	"github.com/infolock/server/internal/notify"
	"github.com/infolock/server/internal/repo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	testTransitKey = "test-transit-key"
	testPepperKey  = "test-pepper-key"
	testJWTSecret  = "test-jwt-secret-at-least-32-characters-long"
	testClientURL  = "http://localhost:3000"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// countingHasher counts comparisons so tests can assert equal hashing work
type countingHasher struct {
	inner    PasswordHasher
	compares atomic.Int64
}

func (h *countingHasher) Hash(secret string) (string, error) { return h.inner.Hash(secret) }

func (h *countingHasher) Compare(hash, secret string) bool {
	h.compares.Add(1)
	return h.inner.Compare(hash, secret)
}

func (h *countingHasher) Compares() int64 { return h.compares.Load() }

type captureMailer struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (m *captureMailer) Send(_ context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.err
}

func (m *captureMailer) Last() notify.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return notify.Message{}
	}
	return m.sent[len(m.sent)-1]
}

func (m *captureMailer) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type stubCaptcha struct {
	ok  bool
	err error
}

func (c stubCaptcha) Verify(context.Context, string, string) (bool, error) { return c.ok, c.err }

type testEnv struct {
	svc        *Service
	principals *repo.MemoryPrincipalRepo
	otpRepo    *repo.MemoryOtpRepo
	activity   *repo.MemoryActivityRepo
	auditor    *audit.Auditor
	hasher     *countingHasher
	mailer     *captureMailer
	transit    *TransitDecryptor
	creds      *CredentialStore
	otp        *OtpManager
	tokens     *TokenIssuer
	clock      *testClock
}

var testClient = audit.Client{IP: "203.0.113.7", UserAgent: "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0"}

func newTestEnv(t *testing.T, captcha CaptchaVerifier) *testEnv {
	t.Helper()

	clock := newTestClock()
	principals := repo.NewMemoryPrincipalRepo()
	otpRepo := repo.NewMemoryOtpRepo()
	activity := repo.NewMemoryActivityRepo()
	auditor := audit.New(activity, nil, time.Second, zap.NewNop())
	hasher := &countingHasher{inner: NewBcryptHasher(bcrypt.MinCost)}
	mailer := &captureMailer{}
	transit := NewTransitDecryptor(testTransitKey)

	creds, err := NewCredentialStore(principals, NewPepper(testPepperKey), hasher)
	require.NoError(t, err)

	otp := NewOtpManager(otpRepo, hasher, OtpConfig{TTL: 5 * time.Minute, MaxAttempts: 5, InvalidateOnReissue: true})
	otp.now = clock.Now
	tokens := NewTokenIssuer(testJWTSecret, 2*time.Hour, time.Hour)
	tokens.now = clock.Now

	svc := NewService(Deps{
		Principals:           principals,
		Credentials:          creds,
		Transit:              transit,
		Otp:                  otp,
		Tokens:               tokens,
		Mailer:               mailer,
		Captcha:              captcha,
		Activity:             auditor,
		Log:                  zap.NewNop(),
		Lockout:              repo.LockoutPolicy{Threshold: 5, Duration: 30 * time.Minute},
		VerificationTokenTTL: 24 * time.Hour,
		ClientURL:            testClientURL,
		ExternalCallTimeout:  time.Second,
	})
	svc.now = clock.Now
	t.Cleanup(auditor.Wait)

	return &testEnv{
		svc:        svc,
		principals: principals,
		otpRepo:    otpRepo,
		activity:   activity,
		auditor:    auditor,
		hasher:     hasher,
		mailer:     mailer,
		transit:    transit,
		creds:      creds,
		otp:        otp,
		tokens:     tokens,
		clock:      clock,
	}
}

// encrypt mimics the browser client
func (e *testEnv) encrypt(t *testing.T, plaintext string) string {
	t.Helper()
	enc, err := e.transit.Encrypt(plaintext, []byte("12345678"))
	require.NoError(t, err)
	return enc
}

func (e *testEnv) createUser(t *testing.T, email, password string, verified bool) model.Principal {
	t.Helper()
	p, err := e.creds.Create(context.Background(), model.Principal{
		Kind:       model.KindUser,
		Identity:   email,
		Email:      email,
		Name:       "Test User",
		Phone:      "9876543210",
		Role:       model.RoleUser,
		IsVerified: verified,
	}, password)
	require.NoError(t, err)
	return p
}

func (e *testEnv) createAdmin(t *testing.T, username, password string, role model.Role) model.Principal {
	t.Helper()
	p, err := e.creds.Create(context.Background(), model.Principal{
		Kind:       model.KindAdmin,
		Identity:   username,
		Email:      username + "@infolock.test",
		Role:       role,
		IsVerified: true,
	}, password)
	require.NoError(t, err)
	return p
}

func (e *testEnv) reload(t *testing.T, p model.Principal) model.Principal {
	t.Helper()
	got, err := e.principals.FindByRef(context.Background(), p.Ref())
	require.NoError(t, err)
	return got
}

var codePattern = regexp.MustCompile(`>([0-9]{6})<`)

// lastCode pulls the OTP out of the most recent email
func (e *testEnv) lastCode(t *testing.T) string {
	t.Helper()
	m := codePattern.FindStringSubmatch(e.mailer.Last().HTML)
	require.Len(t, m, 2, "no OTP in last email")
	return m[1]
}

var errMailDown = errors.New("smtp unavailable")

// activitySummary renders recorded entries as ACTION:success, order-free
func activitySummary(e *testEnv) []string {
	var out []string
	for _, entry := range e.activity.Entries() {
		out = append(out, fmt.Sprintf("%s:%t", entry.Action, entry.Success))
	}
	return out
}
