package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/infolock/server/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) register(t *testing.T, email string) model.Principal {
	t.Helper()
	p, err := e.svc.Register(context.Background(), Registration{
		Email:    email,
		Name:     "Ada",
		Phone:    "9876543210",
		Password: e.encrypt(t, goodPassword),
	}, testClient)
	require.NoError(t, err)
	return p
}

// lastVerificationToken pulls the token out of the most recent verification link
func (e *testEnv) lastVerificationToken(t *testing.T) string {
	t.Helper()
	html := e.mailer.Last().HTML
	prefix := testClientURL + "/verify-email/"
	i := strings.Index(html, prefix)
	require.GreaterOrEqual(t, i, 0, "no verification link in last email")
	rest := html[i+len(prefix):]
	return rest[:strings.IndexByte(rest, '"')]
}

func TestRegister_ThenVerifyThenLogin(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	p := env.register(t, "A@X.com")
	assert.Equal(t, "a@x.com", p.Email)
	assert.False(t, p.IsVerified)
	assert.Equal(t, model.RoleUser, p.Role)

	err := env.svc.Login(ctx, "a@x.com", env.encrypt(t, goodPassword), testClient)
	assert.ErrorIs(t, err, ErrEmailNotVerified)

	token := env.lastVerificationToken(t)
	assert.Len(t, token, 64)
	require.NoError(t, env.svc.VerifyEmail(ctx, token, testClient))
	assert.True(t, env.reload(t, p).IsVerified)

	assert.ErrorIs(t, env.svc.VerifyEmail(ctx, token, testClient), ErrInvalidVerificationToken)

	require.NoError(t, env.svc.Login(ctx, "a@x.com", env.encrypt(t, goodPassword), testClient))

	env.auditor.Wait()
	assert.ElementsMatch(t,
		[]string{"REGISTRATION:true", "LOGIN:false", "EMAIL_VERIFICATION:true", "EMAIL_VERIFICATION:false", "LOGIN:true"},
		activitySummary(env))
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t, nil)
	good := Registration{Email: "a@x.com", Name: "Ada", Phone: "9876543210", Password: env.encrypt(t, goodPassword)}

	tests := map[string]func(r *Registration){
		"missing email":    func(r *Registration) { r.Email = "" },
		"missing name":     func(r *Registration) { r.Name = "  " },
		"missing phone":    func(r *Registration) { r.Phone = "" },
		"missing password": func(r *Registration) { r.Password = "" },
		"bad email":        func(r *Registration) { r.Email = "not-an-email" },
		"display name":     func(r *Registration) { r.Email = "Ada <a@x.com>" },
		"short phone":      func(r *Registration) { r.Phone = "12345" },
		"phone with signs": func(r *Registration) { r.Phone = "+198765432" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			r := good
			mutate(&r)
			_, err := env.svc.Register(context.Background(), r, testClient)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	r := good
	r.Password = "plaintext-not-encrypted"
	_, err := env.svc.Register(context.Background(), r, testClient)
	assert.ErrorIs(t, err, ErrTransitDecryption)
}

func TestRegister_Duplicate(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "a@x.com")

	_, err := env.svc.Register(context.Background(), Registration{
		Email:    "a@x.com",
		Name:     "Other",
		Phone:    "1234567890",
		Password: env.encrypt(t, "another password"),
	}, testClient)
	assert.ErrorIs(t, err, ErrDuplicateIdentity)
}

func TestVerifyEmail_Expired(t *testing.T) {
	env := newTestEnv(t, nil)
	p := env.register(t, "a@x.com")
	token := env.lastVerificationToken(t)

	env.clock.Advance(24*time.Hour + time.Second)
	assert.ErrorIs(t, env.svc.VerifyEmail(context.Background(), token, testClient), ErrInvalidVerificationToken)
	assert.False(t, env.reload(t, p).IsVerified)

	assert.ErrorIs(t, env.svc.VerifyEmail(context.Background(), "", testClient), ErrInvalidVerificationToken)
}

func TestResendVerification(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	p := env.register(t, "a@x.com")
	first := env.lastVerificationToken(t)

	require.NoError(t, env.svc.ResendVerification(ctx, "nobody@x.com"))
	assert.Equal(t, 1, env.mailer.Count(), "unknown address sends nothing but still succeeds")

	require.NoError(t, env.svc.ResendVerification(ctx, " A@x.com "))
	assert.Equal(t, 2, env.mailer.Count())
	second := env.lastVerificationToken(t)
	assert.NotEqual(t, first, second)

	assert.ErrorIs(t, env.svc.VerifyEmail(ctx, first, testClient), ErrInvalidVerificationToken, "resend replaces the old token")
	require.NoError(t, env.svc.VerifyEmail(ctx, second, testClient))
	assert.True(t, env.reload(t, p).IsVerified)

	require.NoError(t, env.svc.ResendVerification(ctx, "a@x.com"))
	assert.Equal(t, 2, env.mailer.Count(), "verified users get no new link")

	assert.ErrorIs(t, env.svc.ResendVerification(ctx, ""), ErrValidation)
}
