package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/infolock/server/internal/audit"
	"github.com/infolock/server/internal/logging"
	"github.com/infolock/server/internal/model"
	"github.com/infolock/server/internal/notify"
	"github.com/infolock/server/internal/repo"
	"go.uber.org/zap"
)

// ActivityRecorder is the fire-and-forget audit sink
type ActivityRecorder interface {
	Record(ev audit.Event)
}

// Deps wires the collaborators of Service
type Deps struct {
	Principals  repo.PrincipalRepo
	Credentials *CredentialStore
	Transit     *TransitDecryptor
	Otp         *OtpManager
	Tokens      *TokenIssuer
	Mailer      notify.Mailer
	Captcha     CaptchaVerifier
	Activity    ActivityRecorder
	Log         *zap.Logger

	Lockout              repo.LockoutPolicy
	VerificationTokenTTL time.Duration
	ClientURL            string
	ExternalCallTimeout  time.Duration
}

// Service orchestrates registration, the two-stage login and session issuance
type Service struct {
	principals repo.PrincipalRepo
	creds      *CredentialStore
	transit    *TransitDecryptor
	otp        *OtpManager
	tokens     *TokenIssuer
	mailer     notify.Mailer
	captcha    CaptchaVerifier
	activity   ActivityRecorder
	log        *zap.Logger

	lockout         repo.LockoutPolicy
	verificationTTL time.Duration
	clientURL       string
	callTimeout     time.Duration
	now             func() time.Time
}

// NewService creates a new auth service
func NewService(d Deps) *Service {
	captcha := d.Captcha
	if captcha == nil {
		captcha = DisabledCaptcha{}
	}
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	timeout := d.ExternalCallTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{
		principals:      d.Principals,
		creds:           d.Credentials,
		transit:         d.Transit,
		otp:             d.Otp,
		tokens:          d.Tokens,
		mailer:          d.Mailer,
		captcha:         captcha,
		activity:        d.Activity,
		log:             log,
		lockout:         d.Lockout,
		verificationTTL: d.VerificationTokenTTL,
		clientURL:       d.ClientURL,
		callTimeout:     timeout,
		now:             time.Now,
	}
}

// Session is the result of a completed login
type Session struct {
	Token     string
	ExpiresAt time.Time
	Principal model.Principal
}

func (s *Service) record(p *model.Principal, email string, action model.ActivityAction, success bool, client audit.Client) {
	if s.activity == nil {
		return
	}
	ev := audit.Event{Email: email, Action: action, Success: success, Client: client}
	if p != nil {
		ref := p.Ref()
		ev.Principal = &ref
		ev.Email = p.Email
	}
	s.activity.Record(ev)
}

// send delivers msg within the external call timeout. Failures are logged only.
func (s *Service) send(ctx context.Context, msg notify.Message, kind string) {
	if err := notify.SendWithTimeout(ctx, s.mailer, msg, s.callTimeout); err != nil {
		s.log.Warn("email dispatch failed",
			zap.String("email_kind", kind),
			zap.String("to", logging.MaskEmail(msg.To)),
			zap.Error(err),
		)
	}
}

// Me returns the principal behind a verified token
func (s *Service) Me(ctx context.Context, claims *Claims) (model.Principal, error) {
	p, err := s.principals.FindByRef(ctx, claims.Ref())
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Principal{}, ErrInvalidToken
		}
		return model.Principal{}, fmt.Errorf("lookup principal: %w", err)
	}
	return p, nil
}

// Logout is stateless; it only leaves an audit trail
func (s *Service) Logout(ctx context.Context, claims *Claims, client audit.Client) {
	if s.activity == nil {
		return
	}
	ref := claims.Ref()
	s.activity.Record(audit.Event{
		Principal: &ref,
		Email:     claims.Identity,
		Action:    model.ActionLogout,
		Success:   true,
		Client:    client,
	})
}
