package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/infolock/server/internal/audit"
	"github.com/infolock/server/internal/logging"
	"github.com/infolock/server/internal/metrics"
	"github.com/infolock/server/internal/model"
	"github.com/infolock/server/internal/notify"
	"github.com/infolock/server/internal/repo"
	"go.uber.org/zap"
)

// Login runs the credential stage for a user. On success an OTP is emailed
// and the caller must complete VerifyOtp.
func (s *Service) Login(ctx context.Context, email, transitPassword string, client audit.Client) error {
	return s.checkCredentials(ctx, model.KindUser, email, transitPassword, client)
}

// AdminLogin checks the captcha before any credential work, then runs the
// same credential stage keyed by username.
func (s *Service) AdminLogin(ctx context.Context, username, transitPassword, captchaToken string, client audit.Client) error {
	cctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	ok, err := s.captcha.Verify(cctx, captchaToken, client.IP)
	cancel()
	if err != nil {
		s.log.Warn("captcha verification error", zap.Error(err))
	}
	if err != nil || !ok {
		metrics.LoginAttempts.WithLabelValues(string(model.KindAdmin), metrics.OutcomeCaptcha).Inc()
		return ErrCaptchaFailed
	}
	return s.checkCredentials(ctx, model.KindAdmin, username, transitPassword, client)
}

// VerifyOtp completes a user login and issues the session token
func (s *Service) VerifyOtp(ctx context.Context, email, code string, client audit.Client) (*Session, error) {
	return s.completeOtp(ctx, model.KindUser, email, code, client)
}

// VerifyAdminOtp completes an admin login and issues the session token
func (s *Service) VerifyAdminOtp(ctx context.Context, username, code string, client audit.Client) (*Session, error) {
	return s.completeOtp(ctx, model.KindAdmin, username, code, client)
}

func (s *Service) checkCredentials(ctx context.Context, kind model.PrincipalKind, identity, transitPassword string, client audit.Client) error {
	k := string(kind)

	plaintext, err := s.transit.Decrypt(transitPassword)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues(k, metrics.OutcomeTransit).Inc()
		return ErrTransitDecryption
	}

	p, err := s.principals.FindByIdentity(ctx, kind, identity)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.creds.DummyCompare(plaintext)
			metrics.LoginAttempts.WithLabelValues(k, metrics.OutcomeUnknown).Inc()
			s.log.Info("login failed", zap.String("kind", k), logging.Identity(identity), zap.String("reason", "unknown identity"))
			s.record(nil, identity, model.ActionLogin, false, client)
			return ErrInvalidCredentials
		}
		metrics.LoginAttempts.WithLabelValues(k, metrics.OutcomeStoreFailed).Inc()
		return fmt.Errorf("lookup principal: %w", err)
	}

	now := s.now()
	if p.Lockout.LockedAt(now) {
		metrics.LoginAttempts.WithLabelValues(k, metrics.OutcomeLocked).Inc()
		s.log.Info("login rejected", zap.String("kind", k), logging.Identity(identity), zap.String("reason", "locked"))
		s.record(&p, "", model.ActionLogin, false, client)
		return ErrAccountLocked
	}
	if kind == model.KindUser && !p.IsVerified {
		metrics.LoginAttempts.WithLabelValues(k, metrics.OutcomeUnverified).Inc()
		s.record(&p, "", model.ActionLogin, false, client)
		return ErrEmailNotVerified
	}

	if !s.creds.Matches(p, plaintext) {
		res, err := s.principals.RecordFailedAttempt(ctx, p.Ref(), s.lockout, now)
		if err != nil {
			return fmt.Errorf("record failed attempt: %w", err)
		}
		if res.AlreadyLocked {
			// a concurrent attempt locked the account after our lookup
			metrics.LoginAttempts.WithLabelValues(k, metrics.OutcomeLocked).Inc()
			s.log.Info("login rejected", zap.String("kind", k), logging.Identity(identity), zap.String("reason", "locked"))
			s.record(&p, "", model.ActionLogin, false, client)
			return ErrAccountLocked
		}
		l := res.Lockout
		if l.LockedAt(now) {
			metrics.Lockouts.WithLabelValues(k).Inc()
			s.log.Warn("account locked", zap.String("kind", k), logging.Identity(identity), zap.Int("attempts", l.AttemptCount))
		}
		metrics.LoginAttempts.WithLabelValues(k, metrics.OutcomeInvalid).Inc()
		s.log.Info("login failed", zap.String("kind", k), logging.Identity(identity), zap.String("reason", "wrong password"))
		s.record(&p, "", model.ActionLogin, false, client)
		return ErrInvalidCredentials
	}

	if p.Lockout.AttemptCount > 0 || p.Lockout.IsLocked {
		if err := s.principals.ResetLockout(ctx, p.Ref(), nil); err != nil {
			return fmt.Errorf("reset lockout: %w", err)
		}
	}

	code, err := s.otp.Issue(ctx, p.Ref())
	if err != nil {
		return fmt.Errorf("issue otp: %w", err)
	}
	msg, err := notify.OtpMessage(p.Email, code, s.otp.TTL())
	if err != nil {
		return err
	}
	s.send(ctx, msg, "otp")

	metrics.LoginAttempts.WithLabelValues(k, metrics.OutcomeSuccess).Inc()
	s.log.Info("otp issued", zap.String("kind", k), logging.Identity(identity))
	s.record(&p, "", model.ActionLogin, true, client)
	return nil
}

func (s *Service) completeOtp(ctx context.Context, kind model.PrincipalKind, identity, code string, client audit.Client) (*Session, error) {
	k := string(kind)

	p, err := s.principals.FindByIdentity(ctx, kind, identity)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			metrics.OtpVerifications.WithLabelValues(k, metrics.OutcomeUnknown).Inc()
			s.record(nil, identity, model.ActionOtpLogin, false, client)
			return nil, ErrInvalidOtp
		}
		return nil, fmt.Errorf("lookup principal: %w", err)
	}

	now := s.now()
	if p.Lockout.LockedAt(now) {
		metrics.OtpVerifications.WithLabelValues(k, metrics.OutcomeLocked).Inc()
		s.record(&p, "", model.ActionOtpLogin, false, client)
		return nil, ErrAccountLocked
	}

	outcome, err := s.otp.Check(ctx, p.Ref(), code)
	if err != nil {
		metrics.OtpVerifications.WithLabelValues(k, metrics.OutcomeStoreFailed).Inc()
		return nil, fmt.Errorf("check otp: %w", err)
	}
	switch outcome {
	case OtpNoActiveCode:
		metrics.OtpVerifications.WithLabelValues(k, metrics.OutcomeExpired).Inc()
		s.record(&p, "", model.ActionOtpLogin, false, client)
		return nil, ErrOtpExpired
	case OtpInvalid:
		metrics.OtpVerifications.WithLabelValues(k, metrics.OutcomeInvalid).Inc()
		s.log.Info("otp rejected", zap.String("kind", k), logging.Identity(identity))
		s.record(&p, "", model.ActionOtpLogin, false, client)
		return nil, ErrInvalidOtp
	}

	loginAt := now.UTC()
	if err := s.principals.ResetLockout(ctx, p.Ref(), &loginAt); err != nil {
		return nil, fmt.Errorf("reset lockout: %w", err)
	}
	p.Lockout = model.Lockout{}
	p.LastLogin = &loginAt

	token, expiresAt, err := s.tokens.Issue(p)
	if err != nil {
		return nil, err
	}

	metrics.OtpVerifications.WithLabelValues(k, metrics.OutcomeSuccess).Inc()
	s.log.Info("login completed", zap.String("kind", k), logging.Identity(identity))
	s.record(&p, "", model.ActionOtpLogin, true, client)
	return &Session{Token: token, ExpiresAt: expiresAt, Principal: p}, nil
}
