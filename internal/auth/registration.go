package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/infolock/server/internal/audit"
	"github.com/infolock/server/internal/logging"
	"github.com/infolock/server/internal/model"
	"github.com/infolock/server/internal/notify"
	"github.com/infolock/server/internal/repo"
	"go.uber.org/zap"
)

var phonePattern = regexp.MustCompile(`^[0-9]{10}$`)

// Registration is the sign-up input. Password is transit-encrypted.
type Registration struct {
	Email    string
	Name     string
	Phone    string
	Password string
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func (r Registration) validate() error {
	switch {
	case r.Email == "" || r.Name == "" || r.Phone == "" || r.Password == "":
		return fmt.Errorf("%w: email, name, phone number and password are required", ErrValidation)
	case !validEmail(r.Email):
		return fmt.Errorf("%w: invalid email address", ErrValidation)
	case !phonePattern.MatchString(r.Phone):
		return fmt.Errorf("%w: phone number must be 10 digits", ErrValidation)
	}
	return nil
}

// Register creates an unverified user and emails a verification link
func (s *Service) Register(ctx context.Context, reg Registration, client audit.Client) (model.Principal, error) {
	reg.Email = normalizeEmail(reg.Email)
	reg.Name = strings.TrimSpace(reg.Name)
	reg.Phone = strings.TrimSpace(reg.Phone)
	if err := reg.validate(); err != nil {
		return model.Principal{}, err
	}

	plaintext, err := s.transit.Decrypt(reg.Password)
	if err != nil {
		return model.Principal{}, ErrTransitDecryption
	}

	p, err := s.creds.Create(ctx, model.Principal{
		Kind:     model.KindUser,
		Identity: reg.Email,
		Email:    reg.Email,
		Name:     reg.Name,
		Phone:    reg.Phone,
		Role:     model.RoleUser,
	}, plaintext)
	if err != nil {
		return model.Principal{}, err
	}

	// the account exists either way; a failed link can be re-requested
	if err := s.issueVerification(ctx, p); err != nil {
		s.log.Error("failed to issue verification token", logging.Identity(p.Email), zap.Error(err))
	}

	s.log.Info("user registered", logging.Identity(p.Email))
	s.record(&p, "", model.ActionRegistration, true, client)
	return p, nil
}

func (s *Service) issueVerification(ctx context.Context, p model.Principal) error {
	token, hash, err := GenerateVerificationToken()
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}
	if err := s.principals.SetVerificationToken(ctx, p.ID, hash, s.now().UTC().Add(s.verificationTTL)); err != nil {
		return err
	}

	link := s.clientURL + "/verify-email/" + token
	msg, err := notify.VerificationMessage(p.Email, p.Name, link, s.verificationTTL)
	if err != nil {
		return err
	}
	s.send(ctx, msg, "verification")
	return nil
}

// VerifyEmail consumes a verification token. Each token works once.
func (s *Service) VerifyEmail(ctx context.Context, token string, client audit.Client) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidVerificationToken
	}

	p, err := s.principals.ConsumeVerificationToken(ctx, HashVerificationToken(token), s.now().UTC())
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.record(nil, "", model.ActionEmailVerification, false, client)
			return ErrInvalidVerificationToken
		}
		return fmt.Errorf("consume verification token: %w", err)
	}

	s.log.Info("email verified", logging.Identity(p.Email))
	s.record(&p, "", model.ActionEmailVerification, true, client)
	return nil
}

// ResendVerification sends a fresh link to an unverified user. The answer is
// the same whether or not the address belongs to an account.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}

	p, err := s.principals.FindByIdentity(ctx, model.KindUser, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.log.Debug("verification resend for unknown email", logging.Identity(email))
			return nil
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	if p.IsVerified {
		return nil
	}
	if err := s.issueVerification(ctx, p); err != nil {
		return fmt.Errorf("issue verification: %w", err)
	}
	return nil
}
