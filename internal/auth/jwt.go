package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/infolock/server/internal/model"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the session token payload
type Claims struct {
	PrincipalID uuid.UUID           `json:"id"`
	Identity    string              `json:"identity"`
	Role        model.Role          `json:"role"`
	Kind        model.PrincipalKind `json:"kind"`
	jwt.RegisteredClaims
}

// Ref returns the principal reference carried by the token
func (c *Claims) Ref() model.OwnerRef {
	return model.OwnerRef{Kind: c.Kind, ID: c.PrincipalID}
}

// TokenIssuer signs and verifies HS256 session tokens. Lifetimes differ per principal kind.
type TokenIssuer struct {
	secret   []byte
	userTTL  time.Duration
	adminTTL time.Duration
	now      func() time.Time
}

// NewTokenIssuer creates a token issuer
func NewTokenIssuer(secret string, userTTL, adminTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:   []byte(secret),
		userTTL:  userTTL,
		adminTTL: adminTTL,
		now:      time.Now,
	}
}

func (s *TokenIssuer) ttlFor(kind model.PrincipalKind) time.Duration {
	if kind == model.KindAdmin {
		return s.adminTTL
	}
	return s.userTTL
}

// Issue signs a token for p and returns it with its expiry
func (s *TokenIssuer) Issue(p model.Principal) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttlFor(p.Kind))
	role := p.Role
	if role == "" {
		role = model.RoleUser
	}

	claims := &Claims{
		PrincipalID: p.ID,
		Identity:    p.Identity,
		Role:        role,
		Kind:        p.Kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, expiresAt, nil
}

// Verify checks signature and expiry and returns the claims
func (s *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || !claims.Kind.Valid() || claims.PrincipalID == uuid.Nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
