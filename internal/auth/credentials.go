package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/infolock/server/internal/model"
	"github.com/infolock/server/internal/repo"
)

// CredentialStore persists peppered, bcrypt-hashed passwords and checks them
type CredentialStore struct {
	principals repo.PrincipalRepo
	pepper     *Pepper
	hasher     PasswordHasher
	dummyHash  string
}

// NewCredentialStore precomputes the hash compared against when an identity is unknown
func NewCredentialStore(principals repo.PrincipalRepo, pepper *Pepper, hasher PasswordHasher) (*CredentialStore, error) {
	dummy, err := hasher.Hash(pepper.Apply("infolock-dummy-password"))
	if err != nil {
		return nil, fmt.Errorf("dummy hash: %w", err)
	}
	return &CredentialStore{
		principals: principals,
		pepper:     pepper,
		hasher:     hasher,
		dummyHash:  dummy,
	}, nil
}

// Create hashes the peppered password and stores the principal
func (c *CredentialStore) Create(ctx context.Context, p model.Principal, plaintext string) (model.Principal, error) {
	hash, err := c.hasher.Hash(c.pepper.Apply(plaintext))
	if err != nil {
		return model.Principal{}, err
	}
	p.PasswordHash = hash

	created, err := c.principals.Create(ctx, p)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return model.Principal{}, ErrDuplicateIdentity
		}
		return model.Principal{}, fmt.Errorf("create principal: %w", err)
	}
	return created, nil
}

// Verify reports whether plaintext is the password of identity. An unknown
// identity costs the same single hash comparison as a wrong password.
func (c *CredentialStore) Verify(ctx context.Context, kind model.PrincipalKind, identity, plaintext string) (bool, error) {
	p, err := c.principals.FindByIdentity(ctx, kind, identity)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			c.DummyCompare(plaintext)
			return false, nil
		}
		return false, fmt.Errorf("lookup principal: %w", err)
	}
	return c.Matches(p, plaintext), nil
}

// Matches compares plaintext against the stored hash of p
func (c *CredentialStore) Matches(p model.Principal, plaintext string) bool {
	return c.hasher.Compare(p.PasswordHash, c.pepper.Apply(plaintext))
}

// DummyCompare burns one comparison against a fixed hash
func (c *CredentialStore) DummyCompare(plaintext string) {
	_ = c.hasher.Compare(c.dummyHash, c.pepper.Apply(plaintext))
}
