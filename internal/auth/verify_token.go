package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// GenerateVerificationToken returns a random hex token (32 bytes) and its SHA256 hash as hex.
// Only the hash is stored; the token goes into the emailed link.
func GenerateVerificationToken() (token string, hashHex string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	token = hex.EncodeToString(b)
	return token, HashVerificationToken(token), nil
}

// HashVerificationToken returns SHA256 hex of the token
func HashVerificationToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
