package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Pepper is the server-wide keyed transform applied to every password before hashing
type Pepper struct {
	key []byte
}

// NewPepper creates a pepper for key. An empty key is rejected by config.Load at startup.
func NewPepper(key string) *Pepper {
	return &Pepper{key: []byte(key)}
}

// Apply returns HMAC-SHA256(key, plaintext) as lowercase hex
func (p *Pepper) Apply(plaintext string) string {
	mac := hmac.New(sha256.New, p.key)
	mac.Write([]byte(plaintext))
	return hex.EncodeToString(mac.Sum(nil))
}
