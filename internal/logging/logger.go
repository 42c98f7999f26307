// Package logging builds the zap logger and the masking helpers used wherever
// an identity ends up in a log line.
package logging

import (
	"strings"

	"go.uber.org/zap"
)

// New returns a production JSON logger, or a human-readable one in dev mode
func New(devMode bool) (*zap.Logger, error) {
	if devMode {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// MaskIdentity keeps the first and last two characters (e.g. ad****in)
func MaskIdentity(s string) string {
	r := []rune(s)
	if len(r) <= 4 {
		return "****"
	}
	return string(r[:2]) + strings.Repeat("*", len(r)-4) + string(r[len(r)-2:])
}

// MaskEmail masks the local part and keeps the domain (e.g. jo***oe@example.com)
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return MaskIdentity(email)
	}
	return MaskIdentity(email[:at]) + email[at:]
}

// Identity is a zap field carrying a masked identity
func Identity(s string) zap.Field {
	if strings.Contains(s, "@") {
		return zap.String("identity", MaskEmail(s))
	}
	return zap.String("identity", MaskIdentity(s))
}
