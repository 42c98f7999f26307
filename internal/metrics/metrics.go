// Package metrics exposes Prometheus counters for authentication outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels
const (
	OutcomeSuccess     = "success"
	OutcomeInvalid     = "invalid"
	OutcomeLocked      = "locked"
	OutcomeUnverified  = "unverified"
	OutcomeUnknown     = "unknown_identity"
	OutcomeExpired     = "expired"
	OutcomeTransit     = "transit_error"
	OutcomeCaptcha     = "captcha_failed"
	OutcomeStoreFailed = "error"
)

var (
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infolock_login_attempts_total",
			Help: "Primary credential checks by principal kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	OtpVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infolock_otp_verifications_total",
			Help: "OTP verifications by principal kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	Lockouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infolock_lockouts_total",
			Help: "Accounts locked after reaching the failed-attempt threshold",
		},
		[]string{"kind"},
	)
)
