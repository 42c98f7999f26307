package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrConfiguration marks a startup-time configuration failure. The process must not start.
var ErrConfiguration = errors.New("configuration error")

// Config holds the application configuration. It is built once at startup and read-only afterwards.
type Config struct {
	DatabaseURL string
	Port        string
	DevMode     bool

	JWTSecret      string
	PasswordPepper string
	TransitKey     string
	BcryptCost     int

	OtpTTL                 time.Duration
	OtpMaxAttempts         int
	OtpInvalidateOnReissue bool

	LockoutThreshold int
	LockoutDuration  time.Duration

	UserTokenTTL         time.Duration
	AdminTokenTTL        time.Duration
	VerificationTokenTTL time.Duration

	ClientURL string

	SMTPHost string
	SMTPPort string
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	DevMailDir string

	RedisAddr     string
	RedisPassword string

	GeoIPDBPath         string
	RecaptchaSecret     string
	ExternalCallTimeout time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:      "8080",
		ClientURL: "http://localhost:3000",
	}

	cfg.DevMode = os.Getenv("DEV_MODE") == "true"

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if cfg.DatabaseURL == "" && !cfg.DevMode {
		return nil, fmt.Errorf("%w: DATABASE_URL environment variable is required", ErrConfiguration)
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	var err error
	if cfg.JWTSecret, err = requireEnv("JWT_SECRET"); err != nil {
		return nil, err
	}
	if cfg.PasswordPepper, err = requireEnv("PASSWORD_PEPPER"); err != nil {
		return nil, err
	}
	if cfg.TransitKey, err = requireEnv("TRANSIT_KEY"); err != nil {
		return nil, err
	}

	if cfg.BcryptCost, err = intEnv("BCRYPT_COST", 12); err != nil {
		return nil, err
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, fmt.Errorf("%w: BCRYPT_COST must be between 4 and 31", ErrConfiguration)
	}

	if cfg.OtpTTL, err = durationEnv("OTP_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.OtpMaxAttempts, err = intEnv("OTP_MAX_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	if cfg.OtpInvalidateOnReissue, err = boolEnv("OTP_INVALIDATE_ON_REISSUE", true); err != nil {
		return nil, err
	}
	if cfg.LockoutThreshold, err = intEnv("LOCKOUT_THRESHOLD", 5); err != nil {
		return nil, err
	}
	if cfg.LockoutDuration, err = durationEnv("LOCKOUT_DURATION", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.UserTokenTTL, err = durationEnv("USER_TOKEN_TTL", 2*time.Hour); err != nil {
		return nil, err
	}
	if cfg.AdminTokenTTL, err = durationEnv("ADMIN_TOKEN_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.VerificationTokenTTL, err = durationEnv("VERIFICATION_TOKEN_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ExternalCallTimeout, err = durationEnv("EXTERNAL_CALL_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}

	if v := os.Getenv("CLIENT_URL"); v != "" {
		cfg.ClientURL = strings.TrimRight(v, "/")
	}

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	cfg.SMTPPort = os.Getenv("SMTP_PORT")
	cfg.SMTPUser = os.Getenv("SMTP_USER")
	cfg.SMTPPass = os.Getenv("SMTP_PASS")
	cfg.SMTPFrom = os.Getenv("SMTP_FROM")
	if cfg.SMTPFrom == "" {
		cfg.SMTPFrom = cfg.SMTPUser
	}
	if cfg.SMTPHost == "" && !cfg.DevMode {
		return nil, fmt.Errorf("%w: SMTP_HOST environment variable is required", ErrConfiguration)
	}
	cfg.DevMailDir = os.Getenv("DEV_MAIL_DIR")
	if cfg.DevMailDir == "" {
		cfg.DevMailDir = "tmp/mail"
	}
	if cfg.SMTPHost != "" && cfg.SMTPPort == "" {
		cfg.SMTPPort = "465"
	}

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.GeoIPDBPath = os.Getenv("GEOIP_DB_PATH")
	cfg.RecaptchaSecret = os.Getenv("RECAPTCHA_SECRET")

	return cfg, nil
}

func requireEnv(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("%w: %s environment variable is required", ErrConfiguration, key)
	}
	return v, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", ErrConfiguration, key)
	}
	return n, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive duration", ErrConfiguration, key)
	}
	return d, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", ErrConfiguration, key)
	}
	return b, nil
}
