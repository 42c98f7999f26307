package auth

import "errors"

// Request-scoped failures. Handlers map each one onto a single status and a
// generic message; none of them carries principal data.
var (
	ErrTransitDecryption        = errors.New("invalid request payload")
	ErrInvalidCredentials       = errors.New("invalid credentials")
	ErrAccountLocked            = errors.New("account temporarily locked, try again later")
	ErrEmailNotVerified         = errors.New("email not verified")
	ErrInvalidOtp               = errors.New("invalid OTP")
	ErrOtpExpired               = errors.New("OTP expired or not found")
	ErrDuplicateIdentity        = errors.New("account already exists")
	ErrInvalidVerificationToken = errors.New("invalid or expired verification token")
	ErrCaptchaFailed            = errors.New("captcha verification failed")
	ErrValidation               = errors.New("validation failed")
)
