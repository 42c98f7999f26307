package handlers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/infolock/server/internal/audit"
	"github.com/infolock/server/internal/auth"
	"go.uber.org/zap"
)

// errorResponse is the body of every failed request
type errorResponse struct {
	Error                string `json:"error"`
	RequiresVerification bool   `json:"requiresVerification,omitempty"`
}

func respondWithJSON(w http.ResponseWriter, log *zap.Logger, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn("failed to encode response", zap.Error(err))
	}
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message})
}

// writeAuthError maps service errors onto status codes. Unexpected errors are
// logged with the request id and answered with a generic message.
func writeAuthError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, auth.ErrValidation):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrTransitDecryption):
		respondWithError(w, http.StatusBadRequest, auth.ErrTransitDecryption.Error())
	case errors.Is(err, auth.ErrCaptchaFailed):
		respondWithError(w, http.StatusBadRequest, auth.ErrCaptchaFailed.Error())
	case errors.Is(err, auth.ErrInvalidVerificationToken):
		respondWithError(w, http.StatusBadRequest, auth.ErrInvalidVerificationToken.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondWithError(w, http.StatusUnauthorized, auth.ErrInvalidCredentials.Error())
	case errors.Is(err, auth.ErrInvalidOtp):
		respondWithError(w, http.StatusUnauthorized, auth.ErrInvalidOtp.Error())
	case errors.Is(err, auth.ErrOtpExpired):
		respondWithError(w, http.StatusUnauthorized, auth.ErrOtpExpired.Error())
	case errors.Is(err, auth.ErrInvalidToken):
		respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
	case errors.Is(err, auth.ErrEmailNotVerified):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(errorResponse{
			Error:                "please verify your email before logging in",
			RequiresVerification: true,
		})
	case errors.Is(err, auth.ErrDuplicateIdentity):
		respondWithError(w, http.StatusConflict, auth.ErrDuplicateIdentity.Error())
	case errors.Is(err, auth.ErrAccountLocked):
		respondWithError(w, http.StatusLocked, auth.ErrAccountLocked.Error())
	default:
		log.Error("request failed",
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		respondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON reads a bounded JSON body into dst
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// getClientIP returns the peer address. Forwarding headers are honoured only
// through chimw.RealIP, which the router installs ahead of the handlers.
func getClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func clientFromRequest(r *http.Request) audit.Client {
	return audit.Client{IP: getClientIP(r), UserAgent: r.UserAgent()}
}
