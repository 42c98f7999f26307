package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/infolock/server/internal/auth"
	"github.com/infolock/server/internal/middleware"
	"github.com/infolock/server/internal/model"
	"go.uber.org/zap"
)

// AuthHandler handles the user and session endpoints
type AuthHandler struct {
	svc *auth.Service
	log *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(svc *auth.Service, log *zap.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, log: log}
}

// registerRequest is the request body for POST /api/auth/register.
// Password is transit-encrypted by the client.
type registerRequest struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneno"`
	Password    string `json:"password"`
}

// registerResponse is the JSON response for register
type registerResponse struct {
	Message              string `json:"message"`
	RequiresVerification bool   `json:"requiresVerification"`
	Email                string `json:"email"`
}

// loginRequest is the request body for POST /api/auth/login
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// otpSentResponse answers a successful primary stage
type otpSentResponse struct {
	Message     string `json:"message"`
	RequiresOtp bool   `json:"requiresOtp"`
}

// verifyOTPRequest is the request body for POST /api/auth/verify-otp
type verifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// sessionResponse is the JSON response for a completed login
type sessionResponse struct {
	Token     string            `json:"token"`
	TokenType string            `json:"tokenType"`
	ExpiresAt time.Time         `json:"expiresAt"`
	User      principalResponse `json:"user"`
}

// principalResponse is the user or admin object in API responses
type principalResponse struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name,omitempty"`
	Username   string `json:"username,omitempty"`
	Role       string `json:"role"`
	IsVerified bool   `json:"isVerified"`
}

type resendRequest struct {
	Email string `json:"email"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func toPrincipalResponse(p model.Principal) principalResponse {
	resp := principalResponse{
		ID:         p.ID.String(),
		Email:      p.Email,
		Name:       p.Name,
		Role:       string(p.Role),
		IsVerified: p.IsVerified,
	}
	if p.Kind == model.KindAdmin {
		resp.Username = p.Identity
	}
	return resp
}

func toSessionResponse(s *auth.Session) sessionResponse {
	return sessionResponse{
		Token:     s.Token,
		TokenType: "bearer",
		ExpiresAt: s.ExpiresAt,
		User:      toPrincipalResponse(s.Principal),
	}
}

// HandleRegister handles POST /api/auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.svc.Register(r.Context(), auth.Registration{
		Email:    req.Email,
		Name:     req.Name,
		Phone:    req.PhoneNumber,
		Password: req.Password,
	}, clientFromRequest(r))
	if err != nil {
		writeAuthError(w, r, h.log, err)
		return
	}

	respondWithJSON(w, h.log, http.StatusCreated, registerResponse{
		Message:              "registration successful, please check your email to verify your account",
		RequiresVerification: true,
		Email:                p.Email,
	})
}

// HandleLogin handles POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	if err := h.svc.Login(r.Context(), req.Email, req.Password, clientFromRequest(r)); err != nil {
		writeAuthError(w, r, h.log, err)
		return
	}

	respondWithJSON(w, h.log, http.StatusOK, otpSentResponse{Message: "otp_sent", RequiresOtp: true})
}

// HandleVerifyOTP handles POST /api/auth/verify-otp
func (h *AuthHandler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	req.OTP = strings.TrimSpace(req.OTP)
	if req.Email == "" || req.OTP == "" {
		respondWithError(w, http.StatusBadRequest, "email and otp are required")
		return
	}

	session, err := h.svc.VerifyOtp(r.Context(), req.Email, req.OTP, clientFromRequest(r))
	if err != nil {
		writeAuthError(w, r, h.log, err)
		return
	}

	respondWithJSON(w, h.log, http.StatusOK, toSessionResponse(session))
}

// HandleVerifyEmail handles GET /api/auth/verify-email/{token}
func (h *AuthHandler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if err := h.svc.VerifyEmail(r.Context(), token, clientFromRequest(r)); err != nil {
		writeAuthError(w, r, h.log, err)
		return
	}
	respondWithJSON(w, h.log, http.StatusOK, successResponse{Success: true})
}

// HandleResendVerification handles POST /api/auth/resend-verification
func (h *AuthHandler) HandleResendVerification(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.ResendVerification(r.Context(), req.Email); err != nil {
		writeAuthError(w, r, h.log, err)
		return
	}
	respondWithJSON(w, h.log, http.StatusOK, successResponse{Success: true})
}

// HandleLogout handles POST /api/auth/logout (protected). Tokens are
// stateless, so this only records the event.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	h.svc.Logout(r.Context(), claims, clientFromRequest(r))
	respondWithJSON(w, h.log, http.StatusOK, messageResponse{Message: "logged out"})
}

// HandleMe handles GET /api/auth/me (protected). Returns the authenticated principal.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	p, err := h.svc.Me(r.Context(), claims)
	if err != nil {
		writeAuthError(w, r, h.log, err)
		return
	}
	respondWithJSON(w, h.log, http.StatusOK, toPrincipalResponse(p))
}
