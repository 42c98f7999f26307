package handlers

import (
	"net/http"
	"strings"

	"github.com/infolock/server/internal/auth"
	"go.uber.org/zap"
)

// AdminHandler handles the admin login endpoints
type AdminHandler struct {
	svc *auth.Service
	log *zap.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(svc *auth.Service, log *zap.Logger) *AdminHandler {
	return &AdminHandler{svc: svc, log: log}
}

// adminLoginRequest is the request body for POST /api/auth/admin/login
type adminLoginRequest struct {
	Username       string `json:"username"`
	Password       string `json:"password"`
	RecaptchaToken string `json:"recaptchaToken"`
}

// adminVerifyOTPRequest is the request body for POST /api/auth/admin/verify-otp
type adminVerifyOTPRequest struct {
	Username string `json:"username"`
	OTP      string `json:"otp"`
}

// HandleLogin handles POST /api/auth/admin/login
func (h *AdminHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	err := h.svc.AdminLogin(r.Context(), req.Username, req.Password, req.RecaptchaToken, clientFromRequest(r))
	if err != nil {
		writeAuthError(w, r, h.log, err)
		return
	}

	respondWithJSON(w, h.log, http.StatusOK, otpSentResponse{Message: "otp_sent", RequiresOtp: true})
}

// HandleVerifyOTP handles POST /api/auth/admin/verify-otp
func (h *AdminHandler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req adminVerifyOTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.OTP = strings.TrimSpace(req.OTP)
	if req.Username == "" || req.OTP == "" {
		respondWithError(w, http.StatusBadRequest, "username and otp are required")
		return
	}

	session, err := h.svc.VerifyAdminOtp(r.Context(), req.Username, req.OTP, clientFromRequest(r))
	if err != nil {
		writeAuthError(w, r, h.log, err)
		return
	}

	respondWithJSON(w, h.log, http.StatusOK, toSessionResponse(session))
}
