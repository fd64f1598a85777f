package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/livraison-express/api-server-go/internal/errors"
	"github.com/livraison-express/api-server-go/internal/middleware"
	"github.com/livraison-express/api-server-go/internal/model"
	"github.com/livraison-express/api-server-go/internal/service"
)

type UserHandler struct {
	userService *service.UserService
	loginLimit  *middleware.LoginRateLimiter
}

func NewUserHandler(userService *service.UserService, loginLimit *middleware.LoginRateLimiter) *UserHandler {
	return &UserHandler{
		userService: userService,
		loginLimit:  loginLimit,
	}
}

func (h *UserHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/register", h.Register)
	r.Post("/verify-code", h.VerifyCode)
	r.With(h.loginLimit.Handler).Post("/login", h.Login)
	r.Post("/send-reset-code", h.SendResetCode)
	r.Post("/verify-reset-code", h.VerifyResetCode)
	r.Post("/reset-password", h.ResetPassword)

	return r
}

type registerRequest struct {
	Name     string         `json:"name"`
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Role     model.UserRole `json:"role"`
}

// POST /api/register
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Role == "" {
		req.Role = model.UserRoleClient
	}

	result, err := h.userService.Register(r.Context(), service.RegisterParams{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]any{
		"message":   "Verification code sent",
		"email":     result.Email,
		"emailSent": result.EmailSent,
	}
	if !result.EmailSent {
		// Degraded mode: the mail transport is down, hand the code back so
		// the client can still complete verification.
		resp["message"] = "Verification code generated (email service unavailable)"
		resp["verificationCode"] = result.Code
	}

	writeJSON(w, http.StatusOK, resp)
}

type emailCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// POST /api/verify-code
func (h *UserHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req emailCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Code == "" {
		writeError(w, apperrors.MissingRequired("email and code"))
		return
	}

	user, err := h.userService.VerifyCode(r.Context(), req.Email, req.Code)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Email verified",
		"user":    user,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// POST /api/login
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, apperrors.MissingRequired("email and password"))
		return
	}

	user, err := h.userService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Login successful",
		"user":    user,
	})
}

type sendResetCodeRequest struct {
	Email string `json:"email"`
}

// POST /api/send-reset-code
func (h *UserHandler) SendResetCode(w http.ResponseWriter, r *http.Request) {
	var req sendResetCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" {
		writeError(w, apperrors.MissingRequired("email"))
		return
	}

	result, err := h.userService.SendResetCode(r.Context(), req.Email)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]any{
		"message":   "Reset code sent",
		"email":     result.Email,
		"emailSent": result.EmailSent,
	}
	if !result.EmailSent {
		resp["message"] = "Reset code generated (email service unavailable)"
		resp["resetCode"] = result.Code
	}

	writeJSON(w, http.StatusOK, resp)
}

// POST /api/verify-reset-code
func (h *UserHandler) VerifyResetCode(w http.ResponseWriter, r *http.Request) {
	var req emailCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Code == "" {
		writeError(w, apperrors.MissingRequired("email and code"))
		return
	}

	if err := h.userService.VerifyResetCode(r.Context(), req.Email, req.Code); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Code verified",
		"email":   req.Email,
	})
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}

// POST /api/reset-password
func (h *UserHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Code == "" || req.NewPassword == "" {
		writeError(w, apperrors.MissingRequired("email, code and newPassword"))
		return
	}

	if err := h.userService.ResetPassword(r.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Password reset successfully",
	})
}
