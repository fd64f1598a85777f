package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/livraison-express/api-server-go/internal/errors"
	"github.com/livraison-express/api-server-go/internal/model"
	"github.com/livraison-express/api-server-go/internal/service"
)

type QRSessionHandler struct {
	qrService *service.QRLoginService
}

func NewQRSessionHandler(qrService *service.QRLoginService) *QRSessionHandler {
	return &QRSessionHandler{qrService: qrService}
}

func (h *QRSessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/create-session", h.CreateSession)
	r.Get("/session/{sessionID}", h.GetSessionStatus)
	r.Post("/scan", h.ScanSession)
	r.Post("/confirm", h.ConfirmSession)
	r.Delete("/session/{sessionID}", h.DeleteSession)

	return r
}

type createSessionRequest struct {
	Type          model.SessionType `json:"type"`
	InitiatorData json.RawMessage   `json:"initiatorData,omitempty"`
}

// POST /api/qr/create-session
func (h *QRSessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Type == "" {
		req.Type = model.SessionTypeLogin
	}

	result, err := h.qrService.CreateSession(r.Context(), req.Type, req.InitiatorData)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"sessionId": result.Session.SessionID,
		"qrPayload": result.QRPayload,
		"expiresAt": result.Session.ExpiresAt,
		"expiresIn": result.ExpiresIn,
	})
}

// GET /api/qr/session/{sessionID}
func (h *QRSessionHandler) GetSessionStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, apperrors.MissingRequired("sessionID"))
		return
	}

	result, err := h.qrService.GetSessionStatus(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session":       result.Session,
		"timeRemaining": result.TimeRemaining,
		"isExpired":     result.IsExpired,
	})
}

type scanSessionRequest struct {
	SessionID  string          `json:"sessionId"`
	DeviceInfo json.RawMessage `json:"deviceInfo,omitempty"`
}

// POST /api/qr/scan
func (h *QRSessionHandler) ScanSession(w http.ResponseWriter, r *http.Request) {
	var req scanSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		writeError(w, apperrors.MissingRequired("sessionId"))
		return
	}

	session, err := h.qrService.ScanSession(r.Context(), req.SessionID, req.DeviceInfo)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": session.SessionID,
		"status":    session.Status,
		"expiresIn": int(session.TimeRemaining(time.Now()).Seconds()),
	})
}

type confirmSessionRequest struct {
	SessionID string          `json:"sessionId"`
	Email     string          `json:"email,omitempty"`
	Password  string          `json:"password,omitempty"`
	UserData  json.RawMessage `json:"userData,omitempty"`
	Reject    bool            `json:"reject,omitempty"`
}

// POST /api/qr/confirm
func (h *QRSessionHandler) ConfirmSession(w http.ResponseWriter, r *http.Request) {
	var req confirmSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		writeError(w, apperrors.MissingRequired("sessionId"))
		return
	}

	session, err := h.qrService.ConfirmSession(r.Context(), service.ConfirmParams{
		SessionID: req.SessionID,
		Email:     req.Email,
		Password:  req.Password,
		UserData:  req.UserData,
		Reject:    req.Reject,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": session.SessionID,
		"status":    session.Status,
		"user":      session.UserData,
	})
}

// DELETE /api/qr/session/{sessionID}
func (h *QRSessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, apperrors.MissingRequired("sessionID"))
		return
	}

	if err := h.qrService.DeleteSession(r.Context(), sessionID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{})
}
