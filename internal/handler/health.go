package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/livraison-express/api-server-go/internal/config"
	"github.com/livraison-express/api-server-go/internal/database"
)

type HealthHandler struct {
	db      *database.DB
	appName string
	started time.Time
}

func NewHealthHandler(db *database.DB, appName string) *HealthHandler {
	return &HealthHandler{
		db:      db,
		appName: appName,
		started: time.Now(),
	}
}

// GET /api/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.DBPingTimeout)
	defer cancel()

	status := "ok"
	dbStatus := "connected"
	code := http.StatusOK

	if err := h.db.Ping(ctx); err != nil {
		status = "degraded"
		dbStatus = "unreachable"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":    status,
		"database":  dbStatus,
		"uptime":    int(time.Since(h.started).Seconds()),
		"timestamp": time.Now().UnixMilli(),
	})
}

// GET /
func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": h.appName,
		"status":  "running",
	})
}
