package handler

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/YannKr/fingerprint/internal/config"
	"github.com/YannKr/fingerprint/internal/diskstat"
	"github.com/YannKr/fingerprint/internal/sse"
)

type Handler struct {
	DB        *sql.DB
	Cfg       *config.Config
	SSE       *sse.Hub
	DiskCache *diskstat.Cache
}

func New(database *sql.DB, cfg *config.Config, sseHub *sse.Hub, diskCache *diskstat.Cache) *Handler {
	return &Handler{
		DB:        database,
		Cfg:       cfg,
		SSE:       sseHub,
		DiskCache: diskCache,
	}
}

type apiError struct {
	Error apiErrorBody `json:"error"`
}

type apiErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func renderJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode json response", "error", err)
	}
}

func renderJSONError(w http.ResponseWriter, status int, code, message string) {
	renderJSON(w, status, apiError{Error: apiErrorBody{Code: code, Message: message}})
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

// Healthz - GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.DB.PingContext(r.Context()); err != nil {
		renderJSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "database unavailable")
		return
	}
	renderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
