package handler

import (
	"log/slog"
	"net/http"

	"github.com/YannKr/fingerprint/internal/db"
	"github.com/YannKr/fingerprint/internal/diskstat"
)

// APIStorage - GET /api/v1/storage
func (h *Handler) APIStorage(w http.ResponseWriter, r *http.Request) {
	if h.DiskCache == nil {
		renderJSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "disk monitoring not available")
		return
	}
	counts, err := db.CountJobsByState(h.DB)
	if err != nil {
		slog.Error("count jobs", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to count jobs")
		return
	}

	stats := h.DiskCache.Get()
	level := stats.WarningLevel(uint64(max(h.Cfg.DiskBlockFreeBytes, 0)))
	renderJSON(w, http.StatusOK, map[string]interface{}{
		"total_bytes":  stats.TotalBytes,
		"free_bytes":   stats.FreeBytes,
		"app_bytes":    stats.AppBytes,
		"input_bytes":  stats.InputBytes,
		"output_bytes": stats.OutputBytes,
		"db_bytes":     stats.DBBytes,
		"pct_free":     stats.PctFree(),
		"warning":      diskstat.WarningName(level),
		"jobs":         counts,
		"captured_at":  formatTime(stats.CapturedAt),
	})
}
