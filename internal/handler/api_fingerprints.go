package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/YannKr/fingerprint/internal/db"
)

type apiFingerprint struct {
	ID            string `json:"id"`
	PayloadHex    string `json:"payload_hex"`
	PayloadLength int    `json:"payload_length"`
	Encoding      string `json:"encoding"`
	Subband       string `json:"subband"`
	Label         string `json:"label"`
	JobID         string `json:"job_id"`
	OutputSHA256  string `json:"output_sha256"`
	CreatedAt     string `json:"created_at"`
}

// APIFingerprintList - GET /api/v1/fingerprints?limit=&offset=
func (h *Handler) APIFingerprintList(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	list, err := db.ListFingerprints(h.DB, limit, offset)
	if err != nil {
		slog.Error("list fingerprints", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list fingerprints")
		return
	}
	out := make([]apiFingerprint, 0, len(list))
	for _, f := range list {
		out = append(out, apiFingerprint{
			ID:            f.ID,
			PayloadHex:    f.PayloadHex,
			PayloadLength: f.PayloadLength,
			Encoding:      f.Encoding,
			Subband:       f.Subband,
			Label:         f.Label,
			JobID:         f.JobID,
			OutputSHA256:  f.OutputSHA256,
			CreatedAt:     formatTime(f.CreatedAt),
		})
	}
	renderJSON(w, http.StatusOK, map[string]interface{}{
		"fingerprints": out,
		"limit":        limit,
		"offset":       offset,
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
