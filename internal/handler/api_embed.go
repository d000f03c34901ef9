package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/YannKr/fingerprint/internal/auth"
	"github.com/YannKr/fingerprint/internal/imageio"
	"github.com/YannKr/fingerprint/internal/model"
	"github.com/YannKr/fingerprint/internal/watermark"
	"github.com/YannKr/fingerprint/internal/watermark/dwtdct"
	"github.com/YannKr/fingerprint/internal/worker"
)

// APIEmbedSubmit - POST /api/v1/embed
//
// Multipart fields: file, payload, encoding (text|7bit|utf8|hex), subband,
// label, format (png|jpeg|bmp|tiff|jp2|source), quality.
func (h *Handler) APIEmbedSubmit(w http.ResponseWriter, r *http.Request) {
	file, srcFormat, err := h.parseUpload(w, r)
	if err != nil {
		renderUploadError(w, err)
		return
	}
	defer file.Close()

	params := model.EmbedParams{
		Payload:  r.FormValue("payload"),
		Encoding: r.FormValue("encoding"),
		Subband:  r.FormValue("subband"),
		Label:    r.FormValue("label"),
		Format:   r.FormValue("format"),
	}
	if params.Subband == "" {
		params.Subband = h.Cfg.DefaultSubband
	}
	band, err := dwtdct.ParseSubband(params.Subband)
	if err != nil {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	params.Subband = band.String()

	payload, _, err := watermark.EncodePayload(watermark.Encoding(params.Encoding), params.Payload)
	if err != nil {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if len(payload) == 0 {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "payload is required")
		return
	}
	if len(payload) > watermark.MaxPayloadLength {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", fmt.Sprintf("encoded payload is %d bytes, at most %d allowed", len(payload), watermark.MaxPayloadLength))
		return
	}

	if params.Format != "" && params.Format != worker.FormatSource {
		f, err := imageio.ParseFormat(params.Format)
		if err != nil || !f.CanEncode() {
			renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unsupported output format")
			return
		}
		params.Format = string(f)
	}
	if q := r.FormValue("quality"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 || n > 100 {
			renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "quality must be 1-100")
			return
		}
		params.Quality = n
	}

	raw, err := json.Marshal(params)
	if err != nil {
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to encode params")
		return
	}

	jobID := uuid.New().String()
	inputPath, err := h.saveInput(jobID, file, srcFormat)
	if err != nil {
		slog.Error("save embed input", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to save file")
		return
	}

	h.enqueue(w, r, &model.Job{
		ID:        jobID,
		JobType:   model.JobTypeEmbed,
		APIKeyID:  auth.APIKeyFromContext(r.Context()),
		InputPath: inputPath,
		Params:    string(raw),
	})
}
