package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/YannKr/fingerprint/internal/auth"
	"github.com/YannKr/fingerprint/internal/model"
	"github.com/YannKr/fingerprint/internal/watermark"
	"github.com/YannKr/fingerprint/internal/watermark/dwtdct"
)

// APIDetectSubmit - POST /api/v1/detect
//
// Multipart fields: file, payload_length, encoding, subband, fast.
func (h *Handler) APIDetectSubmit(w http.ResponseWriter, r *http.Request) {
	file, srcFormat, err := h.parseUpload(w, r)
	if err != nil {
		renderUploadError(w, err)
		return
	}
	defer file.Close()

	n, err := strconv.Atoi(r.FormValue("payload_length"))
	if err != nil || n <= 0 {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "payload_length must be a positive integer")
		return
	}
	if n > watermark.MaxPayloadLength {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", fmt.Sprintf("payload_length must be at most %d", watermark.MaxPayloadLength))
		return
	}
	subband := r.FormValue("subband")
	if subband == "" {
		subband = h.Cfg.DefaultSubband
	}
	band, err := dwtdct.ParseSubband(subband)
	if err != nil {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	params := model.DetectParams{
		PayloadLength: n,
		Encoding:      r.FormValue("encoding"),
		Subband:       band.String(),
	}
	switch watermark.Encoding(params.Encoding) {
	case "", watermark.EncodingText, watermark.EncodingSevenBit, watermark.EncodingUTF8, watermark.EncodingHex:
	default:
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unknown encoding")
		return
	}
	if v := r.FormValue("fast"); v != "" {
		fast, err := strconv.ParseBool(v)
		if err != nil {
			renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "fast must be a boolean")
			return
		}
		params.Fast = fast
	}

	raw, err := json.Marshal(params)
	if err != nil {
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to encode params")
		return
	}

	jobID := uuid.New().String()
	inputPath, err := h.saveInput(jobID, file, srcFormat)
	if err != nil {
		slog.Error("save detect input", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to save file")
		return
	}

	h.enqueue(w, r, &model.Job{
		ID:        jobID,
		JobType:   model.JobTypeDetect,
		APIKeyID:  auth.APIKeyFromContext(r.Context()),
		InputPath: inputPath,
		Params:    string(raw),
	})
}
