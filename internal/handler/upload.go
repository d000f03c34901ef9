package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/YannKr/fingerprint/internal/imageio"
)

var errUploadTooLarge = errors.New("upload exceeds size limit")

// parseUpload reads the multipart form and checks the "file" part names a
// supported image format.
func (h *Handler) parseUpload(w http.ResponseWriter, r *http.Request) (multipart.File, imageio.Format, error) {
	if r.ContentLength > h.Cfg.MaxUploadBytes {
		return nil, "", errUploadTooLarge
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.Cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", errUploadTooLarge
		}
		return nil, "", fmt.Errorf("failed to parse multipart form")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", fmt.Errorf("missing file field")
	}
	format, err := imageio.FormatFromPath(header.Filename)
	if err != nil {
		file.Close()
		return nil, "", fmt.Errorf("unsupported file type")
	}
	return file, format, nil
}

// saveInput stores an upload under inputs/<jobID>/.
func (h *Handler) saveInput(jobID string, src io.Reader, format imageio.Format) (string, error) {
	dir := filepath.Join(h.Cfg.DataDir, "inputs", jobID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create input dir: %w", err)
	}
	path := filepath.Join(dir, "input"+format.Ext())
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create input file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.RemoveAll(dir)
		return "", fmt.Errorf("save input file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	return path, nil
}

func renderUploadError(w http.ResponseWriter, err error) {
	if errors.Is(err, errUploadTooLarge) {
		renderJSONError(w, http.StatusRequestEntityTooLarge, "TOO_LARGE", err.Error())
		return
	}
	renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
}
