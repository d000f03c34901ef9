package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/YannKr/fingerprint/internal/auth"
	"github.com/YannKr/fingerprint/internal/db"
	"github.com/YannKr/fingerprint/internal/imageio"
	"github.com/YannKr/fingerprint/internal/model"
	"github.com/YannKr/fingerprint/internal/sse"
)

type apiJob struct {
	JobID       string          `json:"job_id"`
	JobType     string          `json:"job_type"`
	State       string          `json:"state"`
	Progress    int             `json:"progress"`
	CreatedAt   string          `json:"created_at"`
	StartedAt   *string         `json:"started_at"`
	CompletedAt *string         `json:"completed_at"`
	Error       string          `json:"error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	FileURL     string          `json:"file_url,omitempty"`
}

func toAPIJob(j *model.Job) apiJob {
	out := apiJob{
		JobID:       j.ID,
		JobType:     j.JobType,
		State:       j.State,
		Progress:    j.Progress,
		CreatedAt:   formatTime(j.CreatedAt),
		StartedAt:   formatTimePtr(j.StartedAt),
		CompletedAt: formatTimePtr(j.CompletedAt),
		Error:       j.ErrorMessage,
	}
	if j.State == model.JobCompleted && j.ResultData != "" {
		out.Result = json.RawMessage(j.ResultData)
	}
	if j.State == model.JobCompleted && j.OutputPath != "" {
		out.FileURL = "/api/v1/jobs/" + j.ID + "/file"
	}
	return out
}

// enqueue stores the job and answers 202 with its initial state.
func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request, j *model.Job) {
	if err := db.EnqueueJob(h.DB, j); err != nil {
		slog.Error("enqueue job", "type", j.JobType, "error", err)
		os.RemoveAll(filepath.Dir(j.InputPath))
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to enqueue job")
		return
	}
	job, err := db.GetJob(h.DB, j.ID)
	if err != nil || job == nil {
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load job")
		return
	}
	w.Header().Set("Location", "/api/v1/jobs/"+j.ID)
	renderJSON(w, http.StatusAccepted, toAPIJob(job))
}

// loadOwnedJob returns the job named in the URL if it belongs to the
// caller's API key, writing a 404 otherwise.
func (h *Handler) loadOwnedJob(w http.ResponseWriter, r *http.Request) *model.Job {
	jobID := chi.URLParam(r, "jobID")
	if _, err := uuid.Parse(jobID); err != nil {
		renderJSONError(w, http.StatusNotFound, "NOT_FOUND", "job not found")
		return nil
	}
	job, err := db.GetJob(h.DB, jobID)
	if err != nil {
		slog.Error("api get job", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to get job")
		return nil
	}
	if job == nil || job.APIKeyID != auth.APIKeyFromContext(r.Context()) {
		renderJSONError(w, http.StatusNotFound, "NOT_FOUND", "job not found")
		return nil
	}
	return job
}

// APIJobGet - GET /api/v1/jobs/{jobID}
func (h *Handler) APIJobGet(w http.ResponseWriter, r *http.Request) {
	job := h.loadOwnedJob(w, r)
	if job == nil {
		return
	}
	renderJSON(w, http.StatusOK, toAPIJob(job))
}

// APIJobFile - GET /api/v1/jobs/{jobID}/file
func (h *Handler) APIJobFile(w http.ResponseWriter, r *http.Request) {
	job := h.loadOwnedJob(w, r)
	if job == nil {
		return
	}
	if job.State != model.JobCompleted || job.OutputPath == "" {
		renderJSONError(w, http.StatusConflict, "NOT_READY", "job has no output file")
		return
	}

	f, err := os.Open(job.OutputPath)
	if err != nil {
		slog.Error("open job output", "job", job.ID, "error", err)
		renderJSONError(w, http.StatusGone, "GONE", "output file no longer available")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to stat output file")
		return
	}

	name := filepath.Base(job.OutputPath)
	if format, err := imageio.FormatFromPath(name); err == nil {
		w.Header().Set("Content-Type", format.MIMEType())
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// APIJobEvents - GET /api/v1/jobs/{jobID}/events
//
// Streams progress as server-sent events until the job finishes.
func (h *Handler) APIJobEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	ch, unsub := h.SSE.Subscribe(sse.JobTopic(jobID))
	defer unsub()

	job := h.loadOwnedJob(w, r)
	if job == nil {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, ": connected\n\n")
	if job.Finished() {
		data, _ := json.Marshal(toAPIJob(job))
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", strings.ToLower(job.State), data)
		flusher.Flush()
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, evt.Data)
			flusher.Flush()
			if evt.Type == "completed" || evt.Type == "failed" {
				return
			}
		}
	}
}
