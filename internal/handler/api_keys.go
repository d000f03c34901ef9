package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/YannKr/fingerprint/internal/auth"
	"github.com/YannKr/fingerprint/internal/db"
	"github.com/YannKr/fingerprint/internal/model"
)

type apiKeyView struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Prefix     string  `json:"prefix"`
	Key        string  `json:"key,omitempty"` // only on creation
	CreatedAt  string  `json:"created_at"`
	LastUsedAt *string `json:"last_used_at"`
}

// APIKeyCreate - POST /api/v1/keys
func (h *Handler) APIKeyCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
			renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
			return
		}
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "Unnamed key"
	}

	fullKey, prefix, err := auth.NewAPIKey()
	if err != nil {
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to generate key")
		return
	}
	hash, err := auth.HashKey(fullKey)
	if err != nil {
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to hash key")
		return
	}

	apiKey := &model.APIKey{
		ID:        uuid.New().String(),
		Name:      name,
		KeyPrefix: prefix,
		KeyHash:   hash,
	}
	if err := db.CreateAPIKey(h.DB, apiKey); err != nil {
		slog.Error("create api key", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to store key")
		return
	}
	slog.Info("api key created", "id", apiKey.ID, "name", name)

	created, err := db.GetAPIKeyByPrefix(h.DB, prefix)
	if err != nil || created == nil {
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load key")
		return
	}
	view := toKeyView(created)
	view.Key = fullKey
	renderJSON(w, http.StatusCreated, view)
}

// APIKeyList - GET /api/v1/keys
func (h *Handler) APIKeyList(w http.ResponseWriter, r *http.Request) {
	keys, err := db.ListAPIKeys(h.DB)
	if err != nil {
		slog.Error("list api keys", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list keys")
		return
	}
	out := make([]apiKeyView, 0, len(keys))
	for i := range keys {
		out = append(out, toKeyView(&keys[i]))
	}
	renderJSON(w, http.StatusOK, map[string]interface{}{"keys": out})
}

// APIKeyDelete - DELETE /api/v1/keys/{id}
func (h *Handler) APIKeyDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	found, err := db.DeleteAPIKey(h.DB, id)
	if err != nil {
		slog.Error("delete api key", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to delete key")
		return
	}
	if !found {
		renderJSONError(w, http.StatusNotFound, "NOT_FOUND", "key not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toKeyView(k *model.APIKey) apiKeyView {
	return apiKeyView{
		ID:         k.ID,
		Name:       k.Name,
		Prefix:     k.KeyPrefix,
		CreatedAt:  formatTime(k.CreatedAt),
		LastUsedAt: formatTimePtr(k.LastUsedAt),
	}
}
