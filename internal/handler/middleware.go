package handler

import (
	"crypto/hmac"
	"log/slog"
	"net/http"

	"github.com/YannKr/fingerprint/internal/auth"
	"github.com/YannKr/fingerprint/internal/db"
	"github.com/YannKr/fingerprint/internal/diskstat"
)

func (h *Handler) requireAPIAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			renderJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing API key")
			return
		}
		keyID, ok := h.validateAPIKey(key)
		if !ok {
			renderJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid API key")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithAPIKey(r.Context(), keyID)))
	})
}

func (h *Handler) validateAPIKey(key string) (string, bool) {
	prefix, ok := auth.LookupPrefix(key)
	if !ok {
		return "", false
	}

	apiKey, err := db.GetAPIKeyByPrefix(h.DB, prefix)
	if err != nil {
		slog.Error("lookup api key", "error", err)
		return "", false
	}
	if apiKey == nil || !auth.CheckKey(apiKey.KeyHash, key) {
		return "", false
	}

	go func() {
		if err := db.TouchAPIKeyUsed(h.DB, apiKey.ID); err != nil {
			slog.Warn("touch api key", "error", err)
		}
	}()

	return apiKey.ID, true
}

// requireAdmin accepts the configured ADMIN_TOKEN as a bearer token. Admin
// routes are disabled when no token is configured.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Cfg.AdminToken == "" {
			renderJSONError(w, http.StatusForbidden, "FORBIDDEN", "key management is disabled")
			return
		}
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok || !hmac.Equal([]byte(token), []byte(h.Cfg.AdminToken)) {
			renderJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireDiskSpace refuses new uploads while free space is below the block
// threshold.
func (h *Handler) requireDiskSpace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.DiskCache != nil && h.Cfg.DiskBlockFreeBytes > 0 {
			stats := h.DiskCache.Get()
			if stats.WarningLevel(uint64(h.Cfg.DiskBlockFreeBytes)) == diskstat.WarnBlock {
				renderJSONError(w, http.StatusInsufficientStorage, "INSUFFICIENT_STORAGE", "not enough free disk space")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
