package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fingerprint "github.com/YannKr/fingerprint"
	"github.com/YannKr/fingerprint/internal/config"
	"github.com/YannKr/fingerprint/internal/db"
	"github.com/YannKr/fingerprint/internal/diskstat"
	"github.com/YannKr/fingerprint/internal/sse"
	"github.com/YannKr/fingerprint/internal/worker"
)

const adminToken = "admin-secret"

type testEnv struct {
	h      *Handler
	db     *sql.DB
	pool   *worker.Pool
	router http.Handler
	key    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	database, err := db.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.Migrate(database, fingerprint.MigrationFS))

	cfg := config.Load()
	cfg.DataDir = dir
	cfg.AdminToken = adminToken
	cfg.DiskBlockFreeBytes = 0

	hub := sse.New()
	h := New(database, cfg, hub, diskstat.New(dir, time.Hour))
	rl := NewRateLimiter(1000, 1000)
	t.Cleanup(rl.Stop)

	env := &testEnv{
		h:      h,
		db:     database,
		pool:   worker.NewPool(database, cfg, nil, hub),
		router: h.Routes(rl),
	}
	env.key = env.createKey(t, "test")
	return env
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createKey(t *testing.T, name string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/keys", strings.NewReader(`{"name":"`+name+`"}`))
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec := e.do(t, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var view apiKeyView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.NotEmpty(t, view.Key)
	return view.Key
}

func smoothPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			fx, fy := float64(x), float64(y)
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(110 + 30*math.Sin(fx/37) + 20*math.Cos(fy/29)),
				G: uint8(120 + 25*math.Cos(fx/41+fy/53)),
				B: uint8(130 + 35*math.Sin(fy/47)),
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, path, key, filename string, file []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(file)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	return req
}

func (e *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer "+e.key)
	return e.do(t, req)
}

func decodeJob(t *testing.T, rec *httptest.ResponseRecorder) apiJob {
	t.Helper()
	var j apiJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &j), rec.Body.String())
	return j
}

func TestEmbedDetectFlow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, multipartRequest(t, "/api/v1/embed", env.key, "photo.png", smoothPNG(t, 256, 256),
		map[string]string{"payload": "user-0042", "label": "bob"}))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	embed := decodeJob(t, rec)
	assert.Equal(t, "PENDING", embed.State)
	assert.Equal(t, "/api/v1/jobs/"+embed.JobID, rec.Header().Get("Location"))

	ran, err := env.pool.RunNext(context.Background())
	require.NoError(t, err)
	require.True(t, ran)

	embed = decodeJob(t, env.get(t, "/api/v1/jobs/"+embed.JobID))
	require.Equal(t, "COMPLETED", embed.State, embed.Error)
	require.NotEmpty(t, embed.FileURL)
	var result struct {
		PayloadLength int    `json:"payload_length"`
		Encoding      string `json:"encoding"`
	}
	require.NoError(t, json.Unmarshal(embed.Result, &result))
	assert.Equal(t, "7bit", result.Encoding)

	rec = env.get(t, embed.FileURL)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	marked := rec.Body.Bytes()

	rec = env.do(t, multipartRequest(t, "/api/v1/detect", env.key, "suspect.png", marked,
		map[string]string{"payload_length": "8", "fast": "true"}))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	detect := decodeJob(t, rec)

	ran, err = env.pool.RunNext(context.Background())
	require.NoError(t, err)
	require.True(t, ran)

	detect = decodeJob(t, env.get(t, "/api/v1/jobs/"+detect.JobID))
	require.Equal(t, "COMPLETED", detect.State, detect.Error)
	var found struct {
		Found      bool   `json:"found"`
		Registered bool   `json:"registered"`
		Label      string `json:"label"`
		Payload    string `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(detect.Result, &found))
	assert.True(t, found.Found)
	assert.True(t, found.Registered)
	assert.Equal(t, "bob", found.Label)
	assert.Equal(t, "user-0042", found.Payload)

	rec = env.get(t, "/api/v1/fingerprints")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Fingerprints []apiFingerprint `json:"fingerprints"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Fingerprints, 1)
	assert.Equal(t, embed.JobID, list.Fingerprints[0].JobID)

	rec = env.get(t, "/api/v1/jobs/"+embed.JobID+"/events")
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "event: completed")
}

func TestAPIAuth(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/fingerprints", nil)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, req).Code)

	req.Header.Set("Authorization", "Bearer fp_0000000000000000")
	assert.Equal(t, http.StatusUnauthorized, env.do(t, req).Code)

	req.Header.Set("Authorization", "Bearer "+env.key)
	assert.Equal(t, http.StatusOK, env.do(t, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/keys", nil)
	req.Header.Set("Authorization", "Bearer "+env.key)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, req).Code, "API keys are not admin tokens")
}

func TestJobsAreScopedToKey(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, multipartRequest(t, "/api/v1/embed", env.key, "a.png", smoothPNG(t, 64, 64),
		map[string]string{"payload": "x"}))
	require.Equal(t, http.StatusAccepted, rec.Code)
	job := decodeJob(t, rec)

	other := env.createKey(t, "other")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+job.JobID, nil)
	req.Header.Set("Authorization", "Bearer "+other)
	assert.Equal(t, http.StatusNotFound, env.do(t, req).Code)

	assert.Equal(t, http.StatusNotFound, env.get(t, "/api/v1/jobs/not-a-uuid").Code)
	assert.Equal(t, http.StatusConflict, env.get(t, "/api/v1/jobs/"+job.JobID+"/file").Code)
}

func TestSubmitValidation(t *testing.T) {
	env := newTestEnv(t)
	img := smoothPNG(t, 32, 32)

	tests := []struct {
		name     string
		path     string
		filename string
		fields   map[string]string
	}{
		{"missing payload", "/api/v1/embed", "a.png", nil},
		{"bad subband", "/api/v1/embed", "a.png", map[string]string{"payload": "x", "subband": "LL"}},
		{"bad hex", "/api/v1/embed", "a.png", map[string]string{"payload": "zz", "encoding": "hex"}},
		{"bad format", "/api/v1/embed", "a.png", map[string]string{"payload": "x", "format": "webp"}},
		{"bad quality", "/api/v1/embed", "a.png", map[string]string{"payload": "x", "quality": "0"}},
		{"unsupported file", "/api/v1/embed", "a.gif", map[string]string{"payload": "x"}},
		{"missing length", "/api/v1/detect", "a.png", nil},
		{"bad encoding", "/api/v1/detect", "a.png", map[string]string{"payload_length": "4", "encoding": "rot13"}},
		{"payload too long", "/api/v1/embed", "a.png", map[string]string{"payload": strings.Repeat("ab", 86), "encoding": "utf8"}},
		{"length too long", "/api/v1/detect", "a.png", map[string]string{"payload_length": "171"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, multipartRequest(t, tt.path, env.key, tt.filename, img, tt.fields))
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"code":"BAD_REQUEST"`)
		})
	}

	counts, err := db.CountJobsByState(env.db)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestUploadTooLarge(t *testing.T) {
	env := newTestEnv(t)
	env.h.Cfg.MaxUploadBytes = 512
	rec := env.do(t, multipartRequest(t, "/api/v1/embed", env.key, "a.png", make([]byte, 4096),
		map[string]string{"payload": "x"}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestDiskSpaceGuard(t *testing.T) {
	env := newTestEnv(t)
	env.h.DiskCache.Refresh()
	env.h.Cfg.DiskBlockFreeBytes = math.MaxInt64

	rec := env.do(t, multipartRequest(t, "/api/v1/embed", env.key, "a.png", smoothPNG(t, 32, 32),
		map[string]string{"payload": "x"}))
	assert.Equal(t, http.StatusInsufficientStorage, rec.Code)

	rec = env.get(t, "/api/v1/storage")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"warning":"block"`)
}

func TestKeyManagement(t *testing.T) {
	env := newTestEnv(t)

	admin := func(method, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("Authorization", "Bearer "+adminToken)
		return env.do(t, req)
	}

	rec := admin(http.MethodGet, "/api/v1/keys")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Keys []apiKeyView `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Keys, 1)
	assert.Empty(t, list.Keys[0].Key, "full key is never listed")

	assert.Equal(t, http.StatusNoContent, admin(http.MethodDelete, "/api/v1/keys/"+list.Keys[0].ID).Code)
	assert.Equal(t, http.StatusNotFound, admin(http.MethodDelete, "/api/v1/keys/"+list.Keys[0].ID).Code)
	assert.Equal(t, http.StatusUnauthorized, env.get(t, "/api/v1/fingerprints").Code, "deleted key is rejected")

	env.h.Cfg.AdminToken = ""
	assert.Equal(t, http.StatusForbidden, admin(http.MethodGet, "/api/v1/keys").Code)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t)
	rl := NewRateLimiter(0.001, 2)
	defer rl.Stop()
	router := env.h.Routes(rl)

	var codes []int
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/fingerprints", nil))
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}, codes)
	assert.Equal(t, 1, rl.Visitors())
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
