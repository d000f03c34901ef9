package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"image"
	"image/color"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fingerprint "github.com/YannKr/fingerprint"
	"github.com/YannKr/fingerprint/internal/config"
	"github.com/YannKr/fingerprint/internal/db"
	"github.com/YannKr/fingerprint/internal/imageio"
	"github.com/YannKr/fingerprint/internal/model"
	"github.com/YannKr/fingerprint/internal/sse"
)

func newTestPool(t *testing.T) (*Pool, *sql.DB, *sse.Hub) {
	t.Helper()
	dir := t.TempDir()
	database, err := db.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.Migrate(database, fingerprint.MigrationFS))

	cfg := config.Load()
	cfg.DataDir = dir
	cfg.OutputFormat = "png"
	hub := sse.New()
	return NewPool(database, cfg, nil, hub), database, hub
}

func writeSmoothPNG(t *testing.T, path string, w, h int) {
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
	require.NoError(t, imageio.Save(path, img, imageio.Options{}))
}

func enqueue(t *testing.T, database *sql.DB, id, jobType, input string, params interface{}) {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	require.NoError(t, db.EnqueueJob(database, &model.Job{
		ID: id, JobType: jobType, InputPath: input, Params: string(raw),
	}))
}

func runOne(t *testing.T, p *Pool) {
	t.Helper()
	ran, err := p.RunNext(context.Background())
	require.NoError(t, err)
	require.True(t, ran)
}

func TestEmbedThenDetect(t *testing.T) {
	p, database, hub := newTestPool(t)
	input := filepath.Join(t.TempDir(), "photo.png")
	writeSmoothPNG(t, input, 256, 256)

	events, unsub := hub.Subscribe(sse.JobTopic("embed-1"))
	defer unsub()

	enqueue(t, database, "embed-1", model.JobTypeEmbed, input, model.EmbedParams{
		Payload: "ABCDEFGH", Subband: "HL", Label: "alice",
	})
	runOne(t, p)

	job, err := db.GetJob(database, "embed-1")
	require.NoError(t, err)
	require.Equal(t, model.JobCompleted, job.State, job.ErrorMessage)
	assert.FileExists(t, job.OutputPath)

	var res model.EmbedResult
	require.NoError(t, json.Unmarshal([]byte(job.ResultData), &res))
	assert.Equal(t, "7bit", res.Encoding)
	assert.Equal(t, 7, res.PayloadLength)
	assert.Equal(t, "png", res.Format)
	assert.Greater(t, res.PSNR, 30.0)
	assert.Len(t, res.SHA256, 64)

	var types []string
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	assert.Equal(t, []string{"progress", "progress", "progress", "completed"}, types)

	enqueue(t, database, "detect-1", model.JobTypeDetect, job.OutputPath, model.DetectParams{
		PayloadLength: res.PayloadLength, Subband: "HL",
	})
	runOne(t, p)

	job, err = db.GetJob(database, "detect-1")
	require.NoError(t, err)
	require.Equal(t, model.JobCompleted, job.State, job.ErrorMessage)
	var det model.DetectResult
	require.NoError(t, json.Unmarshal([]byte(job.ResultData), &det))
	assert.True(t, det.Found)
	assert.True(t, det.Registered)
	assert.Equal(t, "alice", det.Label)
	assert.Equal(t, "ABCDEFGH", det.Payload)
	assert.Equal(t, "embed-1", det.EmbedJobID)
}

func TestDetectUnmarkedImage(t *testing.T) {
	p, database, _ := newTestPool(t)
	input := filepath.Join(t.TempDir(), "plain.png")
	writeSmoothPNG(t, input, 256, 256)

	enqueue(t, database, "d", model.JobTypeDetect, input, model.DetectParams{PayloadLength: 16, Fast: true})
	runOne(t, p)

	job, err := db.GetJob(database, "d")
	require.NoError(t, err)
	require.Equal(t, model.JobCompleted, job.State)
	var det model.DetectResult
	require.NoError(t, json.Unmarshal([]byte(job.ResultData), &det))
	assert.False(t, det.Registered)
	if !det.Found {
		assert.NotEmpty(t, det.Reason)
		assert.Empty(t, det.PayloadHex)
	}
}

func TestEmbedTooLargeFails(t *testing.T) {
	p, database, _ := newTestPool(t)
	input := filepath.Join(t.TempDir(), "tiny.png")
	writeSmoothPNG(t, input, 16, 16)

	enqueue(t, database, "e", model.JobTypeEmbed, input, model.EmbedParams{Payload: "a very long fingerprint payload"})
	runOne(t, p)

	job, err := db.GetJob(database, "e")
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, job.State)
	assert.Contains(t, job.ErrorMessage, "too small")

	list, err := db.ListFingerprints(database, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRunNextEmptyQueue(t *testing.T) {
	p, _, _ := newTestPool(t)
	ran, err := p.RunNext(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestOutputFormat(t *testing.T) {
	p, _, _ := newTestPool(t)
	f, err := p.outputFormat("", imageio.JPEG)
	require.NoError(t, err)
	assert.Equal(t, imageio.PNG, f)

	f, err = p.outputFormat(FormatSource, imageio.JPEG)
	require.NoError(t, err)
	assert.Equal(t, imageio.JPEG, f)

	f, err = p.outputFormat(FormatSource, imageio.WebP)
	require.NoError(t, err)
	assert.Equal(t, imageio.PNG, f)

	_, err = p.outputFormat("webp", imageio.PNG)
	assert.ErrorIs(t, err, imageio.ErrUnsupported)
}
