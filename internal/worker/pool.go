package worker

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/YannKr/fingerprint/internal/config"
	"github.com/YannKr/fingerprint/internal/db"
	"github.com/YannKr/fingerprint/internal/imageio"
	"github.com/YannKr/fingerprint/internal/model"
	"github.com/YannKr/fingerprint/internal/sse"
	"github.com/YannKr/fingerprint/internal/watermark"
	"github.com/YannKr/fingerprint/internal/watermark/clip"
	"github.com/YannKr/fingerprint/internal/watermark/dwtdct"
	"github.com/YannKr/fingerprint/internal/watermark/reedsolomon"
	"github.com/YannKr/fingerprint/internal/webhook"
)

// FormatSource keeps the input's container when it can be encoded.
const FormatSource = "source"

type Pool struct {
	database *sql.DB
	cfg      *config.Config
	webhook  *webhook.Dispatcher
	sseHub   *sse.Hub
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewPool(database *sql.DB, cfg *config.Config, webhookDispatcher *webhook.Dispatcher, sseHub *sse.Hub) *Pool {
	return &Pool{database: database, cfg: cfg, webhook: webhookDispatcher, sseHub: sseHub}
}

func (p *Pool) Start(ctx context.Context) {
	if n, err := db.RequeueRunningJobs(p.database); err != nil {
		slog.Error("requeue interrupted jobs", "error", err)
	} else if n > 0 {
		slog.Info("requeued interrupted jobs", "count", n)
	}

	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.cfg.WorkerCount; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	slog.Info("worker pool started", "workers", p.cfg.WorkerCount)
}

func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	slog.Info("worker pool stopped")
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ran, err := p.RunNext(ctx)
		if err != nil {
			slog.Error("claim job", "worker", id, "error", err)
			sleep(ctx, 2*time.Second)
			continue
		}
		if !ran {
			sleep(ctx, time.Second)
		}
	}
}

// RunNext claims and processes one pending job. It reports false when the
// queue is empty.
func (p *Pool) RunNext(ctx context.Context) (bool, error) {
	job, err := db.ClaimNextJob(p.database)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	slog.Info("processing job", "job", job.ID, "type", job.JobType)
	start := time.Now()

	var (
		outputPath string
		result     interface{}
	)
	switch job.JobType {
	case model.JobTypeEmbed:
		outputPath, result, err = p.processEmbedJob(ctx, job)
	case model.JobTypeDetect:
		result, err = p.processDetectJob(ctx, job)
	default:
		err = fmt.Errorf("unknown job type: %s", job.JobType)
	}
	if err == nil {
		err = p.complete(job, outputPath, result)
	}
	if err != nil {
		slog.Error("job failed", "job", job.ID, "error", err)
		if ferr := db.FailJob(p.database, job.ID, err.Error()); ferr != nil {
			slog.Error("record job failure", "job", job.ID, "error", ferr)
		}
		p.publish(job, "failed", map[string]interface{}{"job_id": job.ID, "state": model.JobFailed, "error": err.Error()})
		p.webhook.Dispatch(webhook.EventJobFailed, map[string]interface{}{
			"job_id":   job.ID,
			"job_type": job.JobType,
			"error":    err.Error(),
		})
		return true, nil
	}

	slog.Info("job completed", "job", job.ID, "elapsed", time.Since(start))
	return true, nil
}

func (p *Pool) complete(job *model.Job, outputPath string, result interface{}) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := db.CompleteJob(p.database, job.ID, outputPath, string(data)); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	p.publish(job, "completed", map[string]interface{}{"job_id": job.ID, "state": model.JobCompleted, "result": result})
	p.webhook.Dispatch(webhook.EventJobCompleted, map[string]interface{}{
		"job_id":   job.ID,
		"job_type": job.JobType,
		"result":   result,
	})
	return nil
}

func (p *Pool) processEmbedJob(ctx context.Context, job *model.Job) (string, *model.EmbedResult, error) {
	var params model.EmbedParams
	if err := json.Unmarshal([]byte(job.Params), &params); err != nil {
		return "", nil, fmt.Errorf("parse params: %w", err)
	}
	band, err := dwtdct.ParseSubband(params.Subband)
	if err != nil {
		return "", nil, err
	}
	payload, enc, err := watermark.EncodePayload(watermark.Encoding(params.Encoding), params.Payload)
	if err != nil {
		return "", nil, err
	}

	img, srcFormat, err := imageio.Load(job.InputPath)
	if err != nil {
		return "", nil, err
	}
	b := img.Bounds()
	c, err := watermark.Capacity(len(payload), b.Dx(), b.Dy())
	if err != nil {
		return "", nil, fmt.Errorf("%d byte payload in %dx%d image: %w", len(payload), b.Dx(), b.Dy(), err)
	}
	p.progress(job, 20)

	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	bm := watermark.FromImage(img)
	orig := bm.Clone()
	if err := watermark.Insert(bm, payload, band); err != nil {
		return "", nil, err
	}
	p.progress(job, 60)

	dist, err := watermark.Measure(orig, bm)
	if err != nil {
		return "", nil, err
	}

	format, err := p.outputFormat(params.Format, srcFormat)
	if err != nil {
		return "", nil, err
	}
	outDir := filepath.Join(p.cfg.DataDir, "outputs", job.ID)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", nil, fmt.Errorf("create output dir: %w", err)
	}
	outputPath := filepath.Join(outDir, "fingerprinted"+format.Ext())
	quality := params.Quality
	if quality <= 0 {
		quality = p.cfg.JPEGQuality
	}
	if err := imageio.Save(outputPath, watermark.ToImage(bm, img), imageio.Options{Quality: quality}); err != nil {
		return "", nil, err
	}
	p.progress(job, 90)

	sha, err := imageio.SHA256File(outputPath)
	if err != nil {
		return "", nil, fmt.Errorf("sha256: %w", err)
	}
	size, err := imageio.FileSize(outputPath)
	if err != nil {
		return "", nil, fmt.Errorf("filesize: %w", err)
	}

	fp := &model.Fingerprint{
		ID:            uuid.New().String(),
		PayloadHex:    hex.EncodeToString(payload),
		PayloadLength: len(payload),
		Encoding:      string(enc),
		Subband:       band.String(),
		Label:         params.Label,
		JobID:         job.ID,
		OutputSHA256:  sha,
	}
	if err := db.InsertFingerprint(p.database, fp); err != nil {
		return "", nil, fmt.Errorf("register fingerprint: %w", err)
	}

	return outputPath, &model.EmbedResult{
		FingerprintID: fp.ID,
		PayloadHex:    fp.PayloadHex,
		PayloadLength: fp.PayloadLength,
		Encoding:      fp.Encoding,
		Subband:       fp.Subband,
		Format:        string(format),
		SHA256:        sha,
		SizeBytes:     size,
		PSNR:          dist.PSNR,
		MaxDeviation:  int(dist.MaxDeviation),
		ClipLevel:     c.Level,
	}, nil
}

// outputFormat resolves the requested format, falling back to the
// configured default. Sources that cannot be re-encoded are written as PNG.
func (p *Pool) outputFormat(requested string, src imageio.Format) (imageio.Format, error) {
	if requested == "" {
		requested = p.cfg.OutputFormat
	}
	if requested == FormatSource || requested == "" {
		if src.CanEncode() {
			return src, nil
		}
		return imageio.PNG, nil
	}
	f, err := imageio.ParseFormat(requested)
	if err != nil {
		return "", err
	}
	if !f.CanEncode() {
		return "", fmt.Errorf("%w for encoding: %s", imageio.ErrUnsupported, f)
	}
	return f, nil
}

func (p *Pool) processDetectJob(ctx context.Context, job *model.Job) (*model.DetectResult, error) {
	var params model.DetectParams
	if err := json.Unmarshal([]byte(job.Params), &params); err != nil {
		return nil, fmt.Errorf("parse params: %w", err)
	}
	if params.PayloadLength <= 0 {
		return nil, fmt.Errorf("invalid payload length %d", params.PayloadLength)
	}
	band, err := dwtdct.ParseSubband(params.Subband)
	if err != nil {
		return nil, err
	}

	img, _, err := imageio.Load(job.InputPath)
	if err != nil {
		return nil, err
	}
	p.progress(job, 30)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fast := params.Fast || p.cfg.FastDetect
	payload, err := watermark.ExtractImage(img, params.PayloadLength, band, fast)
	switch {
	case errors.Is(err, reedsolomon.ErrDecode):
		return &model.DetectResult{Found: false, Reason: "no fingerprint could be decoded"}, nil
	case errors.Is(err, clip.ErrCapacity):
		return &model.DetectResult{Found: false, Reason: "image too small to carry the payload"}, nil
	case err != nil:
		return nil, err
	}
	p.progress(job, 80)

	result := &model.DetectResult{
		Found:      true,
		PayloadHex: hex.EncodeToString(payload),
	}
	enc := params.Encoding
	fp, err := db.LookupFingerprint(p.database, result.PayloadHex)
	if err != nil {
		return nil, fmt.Errorf("lookup fingerprint: %w", err)
	}
	if fp != nil {
		result.Registered = true
		result.FingerprintID = fp.ID
		result.Label = fp.Label
		result.EmbedJobID = fp.JobID
		if enc == "" {
			enc = fp.Encoding
		}
	}
	result.Payload = watermark.DecodePayload(watermark.Encoding(enc), payload)
	return result, nil
}

func (p *Pool) progress(job *model.Job, progress int) {
	if err := db.UpdateJobProgress(p.database, job.ID, progress); err != nil {
		slog.Warn("update job progress", "job", job.ID, "error", err)
	}
	p.publish(job, "progress", map[string]interface{}{"job_id": job.ID, "progress": progress})
}

func (p *Pool) publish(job *model.Job, eventType string, data interface{}) {
	p.sseHub.PublishJSON(sse.JobTopic(job.ID), eventType, data)
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
