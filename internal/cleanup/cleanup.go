package cleanup

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/YannKr/fingerprint/internal/db"
)

// DeliveryRetention is how long settled webhook deliveries are kept.
const DeliveryRetention = 30 * 24 * time.Hour

// Cleaner periodically deletes finished jobs older than Retention together
// with their input and output files. The fingerprint registry is never
// pruned.
type Cleaner struct {
	DB        *sql.DB
	DataDir   string
	Interval  time.Duration
	Retention time.Duration
	cancel    context.CancelFunc
	done      chan struct{}
}

func (c *Cleaner) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.loop(ctx)
	slog.Info("cleanup scheduler started", "interval", c.Interval, "retention", c.Retention)
}

func (c *Cleaner) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	slog.Info("cleanup scheduler stopped")
}

func (c *Cleaner) loop(ctx context.Context) {
	defer close(c.done)

	c.RunOnce(time.Now())

	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.RunOnce(now)
		}
	}
}

// RunOnce performs a single cleanup pass as of now.
func (c *Cleaner) RunOnce(now time.Time) {
	jobs, err := db.ListExpiredJobs(c.DB, now.Add(-c.Retention))
	if err != nil {
		slog.Error("cleanup: list expired jobs", "error", err)
	} else {
		for _, job := range jobs {
			for _, dir := range []string{"inputs", "outputs"} {
				jobDir := filepath.Join(c.DataDir, dir, job.ID)
				if err := os.RemoveAll(jobDir); err != nil {
					slog.Warn("cleanup: remove job dir", "dir", jobDir, "error", err)
				}
			}
			if err := db.DeleteJob(c.DB, job.ID); err != nil {
				slog.Error("cleanup: delete job", "id", job.ID, "error", err)
				continue
			}
			slog.Info("cleanup: removed expired job", "id", job.ID, "type", job.JobType)
		}
	}

	if n, err := db.PruneOldWebhookDeliveries(c.DB, now.Add(-DeliveryRetention)); err != nil {
		slog.Error("cleanup: prune webhook deliveries", "error", err)
	} else if n > 0 {
		slog.Info("cleanup: pruned old webhook deliveries", "count", n)
	}
}
