package webhook

import (
	"context"
	"log/slog"
	"time"

	"github.com/YannKr/fingerprint/internal/db"
)

// Retrier re-attempts failed deliveries whose backoff has elapsed.
type Retrier struct {
	Dispatcher *Dispatcher
	Interval   time.Duration
}

func (r *Retrier) Start(ctx context.Context) {
	if r.Interval == 0 {
		r.Interval = 30 * time.Second
	}
	go r.loop(ctx)
	slog.Info("webhook retrier started", "interval", r.Interval)
}

func (r *Retrier) loop(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.RunOnce(now)
		}
	}
}

// RunOnce retries every delivery due at now.
func (r *Retrier) RunOnce(now time.Time) {
	d := r.Dispatcher
	deliveries, err := db.ListDueWebhookDeliveries(d.DB, now)
	if err != nil {
		slog.Error("webhook retrier: list due deliveries", "error", err)
		return
	}
	for i := range deliveries {
		delivery := &deliveries[i]
		wh, err := db.GetWebhookByID(d.DB, delivery.WebhookID)
		if err != nil || wh == nil {
			continue
		}
		delivery.AttemptNumber++
		d.attemptAndRecord(wh, delivery)
	}
}
