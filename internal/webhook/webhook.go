package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/YannKr/fingerprint/internal/db"
	"github.com/YannKr/fingerprint/internal/model"
)

// Event types.
const (
	EventJobCompleted = "job_completed"
	EventJobFailed    = "job_failed"
)

// SignatureHeader carries "sha256=<hex HMAC of the body>".
const SignatureHeader = "X-Fingerprint-Signature"

var backoffSchedule = []time.Duration{
	30 * time.Second,
	5 * time.Minute,
	30 * time.Minute,
	2 * time.Hour,
}

func nextRetryAt(attemptNumber int) *time.Time {
	idx := attemptNumber - 1
	if idx >= len(backoffSchedule) {
		return nil
	}
	t := time.Now().Add(backoffSchedule[idx])
	return &t
}

type Dispatcher struct {
	DB     *sql.DB
	Client *http.Client

	wg sync.WaitGroup
}

type Event struct {
	EventType string      `json:"event_type"`
	EventID   string      `json:"event_id"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Dispatch records a delivery for every webhook subscribed to eventType and
// attempts each in the background.
func (d *Dispatcher) Dispatch(eventType string, data interface{}) {
	if d == nil || d.DB == nil {
		return
	}

	webhooks, err := db.ListEnabledWebhooks(d.DB, eventType)
	if err != nil {
		slog.Error("webhook lookup", "error", err)
		return
	}
	if len(webhooks) == 0 {
		return
	}

	eventID := uuid.New().String()
	event := Event{
		EventType: eventType,
		EventID:   eventID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("webhook marshal", "error", err)
		return
	}

	now := time.Now()
	for i := range webhooks {
		wh := webhooks[i]
		delivery := &model.WebhookDelivery{
			ID:            uuid.New().String(),
			WebhookID:     wh.ID,
			EventType:     eventType,
			EventID:       eventID,
			PayloadJSON:   string(payload),
			AttemptNumber: 1,
			State:         "pending",
			NextRetryAt:   &now,
		}
		if err := db.CreateWebhookDelivery(d.DB, delivery); err != nil {
			slog.Error("webhook: create delivery record", "error", err)
			continue
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.attemptAndRecord(&wh, delivery)
		}()
	}
}

// Wait blocks until in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (d *Dispatcher) attemptAndRecord(wh *model.Webhook, delivery *model.WebhookDelivery) {
	payload := []byte(delivery.PayloadJSON)
	status, preview, err := postWebhook(d.client(), wh.URL, wh.Secret, payload)

	delivery.ResponseStatus = status
	delivery.ResponseBodyPreview = preview

	if err == nil {
		now := time.Now()
		delivery.State = "delivered"
		delivery.NextRetryAt = nil
		delivery.DeliveredAt = &now
		delivery.ErrorMessage = ""
		slog.Info("webhook delivered", "url", wh.URL, "event", delivery.EventType)
	} else {
		delivery.ErrorMessage = err.Error()
		nextAt := nextRetryAt(delivery.AttemptNumber)
		if nextAt == nil {
			delivery.State = "exhausted"
			delivery.NextRetryAt = nil
			slog.Warn("webhook exhausted", "url", wh.URL, "event", delivery.EventType, "attempts", delivery.AttemptNumber)
		} else {
			delivery.State = "failed"
			delivery.NextRetryAt = nextAt
			slog.Warn("webhook failed, will retry", "url", wh.URL, "event", delivery.EventType,
				"attempt", delivery.AttemptNumber, "next_retry", nextAt)
		}
	}

	if uerr := db.UpdateWebhookDelivery(d.DB, delivery); uerr != nil {
		slog.Error("webhook: update delivery record", "error", uerr)
	}
}

func postWebhook(client *http.Client, url, secret string, payload []byte) (statusCode *int, preview string, err error) {
	req, reqErr := http.NewRequest("POST", url, bytes.NewReader(payload))
	if reqErr != nil {
		return nil, "", fmt.Errorf("create request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, "sha256="+Sign(secret, payload))

	resp, respErr := client.Do(req)
	if respErr != nil {
		return nil, "", fmt.Errorf("post: %w", respErr)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
	preview = string(body)
	code := resp.StatusCode
	statusCode = &code

	if resp.StatusCode >= 400 {
		return statusCode, preview, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return statusCode, preview, nil
}

// EnsureConfigured registers url as the webhook for all job events, updating
// the secret of an existing registration. An empty url is a no-op.
func EnsureConfigured(database *sql.DB, url, secret string) error {
	if url == "" {
		return nil
	}
	events := EventJobCompleted + "," + EventJobFailed
	existing, err := db.GetWebhookByURL(database, url)
	if err != nil {
		return err
	}
	if existing != nil {
		existing.Secret = secret
		existing.Events = events
		existing.Enabled = true
		return db.UpdateWebhook(database, existing)
	}
	return db.CreateWebhook(database, &model.Webhook{
		ID:      uuid.New().String(),
		URL:     url,
		Secret:  secret,
		Events:  events,
		Enabled: true,
	})
}
