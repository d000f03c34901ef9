package db

import (
	"database/sql"
	"strings"
	"time"

	"github.com/YannKr/fingerprint/internal/model"
)

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func scanWebhook(row rowScanner) (*model.Webhook, error) {
	w := &model.Webhook{}
	var enabled int
	var createdAt SQLiteTime
	if err := row.Scan(&w.ID, &w.URL, &w.Secret, &w.Events, &enabled, &createdAt); err != nil {
		return nil, err
	}
	w.Enabled = enabled != 0
	w.CreatedAt = createdAt.Time
	return w, nil
}

func CreateWebhook(database *sql.DB, w *model.Webhook) error {
	_, err := database.Exec(
		`INSERT INTO webhooks (id, url, secret, events, enabled) VALUES (?, ?, ?, ?, ?)`,
		w.ID, w.URL, w.Secret, w.Events, boolToInt(w.Enabled),
	)
	return err
}

func GetWebhookByID(database *sql.DB, id string) (*model.Webhook, error) {
	w, err := scanWebhook(database.QueryRow(
		`SELECT id, url, secret, events, enabled, created_at FROM webhooks WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return w, err
}

// GetWebhookByURL returns the webhook registered for url, if any.
func GetWebhookByURL(database *sql.DB, url string) (*model.Webhook, error) {
	w, err := scanWebhook(database.QueryRow(
		`SELECT id, url, secret, events, enabled, created_at FROM webhooks WHERE url = ?`, url))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return w, err
}

func UpdateWebhook(database *sql.DB, w *model.Webhook) error {
	_, err := database.Exec(
		`UPDATE webhooks SET url = ?, secret = ?, events = ?, enabled = ? WHERE id = ?`,
		w.URL, w.Secret, w.Events, boolToInt(w.Enabled), w.ID,
	)
	return err
}

// ListEnabledWebhooks returns enabled webhooks subscribed to eventType.
func ListEnabledWebhooks(database *sql.DB, eventType string) ([]model.Webhook, error) {
	rows, err := database.Query(
		`SELECT id, url, secret, events, enabled, created_at
		 FROM webhooks WHERE enabled = 1 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var webhooks []model.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		for _, e := range strings.Split(w.Events, ",") {
			if strings.TrimSpace(e) == eventType {
				webhooks = append(webhooks, *w)
				break
			}
		}
	}
	return webhooks, rows.Err()
}

const deliveryColumns = `id, webhook_id, event_type, event_id, payload_json, attempt_number,
	response_status, response_body_preview, error_message, state, next_retry_at, delivered_at, created_at`

func scanDelivery(row rowScanner) (*model.WebhookDelivery, error) {
	d := &model.WebhookDelivery{}
	var status sql.NullInt64
	var nextRetry, delivered sql.NullString
	var createdAt SQLiteTime
	err := row.Scan(&d.ID, &d.WebhookID, &d.EventType, &d.EventID, &d.PayloadJSON, &d.AttemptNumber,
		&status, &d.ResponseBodyPreview, &d.ErrorMessage, &d.State, &nextRetry, &delivered, &createdAt)
	if err != nil {
		return nil, err
	}
	if status.Valid {
		s := int(status.Int64)
		d.ResponseStatus = &s
	}
	d.NextRetryAt = scanNullTime(nextRetry)
	d.DeliveredAt = scanNullTime(delivered)
	d.CreatedAt = createdAt.Time
	return d, nil
}

func CreateWebhookDelivery(database *sql.DB, d *model.WebhookDelivery) error {
	_, err := database.Exec(
		`INSERT INTO webhook_deliveries (id, webhook_id, event_type, event_id, payload_json, attempt_number, state, next_retry_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.WebhookID, d.EventType, d.EventID, d.PayloadJSON, d.AttemptNumber, d.State, nullableTime(d.NextRetryAt),
	)
	return err
}

func UpdateWebhookDelivery(database *sql.DB, d *model.WebhookDelivery) error {
	var status interface{}
	if d.ResponseStatus != nil {
		status = *d.ResponseStatus
	}
	_, err := database.Exec(
		`UPDATE webhook_deliveries
		 SET attempt_number = ?, response_status = ?, response_body_preview = ?, error_message = ?,
		     state = ?, next_retry_at = ?, delivered_at = ?
		 WHERE id = ?`,
		d.AttemptNumber, status, d.ResponseBodyPreview, d.ErrorMessage,
		d.State, nullableTime(d.NextRetryAt), nullableTime(d.DeliveredAt), d.ID,
	)
	return err
}

func GetWebhookDelivery(database *sql.DB, id string) (*model.WebhookDelivery, error) {
	d, err := scanDelivery(database.QueryRow(`SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

// ListDueWebhookDeliveries returns failed deliveries whose retry time has
// passed.
func ListDueWebhookDeliveries(database *sql.DB, now time.Time) ([]model.WebhookDelivery, error) {
	rows, err := database.Query(`SELECT `+deliveryColumns+` FROM webhook_deliveries
		WHERE state = 'failed' AND next_retry_at IS NOT NULL AND next_retry_at <= ?
		ORDER BY next_retry_at ASC LIMIT 100`, formatTime(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.WebhookDelivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// PruneOldWebhookDeliveries deletes settled deliveries created before cutoff.
func PruneOldWebhookDeliveries(database *sql.DB, cutoff time.Time) (int64, error) {
	res, err := database.Exec(
		`DELETE FROM webhook_deliveries WHERE state IN ('delivered', 'exhausted') AND created_at < ?`,
		formatTime(cutoff),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
