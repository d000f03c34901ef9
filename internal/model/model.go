package model

import "time"

const (
	JobTypeEmbed  = "embed"
	JobTypeDetect = "detect"
)

const (
	JobPending   = "PENDING"
	JobRunning   = "RUNNING"
	JobCompleted = "COMPLETED"
	JobFailed    = "FAILED"
)

type Job struct {
	ID           string
	JobType      string
	APIKeyID     string
	State        string
	Progress     int
	InputPath    string
	OutputPath   string
	Params       string
	ResultData   string
	ErrorMessage string
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// Finished reports whether the job reached a terminal state.
func (j *Job) Finished() bool {
	return j.State == JobCompleted || j.State == JobFailed
}

// EmbedParams is stored in jobs.params for embed jobs.
type EmbedParams struct {
	Payload  string `json:"payload"`
	Encoding string `json:"encoding"`
	Subband  string `json:"subband"`
	Label    string `json:"label,omitempty"`
	Format   string `json:"format"`
	Quality  int    `json:"quality,omitempty"`
}

// DetectParams is stored in jobs.params for detect jobs.
type DetectParams struct {
	PayloadLength int    `json:"payload_length"`
	Encoding      string `json:"encoding"`
	Subband       string `json:"subband"`
	Fast          bool   `json:"fast"`
}

type EmbedResult struct {
	FingerprintID string  `json:"fingerprint_id"`
	PayloadHex    string  `json:"payload_hex"`
	PayloadLength int     `json:"payload_length"`
	Encoding      string  `json:"encoding"`
	Subband       string  `json:"subband"`
	Format        string  `json:"format"`
	SHA256        string  `json:"sha256"`
	SizeBytes     int64   `json:"size_bytes"`
	PSNR          float64 `json:"psnr_db"`
	MaxDeviation  int     `json:"max_deviation"`
	ClipLevel     int     `json:"clip_level"`
}

type DetectResult struct {
	Found         bool   `json:"found"`
	Reason        string `json:"reason,omitempty"`
	PayloadHex    string `json:"payload_hex,omitempty"`
	Payload       string `json:"payload,omitempty"`
	Registered    bool   `json:"registered"`
	FingerprintID string `json:"fingerprint_id,omitempty"`
	Label         string `json:"label,omitempty"`
	EmbedJobID    string `json:"embed_job_id,omitempty"`
}

// Fingerprint is a payload issued by an embed job.
type Fingerprint struct {
	ID            string
	PayloadHex    string
	PayloadLength int
	Encoding      string
	Subband       string
	Label         string
	JobID         string
	OutputSHA256  string
	CreatedAt     time.Time
}

type APIKey struct {
	ID         string
	Name       string
	KeyPrefix  string
	KeyHash    string
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

type Webhook struct {
	ID        string
	URL       string
	Secret    string
	Events    string
	Enabled   bool
	CreatedAt time.Time
}

type WebhookDelivery struct {
	ID                  string
	WebhookID           string
	EventType           string
	EventID             string
	PayloadJSON         string
	AttemptNumber       int
	ResponseStatus      *int
	ResponseBodyPreview string
	ErrorMessage        string
	State               string
	NextRetryAt         *time.Time
	DeliveredAt         *time.Time
	CreatedAt           time.Time
}
