package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	ListenAddr     string
	DataDir        string
	LogLevel       string
	MaxUploadBytes int64
	WorkerCount    int

	// AdminToken guards API key management. Key management is disabled
	// when empty.
	AdminToken string

	WebhookURL    string
	WebhookSecret string

	JobRetentionHours   int
	CleanupIntervalMins int
	DiskBlockFreeBytes  int64

	DefaultSubband string
	OutputFormat   string
	JPEGQuality    int
	FastDetect     bool

	APIRatePerSec float64
	APIBurst      int
}

func Load() *Config {
	return &Config{
		ListenAddr:          envOr("LISTEN_ADDR", ":8080"),
		DataDir:             envOr("DATA_DIR", "./data"),
		LogLevel:            envOr("LOG_LEVEL", "info"),
		MaxUploadBytes:      envInt64Or("MAX_UPLOAD_BYTES", 200*1024*1024),
		WorkerCount:         envIntOr("WORKER_COUNT", 2),
		AdminToken:          envOr("ADMIN_TOKEN", ""),
		WebhookURL:          envOr("WEBHOOK_URL", ""),
		WebhookSecret:       envOr("WEBHOOK_SECRET", ""),
		JobRetentionHours:   envIntOr("JOB_RETENTION_HOURS", 72),
		CleanupIntervalMins: envIntOr("CLEANUP_INTERVAL_MINS", 15),
		DiskBlockFreeBytes:  envInt64Or("DISK_BLOCK_FREE_BYTES", 1024*1024*1024),
		DefaultSubband:      envOr("DEFAULT_SUBBAND", "HL"),
		OutputFormat:        envOr("OUTPUT_FORMAT", "png"),
		JPEGQuality:         envIntOr("JPEG_QUALITY", 100),
		FastDetect:          envBoolOr("FAST_DETECT", false),
		APIRatePerSec:       envFloatOr("API_RATE_PER_SEC", 2),
		APIBurst:            envIntOr("API_BURST", 20),
	}
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	return ParseLogLevel(c.LogLevel)
}

func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64Or(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
