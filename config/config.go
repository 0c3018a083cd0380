package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DocWatchConfiguration holds every tunable the tracking pipeline reads.
// Values come from a .env file plus process environment, with defaults
// matching the reference deployment.
type DocWatchConfiguration struct {
	// Poller
	PollInterval       time.Duration
	DebounceWindow     time.Duration
	MaxConcurrentPolls int
	FetchAttempts      int
	FetchRetryDelay    time.Duration

	// Snapshots
	AllowedDocTypes     []string
	MaxDocSizeBytes     int64
	MinCompressionRatio float64
	RetentionDays       int

	// Rule queue
	QueueBatchSize  int
	QueueDrainEvery time.Duration
	SyncEvalTimeout time.Duration
	DiffTimeout     time.Duration
	WebhookTimeout  time.Duration

	// Platform + persistence
	PlatformBaseURL string
	PlatformToken   string
	DatabaseDSN     string
	ManagementDSN   string
	ListenAddr      string
}

// LoadEnvConfig reads configName (a .env file) and the environment.
// Keys absent from both fall back to defaults; passing "" skips the
// file and reads the environment alone.
func LoadEnvConfig(configName string) DocWatchConfiguration {
	if configName != "" {
		if err := godotenv.Load(configName); err != nil {
			log.Fatalf("Error loading %s: %v", configName, err)
		}
	}

	return DocWatchConfiguration{
		PollInterval:       envDuration("POLL_INTERVAL_MS", 30_000),
		DebounceWindow:     envDuration("DEBOUNCE_WINDOW_MS", 300_000),
		MaxConcurrentPolls: envInt("MAX_CONCURRENT_POLLS", 10),
		FetchAttempts:      envInt("FETCH_ATTEMPTS", 3),
		FetchRetryDelay:    envDuration("FETCH_RETRY_DELAY_MS", 500),

		AllowedDocTypes:     envList("SNAPSHOT_DOC_TYPES", []string{"doc", "docx", "sheet", "wiki"}),
		MaxDocSizeBytes:     envInt64("SNAPSHOT_MAX_DOC_SIZE_BYTES", 10*1024*1024),
		MinCompressionRatio: envFloat("SNAPSHOT_MIN_COMPRESSION_RATIO", 1.5),
		RetentionDays:       envInt("SNAPSHOT_RETENTION_DAYS", 90),

		QueueBatchSize:  envInt("RULE_QUEUE_BATCH_SIZE", 10),
		QueueDrainEvery: envDuration("RULE_QUEUE_DRAIN_MS", 1_000),
		SyncEvalTimeout: envDuration("RULE_SYNC_TIMEOUT_MS", 5_000),
		DiffTimeout:     envDuration("DIFF_TIMEOUT_MS", 10_000),
		WebhookTimeout:  envDuration("WEBHOOK_TIMEOUT_MS", 10_000),

		PlatformBaseURL: os.Getenv("PLATFORM_BASE_URL"),
		PlatformToken:   os.Getenv("PLATFORM_TOKEN"),
		DatabaseDSN:     os.Getenv("DATABASE_DSN"),
		ManagementDSN:   os.Getenv("MANAGEMENT_DSN"),
		ListenAddr:      envString("LISTEN_ADDR", ":8090"),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("failed to parse %s as integer: %v", key, err)
	}
	return parsed
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Fatalf("failed to parse %s as integer: %v", key, err)
	}
	return parsed
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Fatalf("failed to parse %s as float: %v", key, err)
	}
	return parsed
}

func envDuration(key string, fallbackMs int64) time.Duration {
	return time.Duration(envInt64(key, fallbackMs)) * time.Millisecond
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
