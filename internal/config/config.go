package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr  string
	AuthToken string

	// QueueDriver selects the postback store: "memory", "sqlite" or
	// "postgres". QueueDSN is ignored for "memory".
	QueueDriver string
	QueueDSN    string

	PostbackMaxRetries          int
	PostbackRetryBackoffSeconds int
	PostbackTimeoutSeconds      int
	PostbackBatchSize           int
	PostbackRetentionSeconds    int
	CleanupIntervalSeconds      int
}

func Load() (Config, error) {
	// Optional: load local .env for development. Missing file is fine.
	_ = godotenv.Load()

	maxRetries := getenvIntDefault("RELAY_POSTBACK_MAX_RETRIES", 3)
	if maxRetries < 1 {
		maxRetries = 1
	}

	backoff := getenvIntDefault("RELAY_POSTBACK_RETRY_BACKOFF_SECONDS", 10)
	if backoff < 1 {
		backoff = 1
	}

	timeout := getenvIntDefault("RELAY_POSTBACK_TIMEOUT_SECONDS", 30)
	if timeout < 1 {
		timeout = 1
	}

	batch := getenvIntDefault("RELAY_POSTBACK_BATCH_SIZE", 10)
	if batch < 1 {
		batch = 1
	}

	retention := getenvIntDefault("RELAY_POSTBACK_RETENTION_SECONDS", 3600)
	if retention < 60 {
		retention = 60
	}

	cleanup := getenvIntDefault("RELAY_CLEANUP_INTERVAL_SECONDS", 3600)
	if cleanup < 60 {
		cleanup = 60
	}

	cfg := Config{
		HTTPAddr:    getenvDefault("RELAY_HTTP_ADDR", ":8080"),
		AuthToken:   strings.TrimSpace(os.Getenv("RELAY_AUTH_TOKEN")),
		QueueDriver: strings.ToLower(getenvDefault("RELAY_QUEUE_DRIVER", "memory")),
		QueueDSN:    strings.TrimSpace(os.Getenv("RELAY_QUEUE_DSN")),

		PostbackMaxRetries:          maxRetries,
		PostbackRetryBackoffSeconds: backoff,
		PostbackTimeoutSeconds:      timeout,
		PostbackBatchSize:           batch,
		PostbackRetentionSeconds:    retention,
		CleanupIntervalSeconds:      cleanup,
	}

	if cfg.AuthToken == "" {
		return Config{}, errors.New("RELAY_AUTH_TOKEN is required")
	}
	switch cfg.QueueDriver {
	case "memory", "sqlite", "postgres":
	default:
		return Config{}, fmt.Errorf("unsupported RELAY_QUEUE_DRIVER %q", cfg.QueueDriver)
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getenvIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
