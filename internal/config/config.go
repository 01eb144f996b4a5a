// Package config loads engine configuration from the environment.
//
// A .env file is honored when present (development convenience); real
// deployments set the variables directly. Parsed values are carried in a
// typed Config; nothing else reads os.Getenv after startup.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all application configuration.
type Config struct {
	// Server
	ListenAddr string
	PublicURL  string

	// Persistence
	DatabaseURL         string
	StorageDriver       string // "fs" or "s3"
	StorageDir          string
	StorageBucketPrefix string

	// Outbound adapters
	CarrierAPIKey    string
	CarrierBaseURL   string
	ClassifierAPIKey string
	ClassifierURL    string
	MailProvider     string
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	SMTPFrom         string

	// Auth
	JWTVerifierKey string
	TokenTTL       time.Duration

	// Workers
	WorkerPoolSize        int
	PollIntervalOverrides map[string]time.Duration

	// Timeouts
	DBTimeout      time.Duration
	BlobTimeout    time.Duration
	CarrierTimeout time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment, applying defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("Loaded configuration from .env")
	}

	cfg := &Config{
		ListenAddr:          envString("LISTEN_ADDR", ":8080"),
		PublicURL:           envString("PUBLIC_URL", ""),
		DatabaseURL:         envString("DATABASE_URL", ""),
		StorageDriver:       envString("STORAGE_DRIVER", "fs"),
		StorageDir:          envString("STORAGE_DIR", "./data/blobs"),
		StorageBucketPrefix: envString("STORAGE_BUCKET_PREFIX", "tracehub"),
		CarrierAPIKey:       envString("CARRIER_API_KEY", ""),
		CarrierBaseURL:      envString("CARRIER_BASE_URL", "https://api.carrier.example.com"),
		ClassifierAPIKey:    envString("CLASSIFIER_API_KEY", ""),
		ClassifierURL:       envString("CLASSIFIER_URL", ""),
		MailProvider:        envString("MAIL_PROVIDER", "smtp"),
		SMTPHost:            envString("SMTP_HOST", ""),
		SMTPPort:            envInt("SMTP_PORT", 587),
		SMTPUsername:        envString("SMTP_USERNAME", ""),
		SMTPPassword:        envString("SMTP_PASSWORD", ""),
		SMTPFrom:            envString("SMTP_FROM", "noreply@tracehub.local"),
		JWTVerifierKey:      envString("JWT_VERIFIER_KEY", ""),
		TokenTTL:            envDuration("TOKEN_TTL", 24*time.Hour),
		WorkerPoolSize:      envInt("WORKER_POOL_SIZE", 16),
		DBTimeout:           envDuration("DB_TIMEOUT", 10*time.Second),
		BlobTimeout:         envDuration("BLOB_TIMEOUT", 30*time.Second),
		CarrierTimeout:      envDuration("CARRIER_TIMEOUT", 20*time.Second),
		LogLevel:            envString("LOG_LEVEL", "info"),
		LogFormat:           envString("LOG_FORMAT", "auto"),
	}

	if cfg.WorkerPoolSize < 1 {
		log.Warn().Int("workers", cfg.WorkerPoolSize).Msg("WORKER_POOL_SIZE below 1, using default of 16")
		cfg.WorkerPoolSize = 16
	}

	overrides, err := parsePollOverrides(os.Getenv("POLL_INTERVAL_OVERRIDES"))
	if err != nil {
		return nil, fmt.Errorf("invalid POLL_INTERVAL_OVERRIDES: %w", err)
	}
	cfg.PollIntervalOverrides = overrides

	return cfg, nil
}

// parsePollOverrides decodes the JSON map of shipment state → interval,
// e.g. {"in_transit":"30m","arrived":"15m"}.
func parsePollOverrides(raw string) (map[string]time.Duration, error) {
	out := make(map[string]time.Duration)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return out, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	for state, v := range m {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("state %q: %w", state, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("state %q: interval must be positive", state)
		}
		out[state] = d
	}
	return out, nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid integer in environment, using default")
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid duration in environment, using default")
		return def
	}
	return d
}
