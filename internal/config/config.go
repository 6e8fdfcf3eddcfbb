package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Default engine timings, overridable per environment.
const (
	DefaultDebounceWindow = 500 * time.Millisecond
	DefaultPollInterval   = time.Second
)

// Config holds the configuration for the sync engine.
type Config struct {
	ServerURL    string
	SessionToken string
	CacheDBPath  string

	DebounceWindow time.Duration
	PollInterval   time.Duration
}

// NewFromEnv creates a new Config object from environment variables. A .env
// file in the working directory is loaded first when present.
func NewFromEnv() (*Config, error) {
	// Missing .env is fine; real environments set variables directly.
	_ = godotenv.Load()

	serverURL := os.Getenv("PANTRY_SERVER_URL")
	if serverURL == "" {
		return nil, fmt.Errorf("PANTRY_SERVER_URL environment variable not set")
	}

	// Optional: requests go out degraded without it.
	sessionToken := os.Getenv("PANTRY_SESSION_TOKEN")

	cacheDBPath := os.Getenv("PANTRY_CACHE_DB")
	if cacheDBPath == "" {
		cacheDBPath = "data/pantry_cache.db"
	}

	debounce, err := durationFromEnv("PANTRY_DEBOUNCE_MS", DefaultDebounceWindow)
	if err != nil {
		return nil, err
	}
	poll, err := durationFromEnv("PANTRY_POLL_INTERVAL_MS", DefaultPollInterval)
	if err != nil {
		return nil, err
	}

	return &Config{
		ServerURL:      serverURL,
		SessionToken:   sessionToken,
		CacheDBPath:    cacheDBPath,
		DebounceWindow: debounce,
		PollInterval:   poll,
	}, nil
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer of milliseconds, got %q", key, raw)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
