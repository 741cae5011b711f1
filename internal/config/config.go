package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every knob the components need. It is built once at startup
// and passed in explicitly; nothing reads the environment after Load returns.
type Config struct {
	APIBaseURL   string
	APIKey       string
	PollInterval time.Duration
	ListenAddr   string
	DataDir      string
	LogLevel     string

	// Proxy rate limiting, requests per minute with a burst allowance.
	RatePerMin float64
	RateBurst  int

	// HistoryKeep bounds the recent-downloads list.
	HistoryKeep int
}

func Load() *Config {
	// A .env file is optional; real env vars win either way.
	godotenv.Load()

	return &Config{
		APIBaseURL:   envOr("API_BASE_URL", "http://localhost:8000/api/v1"),
		APIKey:       envOr("API_KEY", ""),
		PollInterval: envDurationOr("POLL_INTERVAL", 2*time.Second),
		ListenAddr:   envOr("LISTEN_ADDR", ":8080"),
		DataDir:      envOr("DATA_DIR", "./data"),
		LogLevel:     envOr("LOG_LEVEL", "info"),
		RatePerMin:   envFloatOr("RATE_PER_MIN", 30),
		RateBurst:    envIntOr("RATE_BURST", 10),
		HistoryKeep:  envIntOr("HISTORY_KEEP", 100),
	}
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

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
