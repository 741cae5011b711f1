package config_test

import (
	"testing"
	"time"

	"github.com/hferr/grabvid/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg := config.Load()
	if cfg.APIBaseURL == "" {
		t.Error("APIBaseURL default missing")
	}
	if cfg.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %v, want 2s default", cfg.PollInterval)
	}
	if cfg.RateBurst <= 0 {
		t.Errorf("RateBurst = %d, want positive default", cfg.RateBurst)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://api.example.com/v1")
	t.Setenv("API_KEY", "k-123")
	t.Setenv("POLL_INTERVAL", "500ms")
	t.Setenv("RATE_BURST", "3")

	cfg := config.Load()
	if cfg.APIBaseURL != "https://api.example.com/v1" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.APIKey != "k-123" {
		t.Errorf("APIKey = %q", cfg.APIKey)
	}
	if cfg.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.RateBurst != 3 {
		t.Errorf("RateBurst = %d", cfg.RateBurst)
	}
}

func TestLoadIgnoresGarbage(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "soon")
	t.Setenv("RATE_BURST", "many")

	cfg := config.Load()
	if cfg.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %v, want fallback on parse failure", cfg.PollInterval)
	}
	if cfg.RateBurst != 10 {
		t.Errorf("RateBurst = %d, want fallback on parse failure", cfg.RateBurst)
	}
}
