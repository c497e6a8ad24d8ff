package config

import (
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "zero batch size",
			mutate: func(cfg *Config) {
				cfg.BatchSize = 0
			},
			wantErr: "batch size",
		},
		{
			name: "negative throttle",
			mutate: func(cfg *Config) {
				cfg.Throttle = -1
			},
			wantErr: "throttle",
		},
		{
			name: "empty base url",
			mutate: func(cfg *Config) {
				cfg.BaseURL = ""
			},
			wantErr: "base URL",
		},
		{
			name: "invalid url format",
			mutate: func(cfg *Config) {
				cfg.BaseURL = "http://"
			},
			wantErr: "base URL",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "relay without key",
			mutate: func(cfg *Config) {
				cfg.UseRelay = true
				cfg.RelayAPIKey = ""
			},
			wantErr: "relay API key",
		},
		{
			name: "unknown image size",
			mutate: func(cfg *Config) {
				cfg.ImageSize = "huge"
			},
			wantErr: "image size",
		},
		{
			name: "postgres without dsn",
			mutate: func(cfg *Config) {
				cfg.Sink = "postgres"
				cfg.DatabaseURL = ""
			},
			wantErr: "database URL",
		},
		{
			name: "unknown sink",
			mutate: func(cfg *Config) {
				cfg.Sink = "parquet"
			},
			wantErr: "sink",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("SCRAPER_BATCH", " 12 ")
	t.Setenv("SCRAPER_BAD", "twelve")
	t.Setenv("SCRAPER_RELAY", "true")
	t.Setenv("SCRAPER_EMPTY", "   ")

	if v, ok, err := EnvInt("SCRAPER_BATCH"); err != nil || !ok || v != 12 {
		t.Fatalf("EnvInt = %d, %v, %v; want 12, true, nil", v, ok, err)
	}
	if _, _, err := EnvInt("SCRAPER_BAD"); err == nil {
		t.Fatalf("expected parse error for SCRAPER_BAD")
	}
	if v, ok, err := EnvBool("SCRAPER_RELAY"); err != nil || !ok || !v {
		t.Fatalf("EnvBool = %v, %v, %v; want true, true, nil", v, ok, err)
	}
	if _, ok := EnvString("SCRAPER_EMPTY"); ok {
		t.Fatalf("blank value should be treated as unset")
	}
	if _, ok := EnvString("SCRAPER_UNSET_FOR_TEST"); ok {
		t.Fatalf("unset key should report false")
	}
}
