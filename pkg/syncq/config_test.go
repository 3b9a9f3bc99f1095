package syncq

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Backend != BackendSQLite {
		t.Errorf("Backend = %q, want sqlite", cfg.Backend)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %v, want 30s", cfg.PollInterval)
	}
	if cfg.RequestTimeout != 15*time.Second {
		t.Errorf("RequestTimeout = %v, want 15s", cfg.RequestTimeout)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.Concurrency != 1 {
		t.Errorf("Concurrency = %d, want 1", cfg.Concurrency)
	}
	if !cfg.SyncOnReconnect {
		t.Error("SyncOnReconnect = false, want true")
	}
}

func TestConfig_SetDefaults(t *testing.T) {
	cfg := Config{ServiceURL: "https://api.example.com/"}
	cfg.SetDefaults()

	if cfg.ServiceURL != "https://api.example.com" {
		t.Errorf("ServiceURL = %q, trailing slash not trimmed", cfg.ServiceURL)
	}
	if cfg.QueueName != "mutations" {
		t.Errorf("QueueName = %q", cfg.QueueName)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() after SetDefaults = %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"file backend", func(c *Config) { c.Backend = BackendFile }, false},
		{"unknown backend", func(c *Config) { c.Backend = "bolt" }, true},
		{"zero poll", func(c *Config) { c.PollInterval = 0 }, true},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }, true},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, true},
		{"negative pacing", func(c *Config) { c.ItemPacing = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error %v does not wrap ErrInvalidConfig", err)
			}
		})
	}
}
