package cliconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestApplyFileConfig(t *testing.T) {
	trueVal := true
	falseVal := false

	tests := []struct {
		name       string
		fileConfig FileConfig
		changed    map[string]bool
		initial    Config
		expected   Config
		wantErr    bool
	}{
		{
			name: "applies all valid config values",
			fileConfig: FileConfig{
				DBPath:          "/cfg/queue.db",
				Backend:         "sqlite",
				ServiceURL:      "http://example.com",
				ProbeURL:        "http://example.com/ping",
				PollInterval:    "5m",
				RequestTimeout:  "20s",
				ItemPacing:      "10ms",
				MaxRetries:      5,
				Concurrency:     2,
				SpoolDir:        "/cfg/spool",
				QueueName:       "q",
				SyncOnReconnect: &trueVal,
				LogFile:         "/cfg/log",
				LogLevel:        "warn",
			},
			changed: map[string]bool{},
			expected: Config{
				DBPath:          "/cfg/queue.db",
				Backend:         "sqlite",
				ServiceURL:      "http://example.com",
				ProbeURL:        "http://example.com/ping",
				PollInterval:    5 * time.Minute,
				RequestTimeout:  20 * time.Second,
				ItemPacing:      10 * time.Millisecond,
				MaxRetries:      5,
				Concurrency:     2,
				SpoolDir:        "/cfg/spool",
				QueueName:       "q",
				SyncOnReconnect: true,
				LogFile:         "/cfg/log",
				LogLevel:        "warn",
			},
		},
		{
			name: "respects changed flags",
			fileConfig: FileConfig{
				DBPath:     "/config/queue.db",
				ServiceURL: "http://config.example.com",
			},
			changed: map[string]bool{"db-path": true},
			initial: Config{
				DBPath:     "/flag/queue.db",
				ServiceURL: "http://flag.example.com",
			},
			expected: Config{
				DBPath:     "/flag/queue.db", // unchanged because flag was set
				ServiceURL: "http://config.example.com",
			},
		},
		{
			name:       "explicit false overrides default true",
			fileConfig: FileConfig{SyncOnReconnect: &falseVal},
			changed:    map[string]bool{},
			initial:    Config{SyncOnReconnect: true},
			expected:   Config{SyncOnReconnect: false},
		},
		{
			name:       "returns error for invalid duration",
			fileConfig: FileConfig{RequestTimeout: "soon"},
			changed:    map[string]bool{},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.initial
			err := ApplyFileConfig(&cfg, tt.fileConfig, tt.changed)

			if tt.wantErr {
				if err == nil {
					t.Error("ApplyFileConfig() expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyFileConfig() unexpected error: %v", err)
			}
			if cfg != tt.expected {
				t.Errorf("ApplyFileConfig() = %+v, want %+v", cfg, tt.expected)
			}
		})
	}
}

func TestLoadFileConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.toml")

	tomlContent := `
db_path = "/tmp/queue.db"
service_url = "https://api.example.com"
poll_interval = "5m"
max_retries = 4
sync_on_reconnect = false
`

	if err := os.WriteFile(configPath, []byte(tomlContent), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	fc, err := LoadFileConfig(configPath)
	if err != nil {
		t.Fatalf("LoadFileConfig() error = %v", err)
	}

	if fc.DBPath != "/tmp/queue.db" {
		t.Errorf("DBPath = %v, want /tmp/queue.db", fc.DBPath)
	}
	if fc.ServiceURL != "https://api.example.com" {
		t.Errorf("ServiceURL = %v, want https://api.example.com", fc.ServiceURL)
	}
	if fc.PollInterval != "5m" {
		t.Errorf("PollInterval = %v, want 5m", fc.PollInterval)
	}
	if fc.MaxRetries != 4 {
		t.Errorf("MaxRetries = %v, want 4", fc.MaxRetries)
	}
	if fc.SyncOnReconnect == nil || *fc.SyncOnReconnect {
		t.Errorf("SyncOnReconnect = %v, want explicit false", fc.SyncOnReconnect)
	}
}

func TestLoadFileConfig_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadFileConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("invalid toml", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "bad.toml")
		if err := os.WriteFile(p, []byte("db_path = [unterminated"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadFileConfig(p); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestFileExists(t *testing.T) {
	p := filepath.Join(t.TempDir(), "f")
	if FileExists(p) {
		t.Error("FileExists() = true before create")
	}
	if err := os.WriteFile(p, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if !FileExists(p) {
		t.Error("FileExists() = false after create")
	}
}
