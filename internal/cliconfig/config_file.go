package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	DBPath          string `toml:"db_path"`
	Backend         string `toml:"backend"`
	ServiceURL      string `toml:"service_url"`
	ProbeURL        string `toml:"probe_url"`
	AuthToken       string `toml:"auth_token"`
	PollInterval    string `toml:"poll_interval"`
	RequestTimeout  string `toml:"request_timeout"`
	ItemPacing      string `toml:"item_pacing"`
	MaxRetries      int    `toml:"max_retries"`
	Concurrency     int    `toml:"concurrency"`
	SpoolDir        string `toml:"spool_dir"`
	QueueName       string `toml:"queue_name"`
	SyncOnReconnect *bool  `toml:"sync_on_reconnect"`
	LogFile         string `toml:"log_file"`
	LogLevel        string `toml:"log_level"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.syncq/config.toml, or "" if the home
// directory is unknown.
func DefaultConfigPath() string {
	if h := DefaultHome(); h != "" {
		return filepath.Join(h, "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("db-path", fc.DBPath, &cfg.DBPath)
	s.setString("backend", fc.Backend, &cfg.Backend)
	s.setString("service-url", fc.ServiceURL, &cfg.ServiceURL)
	s.setString("probe-url", fc.ProbeURL, &cfg.ProbeURL)
	s.setString("auth-token", fc.AuthToken, &cfg.AuthToken)
	s.setString("spool-dir", fc.SpoolDir, &cfg.SpoolDir)
	s.setString("queue-name", fc.QueueName, &cfg.QueueName)
	s.setString("log-file", fc.LogFile, &cfg.LogFile)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	if err := s.setDuration("poll", fc.PollInterval, &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("timeout", fc.RequestTimeout, &cfg.RequestTimeout); err != nil {
		return err
	}
	if err := s.setDuration("item-pacing", fc.ItemPacing, &cfg.ItemPacing); err != nil {
		return err
	}

	s.setInt("max-retries", fc.MaxRetries, &cfg.MaxRetries)
	s.setInt("concurrency", fc.Concurrency, &cfg.Concurrency)

	s.setBool("sync-on-reconnect", fc.SyncOnReconnect, &cfg.SyncOnReconnect)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
