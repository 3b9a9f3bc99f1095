package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/syncq/pkg/syncq"
)

// Config holds CLI configuration for syncq.
type Config struct {
	DBPath  string
	Backend string

	ServiceURL string
	ProbeURL   string
	AuthToken  string

	PollInterval   time.Duration
	RequestTimeout time.Duration
	ItemPacing     time.Duration

	MaxRetries  int
	Concurrency int

	SpoolDir        string
	QueueName       string
	SyncOnReconnect bool

	LogFile  string
	LogLevel string
}

// DefaultConfig returns a Config with default values rooted at ~/.syncq.
func DefaultConfig() Config {
	lib := syncq.DefaultConfig()
	home := DefaultHome()

	cfg := Config{
		Backend:         lib.Backend,
		PollInterval:    lib.PollInterval,
		RequestTimeout:  lib.RequestTimeout,
		MaxRetries:      lib.MaxRetries,
		Concurrency:     lib.Concurrency,
		QueueName:       lib.QueueName,
		SyncOnReconnect: lib.SyncOnReconnect,
		LogLevel:        "info",
		AuthToken:       os.Getenv("SYNCQ_AUTH_TOKEN"),
	}
	if home != "" {
		cfg.DBPath = filepath.Join(home, "queue.db")
		cfg.SpoolDir = filepath.Join(home, "spool")
	}
	return cfg
}

// DefaultHome returns ~/.syncq, or "" if the home directory is unknown.
func DefaultHome() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".syncq")
	}
	return ""
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db-path is required")
	}
	switch c.Backend {
	case syncq.BackendSQLite, syncq.BackendFile:
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", syncq.BackendSQLite, syncq.BackendFile, c.Backend)
	}

	c.ServiceURL = strings.TrimRight(c.ServiceURL, "/")

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be positive")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	return nil
}

// RequireService returns an error unless a service URL is configured.
func (c *Config) RequireService() error {
	if c.ServiceURL == "" {
		return fmt.Errorf("service-url is required")
	}
	return nil
}

// ClientConfig converts the CLI configuration to a library Config.
func (c Config) ClientConfig() syncq.Config {
	return syncq.Config{
		DBPath:          c.DBPath,
		Backend:         c.Backend,
		ServiceURL:      c.ServiceURL,
		ProbeURL:        c.ProbeURL,
		PollInterval:    c.PollInterval,
		RequestTimeout:  c.RequestTimeout,
		MaxRetries:      c.MaxRetries,
		SpoolDir:        c.SpoolDir,
		QueueName:       c.QueueName,
		ItemPacing:      c.ItemPacing,
		Concurrency:     c.Concurrency,
		SyncOnReconnect: c.SyncOnReconnect,
	}
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if positive.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
