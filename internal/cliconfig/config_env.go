package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (SYNCQ_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("db-path", os.Getenv("SYNCQ_DB_PATH"), &cfg.DBPath)
	s.setString("backend", os.Getenv("SYNCQ_BACKEND"), &cfg.Backend)
	s.setString("service-url", os.Getenv("SYNCQ_SERVICE_URL"), &cfg.ServiceURL)
	s.setString("probe-url", os.Getenv("SYNCQ_PROBE_URL"), &cfg.ProbeURL)
	s.setString("auth-token", os.Getenv("SYNCQ_AUTH_TOKEN"), &cfg.AuthToken)
	s.setString("spool-dir", os.Getenv("SYNCQ_SPOOL_DIR"), &cfg.SpoolDir)
	s.setString("queue-name", os.Getenv("SYNCQ_QUEUE_NAME"), &cfg.QueueName)
	s.setString("log-file", os.Getenv("SYNCQ_LOG_FILE"), &cfg.LogFile)
	s.setString("log-level", os.Getenv("SYNCQ_LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setDuration("poll", os.Getenv("SYNCQ_POLL_INTERVAL"), &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("timeout", os.Getenv("SYNCQ_REQUEST_TIMEOUT"), &cfg.RequestTimeout); err != nil {
		return err
	}
	if err := s.setDuration("item-pacing", os.Getenv("SYNCQ_ITEM_PACING"), &cfg.ItemPacing); err != nil {
		return err
	}

	if err := s.setIntFromString("max-retries", os.Getenv("SYNCQ_MAX_RETRIES"), &cfg.MaxRetries); err != nil {
		return err
	}
	if err := s.setIntFromString("concurrency", os.Getenv("SYNCQ_CONCURRENCY"), &cfg.Concurrency); err != nil {
		return err
	}

	s.setBoolFromString("sync-on-reconnect", os.Getenv("SYNCQ_SYNC_ON_RECONNECT"), &cfg.SyncOnReconnect)

	return nil
}
