package syncq

import (
	"fmt"
	"strings"
	"time"

	"github.com/bft-labs/syncq/pkg/connectivity"
	"github.com/bft-labs/syncq/pkg/coordinator"
	"github.com/bft-labs/syncq/pkg/queue"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

// Config holds the configuration for a Client.
// Use DefaultConfig() to get a Config with default values.
type Config struct {
	// DBPath is the durable store location. Required unless WithStore is used.
	DBPath string

	// Backend selects the store implementation: "sqlite" or "file".
	// Default: "sqlite"
	Backend string

	// ServiceURL is the backend base URL. Required unless WithRemote is used.
	ServiceURL string

	// ProbeURL enables the HTTP reachability probe. Empty means the client
	// assumes it is online unless WithSignal is used.
	ProbeURL string

	// PollInterval is the connectivity fallback polling period.
	// Default: 30 seconds
	PollInterval time.Duration

	// RequestTimeout bounds each remote attempt.
	// Default: 15 seconds
	RequestTimeout time.Duration

	// MaxRetries is the number of failed attempts after which a record is
	// permanently failed.
	// Default: 3
	MaxRetries int

	// SpoolDir enables the spool background agent and watcher.
	SpoolDir string

	// QueueName identifies this queue to the background agent.
	// Default: "mutations"
	QueueName string

	// ItemPacing is an optional delay between consecutive attempts.
	ItemPacing time.Duration

	// Concurrency is the number of records attempted at once.
	// Default: 1
	Concurrency int

	// SyncOnReconnect drains the queue when connectivity returns and on Start.
	SyncOnReconnect bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Backend:         BackendSQLite,
		PollInterval:    connectivity.DefaultPollInterval,
		RequestTimeout:  coordinator.DefaultRequestTimeout,
		MaxRetries:      queue.DefaultMaxRetries,
		QueueName:       coordinator.DefaultQueueName,
		Concurrency:     1,
		SyncOnReconnect: true,
	}
}

// SetDefaults fills zero-valued fields with defaults.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = BackendSQLite
	}
	if c.PollInterval == 0 {
		c.PollInterval = connectivity.DefaultPollInterval
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = coordinator.DefaultRequestTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = queue.DefaultMaxRetries
	}
	if c.QueueName == "" {
		c.QueueName = coordinator.DefaultQueueName
	}
	if c.Concurrency == 0 {
		c.Concurrency = 1
	}
	c.ServiceURL = strings.TrimRight(c.ServiceURL, "/")
}

// Validate checks the configuration. Errors wrap ErrInvalidConfig.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSQLite, BackendFile:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", ErrInvalidConfig)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request timeout must be positive", ErrInvalidConfig)
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("%w: max retries must be positive", ErrInvalidConfig)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("%w: concurrency must be positive", ErrInvalidConfig)
	}
	if c.ItemPacing < 0 {
		return fmt.Errorf("%w: item pacing must not be negative", ErrInvalidConfig)
	}
	if strings.ContainsAny(c.QueueName, `/\`) {
		return fmt.Errorf("%w: invalid queue name %q", ErrInvalidConfig, c.QueueName)
	}
	return nil
}
