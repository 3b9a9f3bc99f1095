package coordinator

import (
	"context"
	"time"

	"github.com/bft-labs/syncq/pkg/background"
	"github.com/bft-labs/syncq/pkg/log"
	"github.com/bft-labs/syncq/pkg/queue"
)

// Defaults.
const (
	DefaultRequestTimeout = 15 * time.Second
	DefaultQueueName      = "mutations"
)

// Config holds coordinator settings.
type Config struct {
	// MaxRetries is the retry cap; records at or above it are permanently failed.
	// Default: 3
	MaxRetries int

	// RequestTimeout bounds each remote attempt.
	// Default: 15 seconds
	RequestTimeout time.Duration

	// ItemPacing is a delay between consecutive attempts. Zero disables it.
	ItemPacing time.Duration

	// Concurrency is the number of records attempted at once.
	// Default: 1 (strictly sequential)
	Concurrency int

	// QueueName identifies the queue to the background agent.
	// Default: "mutations"
	QueueName string

	// SyncOnReconnect starts a drain when connectivity comes back.
	SyncOnReconnect bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      queue.DefaultMaxRetries,
		RequestTimeout:  DefaultRequestTimeout,
		Concurrency:     1,
		QueueName:       DefaultQueueName,
		SyncOnReconnect: true,
	}
}

func (c *Config) setDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = queue.DefaultMaxRetries
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.QueueName == "" {
		c.QueueName = DefaultQueueName
	}
	if c.ItemPacing < 0 {
		c.ItemPacing = 0
	}
}

// ConflictHandler is told about records the backend rejected as conflicting.
// The attempt still counts as a failure.
type ConflictHandler func(ctx context.Context, rec queue.Record, err error)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithAgent sets the background agent used when a sync cannot start now.
func WithAgent(a background.Agent) Option {
	return func(c *Coordinator) {
		c.agent = a
	}
}

// WithConflictHandler sets the conflict hook.
func WithConflictHandler(h ConflictHandler) Option {
	return func(c *Coordinator) {
		c.onConflict = h
	}
}
