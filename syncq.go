// Package syncq is a thin facade over pkg/syncq for programs that only need
// to run the queue in the background.
//
// Example usage:
//
//	cfg := syncq.DefaultConfig()
//	cfg.DBPath = "/var/lib/myapp/queue.db"
//	cfg.ServiceURL = "https://api.example.com"
//	if err := syncq.Run(ctx, cfg, syncq.WithLogger(syncq.Logger())); err != nil {
//	    log.Fatal(err)
//	}
package syncq

import (
	"context"
	"fmt"

	"github.com/bft-labs/syncq/pkg/log"
	client "github.com/bft-labs/syncq/pkg/syncq"
)

// Config holds the configuration for the queue. Use DefaultConfig() to get
// a Config with sensible defaults.
type Config = client.Config

// Client is the offline mutation queue.
type Client = client.Client

// Option configures optional behavior of a Client.
type Option = client.Option

// DefaultConfig returns a Config with sensible default values.
// At minimum, set DBPath and ServiceURL before calling Run.
func DefaultConfig() Config {
	return client.DefaultConfig()
}

// New creates a stopped Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	return client.New(cfg, opts...)
}

// WithLogger sets the logger used by the client.
func WithLogger(l log.Logger) Option {
	return client.WithLogger(l)
}

// Run starts a client and keeps it running until ctx is cancelled.
func Run(ctx context.Context, cfg Config, opts ...Option) error {
	c, err := client.New(cfg, opts...)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	<-ctx.Done()
	return c.Stop()
}

// Logger returns a console logger writing to stderr.
func Logger() log.Logger {
	return log.NewZerologAdapter()
}
