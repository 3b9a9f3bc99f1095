package queue

import (
	"context"
	"time"
)

// DefaultMaxRetries is the retry cap after which records are permanently failed.
const DefaultMaxRetries = 3

// Store persists mutation records. All mutating methods are durable before
// they return. Implementations must be safe for concurrent use.
type Store interface {
	// Initialize opens or creates the backing storage. It is idempotent and
	// returns an error wrapping ErrStorageUnavailable when storage is denied.
	Initialize(ctx context.Context) error

	// Add validates and persists m, returning the generated id.
	Add(ctx context.Context, m Mutation) (string, error)

	// GetAll returns every record ordered by enqueue time.
	GetAll(ctx context.Context) ([]Record, error)

	// GetByOwner returns the records created by ownerID.
	GetByOwner(ctx context.Context, ownerID string) ([]Record, error)

	// Remove deletes one record. Returns ErrNotFound if absent.
	Remove(ctx context.Context, id string) error

	// IncrementRetry atomically adds one to the record's retry count.
	// Returns ErrNotFound if absent.
	IncrementRetry(ctx context.Context, id string) error

	// Clear deletes every record.
	Clear(ctx context.Context) error

	// Stats returns aggregate counts.
	Stats(ctx context.Context) (Stats, error)

	// Close releases the backing storage.
	Close() error
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock uses the system time in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// Options holds the settings shared by Store implementations.
type Options struct {
	MaxRetries int
	Generator  IDGenerator
	Clock      Clock
}

// Option configures a Store.
type Option func(*Options)

// WithMaxRetries sets the retry cap used by Stats.
func WithMaxRetries(n int) Option {
	return func(o *Options) {
		o.MaxRetries = n
	}
}

// WithGenerator sets the record id generator.
func WithGenerator(g IDGenerator) Option {
	return func(o *Options) {
		o.Generator = g
	}
}

// WithClock sets the clock used for enqueue timestamps.
func WithClock(c Clock) Option {
	return func(o *Options) {
		o.Clock = c
	}
}

// BuildOptions applies opts over the defaults.
func BuildOptions(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.Generator == nil {
		o.Generator = UUIDGenerator{}
	}
	if o.Clock == nil {
		o.Clock = SystemClock{}
	}
	return o
}
