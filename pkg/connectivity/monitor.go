// Package connectivity maintains the authoritative online/offline state.
//
// Platform input arrives through a Signal, optionally with pushed events
// (EventSource), and is funnelled through Monitor.Update. Only actual
// transitions are published on the bus.
package connectivity

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bft-labs/syncq/pkg/bus"
	"github.com/bft-labs/syncq/pkg/log"
)

// DefaultPollInterval is the fallback polling period.
const DefaultPollInterval = 30 * time.Second

// Monitor tracks connectivity and publishes bus.TopicConnectivityChanged on
// every transition.
type Monitor struct {
	signal   Signal
	events   <-chan bool
	bus      *bus.Bus
	logger   log.Logger
	interval time.Duration

	// mu serializes transitions with their publication so subscribers see
	// them in the order they were applied.
	mu     sync.Mutex
	online atomic.Bool
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMonitor creates a Monitor, reading the initial state from signal.
// A nil signal is treated as always online.
func NewMonitor(ctx context.Context, signal Signal, b *bus.Bus, opts ...Option) *Monitor {
	if signal == nil {
		signal = SignalFunc(func(context.Context) bool { return true })
	}
	m := &Monitor{
		signal:   signal,
		bus:      b,
		logger:   log.NewNoopLogger(),
		interval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	if src, ok := signal.(EventSource); ok {
		m.events = src.Events()
	}
	m.online.Store(signal.Online(ctx))
	return m
}

// Online returns the last known state without I/O.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Update records a new state. It reports whether the state changed; the
// change is published only in that case. Concurrent callers are serialized
// through publication, so subscribers must not call Update themselves.
func (m *Monitor) Update(online bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.online.Load() == online {
		return false
	}
	m.online.Store(online)

	m.logger.Info("connectivity changed", log.Bool("online", online))
	if m.bus != nil {
		m.bus.Publish(bus.TopicConnectivityChanged, bus.ConnectivityChanged{Online: online})
	}
	return true
}

// Poll reads the signal once and applies it.
func (m *Monitor) Poll(ctx context.Context) bool {
	return m.Update(m.signal.Online(ctx))
}

// Run polls on the configured interval and applies pushed events until ctx
// is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	events := m.events
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case online, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			m.Update(online)
		case <-ticker.C:
			m.Poll(ctx)
		}
	}
}

// OnConnectivityChange registers fn for transitions and returns a function
// that unregisters it.
func (m *Monitor) OnConnectivityChange(fn func(online bool)) func() {
	if m.bus == nil {
		return func() {}
	}
	return m.bus.Subscribe(bus.TopicConnectivityChanged, func(p any) {
		if ev, ok := p.(bus.ConnectivityChanged); ok {
			fn(ev.Online)
		}
	})
}
