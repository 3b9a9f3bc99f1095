package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Signal reports the platform's current connectivity.
type Signal interface {
	Online(ctx context.Context) bool
}

// EventSource is an optional capability of a Signal that pushes
// became-online/became-offline events. The channel is closed when the source
// stops.
type EventSource interface {
	Events() <-chan bool
}

// SignalFunc adapts a function to Signal.
type SignalFunc func(ctx context.Context) bool

// Online calls f.
func (f SignalFunc) Online(ctx context.Context) bool {
	return f(ctx)
}

// Manual is a Signal whose state is set by the caller. Every Set is also
// pushed as an event, which makes it usable as a platform event stand-in.
type Manual struct {
	mu     sync.Mutex
	online bool
	events chan bool
}

var (
	_ Signal      = (*Manual)(nil)
	_ EventSource = (*Manual)(nil)
)

// NewManual creates a Manual signal with the given initial state.
func NewManual(online bool) *Manual {
	return &Manual{online: online, events: make(chan bool, 16)}
}

// Online implements Signal.
func (m *Manual) Online(context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set changes the state and emits an event. Events are dropped when nobody
// is draining them; the polling path still observes the new state.
func (m *Manual) Set(online bool) {
	m.mu.Lock()
	m.online = online
	m.mu.Unlock()

	select {
	case m.events <- online:
	default:
	}
}

// Events implements EventSource.
func (m *Manual) Events() <-chan bool {
	return m.events
}

// HTTPClient is the subset of *http.Client used by HTTPProbe.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPProbe reports online when a HEAD request to URL gets any HTTP
// response. Transport errors and timeouts mean offline.
type HTTPProbe struct {
	URL     string
	Client  HTTPClient
	Timeout time.Duration
}

// DefaultProbeTimeout bounds a single reachability check.
const DefaultProbeTimeout = 5 * time.Second

// NewHTTPProbe creates a probe for url using http.DefaultClient.
func NewHTTPProbe(url string) *HTTPProbe {
	return &HTTPProbe{URL: url, Client: http.DefaultClient, Timeout: DefaultProbeTimeout}
}

// Online implements Signal.
func (p *HTTPProbe) Online(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return false
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}
