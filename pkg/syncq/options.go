package syncq

import (
	"github.com/bft-labs/syncq/internal/lifecycle"
	"github.com/bft-labs/syncq/pkg/background"
	"github.com/bft-labs/syncq/pkg/connectivity"
	"github.com/bft-labs/syncq/pkg/coordinator"
	"github.com/bft-labs/syncq/pkg/log"
	"github.com/bft-labs/syncq/pkg/queue"
	"github.com/bft-labs/syncq/pkg/remote"
)

// Option configures optional behavior of a Client.
type Option func(*options)

type options struct {
	logger       log.Logger
	httpClient   remote.HTTPClient
	remote       remote.Remote
	signal       connectivity.Signal
	agent        background.Agent
	store        queue.Store
	authorizer   remote.Authorizer
	onConflict   coordinator.ConflictHandler
	stateHandler lifecycle.EventEmitter
}

// WithLogger sets the logger. If not provided, nothing is logged.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithHTTPClient sets the client used by the default remote and probe.
func WithHTTPClient(client remote.HTTPClient) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithRemote replaces the HTTP remote built from ServiceURL.
func WithRemote(r remote.Remote) Option {
	return func(o *options) {
		o.remote = r
	}
}

// WithSignal sets the platform connectivity signal.
func WithSignal(s connectivity.Signal) Option {
	return func(o *options) {
		o.signal = s
	}
}

// WithBackgroundAgent sets the agent used to register later retries.
func WithBackgroundAgent(a background.Agent) Option {
	return func(o *options) {
		o.agent = a
	}
}

// WithStore replaces the store built from DBPath and Backend. The client
// takes ownership and closes it on Stop.
func WithStore(s queue.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithCredentials sets how credential references are turned into request
// authorization for the default HTTP remote.
func WithCredentials(a remote.Authorizer) Option {
	return func(o *options) {
		o.authorizer = a
	}
}

// WithConflictHandler sets the hook called when the backend reports a
// conflicting write.
func WithConflictHandler(h coordinator.ConflictHandler) Option {
	return func(o *options) {
		o.onConflict = h
	}
}

// WithStateHandler sets a callback for client lifecycle transitions.
func WithStateHandler(fn func(previous, current State, reason string)) Option {
	return func(o *options) {
		o.stateHandler = lifecycle.EmitterFunc(fn)
	}
}
