// Package background provides the background-execution agent used to retry
// queued work later, when the application may no longer be in the foreground.
//
// Spool implements the agent with marker files in a directory: registering
// writes <dir>/<queue>.wake. A Watcher, typically running in a long-lived
// process, observes the directory with fsnotify and wakes the sync
// coordinator when a marker lands.
package background

import (
	"context"
	"errors"
)

// ErrUnsupported is returned by agents that cannot schedule later work.
var ErrUnsupported = errors.New("background: later retry not supported")

// Agent registers interest in a later retry of a named queue. Registration
// is best-effort.
type Agent interface {
	RegisterForLaterRetry(ctx context.Context, queueName string) error
}

// AgentFunc adapts a function to Agent.
type AgentFunc func(ctx context.Context, queueName string) error

// RegisterForLaterRetry calls f.
func (f AgentFunc) RegisterForLaterRetry(ctx context.Context, queueName string) error {
	return f(ctx, queueName)
}

// Unsupported is an Agent for platforms without background execution.
type Unsupported struct{}

// RegisterForLaterRetry always returns ErrUnsupported.
func (Unsupported) RegisterForLaterRetry(context.Context, string) error {
	return ErrUnsupported
}

// Supported reports whether a is able to register later retries.
func Supported(a Agent) bool {
	if a == nil {
		return false
	}
	switch a.(type) {
	case Unsupported, *Unsupported:
		return false
	}
	return true
}
