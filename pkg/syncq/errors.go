package syncq

import (
	"errors"

	"github.com/bft-labs/syncq/internal/lifecycle"
	"github.com/bft-labs/syncq/pkg/queue"
	"github.com/bft-labs/syncq/pkg/remote"
)

var (
	// ErrAlreadyRunning is returned by Start when the client is running.
	ErrAlreadyRunning = lifecycle.ErrAlreadyRunning

	// ErrNotRunning is returned by API calls made before Start or after Stop.
	ErrNotRunning = lifecycle.ErrNotRunning

	// ErrShutdownTimeout is returned by Stop when background work did not
	// finish in time.
	ErrShutdownTimeout = lifecycle.ErrShutdownTimeout

	// ErrInvalidConfig is wrapped by configuration validation errors.
	ErrInvalidConfig = errors.New("syncq: invalid configuration")

	// errOffline defers a background wake until connectivity returns.
	errOffline = errors.New("syncq: offline")
)

// Errors from the queue and remote packages, re-exported for callers that
// only import syncq.
var (
	ErrStorageUnavailable = queue.ErrStorageUnavailable
	ErrNotFound           = queue.ErrNotFound
	ErrWriteConflict      = queue.ErrWriteConflict
	ErrRemoteCallFailed   = remote.ErrRemoteCallFailed
	ErrConflict           = remote.ErrConflict
)
