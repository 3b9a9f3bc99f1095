package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/bft-labs/syncq/pkg/queue"
)

var (
	// ErrRemoteCallFailed is wrapped by every failed Apply.
	ErrRemoteCallFailed = errors.New("remote: call failed")

	// ErrConflict matches responses reporting a conflicting write.
	ErrConflict = errors.New("remote: conflict")
)

// Request is one mutation to apply remotely.
type Request struct {
	// ID is the queue record id, sent as the idempotency key.
	ID            string
	Resource      string
	Operation     queue.Operation
	Payload       json.RawMessage
	CredentialRef string
}

// RequestFromRecord builds the Request for a queued record.
func RequestFromRecord(r queue.Record) Request {
	return Request{
		ID:            r.ID,
		Resource:      r.Resource,
		Operation:     r.Operation,
		Payload:       r.Payload,
		CredentialRef: r.CredentialRef,
	}
}

// Remote applies mutations to the backend.
type Remote interface {
	// Apply performs one remote call. A nil error means the backend accepted
	// the mutation.
	Apply(ctx context.Context, req Request) error
}

// Func adapts a function to Remote.
type Func func(ctx context.Context, req Request) error

// Apply calls f.
func (f Func) Apply(ctx context.Context, req Request) error {
	return f(ctx, req)
}

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Body)
}

// Is makes every StatusError match ErrRemoteCallFailed, and 409s match
// ErrConflict.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrRemoteCallFailed:
		return true
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	}
	return false
}
