package queue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Operation is the kind of write a mutation performs remotely.
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// Valid reports whether op is one of the known operations.
func (op Operation) Valid() bool {
	switch op {
	case OpCreate, OpUpdate, OpDelete:
		return true
	default:
		return false
	}
}

// ParseOperation parses an operation name case-insensitively.
func ParseOperation(s string) (Operation, error) {
	op := Operation(strings.ToUpper(strings.TrimSpace(s)))
	if !op.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidOperation, s)
	}
	return op, nil
}

// Mutation describes a new write to be queued.
type Mutation struct {
	// OwnerID identifies the user or session that created the mutation.
	OwnerID string
	// Resource names the remote collection or entity path, e.g. "todos" or "todos/42".
	Resource string
	// Operation selects the request style used on replay.
	Operation Operation
	// Payload is the JSON body to send. Ignored for OpDelete.
	Payload json.RawMessage
	// CredentialRef is an opaque reference resolved to request credentials at replay time.
	CredentialRef string
}

// Validate checks required fields and payload shape.
func (m Mutation) Validate() error {
	if m.OwnerID == "" {
		return ErrOwnerRequired
	}
	if m.Resource == "" {
		return ErrResourceRequired
	}
	if !m.Operation.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidOperation, m.Operation)
	}
	if m.Operation != OpDelete && len(m.Payload) > 0 && !json.Valid(m.Payload) {
		return ErrInvalidPayload
	}
	return nil
}

// Record is a persisted mutation awaiting replay.
type Record struct {
	ID            string          `json:"id"`
	Operation     Operation       `json:"operation"`
	Resource      string          `json:"resource"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt    time.Time       `json:"enqueued_at"`
	RetryCount    int             `json:"retry_count"`
	OwnerID       string          `json:"owner_id"`
	CredentialRef string          `json:"credential_ref"`
}

// Exhausted reports whether the record reached the retry cap and will not be
// replayed automatically.
func (r Record) Exhausted(maxRetries int) bool {
	return r.RetryCount >= maxRetries
}

// NewRecord builds the record persisted for m. DELETE payloads are dropped.
func NewRecord(id string, m Mutation, now time.Time) Record {
	payload := json.RawMessage(bytes.Clone(m.Payload))
	if m.Operation == OpDelete || len(payload) == 0 {
		payload = nil
	}
	return Record{
		ID:            id,
		Operation:     m.Operation,
		Resource:      m.Resource,
		Payload:       payload,
		EnqueuedAt:    now,
		RetryCount:    0,
		OwnerID:       m.OwnerID,
		CredentialRef: m.CredentialRef,
	}
}

// Stats summarizes the queue contents.
type Stats struct {
	Total int
	// Pending counts records that have never failed.
	Pending int
	// FailedPermanently counts records at or above the retry cap.
	FailedPermanently int
}
