package queue

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// IDGenerator produces record ids.
type IDGenerator interface {
	New() (string, error)
}

// UUIDGenerator generates time-ordered UUIDv7 ids.
type UUIDGenerator struct{}

// New returns a new UUIDv7 string.
func (UUIDGenerator) New() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("queue: generate id: %w", err)
	}
	return id.String(), nil
}

// AddWithRetry runs insert with a freshly generated id. When insert reports
// ErrWriteConflict the id is regenerated and the insert retried once; a
// second collision is returned to the caller.
func AddWithRetry(gen IDGenerator, insert func(id string) error) (string, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		id, err := gen.New()
		if err != nil {
			return "", err
		}
		lastErr = insert(id)
		if lastErr == nil {
			return id, nil
		}
		if !errors.Is(lastErr, ErrWriteConflict) {
			return "", lastErr
		}
	}
	return "", lastErr
}
