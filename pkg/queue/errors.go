package queue

import "errors"

var (
	// ErrStorageUnavailable is returned when the durable store cannot be opened.
	ErrStorageUnavailable = errors.New("queue: storage unavailable")
	// ErrNotFound is returned when a record id does not exist.
	ErrNotFound = errors.New("queue: record not found")
	// ErrWriteConflict is returned when id generation collides twice in a row.
	ErrWriteConflict = errors.New("queue: write conflict")
	// ErrNotInitialized is returned when the store is used before Initialize.
	ErrNotInitialized = errors.New("queue: store not initialized")
	// ErrOwnerRequired is returned when Mutation.OwnerID is empty.
	ErrOwnerRequired = errors.New("queue: owner id is required")
	// ErrResourceRequired is returned when Mutation.Resource is empty.
	ErrResourceRequired = errors.New("queue: resource is required")
	// ErrInvalidOperation is returned for operations other than CREATE, UPDATE, DELETE.
	ErrInvalidOperation = errors.New("queue: invalid operation")
	// ErrInvalidPayload is returned when Mutation.Payload is not valid JSON.
	ErrInvalidPayload = errors.New("queue: payload must be valid JSON")
)
