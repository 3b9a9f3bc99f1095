// Package queuetest provides a conformance suite for queue.Store implementations.
package queuetest

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/syncq/pkg/queue"
)

// Factory constructs an uninitialized store persisting at path.
type Factory func(path string, opts ...queue.Option) queue.Store

// SequenceGenerator returns the configured ids in order, then repeats the last one.
type SequenceGenerator struct {
	mu  sync.Mutex
	IDs []string
	pos int
}

// New implements queue.IDGenerator.
func (g *SequenceGenerator) New() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.IDs[g.pos]
	if g.pos < len(g.IDs)-1 {
		g.pos++
	}
	return id, nil
}

// StepClock advances by Step on every call to Now.
type StepClock struct {
	mu   sync.Mutex
	At   time.Time
	Step time.Duration
}

// Now implements queue.Clock.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.At
	c.At = c.At.Add(c.Step)
	return now
}

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	cases := []struct {
		name string
		fn   func(t *testing.T, newStore Factory)
	}{
		{"InitializeIdempotent", testInitializeIdempotent},
		{"UseBeforeInitialize", testUseBeforeInitialize},
		{"AddAssignsFields", testAddAssignsFields},
		{"AddValidates", testAddValidates},
		{"DeleteDropsPayload", testDeleteDropsPayload},
		{"SurvivesRestart", testSurvivesRestart},
		{"GetByOwner", testGetByOwner},
		{"RemoveTwice", testRemoveTwice},
		{"IncrementRetry", testIncrementRetry},
		{"IncrementRetryConcurrent", testIncrementRetryConcurrent},
		{"Stats", testStats},
		{"Clear", testClear},
		{"OrderedByEnqueueTime", testOrderedByEnqueueTime},
		{"CollisionRegeneratesOnce", testCollisionRegeneratesOnce},
		{"CollisionPersists", testCollisionPersists},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore)
		})
	}
}

func open(t *testing.T, newStore Factory, path string, opts ...queue.Option) queue.Store {
	t.Helper()
	s := newStore(path, opts...)
	require.NoError(t, s.Initialize(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func tempPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "queue.db")
}

func createTodo(owner, title string) queue.Mutation {
	return queue.Mutation{
		OwnerID:       owner,
		Resource:      "todos",
		Operation:     queue.OpCreate,
		Payload:       json.RawMessage(`{"title":"` + title + `"}`),
		CredentialRef: "session-" + owner,
	}
}

func testInitializeIdempotent(t *testing.T, newStore Factory) {
	s := open(t, newStore, tempPath(t))
	require.NoError(t, s.Initialize(context.Background()))

	_, err := s.Add(context.Background(), createTodo("u1", "a"))
	require.NoError(t, err)
	require.NoError(t, s.Initialize(context.Background()))

	all, err := s.GetAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testUseBeforeInitialize(t *testing.T, newStore Factory) {
	s := newStore(tempPath(t))
	defer s.Close()

	_, err := s.Add(context.Background(), createTodo("u1", "a"))
	assert.ErrorIs(t, err, queue.ErrNotInitialized)
}

func testAddAssignsFields(t *testing.T, newStore Factory) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := open(t, newStore, tempPath(t), queue.WithClock(&StepClock{At: at}))

	id, err := s.Add(context.Background(), createTodo("u1", "milk"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	all, err := s.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)

	rec := all[0]
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, queue.OpCreate, rec.Operation)
	assert.Equal(t, "todos", rec.Resource)
	assert.Equal(t, `{"title":"milk"}`, string(rec.Payload))
	assert.Equal(t, "u1", rec.OwnerID)
	assert.Equal(t, "session-u1", rec.CredentialRef)
	assert.Equal(t, 0, rec.RetryCount)
	assert.True(t, rec.EnqueuedAt.Equal(at), "enqueued_at = %v, want %v", rec.EnqueuedAt, at)
}

func testAddValidates(t *testing.T, newStore Factory) {
	s := open(t, newStore, tempPath(t))

	tests := []struct {
		name string
		m    queue.Mutation
		want error
	}{
		{"missing owner", queue.Mutation{Resource: "todos", Operation: queue.OpCreate}, queue.ErrOwnerRequired},
		{"missing resource", queue.Mutation{OwnerID: "u1", Operation: queue.OpCreate}, queue.ErrResourceRequired},
		{"bad operation", queue.Mutation{OwnerID: "u1", Resource: "todos", Operation: "UPSERT"}, queue.ErrInvalidOperation},
		{"bad payload", queue.Mutation{OwnerID: "u1", Resource: "todos", Operation: queue.OpUpdate, Payload: json.RawMessage(`{`)}, queue.ErrInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Add(context.Background(), tt.m)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, st.Total)
}

func testDeleteDropsPayload(t *testing.T, newStore Factory) {
	s := open(t, newStore, tempPath(t))

	_, err := s.Add(context.Background(), queue.Mutation{
		OwnerID:   "u1",
		Resource:  "todos/7",
		Operation: queue.OpDelete,
		Payload:   json.RawMessage(`{"ignored":true}`),
	})
	require.NoError(t, err)

	all, err := s.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Empty(t, all[0].Payload)
}

func testSurvivesRestart(t *testing.T, newStore Factory) {
	path := tempPath(t)
	ctx := context.Background()

	inputs := []queue.Mutation{
		createTodo("u1", "a"),
		{OwnerID: "u2", Resource: "todos/9", Operation: queue.OpUpdate, Payload: json.RawMessage(`{"done":true}`), CredentialRef: "c2"},
		{OwnerID: "u1", Resource: "todos/3", Operation: queue.OpDelete, CredentialRef: "c1"},
		{OwnerID: "u3", Resource: "notes", Operation: queue.OpCreate, Payload: json.RawMessage("{ \"title\": \"<b>milk & eggs</b>\",\n  \"n\": 1 }"), CredentialRef: "c3"},
	}

	first := newStore(path)
	require.NoError(t, first.Initialize(ctx))
	ids := make(map[string]queue.Mutation)
	for _, m := range inputs {
		id, err := first.Add(ctx, m)
		require.NoError(t, err)
		ids[id] = m
	}
	require.NoError(t, first.Close())

	second := open(t, newStore, path)
	all, err := second.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, len(inputs))

	for _, rec := range all {
		want, ok := ids[rec.ID]
		require.True(t, ok, "unexpected id %s after restart", rec.ID)
		assert.Equal(t, want.Operation, rec.Operation)
		assert.Equal(t, want.Resource, rec.Resource)
		assert.Equal(t, want.OwnerID, rec.OwnerID)
		assert.Equal(t, want.CredentialRef, rec.CredentialRef)
		if want.Operation == queue.OpDelete {
			assert.Empty(t, rec.Payload)
		} else {
			assert.Equal(t, string(want.Payload), string(rec.Payload), "payload bytes changed across restart")
		}
	}
}

func testGetByOwner(t *testing.T, newStore Factory) {
	s := open(t, newStore, tempPath(t))
	ctx := context.Background()

	_, err := s.Add(ctx, createTodo("A", "mine"))
	require.NoError(t, err)
	_, err = s.Add(ctx, createTodo("B", "theirs"))
	require.NoError(t, err)

	got, err := s.GetByOwner(ctx, "A")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].OwnerID)

	none, err := s.GetByOwner(ctx, "C")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testRemoveTwice(t *testing.T, newStore Factory) {
	s := open(t, newStore, tempPath(t))
	ctx := context.Background()

	id, err := s.Add(ctx, createTodo("u1", "a"))
	require.NoError(t, err)

	require.NoError(t, s.Remove(ctx, id))
	assert.ErrorIs(t, s.Remove(ctx, id), queue.ErrNotFound)

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	for _, r := range all {
		assert.NotEqual(t, id, r.ID)
	}
}

func testIncrementRetry(t *testing.T, newStore Factory) {
	s := open(t, newStore, tempPath(t))
	ctx := context.Background()

	id, err := s.Add(ctx, createTodo("u1", "a"))
	require.NoError(t, err)

	require.NoError(t, s.IncrementRetry(ctx, id))
	require.NoError(t, s.IncrementRetry(ctx, id))

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 2, all[0].RetryCount)

	assert.ErrorIs(t, s.IncrementRetry(ctx, "missing"), queue.ErrNotFound)
}

func testIncrementRetryConcurrent(t *testing.T, newStore Factory) {
	s := open(t, newStore, tempPath(t))
	ctx := context.Background()

	id, err := s.Add(ctx, createTodo("u1", "a"))
	require.NoError(t, err)

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.IncrementRetry(ctx, id)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, workers, all[0].RetryCount)
}

func testStats(t *testing.T, newStore Factory) {
	s := open(t, newStore, tempPath(t), queue.WithMaxRetries(3))
	ctx := context.Background()

	fresh, err := s.Add(ctx, createTodo("u1", "fresh"))
	require.NoError(t, err)
	retried, err := s.Add(ctx, createTodo("u1", "retried"))
	require.NoError(t, err)
	dead, err := s.Add(ctx, createTodo("u1", "dead"))
	require.NoError(t, err)
	_ = fresh

	require.NoError(t, s.IncrementRetry(ctx, retried))
	for i := 0; i < 3; i++ {
		require.NoError(t, s.IncrementRetry(ctx, dead))
	}

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, queue.Stats{Total: 3, Pending: 1, FailedPermanently: 1}, st)
}

func testClear(t *testing.T, newStore Factory) {
	path := tempPath(t)
	ctx := context.Background()

	s := newStore(path)
	require.NoError(t, s.Initialize(ctx))
	for i := 0; i < 3; i++ {
		_, err := s.Add(ctx, createTodo("u1", "x"))
		require.NoError(t, err)
	}
	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.Close())

	reopened := open(t, newStore, path)
	st, err := reopened.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Total)
}

func testOrderedByEnqueueTime(t *testing.T, newStore Factory) {
	clock := &StepClock{At: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), Step: time.Second}
	gen := &SequenceGenerator{IDs: []string{"c", "a", "b"}}
	s := open(t, newStore, tempPath(t), queue.WithClock(clock), queue.WithGenerator(gen))
	ctx := context.Background()

	for _, title := range []string{"first", "second", "third"} {
		_, err := s.Add(ctx, createTodo("u1", title))
		require.NoError(t, err)
	}

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{all[0].ID, all[1].ID, all[2].ID})
}

func testCollisionRegeneratesOnce(t *testing.T, newStore Factory) {
	gen := &SequenceGenerator{IDs: []string{"dup", "dup", "fresh"}}
	s := open(t, newStore, tempPath(t), queue.WithGenerator(gen))
	ctx := context.Background()

	first, err := s.Add(ctx, createTodo("u1", "a"))
	require.NoError(t, err)
	assert.Equal(t, "dup", first)

	second, err := s.Add(ctx, createTodo("u1", "b"))
	require.NoError(t, err)
	assert.Equal(t, "fresh", second)
}

func testCollisionPersists(t *testing.T, newStore Factory) {
	gen := &SequenceGenerator{IDs: []string{"dup"}}
	s := open(t, newStore, tempPath(t), queue.WithGenerator(gen))
	ctx := context.Background()

	_, err := s.Add(ctx, createTodo("u1", "a"))
	require.NoError(t, err)

	_, err = s.Add(ctx, createTodo("u1", "b"))
	assert.ErrorIs(t, err, queue.ErrWriteConflict)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Total)
}
