package syncq

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/syncq/pkg/background"
	"github.com/bft-labs/syncq/pkg/connectivity"
	"github.com/bft-labs/syncq/pkg/queue"
)

type backend struct {
	mu       sync.Mutex
	status   int
	requests []*http.Request
	srv      *httptest.Server
}

func newBackend(t *testing.T, status int) *backend {
	t.Helper()
	b := &backend{status: status}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.requests = append(b.requests, r.Clone(context.Background()))
		w.WriteHeader(b.status)
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

func (b *backend) keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.requests))
	for _, r := range b.requests {
		out = append(out, r.Header.Get("Idempotency-Key"))
	}
	return out
}

func testConfig(t *testing.T, serviceURL string) Config {
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "queue.db")
	cfg.ServiceURL = serviceURL
	cfg.SyncOnReconnect = false
	return cfg
}

func startClient(t *testing.T, cfg Config, opts ...Option) *Client {
	t.Helper()
	c, err := New(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Stop() })
	return c
}

func waitOnline(t *testing.T, c *Client, want bool) {
	t.Helper()
	require.Eventually(t, func() bool { return c.GetOnlineStatus() == want }, 2*time.Second, 5*time.Millisecond)
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Backend = "redis" }},
		{"missing db path", func(c *Config) { c.DBPath = "" }},
		{"missing service url", func(c *Config) { c.ServiceURL = "" }},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }},
		{"negative pacing", func(c *Config) { c.ItemPacing = -time.Second }},
		{"bad queue name", func(c *Config) { c.QueueName = "a/b" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, "http://example.invalid")
			tt.mutate(&cfg)
			_, err := New(cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestClient_CallsBeforeStart(t *testing.T) {
	c, err := New(testConfig(t, "http://example.invalid"), WithSignal(connectivity.NewManual(false)))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.Enqueue(ctx, "u1", "todos", OpCreate, json.RawMessage(`{}`), "")
	assert.ErrorIs(t, err, ErrNotRunning)
	_, err = c.SyncNow(ctx)
	assert.ErrorIs(t, err, ErrNotRunning)
	_, err = c.GetQueueSize(ctx)
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.ErrorIs(t, c.ClearQueue(ctx), ErrNotRunning)
	assert.ErrorIs(t, c.Stop(), ErrNotRunning)

	assert.False(t, c.GetOnlineStatus())
	unsub := c.OnConnectionChange(func(Status) {})
	unsub()
	assert.Equal(t, StateStopped, c.State())
}

func TestClient_OfflineThenReconnect(t *testing.T) {
	be := newBackend(t, http.StatusCreated)
	sig := connectivity.NewManual(false)
	cfg := testConfig(t, be.srv.URL)
	cfg.SyncOnReconnect = true
	c := startClient(t, cfg, WithSignal(sig))
	ctx := context.Background()

	var mu sync.Mutex
	var notes []Result
	c.OnSyncNotification(func(r Result) {
		mu.Lock()
		defer mu.Unlock()
		notes = append(notes, r)
	})

	var ids []string
	for _, title := range []string{"a", "b", "c"} {
		id, err := c.EnqueueJSON(ctx, "u1", "todos", OpCreate, map[string]string{"title": title}, "token")
		require.NoError(t, err)
		ids = append(ids, id)
	}

	size, err := c.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, size)
	assert.Equal(t, 0, be.count())

	sig.Set(true)

	require.Eventually(t, func() bool {
		n, err := c.GetQueueSize(ctx)
		return err == nil && n == 0
	}, 3*time.Second, 10*time.Millisecond)

	assert.ElementsMatch(t, ids, be.keys())
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(notes) == 1
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, Result{Synced: 3}, notes[0])
	mu.Unlock()
}

func TestClient_PermanentFailureAndDiscard(t *testing.T) {
	be := newBackend(t, http.StatusBadGateway)
	sig := connectivity.NewManual(false)
	c := startClient(t, testConfig(t, be.srv.URL), WithSignal(sig))
	ctx := context.Background()

	id, err := c.Enqueue(ctx, "u1", "todos", OpCreate, json.RawMessage(`{"t":1}`), "token")
	require.NoError(t, err)

	sig.Set(true)
	waitOnline(t, c, true)

	for i := 0; i < 3; i++ {
		res, err := c.SyncNow(ctx)
		require.NoError(t, err)
		assert.Equal(t, Result{Failed: 1}, res)
	}

	st, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 1, Pending: 0, FailedPermanently: 1}, st)

	res, err := c.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Failed: 1}, res)
	assert.Equal(t, 3, be.count())

	require.NoError(t, c.Discard(ctx, id))
	assert.ErrorIs(t, c.Discard(ctx, id), ErrNotFound)

	size, err := c.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, size)
}

func TestClient_PendingAndClear(t *testing.T) {
	cfg := testConfig(t, "http://example.invalid")
	cfg.Backend = BackendFile
	c := startClient(t, cfg, WithSignal(connectivity.NewManual(false)))
	ctx := context.Background()

	_, err := c.Enqueue(ctx, "A", "todos", OpCreate, json.RawMessage(`{}`), "")
	require.NoError(t, err)
	_, err = c.Enqueue(ctx, "B", "todos/1", OpDelete, nil, "")
	require.NoError(t, err)

	mine, err := c.Pending(ctx, "A")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "A", mine[0].OwnerID)

	all, err := c.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, c.ClearQueue(ctx))
	size, err := c.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, size)
}

func TestClient_ConflictHandler(t *testing.T) {
	be := newBackend(t, http.StatusConflict)
	sig := connectivity.NewManual(false)

	var mu sync.Mutex
	var conflicts []string
	c := startClient(t, testConfig(t, be.srv.URL), WithSignal(sig),
		WithConflictHandler(func(_ context.Context, rec queue.Record, err error) {
			mu.Lock()
			defer mu.Unlock()
			conflicts = append(conflicts, rec.ID)
		}))
	ctx := context.Background()

	id, err := c.Enqueue(ctx, "u1", "todos/9", OpUpdate, json.RawMessage(`{"done":true}`), "t")
	require.NoError(t, err)
	sig.Set(true)
	waitOnline(t, c, true)

	res, err := c.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Failed: 1}, res)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{id}, conflicts)
}

func TestClient_StartStopRestart(t *testing.T) {
	var states []State
	cfg := testConfig(t, "http://example.invalid")
	c, err := New(cfg, WithSignal(connectivity.NewManual(false)), WithStateHandler(func(_, current State, _ string) {
		states = append(states, current)
	}))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	assert.ErrorIs(t, c.Start(ctx), ErrAlreadyRunning)

	_, err = c.Enqueue(ctx, "u1", "todos", OpCreate, json.RawMessage(`{}`), "")
	require.NoError(t, err)

	require.NoError(t, c.Stop())
	assert.ErrorIs(t, c.Stop(), ErrNotRunning)
	assert.Equal(t, StateStopped, c.State())

	require.NoError(t, c.Start(ctx))
	defer c.Stop()
	size, err := c.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size, "queued record did not survive restart")

	assert.Equal(t, []State{StateStarting, StateRunning, StateStopping, StateStopped, StateStarting, StateRunning}, states)
}

func TestClient_StorageUnavailable(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	cfg := testConfig(t, "http://example.invalid")
	cfg.DBPath = filepath.Join(blocker, "queue.db")
	c, err := New(cfg)
	require.NoError(t, err)

	err = c.Start(context.Background())
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.Equal(t, StateCrashed, c.State())
}

func TestClient_SpoolWake(t *testing.T) {
	be := newBackend(t, http.StatusOK)
	sig := connectivity.NewManual(false)
	cfg := testConfig(t, be.srv.URL)
	cfg.SpoolDir = filepath.Join(t.TempDir(), "spool")
	c := startClient(t, cfg, WithSignal(sig))
	ctx := context.Background()

	_, err := c.Enqueue(ctx, "u1", "todos", OpCreate, json.RawMessage(`{}`), "")
	require.NoError(t, err)

	spool := background.NewSpool(cfg.SpoolDir)
	require.Eventually(t, func() bool { return spool.Registered(cfg.QueueName) }, time.Second, 5*time.Millisecond)

	// The wake while offline keeps the marker.
	time.Sleep(200 * time.Millisecond)
	assert.True(t, spool.Registered(cfg.QueueName))
	assert.Equal(t, 0, be.count())

	sig.Set(true)
	waitOnline(t, c, true)
	require.NoError(t, spool.RegisterForLaterRetry(ctx, cfg.QueueName))

	require.Eventually(t, func() bool { return be.count() == 1 }, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return !spool.Registered(cfg.QueueName) }, 3*time.Second, 10*time.Millisecond)
}

func TestClient_ProbeSignal(t *testing.T) {
	be := newBackend(t, http.StatusOK)
	cfg := testConfig(t, be.srv.URL)
	cfg.ProbeURL = be.srv.URL + "/health"

	c, err := New(cfg)
	require.NoError(t, err)
	assert.True(t, c.GetOnlineStatus())
}

func TestClient_StartTriggersSyncWhenOnline(t *testing.T) {
	be := newBackend(t, http.StatusOK)
	cfg := testConfig(t, be.srv.URL)
	cfg.Backend = BackendFile

	seed := queue.NewFileStore(cfg.DBPath)
	require.NoError(t, seed.Initialize(context.Background()))
	_, err := seed.Add(context.Background(), queue.Mutation{OwnerID: "u1", Resource: "todos", Operation: queue.OpCreate, Payload: []byte(`{}`)})
	require.NoError(t, err)
	require.NoError(t, seed.Close())

	cfg.SyncOnReconnect = true
	startClient(t, cfg, WithSignal(connectivity.NewManual(true)))

	require.Eventually(t, func() bool { return be.count() == 1 }, 3*time.Second, 10*time.Millisecond)
}
