package syncq

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/bft-labs/syncq/internal/lifecycle"
	"github.com/bft-labs/syncq/pkg/background"
	"github.com/bft-labs/syncq/pkg/bus"
	"github.com/bft-labs/syncq/pkg/connectivity"
	"github.com/bft-labs/syncq/pkg/coordinator"
	"github.com/bft-labs/syncq/pkg/log"
	"github.com/bft-labs/syncq/pkg/queue"
	"github.com/bft-labs/syncq/pkg/queue/sqlite"
	"github.com/bft-labs/syncq/pkg/remote"
)

// Re-exported types so callers only need this package.
type (
	Operation = queue.Operation
	Record    = queue.Record
	Stats     = queue.Stats
	Result    = coordinator.Result
	Status    = bus.SyncStatus
	State     = lifecycle.State
)

// Operations.
const (
	OpCreate = queue.OpCreate
	OpUpdate = queue.OpUpdate
	OpDelete = queue.OpDelete
)

// Lifecycle states.
const (
	StateStopped  = lifecycle.StateStopped
	StateStarting = lifecycle.StateStarting
	StateRunning  = lifecycle.StateRunning
	StateStopping = lifecycle.StateStopping
	StateCrashed  = lifecycle.StateCrashed
)

// Client is the caller-facing offline queue. Create it with New, then Start.
// Its methods are safe for concurrent use.
type Client struct {
	config Config
	opts   options
	logger log.Logger

	store   queue.Store
	remote  remote.Remote
	bus     *bus.Bus
	monitor *connectivity.Monitor
	agent   background.Agent
	spool   *background.Spool

	lifecycle *lifecycle.Lifecycle

	mu      sync.RWMutex
	coord   *coordinator.Coordinator
	watcher *background.Watcher
	cancel  context.CancelFunc
}

// New creates a Client in StateStopped. The connectivity signal is read once
// here to seed the online state.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.NewNoopLogger()
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{}
	}

	if o.store == nil && cfg.DBPath == "" {
		return nil, fmt.Errorf("%w: db path is required", ErrInvalidConfig)
	}
	if o.remote == nil && cfg.ServiceURL == "" {
		return nil, fmt.Errorf("%w: service url is required", ErrInvalidConfig)
	}

	c := &Client{
		config:    cfg,
		opts:      o,
		logger:    o.logger,
		lifecycle: lifecycle.New(o.logger, o.stateHandler),
	}

	c.store = o.store
	if c.store == nil {
		c.store = NewStore(cfg)
	}

	c.remote = o.remote
	if c.remote == nil {
		r := remote.NewHTTPRemote(cfg.ServiceURL, o.httpClient, o.logger)
		if o.authorizer != nil {
			r.WithAuthorizer(o.authorizer)
		}
		c.remote = r
	}

	signal := o.signal
	if signal == nil && cfg.ProbeURL != "" {
		probe := connectivity.NewHTTPProbe(cfg.ProbeURL)
		probe.Client = o.httpClient
		signal = probe
	}

	c.bus = bus.New(o.logger)
	c.monitor = connectivity.NewMonitor(context.Background(), signal, c.bus,
		connectivity.WithPollInterval(cfg.PollInterval),
		connectivity.WithLogger(o.logger),
	)

	c.agent = o.agent
	if cfg.SpoolDir != "" {
		c.spool = background.NewSpool(cfg.SpoolDir)
		if c.agent == nil {
			c.agent = c.spool
		}
	}
	if c.agent == nil {
		c.agent = background.Unsupported{}
	}

	return c, nil
}

// NewStore builds the store selected by cfg.Backend without opening it.
// Callers that only inspect or edit the queue can use it without a Client.
func NewStore(cfg Config) queue.Store {
	cfg.SetDefaults()
	storeOpts := []queue.Option{queue.WithMaxRetries(cfg.MaxRetries)}
	if cfg.Backend == BackendFile {
		return queue.NewFileStore(cfg.DBPath, storeOpts...)
	}
	return sqlite.New(cfg.DBPath, storeOpts...)
}

// Start opens the store and begins connectivity polling and spool watching.
// It returns an error wrapping ErrStorageUnavailable when the store cannot
// be opened.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lifecycle.CanStart() {
		return ErrAlreadyRunning
	}
	if err := c.lifecycle.TransitionTo(StateStarting, "Start() called"); err != nil {
		return err
	}

	if err := c.store.Initialize(ctx); err != nil {
		c.logger.Error("failed to open queue store", log.Err(err))
		_ = c.lifecycle.TransitionTo(StateCrashed, "store unavailable")
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel

	c.coord = coordinator.New(c.store, c.remote, c.monitor, c.bus, coordinator.Config{
		MaxRetries:      c.config.MaxRetries,
		RequestTimeout:  c.config.RequestTimeout,
		ItemPacing:      c.config.ItemPacing,
		Concurrency:     c.config.Concurrency,
		QueueName:       c.config.QueueName,
		SyncOnReconnect: c.config.SyncOnReconnect,
	},
		coordinator.WithLogger(c.logger),
		coordinator.WithAgent(c.agent),
		coordinator.WithConflictHandler(c.opts.onConflict),
	)

	c.lifecycle.Go(func() {
		_ = c.monitor.Run(runCtx)
	})

	if c.spool != nil {
		c.watcher = background.NewWatcher(c.spool, c.config.QueueName, c.wake, background.WatcherConfig{Logger: c.logger})
		if err := c.watcher.Start(runCtx); err != nil {
			c.logger.Warn("spool watcher disabled", log.Err(err))
			c.watcher = nil
		}
	}

	if err := c.lifecycle.TransitionTo(StateRunning, "started"); err != nil {
		return err
	}

	if c.config.SyncOnReconnect && c.monitor.Online() {
		c.coord.Trigger()
	}
	return nil
}

// wake runs a drain for the spool watcher. It fails while offline or busy so
// the marker is kept for the next wake.
func (c *Client) wake(ctx context.Context) error {
	c.mu.RLock()
	coord := c.coord
	c.mu.RUnlock()

	if coord == nil || !c.monitor.Online() {
		return errOffline
	}
	if coord.Running() {
		return fmt.Errorf("drain in progress")
	}
	coord.SyncNow(ctx)
	return nil
}

// Stop cancels background work, waits up to 30 seconds for it, and closes
// the store. Returns ErrShutdownTimeout if the wait expired.
func (c *Client) Stop() error {
	c.mu.Lock()
	if !c.lifecycle.CanStop() {
		c.mu.Unlock()
		return ErrNotRunning
	}
	if err := c.lifecycle.TransitionTo(StateStopping, "Stop() called"); err != nil {
		c.mu.Unlock()
		return err
	}
	cancel := c.cancel
	watcher := c.watcher
	coord := c.coord
	c.watcher = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if watcher != nil {
		watcher.Stop()
	}

	ctx, cancelWait := context.WithTimeout(context.Background(), lifecycle.ShutdownTimeout)
	defer cancelWait()

	var err error
	if coord != nil {
		if closeErr := coord.Close(ctx); closeErr != nil {
			err = ErrShutdownTimeout
		}
	}
	if err == nil {
		err = c.lifecycle.WaitWithTimeout(lifecycle.ShutdownTimeout)
	}

	if closeErr := c.store.Close(); closeErr != nil {
		c.logger.Error("failed to close queue store", log.Err(closeErr))
	}

	if err != nil {
		_ = c.lifecycle.TransitionTo(StateCrashed, "shutdown timeout")
		return err
	}
	_ = c.lifecycle.TransitionTo(StateStopped, "graceful shutdown")
	return nil
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	return c.lifecycle.State()
}

func (c *Client) activeCoordinator() (*coordinator.Coordinator, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.lifecycle.Running() || c.coord == nil {
		return nil, ErrNotRunning
	}
	return c.coord, nil
}

// Enqueue persists a mutation and schedules it for sync. The payload is
// ignored for OpDelete.
func (c *Client) Enqueue(ctx context.Context, ownerID, resource string, op Operation, payload json.RawMessage, credentialRef string) (string, error) {
	coord, err := c.activeCoordinator()
	if err != nil {
		return "", err
	}
	return coord.ScheduleSync(ctx, queue.Mutation{
		OwnerID:       ownerID,
		Resource:      resource,
		Operation:     op,
		Payload:       payload,
		CredentialRef: credentialRef,
	})
}

// EnqueueJSON is Enqueue with v marshalled as the payload.
func (c *Client) EnqueueJSON(ctx context.Context, ownerID, resource string, op Operation, v any, credentialRef string) (string, error) {
	var payload json.RawMessage
	if v != nil && op != OpDelete {
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("%w: %v", queue.ErrInvalidPayload, err)
		}
		payload = data
	}
	return c.Enqueue(ctx, ownerID, resource, op, payload, credentialRef)
}

// SyncNow drains the queue once and returns the counts. It returns a zero
// Result when offline or when a drain is already in progress.
func (c *Client) SyncNow(ctx context.Context) (Result, error) {
	coord, err := c.activeCoordinator()
	if err != nil {
		return Result{}, err
	}
	return coord.SyncNow(ctx), nil
}

// GetOnlineStatus returns the last known connectivity state.
func (c *Client) GetOnlineStatus() bool {
	return c.monitor.Online()
}

// OnConnectionChange registers fn for connectivity changes and completed
// drains. It may be called before Start.
func (c *Client) OnConnectionChange(fn func(Status)) func() {
	return c.bus.SubscribeStatus(fn)
}

// OnSyncNotification registers fn for drains that synced or failed at least
// one record.
func (c *Client) OnSyncNotification(fn func(Result)) func() {
	return c.bus.SubscribeNotification(func(n bus.SyncNotification) {
		fn(Result{Synced: n.Synced, Failed: n.Failed})
	})
}

// GetQueueSize returns the number of queued records.
func (c *Client) GetQueueSize(ctx context.Context) (int, error) {
	coord, err := c.activeCoordinator()
	if err != nil {
		return 0, err
	}
	return coord.GetQueueSize(ctx)
}

// ClearQueue deletes every queued record, including permanently failed ones.
func (c *Client) ClearQueue(ctx context.Context) error {
	if _, err := c.activeCoordinator(); err != nil {
		return err
	}
	if err := c.store.Clear(ctx); err != nil {
		return err
	}
	c.logger.Info("queue cleared")
	return nil
}

// Pending returns the records queued by ownerID.
func (c *Client) Pending(ctx context.Context, ownerID string) ([]Record, error) {
	if _, err := c.activeCoordinator(); err != nil {
		return nil, err
	}
	return c.store.GetByOwner(ctx, ownerID)
}

// All returns every queued record ordered by enqueue time.
func (c *Client) All(ctx context.Context) ([]Record, error) {
	if _, err := c.activeCoordinator(); err != nil {
		return nil, err
	}
	return c.store.GetAll(ctx)
}

// Stats returns queue counts, including permanently failed records.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	if _, err := c.activeCoordinator(); err != nil {
		return Stats{}, err
	}
	return c.store.Stats(ctx)
}

// Discard removes one record without syncing it. Returns ErrNotFound if it
// is not queued.
func (c *Client) Discard(ctx context.Context, id string) error {
	if _, err := c.activeCoordinator(); err != nil {
		return err
	}
	if err := c.store.Remove(ctx, id); err != nil {
		return err
	}
	c.logger.Info("record discarded", log.String("id", id))
	return nil
}
