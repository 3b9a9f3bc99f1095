package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/syncq/pkg/background"
	"github.com/bft-labs/syncq/pkg/bus"
	"github.com/bft-labs/syncq/pkg/connectivity"
	"github.com/bft-labs/syncq/pkg/log"
	"github.com/bft-labs/syncq/pkg/queue"
	"github.com/bft-labs/syncq/pkg/remote"
)

// Result summarizes one drain.
type Result struct {
	Synced int
	Failed int
}

// IsZero reports whether nothing was synced or failed.
func (r Result) IsZero() bool {
	return r.Synced == 0 && r.Failed == 0
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSynced
	outcomeFailed
)

// Coordinator replays queued mutations. It is safe for concurrent use.
type Coordinator struct {
	store   queue.Store
	remote  remote.Remote
	monitor *connectivity.Monitor
	bus     *bus.Bus
	cfg     Config

	logger     log.Logger
	agent      background.Agent
	hasAgent   bool
	onConflict ConflictHandler

	running atomic.Bool

	mu      sync.Mutex
	closed  bool
	done    chan struct{}
	wg      sync.WaitGroup
	unsubs  []func()
	baseCtx context.Context
}

// New creates an idle Coordinator. A nil bus gets a private one.
func New(store queue.Store, r remote.Remote, monitor *connectivity.Monitor, b *bus.Bus, cfg Config, opts ...Option) *Coordinator {
	cfg.setDefaults()

	c := &Coordinator{
		store:   store,
		remote:  r,
		monitor: monitor,
		bus:     b,
		cfg:     cfg,
		logger:  log.NewNoopLogger(),
		done:    make(chan struct{}),
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.bus == nil {
		c.bus = bus.New(c.logger)
	}
	c.hasAgent = background.Supported(c.agent)

	if cfg.SyncOnReconnect {
		c.unsubs = append(c.unsubs, monitor.OnConnectivityChange(func(online bool) {
			if online {
				c.logger.Info("connectivity restored, scheduling sync")
				c.Trigger()
			}
		}))
	}
	return c
}

// Bus returns the bus events are published on.
func (c *Coordinator) Bus() *bus.Bus {
	return c.bus
}

// Running reports whether a drain is in progress.
func (c *Coordinator) Running() bool {
	return c.running.Load()
}

// SyncNow drains the queue once. It returns a zero Result without doing
// anything when offline or when a drain is already running. Cancelling ctx
// does not interrupt a drain that has started; each attempt is bounded by
// RequestTimeout instead.
func (c *Coordinator) SyncNow(ctx context.Context) Result {
	if !c.monitor.Online() {
		c.logger.Debug("sync deferred: offline")
		return Result{}
	}
	if !c.running.CompareAndSwap(false, true) {
		c.logger.Debug("sync skipped: drain already running")
		return Result{}
	}

	res, ok := c.drain(context.WithoutCancel(ctx))
	if !ok {
		return res
	}

	if !res.IsZero() {
		c.bus.Publish(bus.TopicSyncNotification, bus.SyncNotification{Synced: res.Synced, Failed: res.Failed})
	}
	c.bus.Publish(bus.TopicSyncStatus, bus.SyncStatus{
		Online:  c.monitor.Online(),
		Drained: true,
		Synced:  res.Synced,
		Failed:  res.Failed,
	})
	return res
}

// drain runs one pass over a snapshot of the queue. ok is false when the
// snapshot could not be read. The coordinator is idle again when it returns.
func (c *Coordinator) drain(ctx context.Context) (res Result, ok bool) {
	defer c.running.Store(false)

	start := time.Now()
	records, err := c.store.GetAll(ctx)
	if err != nil {
		c.logger.Error("sync aborted: failed to read queue", log.Err(err))
		return Result{}, false
	}
	if len(records) == 0 {
		return Result{}, true
	}

	c.logger.Info("sync started", log.Int("records", len(records)))

	var synced, failed atomic.Int64
	tally := func(o outcome) {
		switch o {
		case outcomeSynced:
			synced.Add(1)
		case outcomeFailed:
			failed.Add(1)
		}
	}

	if c.cfg.Concurrency <= 1 {
		for i, rec := range records {
			if i > 0 {
				c.pace()
			}
			tally(c.process(ctx, rec))
		}
	} else {
		g := new(errgroup.Group)
		g.SetLimit(c.cfg.Concurrency)
		for i, rec := range records {
			if i > 0 {
				c.pace()
			}
			rec := rec
			g.Go(func() error {
				tally(c.process(ctx, rec))
				return nil
			})
		}
		_ = g.Wait()
	}

	res = Result{Synced: int(synced.Load()), Failed: int(failed.Load())}
	c.logger.Info("sync finished",
		log.Int("synced", res.Synced),
		log.Int("failed", res.Failed),
		log.Duration("elapsed", time.Since(start)),
	)
	return res, true
}

// process handles one record. Panics anywhere in it, including the store
// calls, are recovered as failures.
func (c *Coordinator) process(ctx context.Context, rec queue.Record) (out outcome) {
	fields := []log.Field{
		log.String("id", rec.ID),
		log.String("resource", rec.Resource),
		log.String("operation", string(rec.Operation)),
		log.Int("retry_count", rec.RetryCount),
	}
	l := log.With(c.logger, fields...)

	defer func() {
		if r := recover(); r != nil {
			l.Error("record processing panicked", log.Any("panic", r))
			out = outcomeFailed
		}
	}()

	if rec.Exhausted(c.cfg.MaxRetries) {
		l.Debug("skipping permanently failed record")
		return outcomeFailed
	}

	err := c.attempt(ctx, rec)
	if err == nil {
		if rmErr := c.store.Remove(ctx, rec.ID); rmErr != nil {
			if errors.Is(rmErr, queue.ErrNotFound) {
				l.Debug("record removed during sync")
				return outcomeSkipped
			}
			l.Error("applied record could not be removed", log.Err(rmErr))
			return outcomeFailed
		}
		return outcomeSynced
	}

	l.Warn("remote call failed", log.Err(err))
	if errors.Is(err, remote.ErrConflict) && c.onConflict != nil {
		c.notifyConflict(ctx, rec, err)
	}

	if incErr := c.store.IncrementRetry(ctx, rec.ID); incErr != nil {
		if errors.Is(incErr, queue.ErrNotFound) {
			l.Debug("record removed during sync")
			return outcomeSkipped
		}
		l.Error("failed to record retry", log.Err(incErr))
	}
	return outcomeFailed
}

// attempt performs the remote call under the per-attempt timeout.
func (c *Coordinator) attempt(ctx context.Context, rec queue.Record) (err error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", remote.ErrRemoteCallFailed, r)
		}
	}()

	return c.remote.Apply(ctx, remote.RequestFromRecord(rec))
}

func (c *Coordinator) notifyConflict(ctx context.Context, rec queue.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("conflict handler panicked", log.String("id", rec.ID), log.Any("panic", r))
		}
	}()
	c.onConflict(ctx, rec, err)
}

// pace waits ItemPacing between attempts. Closing the coordinator cuts the
// wait short.
func (c *Coordinator) pace() {
	if c.cfg.ItemPacing <= 0 {
		return
	}
	t := time.NewTimer(c.cfg.ItemPacing)
	defer t.Stop()
	select {
	case <-t.C:
	case <-c.done:
	}
}

// ScheduleSync enqueues m and arranges for it to be synced: immediately in
// the background when online and idle, otherwise through the background
// agent. Agent failures are logged and do not fail the enqueue.
func (c *Coordinator) ScheduleSync(ctx context.Context, m queue.Mutation) (string, error) {
	id, err := c.store.Add(ctx, m)
	if err != nil {
		return "", err
	}
	c.logger.Debug("mutation enqueued",
		log.String("id", id),
		log.String("owner_id", m.OwnerID),
		log.String("resource", m.Resource),
		log.String("operation", string(m.Operation)),
	)

	if c.monitor.Online() && !c.running.Load() {
		c.Trigger()
		return id, nil
	}

	if c.hasAgent {
		if err := c.agent.RegisterForLaterRetry(ctx, c.cfg.QueueName); err != nil {
			c.logger.Warn("background registration failed", log.String("queue", c.cfg.QueueName), log.Err(err))
		}
	}
	return id, nil
}

// Trigger starts SyncNow on its own goroutine unless the coordinator is
// closed.
func (c *Coordinator) Trigger() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.SyncNow(c.baseCtx)
	}()
}

// GetQueueSize returns the number of queued records.
func (c *Coordinator) GetQueueSize(ctx context.Context) (int, error) {
	st, err := c.store.Stats(ctx)
	if err != nil {
		return 0, err
	}
	return st.Total, nil
}

// Close stops scheduling new background drains and waits for running ones
// until ctx is done.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	unsubs := c.unsubs
	c.unsubs = nil
	c.mu.Unlock()

	for _, u := range unsubs {
		u()
	}

	waited := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
