package background

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/syncq/pkg/log"
)

// WakeFunc runs deferred work for a queue. Returning an error keeps the
// marker so the next wake retries.
type WakeFunc func(ctx context.Context) error

// WatcherConfig holds Watcher settings.
type WatcherConfig struct {
	// DebounceDelay collapses bursts of marker writes into one wake.
	// Default: 100 milliseconds
	DebounceDelay time.Duration

	// RetryInitial is the first delay before retrying a failed wake. The
	// delay doubles on each failure up to RetryMax.
	// Default: 1 second
	RetryInitial time.Duration

	// Default: 5 minutes
	RetryMax time.Duration

	Logger log.Logger
}

// Watcher wakes a queue when its spool marker appears.
type Watcher struct {
	spool     *Spool
	queueName string
	wake      WakeFunc
	debounce  time.Duration
	retry     *backoff
	logger    log.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a Watcher for queueName in spool.
func NewWatcher(spool *Spool, queueName string, wake WakeFunc, cfg WatcherConfig) *Watcher {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = time.Second
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 5 * time.Minute
	}
	if cfg.RetryMax < cfg.RetryInitial {
		cfg.RetryMax = cfg.RetryInitial
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNoopLogger()
	}
	return &Watcher{
		spool:     spool,
		queueName: queueName,
		wake:      wake,
		debounce:  cfg.DebounceDelay,
		retry:     newBackoff(cfg.RetryInitial, cfg.RetryMax),
		logger:    cfg.Logger,
	}
}

// Start begins watching. A marker that already exists triggers a wake
// immediately.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return fmt.Errorf("background: watcher already started")
	}
	if err := validQueueName(w.queueName); err != nil {
		return err
	}
	if err := os.MkdirAll(w.spool.Dir(), 0o700); err != nil {
		return fmt.Errorf("create spool dir: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fw.Add(w.spool.Dir()); err != nil {
		_ = fw.Close()
		return fmt.Errorf("watch %s: %w", w.spool.Dir(), err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go w.loop(watchCtx, fw)

	w.logger.Info("spool watcher started",
		log.String("dir", w.spool.Dir()),
		log.String("queue", w.queueName),
	)
	return nil
}

// Stop ends watching and waits for an in-progress wake to finish.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher) {
	defer w.wg.Done()
	defer fw.Close()

	marker := w.queueName + MarkerSuffix

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	arm := func(d time.Duration) {
		if timer == nil {
			timer = time.NewTimer(d)
		} else {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(d)
		}
		timerC = timer.C
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	if w.spool.Registered(w.queueName) {
		arm(w.debounce)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != marker {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			w.retry.reset()
			arm(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("spool watcher error", log.Err(err))

		case <-timerC:
			timerC = nil
			if !w.fire(ctx) {
				arm(w.retry.next())
			}
		}
	}
}

// fire runs the wake function and consumes the marker unless it was
// rewritten while the wake was running. It returns false when the wake
// failed and should be retried.
func (w *Watcher) fire(ctx context.Context) bool {
	info, err := os.Stat(w.spool.markerPath(w.queueName))
	if err != nil {
		return true
	}
	if err := w.wake(ctx); err != nil {
		w.logger.Debug("wake deferred", log.String("queue", w.queueName), log.Err(err))
		return false
	}
	w.retry.reset()
	if err := w.spool.consumeIfUnchanged(w.queueName, info.ModTime()); err != nil {
		w.logger.Warn("failed to consume spool marker", log.String("queue", w.queueName), log.Err(err))
	}
	return true
}
