// Package bus is a synchronous publish/subscribe facility used by the sync
// core to report what happened without depending on any UI technology.
package bus

import (
	"fmt"
	"sync"

	"github.com/bft-labs/syncq/pkg/log"
)

// Topics published by the sync core.
const (
	TopicConnectivityChanged = "connectivity-changed"
	TopicSyncNotification    = "sync-notification"
	TopicSyncStatus          = "sync-status"
)

// ConnectivityChanged is the payload of TopicConnectivityChanged.
type ConnectivityChanged struct {
	Online bool
}

// SyncNotification is the payload of TopicSyncNotification. It is published
// after a drain only when at least one count is nonzero.
type SyncNotification struct {
	Synced int
	Failed int
}

// SyncStatus is the payload of TopicSyncStatus, published after every
// completed drain. Drained distinguishes it from status derived from a
// connectivity change.
type SyncStatus struct {
	Online  bool
	Drained bool
	Synced  int
	Failed  int
}

// Handler receives a published payload.
type Handler func(payload any)

type subscription struct {
	id uint64
	fn Handler
}

// Bus delivers payloads to subscribers in registration order. A panicking
// subscriber is recovered and logged; delivery continues with the next one.
type Bus struct {
	logger log.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]subscription
}

// New creates a Bus. A nil logger disables logging.
func New(logger log.Logger) *Bus {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Bus{
		logger: logger,
		subs:   make(map[string][]subscription),
	}
}

// Subscribe registers fn for topic and returns a function that removes it.
// The returned function is safe to call more than once.
func (b *Bus) Subscribe(topic string, fn Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(topic, id) })
	}
}

func (b *Bus) unsubscribe(topic string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.subs[topic]
	next := make([]subscription, 0, len(current))
	for _, s := range current {
		if s.id != id {
			next = append(next, s)
		}
	}
	if len(next) == 0 {
		delete(b.subs, topic)
		return
	}
	b.subs[topic] = next
}

// Publish invokes every subscriber of topic with payload, in registration
// order, on the calling goroutine. Subscribers registered or removed during
// delivery take effect on the next Publish.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	subs := b.subs[topic]
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(topic, s.fn, payload)
	}
}

// Subscribers returns the number of handlers registered for topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

func (b *Bus) deliver(topic string, fn Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber panicked",
				log.String("topic", topic),
				log.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	fn(payload)
}

// SubscribeStatus registers fn for connectivity changes and completed
// drains, both reported as SyncStatus. It returns a function that removes
// both subscriptions.
func (b *Bus) SubscribeStatus(fn func(SyncStatus)) func() {
	unsubConn := b.Subscribe(TopicConnectivityChanged, func(p any) {
		if ev, ok := p.(ConnectivityChanged); ok {
			fn(SyncStatus{Online: ev.Online})
		}
	})
	unsubStatus := b.Subscribe(TopicSyncStatus, func(p any) {
		if st, ok := p.(SyncStatus); ok {
			fn(st)
		}
	})
	return func() {
		unsubConn()
		unsubStatus()
	}
}

// SubscribeNotification registers fn for drains that synced or failed at
// least one record.
func (b *Bus) SubscribeNotification(fn func(SyncNotification)) func() {
	return b.Subscribe(TopicSyncNotification, func(p any) {
		if n, ok := p.(SyncNotification); ok {
			fn(n)
		}
	})
}
