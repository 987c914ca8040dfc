// Package events provides the in-process publish/subscribe channel used for
// observability and decoupled side effects. It is the only implicit channel in
// the execution core; everything else threads state explicitly.
package events

import (
	"log/slog"
	"sync"

	"github.com/Itangalo/scenario-lab-sub001/internal/logging"
	"github.com/Itangalo/scenario-lab-sub001/pkg/domain"
)

// Handler consumes one event. Handlers run synchronously in subscription
// order; a panicking handler is recovered, logged and skipped, and never
// aborts the emitting phase or the remaining handlers.
type Handler func(domain.Event)

// DefaultHistorySize bounds the per-run replay buffer when none is configured.
const DefaultHistorySize = 256

// Bus is a synchronous in-process event bus with per-type subscriptions and a
// bounded per-run replay buffer for late subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[domain.EventType][]*subscription
	all         []*subscription
	history     map[string][]domain.Event // run id -> recent events
	historySize int
	logger      *slog.Logger
	nextID      int
}

type subscription struct {
	id      int
	handler Handler
}

// Option configures the Bus.
type Option func(*Bus)

// WithHistorySize sets how many events per run are retained for replay.
// Zero disables the buffer.
func WithHistorySize(n int) Option {
	return func(b *Bus) {
		b.historySize = n
	}
}

// WithLogger configures the logger used to report handler failures.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

// NewBus creates an event bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subscribers: make(map[domain.EventType][]*subscription),
		history:     make(map[string][]domain.Event),
		historySize: DefaultHistorySize,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for one event type. The returned function
// removes the subscription.
func (b *Bus) Subscribe(t domain.EventType, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscription{id: b.nextID, handler: h}
	b.subscribers[t] = append(b.subscribers[t], sub)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.subscribers[t] = removeSub(b.subscribers[t], sub.id)
	}
}

// SubscribeAll registers a handler for every event type. Used by stream
// forwarders that relay bus events verbatim.
func (b *Bus) SubscribeAll(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscription{id: b.nextID, handler: h}
	b.all = append(b.all, sub)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.all = removeSub(b.all, sub.id)
	}
}

// Publish dispatches the event to all matching handlers in subscription order
// and records it in the per-run replay buffer.
func (b *Bus) Publish(evt domain.Event) {
	b.mu.Lock()
	if b.historySize > 0 && evt.RunID != "" {
		buf := append(b.history[evt.RunID], evt)
		if len(buf) > b.historySize {
			buf = buf[len(buf)-b.historySize:]
		}
		b.history[evt.RunID] = buf
	}
	typed := make([]*subscription, len(b.subscribers[evt.Type]))
	copy(typed, b.subscribers[evt.Type])
	all := make([]*subscription, len(b.all))
	copy(all, b.all)
	b.mu.Unlock()

	for _, sub := range typed {
		b.dispatch(sub, evt)
	}
	for _, sub := range all {
		b.dispatch(sub, evt)
	}
}

// dispatch isolates handler failures so one bad subscriber cannot take down
// the emitting phase or its siblings.
func (b *Bus) dispatch(sub *subscription, evt domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event_type", string(evt.Type),
				"run_id", evt.RunID,
				"panic", r,
			)
		}
	}()
	sub.handler(evt)
}

// History returns the retained events for a run, oldest first. The returned
// slice is a copy.
func (b *Bus) History(runID string) []domain.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	buf := b.history[runID]
	out := make([]domain.Event, len(buf))
	copy(out, buf)
	return out
}

// Forget drops the replay buffer for a run after it ends.
func (b *Bus) Forget(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.history, runID)
}

func removeSub(subs []*subscription, id int) []*subscription {
	out := subs[:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}
