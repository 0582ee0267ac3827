// Package bus is a small in-process pub/sub bus for agent lifecycle events.
package bus

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Event types published by the agent manager.
const (
	AgentSpawned = "agent.spawned"
	AgentRemoved = "agent.removed"
	RunFinished  = "agent.run_finished"
	TreeAborted  = "agent.tree_aborted"
	TreeReloaded = "tree.reloaded"
)

// Any subscribes a handler to every event type.
const Any = "*"

// Event is an immutable notification. Source is the agent ID, or the tree name for
// tree events.
type Event struct {
	Type      string
	Source    string
	Timestamp time.Time
	Data      any
}

func NewEvent(typ, source string, data any) Event {
	return Event{Type: typ, Source: source, Timestamp: time.Now(), Data: data}
}

// Handler is called synchronously in the publisher's goroutine. Handlers must be quick
// and safe for concurrent use: the manager publishes from its update workers.
type Handler func(Event) error

// Subscription is returned by Subscribe. Cancel is idempotent.
type Subscription struct {
	id        string
	eventType string
	bus       *Bus
	active    atomic.Bool
}

func (s *Subscription) ID() string { return s.id }

func (s *Subscription) EventType() string { return s.eventType }

func (s *Subscription) IsActive() bool { return s.active.Load() }

func (s *Subscription) Cancel() {
	if s.active.CompareAndSwap(true, false) {
		s.bus.remove(s)
	}
}

// Metrics counts deliveries since the bus was created.
type Metrics struct {
	Published   uint64
	Delivered   uint64
	Errors      uint64
	Subscribers int
}

// Bus fans events out by type. It is safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]map[string]entry

	published atomic.Uint64
	delivered atomic.Uint64
	errors    atomic.Uint64
}

type entry struct {
	sub     *Subscription
	handler Handler
}

func New() *Bus {
	return &Bus{handlers: make(map[string]map[string]entry)}
}

// Subscribe registers handler for eventType, or for every type with Any.
func (b *Bus) Subscribe(eventType string, handler Handler) *Subscription {
	s := &Subscription{id: uuid.NewString(), eventType: eventType, bus: b}
	s.active.Store(true)
	b.mu.Lock()
	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[string]entry)
	}
	b.handlers[eventType][s.id] = entry{sub: s, handler: handler}
	b.mu.Unlock()
	return s
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	delete(b.handlers[s.eventType], s.id)
	b.mu.Unlock()
}

// Publish delivers event to the handlers of its type and then to Any handlers. Handler
// errors are joined and returned; every handler runs regardless.
func (b *Bus) Publish(event Event) error {
	b.mu.RLock()
	typed, wild := b.handlers[event.Type], b.handlers[Any]
	targets := make([]entry, 0, len(typed)+len(wild))
	for _, e := range typed {
		targets = append(targets, e)
	}
	for _, e := range wild {
		targets = append(targets, e)
	}
	b.mu.RUnlock()

	b.published.Add(1)
	var errs []error
	for _, e := range targets {
		if !e.sub.IsActive() {
			continue
		}
		b.delivered.Add(1)
		if err := e.handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		b.errors.Add(1)
	}
	return errors.Join(errs...)
}

// PublishAsync publishes from a new goroutine. The channel receives the result and is
// then closed.
func (b *Bus) PublishAsync(event Event) <-chan error {
	ch := make(chan error, 1)
	go func() {
		ch <- b.Publish(event)
		close(ch)
	}()
	return ch
}

func (b *Bus) Metrics() Metrics {
	b.mu.RLock()
	var subs int
	for _, m := range b.handlers {
		subs += len(m)
	}
	b.mu.RUnlock()
	return Metrics{
		Published:   b.published.Load(),
		Delivered:   b.delivered.Load(),
		Errors:      b.errors.Load(),
		Subscribers: subs,
	}
}
