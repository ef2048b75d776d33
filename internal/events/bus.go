// Package events implements the in-process publish/subscribe registry.
//
// A Bus keys subscribers by event type. Publish is synchronous: handlers run
// on the publisher's goroutine, in registration order, against a snapshot of
// the subscribers present when Publish was called. Nothing is buffered for
// subscribers that arrive later.
package events

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/mohsale1/dino-sync/internal/report"
)

// Handler receives published data.
type Handler[T any] func(data T)

// HandlerError reports a handler that panicked during Publish.
type HandlerError struct {
	EventType      string
	SubscriptionID uuid.UUID
	Recovered      any
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("subscriber %s for %q panicked: %v", e.SubscriptionID, e.EventType, e.Recovered)
}

// Kind classifies the error for reporting.
func (e *HandlerError) Kind() string { return "subscriber" }

// Unwrap exposes a recovered error value.
func (e *HandlerError) Unwrap() error {
	if err, ok := e.Recovered.(error); ok {
		return err
	}
	return nil
}

// Subscription is the handle returned by Subscribe. It owns exactly one
// handler and knows how to remove it.
type Subscription[T any] struct {
	id        uuid.UUID
	eventType string
	handler   Handler[T]
	bus       *Bus[T]

	once sync.Once
}

// ID returns the unique subscription id.
func (s *Subscription[T]) ID() uuid.UUID { return s.id }

// EventType returns the type this subscription listens to.
func (s *Subscription[T]) EventType() string { return s.eventType }

// Unsubscribe removes this handler. Calling it more than once is a no-op.
func (s *Subscription[T]) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s)
	})
}

// Active reports whether the handler is still registered. Unsubscribe and
// Clear both end it.
func (s *Subscription[T]) Active() bool {
	return s.bus.contains(s)
}

// Subscriber is the subscribe side of a Bus.
type Subscriber[T any] interface {
	Subscribe(eventType string, h Handler[T]) *Subscription[T]
}

// Bus is a subscriber registry keyed by event type.
type Bus[T any] struct {
	mu   sync.RWMutex
	subs map[string][]*Subscription[T]

	reporter report.Reporter
	logger   *slog.Logger
}

// Option configures a Bus.
type Option func(*options)

type options struct {
	reporter report.Reporter
	logger   *slog.Logger
}

// WithReporter sets where handler panics are reported.
func WithReporter(r report.Reporter) Option {
	return func(o *options) { o.reporter = r }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// NewBus creates an empty Bus.
func NewBus[T any](opts ...Option) *Bus[T] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.reporter == nil {
		o.reporter = report.Log(o.logger)
	}

	return &Bus[T]{
		subs:     make(map[string][]*Subscription[T]),
		reporter: o.reporter,
		logger:   o.logger,
	}
}

// Subscribe registers h under eventType.
func (b *Bus[T]) Subscribe(eventType string, h Handler[T]) *Subscription[T] {
	sub := &Subscription[T]{
		id:        uuid.New(),
		eventType: eventType,
		handler:   h,
		bus:       b,
	}

	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], sub)
	b.mu.Unlock()

	return sub
}

// Publish invokes every handler currently subscribed to eventType with data.
// A panicking handler is reported and the remaining handlers still run.
func (b *Bus[T]) Publish(eventType string, data T) {
	b.mu.RLock()
	current := b.subs[eventType]
	snapshot := make([]*Subscription[T], len(current))
	copy(snapshot, current)
	b.mu.RUnlock()

	for _, sub := range snapshot {
		b.invoke(sub, data)
	}
}

func (b *Bus[T]) invoke(sub *Subscription[T], data T) {
	defer func() {
		if r := recover(); r != nil {
			b.reporter.Report(&HandlerError{
				EventType:      sub.eventType,
				SubscriptionID: sub.id,
				Recovered:      r,
			})
		}
	}()
	sub.handler(data)
}

// Clear removes every subscription. Handles issued before Clear become no-ops.
func (b *Bus[T]) Clear() {
	b.mu.Lock()
	n := len(b.subs)
	b.subs = make(map[string][]*Subscription[T])
	b.mu.Unlock()

	if n > 0 {
		b.logger.Debug("subscriber registry cleared", "event_types", n)
	}
}

// Len returns the number of subscribers for eventType.
func (b *Bus[T]) Len(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[eventType])
}

// Has reports whether the registry holds an entry for eventType.
func (b *Bus[T]) Has(eventType string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.subs[eventType]
	return ok
}

// Types returns the event types that currently have subscribers.
func (b *Bus[T]) Types() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	types := make([]string, 0, len(b.subs))
	for t := range b.subs {
		types = append(types, t)
	}
	return types
}

func (b *Bus[T]) contains(sub *Subscription[T]) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs[sub.eventType] {
		if s == sub {
			return true
		}
	}
	return false
}

// remove deletes sub and drops the event type entry once it is empty.
func (b *Bus[T]) remove(sub *Subscription[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[sub.eventType]
	for i, s := range list {
		if s != sub {
			continue
		}
		list = append(list[:i:i], list[i+1:]...)
		if len(list) == 0 {
			delete(b.subs, sub.eventType)
		} else {
			b.subs[sub.eventType] = list
		}
		return
	}
}
