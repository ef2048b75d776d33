// Package bridge re-broadcasts realtime envelopes as domain channel events.
//
// The mapping from wire event type to channel is fixed. Channel subscribers
// receive the raw payload, or a decoded model value through the typed
// helpers. Envelopes with unmapped types are dropped.
package bridge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/mohsale1/dino-sync/internal/events"
	"github.com/mohsale1/dino-sync/internal/model"
	"github.com/mohsale1/dino-sync/internal/protocol"
	"github.com/mohsale1/dino-sync/internal/report"
)

// Channel names
const (
	ChannelOrders        = "orders"
	ChannelTables        = "tables"
	ChannelNotifications = "notifications"
	ChannelUsers         = "users"
	ChannelVenues        = "venues"
)

var channels = map[string]string{
	protocol.TypeOrderUpdate:  ChannelOrders,
	protocol.TypeTableUpdate:  ChannelTables,
	protocol.TypeNotification: ChannelNotifications,
	protocol.TypeUserUpdate:   ChannelUsers,
	protocol.TypeVenueUpdate:  ChannelVenues,
}

// ChannelFor returns the domain channel for a wire event type.
func ChannelFor(eventType string) (string, bool) {
	ch, ok := channels[eventType]
	return ch, ok
}

// EventTypes returns the mapped wire event types, sorted.
func EventTypes() []string {
	out := make([]string, 0, len(channels))
	for t := range channels {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// DecodeError means a channel payload did not match its model type.
type DecodeError struct {
	Channel string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s payload: %v", e.Channel, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Kind classifies the error for reporting.
func (e *DecodeError) Kind() string { return "decode" }

// Bridge forwards mapped envelopes from a connection bus to a channel bus.
type Bridge struct {
	channels *events.Bus[json.RawMessage]
	reporter report.Reporter
	logger   *slog.Logger

	mu   sync.Mutex
	subs []*events.Subscription[protocol.Envelope]
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithReporter sets where decode failures and handler panics are reported.
func WithReporter(r report.Reporter) Option {
	return func(b *Bridge) { b.reporter = r }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) { b.logger = logger }
}

// New creates a Bridge with its own channel bus.
func New(opts ...Option) *Bridge {
	b := &Bridge{}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.logger = b.logger.With("component", "bridge")
	if b.reporter == nil {
		b.reporter = report.Log(b.logger)
	}
	b.channels = events.NewBus[json.RawMessage](
		events.WithReporter(b.reporter),
		events.WithLogger(b.logger),
	)
	return b
}

// Attach subscribes the bridge to every mapped event type on source.
// A previous attachment is removed first.
func (b *Bridge) Attach(source events.Subscriber[protocol.Envelope]) {
	b.Detach()

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range EventTypes() {
		b.subs = append(b.subs, source.Subscribe(t, b.OnEnvelope))
	}
	b.logger.Debug("bridge attached", "types", len(b.subs))
}

// Detach removes the bridge's source subscriptions.
func (b *Bridge) Detach() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
}

// Attached reports whether every source subscription is still registered.
// A source that was cleared, as the connection does on disconnect, leaves
// the bridge detached until the next Attach.
func (b *Bridge) Attached() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.subs) == 0 {
		return false
	}
	for _, s := range b.subs {
		if !s.Active() {
			return false
		}
	}
	return true
}

// OnEnvelope publishes env's payload on its mapped channel.
func (b *Bridge) OnEnvelope(env protocol.Envelope) {
	ch, ok := ChannelFor(env.Type)
	if !ok {
		b.logger.Debug("dropping unmapped event", "type", env.Type)
		return
	}
	b.channels.Publish(ch, env.Payload)
}

// Subscribe registers h for the raw payloads of a channel.
func (b *Bridge) Subscribe(channel string, h events.Handler[json.RawMessage]) *events.Subscription[json.RawMessage] {
	return b.channels.Subscribe(channel, h)
}

// OnOrderUpdate registers fn for decoded order updates.
func (b *Bridge) OnOrderUpdate(fn func(model.Order)) *events.Subscription[json.RawMessage] {
	return subscribeTyped(b, ChannelOrders, fn)
}

// OnTableUpdate registers fn for decoded table updates.
func (b *Bridge) OnTableUpdate(fn func(model.Table)) *events.Subscription[json.RawMessage] {
	return subscribeTyped(b, ChannelTables, fn)
}

// OnVenueUpdate registers fn for decoded venue status updates.
func (b *Bridge) OnVenueUpdate(fn func(model.VenueStatus)) *events.Subscription[json.RawMessage] {
	return subscribeTyped(b, ChannelVenues, fn)
}

// OnNotification registers fn for decoded notifications.
func (b *Bridge) OnNotification(fn func(model.Notification)) *events.Subscription[json.RawMessage] {
	return subscribeTyped(b, ChannelNotifications, fn)
}

// OnUserUpdate registers fn for decoded user updates.
func (b *Bridge) OnUserUpdate(fn func(model.UserUpdate)) *events.Subscription[json.RawMessage] {
	return subscribeTyped(b, ChannelUsers, fn)
}

func subscribeTyped[T any](b *Bridge, channel string, fn func(T)) *events.Subscription[json.RawMessage] {
	return b.channels.Subscribe(channel, func(raw json.RawMessage) {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			b.reporter.Report(&DecodeError{Channel: channel, Err: err})
			return
		}
		fn(v)
	})
}
