package bridge

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohsale1/dino-sync/internal/events"
	"github.com/mohsale1/dino-sync/internal/model"
	"github.com/mohsale1/dino-sync/internal/protocol"
	"github.com/mohsale1/dino-sync/internal/report"
)

func envelope(t *testing.T, msgType string, payload any) protocol.Envelope {
	t.Helper()
	env, err := protocol.NewEnvelope(msgType, payload, time.Date(2024, 3, 1, 18, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	return env
}

func TestChannelFor(t *testing.T) {
	tests := []struct {
		eventType string
		want      string
		ok        bool
	}{
		{protocol.TypeOrderUpdate, ChannelOrders, true},
		{protocol.TypeTableUpdate, ChannelTables, true},
		{protocol.TypeNotification, ChannelNotifications, true},
		{protocol.TypeUserUpdate, ChannelUsers, true},
		{protocol.TypeVenueUpdate, ChannelVenues, true},
		{protocol.TypeSubscribe, "", false},
		{"menu_update", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			got, ok := ChannelFor(tt.eventType)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestBridge_ForwardsMappedPayloads(t *testing.T) {
	source := events.NewBus[protocol.Envelope]()
	b := New()
	b.Attach(source)

	var got []string
	b.Subscribe(ChannelOrders, func(raw json.RawMessage) { got = append(got, string(raw)) })
	tables := 0
	b.Subscribe(ChannelTables, func(json.RawMessage) { tables++ })

	env := envelope(t, protocol.TypeOrderUpdate, map[string]string{"id": "o1"})
	source.Publish(env.Type, env)

	require.Len(t, got, 1)
	assert.JSONEq(t, `{"id":"o1"}`, got[0])
	assert.Equal(t, 0, tables)
}

func TestBridge_DropsUnmappedTypes(t *testing.T) {
	b := New()

	delivered := 0
	for _, ch := range []string{ChannelOrders, ChannelTables, ChannelNotifications, ChannelUsers, ChannelVenues} {
		b.Subscribe(ch, func(json.RawMessage) { delivered++ })
	}

	b.OnEnvelope(envelope(t, "menu_update", nil))
	assert.Equal(t, 0, delivered)
}

func TestBridge_TypedHelpers(t *testing.T) {
	source := events.NewBus[protocol.Envelope]()
	b := New()
	b.Attach(source)

	var order model.Order
	var table model.Table
	var venue model.VenueStatus
	var note model.Notification
	var user model.UserUpdate
	b.OnOrderUpdate(func(o model.Order) { order = o })
	b.OnTableUpdate(func(tb model.Table) { table = tb })
	b.OnVenueUpdate(func(v model.VenueStatus) { venue = v })
	b.OnNotification(func(n model.Notification) { note = n })
	b.OnUserUpdate(func(u model.UserUpdate) { user = u })

	publish := func(msgType string, payload any) {
		env := envelope(t, msgType, payload)
		source.Publish(env.Type, env)
	}
	publish(protocol.TypeOrderUpdate, model.Order{ID: "o1", Status: model.OrderReady})
	publish(protocol.TypeTableUpdate, model.Table{ID: "t1", Status: model.TableOccupied})
	publish(protocol.TypeVenueUpdate, model.VenueStatus{VenueID: "v1", IsOpen: true})
	publish(protocol.TypeNotification, model.Notification{ID: "n1", Title: "Table 4 needs help"})
	publish(protocol.TypeUserUpdate, model.UserUpdate{UserID: "u1", Role: "manager"})

	assert.Equal(t, model.OrderReady, order.Status)
	assert.Equal(t, model.TableOccupied, table.Status)
	assert.True(t, venue.IsOpen)
	assert.Equal(t, "Table 4 needs help", note.Title)
	assert.Equal(t, "manager", user.Role)
}

func TestBridge_DecodeFailureIsReported(t *testing.T) {
	rec := &report.Recorder{}
	b := New(WithReporter(rec))

	called := false
	b.OnOrderUpdate(func(model.Order) { called = true })
	b.OnEnvelope(envelope(t, protocol.TypeOrderUpdate, "not an order"))

	assert.False(t, called)
	require.Equal(t, 1, rec.Len())
	var derr *DecodeError
	require.ErrorAs(t, rec.Errors()[0], &derr)
	assert.Equal(t, ChannelOrders, derr.Channel)
	assert.Equal(t, "decode", report.KindOf(derr))
}

func TestBridge_DetachAndReattach(t *testing.T) {
	source := events.NewBus[protocol.Envelope]()
	b := New()
	b.Attach(source)
	b.Attach(source)
	assert.Equal(t, 1, source.Len(protocol.TypeOrderUpdate), "attach replaces the previous attachment")

	b.Detach()
	assert.False(t, b.Attached())
	assert.Empty(t, source.Types())

	// Detach after the source was cleared is harmless.
	b.Attach(source)
	source.Clear()
	b.Detach()
	assert.Empty(t, source.Types())
}

func TestBridge_AttachedFollowsSource(t *testing.T) {
	source := events.NewBus[protocol.Envelope]()
	b := New()

	b.Attach(source)
	require.True(t, b.Attached())

	source.Clear()
	assert.False(t, b.Attached(), "cleared source drops the attachment")

	var got string
	b.OnOrderUpdate(func(o model.Order) { got = o.ID })
	b.Attach(source)
	require.True(t, b.Attached())

	source.Publish(protocol.TypeOrderUpdate, envelope(t, protocol.TypeOrderUpdate, map[string]any{"id": "o1"}))
	assert.Equal(t, "o1", got)
}
