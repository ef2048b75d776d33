package events

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohsale1/dino-sync/internal/report"
)

func TestBus_PublishReachesOnlyMatchingType(t *testing.T) {
	bus := NewBus[string]()

	var orders, tables []string
	bus.Subscribe("order_update", func(d string) { orders = append(orders, "a:"+d) })
	bus.Subscribe("order_update", func(d string) { orders = append(orders, "b:"+d) })
	bus.Subscribe("table_update", func(d string) { tables = append(tables, d) })

	bus.Publish("order_update", "X")

	assert.Equal(t, []string{"a:X", "b:X"}, orders)
	assert.Empty(t, tables)
}

func TestBus_UnsubscribeRemovesEmptyEntry(t *testing.T) {
	bus := NewBus[int]()

	sub := bus.Subscribe("order_update", func(int) {})
	require.True(t, bus.Has("order_update"))

	sub.Unsubscribe()

	assert.False(t, bus.Has("order_update"))
	assert.Equal(t, 0, bus.Len("order_update"))
	assert.Empty(t, bus.Types())
}

func TestBus_UnsubscribeRemovesExactlyOne(t *testing.T) {
	bus := NewBus[int]()

	var got []string
	first := bus.Subscribe("t", func(int) { got = append(got, "first") })
	bus.Subscribe("t", func(int) { got = append(got, "second") })

	first.Unsubscribe()
	first.Unsubscribe()
	bus.Publish("t", 1)

	assert.Equal(t, []string{"second"}, got)
	assert.Equal(t, 1, bus.Len("t"))
}

func TestBus_SameHandlerTwiceGetsIndependentHandles(t *testing.T) {
	bus := NewBus[int]()

	calls := 0
	h := func(int) { calls++ }
	a := bus.Subscribe("t", h)
	b := bus.Subscribe("t", h)
	assert.NotEqual(t, a.ID(), b.ID())

	bus.Publish("t", 1)
	assert.Equal(t, 2, calls)

	a.Unsubscribe()
	bus.Publish("t", 1)
	assert.Equal(t, 3, calls)
}

func TestBus_PanickingHandlerIsIsolated(t *testing.T) {
	rec := &report.Recorder{}
	bus := NewBus[string](WithReporter(rec))

	ran := false
	bus.Subscribe("t", func(string) { panic(errors.New("boom")) })
	bus.Subscribe("t", func(string) { ran = true })

	assert.NotPanics(t, func() { bus.Publish("t", "x") })
	assert.True(t, ran)

	require.Equal(t, 1, rec.Len())
	var herr *HandlerError
	require.ErrorAs(t, rec.Errors()[0], &herr)
	assert.Equal(t, "t", herr.EventType)
	assert.EqualError(t, errors.Unwrap(herr), "boom")
	assert.Equal(t, "subscriber", report.KindOf(herr))
}

func TestBus_SnapshotAtPublish(t *testing.T) {
	bus := NewBus[int]()

	lateCalls := 0
	bus.Subscribe("t", func(int) {
		bus.Subscribe("t", func(int) { lateCalls++ })
	})

	bus.Publish("t", 1)
	assert.Equal(t, 0, lateCalls, "subscriber added during publish must not see that publish")

	bus.Publish("t", 2)
	assert.Equal(t, 1, lateCalls)
}

func TestBus_UnsubscribeDuringPublish(t *testing.T) {
	bus := NewBus[int]()

	var second *Subscription[int]
	secondCalls := 0
	bus.Subscribe("t", func(int) { second.Unsubscribe() })
	second = bus.Subscribe("t", func(int) { secondCalls++ })

	bus.Publish("t", 1)
	assert.Equal(t, 1, secondCalls, "snapshot still delivers to a handler removed mid-publish")

	bus.Publish("t", 2)
	assert.Equal(t, 1, secondCalls)
}

func TestBus_FIFOForSameType(t *testing.T) {
	bus := NewBus[int]()

	var got []int
	bus.Subscribe("t", func(d int) { got = append(got, d) })

	for i := 0; i < 5; i++ {
		bus.Publish("t", i)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestBus_Clear(t *testing.T) {
	bus := NewBus[int]()

	sub := bus.Subscribe("a", func(int) {})
	bus.Subscribe("b", func(int) {})

	require.True(t, sub.Active())
	bus.Clear()
	assert.Empty(t, bus.Types())
	assert.False(t, sub.Active())

	// Stale handle must not disturb a fresh subscriber.
	fresh := 0
	bus.Subscribe("a", func(int) { fresh++ })
	sub.Unsubscribe()
	bus.Publish("a", 1)
	assert.Equal(t, 1, fresh)
}

func TestBus_ConcurrentSubscribePublish(t *testing.T) {
	bus := NewBus[int]()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s := bus.Subscribe("t", func(int) {})
			s.Unsubscribe()
		}()
		go func() {
			defer wg.Done()
			bus.Publish("t", 1)
		}()
	}
	wg.Wait()

	assert.False(t, bus.Has("t"))
}
