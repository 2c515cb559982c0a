package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_DispatchesInOrderToAllSubscribers(t *testing.T) {
	bus := New(8)

	var mu sync.Mutex
	var got []string
	record := func(prefix string) HandlerFunc {
		return func(_ context.Context, evt Event) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, prefix+evt.ID)
			return nil
		}
	}
	bus.Subscribe("a", record("a:"))
	bus.Subscribe("failing", HandlerFunc(func(context.Context, Event) error { return errors.New("boom") }))
	bus.Subscribe("b", record("b:"))

	bus.Start(context.Background())
	bus.Publish(context.Background(), Event{ID: "1", Type: DocumentsImported})
	bus.Publish(context.Background(), Event{ID: "2", Type: DocumentsImported})
	bus.Stop()

	assert.Equal(t, []string{"a:1", "b:1", "a:2", "b:2"}, got)
}

func TestBus_PublishAfterStopIsDropped(t *testing.T) {
	bus := New(1)
	calls := 0
	bus.Subscribe("count", HandlerFunc(func(context.Context, Event) error { calls++; return nil }))
	bus.Start(context.Background())
	bus.Stop()

	require.NotPanics(t, func() { bus.Publish(context.Background(), Event{ID: "late"}) })
	assert.Equal(t, 0, calls)
	bus.Stop()
}

func TestBus_StopWithoutStart(t *testing.T) {
	bus := New(0)
	bus.Publish(context.Background(), Event{ID: "1"})
	bus.Stop()
}

func TestBus_DrainsOnCancel(t *testing.T) {
	bus := New(4)
	var mu sync.Mutex
	seen := 0
	bus.Subscribe("count", HandlerFunc(func(context.Context, Event) error {
		mu.Lock()
		seen++
		mu.Unlock()
		return nil
	}))

	for i := range 3 {
		bus.Publish(context.Background(), Event{ID: string(rune('a' + i))})
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.Start(ctx)
	bus.Stop()

	assert.Equal(t, 3, seen)
}
