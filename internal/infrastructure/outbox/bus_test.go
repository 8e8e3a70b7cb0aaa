package outbox

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domoutbox "github.com/soko-labs/soko-checkout/internal/domain/outbox"
)

type testEvent struct{ name string }

func (e testEvent) EventName() string { return e.name }

func startedBus(t *testing.T) *Bus {
	t.Helper()
	b := NewBus(nil)
	b.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		b.Stop(ctx)
	})
	return b
}

func TestBusDeliversToSubscribers(t *testing.T) {
	b := startedBus(t)

	got := make(chan domoutbox.Event, 1)
	b.Subscribe("order.created", func(ctx context.Context, e domoutbox.Event) error {
		got <- e
		return nil
	})

	require.NoError(t, b.Publish(context.Background(), testEvent{name: "order.created"}))

	select {
	case e := <-got:
		assert.Equal(t, "order.created", e.EventName())
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestBusFansOutToAllHandlers(t *testing.T) {
	b := startedBus(t)

	var delivered atomic.Int64
	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		b.Subscribe("order.created", func(ctx context.Context, e domoutbox.Event) error {
			delivered.Add(1)
			done <- struct{}{}
			return nil
		})
	}

	require.NoError(t, b.Publish(context.Background(), testEvent{name: "order.created"}))

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("fanout incomplete")
		}
	}
	assert.Equal(t, int64(3), delivered.Load())
}

func TestBusRoutesByEventName(t *testing.T) {
	b := startedBus(t)

	confirmed := make(chan struct{}, 1)
	b.Subscribe("checkout.confirmed", func(ctx context.Context, e domoutbox.Event) error {
		confirmed <- struct{}{}
		return nil
	})

	require.NoError(t, b.Publish(context.Background(), testEvent{name: "checkout.timed_out"}))
	require.NoError(t, b.Publish(context.Background(), testEvent{name: "checkout.confirmed"}))

	select {
	case <-confirmed:
	case <-time.After(time.Second):
		t.Fatal("subscribed event not delivered")
	}
	select {
	case <-confirmed:
		t.Fatal("handler received an event it never subscribed to")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusSurvivesPanickingHandler(t *testing.T) {
	b := startedBus(t)

	b.Subscribe("order.created", func(ctx context.Context, e domoutbox.Event) error {
		panic("handler bug")
	})
	healthy := make(chan struct{}, 2)
	b.Subscribe("order.created", func(ctx context.Context, e domoutbox.Event) error {
		healthy <- struct{}{}
		return nil
	})

	for i := 0; i < 2; i++ {
		require.NoError(t, b.Publish(context.Background(), testEvent{name: "order.created"}))
	}
	for i := 0; i < 2; i++ {
		select {
		case <-healthy:
		case <-time.After(time.Second):
			t.Fatal("bus stopped delivering after a handler panic")
		}
	}
}

func TestBusHandlerErrorsDoNotStopDelivery(t *testing.T) {
	b := startedBus(t)

	delivered := make(chan struct{}, 1)
	b.Subscribe("order.created", func(ctx context.Context, e domoutbox.Event) error {
		return errors.New("downstream unavailable")
	})
	b.Subscribe("order.created", func(ctx context.Context, e domoutbox.Event) error {
		delivered <- struct{}{}
		return nil
	})

	require.NoError(t, b.Publish(context.Background(), testEvent{name: "order.created"}))

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("second handler never ran")
	}
}

func TestBusPublishNilIsNoop(t *testing.T) {
	b := startedBus(t)
	assert.NoError(t, b.Publish(context.Background(), nil))
}
