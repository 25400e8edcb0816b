package eventbus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/mailflow/pkg/channels/gochannel"
	"github.com/dukex/mailflow/pkg/events"
	"github.com/dukex/mailflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *WatermillEventBus {
	t.Helper()

	pub, sub := gochannel.CreateChannel(watermill.NopLogger{})
	bus := NewWatermillEventBus(pub, sub, testutil.Logger())

	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)
	received := make(chan *events.LeadSignup, 1)

	require.NoError(t, bus.Handle(events.LeadSignupEvent, func(_ context.Context, event any) error {
		received <- event.(*events.LeadSignup)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	err := bus.Publish(ctx, "s1", events.LeadSignup{
		BaseEvent: events.NewBaseEvent(events.LeadSignupEvent),
		StoreID:   "s1",
		Email:     "ana@example.com",
	})
	require.NoError(t, err)

	select {
	case event := <-received:
		assert.Equal(t, "ana@example.com", event.Email)
		assert.Equal(t, "s1", event.TriggerEvent().TenantID)
	case <-time.After(5 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestWatermillEventBus_NackRedelivers(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)

	var attempts atomic.Int32

	done := make(chan struct{})

	require.NoError(t, bus.Handle(events.TagAddedEvent, func(_ context.Context, _ any) error {
		if attempts.Add(1) == 1 {
			return errors.New("transient")
		}

		close(done)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))
	require.NoError(t, bus.Publish(ctx, "s1", events.TagAdded{BaseEvent: events.NewBaseEvent(events.TagAddedEvent), Tag: "vip"}))

	select {
	case <-done:
		assert.Equal(t, int32(2), attempts.Load())
	case <-time.After(5 * time.Second):
		t.Fatal("event not redelivered")
	}
}
