package restaurant

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/razihadjamor/mangeo-backend/internal/events"
	"github.com/razihadjamor/mangeo-backend/pkg/bus"
	"github.com/razihadjamor/mangeo-backend/pkg/config"
	"github.com/razihadjamor/mangeo-backend/pkg/logger"
)

type fakeBus struct {
	mu     sync.Mutex
	events []struct {
		topic   string
		payload any
	}
}

func (f *fakeBus) Publish(_ context.Context, topic string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, struct {
		topic   string
		payload any
	}{topic, payload})
	return nil
}

func (f *fakeBus) Subscribe(context.Context, ...string) (<-chan bus.Message, error) {
	out := make(chan bus.Message)
	close(out)
	return out, nil
}

func (f *fakeBus) ready() []events.OrderReady {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []events.OrderReady
	for _, evt := range f.events {
		if evt.topic == events.TopicOrdersReady {
			out = append(out, evt.payload.(events.OrderReady))
		}
	}
	return out
}

func testAgent(t *testing.T, id string, b *fakeBus) *Agent {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "restaurant-test", Output: io.Discard})
	agent := NewAgent(id, config.RestaurantConfig{PrepMin: time.Millisecond, PrepMax: 2 * time.Millisecond}, b, logg)
	agent.sleep = func(context.Context, time.Duration) error { return nil }
	return agent
}

func TestOnOrderAcceptedPublishesReady(t *testing.T) {
	b := &fakeBus{}
	agent := testAgent(t, "resto-1", b)

	require.NoError(t, agent.OnOrderAccepted(context.Background(), events.OrderAccepted{
		OrderID:      "cmd-1",
		RestaurantID: "resto-1",
	}))

	ready := b.ready()
	require.Len(t, ready, 1)
	require.Equal(t, events.OrderReady{OrderID: "cmd-1", RestaurantID: "resto-1"}, ready[0])
}

func TestOnOrderAcceptedIgnoresOtherRestaurants(t *testing.T) {
	b := &fakeBus{}
	agent := testAgent(t, "resto-1", b)

	require.NoError(t, agent.OnOrderAccepted(context.Background(), events.OrderAccepted{
		OrderID:      "cmd-1",
		RestaurantID: "resto-2",
	}))

	require.Empty(t, b.ready())
}

func TestPrepDelayStaysWithinConfiguredBounds(t *testing.T) {
	b := &fakeBus{}
	agent := NewAgent("resto-1", config.RestaurantConfig{
		PrepMin: 5 * time.Second,
		PrepMax: 12 * time.Second,
	}, b, logger.New(logger.Options{ServiceName: "restaurant-test", Output: io.Discard}))

	for i := 0; i < 100; i++ {
		d := agent.prepDelay()
		require.GreaterOrEqual(t, d, 5*time.Second)
		require.Less(t, d, 12*time.Second)
	}
}
