package restaurant

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/razihadjamor/mangeo-backend/internal/events"
	"github.com/razihadjamor/mangeo-backend/pkg/bus"
	"github.com/razihadjamor/mangeo-backend/pkg/config"
	"github.com/razihadjamor/mangeo-backend/pkg/db"
	"github.com/razihadjamor/mangeo-backend/pkg/db/models"
	"github.com/razihadjamor/mangeo-backend/pkg/errors"
	"github.com/razihadjamor/mangeo-backend/pkg/logger"
)

// Bus is the restaurant's view of the event channel.
type Bus interface {
	Publish(ctx context.Context, topic string, payload any) error
	Subscribe(ctx context.Context, topics ...string) (<-chan bus.Message, error)
}

// Directory resolves restaurant identities at startup.
type Directory interface {
	GetRestaurant(ctx context.Context, restaurantID string) (*models.Restaurant, error)
}

type gormDirectory struct {
	client *db.Client
}

// NewDirectory builds the store-backed restaurant directory.
func NewDirectory(client *db.Client) Directory {
	return &gormDirectory{client: client}
}

func (d *gormDirectory) GetRestaurant(ctx context.Context, restaurantID string) (*models.Restaurant, error) {
	var restaurant models.Restaurant
	if err := d.client.DB().WithContext(ctx).First(&restaurant, "restaurant_id = ?", restaurantID).Error; err != nil {
		if db.IsNotFound(err) {
			return nil, errors.New(errors.CodeNotFound, "unknown restaurant id")
		}
		return nil, errors.Wrap(errors.CodeDependency, err, "loading restaurant")
	}
	return &restaurant, nil
}

// Agent is one restaurant's kitchen. It picks its own accepted orders off
// the bus, simulates preparation and announces readiness.
type Agent struct {
	id   string
	cfg  config.RestaurantConfig
	bus  Bus
	logg *logger.Logger
	rng  *rand.Rand

	// sleep is swapped in tests so preparation takes no wall time.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewAgent builds a restaurant agent.
func NewAgent(id string, cfg config.RestaurantConfig, b Bus, logg *logger.Logger) *Agent {
	return &Agent{
		id:    id,
		cfg:   cfg,
		bus:   b,
		logg:  logg,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep: sleepCtx,
	}
}

// Run listens for accepted orders until ctx is cancelled. Each order is
// prepared on its own goroutine so a busy kitchen keeps receiving.
func (a *Agent) Run(ctx context.Context) error {
	ctx = a.logg.WithRestaurantID(ctx, a.id)
	messages, err := a.bus.Subscribe(ctx, events.TopicOrdersAccepted)
	if err != nil {
		return errors.Wrap(errors.CodeDependency, err, "subscribing to bus")
	}
	a.logg.Info(ctx, "restaurant open")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, open := <-messages:
			if !open {
				return nil
			}
			var evt events.OrderAccepted
			if err := msg.Decode(&evt); err != nil {
				a.logg.Warn(ctx, fmt.Sprintf("dropping malformed message: %v", err))
				continue
			}
			go func() {
				if err := a.OnOrderAccepted(ctx, evt); err != nil {
					a.logg.Error(ctx, "preparing order", err)
				}
			}()
		}
	}
}

// OnOrderAccepted prepares an order addressed to this restaurant and
// publishes readiness. Orders for other restaurants are ignored.
func (a *Agent) OnOrderAccepted(ctx context.Context, evt events.OrderAccepted) error {
	if evt.RestaurantID != a.id {
		return nil
	}
	ctx = a.logg.WithOrderID(ctx, evt.OrderID)

	delay := a.prepDelay()
	a.logg.Info(ctx, fmt.Sprintf("preparing order, ready in %s", delay.Round(time.Second)))
	if err := a.sleep(ctx, delay); err != nil {
		return err
	}

	if err := a.bus.Publish(ctx, events.TopicOrdersReady, events.OrderReady{
		OrderID:      evt.OrderID,
		RestaurantID: a.id,
	}); err != nil {
		return errors.Wrap(errors.CodeDependency, err, "publishing ready order")
	}
	a.logg.Info(ctx, "order ready for pickup")
	return nil
}

func (a *Agent) prepDelay() time.Duration {
	min, max := a.cfg.PrepMin, a.cfg.PrepMax
	if max <= min {
		return min
	}
	return min + time.Duration(a.rng.Int63n(int64(max-min)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
