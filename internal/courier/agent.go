package courier

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/razihadjamor/mangeo-backend/internal/events"
	"github.com/razihadjamor/mangeo-backend/pkg/bus"
	"github.com/razihadjamor/mangeo-backend/pkg/config"
	"github.com/razihadjamor/mangeo-backend/pkg/enums"
	"github.com/razihadjamor/mangeo-backend/pkg/errors"
	"github.com/razihadjamor/mangeo-backend/pkg/logger"
	"github.com/razihadjamor/mangeo-backend/pkg/redis"
)

// Bus is the courier's view of the event channel. Couriers listen live
// only: an offer broadcast while the agent was down is not theirs to race
// for.
type Bus interface {
	Publish(ctx context.Context, topic string, payload any) error
	Subscribe(ctx context.Context, topics ...string) (<-chan bus.Message, error)
}

// Decider is the accept/decline hook for an incoming offer.
type Decider interface {
	Decide(ctx context.Context, offer events.Offer) bool
}

// DeciderFunc adapts a function to the Decider interface.
type DeciderFunc func(ctx context.Context, offer events.Offer) bool

// Decide implements Decider.
func (f DeciderFunc) Decide(ctx context.Context, offer events.Offer) bool {
	return f(ctx, offer)
}

// AcceptAll takes every offer. Used in scripted simulations.
func AcceptAll() Decider {
	return DeciderFunc(func(context.Context, events.Offer) bool { return true })
}

// AcceptWithProbability takes an offer with probability p.
func AcceptWithProbability(p float64, rng *rand.Rand) Decider {
	return DeciderFunc(func(context.Context, events.Offer) bool {
		return rng.Float64() < p
	})
}

// Agent is one courier of the pool. Its state machine is local and never
// persisted: AVAILABLE → BIDDING on a won claim, BIDDING → DELIVERING on a
// confirmed assignment, back to AVAILABLE on completion or loss. All event
// handling runs on the single Run goroutine.
type Agent struct {
	id      string
	cfg     config.CourierConfig
	bus     Bus
	claims  redis.ClaimStore
	decider Decider
	logg    *logger.Logger
	rng     *rand.Rand

	state    enums.CourierState
	awaiting string

	// sleep is swapped in tests so simulated travel takes no wall time.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewAgent builds a courier agent.
func NewAgent(id string, cfg config.CourierConfig, b Bus, claims redis.ClaimStore, decider Decider, logg *logger.Logger) *Agent {
	if decider == nil {
		decider = AcceptAll()
	}
	return &Agent{
		id:      id,
		cfg:     cfg,
		bus:     b,
		claims:  claims,
		decider: decider,
		logg:    logg,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		state:   enums.CourierAvailable,
		sleep:   sleepCtx,
	}
}

// State returns the agent's current availability state.
func (a *Agent) State() enums.CourierState {
	return a.state
}

// Run listens for offers and assignment notifications until ctx is
// cancelled.
func (a *Agent) Run(ctx context.Context) error {
	ctx = a.logg.WithCourierID(ctx, a.id)
	messages, err := a.bus.Subscribe(ctx, events.TopicOffersBroadcast, events.TopicNotifications)
	if err != nil {
		return errors.Wrap(errors.CodeDependency, err, "subscribing to bus")
	}
	a.logg.Info(ctx, "courier available")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, open := <-messages:
			if !open {
				return nil
			}
			a.handle(ctx, msg)
		}
	}
}

func (a *Agent) handle(ctx context.Context, msg bus.Message) {
	switch msg.Topic {
	case events.TopicOffersBroadcast:
		var offer events.Offer
		if err := msg.Decode(&offer); err != nil {
			a.logg.Warn(ctx, fmt.Sprintf("dropping malformed offer: %v", err))
			return
		}
		if err := a.OnOffer(ctx, offer); err != nil {
			a.logg.Error(ctx, "handling offer", err)
		}
	case events.TopicNotifications:
		var notification events.Notification
		if err := msg.Decode(&notification); err != nil {
			a.logg.Warn(ctx, fmt.Sprintf("dropping malformed notification: %v", err))
			return
		}
		if err := a.OnNotification(ctx, notification); err != nil {
			a.logg.Error(ctx, "handling notification", err)
		}
	}
}

// OnOffer races for a broadcast offer. Busy couriers ignore it; an
// interested courier must win the SETNX claim before bidding, so at most
// one courier per claim window reaches the dispatcher.
func (a *Agent) OnOffer(ctx context.Context, offer events.Offer) error {
	ctx = a.logg.WithOrderID(ctx, offer.OrderID)
	if a.state != enums.CourierAvailable {
		return nil
	}
	if !a.decider.Decide(ctx, offer) {
		a.logg.Info(ctx, "offer declined")
		return nil
	}

	won, err := a.claims.Claim(ctx, a.claims.ClaimKey(offer.OrderID), a.id, a.cfg.ClaimTTL)
	if err != nil {
		return errors.Wrap(errors.CodeDependency, err, "claiming offer")
	}
	if !won {
		// Another courier reached the claim first. Expected, stay available.
		a.logg.Info(ctx, "claim lost, staying available")
		return nil
	}

	a.state = enums.CourierBidding
	a.awaiting = offer.OrderID
	a.logg.Info(ctx, fmt.Sprintf("claim won, bidding for reward %s", offer.Reward.StringFixed(2)))

	if err := a.bus.Publish(ctx, events.TopicCourierResponses, events.BidResponse{
		OrderID:   offer.OrderID,
		CourierID: a.id,
		Accepted:  true,
	}); err != nil {
		a.reset(ctx, offer.OrderID)
		return errors.Wrap(errors.CodeDependency, err, "publishing bid")
	}
	return nil
}

// OnNotification reacts to the dispatcher settling the order this agent is
// waiting on. Notifications for other orders are ignored.
func (a *Agent) OnNotification(ctx context.Context, notification events.Notification) error {
	if a.awaiting == "" || notification.OrderID != a.awaiting {
		return nil
	}
	ctx = a.logg.WithOrderID(ctx, notification.OrderID)

	switch notification.Kind {
	case enums.NotificationCourierAssigned:
		if notification.CourierID == a.id {
			return a.deliver(ctx, notification.OrderID)
		}
		// The dispatcher's status write went to someone else; our claim or
		// bid arrived too late.
		a.logg.Info(ctx, "assignment went to another courier")
		a.reset(ctx, notification.OrderID)
	case enums.NotificationNoCourierAvailable, enums.NotificationOrderRejected:
		a.logg.Info(ctx, "awaited order closed without assignment")
		a.reset(ctx, notification.OrderID)
	}
	return nil
}

// deliver simulates the pickup and transit legs, then reports completion.
func (a *Agent) deliver(ctx context.Context, orderID string) error {
	a.state = enums.CourierDelivering
	a.logg.Info(ctx, "assignment confirmed, heading to pickup")

	if err := a.sleep(ctx, a.randomDelay(a.cfg.PickupMin, a.cfg.PickupMax)); err != nil {
		return err
	}
	a.logg.Info(ctx, "order picked up, in transit")
	if err := a.sleep(ctx, a.randomDelay(a.cfg.TransitMin, a.cfg.TransitMax)); err != nil {
		return err
	}

	if err := a.bus.Publish(ctx, events.TopicCourierResponses, events.BidResponse{
		OrderID:   orderID,
		CourierID: a.id,
		Accepted:  true,
		Delivered: true,
	}); err != nil {
		return errors.Wrap(errors.CodeDependency, err, "reporting delivery")
	}
	a.logg.Info(ctx, "delivery reported")
	a.reset(ctx, orderID)
	return nil
}

// reset releases the claim if this agent still owns it and returns to
// AVAILABLE. The compare-and-delete is atomic, so a claim that expired and
// was re-granted to someone else is never deleted here.
func (a *Agent) reset(ctx context.Context, orderID string) {
	if _, err := a.claims.ReleaseIfOwner(ctx, a.claims.ClaimKey(orderID), a.id); err != nil {
		a.logg.Warn(ctx, fmt.Sprintf("releasing claim: %v", err))
	}
	a.state = enums.CourierAvailable
	a.awaiting = ""
}

func (a *Agent) randomDelay(min, max time.Duration) time.Duration {
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
