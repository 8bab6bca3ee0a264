package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/razihadjamor/mangeo-backend/internal/events"
	"github.com/razihadjamor/mangeo-backend/pkg/bus"
	"github.com/razihadjamor/mangeo-backend/pkg/config"
	"github.com/razihadjamor/mangeo-backend/pkg/db/models"
	"github.com/razihadjamor/mangeo-backend/pkg/enums"
	"github.com/razihadjamor/mangeo-backend/pkg/errors"
	"github.com/razihadjamor/mangeo-backend/pkg/logger"
	"github.com/razihadjamor/mangeo-backend/pkg/metrics"
)

// Publisher is the outbound half of the event bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Subscriber is the replay-capable inbound half of the event bus.
type Subscriber interface {
	Now(ctx context.Context, topics ...string) (bus.Cursor, error)
	SubscribeFrom(ctx context.Context, cursor bus.Cursor) (<-chan bus.Message, error)
}

// Service is the order state machine. It owns every status write; agents
// only ever talk to it through the bus.
type Service struct {
	cfg       config.DispatchConfig
	repo      Repository
	publisher Publisher
	moderator Moderator
	timers    *Supervisor
	metrics   *metrics.DispatchMetrics
	logg      *logger.Logger

	// pending caches in-flight orders for the console; the store stays
	// authoritative and the cache is rebuilt on demand.
	mu       sync.Mutex
	pending  map[string]events.OrderSubmitted
	openedAt map[string]time.Time
}

// NewService wires the dispatcher.
func NewService(
	cfg config.DispatchConfig,
	repo Repository,
	publisher Publisher,
	moderator Moderator,
	dispatchMetrics *metrics.DispatchMetrics,
	logg *logger.Logger,
) *Service {
	if moderator == nil {
		moderator = AutoApprove()
	}
	return &Service{
		cfg:       cfg,
		repo:      repo,
		publisher: publisher,
		moderator: moderator,
		timers:    NewSupervisor(),
		metrics:   dispatchMetrics,
		logg:      logg,
		pending:   make(map[string]events.OrderSubmitted),
		openedAt:  make(map[string]time.Time),
	}
}

// Run consumes the dispatcher's topics until ctx is cancelled. The cursor is
// taken before the read loop starts so no event published in between is
// missed.
func (s *Service) Run(ctx context.Context) error {
	topics := []string{
		events.TopicOrdersSubmitted,
		events.TopicOrdersReady,
		events.TopicCourierResponses,
	}
	subscriber, ok := s.publisher.(Subscriber)
	if !ok {
		return errors.New(errors.CodeInternal, "publisher does not support replay subscriptions")
	}
	cursor, err := subscriber.Now(ctx, topics...)
	if err != nil {
		return errors.Wrap(errors.CodeDependency, err, "taking bus cursor")
	}
	messages, err := subscriber.SubscribeFrom(ctx, cursor)
	if err != nil {
		return errors.Wrap(errors.CodeDependency, err, "subscribing to bus")
	}
	s.logg.Info(ctx, "dispatcher listening")

	for {
		select {
		case <-ctx.Done():
			s.timers.Stop()
			return ctx.Err()
		case msg, open := <-messages:
			if !open {
				s.timers.Stop()
				return nil
			}
			s.handle(ctx, msg)
		}
	}
}

func (s *Service) handle(ctx context.Context, msg bus.Message) {
	ctx = s.logg.WithTopic(ctx, msg.Topic)
	switch msg.Topic {
	case events.TopicOrdersSubmitted:
		var evt events.OrderSubmitted
		if err := msg.Decode(&evt); err != nil {
			s.logg.Warn(ctx, fmt.Sprintf("dropping malformed message: %v", err))
			return
		}
		if err := s.OnOrderSubmitted(ctx, evt); err != nil {
			s.logHandlerError(ctx, "handling submitted order", err)
		}
	case events.TopicOrdersReady:
		var evt events.OrderReady
		if err := msg.Decode(&evt); err != nil {
			s.logg.Warn(ctx, fmt.Sprintf("dropping malformed message: %v", err))
			return
		}
		if err := s.OnOrderReady(ctx, evt); err != nil {
			s.logHandlerError(ctx, "handling ready order", err)
		}
	case events.TopicCourierResponses:
		var evt events.BidResponse
		if err := msg.Decode(&evt); err != nil {
			s.logg.Warn(ctx, fmt.Sprintf("dropping malformed message: %v", err))
			return
		}
		if err := s.OnBidResponse(ctx, evt); err != nil && !errors.IsExpected(err) {
			s.logHandlerError(ctx, "handling courier response", err)
		}
	}
}

// OnOrderSubmitted persists the new order and runs it through moderation.
// A duplicate delivery of the same order id is a no-op.
func (s *Service) OnOrderSubmitted(ctx context.Context, evt events.OrderSubmitted) error {
	ctx = s.logg.WithOrderID(ctx, evt.OrderID)
	if evt.OrderID == "" || evt.ClientID == "" || evt.RestaurantID == "" {
		s.logg.Warn(ctx, "dropping submitted order with missing identifiers")
		return nil
	}

	order := &models.Order{
		OrderID:         evt.OrderID,
		ClientID:        evt.ClientID,
		RestaurantID:    evt.RestaurantID,
		RestaurantName:  evt.RestaurantName,
		LineItems:       toModelItems(evt.LineItems),
		DeliveryAddress: evt.DeliveryAddress,
		Total:           evt.Total,
		Status:          enums.OrderStatusSubmitted,
	}

	var created bool
	err := s.retryWrite(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.repo.CreateOrder(ctx, order)
		return err
	})
	if err != nil {
		return err
	}
	if !created {
		s.logg.Info(ctx, "order already known, ignoring duplicate submission")
		return nil
	}

	if _, err := s.transition(ctx, evt.OrderID, enums.OrderStatusSubmitted, enums.OrderStatusPendingModeration); err != nil {
		return err
	}
	s.mu.Lock()
	s.pending[evt.OrderID] = evt
	s.mu.Unlock()
	s.logg.Info(ctx, fmt.Sprintf("order pending moderation, total %s", evt.Total.StringFixed(2)))

	decision, err := s.moderator.Review(ctx, evt)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, err, "moderating order")
	}
	if !decision.Approved {
		return s.reject(ctx, evt, decision.Reason)
	}
	return s.approve(ctx, evt)
}

func (s *Service) approve(ctx context.Context, evt events.OrderSubmitted) error {
	applied, err := s.transition(ctx, evt.OrderID, enums.OrderStatusPendingModeration, enums.OrderStatusAccepted)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}
	if err := s.publisher.Publish(ctx, events.TopicOrdersAccepted, events.OrderAccepted{
		OrderID:      evt.OrderID,
		RestaurantID: evt.RestaurantID,
	}); err != nil {
		return errors.Wrap(errors.CodeDependency, err, "publishing accepted order")
	}
	// The kitchen starts on receipt; mark the order as in preparation.
	if _, err := s.transition(ctx, evt.OrderID, enums.OrderStatusAccepted, enums.OrderStatusPreparing); err != nil {
		return err
	}
	s.logg.Info(ctx, "order approved and forwarded to restaurant")
	return nil
}

func (s *Service) reject(ctx context.Context, evt events.OrderSubmitted, reason string) error {
	applied, err := s.transition(ctx, evt.OrderID, enums.OrderStatusPendingModeration, enums.OrderStatusRejected)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}
	s.metrics.IncRejections()
	s.finalize(ctx, evt.OrderID)
	s.forget(evt.OrderID)
	message := "order refused at moderation"
	if reason != "" {
		message = fmt.Sprintf("order refused at moderation: %s", reason)
	}
	s.logg.Info(ctx, message)
	return s.notify(ctx, events.Notification{
		Kind:    enums.NotificationOrderRejected,
		OrderID: evt.OrderID,
		Message: message,
	})
}

// OnOrderReady opens the delivery offer: the order moves to OFFER_OPEN, the
// offer is broadcast to the whole pool and the timeout timer is armed.
func (s *Service) OnOrderReady(ctx context.Context, evt events.OrderReady) error {
	ctx = s.logg.WithOrderID(ctx, evt.OrderID)

	applied, err := s.transition(ctx, evt.OrderID, enums.OrderStatusPreparing, enums.OrderStatusReady)
	if err != nil {
		return err
	}
	if !applied {
		// The preparing write may have lost to a crash; accepted is also a
		// legal predecessor of ready.
		applied, err = s.transition(ctx, evt.OrderID, enums.OrderStatusAccepted, enums.OrderStatusReady)
		if err != nil {
			return err
		}
	}
	if !applied {
		s.logg.Info(ctx, "ignoring ready event for order not in preparation")
		return nil
	}

	order, err := s.repo.GetOrder(ctx, evt.OrderID)
	if err != nil {
		return err
	}
	restaurant, err := s.repo.GetRestaurant(ctx, order.RestaurantID)
	if err != nil {
		return err
	}
	reward, err := s.cfg.Reward()
	if err != nil {
		return errors.Wrap(errors.CodeInternal, err, "resolving delivery reward")
	}

	if _, err := s.transition(ctx, evt.OrderID, enums.OrderStatusReady, enums.OrderStatusOfferOpen); err != nil {
		return err
	}

	offer := events.Offer{
		OrderID:        order.OrderID,
		PickupAddress:  restaurant.Address,
		DropoffAddress: order.DeliveryAddress,
		Reward:         reward,
	}
	if err := s.publisher.Publish(ctx, events.TopicOffersBroadcast, offer); err != nil {
		return errors.Wrap(errors.CodeDependency, err, "broadcasting offer")
	}
	s.metrics.IncOffers()

	if err := s.notify(ctx, events.Notification{
		Kind:    enums.NotificationOrderPreparedInternal,
		OrderID: order.OrderID,
		Message: "order prepared, looking for a courier",
	}); err != nil {
		return err
	}

	s.mu.Lock()
	s.openedAt[order.OrderID] = time.Now()
	s.mu.Unlock()

	orderID := order.OrderID
	s.timers.Arm(orderID, s.cfg.OfferDeadline, func() {
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.OnTimeout(timeoutCtx, orderID); err != nil {
			s.logg.Error(s.logg.WithOrderID(timeoutCtx, orderID), "expiring offer", err)
		}
	})
	s.logg.Info(ctx, fmt.Sprintf("offer broadcast, reward %s, deadline %s", reward.StringFixed(2), s.cfg.OfferDeadline))
	return nil
}

// OnBidResponse settles one courier's answer to an open offer. The
// conditional status write decides the race; losers are dropped without an
// error.
func (s *Service) OnBidResponse(ctx context.Context, evt events.BidResponse) error {
	ctx = s.logg.WithOrderID(s.logg.WithCourierID(ctx, evt.CourierID), evt.OrderID)
	if evt.Delivered {
		return s.OnDelivered(ctx, evt.OrderID, evt.CourierID)
	}
	if !evt.Accepted {
		return nil
	}

	var applied bool
	err := s.retryWrite(ctx, func(ctx context.Context) error {
		var err error
		applied, err = s.repo.AssignCourier(ctx, evt.OrderID, evt.CourierID)
		return err
	})
	if err != nil {
		return err
	}
	if !applied {
		// Another courier already won, the offer timed out, or this is a
		// duplicate delivery. Expected outcome of the race, not a fault.
		return errors.New(errors.CodeRaceLost, "bid arrived after the offer was settled")
	}

	s.timers.Disarm(evt.OrderID)
	s.metrics.IncAssignments()
	s.mu.Lock()
	if openedAt, ok := s.openedAt[evt.OrderID]; ok {
		s.metrics.ObserveTimeToAssign(time.Since(openedAt))
		delete(s.openedAt, evt.OrderID)
	}
	s.mu.Unlock()

	s.logg.Info(ctx, "courier assigned")
	return s.notify(ctx, events.Notification{
		Kind:      enums.NotificationCourierAssigned,
		OrderID:   evt.OrderID,
		Message:   fmt.Sprintf("courier %s is delivering the order", evt.CourierID),
		CourierID: evt.CourierID,
	})
}

// OnDelivered closes the order after the assigned courier reports delivery.
func (s *Service) OnDelivered(ctx context.Context, orderID, courierID string) error {
	var applied bool
	err := s.retryWrite(ctx, func(ctx context.Context) error {
		var err error
		applied, err = s.repo.CompleteDelivery(ctx, orderID, courierID)
		return err
	})
	if err != nil {
		return err
	}
	if !applied {
		s.logg.Info(ctx, "ignoring delivery report for order not assigned to this courier")
		return nil
	}

	s.metrics.IncDeliveries()
	s.finalize(ctx, orderID)
	s.forget(orderID)
	s.logg.Info(ctx, "order delivered")
	return s.notify(ctx, events.Notification{
		Kind:      enums.NotificationOrderDelivered,
		OrderID:   orderID,
		Message:   "order delivered, enjoy your meal",
		CourierID: courierID,
	})
}

// OnTimeout cancels an offer no courier claimed in time. If a bid won in
// the meantime the conditional write fails and nothing happens.
func (s *Service) OnTimeout(ctx context.Context, orderID string) error {
	applied, err := s.transition(ctx, orderID, enums.OrderStatusOfferOpen, enums.OrderStatusCancelledTimeout)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	s.metrics.IncTimeouts()
	s.finalize(ctx, orderID)
	s.forget(orderID)
	s.logg.Info(s.logg.WithOrderID(ctx, orderID), "offer expired with no courier")
	return s.notify(ctx, events.Notification{
		Kind:    enums.NotificationNoCourierAvailable,
		OrderID: orderID,
		Message: "no courier available, order cancelled",
	})
}

// History returns finalized orders, most recent first.
func (s *Service) History(ctx context.Context, limit int) ([]models.Order, error) {
	return s.repo.History(ctx, limit)
}

// Pending snapshots the in-flight submissions for the console.
func (s *Service) Pending() []events.OrderSubmitted {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.OrderSubmitted, 0, len(s.pending))
	for _, evt := range s.pending {
		out = append(out, evt)
	}
	return out
}

func (s *Service) transition(ctx context.Context, orderID string, from, to enums.OrderStatus) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, errors.New(errors.CodeStateConflict, fmt.Sprintf("illegal transition %s -> %s", from, to))
	}
	var applied bool
	err := s.retryWrite(ctx, func(ctx context.Context) error {
		var err error
		applied, err = s.repo.ConditionalTransition(ctx, orderID, from, to)
		return err
	})
	return applied, err
}

// retryWrite runs fn with bounded exponential backoff. Exhaustion leaves the
// order in its last durable state; the error is surfaced to the caller's
// log, never masked.
func (s *Service) retryWrite(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(s.cfg.MaxWriteAttempts, retry.NewExponential(s.cfg.WriteBackoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			if errors.IsRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
}

// logHandlerError logs a failed handler with the flattened error chain so
// store-level failures keep their driver detail.
func (s *Service) logHandlerError(ctx context.Context, msg string, err error) {
	s.logg.Error(s.logg.WithField(ctx, "detail", errors.Dump(err)), msg, err)
}

func (s *Service) notify(ctx context.Context, notification events.Notification) error {
	if err := s.publisher.Publish(ctx, events.TopicNotifications, notification); err != nil {
		return errors.Wrap(errors.CodeDependency, err, "publishing notification")
	}
	return nil
}

func (s *Service) finalize(ctx context.Context, orderID string) {
	if err := s.retryWrite(ctx, func(ctx context.Context) error {
		return s.repo.Finalize(ctx, orderID)
	}); err != nil {
		s.logg.Error(ctx, "finalizing order record", err)
	}
}

func (s *Service) forget(orderID string) {
	s.mu.Lock()
	delete(s.pending, orderID)
	delete(s.openedAt, orderID)
	s.mu.Unlock()
}

func toModelItems(items []events.LineItem) []models.LineItem {
	out := make([]models.LineItem, len(items))
	for i, item := range items {
		out[i] = models.LineItem{
			ItemID:    item.ItemID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}
	return out
}
