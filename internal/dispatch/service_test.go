package dispatch

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/razihadjamor/mangeo-backend/internal/events"
	"github.com/razihadjamor/mangeo-backend/pkg/config"
	"github.com/razihadjamor/mangeo-backend/pkg/db/models"
	"github.com/razihadjamor/mangeo-backend/pkg/enums"
	apperrors "github.com/razihadjamor/mangeo-backend/pkg/errors"
	"github.com/razihadjamor/mangeo-backend/pkg/logger"
	"github.com/razihadjamor/mangeo-backend/pkg/metrics"
)

type fakeRepository struct {
	createOrderFn           func(ctx context.Context, order *models.Order) (bool, error)
	conditionalTransitionFn func(ctx context.Context, orderID string, from, to enums.OrderStatus) (bool, error)
	assignCourierFn         func(ctx context.Context, orderID, courierID string) (bool, error)
	completeDeliveryFn      func(ctx context.Context, orderID, courierID string) (bool, error)
	finalizeFn              func(ctx context.Context, orderID string) error
	getOrderFn              func(ctx context.Context, orderID string) (*models.Order, error)
	getRestaurantFn         func(ctx context.Context, restaurantID string) (*models.Restaurant, error)
	listOpenOffersFn        func(ctx context.Context, olderThan time.Time) ([]models.Order, error)
	historyFn               func(ctx context.Context, limit int) ([]models.Order, error)
}

func (f *fakeRepository) CreateOrder(ctx context.Context, order *models.Order) (bool, error) {
	if f.createOrderFn == nil {
		return true, nil
	}
	return f.createOrderFn(ctx, order)
}

func (f *fakeRepository) ConditionalTransition(ctx context.Context, orderID string, from, to enums.OrderStatus) (bool, error) {
	if f.conditionalTransitionFn == nil {
		return true, nil
	}
	return f.conditionalTransitionFn(ctx, orderID, from, to)
}

func (f *fakeRepository) AssignCourier(ctx context.Context, orderID, courierID string) (bool, error) {
	if f.assignCourierFn == nil {
		return true, nil
	}
	return f.assignCourierFn(ctx, orderID, courierID)
}

func (f *fakeRepository) CompleteDelivery(ctx context.Context, orderID, courierID string) (bool, error) {
	if f.completeDeliveryFn == nil {
		return true, nil
	}
	return f.completeDeliveryFn(ctx, orderID, courierID)
}

func (f *fakeRepository) Finalize(ctx context.Context, orderID string) error {
	if f.finalizeFn == nil {
		return nil
	}
	return f.finalizeFn(ctx, orderID)
}

func (f *fakeRepository) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	if f.getOrderFn == nil {
		return &models.Order{OrderID: orderID}, nil
	}
	return f.getOrderFn(ctx, orderID)
}

func (f *fakeRepository) GetRestaurant(ctx context.Context, restaurantID string) (*models.Restaurant, error) {
	if f.getRestaurantFn == nil {
		return &models.Restaurant{RestaurantID: restaurantID}, nil
	}
	return f.getRestaurantFn(ctx, restaurantID)
}

func (f *fakeRepository) ListOpenOffers(ctx context.Context, olderThan time.Time) ([]models.Order, error) {
	if f.listOpenOffersFn == nil {
		return nil, nil
	}
	return f.listOpenOffersFn(ctx, olderThan)
}

func (f *fakeRepository) History(ctx context.Context, limit int) ([]models.Order, error) {
	if f.historyFn == nil {
		return nil, nil
	}
	return f.historyFn(ctx, limit)
}

type published struct {
	topic   string
	payload any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
}

func (f *fakePublisher) Publish(_ context.Context, topic string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, published{topic: topic, payload: payload})
	return nil
}

func (f *fakePublisher) byTopic(topic string) []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []published
	for _, evt := range f.events {
		if evt.topic == topic {
			out = append(out, evt)
		}
	}
	return out
}

func testService(t *testing.T, repo Repository, publisher Publisher, moderator Moderator) *Service {
	t.Helper()
	cfg := config.DispatchConfig{
		OfferDeadline:    time.Minute,
		DeliveryReward:   "8.00",
		MaxWriteAttempts: 2,
		WriteBackoff:     time.Millisecond,
	}
	logg := logger.New(logger.Options{ServiceName: "dispatcher-test", Output: io.Discard})
	svc := NewService(cfg, repo, publisher, moderator, metrics.NewDispatchMetrics(nil), logg)
	t.Cleanup(svc.timers.Stop)
	return svc
}

func submittedOrder() events.OrderSubmitted {
	return events.OrderSubmitted{
		OrderID:        "cmd-1",
		ClientID:       "client-1",
		RestaurantID:   "resto-1",
		RestaurantName: "Chez Fatima",
		LineItems: []events.LineItem{
			{ItemID: "item-1", Name: "Couscous royal", Quantity: 1, UnitPrice: decimal.RequireFromString("15.50")},
			{ItemID: "item-2", Name: "Thé à la menthe", Quantity: 3, UnitPrice: decimal.RequireFromString("2.50")},
		},
		DeliveryAddress: "3 avenue Foch",
		Total:           decimal.RequireFromString("23.00"),
	}
}

func TestOnOrderSubmittedApprovedForwardsToRestaurant(t *testing.T) {
	var transitions [][2]enums.OrderStatus
	repo := &fakeRepository{
		conditionalTransitionFn: func(_ context.Context, _ string, from, to enums.OrderStatus) (bool, error) {
			transitions = append(transitions, [2]enums.OrderStatus{from, to})
			return true, nil
		},
	}
	publisher := &fakePublisher{}
	svc := testService(t, repo, publisher, AutoApprove())

	require.NoError(t, svc.OnOrderSubmitted(context.Background(), submittedOrder()))

	require.Equal(t, [][2]enums.OrderStatus{
		{enums.OrderStatusSubmitted, enums.OrderStatusPendingModeration},
		{enums.OrderStatusPendingModeration, enums.OrderStatusAccepted},
		{enums.OrderStatusAccepted, enums.OrderStatusPreparing},
	}, transitions)

	accepted := publisher.byTopic(events.TopicOrdersAccepted)
	require.Len(t, accepted, 1)
	require.Equal(t, events.OrderAccepted{OrderID: "cmd-1", RestaurantID: "resto-1"}, accepted[0].payload)
	require.Len(t, svc.Pending(), 1)
}

func TestOnOrderSubmittedDuplicateIsNoOp(t *testing.T) {
	transitionCalls := 0
	repo := &fakeRepository{
		createOrderFn: func(context.Context, *models.Order) (bool, error) {
			return false, nil
		},
		conditionalTransitionFn: func(context.Context, string, enums.OrderStatus, enums.OrderStatus) (bool, error) {
			transitionCalls++
			return true, nil
		},
	}
	publisher := &fakePublisher{}
	svc := testService(t, repo, publisher, AutoApprove())

	require.NoError(t, svc.OnOrderSubmitted(context.Background(), submittedOrder()))
	require.Zero(t, transitionCalls)
	require.Empty(t, publisher.events)
}

func TestOnOrderSubmittedRejectedNotifiesAndFinalizes(t *testing.T) {
	finalized := false
	repo := &fakeRepository{
		finalizeFn: func(context.Context, string) error {
			finalized = true
			return nil
		},
	}
	publisher := &fakePublisher{}
	refuse := ModeratorFunc(func(context.Context, events.OrderSubmitted) (Decision, error) {
		return Decision{Approved: false, Reason: "menu mismatch"}, nil
	})
	svc := testService(t, repo, publisher, refuse)

	require.NoError(t, svc.OnOrderSubmitted(context.Background(), submittedOrder()))

	require.True(t, finalized)
	require.Empty(t, publisher.byTopic(events.TopicOrdersAccepted))
	notifications := publisher.byTopic(events.TopicNotifications)
	require.Len(t, notifications, 1)
	notification := notifications[0].payload.(events.Notification)
	require.Equal(t, enums.NotificationOrderRejected, notification.Kind)
	require.Equal(t, "cmd-1", notification.OrderID)
	require.Contains(t, notification.Message, "menu mismatch")
	require.Empty(t, svc.Pending())
}

func TestOnOrderReadyBroadcastsOfferAndArmsTimer(t *testing.T) {
	repo := &fakeRepository{
		getOrderFn: func(_ context.Context, orderID string) (*models.Order, error) {
			return &models.Order{
				OrderID:         orderID,
				RestaurantID:    "resto-1",
				DeliveryAddress: "3 avenue Foch",
			}, nil
		},
		getRestaurantFn: func(_ context.Context, restaurantID string) (*models.Restaurant, error) {
			return &models.Restaurant{RestaurantID: restaurantID, Address: "12 rue des Halles"}, nil
		},
	}
	publisher := &fakePublisher{}
	svc := testService(t, repo, publisher, AutoApprove())

	require.NoError(t, svc.OnOrderReady(context.Background(), events.OrderReady{OrderID: "cmd-1", RestaurantID: "resto-1"}))

	offers := publisher.byTopic(events.TopicOffersBroadcast)
	require.Len(t, offers, 1)
	offer := offers[0].payload.(events.Offer)
	require.Equal(t, "cmd-1", offer.OrderID)
	require.Equal(t, "12 rue des Halles", offer.PickupAddress)
	require.Equal(t, "3 avenue Foch", offer.DropoffAddress)
	require.True(t, offer.Reward.Equal(decimal.RequireFromString("8.00")))
	require.Equal(t, 1, svc.timers.Armed())

	notifications := publisher.byTopic(events.TopicNotifications)
	require.Len(t, notifications, 1)
	progress := notifications[0].payload.(events.Notification)
	require.Equal(t, enums.NotificationOrderPreparedInternal, progress.Kind)
	require.False(t, progress.Kind.IsTerminal())
}

func TestOnOrderReadyForUnknownOrderIsDropped(t *testing.T) {
	repo := &fakeRepository{
		conditionalTransitionFn: func(context.Context, string, enums.OrderStatus, enums.OrderStatus) (bool, error) {
			return false, nil
		},
	}
	publisher := &fakePublisher{}
	svc := testService(t, repo, publisher, AutoApprove())

	require.NoError(t, svc.OnOrderReady(context.Background(), events.OrderReady{OrderID: "ghost", RestaurantID: "resto-1"}))
	require.Empty(t, publisher.events)
	require.Zero(t, svc.timers.Armed())
}

func TestOnBidResponseOnlyFirstCourierWins(t *testing.T) {
	assigned := ""
	repo := &fakeRepository{
		assignCourierFn: func(_ context.Context, _ string, courierID string) (bool, error) {
			if assigned != "" {
				return false, nil
			}
			assigned = courierID
			return true, nil
		},
	}
	publisher := &fakePublisher{}
	svc := testService(t, repo, publisher, AutoApprove())

	ctx := context.Background()
	require.NoError(t, svc.OnBidResponse(ctx, events.BidResponse{OrderID: "cmd-1", CourierID: "courier-1", Accepted: true}))

	err := svc.OnBidResponse(ctx, events.BidResponse{OrderID: "cmd-1", CourierID: "courier-2", Accepted: true})
	require.Error(t, err)
	require.True(t, apperrors.IsExpected(err))
	require.Equal(t, apperrors.CodeRaceLost, apperrors.As(err).Code())

	require.Equal(t, "courier-1", assigned)
	notifications := publisher.byTopic(events.TopicNotifications)
	require.Len(t, notifications, 1)
	notification := notifications[0].payload.(events.Notification)
	require.Equal(t, enums.NotificationCourierAssigned, notification.Kind)
	require.Equal(t, "courier-1", notification.CourierID)
}

func TestOnBidResponseDeclinedIsIgnored(t *testing.T) {
	repo := &fakeRepository{
		assignCourierFn: func(context.Context, string, string) (bool, error) {
			t.Fatal("declined bid must not touch the store")
			return false, nil
		},
	}
	publisher := &fakePublisher{}
	svc := testService(t, repo, publisher, AutoApprove())

	require.NoError(t, svc.OnBidResponse(context.Background(), events.BidResponse{OrderID: "cmd-1", CourierID: "courier-1", Accepted: false}))
	require.Empty(t, publisher.events)
}

func TestOnTimeoutCancelsUnclaimedOffer(t *testing.T) {
	finalized := false
	repo := &fakeRepository{
		finalizeFn: func(context.Context, string) error {
			finalized = true
			return nil
		},
	}
	publisher := &fakePublisher{}
	svc := testService(t, repo, publisher, AutoApprove())

	require.NoError(t, svc.OnTimeout(context.Background(), "cmd-3"))

	require.True(t, finalized)
	notifications := publisher.byTopic(events.TopicNotifications)
	require.Len(t, notifications, 1)
	notification := notifications[0].payload.(events.Notification)
	require.Equal(t, enums.NotificationNoCourierAvailable, notification.Kind)
	require.Equal(t, "cmd-3", notification.OrderID)
}

func TestOnTimeoutAfterAssignmentIsNoOp(t *testing.T) {
	repo := &fakeRepository{
		conditionalTransitionFn: func(context.Context, string, enums.OrderStatus, enums.OrderStatus) (bool, error) {
			return false, nil
		},
	}
	publisher := &fakePublisher{}
	svc := testService(t, repo, publisher, AutoApprove())

	require.NoError(t, svc.OnTimeout(context.Background(), "cmd-1"))
	require.Empty(t, publisher.events)
}

func TestOnDeliveredClosesOrder(t *testing.T) {
	repo := &fakeRepository{}
	publisher := &fakePublisher{}
	svc := testService(t, repo, publisher, AutoApprove())

	require.NoError(t, svc.OnDelivered(context.Background(), "cmd-1", "courier-1"))

	notifications := publisher.byTopic(events.TopicNotifications)
	require.Len(t, notifications, 1)
	notification := notifications[0].payload.(events.Notification)
	require.Equal(t, enums.NotificationOrderDelivered, notification.Kind)
	require.Equal(t, "courier-1", notification.CourierID)
}

func TestOnDeliveredFromWrongCourierIsDropped(t *testing.T) {
	repo := &fakeRepository{
		completeDeliveryFn: func(context.Context, string, string) (bool, error) {
			return false, nil
		},
	}
	publisher := &fakePublisher{}
	svc := testService(t, repo, publisher, AutoApprove())

	require.NoError(t, svc.OnDelivered(context.Background(), "cmd-1", "courier-99"))
	require.Empty(t, publisher.events)
}

func TestRetryWriteRecoversFromTransientFailure(t *testing.T) {
	attempts := 0
	repo := &fakeRepository{
		assignCourierFn: func(context.Context, string, string) (bool, error) {
			attempts++
			if attempts == 1 {
				return false, apperrors.New(apperrors.CodeDependency, "connection reset")
			}
			return true, nil
		},
	}
	publisher := &fakePublisher{}
	svc := testService(t, repo, publisher, AutoApprove())

	require.NoError(t, svc.OnBidResponse(context.Background(), events.BidResponse{OrderID: "cmd-1", CourierID: "courier-1", Accepted: true}))
	require.Equal(t, 2, attempts)
}
