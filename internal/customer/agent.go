package customer

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/razihadjamor/mangeo-backend/internal/events"
	"github.com/razihadjamor/mangeo-backend/internal/search"
	"github.com/razihadjamor/mangeo-backend/pkg/bus"
	"github.com/razihadjamor/mangeo-backend/pkg/enums"
	"github.com/razihadjamor/mangeo-backend/pkg/errors"
	"github.com/razihadjamor/mangeo-backend/pkg/logger"
)

// Bus is the customer's view of the event channel. The customer reads its
// notifications from a stream cursor taken before submission, so the
// outcome of its own order can never fall in the subscribe gap.
type Bus interface {
	Publish(ctx context.Context, topic string, payload any) error
	Now(ctx context.Context, topics ...string) (bus.Cursor, error)
	SubscribeFrom(ctx context.Context, cursor bus.Cursor) (<-chan bus.Message, error)
}

// Agent drives one customer session: browse, order, wait for the outcome.
type Agent struct {
	clientID string
	bus      Bus
	repo     Repository
	logg     *logger.Logger
	out      io.Writer
}

// NewAgent builds a customer agent writing its session output to out.
func NewAgent(clientID string, b Bus, repo Repository, logg *logger.Logger, out io.Writer) *Agent {
	if out == nil {
		out = io.Discard
	}
	return &Agent{clientID: clientID, bus: b, repo: repo, logg: logg, out: out}
}

// Browse snapshots the catalog and builds the name indexes over it.
func (a *Agent) Browse(ctx context.Context) (*search.Index, error) {
	restaurants, err := a.repo.ListRestaurants(ctx)
	if err != nil {
		return nil, err
	}
	return search.Build(restaurants), nil
}

// Submit validates and publishes the draft. It returns the generated order
// id and a cursor positioned before the publish, for AwaitOutcome.
func (a *Agent) Submit(ctx context.Context, draft *Draft, deliveryAddress string) (string, bus.Cursor, error) {
	if draft == nil || draft.Empty() {
		return "", nil, errors.New(errors.CodeValidation, "cart is empty")
	}
	if deliveryAddress == "" {
		return "", nil, errors.New(errors.CodeValidation, "delivery address is required")
	}

	orderID := uuid.NewString()
	ctx = a.logg.WithOrderID(ctx, orderID)

	cursor, err := a.bus.Now(ctx, events.TopicNotifications)
	if err != nil {
		return "", nil, errors.Wrap(errors.CodeDependency, err, "taking bus cursor")
	}

	restaurant := draft.Restaurant()
	submission := events.OrderSubmitted{
		OrderID:         orderID,
		ClientID:        a.clientID,
		RestaurantID:    restaurant.RestaurantID,
		RestaurantName:  restaurant.Name,
		LineItems:       draft.Items(),
		DeliveryAddress: deliveryAddress,
		Total:           draft.Total(),
	}
	if err := a.bus.Publish(ctx, events.TopicOrdersSubmitted, submission); err != nil {
		return "", nil, errors.Wrap(errors.CodeDependency, err, "publishing order")
	}

	a.printf("order %s sent to %s, total %s\n", orderID, restaurant.Name, submission.Total.StringFixed(2))
	a.logg.Info(ctx, "order submitted")
	return orderID, cursor, nil
}

// AwaitOutcome follows the notification stream from the cursor and returns
// the first terminal notification for the order. Duplicate deliveries of
// the same terminal are ignored; notifications for other orders are skipped.
func (a *Agent) AwaitOutcome(ctx context.Context, orderID string, cursor bus.Cursor) (enums.NotificationKind, error) {
	ctx = a.logg.WithOrderID(ctx, orderID)
	messages, err := a.bus.SubscribeFrom(ctx, cursor)
	if err != nil {
		return "", errors.Wrap(errors.CodeDependency, err, "subscribing to notifications")
	}

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case msg, open := <-messages:
			if !open {
				return "", errors.New(errors.CodeDependency, "notification stream closed")
			}
			var notification events.Notification
			if err := msg.Decode(&notification); err != nil {
				a.logg.Warn(ctx, fmt.Sprintf("dropping malformed notification: %v", err))
				continue
			}
			if notification.OrderID != orderID {
				continue
			}
			a.printf("%s\n", notification.Message)
			if notification.Kind.IsTerminal() {
				return notification.Kind, nil
			}
		}
	}
}

func (a *Agent) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
