package dispatch

import (
	"context"

	"github.com/razihadjamor/mangeo-backend/internal/events"
)

// Decision is a moderation verdict.
type Decision struct {
	Approved bool
	Reason   string
}

// Moderator reviews a submitted order before the kitchen sees it. The
// dispatcher blocks the order in PENDING_MODERATION until Review returns.
type Moderator interface {
	Review(ctx context.Context, order events.OrderSubmitted) (Decision, error)
}

// ModeratorFunc adapts a function to the Moderator interface.
type ModeratorFunc func(ctx context.Context, order events.OrderSubmitted) (Decision, error)

// Review implements Moderator.
func (f ModeratorFunc) Review(ctx context.Context, order events.OrderSubmitted) (Decision, error) {
	return f(ctx, order)
}

// AutoApprove accepts every order. Used in scripted simulations.
func AutoApprove() Moderator {
	return ModeratorFunc(func(context.Context, events.OrderSubmitted) (Decision, error) {
		return Decision{Approved: true}, nil
	})
}
