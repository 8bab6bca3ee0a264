package enums

import "fmt"

// OrderStatus tracks the lifecycle of an order.
type OrderStatus string

const (
	OrderStatusSubmitted         OrderStatus = "submitted"
	OrderStatusPendingModeration OrderStatus = "pending_moderation"
	OrderStatusAccepted          OrderStatus = "accepted"
	OrderStatusRejected          OrderStatus = "rejected"
	OrderStatusPreparing         OrderStatus = "preparing"
	OrderStatusReady             OrderStatus = "ready"
	OrderStatusOfferOpen         OrderStatus = "offer_open"
	OrderStatusAssigned          OrderStatus = "assigned"
	OrderStatusCancelledTimeout  OrderStatus = "cancelled_timeout"
	OrderStatusDelivered         OrderStatus = "delivered"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusSubmitted,
	OrderStatusPendingModeration,
	OrderStatusAccepted,
	OrderStatusRejected,
	OrderStatusPreparing,
	OrderStatusReady,
	OrderStatusOfferOpen,
	OrderStatusAssigned,
	OrderStatusCancelledTimeout,
	OrderStatusDelivered,
}

// orderStatusGraph is the authoritative transition graph. A status not in the
// map is terminal.
var orderStatusGraph = map[OrderStatus][]OrderStatus{
	OrderStatusSubmitted:         {OrderStatusPendingModeration},
	OrderStatusPendingModeration: {OrderStatusAccepted, OrderStatusRejected},
	OrderStatusAccepted:          {OrderStatusPreparing, OrderStatusReady},
	OrderStatusPreparing:         {OrderStatusReady},
	OrderStatusReady:             {OrderStatusOfferOpen},
	OrderStatusOfferOpen:         {OrderStatusAssigned, OrderStatusCancelledTimeout},
	OrderStatusAssigned:          {OrderStatusDelivered},
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition can leave this status.
func (s OrderStatus) IsTerminal() bool {
	_, ok := orderStatusGraph[s]
	return s.IsValid() && !ok
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, candidate := range orderStatusGraph[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
