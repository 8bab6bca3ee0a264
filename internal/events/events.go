package events

import (
	"github.com/shopspring/decimal"

	"github.com/razihadjamor/mangeo-backend/pkg/enums"
)

// Topics carried by the event bus. Every actor communicates exclusively
// through these channels; there are no direct calls between agents.
const (
	TopicOrdersSubmitted  = "orders.submitted"
	TopicOrdersAccepted   = "orders.accepted"
	TopicOrdersReady      = "orders.ready"
	TopicOffersBroadcast  = "offers.broadcast"
	TopicCourierResponses = "couriers.responses"
	TopicNotifications    = "notifications"
)

// LineItem is one entry of a submitted cart.
type LineItem struct {
	ItemID    string          `json:"item_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderSubmitted announces a freshly validated customer order.
type OrderSubmitted struct {
	OrderID         string          `json:"order_id"`
	ClientID        string          `json:"client_id"`
	RestaurantID    string          `json:"restaurant_id"`
	RestaurantName  string          `json:"restaurant_name"`
	LineItems       []LineItem      `json:"line_items"`
	DeliveryAddress string          `json:"delivery_address"`
	Total           decimal.Decimal `json:"total"`
}

// OrderAccepted tells the restaurant that moderation approved the order.
type OrderAccepted struct {
	OrderID      string `json:"order_id"`
	RestaurantID string `json:"restaurant_id"`
}

// OrderReady tells the dispatcher the kitchen finished preparing.
type OrderReady struct {
	OrderID      string `json:"order_id"`
	RestaurantID string `json:"restaurant_id"`
}

// Offer is a delivery offer broadcast to the whole courier pool.
type Offer struct {
	OrderID        string          `json:"order_id"`
	PickupAddress  string          `json:"pickup_address"`
	DropoffAddress string          `json:"dropoff_address"`
	Reward         decimal.Decimal `json:"reward"`
}

// BidResponse is a courier's answer to an offer. Accepted responses only
// become assignments once the dispatcher's status write succeeds.
type BidResponse struct {
	OrderID   string `json:"order_id"`
	CourierID string `json:"courier_id"`
	Accepted  bool   `json:"accepted"`
	Delivered bool   `json:"delivered,omitempty"`
}

// Notification is a customer- or restaurant-facing lifecycle message.
type Notification struct {
	Kind      enums.NotificationKind `json:"kind"`
	OrderID   string                 `json:"order_id"`
	Message   string                 `json:"message"`
	CourierID string                 `json:"courier_id,omitempty"`
}
