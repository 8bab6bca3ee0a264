package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/razihadjamor/mangeo-backend/pkg/enums"
)

// LineItem is one position of an order. Quantity is validated > 0 at the
// edge; UnitPrice is frozen at submission time.
type LineItem struct {
	ItemID    string          `json:"item_id"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Order is the durable record of one order. Status moves only along the
// lifecycle graph and AssignedCourierID is written exactly once.
type Order struct {
	OrderID           string            `gorm:"column:order_id;primaryKey"`
	ClientID          string            `gorm:"column:client_id;not null"`
	RestaurantID      string            `gorm:"column:restaurant_id;not null"`
	RestaurantName    string            `gorm:"column:restaurant_name"`
	LineItems         []LineItem        `gorm:"column:line_items;type:jsonb;serializer:json"`
	DeliveryAddress   string            `gorm:"column:delivery_address;not null"`
	Total             decimal.Decimal   `gorm:"column:total;type:numeric(12,2);not null"`
	Status            enums.OrderStatus `gorm:"column:status;type:text;not null"`
	AssignedCourierID *string           `gorm:"column:assigned_courier_id"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime"`
	FinalizedAt       *time.Time        `gorm:"column:finalized_at"`
}

// TableName pins the table name regardless of pluralization settings.
func (Order) TableName() string { return "orders" }
