package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MenuItem is one dish on a restaurant's menu.
type MenuItem struct {
	ItemID       string          `gorm:"column:item_id;primaryKey"`
	RestaurantID string          `gorm:"column:restaurant_id;not null;index"`
	Name         string          `gorm:"column:name;not null"`
	Price        decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	Description  string          `gorm:"column:description"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (MenuItem) TableName() string { return "menu_items" }
