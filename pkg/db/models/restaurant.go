package models

import "time"

// Restaurant is a seeded marketplace participant with a nested menu.
type Restaurant struct {
	RestaurantID string     `gorm:"column:restaurant_id;primaryKey"`
	Name         string     `gorm:"column:name;not null"`
	Address      string     `gorm:"column:address;not null"`
	MenuItems    []MenuItem `gorm:"foreignKey:RestaurantID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Restaurant) TableName() string { return "restaurants" }
