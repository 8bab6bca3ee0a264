package models

import "time"

// Courier identifies a deliverer allowed to run a courier agent. Availability
// is never stored here; it lives in the agent's local state.
type Courier struct {
	CourierID string    `gorm:"column:courier_id;primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Courier) TableName() string { return "couriers" }
