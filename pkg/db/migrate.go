package db

import (
	"context"
	"fmt"

	"github.com/razihadjamor/mangeo-backend/pkg/db/models"
)

// AutoMigrate creates or updates the schema for every simulation record.
// The actors call it at startup; running it twice is harmless.
func (c *Client) AutoMigrate(ctx context.Context) error {
	err := c.conn.WithContext(ctx).AutoMigrate(
		&models.Restaurant{},
		&models.MenuItem{},
		&models.Client{},
		&models.Courier{},
		&models.Order{},
	)
	if err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}
