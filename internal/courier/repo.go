package courier

import (
	"context"

	"github.com/razihadjamor/mangeo-backend/pkg/db"
	"github.com/razihadjamor/mangeo-backend/pkg/db/models"
	"github.com/razihadjamor/mangeo-backend/pkg/errors"
)

// Directory resolves courier identities at startup.
type Directory interface {
	GetCourier(ctx context.Context, courierID string) (*models.Courier, error)
}

type gormDirectory struct {
	client *db.Client
}

// NewDirectory builds the store-backed courier directory.
func NewDirectory(client *db.Client) Directory {
	return &gormDirectory{client: client}
}

func (d *gormDirectory) GetCourier(ctx context.Context, courierID string) (*models.Courier, error) {
	var courier models.Courier
	if err := d.client.DB().WithContext(ctx).First(&courier, "courier_id = ?", courierID).Error; err != nil {
		if db.IsNotFound(err) {
			return nil, errors.New(errors.CodeNotFound, "unknown courier id")
		}
		return nil, errors.Wrap(errors.CodeDependency, err, "loading courier")
	}
	return &courier, nil
}
