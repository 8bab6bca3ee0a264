package customer

import (
	"context"

	"github.com/razihadjamor/mangeo-backend/pkg/db"
	"github.com/razihadjamor/mangeo-backend/pkg/db/models"
	"github.com/razihadjamor/mangeo-backend/pkg/errors"
)

// Repository is the customer's read-only view of the catalog.
type Repository interface {
	ListRestaurants(ctx context.Context) ([]models.Restaurant, error)
	GetClient(ctx context.Context, clientID string) (*models.Client, error)
}

type gormRepository struct {
	client *db.Client
}

// NewRepository builds the store-backed catalog repository.
func NewRepository(client *db.Client) Repository {
	return &gormRepository{client: client}
}

func (r *gormRepository) ListRestaurants(ctx context.Context) ([]models.Restaurant, error) {
	var restaurants []models.Restaurant
	err := r.client.DB().
		WithContext(ctx).
		Preload("MenuItems").
		Order("name ASC").
		Find(&restaurants).Error
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "listing restaurants")
	}
	return restaurants, nil
}

func (r *gormRepository) GetClient(ctx context.Context, clientID string) (*models.Client, error) {
	var client models.Client
	if err := r.client.DB().WithContext(ctx).First(&client, "client_id = ?", clientID).Error; err != nil {
		if db.IsNotFound(err) {
			return nil, errors.New(errors.CodeNotFound, "unknown client id")
		}
		return nil, errors.Wrap(errors.CodeDependency, err, "loading client")
	}
	return &client, nil
}
