package dispatch

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"github.com/razihadjamor/mangeo-backend/pkg/db"
	"github.com/razihadjamor/mangeo-backend/pkg/db/models"
	"github.com/razihadjamor/mangeo-backend/pkg/enums"
	"github.com/razihadjamor/mangeo-backend/pkg/errors"
)

// Repository is the dispatcher's view of the order store. Every status
// mutation goes through a conditional write so concurrent handlers and
// duplicate deliveries collapse into no-ops.
type Repository interface {
	CreateOrder(ctx context.Context, order *models.Order) (bool, error)
	ConditionalTransition(ctx context.Context, orderID string, from, to enums.OrderStatus) (bool, error)
	AssignCourier(ctx context.Context, orderID, courierID string) (bool, error)
	CompleteDelivery(ctx context.Context, orderID, courierID string) (bool, error)
	Finalize(ctx context.Context, orderID string) error
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	GetRestaurant(ctx context.Context, restaurantID string) (*models.Restaurant, error)
	ListOpenOffers(ctx context.Context, olderThan time.Time) ([]models.Order, error)
	History(ctx context.Context, limit int) ([]models.Order, error)
}

type gormRepository struct {
	client *db.Client
}

// NewRepository builds the GORM-backed order repository.
func NewRepository(client *db.Client) Repository {
	return &gormRepository{client: client}
}

// CreateOrder inserts the order, reporting false when the order id already
// exists. Re-delivered submission events land here and must not reset state.
func (r *gormRepository) CreateOrder(ctx context.Context, order *models.Order) (bool, error) {
	result := r.client.DB().
		WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(order)
	if result.Error != nil {
		return false, errors.Wrap(errors.CodeDependency, result.Error, "inserting order")
	}
	return result.RowsAffected > 0, nil
}

// ConditionalTransition applies from→to only if the row is still in from.
// The returned bool is the sole signal that this caller won the write.
func (r *gormRepository) ConditionalTransition(ctx context.Context, orderID string, from, to enums.OrderStatus) (bool, error) {
	result := r.client.DB().
		WithContext(ctx).
		Model(&models.Order{}).
		Where("order_id = ? AND status = ?", orderID, from).
		Update("status", to)
	if result.Error != nil {
		return false, errors.Wrap(errors.CodeDependency, result.Error, "transitioning order status")
	}
	return result.RowsAffected > 0, nil
}

// AssignCourier is the linearization point of the bidding race: exactly one
// of the concurrent callers flips OFFER_OPEN to ASSIGNED and writes the
// courier id. assigned_courier_id is guarded so it is written once.
func (r *gormRepository) AssignCourier(ctx context.Context, orderID, courierID string) (bool, error) {
	result := r.client.DB().
		WithContext(ctx).
		Model(&models.Order{}).
		Where("order_id = ? AND status = ? AND assigned_courier_id IS NULL",
			orderID, enums.OrderStatusOfferOpen).
		Updates(map[string]any{
			"status":              enums.OrderStatusAssigned,
			"assigned_courier_id": courierID,
		})
	if result.Error != nil {
		return false, errors.Wrap(errors.CodeDependency, result.Error, "assigning courier")
	}
	return result.RowsAffected > 0, nil
}

// CompleteDelivery flips ASSIGNED to DELIVERED, but only for the courier
// that actually holds the assignment.
func (r *gormRepository) CompleteDelivery(ctx context.Context, orderID, courierID string) (bool, error) {
	result := r.client.DB().
		WithContext(ctx).
		Model(&models.Order{}).
		Where("order_id = ? AND status = ? AND assigned_courier_id = ?",
			orderID, enums.OrderStatusAssigned, courierID).
		Update("status", enums.OrderStatusDelivered)
	if result.Error != nil {
		return false, errors.Wrap(errors.CodeDependency, result.Error, "completing delivery")
	}
	return result.RowsAffected > 0, nil
}

// Finalize stamps the terminal record.
func (r *gormRepository) Finalize(ctx context.Context, orderID string) error {
	now := time.Now().UTC()
	result := r.client.DB().
		WithContext(ctx).
		Model(&models.Order{}).
		Where("order_id = ? AND finalized_at IS NULL", orderID).
		Update("finalized_at", now)
	if result.Error != nil {
		return errors.Wrap(errors.CodeDependency, result.Error, "finalizing order")
	}
	return nil
}

func (r *gormRepository) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	if err := r.client.DB().WithContext(ctx).First(&order, "order_id = ?", orderID).Error; err != nil {
		if db.IsNotFound(err) {
			return nil, errors.New(errors.CodeNotFound, "order not found")
		}
		return nil, errors.Wrap(errors.CodeDependency, err, "loading order")
	}
	return &order, nil
}

func (r *gormRepository) GetRestaurant(ctx context.Context, restaurantID string) (*models.Restaurant, error) {
	var restaurant models.Restaurant
	err := r.client.DB().
		WithContext(ctx).
		Preload("MenuItems").
		First(&restaurant, "restaurant_id = ?", restaurantID).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, errors.New(errors.CodeNotFound, "restaurant not found")
		}
		return nil, errors.Wrap(errors.CodeDependency, err, "loading restaurant")
	}
	return &restaurant, nil
}

// ListOpenOffers returns OFFER_OPEN orders whose offer was opened before the
// cutoff. Used by the sweeper to catch timers lost to a restart.
func (r *gormRepository) ListOpenOffers(ctx context.Context, olderThan time.Time) ([]models.Order, error) {
	var orders []models.Order
	err := r.client.DB().
		WithContext(ctx).
		Where("status = ? AND updated_at < ?", enums.OrderStatusOfferOpen, olderThan).
		Find(&orders).Error
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "listing open offers")
	}
	return orders, nil
}

// History returns finalized orders, most recent first.
func (r *gormRepository) History(ctx context.Context, limit int) ([]models.Order, error) {
	var orders []models.Order
	query := r.client.DB().
		WithContext(ctx).
		Where("finalized_at IS NOT NULL").
		Order("finalized_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&orders).Error; err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "listing order history")
	}
	return orders, nil
}
