package dispatch

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/razihadjamor/mangeo-backend/pkg/config"
	"github.com/razihadjamor/mangeo-backend/pkg/db"
	"github.com/razihadjamor/mangeo-backend/pkg/db/models"
	"github.com/razihadjamor/mangeo-backend/pkg/enums"
	apperrors "github.com/razihadjamor/mangeo-backend/pkg/errors"
)

func testRepo(t *testing.T) Repository {
	t.Helper()
	ctx := context.Background()
	client, err := db.New(ctx, config.DBConfig{
		UseSQLite:  true,
		SQLitePath: filepath.Join(t.TempDir(), "orders.db"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.AutoMigrate(ctx))
	return NewRepository(client)
}

func seedOrder(t *testing.T, repo Repository, status enums.OrderStatus) *models.Order {
	t.Helper()
	order := &models.Order{
		OrderID:         "cmd-1",
		ClientID:        "client-1",
		RestaurantID:    "resto-1",
		DeliveryAddress: "3 avenue Foch",
		Total:           decimal.RequireFromString("23.00"),
		Status:          status,
	}
	created, err := repo.CreateOrder(context.Background(), order)
	require.NoError(t, err)
	require.True(t, created)
	return order
}

func TestCreateOrderIgnoresDuplicateID(t *testing.T) {
	repo := testRepo(t)
	seedOrder(t, repo, enums.OrderStatusSubmitted)

	created, err := repo.CreateOrder(context.Background(), &models.Order{
		OrderID:         "cmd-1",
		ClientID:        "client-2",
		RestaurantID:    "resto-2",
		DeliveryAddress: "elsewhere",
		Total:           decimal.RequireFromString("1.00"),
		Status:          enums.OrderStatusSubmitted,
	})
	require.NoError(t, err)
	require.False(t, created)

	order, err := repo.GetOrder(context.Background(), "cmd-1")
	require.NoError(t, err)
	require.Equal(t, "client-1", order.ClientID)
}

func TestConditionalTransitionAppliesOnlyFromExpectedStatus(t *testing.T) {
	repo := testRepo(t)
	seedOrder(t, repo, enums.OrderStatusOfferOpen)
	ctx := context.Background()

	applied, err := repo.ConditionalTransition(ctx, "cmd-1", enums.OrderStatusReady, enums.OrderStatusOfferOpen)
	require.NoError(t, err)
	require.False(t, applied)

	applied, err = repo.ConditionalTransition(ctx, "cmd-1", enums.OrderStatusOfferOpen, enums.OrderStatusCancelledTimeout)
	require.NoError(t, err)
	require.True(t, applied)

	order, err := repo.GetOrder(ctx, "cmd-1")
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCancelledTimeout, order.Status)
}

func TestAssignCourierSettlesRaceExactlyOnce(t *testing.T) {
	repo := testRepo(t)
	seedOrder(t, repo, enums.OrderStatusOfferOpen)
	ctx := context.Background()

	first, err := repo.AssignCourier(ctx, "cmd-1", "courier-1")
	require.NoError(t, err)
	require.True(t, first)

	second, err := repo.AssignCourier(ctx, "cmd-1", "courier-2")
	require.NoError(t, err)
	require.False(t, second)

	order, err := repo.GetOrder(ctx, "cmd-1")
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusAssigned, order.Status)
	require.NotNil(t, order.AssignedCourierID)
	require.Equal(t, "courier-1", *order.AssignedCourierID)
}

func TestCompleteDeliveryChecksAssignedCourier(t *testing.T) {
	repo := testRepo(t)
	seedOrder(t, repo, enums.OrderStatusOfferOpen)
	ctx := context.Background()

	applied, err := repo.AssignCourier(ctx, "cmd-1", "courier-1")
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = repo.CompleteDelivery(ctx, "cmd-1", "courier-2")
	require.NoError(t, err)
	require.False(t, applied)

	applied, err = repo.CompleteDelivery(ctx, "cmd-1", "courier-1")
	require.NoError(t, err)
	require.True(t, applied)
}

func TestHistoryReturnsFinalizedOrdersMostRecentFirst(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	for _, id := range []string{"cmd-a", "cmd-b"} {
		created, err := repo.CreateOrder(ctx, &models.Order{
			OrderID:         id,
			ClientID:        "client-1",
			RestaurantID:    "resto-1",
			DeliveryAddress: "somewhere",
			Total:           decimal.RequireFromString("10.00"),
			Status:          enums.OrderStatusDelivered,
		})
		require.NoError(t, err)
		require.True(t, created)
		require.NoError(t, repo.Finalize(ctx, id))
		time.Sleep(5 * time.Millisecond)
	}

	orders, err := repo.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	require.Equal(t, "cmd-b", orders[0].OrderID)
	require.Equal(t, "cmd-a", orders[1].OrderID)
}

func TestGetOrderUnknownIDIsNotFound(t *testing.T) {
	repo := testRepo(t)

	_, err := repo.GetOrder(context.Background(), "ghost")
	require.Error(t, err)
	require.Equal(t, apperrors.CodeNotFound, apperrors.As(err).Code())
}
