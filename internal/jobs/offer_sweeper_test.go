package jobs

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/razihadjamor/mangeo-backend/pkg/db/models"
	"github.com/razihadjamor/mangeo-backend/pkg/errors"
	"github.com/razihadjamor/mangeo-backend/pkg/logger"
)

type fakeReader struct {
	orders []models.Order
	cutoff time.Time
	err    error
}

func (f *fakeReader) ListOpenOffers(_ context.Context, olderThan time.Time) ([]models.Order, error) {
	f.cutoff = olderThan
	return f.orders, f.err
}

type fakeCanceller struct {
	cancelled []string
	failFor   map[string]error
}

func (f *fakeCanceller) OnTimeout(_ context.Context, orderID string) error {
	if err, ok := f.failFor[orderID]; ok {
		return err
	}
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

type fakeLock struct {
	acquired  bool
	available bool
	released  bool
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	f.acquired = true
	return f.available, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.released = true
	return nil
}

func testSweeper(t *testing.T, reader *fakeReader, canceller *fakeCanceller, lock *fakeLock) *OfferSweeper {
	t.Helper()
	sweeper, err := NewOfferSweeper(OfferSweeperParams{
		Logger:    logger.New(logger.Options{ServiceName: "sweeper-test", Output: io.Discard}),
		Reader:    reader,
		Canceller: canceller,
		Lock:      lock,
		Deadline:  time.Minute,
	})
	require.NoError(t, err)
	return sweeper
}

func TestRunCancelsOverdueOffers(t *testing.T) {
	reader := &fakeReader{orders: []models.Order{{OrderID: "cmd-1"}, {OrderID: "cmd-2"}}}
	canceller := &fakeCanceller{}
	lock := &fakeLock{available: true}
	sweeper := testSweeper(t, reader, canceller, lock)

	frozen := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	sweeper.now = func() time.Time { return frozen }

	require.NoError(t, sweeper.Run(context.Background()))
	require.Equal(t, []string{"cmd-1", "cmd-2"}, canceller.cancelled)
	require.Equal(t, frozen.Add(-time.Minute), reader.cutoff)
	require.True(t, lock.released)
}

func TestRunSkipsWhenLockHeldElsewhere(t *testing.T) {
	reader := &fakeReader{orders: []models.Order{{OrderID: "cmd-1"}}}
	canceller := &fakeCanceller{}
	lock := &fakeLock{available: false}
	sweeper := testSweeper(t, reader, canceller, lock)

	require.NoError(t, sweeper.Run(context.Background()))
	require.True(t, lock.acquired)
	require.Empty(t, canceller.cancelled)
}

func TestRunCollectsPerOrderFailures(t *testing.T) {
	reader := &fakeReader{orders: []models.Order{{OrderID: "cmd-1"}, {OrderID: "cmd-2"}, {OrderID: "cmd-3"}}}
	canceller := &fakeCanceller{
		failFor: map[string]error{"cmd-2": errors.New(errors.CodeDependency, "store unavailable")},
	}
	lock := &fakeLock{available: true}
	sweeper := testSweeper(t, reader, canceller, lock)

	err := sweeper.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "cmd-2")
	require.Equal(t, []string{"cmd-1", "cmd-3"}, canceller.cancelled)
}

func TestNewOfferSweeperValidatesParams(t *testing.T) {
	_, err := NewOfferSweeper(OfferSweeperParams{})
	require.Error(t, err)
}
