package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"

	"github.com/razihadjamor/mangeo-backend/pkg/db/models"
	"github.com/razihadjamor/mangeo-backend/pkg/logger"
)

// openOfferReader lists offers still open past their deadline.
type openOfferReader interface {
	ListOpenOffers(ctx context.Context, olderThan time.Time) ([]models.Order, error)
}

// offerCanceller applies the timeout transition for one order.
type offerCanceller interface {
	OnTimeout(ctx context.Context, orderID string) error
}

// OfferSweeperParams configure the sweeper.
type OfferSweeperParams struct {
	Logger    *logger.Logger
	Reader    openOfferReader
	Canceller offerCanceller
	Lock      Lock
	// Deadline mirrors the dispatcher's offer deadline; an offer older than
	// this is overdue.
	Deadline time.Duration
	Schedule string
}

// OfferSweeper reconciles offers whose in-memory timeout was lost, most
// commonly to a dispatcher restart. The conditional timeout write makes a
// sweep of an already assigned order harmless.
type OfferSweeper struct {
	logg      *logger.Logger
	reader    openOfferReader
	canceller offerCanceller
	lock      Lock
	deadline  time.Duration
	schedule  string
	cron      *cron.Cron
	now       func() time.Time
}

// NewOfferSweeper builds the sweeper.
func NewOfferSweeper(params OfferSweeperParams) (*OfferSweeper, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reader == nil {
		return nil, fmt.Errorf("open offer reader required")
	}
	if params.Canceller == nil {
		return nil, fmt.Errorf("offer canceller required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	if params.Deadline <= 0 {
		return nil, fmt.Errorf("deadline must be positive")
	}
	if params.Schedule == "" {
		params.Schedule = "*/15 * * * * *"
	}
	return &OfferSweeper{
		logg:      params.Logger,
		reader:    params.Reader,
		canceller: params.Canceller,
		lock:      params.Lock,
		deadline:  params.Deadline,
		schedule:  params.Schedule,
		cron:      cron.New(cron.WithSeconds()),
		now:       time.Now,
	}, nil
}

// Start schedules the sweep until Stop is called.
func (s *OfferSweeper) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.Run(ctx); err != nil {
			s.logg.Error(ctx, "offer sweep failed", err)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling offer sweep: %w", err)
	}
	s.cron.Start()
	s.logg.Info(ctx, fmt.Sprintf("offer sweeper started, schedule %q", s.schedule))
	return nil
}

// Stop halts the schedule and waits for a running sweep.
func (s *OfferSweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Run performs one sweep. Only one instance across the deployment sweeps at
// a time; losing the lock race is a silent no-op.
func (s *OfferSweeper) Run(ctx context.Context) error {
	acquired, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !acquired {
		return nil
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.logg.Warn(ctx, fmt.Sprintf("releasing sweep lock: %v", err))
		}
	}()

	cutoff := s.now().UTC().Add(-s.deadline)
	overdue, err := s.reader.ListOpenOffers(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("query overdue offers: %w", err)
	}

	var errs []error
	swept := 0
	for _, order := range overdue {
		if err := s.canceller.OnTimeout(ctx, order.OrderID); err != nil {
			errs = append(errs, fmt.Errorf("sweep order %s: %w", order.OrderID, err))
			continue
		}
		swept++
	}
	if swept > 0 {
		logCtx := s.logg.WithFields(ctx, map[string]any{"count": swept})
		s.logg.Info(logCtx, "overdue offers swept")
	}
	return multierr.Combine(errs...)
}
