package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/razihadjamor/mangeo-backend/internal/dispatch"
	"github.com/razihadjamor/mangeo-backend/internal/jobs"
	"github.com/razihadjamor/mangeo-backend/pkg/bus"
	"github.com/razihadjamor/mangeo-backend/pkg/config"
	"github.com/razihadjamor/mangeo-backend/pkg/db"
	"github.com/razihadjamor/mangeo-backend/pkg/logger"
	"github.com/razihadjamor/mangeo-backend/pkg/metrics"
	"github.com/razihadjamor/mangeo-backend/pkg/redis"
)

func main() {
	historyLimit := flag.Int("history", 0, "print the last N finalized orders and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "dispatcher"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "dispatcher",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := dbClient.Ping(context.Background()); err != nil {
		logg.Error(context.Background(), "database unreachable", err)
		os.Exit(1)
	}

	if err := dbClient.AutoMigrate(context.Background()); err != nil {
		logg.Error(context.Background(), "failed to migrate schema", err)
		os.Exit(1)
	}

	repo := dispatch.NewRepository(dbClient)

	if *historyLimit > 0 {
		printHistory(context.Background(), repo, *historyLimit, logg)
		return
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	eventBus, err := bus.New(redisClient.Raw(), cfg.Bus, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create event bus", err)
		os.Exit(1)
	}

	var moderator dispatch.Moderator
	if cfg.Dispatch.AutoApprove {
		moderator = dispatch.AutoApprove()
	} else {
		moderator = newPromptModerator(os.Stdin, os.Stdout)
	}

	dispatchMetrics := metrics.NewDispatchMetrics(prometheus.DefaultRegisterer)
	service := dispatch.NewService(cfg.Dispatch, repo, eventBus, moderator, dispatchMetrics, logg)

	lock, err := jobs.NewRedisLock(redisClient, redisClient.LockKey("offer-sweep"), cfg.Dispatch.SweepLockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep lock", err)
		os.Exit(1)
	}
	sweeper, err := jobs.NewOfferSweeper(jobs.OfferSweeperParams{
		Logger:    logg,
		Reader:    repo,
		Canceller: service,
		Lock:      lock,
		Deadline:  cfg.Dispatch.OfferDeadline,
		Schedule:  cfg.Dispatch.SweepInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create offer sweeper", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	logg.Info(ctx, "starting dispatcher")

	if err := sweeper.Start(ctx); err != nil {
		logg.Error(ctx, "failed to start offer sweeper", err)
		os.Exit(1)
	}
	defer sweeper.Stop()

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "dispatcher stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "dispatcher shutting down gracefully")
}

func printHistory(ctx context.Context, repo dispatch.Repository, limit int, logg *logger.Logger) {
	orders, err := repo.History(ctx, limit)
	if err != nil {
		logg.Error(ctx, "failed to load history", err)
		os.Exit(1)
	}
	if len(orders) == 0 {
		fmt.Println("no finalized orders")
		return
	}
	for _, order := range orders {
		courier := "-"
		if order.AssignedCourierID != nil {
			courier = *order.AssignedCourierID
		}
		fmt.Printf("%s  %-18s  %s  total %s  courier %s  %s\n",
			order.FinalizedAt.Format("2006-01-02 15:04:05"),
			order.Status,
			order.OrderID,
			order.Total.StringFixed(2),
			courier,
			order.RestaurantName,
		)
	}
}
