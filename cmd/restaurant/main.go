package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/razihadjamor/mangeo-backend/internal/restaurant"
	"github.com/razihadjamor/mangeo-backend/pkg/bus"
	"github.com/razihadjamor/mangeo-backend/pkg/config"
	"github.com/razihadjamor/mangeo-backend/pkg/db"
	"github.com/razihadjamor/mangeo-backend/pkg/logger"
	"github.com/razihadjamor/mangeo-backend/pkg/redis"
)

func main() {
	restaurantID := flag.String("id", "", "restaurant id (must be seeded)")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "restaurant"})

	if *restaurantID == "" {
		logg.Error(context.Background(), "missing -id flag", errors.New("restaurant id is required"))
		os.Exit(1)
	}

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "restaurant",
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

	if _, err := restaurant.NewDirectory(dbClient).GetRestaurant(context.Background(), *restaurantID); err != nil {
		logg.Error(context.Background(), "restaurant identity rejected", err)
		os.Exit(1)
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

	agent := restaurant.NewAgent(*restaurantID, cfg.Restaurant, eventBus, logg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	logg.Info(logg.WithRestaurantID(ctx, *restaurantID), "starting restaurant agent")

	if err := agent.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "restaurant stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "restaurant shutting down gracefully")
}
