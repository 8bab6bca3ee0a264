package main

import (
	"context"
	"errors"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/razihadjamor/mangeo-backend/internal/courier"
	"github.com/razihadjamor/mangeo-backend/pkg/bus"
	"github.com/razihadjamor/mangeo-backend/pkg/config"
	"github.com/razihadjamor/mangeo-backend/pkg/db"
	"github.com/razihadjamor/mangeo-backend/pkg/logger"
	"github.com/razihadjamor/mangeo-backend/pkg/redis"
)

func main() {
	courierID := flag.String("id", "", "courier id (must be seeded)")
	acceptRate := flag.Float64("accept-rate", 1.0, "probability of accepting an offer")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "courier"})

	if *courierID == "" {
		logg.Error(context.Background(), "missing -id flag", errors.New("courier id is required"))
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
		ServiceName: "courier",
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

	if _, err := courier.NewDirectory(dbClient).GetCourier(context.Background(), *courierID); err != nil {
		logg.Error(context.Background(), "courier identity rejected", err)
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

	var decider courier.Decider
	if cfg.Courier.AutoAccept && *acceptRate >= 1.0 {
		decider = courier.AcceptAll()
	} else {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		decider = courier.AcceptWithProbability(*acceptRate, rng)
	}

	agent := courier.NewAgent(*courierID, cfg.Courier, eventBus, redisClient, decider, logg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	logg.Info(logg.WithCourierID(ctx, *courierID), "starting courier agent")

	if err := agent.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "courier stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "courier shutting down gracefully")
}
