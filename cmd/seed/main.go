package main

import (
	"context"
	"flag"
	"os"

	"github.com/joho/godotenv"

	"github.com/razihadjamor/mangeo-backend/internal/seed"
	"github.com/razihadjamor/mangeo-backend/pkg/config"
	"github.com/razihadjamor/mangeo-backend/pkg/db"
	"github.com/razihadjamor/mangeo-backend/pkg/logger"
)

func main() {
	fixturesPath := flag.String("fixtures", "", "path to the fixtures file (overrides config)")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "seed"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "seed",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	path := cfg.Seed.FixturesPath
	if *fixturesPath != "" {
		path = *fixturesPath
	}

	fixtures, err := seed.Load(path)
	if err != nil {
		logg.Error(context.Background(), "failed to load fixtures", err)
		os.Exit(1)
	}

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

	ctx := context.Background()
	if err := dbClient.AutoMigrate(ctx); err != nil {
		logg.Error(ctx, "failed to migrate schema", err)
		os.Exit(1)
	}

	if err := seed.Apply(ctx, dbClient, fixtures, logg); err != nil {
		logg.Error(ctx, "failed to apply fixtures", err)
		os.Exit(1)
	}

	logg.Info(logg.WithField(ctx, "fixtures", path), "seed complete")
}
