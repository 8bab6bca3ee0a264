package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/razihadjamor/mangeo-backend/internal/customer"
	"github.com/razihadjamor/mangeo-backend/pkg/bus"
	"github.com/razihadjamor/mangeo-backend/pkg/config"
	"github.com/razihadjamor/mangeo-backend/pkg/db"
	"github.com/razihadjamor/mangeo-backend/pkg/logger"
	"github.com/razihadjamor/mangeo-backend/pkg/redis"
)

func main() {
	clientID := flag.String("client", "", "client id (must be seeded)")
	restaurantName := flag.String("restaurant", "", "restaurant name, exact or prefix")
	items := flag.String("items", "", "cart as item-id:qty pairs, comma separated")
	address := flag.String("address", "", "delivery address (defaults to the client's)")
	list := flag.Bool("list", false, "list restaurants matching -restaurant and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "customer"})

	if *clientID == "" {
		logg.Error(context.Background(), "missing -client flag", errors.New("client id is required"))
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
		ServiceName: "customer",
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

	repo := customer.NewRepository(dbClient)

	account, err := repo.GetClient(context.Background(), *clientID)
	if err != nil {
		logg.Error(context.Background(), "client identity rejected", err)
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

	agent := customer.NewAgent(*clientID, eventBus, repo, logg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	index, err := agent.Browse(ctx)
	if err != nil {
		logg.Error(ctx, "failed to browse catalog", err)
		os.Exit(1)
	}

	matches := index.Exact(*restaurantName)
	if len(matches) == 0 {
		matches = index.Prefix(*restaurantName)
	}

	if *list {
		for _, r := range matches {
			fmt.Printf("%s  %s  (%s)\n", r.RestaurantID, r.Name, r.Address)
			for _, item := range r.MenuItems {
				fmt.Printf("    %s  %-28s %s\n", item.ItemID, item.Name, item.Price.StringFixed(2))
			}
		}
		return
	}

	if len(matches) == 0 {
		logg.Error(ctx, "no restaurant matches", fmt.Errorf("nothing named %q", *restaurantName))
		os.Exit(1)
	}
	chosen := matches[0]

	draft := customer.NewDraft(chosen)
	if err := fillDraft(draft, *items); err != nil {
		logg.Error(ctx, "invalid cart", err)
		os.Exit(1)
	}

	deliveryAddress := *address
	if deliveryAddress == "" {
		deliveryAddress = account.Address
	}

	orderID, cursor, err := agent.Submit(ctx, draft, deliveryAddress)
	if err != nil {
		logg.Error(ctx, "failed to submit order", err)
		os.Exit(1)
	}

	outcome, err := agent.AwaitOutcome(ctx, orderID, cursor)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logg.Error(ctx, "failed waiting for outcome", err)
		os.Exit(1)
	}
	logg.Info(logg.WithOrderID(ctx, orderID), fmt.Sprintf("session finished with %s", outcome))
}

// fillDraft parses "item-1:1,item-2:3" into the cart.
func fillDraft(draft *customer.Draft, spec string) error {
	if strings.TrimSpace(spec) == "" {
		return errors.New("cart is empty, pass -items")
	}
	for _, pair := range strings.Split(spec, ",") {
		itemID, qtyRaw, found := strings.Cut(strings.TrimSpace(pair), ":")
		if !found {
			return fmt.Errorf("malformed cart entry %q, want item-id:qty", pair)
		}
		quantity, err := strconv.Atoi(qtyRaw)
		if err != nil {
			return fmt.Errorf("malformed quantity in %q: %w", pair, err)
		}
		if err := draft.Add(itemID, quantity); err != nil {
			return err
		}
	}
	return nil
}
