// Package seed loads the marketplace fixtures the agents validate their
// identities against. Seeding runs once before any agent starts.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/razihadjamor/mangeo-backend/pkg/db"
	"github.com/razihadjamor/mangeo-backend/pkg/db/models"
	"github.com/razihadjamor/mangeo-backend/pkg/errors"
	"github.com/razihadjamor/mangeo-backend/pkg/logger"
)

// Fixtures is the on-disk seed format.
type Fixtures struct {
	Restaurants []RestaurantFixture `json:"restaurants" validate:"dive"`
	Clients     []ClientFixture     `json:"clients" validate:"dive"`
	Couriers    []CourierFixture    `json:"couriers" validate:"dive"`
}

// RestaurantFixture seeds one restaurant and its menu.
type RestaurantFixture struct {
	RestaurantID string        `json:"restaurant_id" validate:"required"`
	Name         string        `json:"name" validate:"required"`
	Address      string        `json:"address" validate:"required"`
	Menu         []MenuFixture `json:"menu" validate:"min=1,dive"`
}

// MenuFixture seeds one dish.
type MenuFixture struct {
	ItemID      string          `json:"item_id" validate:"required"`
	Name        string          `json:"name" validate:"required"`
	Price       decimal.Decimal `json:"price" validate:"gt=0"`
	Description string          `json:"description,omitempty"`
}

// ClientFixture seeds one customer account.
type ClientFixture struct {
	ClientID string `json:"client_id" validate:"required"`
	Name     string `json:"name" validate:"required"`
	Address  string `json:"address,omitempty"`
}

// CourierFixture seeds one courier identity.
type CourierFixture struct {
	CourierID string `json:"courier_id" validate:"required"`
	Name      string `json:"name" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	// Comparisons like gt=0 see prices as floats; exact decimal values are
	// preserved in the fixtures themselves.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// Load reads and validates a fixture file.
func Load(path string) (*Fixtures, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.CodeValidation, err, "reading fixtures")
	}
	var fixtures Fixtures
	if err := json.Unmarshal(raw, &fixtures); err != nil {
		return nil, errors.Wrap(errors.CodeValidation, err, "parsing fixtures")
	}
	if err := fixtures.Validate(); err != nil {
		return nil, err
	}
	return &fixtures, nil
}

// Validate checks the fixture invariants before anything touches the store.
// Field shape is tag-driven; only the cross-record checks live here.
func (f *Fixtures) Validate() error {
	if err := validate.Struct(f); err != nil {
		return formatValidationErrors(err)
	}

	seenRestaurants := make(map[string]bool, len(f.Restaurants))
	seenItems := make(map[string]bool)
	for _, r := range f.Restaurants {
		if seenRestaurants[r.RestaurantID] {
			return errors.New(errors.CodeValidation, fmt.Sprintf("duplicate restaurant id %q", r.RestaurantID))
		}
		seenRestaurants[r.RestaurantID] = true
		for _, item := range r.Menu {
			if seenItems[item.ItemID] {
				return errors.New(errors.CodeValidation, fmt.Sprintf("duplicate menu item id %q", item.ItemID))
			}
			seenItems[item.ItemID] = true
		}
	}
	return nil
}

func formatValidationErrors(err error) *errors.Error {
	if errs, ok := err.(validator.ValidationErrors); ok {
		details := map[string]string{}
		for _, fieldErr := range errs {
			details[fieldErr.Field()] = validationMessage(fieldErr)
		}
		return errors.New(errors.CodeValidation, "invalid fixtures").WithDetails(details)
	}
	return errors.Wrap(errors.CodeValidation, err, "invalid fixtures")
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	}
	return "is invalid"
}

// Apply upserts the fixtures into the store in one transaction. Re-running
// a seed refreshes names, addresses and prices without touching orders.
func Apply(ctx context.Context, client *db.Client, fixtures *Fixtures, logg *logger.Logger) error {
	upsert := clause.OnConflict{UpdateAll: true}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		for _, r := range fixtures.Restaurants {
			restaurant := models.Restaurant{
				RestaurantID: r.RestaurantID,
				Name:         r.Name,
				Address:      r.Address,
			}
			if err := tx.Clauses(upsert).Create(&restaurant).Error; err != nil {
				return errors.Wrap(errors.CodeDependency, err, "seeding restaurant")
			}
			for _, item := range r.Menu {
				menuItem := models.MenuItem{
					ItemID:       item.ItemID,
					RestaurantID: r.RestaurantID,
					Name:         item.Name,
					Price:        item.Price,
					Description:  item.Description,
				}
				if err := tx.Clauses(upsert).Create(&menuItem).Error; err != nil {
					return errors.Wrap(errors.CodeDependency, err, "seeding menu item")
				}
			}
		}

		for _, c := range fixtures.Clients {
			record := models.Client{ClientID: c.ClientID, Name: c.Name, Address: c.Address}
			if err := tx.Clauses(upsert).Create(&record).Error; err != nil {
				return errors.Wrap(errors.CodeDependency, err, "seeding client")
			}
		}

		for _, c := range fixtures.Couriers {
			record := models.Courier{CourierID: c.CourierID, Name: c.Name}
			if err := tx.Clauses(upsert).Create(&record).Error; err != nil {
				return errors.Wrap(errors.CodeDependency, err, "seeding courier")
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if logg != nil {
		logCtx := logg.WithFields(ctx, map[string]any{
			"restaurants": len(fixtures.Restaurants),
			"clients":     len(fixtures.Clients),
			"couriers":    len(fixtures.Couriers),
		})
		logg.Info(logCtx, "fixtures applied")
	}
	return nil
}
