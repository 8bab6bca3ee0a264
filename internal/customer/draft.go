package customer

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/razihadjamor/mangeo-backend/internal/events"
	"github.com/razihadjamor/mangeo-backend/pkg/db/models"
	"github.com/razihadjamor/mangeo-backend/pkg/errors"
)

// Draft accumulates a cart against one restaurant's menu. All validation is
// local; a draft that builds successfully is safe to submit.
type Draft struct {
	restaurant models.Restaurant
	menu       map[string]models.MenuItem
	items      []events.LineItem
}

// NewDraft starts an empty cart for the given restaurant.
func NewDraft(restaurant models.Restaurant) *Draft {
	menu := make(map[string]models.MenuItem, len(restaurant.MenuItems))
	for _, item := range restaurant.MenuItems {
		menu[item.ItemID] = item
	}
	return &Draft{restaurant: restaurant, menu: menu}
}

// Add puts quantity units of a menu item in the cart. The unit price is
// frozen from the menu at this moment.
func (d *Draft) Add(itemID string, quantity int) error {
	if quantity <= 0 {
		return errors.New(errors.CodeValidation, "quantity must be positive")
	}
	item, ok := d.menu[itemID]
	if !ok {
		return errors.New(errors.CodeValidation,
			fmt.Sprintf("item %q is not on the menu of %s", itemID, d.restaurant.Name))
	}
	for i, line := range d.items {
		if line.ItemID == itemID {
			d.items[i].Quantity += quantity
			return nil
		}
	}
	d.items = append(d.items, events.LineItem{
		ItemID:    item.ItemID,
		Name:      item.Name,
		Quantity:  quantity,
		UnitPrice: item.Price,
	})
	return nil
}

// Total is the sum of quantity times unit price over the cart.
func (d *Draft) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range d.items {
		total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}

// Items returns a copy of the cart lines.
func (d *Draft) Items() []events.LineItem {
	out := make([]events.LineItem, len(d.items))
	copy(out, d.items)
	return out
}

// Restaurant returns the restaurant this draft orders from.
func (d *Draft) Restaurant() models.Restaurant {
	return d.restaurant
}

// Empty reports whether the cart has no lines.
func (d *Draft) Empty() bool {
	return len(d.items) == 0
}
