// Package search provides read-only name indexes over a store snapshot.
// Indexes are rebuilt wholesale when the snapshot changes; lookups never
// mutate shared state, so an index can be shared across goroutines freely.
package search

import (
	"sort"
	"strings"

	"github.com/razihadjamor/mangeo-backend/pkg/db/models"
)

// Index answers exact and prefix lookups of restaurants by name. Matching
// is case-insensitive.
type Index struct {
	byName map[string][]models.Restaurant
	sorted []entry
}

type entry struct {
	key        string
	restaurant models.Restaurant
}

// Build constructs an index from a snapshot of restaurants.
func Build(restaurants []models.Restaurant) *Index {
	idx := &Index{
		byName: make(map[string][]models.Restaurant, len(restaurants)),
		sorted: make([]entry, 0, len(restaurants)),
	}
	for _, r := range restaurants {
		key := normalize(r.Name)
		idx.byName[key] = append(idx.byName[key], r)
		idx.sorted = append(idx.sorted, entry{key: key, restaurant: r})
	}
	sort.Slice(idx.sorted, func(i, j int) bool {
		if idx.sorted[i].key != idx.sorted[j].key {
			return idx.sorted[i].key < idx.sorted[j].key
		}
		return idx.sorted[i].restaurant.RestaurantID < idx.sorted[j].restaurant.RestaurantID
	})
	return idx
}

// Exact returns the restaurants whose name matches exactly.
func (idx *Index) Exact(name string) []models.Restaurant {
	matches := idx.byName[normalize(name)]
	out := make([]models.Restaurant, len(matches))
	copy(out, matches)
	return out
}

// Prefix returns the restaurants whose name starts with the given prefix,
// in name order. An empty prefix returns the whole snapshot.
func (idx *Index) Prefix(prefix string) []models.Restaurant {
	key := normalize(prefix)
	start := sort.Search(len(idx.sorted), func(i int) bool {
		return idx.sorted[i].key >= key
	})
	var out []models.Restaurant
	for i := start; i < len(idx.sorted); i++ {
		if !strings.HasPrefix(idx.sorted[i].key, key) {
			break
		}
		out = append(out, idx.sorted[i].restaurant)
	}
	return out
}

// Len reports how many restaurants are indexed.
func (idx *Index) Len() int {
	return len(idx.sorted)
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
