package extract

import (
	"sort"
	"strings"
	"time"
)

// DefaultCurrency is the only currency prices are accepted in.
const DefaultCurrency = "BRL"

var scalarPriceFields = []string{"price", "base_price", "original_price"}

// FromJSON extracts a positive price from an item-shaped object. It tries the
// scalar fields, then the "prices" collection, then the cheapest variation.
func FromJSON(obj map[string]any) float64 {
	if obj == nil {
		return 0
	}

	for _, field := range scalarPriceFields {
		if p := positive(obj[field]); p > 0 {
			return p
		}
	}

	if p := fromPriceCollection(obj["prices"]); p > 0 {
		return p
	}

	return fromVariations(obj["variations"])
}

type priceEntry struct {
	amount  float64
	updated time.Time
}

// fromPriceCollection accepts either a bare list of price entries or an
// object wrapping one under "prices" (the /items/{id}/prices shape).
func fromPriceCollection(v any) float64 {
	var list []any
	switch c := v.(type) {
	case []any:
		list = c
	case map[string]any:
		list, _ = c["prices"].([]any)
	}
	if len(list) == 0 {
		return 0
	}

	entries := make([]priceEntry, 0, len(list))
	for _, raw := range list {
		e, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if status, ok := e["status"].(string); ok && !activeStatus(status) {
			continue
		}
		if cur, ok := e["currency_id"].(string); ok && !strings.EqualFold(cur, DefaultCurrency) {
			continue
		}
		amount := positive(e["amount"])
		if amount == 0 {
			continue
		}
		entries = append(entries, priceEntry{amount: amount, updated: parseTime(e["last_updated"])})
	}
	if len(entries) == 0 {
		return 0
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].updated.After(entries[j].updated)
	})
	return entries[0].amount
}

func fromVariations(v any) float64 {
	list, ok := v.([]any)
	if !ok {
		return 0
	}

	var best float64
	consider := func(p float64) {
		if p > 0 && (best == 0 || p < best) {
			best = p
		}
	}
	for _, raw := range list {
		variation, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		consider(positive(variation["price"]))
		consider(fromPriceCollection(variation["prices"]))
	}
	return best
}

func activeStatus(s string) bool {
	switch strings.ToLower(s) {
	case "active", "available":
		return true
	}
	return false
}

func parseTime(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000-0700", "2006-01-02T15:04:05Z0700"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
