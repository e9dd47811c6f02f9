package resolver

import (
	"strings"

	"github.com/maltedev/import-cost-control/internal/extract"
)

// unwrapBulk turns a [{code, body}] envelope into the single object shape.
// The returned status is the element's own code when present.
func unwrapBulk(data any) (map[string]any, int, bool) {
	arr, ok := data.([]any)
	if !ok || len(arr) == 0 {
		return nil, 0, false
	}
	first, ok := arr[0].(map[string]any)
	if !ok {
		return nil, 0, false
	}
	code := intField(first, "code")
	body, ok := first["body"].(map[string]any)
	if !ok {
		return nil, code, false
	}
	if code == 0 {
		code = 200
	}
	return body, code, true
}

func results(obj map[string]any) []map[string]any {
	raw, _ := obj["results"].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		if m, ok := r.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// matchSearch picks the search result whose id or permalink refers to wid.
func matchSearch(obj map[string]any, site, wid string) map[string]any {
	digits := strings.TrimPrefix(wid, site)
	dashed := strings.ToUpper(site + "-" + digits)
	for _, r := range results(obj) {
		if strings.EqualFold(stringField(r, "id"), wid) {
			return r
		}
		link := strings.ToUpper(stringField(r, "permalink"))
		if link != "" && (strings.Contains(link, wid) || strings.Contains(link, dashed)) {
			return r
		}
	}
	return nil
}

type offerPick struct {
	best      map[string]any
	price     float64
	soldTotal int
	active    int
}

// pickOffer chooses among catalog search results: the first active priced
// result matching the product, else the first active priced one.
func pickOffer(obj map[string]any, productID string) offerPick {
	var pick offerPick
	var first map[string]any
	var firstPrice float64

	for _, r := range results(obj) {
		status := stringField(r, "status")
		if status != "" && status != "active" {
			continue
		}
		price := extract.FromJSON(r)
		if price <= 0 {
			continue
		}
		pick.active++
		pick.soldTotal += intField(r, "sold_quantity")

		if first == nil {
			first, firstPrice = r, price
		}
		if pick.best == nil && (strings.EqualFold(stringField(r, "catalog_product_id"), productID) ||
			strings.EqualFold(stringField(r, "id"), productID)) {
			pick.best, pick.price = r, price
		}
	}

	if pick.best == nil {
		pick.best, pick.price = first, firstPrice
	}
	return pick
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func intField(obj map[string]any, key string) int {
	if n, ok := obj[key].(float64); ok && n >= 0 {
		return int(n)
	}
	return 0
}

// soldQuantity is nil when the field is absent or not a number.
func soldQuantity(obj map[string]any) *int {
	n, ok := obj["sold_quantity"].(float64)
	if !ok || n < 0 {
		return nil
	}
	v := int(n)
	return &v
}
