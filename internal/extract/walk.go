package extract

import (
	"sort"
	"strings"
)

// MaxWalkDepth bounds the recursion over decoded page-state blobs.
const MaxWalkDepth = 32

type priceCandidate struct {
	path      []string
	value     float64
	preferred bool
}

// walkPrices visits every "price" or "amount" number in a decoded JSON value.
// Object keys are visited in sorted order so the result does not depend on
// map iteration.
func walkPrices(v any, path []string, depth int, visit func(priceCandidate)) {
	if depth > MaxWalkDepth {
		return
	}

	switch node := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			child := node[k]
			childPath := append(path[:len(path):len(path)], k)
			lk := strings.ToLower(k)
			if lk == "price" || lk == "amount" {
				if n := positive(child); n > 0 {
					visit(priceCandidate{
						path:      childPath,
						value:     n,
						preferred: pricePath(path),
					})
					continue
				}
			}
			walkPrices(child, childPath, depth+1, visit)
		}
	case []any:
		for _, child := range node {
			walkPrices(child, path, depth+1, visit)
		}
	}
}

// pricePath reports whether an ancestor key names a price or buy box.
func pricePath(path []string) bool {
	for _, p := range path {
		lp := strings.ToLower(p)
		if strings.Contains(lp, "price") || strings.Contains(lp, "buybox") || strings.Contains(lp, "buy_box") {
			return true
		}
	}
	return false
}

// DeepPrice returns the first price under a price/buy-box key path, else the
// first price found anywhere, else 0.
func DeepPrice(v any) float64 {
	var first, preferred float64
	walkPrices(v, nil, 0, func(c priceCandidate) {
		if first == 0 {
			first = c.value
		}
		if c.preferred && preferred == 0 {
			preferred = c.value
		}
	})
	if preferred > 0 {
		return preferred
	}
	return first
}
