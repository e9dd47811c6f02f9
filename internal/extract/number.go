package extract

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ParseBRL converts a Brazilian formatted amount ("1.234,56", "R$ 99,00") to
// a float. A lone dot followed by exactly three digits is a thousands
// separator; any other lone dot is a decimal point, so JSON-ish strings such
// as "199.9" still parse.
func ParseBRL(s string) (float64, bool) {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	clean := strings.Trim(b.String(), ".,")
	if clean == "" {
		return 0, false
	}

	switch {
	case strings.Contains(clean, ","):
		clean = strings.ReplaceAll(clean, ".", "")
		if strings.Count(clean, ",") > 1 {
			return 0, false
		}
		clean = strings.Replace(clean, ",", ".", 1)
	case strings.Count(clean, ".") > 1:
		clean = strings.ReplaceAll(clean, ".", "")
	case strings.Contains(clean, "."):
		if i := strings.LastIndex(clean, "."); len(clean)-i-1 == 3 {
			clean = strings.ReplaceAll(clean, ".", "")
		}
	}

	v, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// toNumber accepts the scalar shapes prices arrive in across upstream
// responses: JSON numbers, json.Number and formatted strings.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(n)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
		return ParseBRL(s)
	default:
		return 0, false
	}
}

func positive(v any) float64 {
	if n, ok := toNumber(v); ok && n > 0 {
		return n
	}
	return 0
}
