package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	// Currency amounts outside this range are ignored by the text scan.
	minPlausiblePrice = 1.0
	maxPlausiblePrice = 1_000_000.0
)

var (
	stateMarkers = []string{"window.__PRELOADED_STATE__", "window.__INITIAL_STATE__"}

	// Rendered amount containers, most specific first.
	amountSelectors = []string{
		".ui-pdp-price__second-line .andes-money-amount",
		"[data-testid='price-part'] .andes-money-amount",
		"[data-testid='price-part']",
		".ui-pdp-price .andes-money-amount",
		".andes-money-amount",
		".price-tag",
	}

	currencyRe    = regexp.MustCompile(`R\$\s*(?:&nbsp;|\x{00a0})?\s*(\d{1,3}(?:\.\d{3})+(?:,\d{1,2})?|\d+(?:,\d{1,2})?)`)
	installmentRe = regexp.MustCompile(`(?i)\d+\s*x\s*(?:de\s*)?(?:&nbsp;|\x{00a0})?\s*$`)
)

// FromHTML extracts a positive price from a listing page. Heuristics run in
// order: JSON-LD offers, embedded page state, rendered price markers, and a
// bounded currency scan returning the largest plausible amount.
func FromHTML(html string) float64 {
	if strings.TrimSpace(html) == "" {
		return 0
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return scanCurrency(html)
	}

	if p := fromStructuredData(doc); p > 0 {
		return p
	}
	if p := fromPageState(doc); p > 0 {
		return p
	}
	if p := fromPriceMarkers(doc); p > 0 {
		return p
	}
	return scanCurrency(html)
}

func fromStructuredData(doc *goquery.Document) float64 {
	var price float64
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var data any
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			return true
		}
		price = offersPrice(data, 0)
		return price == 0
	})
	return price
}

// offersPrice looks for offers.price in a JSON-LD node, its @graph, or a
// top-level array of nodes.
func offersPrice(v any, depth int) float64 {
	if depth > 4 {
		return 0
	}
	switch node := v.(type) {
	case []any:
		for _, child := range node {
			if p := offersPrice(child, depth+1); p > 0 {
				return p
			}
		}
	case map[string]any:
		switch offers := node["offers"].(type) {
		case map[string]any:
			if p := positive(offers["price"]); p > 0 {
				return p
			}
			if p := positive(offers["lowPrice"]); p > 0 {
				return p
			}
		case []any:
			for _, o := range offers {
				if om, ok := o.(map[string]any); ok {
					if p := positive(om["price"]); p > 0 {
						return p
					}
				}
			}
		}
		if graph, ok := node["@graph"]; ok {
			return offersPrice(graph, depth+1)
		}
	}
	return 0
}

func fromPageState(doc *goquery.Document) float64 {
	if next := doc.Find("script#__NEXT_DATA__").First(); next.Length() > 0 {
		var data any
		if err := json.Unmarshal([]byte(next.Text()), &data); err == nil {
			if p := DeepPrice(data); p > 0 {
				return p
			}
		}
	}

	var price float64
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		for _, marker := range stateMarkers {
			idx := strings.Index(text, marker)
			if idx < 0 {
				continue
			}
			blob := balancedObject(text[idx+len(marker):])
			if blob == "" {
				continue
			}
			var data any
			if err := json.Unmarshal([]byte(blob), &data); err != nil {
				continue
			}
			if price = DeepPrice(data); price > 0 {
				return false
			}
		}
		return true
	})
	return price
}

// balancedObject returns the first complete {...} object in s, honouring
// string literals and escapes.
func balancedObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func fromPriceMarkers(doc *goquery.Document) float64 {
	if content, ok := doc.Find(`meta[itemprop="price"]`).First().Attr("content"); ok {
		if p := positive(content); p > 0 {
			return p
		}
	}

	for _, selector := range amountSelectors {
		var price float64
		doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if skipAmount(s) {
				return true
			}
			price = renderedAmount(s)
			return price == 0
		})
		if price > 0 {
			return price
		}
	}
	return 0
}

// skipAmount excludes struck-through previous prices and installment lines.
func skipAmount(s *goquery.Selection) bool {
	if s.Is("s") || s.HasClass("andes-money-amount--previous-price") {
		return true
	}
	return s.ParentsFiltered("s, .andes-money-amount--previous-price, .ui-pdp-price__subtitles, [class*='installments']").Length() > 0
}

func renderedAmount(s *goquery.Selection) float64 {
	fractionSel := s.Find(".andes-money-amount__fraction, .price-tag-fraction").First()
	if fractionSel.Length() == 0 {
		if s.HasClass("andes-money-amount__fraction") || s.HasClass("price-tag-fraction") {
			fractionSel = s
		} else {
			return textAmount(s.Text())
		}
	}

	whole, ok := ParseBRL(strings.TrimSpace(fractionSel.Text()))
	if !ok || whole <= 0 {
		return 0
	}
	centsText := strings.TrimSpace(s.Find(".andes-money-amount__cents, .price-tag-cents").First().Text())
	if centsText != "" {
		if cents, ok := ParseBRL(centsText); ok && cents < 100 {
			whole += cents / 100
		}
	}
	return whole
}

// textAmount parses rendered price text, where the dot always groups
// thousands.
func textAmount(text string) float64 {
	if v, ok := ParseBRL(strings.TrimSpace(text)); ok && v > 0 {
		return v
	}
	return 0
}

// scanCurrency collects every R$ amount not introduced by an installment
// count ("12x R$ 16,66") and returns the largest plausible one.
func scanCurrency(html string) float64 {
	var best float64
	for _, loc := range currencyRe.FindAllStringSubmatchIndex(html, -1) {
		lead := html[max(0, loc[0]-24):loc[0]]
		if installmentRe.MatchString(lead) {
			continue
		}
		v, ok := ParseBRL(html[loc[2]:loc[3]])
		if !ok || v < minPlausiblePrice || v > maxPlausiblePrice {
			continue
		}
		if v > best {
			best = v
		}
	}
	return best
}
