// Package identifier classifies marketplace references into catalog and
// listing identifiers.
package identifier

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultSite is the Brazilian marketplace site code.
const DefaultSite = "MLB"

// ItemDigits is the numeric-suffix length at which an identifier stops being
// a catalog product and becomes a listing (WID).
const ItemDigits = 10

type Kind int

const (
	Invalid Kind = iota
	Catalog
	Item
)

func (k Kind) String() string {
	switch k {
	case Catalog:
		return "catalog"
	case Item:
		return "item"
	default:
		return "invalid"
	}
}

// Identifier is a canonical (upper-cased) marketplace reference.
type Identifier struct {
	Kind  Kind
	Value string
}

func (id Identifier) Valid() bool {
	return id.Kind != Invalid
}

func (id Identifier) IsItem() bool {
	return id.Kind == Item
}

func (id Identifier) IsCatalog() bool {
	return id.Kind == Catalog
}

func (id Identifier) String() string {
	return id.Value
}

// Classifier recognises identifiers of a single site.
type Classifier struct {
	site      string
	exact     *regexp.Regexp
	fragment  *regexp.Regexp
	permalink *regexp.Regexp
	catalog   *regexp.Regexp
}

func NewClassifier(site string) *Classifier {
	site = strings.ToUpper(strings.TrimSpace(site))
	if site == "" {
		site = DefaultSite
	}
	q := regexp.QuoteMeta(site)
	return &Classifier{
		site:      site,
		exact:     regexp.MustCompile(`(?i)^` + q + `(\d+)$`),
		fragment:  regexp.MustCompile(fmt.Sprintf(`(?i)wid=%s(\d{%d,})`, q, ItemDigits)),
		permalink: regexp.MustCompile(fmt.Sprintf(`(?i)%s-?(\d{%d,})`, q, ItemDigits)),
		catalog:   regexp.MustCompile(`(?i)/p/` + q + `(\d+)`),
	}
}

var defaultClassifier = NewClassifier(DefaultSite)

// Classify uses the default site.
func Classify(raw string) Identifier {
	return defaultClassifier.Classify(raw)
}

func (c *Classifier) Site() string {
	return c.site
}

// Classify accepts a bare identifier or a URL carrying one. A bare value is
// classified by suffix length; URLs are searched for a wid= fragment, then a
// listing permalink, then a catalog path segment.
func (c *Classifier) Classify(raw string) Identifier {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identifier{}
	}

	if m := c.exact.FindStringSubmatch(raw); m != nil {
		return c.fromDigits(m[1])
	}

	if _, frag, ok := strings.Cut(raw, "#"); ok {
		if m := c.fragment.FindStringSubmatch(frag); m != nil {
			return c.fromDigits(m[1])
		}
	}

	if m := c.permalink.FindStringSubmatch(raw); m != nil {
		return c.fromDigits(m[1])
	}

	if m := c.catalog.FindStringSubmatch(raw); m != nil {
		return c.fromDigits(m[1])
	}

	return Identifier{}
}

// ItemID returns the canonical WID when raw is exactly a listing identifier.
func (c *Classifier) ItemID(raw string) (string, bool) {
	m := c.exact.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil || len(m[1]) < ItemDigits {
		return "", false
	}
	return c.site + m[1], true
}

func (c *Classifier) fromDigits(digits string) Identifier {
	kind := Catalog
	if len(digits) >= ItemDigits {
		kind = Item
	}
	return Identifier{Kind: kind, Value: c.site + digits}
}
