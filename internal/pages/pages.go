// Package pages fetches public listing pages for the scrape strategy.
package pages

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const DefaultListingBase = "https://produto.mercadolivre.com.br"

var ErrEmptyPage = errors.New("empty page")

// Fetcher returns the HTML of a listing page.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

// ListingURL builds the public permalink for a WID ("MLB123..." becomes
// ".../MLB-123...-_JM").
func ListingURL(base, site, wid string) string {
	if base == "" {
		base = DefaultListingBase
	}
	digits := strings.TrimPrefix(strings.ToUpper(wid), strings.ToUpper(site))
	return fmt.Sprintf("%s/%s-%s-_JM", strings.TrimRight(base, "/"), strings.ToUpper(site), digits)
}
