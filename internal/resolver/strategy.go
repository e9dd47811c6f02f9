package resolver

import "github.com/maltedev/import-cost-control/internal/mlapi"

// Source is the strategy family reported to callers.
type Source string

const (
	SourceItem   Source = "item"
	SourceBuyBox Source = "buy_box"
	SourceSearch Source = "search"
	SourceScrape Source = "scrape"
)

// Shape says how a strategy's response is turned into a payload.
type Shape int

const (
	ShapeSingle Shape = iota // /items/{id}
	ShapeBulk                // /items?ids={id}, [{code, body}]
	ShapeSearch              // /sites/{site}/search?q={id}
	ShapeBuyBox              // /products/{id}
	ShapeOffers              // /sites/{site}/search?product_id={id}
	ShapePage                // public listing HTML
)

func (s Shape) String() string {
	switch s {
	case ShapeSingle:
		return "single"
	case ShapeBulk:
		return "bulk"
	case ShapeSearch:
		return "search"
	case ShapeBuyBox:
		return "buy_box"
	case ShapeOffers:
		return "offers"
	case ShapePage:
		return "page"
	default:
		return "unknown"
	}
}

// itemAttributes restricts the authenticated direct lookup to the fields the
// extractor reads.
const itemAttributes = "id,price,base_price,original_price,sold_quantity,status,permalink,currency_id,prices,variations"

// Strategy is one retrieval attempt in the chain.
type Strategy struct {
	Name       string
	Source     Source
	Shape      Shape
	Auth       mlapi.AuthMode
	Restricted bool
}

// ItemStrategies is the ordered chain for a listing id. Authenticated
// strategies are only present with a token and always precede public ones.
func ItemStrategies(hasToken, scrape bool) []Strategy {
	var list []Strategy
	if hasToken {
		list = append(list,
			Strategy{Name: "items_header", Source: SourceItem, Shape: ShapeSingle, Auth: mlapi.AuthHeader, Restricted: true},
			Strategy{Name: "items_bulk_header", Source: SourceItem, Shape: ShapeBulk, Auth: mlapi.AuthHeader},
			Strategy{Name: "items_query_token", Source: SourceItem, Shape: ShapeSingle, Auth: mlapi.AuthQuery},
			Strategy{Name: "items_bulk_query_token", Source: SourceItem, Shape: ShapeBulk, Auth: mlapi.AuthQuery},
		)
	}
	list = append(list,
		Strategy{Name: "items_public", Source: SourceItem, Shape: ShapeSingle, Auth: mlapi.AuthNone},
		Strategy{Name: "items_bulk_public", Source: SourceItem, Shape: ShapeBulk, Auth: mlapi.AuthNone},
		Strategy{Name: "search_public", Source: SourceSearch, Shape: ShapeSearch, Auth: mlapi.AuthNone},
	)
	if hasToken {
		list = append(list,
			Strategy{Name: "search_header", Source: SourceSearch, Shape: ShapeSearch, Auth: mlapi.AuthHeader},
			Strategy{Name: "search_query_token", Source: SourceSearch, Shape: ShapeSearch, Auth: mlapi.AuthQuery},
		)
	}
	if scrape {
		list = append(list, Strategy{Name: "scrape", Source: SourceScrape, Shape: ShapePage, Auth: mlapi.AuthNone})
	}
	return list
}

// CatalogStrategies is the chain for a catalog product. The buy-box lookup
// needs a token, so without one the list is empty.
func CatalogStrategies(hasToken bool) []Strategy {
	if !hasToken {
		return nil
	}
	return []Strategy{
		{Name: "buy_box_header", Source: SourceBuyBox, Shape: ShapeBuyBox, Auth: mlapi.AuthHeader},
		{Name: "catalog_search_public", Source: SourceSearch, Shape: ShapeOffers, Auth: mlapi.AuthNone},
		{Name: "catalog_search_header", Source: SourceSearch, Shape: ShapeOffers, Auth: mlapi.AuthHeader},
		{Name: "catalog_search_query_token", Source: SourceSearch, Shape: ShapeOffers, Auth: mlapi.AuthQuery},
	}
}
