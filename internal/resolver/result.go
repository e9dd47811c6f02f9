package resolver

import "encoding/json"

const (
	ErrMissingParam     = "MISSING_PARAM"
	ErrInvalidIDFormat  = "INVALID_ID_FORMAT"
	ErrMethodNotAllowed = "METHOD_NOT_ALLOWED"
	ErrAuthRequired     = "AUTH_REQUIRED"
	ErrForbidden        = "FORBIDDEN"
	ErrUpstream         = "UPSTREAM_ERROR"
	ErrNoPrice          = "NO_PRICE"
	ErrInternal         = "INTERNAL"
)

// Result is the body of every price response.
type Result struct {
	OK               bool           `json:"ok"`
	Price            float64        `json:"price,omitempty"`
	Source           Source         `json:"source,omitempty"`
	Strategy         string         `json:"strategy,omitempty"`
	ProductID        string         `json:"product_id,omitempty"`
	ItemID           string         `json:"item_id,omitempty"`
	SoldWinner       *int           `json:"sold_winner,omitempty"`
	SoldCatalogTotal *int           `json:"sold_catalog_total,omitempty"`
	FetchedAt        string         `json:"fetched_at,omitempty"`
	ErrorCode        string         `json:"error_code,omitempty"`
	Message          string         `json:"message,omitempty"`
	HTTPStatus       int            `json:"http_status,omitempty"`
	Details          map[string]any `json:"details,omitempty"`
	Debug            *Trace         `json:"_debug,omitempty"`
}

// MarshalJSON keeps the sold counters present (possibly null) on success.
func (r Result) MarshalJSON() ([]byte, error) {
	type alias Result
	if !r.OK {
		return json.Marshal(alias(r))
	}
	return json.Marshal(struct {
		alias
		SoldWinner       *int `json:"sold_winner"`
		SoldCatalogTotal *int `json:"sold_catalog_total"`
	}{alias(r), r.SoldWinner, r.SoldCatalogTotal})
}

// Failure builds a failed result.
func Failure(code string, status int, message string) Result {
	return Result{
		OK:         false,
		ErrorCode:  code,
		HTTPStatus: status,
		Message:    message,
	}
}
