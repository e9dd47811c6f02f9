package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/maltedev/import-cost-control/internal/costs"
)

// Product is a saved import line: what it costs to bring in and what it
// sells for on the marketplace.
type Product struct {
	ID            uuid.UUID `json:"id"`
	SKU           string    `json:"sku"`
	Description   string    `json:"description"`
	MLProductID   string    `json:"ml_product_id"`
	MyItemID      string    `json:"my_item_id,omitempty"`
	UnitUSD       float64   `json:"usd_unit"`
	Qty           int64     `json:"qty"`
	FreightUSD    float64   `json:"freight_usd"`
	DeclaredUSD   float64   `json:"declared_usd"`
	FX            float64   `json:"fx"`
	CommissionPct float64   `json:"commission_pct"`
	ShippingFee   float64   `json:"shipping_fee"`
	RevenueTaxPct float64   `json:"revenue_tax_pct"`
	ICMSInside    bool      `json:"icms_inside"`

	MLPrice          float64   `json:"ml_price,omitempty"`
	MLSource         string    `json:"ml_source,omitempty"`
	MLItemID         string    `json:"ml_item_id,omitempty"`
	SoldWinner       *int      `json:"sold_winner,omitempty"`
	SoldCatalogTotal *int      `json:"sold_catalog_total,omitempty"`
	CostUnitBRL      float64   `json:"cost_unit_brl"`
	MarginAbs        float64   `json:"margin_abs"`
	MarginPct        float64   `json:"margin_pct"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (p *Product) Validate() error {
	if p.ID == uuid.Nil {
		return errors.New("id is required")
	}
	if p.MLProductID == "" && p.MyItemID == "" {
		return errors.New("ml_product_id or my_item_id is required")
	}
	if p.Qty < 0 {
		return errors.New("qty must not be negative")
	}
	return nil
}

// CostInput converts the stored values for the cost calculation.
func (p *Product) CostInput() costs.Input {
	return costs.Input{
		DeclaredUSD:   decimal.NewFromFloat(p.DeclaredUSD),
		FreightUSD:    decimal.NewFromFloat(p.FreightUSD),
		Qty:           p.Qty,
		FX:            decimal.NewFromFloat(p.FX),
		ICMSInside:    p.ICMSInside,
		CommissionPct: decimal.NewFromFloat(p.CommissionPct),
		RevenueTaxPct: decimal.NewFromFloat(p.RevenueTaxPct),
		ShippingFee:   decimal.NewFromFloat(p.ShippingFee),
		Price:         decimal.NewFromFloat(p.MLPrice),
	}
}

// Recalculate refreshes the derived cost and margin fields.
func (p *Product) Recalculate() costs.Breakdown {
	b := costs.Compute(p.CostInput())
	p.CostUnitBRL = b.CostUnit.InexactFloat64()
	p.MarginAbs = b.Margin.InexactFloat64()
	p.MarginPct = b.MarginPct.InexactFloat64()
	return b
}
