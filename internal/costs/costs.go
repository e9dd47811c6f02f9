// Package costs computes the landed cost of an imported unit and the margin
// left after selling it on the marketplace.
package costs

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// IIRate is the import duty applied on the CIF value.
	IIRate = decimal.RequireFromString("0.60")
	// ICMSRate is the state tax (SP).
	ICMSRate = decimal.RequireFromString("0.17")

	hundred = decimal.NewFromInt(100)
)

// Input describes one product. Monetary USD amounts are totals for the
// shipment; Qty splits them per unit.
type Input struct {
	DeclaredUSD   decimal.Decimal `json:"declared_usd"`
	FreightUSD    decimal.Decimal `json:"freight_usd"`
	Qty           int64           `json:"qty"`
	FX            decimal.Decimal `json:"fx"`
	ICMSInside    bool            `json:"icms_inside"`
	CommissionPct decimal.Decimal `json:"commission_pct"`
	RevenueTaxPct decimal.Decimal `json:"revenue_tax_pct"`
	ShippingFee   decimal.Decimal `json:"shipping_fee"`
	Price         decimal.Decimal `json:"ml_price"`
}

// Defaults mirrors the values a new product starts with.
func Defaults() Input {
	return Input{
		Qty:           1,
		FX:            decimal.NewFromInt(5),
		ICMSInside:    true,
		CommissionPct: decimal.NewFromInt(12),
		RevenueTaxPct: decimal.NewFromInt(6),
		ShippingFee:   decimal.NewFromInt(15),
	}
}

func (in Input) Validate() error {
	var errs []error
	for name, v := range map[string]decimal.Decimal{
		"declared_usd":    in.DeclaredUSD,
		"freight_usd":     in.FreightUSD,
		"fx":              in.FX,
		"commission_pct":  in.CommissionPct,
		"revenue_tax_pct": in.RevenueTaxPct,
		"shipping_fee":    in.ShippingFee,
		"ml_price":        in.Price,
	} {
		if v.IsNegative() {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if in.Qty < 0 {
		errs = append(errs, errors.New("qty must not be negative"))
	}
	return errors.Join(errs...)
}

// Breakdown holds every intermediate value, rounded to cents.
type Breakdown struct {
	DeclaredUnitUSD decimal.Decimal `json:"declared_unit_usd"`
	FreightUnitUSD  decimal.Decimal `json:"freight_unit_usd"`
	CIF             decimal.Decimal `json:"cif_brl"`
	II              decimal.Decimal `json:"ii"`
	ICMS            decimal.Decimal `json:"icms"`
	Taxes           decimal.Decimal `json:"taxes"`
	CostUnit        decimal.Decimal `json:"cost_unit_brl"`
	Commission      decimal.Decimal `json:"commission"`
	RevenueTax      decimal.Decimal `json:"revenue_tax"`
	Margin          decimal.Decimal `json:"margin_abs"`
	MarginPct       decimal.Decimal `json:"margin_pct"`
}

// Compute applies the import tax chain: CIF, then II on CIF, then ICMS on
// CIF+II either "inside" (gross-up) or "outside" the base. Rounding happens
// only on the returned values.
func Compute(in Input) Breakdown {
	qty := decimal.NewFromInt(max(in.Qty, 1))

	declUnit := in.DeclaredUSD.Div(qty)
	freightUnit := in.FreightUSD.Div(qty)

	cif := declUnit.Add(freightUnit).Mul(in.FX)
	ii := cif.Mul(IIRate)
	base := cif.Add(ii)

	var icms decimal.Decimal
	if in.ICMSInside {
		icms = base.Div(decimal.NewFromInt(1).Sub(ICMSRate)).Mul(ICMSRate)
	} else {
		icms = base.Mul(ICMSRate)
	}

	cost := cif.Add(ii).Add(icms)
	commission := in.Price.Mul(in.CommissionPct).Div(hundred)
	revenueTax := in.Price.Mul(in.RevenueTaxPct).Div(hundred)

	margin := in.Price.Sub(cost.Add(commission).Add(in.ShippingFee).Add(revenueTax))
	marginPct := decimal.Zero
	if in.Price.IsPositive() {
		marginPct = margin.Div(in.Price).Mul(hundred)
	}

	return Breakdown{
		DeclaredUnitUSD: declUnit.Round(2),
		FreightUnitUSD:  freightUnit.Round(2),
		CIF:             cif.Round(2),
		II:              ii.Round(2),
		ICMS:            icms.Round(2),
		Taxes:           ii.Add(icms).Round(2),
		CostUnit:        cost.Round(2),
		Commission:      commission.Round(2),
		RevenueTax:      revenueTax.Round(2),
		Margin:          margin.Round(2),
		MarginPct:       marginPct.Round(2),
	}
}
