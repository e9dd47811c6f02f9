package costs

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sample() Input {
	in := Defaults()
	in.DeclaredUSD = d("100")
	in.FreightUSD = d("20")
	in.Qty = 10
	in.Price = d("300")
	return in
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name       string
		in         func() Input
		cost       string
		icms       string
		margin     string
		marginPct  string
		commission string
	}{
		{
			name:       "icms inside",
			in:         sample,
			cost:       "115.66",
			icms:       "19.66",
			margin:     "115.34",
			marginPct:  "38.45",
			commission: "36",
		},
		{
			name: "icms outside",
			in: func() Input {
				in := sample()
				in.ICMSInside = false
				return in
			},
			cost:       "112.32",
			icms:       "16.32",
			margin:     "118.68",
			marginPct:  "39.56",
			commission: "36",
		},
		{
			name: "no marketplace price",
			in: func() Input {
				in := sample()
				in.Price = decimal.Zero
				return in
			},
			cost:       "115.66",
			icms:       "19.66",
			margin:     "-130.66",
			marginPct:  "0",
			commission: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Compute(tt.in())

			assert.True(t, b.CIF.Equal(d("60")), "cif %s", b.CIF)
			assert.True(t, b.II.Equal(d("36")), "ii %s", b.II)
			assert.True(t, b.ICMS.Equal(d(tt.icms)), "icms %s", b.ICMS)
			assert.True(t, b.CostUnit.Equal(d(tt.cost)), "cost %s", b.CostUnit)
			assert.True(t, b.Commission.Equal(d(tt.commission)), "commission %s", b.Commission)
			assert.True(t, b.Margin.Equal(d(tt.margin)), "margin %s", b.Margin)
			assert.True(t, b.MarginPct.Equal(d(tt.marginPct)), "margin pct %s", b.MarginPct)
		})
	}
}

func TestCompute_PerUnitSplit(t *testing.T) {
	in := sample()
	b := Compute(in)
	assert.True(t, b.DeclaredUnitUSD.Equal(d("10")))
	assert.True(t, b.FreightUnitUSD.Equal(d("2")))

	in.Qty = 0
	b = Compute(in)
	assert.True(t, b.DeclaredUnitUSD.Equal(d("100")), "zero qty counts as one unit")
}

func TestCompute_RoundsHalfUp(t *testing.T) {
	in := Input{Qty: 1, FX: d("1"), DeclaredUSD: d("0.005")}
	in.ICMSInside = false
	b := Compute(in)
	assert.True(t, b.CIF.Equal(d("0.01")), "cif %s", b.CIF)
}

func TestInput_Validate(t *testing.T) {
	assert.NoError(t, sample().Validate())

	in := sample()
	in.FX = d("-1")
	in.Qty = -2
	err := in.Validate()
	assert.ErrorContains(t, err, "fx must not be negative")
	assert.ErrorContains(t, err, "qty must not be negative")
}
