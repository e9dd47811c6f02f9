package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestProduct_Validate(t *testing.T) {
	tests := []struct {
		name    string
		p       Product
		wantErr bool
	}{
		{"catalog id", Product{ID: uuid.New(), MLProductID: "MLB123"}, false},
		{"own item only", Product{ID: uuid.New(), MyItemID: "MLB3520318133"}, false},
		{"missing id", Product{MLProductID: "MLB123"}, true},
		{"no marketplace ids", Product{ID: uuid.New()}, true},
		{"negative qty", Product{ID: uuid.New(), MLProductID: "MLB123", Qty: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProduct_Recalculate(t *testing.T) {
	p := &Product{
		ID:            uuid.New(),
		MLProductID:   "MLB123",
		Qty:           10,
		DeclaredUSD:   100,
		FreightUSD:    20,
		FX:            5,
		CommissionPct: 12,
		RevenueTaxPct: 6,
		ShippingFee:   15,
		ICMSInside:    true,
		MLPrice:       300,
	}

	b := p.Recalculate()

	assert.Equal(t, "115.66", b.CostUnit.String())
	assert.Equal(t, 115.66, p.CostUnitBRL)
	assert.Equal(t, 115.34, p.MarginAbs)
	assert.Equal(t, 38.45, p.MarginPct)

	p.MLPrice = 0
	p.Recalculate()
	assert.Equal(t, 0.0, p.MarginPct)
	assert.Equal(t, -130.66, p.MarginAbs)
}
