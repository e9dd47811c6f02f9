package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/import-cost-control/internal/models"
)

func TestProductFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "products.json")

	pf, err := NewProductFile(path)
	require.NoError(t, err)

	list, err := pf.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	b := &models.Product{SKU: "B", MLProductID: "MLB2", Qty: 1}
	a := &models.Product{SKU: "A", MyItemID: "MLB3520318133", Qty: 2}
	require.NoError(t, pf.Save(ctx, b))
	require.NoError(t, pf.Save(ctx, a))
	assert.NotEqual(t, uuid.Nil, a.ID)
	assert.False(t, a.UpdatedAt.IsZero())

	list, err = pf.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "A", list[0].SKU)
	assert.Equal(t, "B", list[1].SKU)

	t.Run("persists across reopen", func(t *testing.T) {
		reopened, err := NewProductFile(path)
		require.NoError(t, err)

		got, err := reopened.Get(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, "MLB2", got.MLProductID)

		_, err = os.Stat(path + ".tmp")
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("update pricing", func(t *testing.T) {
		sold := 9
		upd := *b
		upd.MLPrice = 89.9
		upd.MLSource = "buy_box"
		upd.SoldWinner = &sold
		upd.MarginAbs = 12.5
		upd.SKU = "ignored"
		require.NoError(t, pf.UpdatePricing(ctx, &upd))

		got, err := pf.Get(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, 89.9, got.MLPrice)
		assert.Equal(t, "buy_box", got.MLSource)
		assert.Equal(t, 12.5, got.MarginAbs)
		require.NotNil(t, got.SoldWinner)
		assert.Equal(t, 9, *got.SoldWinner)
		assert.Equal(t, "B", got.SKU, "non-pricing fields are untouched")
	})

	t.Run("returned products are copies", func(t *testing.T) {
		got, err := pf.Get(ctx, a.ID)
		require.NoError(t, err)
		got.SKU = "mutated"

		again, err := pf.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "A", again.SKU)
	})

	t.Run("unknown product", func(t *testing.T) {
		_, err := pf.Get(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, pf.UpdatePricing(ctx, &models.Product{ID: uuid.New()}), ErrNotFound)
		assert.ErrorIs(t, pf.Delete(ctx, uuid.New()), ErrNotFound)
	})

	t.Run("invalid product", func(t *testing.T) {
		assert.Error(t, pf.Save(ctx, &models.Product{SKU: "no ids"}))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, pf.Delete(ctx, a.ID))
		list, err := pf.List(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})
}

func TestNewProductFile_Errors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := NewProductFile(path)
	assert.Error(t, err)
}

func TestNewProductFile_AssignsMissingIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"sku":"X","ml_product_id":"MLB1","qty":1}]`), 0644))

	pf, err := NewProductFile(path)
	require.NoError(t, err)

	list, err := pf.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.NotEqual(t, uuid.Nil, list[0].ID)
}
