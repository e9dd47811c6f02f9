package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/import-cost-control/internal/models"
)

var ErrProductNotFound = errors.New("product not found")

const productColumns = `
	id, sku, description, ml_product_id, my_item_id,
	usd_unit, qty, freight_usd, declared_usd, fx,
	commission_pct, shipping_fee, revenue_tax_pct, icms_inside,
	ml_price, ml_source, ml_item_id, sold_winner, sold_catalog_total,
	cost_unit_brl, margin_abs, margin_pct, updated_at`

// ProductRepository persists saved products.
type ProductRepository struct {
	db *DB
}

func NewProductRepository(db *DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func scanProduct(row pgx.Row) (*models.Product, error) {
	p := &models.Product{}
	err := row.Scan(
		&p.ID, &p.SKU, &p.Description, &p.MLProductID, &p.MyItemID,
		&p.UnitUSD, &p.Qty, &p.FreightUSD, &p.DeclaredUSD, &p.FX,
		&p.CommissionPct, &p.ShippingFee, &p.RevenueTaxPct, &p.ICMSInside,
		&p.MLPrice, &p.MLSource, &p.MLItemID, &p.SoldWinner, &p.SoldCatalogTotal,
		&p.CostUnitBRL, &p.MarginAbs, &p.MarginPct, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *ProductRepository) List(ctx context.Context) ([]*models.Product, error) {
	rows, err := r.db.pool.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY sku, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return products, nil
}

func (r *ProductRepository) Get(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	row := r.db.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

// Save inserts or fully replaces a product.
func (r *ProductRepository) Save(ctx context.Context, p *models.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, NOW())
		ON CONFLICT (id) DO UPDATE SET
			sku = EXCLUDED.sku,
			description = EXCLUDED.description,
			ml_product_id = EXCLUDED.ml_product_id,
			my_item_id = EXCLUDED.my_item_id,
			usd_unit = EXCLUDED.usd_unit,
			qty = EXCLUDED.qty,
			freight_usd = EXCLUDED.freight_usd,
			declared_usd = EXCLUDED.declared_usd,
			fx = EXCLUDED.fx,
			commission_pct = EXCLUDED.commission_pct,
			shipping_fee = EXCLUDED.shipping_fee,
			revenue_tax_pct = EXCLUDED.revenue_tax_pct,
			icms_inside = EXCLUDED.icms_inside,
			ml_price = EXCLUDED.ml_price,
			ml_source = EXCLUDED.ml_source,
			ml_item_id = EXCLUDED.ml_item_id,
			sold_winner = EXCLUDED.sold_winner,
			sold_catalog_total = EXCLUDED.sold_catalog_total,
			cost_unit_brl = EXCLUDED.cost_unit_brl,
			margin_abs = EXCLUDED.margin_abs,
			margin_pct = EXCLUDED.margin_pct,
			updated_at = NOW()
		RETURNING updated_at`

	err := r.db.pool.QueryRow(ctx, query,
		p.ID, p.SKU, p.Description, p.MLProductID, p.MyItemID,
		p.UnitUSD, p.Qty, p.FreightUSD, p.DeclaredUSD, p.FX,
		p.CommissionPct, p.ShippingFee, p.RevenueTaxPct, p.ICMSInside,
		p.MLPrice, p.MLSource, p.MLItemID, p.SoldWinner, p.SoldCatalogTotal,
		p.CostUnitBRL, p.MarginAbs, p.MarginPct,
	).Scan(&p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save product: %w", err)
	}

	return nil
}

// UpdatePricingWithTx writes the marketplace price and derived margin of p.
func (r *ProductRepository) UpdatePricingWithTx(ctx context.Context, tx pgx.Tx, p *models.Product) error {
	query := `
		UPDATE products SET
			ml_price = $2,
			ml_source = $3,
			ml_item_id = $4,
			sold_winner = $5,
			sold_catalog_total = $6,
			cost_unit_brl = $7,
			margin_abs = $8,
			margin_pct = $9,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := tx.QueryRow(ctx, query,
		p.ID, p.MLPrice, p.MLSource, p.MLItemID, p.SoldWinner, p.SoldCatalogTotal,
		p.CostUnitBRL, p.MarginAbs, p.MarginPct,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update product pricing: %w", err)
	}

	return nil
}

func (r *ProductRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}
