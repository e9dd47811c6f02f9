package refresh

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/maltedev/import-cost-control/internal/events"
	"github.com/maltedev/import-cost-control/internal/models"
)

type txRunner interface {
	Transaction(ctx context.Context, fn func(pgx.Tx) error) error
}

type productRepo interface {
	List(ctx context.Context) ([]*models.Product, error)
	UpdatePricingWithTx(ctx context.Context, tx pgx.Tx, p *models.Product) error
}

type changePublisher interface {
	PublishPriceChangedWithTx(ctx context.Context, tx pgx.Tx, payload *events.PriceChangedPayload) error
}

// DBStore writes pricing and the change event in one transaction.
type DBStore struct {
	db        txRunner
	products  productRepo
	publisher changePublisher
}

func NewDBStore(db txRunner, products productRepo, publisher changePublisher) *DBStore {
	return &DBStore{db: db, products: products, publisher: publisher}
}

func (s *DBStore) List(ctx context.Context) ([]*models.Product, error) {
	return s.products.List(ctx)
}

func (s *DBStore) SavePricing(ctx context.Context, p *models.Product, change *events.PriceChangedPayload) error {
	return s.db.Transaction(ctx, func(tx pgx.Tx) error {
		if err := s.products.UpdatePricingWithTx(ctx, tx, p); err != nil {
			return err
		}
		if change == nil {
			return nil
		}
		return s.publisher.PublishPriceChangedWithTx(ctx, tx, change)
	})
}

type productFile interface {
	List(ctx context.Context) ([]*models.Product, error)
	UpdatePricing(ctx context.Context, p *models.Product) error
}

// FileStore persists to the JSON product file. Changes are only logged.
type FileStore struct {
	file   productFile
	logger *slog.Logger
}

func NewFileStore(file productFile, logger *slog.Logger) *FileStore {
	return &FileStore{file: file, logger: logger.With("component", "file_store")}
}

func (s *FileStore) List(ctx context.Context) ([]*models.Product, error) {
	return s.file.List(ctx)
}

func (s *FileStore) SavePricing(ctx context.Context, p *models.Product, change *events.PriceChangedPayload) error {
	if err := s.file.UpdatePricing(ctx, p); err != nil {
		return err
	}
	if change != nil {
		s.logger.Info("price changed",
			"product_id", change.ProductID,
			"sku", change.SKU,
			"old_price", change.OldPrice,
			"new_price", change.NewPrice,
		)
	}
	return nil
}
