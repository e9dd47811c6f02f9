// Package refresh re-resolves the marketplace price of every saved product
// and recomputes its margin.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/import-cost-control/internal/events"
	"github.com/maltedev/import-cost-control/internal/models"
	"github.com/maltedev/import-cost-control/internal/ratelimit"
	"github.com/maltedev/import-cost-control/internal/resolver"
)

// Store lists saved products and persists refreshed pricing. change is nil
// when the price did not move.
type Store interface {
	List(ctx context.Context) ([]*models.Product, error)
	SavePricing(ctx context.Context, p *models.Product, change *events.PriceChangedPayload) error
}

type PriceResolver interface {
	Resolve(ctx context.Context, req resolver.Request) resolver.Result
}

// Flusher delivers pending outbox events right after a pass.
type Flusher interface {
	Flush(ctx context.Context) (int, error)
}

// feedback is implemented by limiters that adapt to upstream errors.
type feedback interface {
	RecordSuccess()
	RecordError()
}

type Failure struct {
	ProductID string `json:"product_id"`
	SKU       string `json:"sku,omitempty"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message,omitempty"`
}

// Summary describes one refresh pass.
type Summary struct {
	Total     int       `json:"total"`
	Updated   int       `json:"updated"`
	Changed   int       `json:"changed"`
	Failed    int       `json:"failed"`
	Published int       `json:"published"`
	Failures  []Failure `json:"failures,omitempty"`
	Duration  string    `json:"duration"`
}

type Job struct {
	store    Store
	resolver PriceResolver
	limiter  ratelimit.RateLimiter
	flusher  Flusher
	logger   *slog.Logger
}

// NewJob wires a refresh job. flusher may be nil.
func NewJob(store Store, res PriceResolver, limiter ratelimit.RateLimiter, flusher Flusher, logger *slog.Logger) *Job {
	return &Job{
		store:    store,
		resolver: res,
		limiter:  limiter,
		flusher:  flusher,
		logger:   logger.With("component", "refresh"),
	}
}

// Run performs one pass over all saved products. A failed product does not
// stop the pass; only listing errors and context cancellation do.
func (j *Job) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	summary := &Summary{}

	products, err := j.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	summary.Total = len(products)

	j.logger.Info("refresh started", "products", len(products))

	for _, p := range products {
		if j.limiter != nil {
			if err := j.limiter.Wait(ctx); err != nil {
				summary.Duration = time.Since(start).String()
				return summary, err
			}
		}

		changed, err := j.refreshOne(ctx, p, summary)
		if err != nil {
			j.logger.Error("failed to save pricing", "product_id", p.ID, "error", err)
			summary.Failed++
			summary.Failures = append(summary.Failures, Failure{
				ProductID: p.ID.String(),
				SKU:       p.SKU,
				ErrorCode: resolver.ErrInternal,
				Message:   err.Error(),
			})
			continue
		}
		if changed {
			summary.Changed++
		}
	}

	if j.flusher != nil && summary.Changed > 0 {
		n, err := j.flusher.Flush(ctx)
		if err != nil {
			j.logger.Warn("outbox flush failed", "error", err)
		}
		summary.Published = n
	}

	summary.Duration = time.Since(start).String()
	j.logger.Info("refresh finished",
		"total", summary.Total,
		"updated", summary.Updated,
		"changed", summary.Changed,
		"failed", summary.Failed,
		"published", summary.Published,
		"duration", summary.Duration,
	)

	return summary, nil
}

func (j *Job) refreshOne(ctx context.Context, p *models.Product, summary *Summary) (bool, error) {
	res := j.resolver.Resolve(ctx, resolver.Request{
		ProductInput: p.MLProductID,
		MyItemID:     p.MyItemID,
	})

	fb, adaptive := j.limiter.(feedback)

	if !res.OK {
		if adaptive && res.ErrorCode == resolver.ErrUpstream {
			fb.RecordError()
		}
		j.logger.Warn("price not resolved",
			"product_id", p.ID,
			"sku", p.SKU,
			"error_code", res.ErrorCode,
			"message", res.Message,
		)
		summary.Failed++
		summary.Failures = append(summary.Failures, Failure{
			ProductID: p.ID.String(),
			SKU:       p.SKU,
			ErrorCode: res.ErrorCode,
			Message:   res.Message,
		})
		return false, nil
	}
	if adaptive {
		fb.RecordSuccess()
	}

	oldPrice := p.MLPrice
	p.MLPrice = res.Price
	p.MLSource = string(res.Source)
	p.MLItemID = res.ItemID
	p.SoldWinner = res.SoldWinner
	p.SoldCatalogTotal = res.SoldCatalogTotal
	p.Recalculate()

	var change *events.PriceChangedPayload
	if oldPrice != res.Price {
		change = &events.PriceChangedPayload{
			ProductID:   p.ID.String(),
			SKU:         p.SKU,
			MLProductID: p.MLProductID,
			ItemID:      res.ItemID,
			Source:      string(res.Source),
			OldPrice:    oldPrice,
			NewPrice:    res.Price,
			MarginAbs:   p.MarginAbs,
			MarginPct:   p.MarginPct,
		}
	}

	if err := j.store.SavePricing(ctx, p, change); err != nil {
		return false, err
	}
	summary.Updated++

	j.logger.Debug("product refreshed",
		"product_id", p.ID,
		"price", res.Price,
		"source", res.Source,
		"margin_pct", p.MarginPct,
	)

	return change != nil, nil
}

// Loop runs a pass immediately and then every interval until ctx is done.
func (j *Job) Loop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := j.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			j.logger.Error("refresh pass failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
