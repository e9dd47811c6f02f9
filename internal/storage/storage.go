// Package storage keeps saved products in a JSON file for setups without a
// database.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/import-cost-control/internal/models"
)

var ErrNotFound = errors.New("product not found")

type ProductFile struct {
	mu       sync.RWMutex
	products map[uuid.UUID]*models.Product
	filename string
	now      func() time.Time
}

func NewProductFile(filename string) (*ProductFile, error) {
	pf := &ProductFile{
		products: make(map[uuid.UUID]*models.Product),
		filename: filename,
		now:      time.Now,
	}

	if err := pf.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	return pf, nil
}

// List returns copies of all products ordered by SKU.
func (pf *ProductFile) List(ctx context.Context) ([]*models.Product, error) {
	pf.mu.RLock()
	defer pf.mu.RUnlock()

	out := make([]*models.Product, 0, len(pf.products))
	for _, p := range pf.products {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SKU != out[j].SKU {
			return out[i].SKU < out[j].SKU
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (pf *ProductFile) Get(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	pf.mu.RLock()
	defer pf.mu.RUnlock()

	p, ok := pf.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// Save inserts or replaces p. A missing id is generated.
func (pf *ProductFile) Save(ctx context.Context, p *models.Product) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if err := p.Validate(); err != nil {
		return err
	}

	pf.mu.Lock()
	defer pf.mu.Unlock()

	p.UpdatedAt = pf.now()
	cp := *p
	pf.products[p.ID] = &cp
	return pf.save()
}

// UpdatePricing copies the marketplace and margin fields of p onto the
// stored product.
func (pf *ProductFile) UpdatePricing(ctx context.Context, p *models.Product) error {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	stored, ok := pf.products[p.ID]
	if !ok {
		return ErrNotFound
	}

	p.UpdatedAt = pf.now()
	stored.MLPrice = p.MLPrice
	stored.MLSource = p.MLSource
	stored.MLItemID = p.MLItemID
	stored.SoldWinner = p.SoldWinner
	stored.SoldCatalogTotal = p.SoldCatalogTotal
	stored.CostUnitBRL = p.CostUnitBRL
	stored.MarginAbs = p.MarginAbs
	stored.MarginPct = p.MarginPct
	stored.UpdatedAt = p.UpdatedAt

	return pf.save()
}

func (pf *ProductFile) Delete(ctx context.Context, id uuid.UUID) error {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	if _, ok := pf.products[id]; !ok {
		return ErrNotFound
	}
	delete(pf.products, id)
	return pf.save()
}

func (pf *ProductFile) save() error {
	list := make([]*models.Product, 0, len(pf.products))
	for _, p := range pf.products {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID.String() < list[j].ID.String() })

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}

	// Write to temp file first for atomicity
	tmpFile := pf.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return err
	}

	return os.Rename(tmpFile, pf.filename)
}

func (pf *ProductFile) Load() error {
	data, err := os.ReadFile(pf.filename)
	if err != nil {
		return err
	}

	var list []*models.Product
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("failed to parse %s: %w", pf.filename, err)
	}

	pf.mu.Lock()
	defer pf.mu.Unlock()

	pf.products = make(map[uuid.UUID]*models.Product, len(list))
	for _, p := range list {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		pf.products[p.ID] = p
	}
	return nil
}
