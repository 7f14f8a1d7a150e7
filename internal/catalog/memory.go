package catalog

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/catapult/ardcube/internal/query"
	"github.com/catapult/ardcube/pkg/raster"
)

// Memory is an in-process catalog. It is safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	products map[string]Product
	datasets map[string][]Dataset
}

// NewMemory returns an empty in-memory catalog.
func NewMemory() *Memory {
	return &Memory{
		products: make(map[string]Product),
		datasets: make(map[string][]Dataset),
	}
}

// AddProduct registers or replaces a product definition.
func (m *Memory) AddProduct(p Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.Name] = p
}

// Index adds a dataset to a registered product.
func (m *Memory) Index(_ context.Context, product string, d Dataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[product]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProduct, product)
	}
	if err := d.validate(p); err != nil {
		return err
	}
	m.datasets[product] = append(m.datasets[product], d)
	return nil
}

// Load implements Catalog.
func (m *Memory) Load(ctx context.Context, product string, q query.Query) (*raster.Stack, error) {
	m.mu.RLock()
	p, ok := m.products[product]
	datasets := slices.Clone(m.datasets[product])
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, product)
	}

	recs := make([]record, len(datasets))
	for i, d := range datasets {
		recs[i] = record{
			id:   d.ID,
			time: d.Time,
			grid: d.Grid,
			fetch: func(_ context.Context, measurement string) ([]float64, error) {
				return d.Bands[measurement], nil
			},
		}
	}
	return assemble(ctx, p, recs, q)
}

// Close implements Catalog.
func (m *Memory) Close() error { return nil }
