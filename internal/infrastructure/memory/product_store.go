package memory

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/soko-labs/soko-checkout/internal/domain/catalog"
)

// ProductStore keeps catalog records in memory. Decrement runs the whole
// check-and-decrement under the lock, which gives the same at-most-one
// winner guarantee for the last unit of stock that the conditional SQL
// update gives in the postgres implementation.
type ProductStore struct {
	mu       sync.RWMutex
	products map[string]*domain.Product
}

func NewProductStore() *ProductStore {
	return &ProductStore{products: make(map[string]*domain.Product)}
}

func (s *ProductStore) Get(ctx context.Context, id string) (*domain.Product, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (s *ProductStore) Save(ctx context.Context, p *domain.Product) error {
	_ = ctx
	if p == nil || p.ID == "" {
		return fmt.Errorf("product store: id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.products[p.ID] = p.Clone()
	return nil
}

func (s *ProductStore) Decrement(ctx context.Context, id string, sel domain.Selector, qty int) (int, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return 0, domain.ErrNotFound
	}

	updated := p.Clone()
	if err := updated.Deduct(sel, qty); err != nil {
		return p.StockQuantity, err
	}
	s.products[id] = updated
	return updated.StockQuantity, nil
}
