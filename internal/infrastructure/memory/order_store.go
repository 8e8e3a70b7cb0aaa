package memory

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/soko-labs/soko-checkout/internal/domain/order"
)

// OrderStore keeps orders in memory behind a mutex. It backs tests and
// local runs; the durable implementation lives in the postgres package.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
	byRef  map[string]string
}

func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders: make(map[string]*domain.Order),
		byRef:  make(map[string]string),
	}
}

func (s *OrderStore) Insert(ctx context.Context, o *domain.Order) error {
	_ = ctx
	if o == nil || o.ID == "" {
		return fmt.Errorf("order store: id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[o.ID]; exists {
		return domain.ErrConflict
	}
	s.orders[o.ID] = o.Clone()
	if o.TxRef != "" {
		s.byRef[o.TxRef] = o.ID
	}
	return nil
}

func (s *OrderStore) Get(ctx context.Context, id string) (*domain.Order, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return o.Clone(), nil
}

func (s *OrderStore) FindByTxRef(ctx context.Context, ref string) (*domain.Order, error) {
	_ = ctx
	if ref == "" {
		return nil, domain.ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byRef[ref]
	if !ok {
		return nil, domain.ErrNotFound
	}
	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return o.Clone(), nil
}

// Update is a compare-and-swap on the status: the write only lands when
// the stored order is still in from. Two confirmation paths racing for the
// same order therefore serialize here and the loser gets ErrConflict.
func (s *OrderStore) Update(ctx context.Context, o *domain.Order, from domain.Status) error {
	_ = ctx
	if o == nil || o.ID == "" {
		return fmt.Errorf("order store: id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.orders[o.ID]
	if !exists {
		return domain.ErrNotFound
	}
	if current.Status != from {
		return domain.ErrConflict
	}
	s.orders[o.ID] = o.Clone()
	if o.TxRef != "" {
		s.byRef[o.TxRef] = o.ID
	}
	return nil
}
