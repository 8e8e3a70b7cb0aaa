package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soko-labs/soko-checkout/internal/domain/catalog"
)

func TestProductStoreDecrement(t *testing.T) {
	s := NewProductStore()
	require.NoError(t, s.Save(context.Background(), &catalog.Product{ID: "p1", StockQuantity: 5}))

	remaining, err := s.Decrement(context.Background(), "p1", catalog.Selector{}, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)

	_, err = s.Decrement(context.Background(), "p1", catalog.Selector{}, 4)
	assert.ErrorIs(t, err, catalog.ErrInsufficientStock)

	got, err := s.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.StockQuantity, "a rejected decrement leaves stock untouched")
}

func TestProductStoreDecrementUnknownProduct(t *testing.T) {
	s := NewProductStore()
	_, err := s.Decrement(context.Background(), "ghost", catalog.Selector{}, 1)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestProductStoreNeverOversells(t *testing.T) {
	s := NewProductStore()
	require.NoError(t, s.Save(context.Background(), &catalog.Product{ID: "p1", StockQuantity: 3}))

	const buyers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	sold := 0

	wg.Add(buyers)
	for i := 0; i < buyers; i++ {
		go func() {
			defer wg.Done()
			if _, err := s.Decrement(context.Background(), "p1", catalog.Selector{}, 1); err == nil {
				mu.Lock()
				sold++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, sold, "exactly the available units are sold")
	got, err := s.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.StockQuantity)
}

func TestProductStoreGetReturnsCopy(t *testing.T) {
	s := NewProductStore()
	require.NoError(t, s.Save(context.Background(), &catalog.Product{
		ID:            "p1",
		StockQuantity: 5,
		Variations:    []catalog.Variation{{Color: "red", Size: "M", Quantity: 5}},
	}))

	got, err := s.Get(context.Background(), "p1")
	require.NoError(t, err)
	got.Variations[0].Quantity = 0

	again, err := s.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, again.Variations[0].Quantity)
}
