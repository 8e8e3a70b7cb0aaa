package catalog

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("catalog: product not found")
	ErrNoSuchVariation   = errors.New("catalog: no variant matches the selection")
	ErrInvalidQuantity   = errors.New("catalog: quantity must be greater than zero")
	ErrInsufficientStock = errors.New("catalog: insufficient stock")
)

// Variation is a color/size combination with its own stock count.
type Variation struct {
	Color    string
	Size     string
	Quantity int
}

// Product carries the fields the checkout core touches. The rest of the
// catalog record (descriptions, images, pricing history) is owned by the
// catalog subsystem.
type Product struct {
	ID            string
	SellerID      string
	Name          string
	UnitPrice     int64
	StockQuantity int
	Variations    []Variation
	UpdatedAt     time.Time
}

// Deduct applies a sale of qty units against the product. Without a
// selector only the aggregate stock is checked and decremented. With a
// selector, the first variant (in declaration order) matching the selected
// axes is checked and decremented, and the aggregate moves by the same
// delta. The aggregate and the variant sum are not forced to agree; they
// are restocked independently by the catalog.
func (p *Product) Deduct(sel Selector, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	if sel.IsZero() {
		if p.StockQuantity < qty {
			return ErrInsufficientStock
		}
		p.StockQuantity -= qty
		p.touch()
		return nil
	}

	for i := range p.Variations {
		if !sel.Matches(p.Variations[i]) {
			continue
		}
		if p.Variations[i].Quantity < qty {
			return ErrInsufficientStock
		}
		p.Variations[i].Quantity -= qty
		p.StockQuantity -= qty
		p.touch()
		return nil
	}
	return ErrNoSuchVariation
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Variations = make([]Variation, len(p.Variations))
	copy(clone.Variations, p.Variations)
	return &clone
}

func (p *Product) touch() {
	p.UpdatedAt = time.Now().UTC()
}
