package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/soko-labs/soko-checkout/internal/domain/catalog"
)

// ProductStore is the durable inventory ledger. Decrements are conditional
// updates guarded by the current quantity, so two checkouts racing for the
// last unit serialize on the row and at most one wins.
type ProductStore struct {
	pool *pgxpool.Pool
}

func NewProductStore(pool *pgxpool.Pool) *ProductStore {
	return &ProductStore{pool: pool}
}

func (s *ProductStore) Get(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.pool.QueryRow(ctx, `
		SELECT id, seller_id, name, unit_price, stock_quantity, updated_at
		FROM products WHERE id = $1`, id,
	).Scan(&p.ID, &p.SellerID, &p.Name, &p.UnitPrice, &p.StockQuantity, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT color, size, quantity
		FROM product_variations
		WHERE product_id = $1
		ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var v domain.Variation
		if err := rows.Scan(&v.Color, &v.Size, &v.Quantity); err != nil {
			return nil, err
		}
		p.Variations = append(p.Variations, v)
	}
	return &p, rows.Err()
}

func (s *ProductStore) Save(ctx context.Context, p *domain.Product) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO products (id, seller_id, name, unit_price, stock_quantity, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE
		SET seller_id=$2, name=$3, unit_price=$4, stock_quantity=$5, updated_at=$6`,
		p.ID, p.SellerID, p.Name, p.UnitPrice, p.StockQuantity, p.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if _, err = tx.Exec(ctx, `DELETE FROM product_variations WHERE product_id = $1`, p.ID); err != nil {
		return err
	}
	for pos, v := range p.Variations {
		_, err = tx.Exec(ctx, `
			INSERT INTO product_variations (product_id, position, color, size, quantity)
			VALUES ($1,$2,$3,$4,$5)`,
			p.ID, pos, v.Color, v.Size, v.Quantity,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Decrement applies one sale. Aggregate sales are a single guarded update;
// variant sales lock the variant rows, pick the first match in declaration
// order, then move the variant and aggregate quantities by the same delta.
func (s *ProductStore) Decrement(ctx context.Context, id string, sel domain.Selector, qty int) (int, error) {
	if qty <= 0 {
		return 0, domain.ErrInvalidQuantity
	}
	if sel.IsZero() {
		return s.decrementAggregate(ctx, id, qty)
	}
	return s.decrementVariant(ctx, id, sel, qty)
}

func (s *ProductStore) decrementAggregate(ctx context.Context, id string, qty int) (int, error) {
	var remaining int
	err := s.pool.QueryRow(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity - $2, updated_at = now()
		WHERE id = $1 AND stock_quantity >= $2
		RETURNING stock_quantity`, id, qty,
	).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		// Guard failed: distinguish missing product from short stock.
		var current int
		probe := s.pool.QueryRow(ctx, `SELECT stock_quantity FROM products WHERE id = $1`, id).Scan(&current)
		if errors.Is(probe, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		if probe != nil {
			return 0, probe
		}
		return current, domain.ErrInsufficientStock
	}
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

func (s *ProductStore) decrementVariant(ctx context.Context, id string, sel domain.Selector, qty int) (int, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT position, color, size, quantity
		FROM product_variations
		WHERE product_id = $1
		ORDER BY position
		FOR UPDATE`, id)
	if err != nil {
		return 0, err
	}

	type variantRow struct {
		position int
		v        domain.Variation
	}
	var match *variantRow
	found := false
	for rows.Next() {
		var r variantRow
		if err := rows.Scan(&r.position, &r.v.Color, &r.v.Size, &r.v.Quantity); err != nil {
			rows.Close()
			return 0, err
		}
		found = true
		if match == nil && sel.Matches(r.v) {
			match = &r
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if !found {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists); err != nil {
			return 0, err
		}
		if !exists {
			return 0, domain.ErrNotFound
		}
	}
	if match == nil {
		return 0, domain.ErrNoSuchVariation
	}
	if match.v.Quantity < qty {
		return 0, domain.ErrInsufficientStock
	}

	ct, err := tx.Exec(ctx, `
		UPDATE product_variations
		SET quantity = quantity - $3
		WHERE product_id = $1 AND position = $2 AND quantity >= $3`,
		id, match.position, qty)
	if err != nil {
		return 0, err
	}
	if ct.RowsAffected() == 0 {
		return 0, domain.ErrInsufficientStock
	}

	var remaining int
	err = tx.QueryRow(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity - $2, updated_at = now()
		WHERE id = $1
		RETURNING stock_quantity`, id, qty,
	).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return remaining, tx.Commit(ctx)
}
