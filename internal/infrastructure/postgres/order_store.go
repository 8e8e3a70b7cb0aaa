package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soko-labs/soko-checkout/internal/domain/catalog"
	domain "github.com/soko-labs/soko-checkout/internal/domain/order"
)

// OrderStore persists orders and their line items. Line items and the
// amount are written once at insert and never touched by Update.
type OrderStore struct {
	pool *pgxpool.Pool
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

func (s *OrderStore) Insert(ctx context.Context, o *domain.Order) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, customer_id, status, tx_ref, amount, shipping_address, delivery_preference, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		o.ID, o.CustomerID, string(o.Status), nullable(o.TxRef), o.Amount(),
		o.ShippingAddress, o.DeliveryPreference, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrConflict
		}
		return err
	}

	for pos, it := range o.Items() {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (order_id, position, product_id, seller_id, quantity, unit_price, variation_color, variation_size, seller_payment)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			o.ID, pos, it.ProductID, it.SellerID, it.Quantity, it.UnitPrice,
			it.Variation.Color, it.Variation.Size, string(it.SellerPayment),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *OrderStore) Get(ctx context.Context, id string) (*domain.Order, error) {
	return s.findOne(ctx, `WHERE id = $1`, id)
}

func (s *OrderStore) FindByTxRef(ctx context.Context, ref string) (*domain.Order, error) {
	if ref == "" {
		return nil, domain.ErrNotFound
	}
	return s.findOne(ctx, `WHERE tx_ref = $1`, ref)
}

// Update rewrites only the fields the checkout core owns. The status
// precondition makes the write a compare-and-swap: when another path
// already moved the order out of from, zero rows match and ErrConflict
// is returned without touching the row.
func (s *OrderStore) Update(ctx context.Context, o *domain.Order, from domain.Status) error {
	var (
		payRef         *string
		payAmount      *int64
		payPayer       *string
		payConfirmedAt *time.Time
	)
	if pd := o.PaymentDetails; pd != nil {
		payRef, payAmount, payPayer, payConfirmedAt = &pd.Ref, &pd.Amount, &pd.Payer, &pd.ConfirmedAt
	}

	ct, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET status = $2, tx_ref = $3,
		    payment_ref = $4, payment_amount = $5, payment_payer = $6, payment_confirmed_at = $7,
		    updated_at = $8
		WHERE id = $1 AND status = $9`,
		o.ID, string(o.Status), nullable(o.TxRef),
		payRef, payAmount, payPayer, payConfirmedAt,
		o.UpdatedAt, string(from),
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		var exists bool
		if perr := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, o.ID).Scan(&exists); perr != nil {
			return perr
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrConflict
	}
	return nil
}

func (s *OrderStore) findOne(ctx context.Context, where string, arg any) (*domain.Order, error) {
	var (
		rec            domain.Order
		status, txRef  string
		amount         int64
		payRef         *string
		payAmount      *int64
		payPayer       *string
		payConfirmedAt *time.Time
	)
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT id, customer_id, status, COALESCE(tx_ref, ''), amount,
		       payment_ref, payment_amount, payment_payer, payment_confirmed_at,
		       shipping_address, delivery_preference, created_at, updated_at
		FROM orders %s`, where), arg,
	).Scan(
		&rec.ID, &rec.CustomerID, &status, &txRef, &amount,
		&payRef, &payAmount, &payPayer, &payConfirmedAt,
		&rec.ShippingAddress, &rec.DeliveryPreference, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.Status = domain.Status(status)
	rec.TxRef = txRef
	if payRef != nil {
		rec.PaymentDetails = &domain.PaymentDetails{Ref: *payRef}
		if payAmount != nil {
			rec.PaymentDetails.Amount = *payAmount
		}
		if payPayer != nil {
			rec.PaymentDetails.Payer = *payPayer
		}
		if payConfirmedAt != nil {
			rec.PaymentDetails.ConfirmedAt = *payConfirmedAt
		}
	}

	items, err := s.loadItems(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	return domain.Rehydrate(rec, items, amount), nil
}

func (s *OrderStore) loadItems(ctx context.Context, orderID string) ([]domain.LineItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT product_id, seller_id, quantity, unit_price, variation_color, variation_size, seller_payment
		FROM order_items
		WHERE order_id = $1
		ORDER BY position`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.LineItem
	for rows.Next() {
		var (
			it          domain.LineItem
			color, size string
			sellerPay   string
		)
		if err := rows.Scan(&it.ProductID, &it.SellerID, &it.Quantity, &it.UnitPrice, &color, &size, &sellerPay); err != nil {
			return nil, err
		}
		it.Variation = catalog.Selector{Color: color, Size: size}
		it.SellerPayment = domain.SellerPaymentStatus(sellerPay)
		items = append(items, it)
	}
	return items, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
