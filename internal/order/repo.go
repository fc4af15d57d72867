package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("order not found")
	ErrEmptyOrder      = errors.New("order has no items")
	ErrAmountMismatch  = errors.New("order total does not match payment amount")
	ErrInvalidDraft    = errors.New("invalid order draft")
	ErrPaymentKeyTaken = errors.New("payment key belongs to another user's order")
)

type Repository interface {
	Write(ctx context.Context, d Draft) (WriteResult, error)
	FindByPaymentKey(ctx context.Context, paymentKey string) (*Order, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Order, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

// Write persists the order header and its items in one transaction. Writers
// for the same user are serialized by an advisory lock, and a payment key that
// already produced an order is resolved with Draft.Reconcile instead of
// writing a second one.
func (r *PGRepo) Write(ctx context.Context, d Draft) (WriteResult, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return WriteResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, d.UserID); err != nil {
		return WriteResult{}, fmt.Errorf("advisory lock: %w", err)
	}

	id, owner, err := existingOrder(ctx, tx, d.PaymentKey)
	if err != nil {
		return WriteResult{}, err
	}
	if id != "" {
		return d.Reconcile(id, owner)
	}

	if err := d.Check(); err != nil {
		return WriteResult{}, err
	}

	orderID := d.OrderID
	if orderID == "" {
		orderID = uuid.NewString()
	}
	var inserted string
	err = tx.QueryRow(ctx, `
		INSERT INTO orders (id, user_id, created_at, total_amount, status, payment_method, order_name, payment_key, gateway_order_id)
		VALUES ($1,$2,NOW(),$3,$4,$5,$6,$7,$8)
		ON CONFLICT (payment_key) DO NOTHING
		RETURNING id
	`, orderID, d.UserID, d.Amount.String(), StatusCompleted, d.PaymentMethod,
		DisplayName(d.Lines), d.PaymentKey, d.GatewayOrderID).Scan(&inserted)
	if errors.Is(err, pgx.ErrNoRows) {
		// Another writer committed the same payment key first.
		id, owner, err := existingOrder(ctx, tx, d.PaymentKey)
		if err != nil {
			return WriteResult{}, err
		}
		return d.Reconcile(id, owner)
	}
	if err != nil {
		return WriteResult{}, fmt.Errorf("insert order: %w", err)
	}

	batch := &pgx.Batch{}
	for i, l := range d.Lines {
		batch.Queue(`
			INSERT INTO order_items (id, order_id, product_id, position, quantity, price_at_purchase)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, uuid.NewString(), inserted, l.ProductID, i, l.Quantity, l.Price.String())
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return WriteResult{}, fmt.Errorf("insert order items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return WriteResult{}, err
	}
	return WriteResult{OrderID: inserted, Created: true}, nil
}

func existingOrder(ctx context.Context, tx pgx.Tx, paymentKey string) (id, owner string, err error) {
	err = tx.QueryRow(ctx, `SELECT id, user_id FROM orders WHERE payment_key = $1`, paymentKey).Scan(&id, &owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", nil
	}
	return id, owner, err
}

const orderColumns = `id, user_id, created_at, total_amount::text, status, payment_method, order_name, payment_key, COALESCE(gateway_order_id, '')`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o     Order
		total string
	)
	if err := row.Scan(&o.ID, &o.UserID, &o.CreatedAt, &total, &o.Status, &o.PaymentMethod, &o.Name, &o.PaymentKey, &o.GatewayOrderID); err != nil {
		return Order{}, err
	}
	d, err := decimal.NewFromString(total)
	if err != nil {
		return Order{}, fmt.Errorf("order %s: bad total %q: %w", o.ID, total, err)
	}
	o.Total = d
	return o, nil
}

func (r *PGRepo) FindByPaymentKey(ctx context.Context, paymentKey string) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_key = $1`, paymentKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// ListByUser returns the user's orders, newest first, each with its items.
func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Order{}
	index := map[string]int{}
	ids := []string{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		o.Items = []Item{}
		index[o.ID] = len(out)
		ids = append(ids, o.ID)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	itemRows, err := r.db.Query(ctx, `
		SELECT i.id, i.order_id, i.product_id, p.name, p.image_url, i.quantity, i.price_at_purchase::text
		FROM order_items i
		JOIN products p ON p.id = i.product_id
		WHERE i.order_id::text = ANY($1::text[])
		ORDER BY i.order_id, i.position
	`, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var (
			it    Item
			price string
		)
		if err := itemRows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.ImageURL, &it.Quantity, &price); err != nil {
			return nil, err
		}
		if it.PriceAtPurchase, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("order item %s: bad price %q: %w", it.ID, price, err)
		}
		i := index[it.OrderID]
		out[i].Items = append(out[i].Items, it)
	}
	return out, itemRows.Err()
}
