// Package cart stores per-user cart lines and provides the consistent
// snapshot and the targeted clear used when an order is finalized.
package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

type Repository interface {
	AddItem(ctx context.Context, userID, productID string, qty int) (*Item, error)
	List(ctx context.Context, userID string) ([]Item, error)
	RemoveSelected(ctx context.Context, userID string, itemIDs []string) (int64, error)
	Clear(ctx context.Context, userID string) (int64, error)
}

type PGRepo struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db, now: time.Now} }

// AddItem inserts the product into the cart or, when it is already there,
// increments the existing row's quantity.
func (r *PGRepo) AddItem(ctx context.Context, userID, productID string, qty int) (*Item, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if qty < 1 {
		return nil, ErrInvalidQuantity
	}
	if _, err := uuid.Parse(productID); err != nil {
		return nil, ErrProductNotFound
	}

	var it Item
	err := r.db.QueryRow(ctx, `
		INSERT INTO cart_items (id, user_id, product_id, quantity, created_at)
		VALUES ($1,$2,$3,$4,NOW())
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING id, product_id, quantity, created_at
	`, uuid.NewString(), userID, productID, qty).Scan(&it.ID, &it.ProductID, &it.Quantity, &it.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return &it, nil
}

func (r *PGRepo) List(ctx context.Context, userID string) ([]Item, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT c.id, c.product_id, c.quantity, p.name, p.price::text, p.image_url, c.created_at
		FROM cart_items c
		JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1
		ORDER BY c.created_at, c.id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Item{}
	for rows.Next() {
		var (
			it    Item
			price string
		)
		if err := rows.Scan(&it.ID, &it.ProductID, &it.Quantity, &it.Name, &price, &it.ImageURL, &it.CreatedAt); err != nil {
			return nil, err
		}
		if it.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("cart item %s: bad price %q: %w", it.ID, price, err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *PGRepo) RemoveSelected(ctx context.Context, userID string, itemIDs []string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if len(itemIDs) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `
		DELETE FROM cart_items
		WHERE user_id = $1 AND id::text = ANY($2::text[])
	`, userID, itemIDs)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PGRepo) Clear(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Snapshot reads cart lines together with current product prices in one
// statement, so both come from the same database snapshot.
func (r *PGRepo) Snapshot(ctx context.Context, userID string) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT c.product_id, p.name, p.price::text, c.quantity
		FROM cart_items c
		JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1
		ORDER BY c.created_at, c.id
	`, userID)
	if err != nil {
		return Snapshot{}, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var (
			l     Line
			price string
		)
		if err := rows.Scan(&l.ProductID, &l.Name, &price, &l.Quantity); err != nil {
			return Snapshot{}, err
		}
		if l.Price, err = decimal.NewFromString(price); err != nil {
			return Snapshot{}, fmt.Errorf("product %s: bad price %q: %w", l.ProductID, price, err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}
	return NewSnapshot(userID, lines, r.now().UTC()), nil
}

// ClearLines removes what the given lines accounted for. A row whose quantity
// grew after the snapshot keeps the difference, and rows for products that
// were not in the snapshot are left alone.
func (r *PGRepo) ClearLines(ctx context.Context, userID string, lines []Line) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, l := range lines {
		tag, err := tx.Exec(ctx, `
			DELETE FROM cart_items
			WHERE user_id = $1 AND product_id = $2 AND quantity <= $3
		`, userID, l.ProductID, l.Quantity)
		if err != nil {
			return fmt.Errorf("clear %s: %w", l.ProductID, err)
		}
		if tag.RowsAffected() > 0 {
			continue
		}
		if _, err := tx.Exec(ctx, `
			UPDATE cart_items
			SET quantity = quantity - $3
			WHERE user_id = $1 AND product_id = $2 AND quantity > $3
		`, userID, l.ProductID, l.Quantity); err != nil {
			return fmt.Errorf("decrement %s: %w", l.ProductID, err)
		}
	}
	return tx.Commit(ctx)
}
