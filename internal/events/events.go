// Package events publishes checkout outcomes for downstream consumers.
package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type OrderCompleted struct {
	EventID     string          `json:"event_id"`
	OrderID     string          `json:"order_id"`
	UserID      string          `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	PaymentKey  string          `json:"payment_key"`
	At          time.Time       `json:"at"`
}

// CartCleanupPending records an order whose cart lines could not be removed,
// for a reconciliation consumer to retry.
type CartCleanupPending struct {
	EventID string         `json:"event_id"`
	OrderID string         `json:"order_id"`
	UserID  string         `json:"user_id"`
	Lines   map[string]int `json:"lines"`
	Reason  string         `json:"reason"`
	At      time.Time      `json:"at"`
}

type Publisher interface {
	OrderCompleted(ctx context.Context, e OrderCompleted) error
	CartCleanupPending(ctx context.Context, e CartCleanupPending) error
}

// Nop drops every event; used when no brokers are configured.
type Nop struct{}

func (Nop) OrderCompleted(context.Context, OrderCompleted) error         { return nil }
func (Nop) CartCleanupPending(context.Context, CartCleanupPending) error { return nil }
func (Nop) Close() error                                                 { return nil }
