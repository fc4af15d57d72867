package order

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/foretdhiver1228/storefront/internal/cart"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type Order struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	CreatedAt      time.Time       `json:"created_at"`
	Total          decimal.Decimal `json:"total_amount"`
	Status         string          `json:"status"`
	PaymentMethod  string          `json:"payment_method"`
	Name           string          `json:"order_name"`
	PaymentKey     string          `json:"payment_key"`
	GatewayOrderID string          `json:"gateway_order_id,omitempty"`
	Items          []Item          `json:"order_items"`
}

type Item struct {
	ID              string          `json:"id"`
	OrderID         string          `json:"order_id"`
	ProductID       string          `json:"product_id"`
	ProductName     string          `json:"product_name,omitempty"`
	ImageURL        *string         `json:"image_url,omitempty"`
	Quantity        int             `json:"quantity"`
	PriceAtPurchase decimal.Decimal `json:"price_at_purchase"`
}

// Draft is everything the writer needs to persist one paid order. OrderID is
// fixed once per checkout run so a retried write can recognize its own order.
type Draft struct {
	OrderID        string
	UserID         string
	PaymentKey     string
	GatewayOrderID string
	PaymentMethod  string
	Amount         decimal.Decimal // verified by the gateway
	Lines          []cart.Line
}

// Total recomputes the order total from the frozen line prices.
func (d Draft) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range d.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Check rejects drafts that cannot become a valid order.
func (d Draft) Check() error {
	if d.UserID == "" || d.PaymentKey == "" {
		return fmt.Errorf("%w: user id and payment key are required", ErrInvalidDraft)
	}
	if len(d.Lines) == 0 {
		return ErrEmptyOrder
	}
	for _, l := range d.Lines {
		if l.Quantity < 1 {
			return fmt.Errorf("%w: product %s has quantity %d", ErrInvalidDraft, l.ProductID, l.Quantity)
		}
	}
	if total := d.Total(); !total.Equal(d.Amount) {
		return fmt.Errorf("%w: lines sum to %s, payment is %s", ErrAmountMismatch, total, d.Amount)
	}
	return nil
}

// DisplayName renders "<first product>" or "<first product> and N more".
func DisplayName(lines []cart.Line) string {
	switch len(lines) {
	case 0:
		return ""
	case 1:
		return lines[0].Name
	default:
		return fmt.Sprintf("%s and %d more", lines[0].Name, len(lines)-1)
	}
}

// WriteResult tells the caller whether the order was written by this draft's
// run, including an earlier attempt whose commit acknowledgement was lost, or
// already existed for the same payment key.
type WriteResult struct {
	OrderID string
	Created bool
}

// Reconcile resolves a draft against the order already stored under its
// payment key.
func (d Draft) Reconcile(orderID, ownerID string) (WriteResult, error) {
	if ownerID != d.UserID {
		return WriteResult{}, fmt.Errorf("%w: order %s", ErrPaymentKeyTaken, orderID)
	}
	return WriteResult{OrderID: orderID, Created: d.OrderID != "" && orderID == d.OrderID}, nil
}
