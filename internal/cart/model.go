package cart

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is a cart row joined with the product fields the storefront shows.
type Item struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	ImageURL  *string         `json:"image_url,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Line is one (product, quantity) pair frozen at snapshot time.
type Line struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

func (l Line) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Snapshot is the cart and its prices read at a single instant.
type Snapshot struct {
	UserID  string          `json:"user_id"`
	Lines   []Line          `json:"lines"`
	Total   decimal.Decimal `json:"total"`
	TakenAt time.Time       `json:"taken_at"`
}

func NewSnapshot(userID string, lines []Line, at time.Time) Snapshot {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return Snapshot{UserID: userID, Lines: lines, Total: total, TakenAt: at}
}

func (s Snapshot) Empty() bool { return len(s.Lines) == 0 }

// AddItemRequest payload for adding a product to the cart.
// swagger:model AddItemRequest
type AddItemRequest struct {
	ProductID string `json:"product_id" example:"4e7d4e5c-5cb9-4a3f-9f21-7e1a4f9f2b2a"`
	Quantity  int    `json:"quantity"   example:"1"`
}

// DeleteSelectedRequest payload for removing chosen cart rows.
// swagger:model DeleteSelectedRequest
type DeleteSelectedRequest struct {
	ItemIDs []string `json:"itemIds"`
}
