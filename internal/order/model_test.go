package order

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/foretdhiver1228/storefront/internal/cart"
)

func sampleLines() []cart.Line {
	return []cart.Line{
		{ProductID: "a", Name: "Lamp", Price: decimal.NewFromInt(10000), Quantity: 2},
		{ProductID: "b", Name: "Mug", Price: decimal.NewFromInt(5000), Quantity: 1},
	}
}

func TestDraftCheck(t *testing.T) {
	d := Draft{UserID: "u1", PaymentKey: "pk", Amount: decimal.NewFromInt(25000), Lines: sampleLines()}
	if err := d.Check(); err != nil {
		t.Fatalf("valid draft: %v", err)
	}
	if !d.Total().Equal(decimal.NewFromInt(25000)) {
		t.Fatalf("total=%s", d.Total())
	}

	d.Amount = decimal.NewFromInt(20000)
	if err := d.Check(); !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("mismatch err=%v", err)
	}

	d.Lines = nil
	if err := d.Check(); !errors.Is(err, ErrEmptyOrder) {
		t.Fatalf("empty err=%v", err)
	}

	d = Draft{UserID: "u1", Amount: decimal.NewFromInt(25000), Lines: sampleLines()}
	if err := d.Check(); !errors.Is(err, ErrInvalidDraft) {
		t.Fatalf("missing payment key err=%v", err)
	}
}

func TestDraftCheck_ScaleInsensitive(t *testing.T) {
	d := Draft{UserID: "u1", PaymentKey: "pk", Amount: decimal.RequireFromString("25000.00"), Lines: sampleLines()}
	if err := d.Check(); err != nil {
		t.Fatalf("25000.00 should equal 25000: %v", err)
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName(sampleLines()); got != "Lamp and 1 more" {
		t.Fatalf("name=%q", got)
	}
	if got := DisplayName(sampleLines()[:1]); got != "Lamp" {
		t.Fatalf("name=%q", got)
	}
	if got := DisplayName(nil); got != "" {
		t.Fatalf("name=%q", got)
	}
}

func TestDraftReconcile(t *testing.T) {
	d := Draft{OrderID: "o-1", UserID: "u1", PaymentKey: "pk"}

	res, err := d.Reconcile("o-1", "u1")
	if err != nil || !res.Created || res.OrderID != "o-1" {
		t.Fatalf("own earlier attempt: res=%+v err=%v", res, err)
	}

	res, err = d.Reconcile("o-2", "u1")
	if err != nil || res.Created || res.OrderID != "o-2" {
		t.Fatalf("other run of same user: res=%+v err=%v", res, err)
	}

	if _, err := d.Reconcile("o-3", "u2"); !errors.Is(err, ErrPaymentKeyTaken) {
		t.Fatalf("expected ErrPaymentKeyTaken, got %v", err)
	}

	if res, _ := (Draft{UserID: "u1"}).Reconcile("o-1", "u1"); res.Created {
		t.Fatal("draft without an order id never claims an existing order")
	}
}
