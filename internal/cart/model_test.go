package cart

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNewSnapshot_Total(t *testing.T) {
	lines := []Line{
		{ProductID: "a", Name: "A", Price: decimal.NewFromInt(10000), Quantity: 2},
		{ProductID: "b", Name: "B", Price: decimal.NewFromInt(5000), Quantity: 1},
	}
	s := NewSnapshot("u1", lines, time.Now())
	if !s.Total.Equal(decimal.NewFromInt(25000)) {
		t.Fatalf("total=%s", s.Total)
	}
	if s.Empty() {
		t.Fatal("snapshot should not be empty")
	}
}

func TestNewSnapshot_FractionalPricesExact(t *testing.T) {
	lines := []Line{
		{ProductID: "a", Price: decimal.RequireFromString("0.10"), Quantity: 3},
		{ProductID: "b", Price: decimal.RequireFromString("0.20"), Quantity: 1},
	}
	s := NewSnapshot("u1", lines, time.Now())
	if !s.Total.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("total=%s", s.Total)
	}
}

func TestNewSnapshot_Empty(t *testing.T) {
	s := NewSnapshot("u1", nil, time.Now())
	if !s.Empty() || !s.Total.IsZero() {
		t.Fatalf("empty snapshot=%+v", s)
	}
}
