// Package payment confirms gateway transactions server-side before any
// order is written.
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrRejected    = errors.New("payment rejected by gateway")
	ErrMismatch    = errors.New("payment amount or order does not match")
	ErrUnavailable = errors.New("payment gateway unavailable")
)

// Confirmation is what the client hands back after the gateway redirect.
type Confirmation struct {
	PaymentKey string
	OrderID    string
	Amount     decimal.Decimal
}

// Transaction is the gateway's authoritative record of a confirmed payment.
type Transaction struct {
	PaymentKey    string
	OrderID       string
	Amount        decimal.Decimal
	Method        string
	TransactionID string
}

type Verifier interface {
	Verify(ctx context.Context, c Confirmation) (*Transaction, error)
}

// GatewayError keeps the gateway's own code next to the taxonomy error.
type GatewayError struct {
	Kind    error
	Code    string
	Message string
}

func (e *GatewayError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%v: %s (%s)", e.Kind, e.Message, e.Code)
}

func (e *GatewayError) Unwrap() error { return e.Kind }

func checkClaim(c Confirmation, gatewayOrderID string, amount decimal.Decimal) error {
	if gatewayOrderID != c.OrderID {
		return &GatewayError{Kind: ErrMismatch, Message: fmt.Sprintf("gateway order %q, claimed %q", gatewayOrderID, c.OrderID)}
	}
	if !amount.Equal(c.Amount) {
		return &GatewayError{Kind: ErrMismatch, Message: fmt.Sprintf("gateway amount %s, claimed %s", amount, c.Amount)}
	}
	return nil
}

func (c Confirmation) validate() error {
	if c.PaymentKey == "" || c.OrderID == "" || !c.Amount.IsPositive() {
		return &GatewayError{Kind: ErrRejected, Message: "payment key, order id and a positive amount are required"}
	}
	return nil
}
