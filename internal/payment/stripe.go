package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/paymentintent"
)

// StripeVerifier treats the payment key as a PaymentIntent id and checks the
// intent server-side. The storefront order id travels in metadata["order_id"].
type StripeVerifier struct {
	// exponent of the currency's minor unit (2 for EUR, 0 for KRW)
	exponent int32
	fetch    func(ctx context.Context, id string) (*stripe.PaymentIntent, error)
}

// NewStripeVerifier expects stripe.Key to be set at startup.
func NewStripeVerifier(exponent int32) *StripeVerifier {
	return &StripeVerifier{
		exponent: exponent,
		fetch: func(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
			params := &stripe.PaymentIntentParams{}
			params.Context = ctx
			return paymentintent.Get(id, params)
		},
	}
}

func (v *StripeVerifier) Verify(ctx context.Context, c Confirmation) (*Transaction, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	pi, err := v.fetch(ctx, c.PaymentKey)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &GatewayError{Kind: ErrUnavailable, Message: ctx.Err().Error()}
		}
		return nil, classifyStripe(err)
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, &GatewayError{Kind: ErrRejected, Code: string(pi.Status), Message: "payment intent not succeeded"}
	}
	amount := decimal.New(pi.Amount, -v.exponent)
	if err := checkClaim(c, pi.Metadata["order_id"], amount); err != nil {
		return nil, err
	}

	method := ""
	if len(pi.PaymentMethodTypes) > 0 {
		method = pi.PaymentMethodTypes[0]
	}
	txID := pi.ID
	if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
		txID = pi.LatestCharge.ID
	}
	return &Transaction{
		PaymentKey:    pi.ID,
		OrderID:       c.OrderID,
		Amount:        amount,
		Method:        method,
		TransactionID: txID,
	}, nil
}

func classifyStripe(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		kind := ErrUnavailable
		if se.HTTPStatusCode >= 400 && se.HTTPStatusCode < 500 && se.HTTPStatusCode != 429 {
			kind = ErrRejected
		}
		return &GatewayError{Kind: kind, Code: string(se.Code), Message: se.Msg}
	}
	return &GatewayError{Kind: ErrUnavailable, Message: fmt.Sprintf("stripe: %v", err)}
}
