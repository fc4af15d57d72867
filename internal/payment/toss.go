package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const tossStatusDone = "DONE"

// TossVerifier confirms payments through the Toss Payments confirm API.
type TossVerifier struct {
	HTTP    *http.Client
	BaseURL string
	secret  string
}

func NewTossVerifier(baseURL, secretKey string) *TossVerifier {
	return &TossVerifier{
		HTTP:    &http.Client{Timeout: 10 * time.Second},
		BaseURL: strings.TrimRight(baseURL, "/"),
		secret:  secretKey,
	}
}

type tossConfirmRequest struct {
	PaymentKey string      `json:"paymentKey"`
	OrderID    string      `json:"orderId"`
	Amount     json.Number `json:"amount"`
}

type tossPayment struct {
	PaymentKey         string      `json:"paymentKey"`
	OrderID            string      `json:"orderId"`
	Status             string      `json:"status"`
	Method             string      `json:"method"`
	TotalAmount        json.Number `json:"totalAmount"`
	LastTransactionKey string      `json:"lastTransactionKey"`
}

type tossError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (v *TossVerifier) Verify(ctx context.Context, c Confirmation) (*Transaction, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	body, _ := json.Marshal(tossConfirmRequest{
		PaymentKey: c.PaymentKey,
		OrderID:    c.OrderID,
		Amount:     json.Number(c.Amount.String()),
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.BaseURL+"/v1/payments/confirm", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(v.secret+":")))
	// Retried confirmations reuse the payment key so the gateway answers them idempotently.
	req.Header.Set("Idempotency-Key", c.PaymentKey)

	res, err := v.HTTP.Do(req)
	if err != nil {
		return nil, &GatewayError{Kind: ErrUnavailable, Message: err.Error()}
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, &GatewayError{Kind: ErrUnavailable, Message: err.Error()}
	}

	switch {
	case res.StatusCode >= 500:
		return nil, gatewayFailure(ErrUnavailable, res.Status, raw)
	case res.StatusCode >= 400:
		return nil, gatewayFailure(ErrRejected, res.Status, raw)
	case res.StatusCode != http.StatusOK:
		return nil, &GatewayError{Kind: ErrUnavailable, Message: "unexpected status " + res.Status}
	}

	var p tossPayment
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &GatewayError{Kind: ErrUnavailable, Message: "decode confirm response: " + err.Error()}
	}
	if p.Status != tossStatusDone {
		return nil, &GatewayError{Kind: ErrRejected, Code: p.Status, Message: "payment not completed"}
	}
	amount, err := decimal.NewFromString(p.TotalAmount.String())
	if err != nil {
		return nil, &GatewayError{Kind: ErrUnavailable, Message: fmt.Sprintf("bad totalAmount %q", p.TotalAmount)}
	}
	if err := checkClaim(c, p.OrderID, amount); err != nil {
		return nil, err
	}
	return &Transaction{
		PaymentKey:    p.PaymentKey,
		OrderID:       p.OrderID,
		Amount:        amount,
		Method:        p.Method,
		TransactionID: p.LastTransactionKey,
	}, nil
}

func gatewayFailure(kind error, status string, raw []byte) error {
	var te tossError
	if err := json.Unmarshal(raw, &te); err != nil || te.Message == "" {
		return &GatewayError{Kind: kind, Message: status}
	}
	return &GatewayError{Kind: kind, Code: te.Code, Message: te.Message}
}
