package order

import "encoding/json"

// FinalizeRequest carries the gateway callback parameters.
// swagger:model FinalizeRequest
type FinalizeRequest struct {
	PaymentKey string      `json:"paymentKey" example:"tgen_20240101abcdef"`
	OrderID    string      `json:"orderId"    example:"ORD-1700000000000"`
	Amount     json.Number `json:"amount"     example:"25000" swaggertype:"string"`
}

// FinalizeResponse is the outcome of a checkout finalization.
// swagger:model FinalizeResponse
type FinalizeResponse struct {
	OrderID  string   `json:"orderId,omitempty"`
	Status   string   `json:"status"`
	Reason   string   `json:"reason,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ListResponse wraps a user's order history.
// swagger:model OrderListResponse
type ListResponse struct {
	Items []Order `json:"items"`
}
