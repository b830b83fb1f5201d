package payment

import (
	"context"
	"errors"
)

var ErrRefundNotSupported = errors.New("gateway does not execute refunds automatically")

// Gateway is one payment backend. Amounts crossing this boundary are in
// sub-units (paise, cents).
type Gateway interface {
	Name() string
	CreateOrder(ctx context.Context, request *OrderRequest) (*OrderResponse, error)
	// VerifyCallback authenticates a callback and normalizes it. It returns
	// an error only for malformed input; a failed signature check is
	// reported through VerificationResult.Verified.
	VerifyCallback(ctx context.Context, callback *Callback) (*VerificationResult, error)
	Refund(ctx context.Context, request *RefundRequest) (*RefundResponse, error)
}

type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type OrderRequest struct {
	Receipt        string            `json:"receipt"`
	AmountSubunits int64             `json:"amount_subunits"`
	Currency       string            `json:"currency"`
	Description    string            `json:"description"`
	Customer       Customer          `json:"customer"`
	Notes          map[string]string `json:"notes"`
}

type OrderResponse struct {
	GatewayOrderID string            `json:"gateway_order_id"`
	AmountSubunits int64             `json:"amount_subunits"`
	ClientSecret   string            `json:"client_secret,omitempty"`
	RedirectURL    string            `json:"redirect_url,omitempty"`
	FormFields     map[string]string `json:"form_fields,omitempty"`
}

// Callback carries whatever the gateway sent: posted form fields, or a raw
// body with its signature header.
type Callback struct {
	Fields    map[string]string
	Body      []byte
	Signature string
}

// VerificationResult is the gateway-neutral shape of a callback.
// AmountSubunits is zero when the gateway does not report a trusted amount.
type VerificationResult struct {
	Verified          bool   `json:"verified"`
	Success           bool   `json:"success"`
	Ignored           bool   `json:"ignored"`
	GatewayOrderID    string `json:"gateway_order_id"`
	ExternalPaymentID string `json:"external_payment_id"`
	AmountSubunits    int64  `json:"amount_subunits"`
	RawStatus         string `json:"raw_status"`
	FailureReason     string `json:"failure_reason,omitempty"`
}

type RefundRequest struct {
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	AmountSubunits   int64  `json:"amount_subunits"`
	Reason           string `json:"reason"`
}

type RefundResponse struct {
	RefundID       string `json:"refund_id"`
	Status         string `json:"status"`
	AmountSubunits int64  `json:"amount_subunits"`
	// Queued means the refund was recorded for manual processing rather
	// than executed.
	Queued bool `json:"queued"`
}
