package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/razorpay/razorpay-go"
)

const GatewayRazorpay = "razorpay"

type RazorpayGateway struct {
	client    *razorpay.Client
	keyID     string
	keySecret string
}

func NewRazorpayGateway(keyID, keySecret string) *RazorpayGateway {
	return &RazorpayGateway{
		client:    razorpay.NewClient(keyID, keySecret),
		keyID:     keyID,
		keySecret: keySecret,
	}
}

func (r *RazorpayGateway) Name() string { return GatewayRazorpay }

func (r *RazorpayGateway) CreateOrder(ctx context.Context, request *OrderRequest) (*OrderResponse, error) {
	notes := make(map[string]interface{}, len(request.Notes))
	for k, v := range request.Notes {
		notes[k] = v
	}
	orderData := map[string]interface{}{
		"amount":   request.AmountSubunits,
		"currency": request.Currency,
		"receipt":  request.Receipt,
		"notes":    notes,
	}

	order, err := r.client.Order.Create(orderData, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create razorpay order: %w", err)
	}

	id, _ := order["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("razorpay order response missing id")
	}
	return &OrderResponse{
		GatewayOrderID: id,
		AmountSubunits: toInt64(order["amount"], request.AmountSubunits),
		FormFields:     map[string]string{"key": r.keyID, "order_id": id},
	}, nil
}

// VerifyCallback checks razorpay_signature, an HMAC-SHA256 of
// "order_id|payment_id" keyed with the API secret. A checkout failure
// callback carries no signature and is reported unverified.
func (r *RazorpayGateway) VerifyCallback(ctx context.Context, callback *Callback) (*VerificationResult, error) {
	f := callback.Fields
	orderID := f["razorpay_order_id"]
	if orderID == "" {
		orderID = f["error[metadata][order_id]"]
	}
	paymentID := f["razorpay_payment_id"]
	if paymentID == "" {
		paymentID = f["error[metadata][payment_id]"]
	}
	if orderID == "" {
		return nil, fmt.Errorf("razorpay callback missing order id")
	}

	result := &VerificationResult{
		GatewayOrderID:    orderID,
		ExternalPaymentID: paymentID,
	}

	if desc := f["error[description]"]; desc != "" {
		result.RawStatus = "failed"
		result.FailureReason = desc
		return result, nil
	}

	signature := f["razorpay_signature"]
	if signature == "" || paymentID == "" {
		result.FailureReason = "missing payment id or signature"
		return result, nil
	}
	expected := r.Signature(orderID, paymentID)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		result.FailureReason = "signature mismatch"
		return result, nil
	}

	result.Verified = true
	result.Success = true
	result.RawStatus = "captured"
	return result, nil
}

func (r *RazorpayGateway) Signature(orderID, paymentID string) string {
	h := hmac.New(sha256.New, []byte(r.keySecret))
	h.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(h.Sum(nil))
}

func (r *RazorpayGateway) Refund(ctx context.Context, request *RefundRequest) (*RefundResponse, error) {
	data := map[string]interface{}{
		"notes": map[string]interface{}{"reason": request.Reason},
	}
	refund, err := r.client.Payment.Refund(request.GatewayPaymentID, int(request.AmountSubunits), data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create razorpay refund: %w", err)
	}

	id, _ := refund["id"].(string)
	status, _ := refund["status"].(string)
	return &RefundResponse{
		RefundID:       id,
		Status:         status,
		AmountSubunits: toInt64(refund["amount"], request.AmountSubunits),
	}, nil
}

// toInt64 reads a numeric field from a decoded JSON map.
func toInt64(v interface{}, fallback int64) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int:
		return int64(n)
	case int64:
		return n
	}
	return fallback
}
