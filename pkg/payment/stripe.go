package payment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const GatewayStripe = "stripe"

type StripeGateway struct {
	client        *client.API
	webhookSecret string
}

func NewStripeGateway(secretKey, webhookSecret string) *StripeGateway {
	sc := &client.API{}
	sc.Init(secretKey, nil)

	return &StripeGateway{
		client:        sc,
		webhookSecret: webhookSecret,
	}
}

func (s *StripeGateway) Name() string { return GatewayStripe }

func (s *StripeGateway) CreateOrder(ctx context.Context, request *OrderRequest) (*OrderResponse, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(request.AmountSubunits),
		Currency:    stripe.String(request.Currency),
		Description: stripe.String(request.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if request.Customer.Email != "" {
		params.ReceiptEmail = stripe.String(request.Customer.Email)
	}
	params.AddMetadata("receipt", request.Receipt)
	for k, v := range request.Notes {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	pi, err := s.client.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	return &OrderResponse{
		GatewayOrderID: pi.ID,
		AmountSubunits: pi.Amount,
		ClientSecret:   pi.ClientSecret,
	}, nil
}

// VerifyCallback authenticates the Stripe-Signature header and maps
// payment_intent events. Other event types are acknowledged and ignored.
func (s *StripeGateway) VerifyCallback(ctx context.Context, callback *Callback) (*VerificationResult, error) {
	event, err := webhook.ConstructEventWithOptions(callback.Body, callback.Signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return &VerificationResult{FailureReason: err.Error()}, nil
	}

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
	default:
		return &VerificationResult{Verified: true, Ignored: true, RawStatus: string(event.Type)}, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("failed to decode payment intent: %w", err)
	}

	result := &VerificationResult{
		Verified:          true,
		GatewayOrderID:    pi.ID,
		ExternalPaymentID: pi.ID,
		AmountSubunits:    pi.Amount,
		RawStatus:         string(pi.Status),
	}
	if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
		result.ExternalPaymentID = pi.LatestCharge.ID
	}

	if event.Type == "payment_intent.succeeded" {
		result.Success = true
		return result, nil
	}
	result.FailureReason = "payment failed"
	if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
		result.FailureReason = pi.LastPaymentError.Msg
	}
	return result, nil
}

func (s *StripeGateway) Refund(ctx context.Context, request *RefundRequest) (*RefundResponse, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(request.GatewayOrderID),
		Amount:        stripe.Int64(request.AmountSubunits),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.AddMetadata("reason", request.Reason)
	params.Context = ctx

	refund, err := s.client.Refunds.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create refund: %w", err)
	}

	return &RefundResponse{
		RefundID:       refund.ID,
		Status:         string(refund.Status),
		AmountSubunits: refund.Amount,
	}, nil
}
