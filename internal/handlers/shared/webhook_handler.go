package handlers

import (
	"fmt"
	"io"
	"net/http"

	"medibook/internal/apperrors"
	"medibook/internal/models"
	"medibook/internal/services"
	"medibook/internal/utils"
	"medibook/pkg/payment"

	"github.com/gin-gonic/gin"
)

const (
	stripeSignatureHeader = "Stripe-Signature"
	maxWebhookBodyBytes   = 64 << 10
)

// WebhookHandler receives gateway callbacks. Callbacks are authenticated by
// their signatures, not by the caller's identity.
type WebhookHandler struct {
	paymentService services.PaymentService
}

func NewWebhookHandler(paymentService services.PaymentService) *WebhookHandler {
	return &WebhookHandler{paymentService: paymentService}
}

// HandleGatewayCallback reconciles a razorpay, payu or stripe callback
func (h *WebhookHandler) HandleGatewayCallback(c *gin.Context) {
	method := models.PaymentMethod(c.Param("gateway"))
	if !method.IsValid() || method == models.PaymentMethodCash {
		respondError(c, fmt.Errorf("%w: %s", apperrors.ErrUnsupportedGateway, c.Param("gateway")))
		return
	}

	callback, err := readCallback(c, method)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid callback: "+err.Error())
		return
	}

	result, err := h.paymentService.ReconcilePayment(c.Request.Context(), method, callback)
	if err != nil {
		respondError(c, err)
		return
	}

	message := "Payment reconciled successfully"
	switch {
	case result.Ignored:
		message = "Event ignored"
	case result.Replayed:
		message = "Payment already reconciled"
	}
	utils.SuccessResponse(c, message, result)
}

// readCallback keeps the raw body for gateways that sign it and flattens
// posted form fields for the ones that sign fields.
func readCallback(c *gin.Context, method models.PaymentMethod) (*payment.Callback, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes)

	if method == models.PaymentMethodStripe {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read body: %w", err)
		}
		return &payment.Callback{Body: body, Signature: c.GetHeader(stripeSignatureHeader)}, nil
	}

	if err := c.Request.ParseForm(); err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}
	fields := make(map[string]string, len(c.Request.PostForm))
	for key, values := range c.Request.PostForm {
		if len(values) > 0 {
			fields[key] = values[0]
		}
	}
	return &payment.Callback{Fields: fields}, nil
}
