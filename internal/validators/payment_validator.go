package validators

import "medibook/internal/models"

type InitiatePaymentRequest struct {
	Gateway string `json:"gateway" validate:"required,gateway"`
}

type RefundRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
	Reason string  `json:"reason" validate:"required,max=500"`
}

type CashCollectionRequest struct {
	AppointmentID string  `json:"appointment_id" validate:"required,object_id"`
	AgentCode     string  `json:"agent_code" validate:"required,referral_code"`
	Amount        float64 `json:"amount" validate:"gte=0"`
}

func ValidateInitiatePayment(req *InitiatePaymentRequest) ValidationErrors {
	errors := ValidateStruct(req)
	if models.PaymentMethod(req.Gateway) == models.PaymentMethodCash {
		errors = append(errors, ValidationError{
			Field:   "gateway",
			Tag:     "gateway",
			Value:   req.Gateway,
			Message: "Cash payments are recorded by the collecting agent",
		})
	}
	return errors
}

func ValidateRefund(req *RefundRequest) ValidationErrors {
	req.Reason = SanitizeInput(req.Reason)
	return ValidateStruct(req)
}
