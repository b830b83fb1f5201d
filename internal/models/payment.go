package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PaymentStatus string
type PaymentMethod string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusCompleted         PaymentStatus = "completed"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"

	// PaymentMethodRazorpay is the signature-verified card/UPI gateway.
	PaymentMethodRazorpay PaymentMethod = "razorpay"
	// PaymentMethodPayU is the hash-verified redirect gateway.
	PaymentMethodPayU   PaymentMethod = "payu"
	PaymentMethodStripe PaymentMethod = "stripe"
	PaymentMethodCash   PaymentMethod = "cash"
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodRazorpay, PaymentMethodPayU, PaymentMethodStripe, PaymentMethodCash:
		return true
	}
	return false
}

// IsTerminal reports whether the payment has left pending.
func (s PaymentStatus) IsTerminal() bool {
	return s != PaymentStatusPending
}

type RefundEntry struct {
	Amount           float64   `json:"amount" bson:"amount"`
	Reason           string    `json:"reason" bson:"reason"`
	ExternalRefundID string    `json:"external_refund_id,omitempty" bson:"external_refund_id,omitempty"`
	Status           string    `json:"status" bson:"status"`
	CreatedAt        time.Time `json:"created_at" bson:"created_at"`
}

type Payment struct {
	ID               primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	AppointmentID    primitive.ObjectID `json:"appointment_id" bson:"appointment_id"`
	PatientID        primitive.ObjectID `json:"patient_id" bson:"patient_id"`
	PaymentMethod    PaymentMethod      `json:"payment_method" bson:"payment_method"`
	GatewayOrderID   string             `json:"gateway_order_id" bson:"gateway_order_id"`
	GatewayPaymentID string             `json:"gateway_payment_id,omitempty" bson:"gateway_payment_id,omitempty"`
	Status           PaymentStatus      `json:"status" bson:"status"`
	Currency         string             `json:"currency" bson:"currency"`

	Amount          float64 `json:"amount" bson:"amount"`
	Discount        float64 `json:"discount" bson:"discount"`
	AgentCommission float64 `json:"agent_commission" bson:"agent_commission"`
	RefundedAmount  float64 `json:"refunded_amount" bson:"refunded_amount"`

	// PendingRefundAmount is reserved by refunds that are executing with
	// the gateway and not yet recorded.
	PendingRefundAmount float64 `json:"pending_refund_amount,omitempty" bson:"pending_refund_amount,omitempty"`

	Refunds       []RefundEntry       `json:"refunds,omitempty" bson:"refunds,omitempty"`
	FailureReason string              `json:"failure_reason,omitempty" bson:"failure_reason,omitempty"`
	CollectedBy   *primitive.ObjectID `json:"collected_by,omitempty" bson:"collected_by,omitempty"`

	CompletedAt *time.Time `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty" bson:"failed_at,omitempty"`
	RefundedAt  *time.Time `json:"refunded_at,omitempty" bson:"refunded_at,omitempty"`

	// ActiveAppointmentID is set while the payment is pending or settled and
	// cleared when it fails, so at most one live payment exists per
	// appointment.
	ActiveAppointmentID *primitive.ObjectID `json:"-" bson:"active_appointment_id,omitempty"`
	Version             int64               `json:"version" bson:"version"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// PaymentCheckout is what the client needs to complete a gateway payment.
type PaymentCheckout struct {
	Payment        *Payment          `json:"payment"`
	GatewayOrderID string            `json:"gateway_order_id"`
	ClientSecret   string            `json:"client_secret,omitempty"`
	RedirectURL    string            `json:"redirect_url,omitempty"`
	FormFields     map[string]string `json:"form_fields,omitempty"`
}

// ReconcileResult is returned for both first and replayed callbacks.
type ReconcileResult struct {
	AppointmentID primitive.ObjectID `json:"appointment_id"`
	PaymentID     primitive.ObjectID `json:"payment_id"`
	NewStatus     AppointmentStatus  `json:"new_status"`
	PaymentStatus PaymentStatus      `json:"payment_status"`
	Replayed      bool               `json:"replayed"`
	// Ignored is set for authenticated gateway events that carry no
	// payment outcome.
	Ignored bool `json:"ignored,omitempty"`
}

type RefundResult struct {
	PaymentID      primitive.ObjectID `json:"payment_id"`
	RefundedAmount float64            `json:"refunded_amount"`
	Status         PaymentStatus      `json:"status"`
}
