package interfaces

import (
	"context"
	"time"

	"medibook/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PaymentSettlement is the outcome written when a pending payment resolves.
type PaymentSettlement struct {
	Status           models.PaymentStatus
	GatewayPaymentID string
	FailureReason    string
	CollectedBy      *primitive.ObjectID
	At               time.Time
}

type PaymentRepository interface {
	// Create fails with *apperrors.DuplicatePaymentError when the
	// appointment already has a pending or completed payment.
	Create(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Payment, error)
	GetByGatewayOrderID(ctx context.Context, method models.PaymentMethod, orderID string) (*models.Payment, error)
	// GetActiveForAppointment returns the pending or settled payment of an
	// appointment, or nil when there is none.
	GetActiveForAppointment(ctx context.Context, appointmentID primitive.ObjectID) (*models.Payment, error)
	ListByAppointment(ctx context.Context, appointmentID primitive.ObjectID) ([]*models.Payment, error)

	// Settle moves a payment out of pending. Only one caller wins; the
	// others get the already settled payment and false.
	Settle(ctx context.Context, id primitive.ObjectID, settlement PaymentSettlement) (*models.Payment, bool, error)
	// Update is a version-checked replace used for refunds.
	Update(ctx context.Context, payment *models.Payment) error
}
