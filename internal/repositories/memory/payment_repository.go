package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"medibook/internal/apperrors"
	"medibook/internal/models"
	"medibook/internal/repositories/interfaces"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type paymentRepository struct {
	mu       sync.RWMutex
	payments map[primitive.ObjectID]models.Payment
}

func NewPaymentRepository() interfaces.PaymentRepository {
	return &paymentRepository{payments: make(map[primitive.ObjectID]models.Payment)}
}

func clonePayment(p models.Payment) *models.Payment {
	p.Refunds = append([]models.RefundEntry(nil), p.Refunds...)
	if p.ActiveAppointmentID != nil {
		id := *p.ActiveAppointmentID
		p.ActiveAppointmentID = &id
	}
	return &p
}

func (r *paymentRepository) activeFor(appointmentID primitive.ObjectID) (models.Payment, bool) {
	for _, p := range r.payments {
		if p.ActiveAppointmentID != nil && *p.ActiveAppointmentID == appointmentID {
			return p, true
		}
	}
	return models.Payment{}, false
}

func (r *paymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.activeFor(payment.AppointmentID); ok {
		return &apperrors.DuplicatePaymentError{
			AppointmentID: payment.AppointmentID.Hex(),
			ExistingID:    existing.ID.Hex(),
		}
	}
	if payment.ID.IsZero() {
		payment.ID = primitive.NewObjectID()
	}
	if payment.Status != models.PaymentStatusFailed {
		id := payment.AppointmentID
		payment.ActiveAppointmentID = &id
	}
	now := time.Now()
	payment.CreatedAt = now
	payment.UpdatedAt = now
	payment.Version = 1
	r.payments[payment.ID] = *clonePayment(*payment)
	return nil
}

func (r *paymentRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.payments[id]
	if !ok {
		return nil, fmt.Errorf("payment %s: %w", id.Hex(), apperrors.ErrNotFound)
	}
	return clonePayment(p), nil
}

func (r *paymentRepository) GetByGatewayOrderID(ctx context.Context, method models.PaymentMethod, orderID string) (*models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.payments {
		if p.PaymentMethod == method && p.GatewayOrderID == orderID {
			return clonePayment(p), nil
		}
	}
	return nil, fmt.Errorf("payment for %s order %s: %w", method, orderID, apperrors.ErrNotFound)
}

func (r *paymentRepository) GetActiveForAppointment(ctx context.Context, appointmentID primitive.ObjectID) (*models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.activeFor(appointmentID); ok {
		return clonePayment(p), nil
	}
	return nil, nil
}

func (r *paymentRepository) ListByAppointment(ctx context.Context, appointmentID primitive.ObjectID) ([]*models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var list []*models.Payment
	for _, p := range r.payments {
		if p.AppointmentID == appointmentID {
			list = append(list, clonePayment(p))
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}

func (r *paymentRepository) Settle(ctx context.Context, id primitive.ObjectID, settlement interfaces.PaymentSettlement) (*models.Payment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[id]
	if !ok {
		return nil, false, fmt.Errorf("payment %s: %w", id.Hex(), apperrors.ErrNotFound)
	}
	if p.Status != models.PaymentStatusPending {
		return clonePayment(p), false, nil
	}

	at := settlement.At
	p.Status = settlement.Status
	if settlement.GatewayPaymentID != "" {
		p.GatewayPaymentID = settlement.GatewayPaymentID
	}
	if settlement.CollectedBy != nil {
		by := *settlement.CollectedBy
		p.CollectedBy = &by
	}
	if settlement.Status == models.PaymentStatusCompleted {
		p.CompletedAt = &at
	} else {
		p.FailureReason = settlement.FailureReason
		p.FailedAt = &at
		p.ActiveAppointmentID = nil
	}
	p.UpdatedAt = at
	p.Version++
	r.payments[id] = p
	return clonePayment(p), true, nil
}

func (r *paymentRepository) Update(ctx context.Context, payment *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.payments[payment.ID]
	if !ok {
		return fmt.Errorf("payment %s: %w", payment.ID.Hex(), apperrors.ErrNotFound)
	}
	if stored.Version != payment.Version {
		return &apperrors.ConcurrentModificationError{Resource: "payment", ID: payment.ID.Hex()}
	}
	payment.Version++
	payment.UpdatedAt = time.Now()
	r.payments[payment.ID] = *clonePayment(*payment)
	return nil
}
