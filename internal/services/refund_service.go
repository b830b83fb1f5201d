package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medibook/internal/apperrors"
	"medibook/internal/lifecycle"
	"medibook/internal/models"
	"medibook/internal/repositories/interfaces"
	"medibook/internal/utils"
	"medibook/pkg/logger"
	"medibook/pkg/payment"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const refundStatusQueued = "queued"

type RefundService interface {
	RefundPayment(ctx context.Context, paymentID primitive.ObjectID, amount float64, reason string) (*models.RefundResult, error)
}

type refundService struct {
	paymentRepo     interfaces.PaymentRepository
	appointmentRepo interfaces.AppointmentRepository
	referrals       ReferralService
	gateways        map[models.PaymentMethod]payment.Gateway
	logger          *logger.Logger
	maxRetries      int
	now             clock
}

func NewRefundService(
	paymentRepo interfaces.PaymentRepository,
	appointmentRepo interfaces.AppointmentRepository,
	referrals ReferralService,
	gateways map[models.PaymentMethod]payment.Gateway,
	logger *logger.Logger,
	maxRetries int,
) RefundService {
	return &refundService{
		paymentRepo:     paymentRepo,
		appointmentRepo: appointmentRepo,
		referrals:       referrals,
		gateways:        gateways,
		logger:          logger,
		maxRetries:      maxRetries,
		now:             systemClock,
	}
}

// refundable also accepts partially refunded payments, which stay
// refundable up to what remains.
func refundable(status models.PaymentStatus) bool {
	return status == models.PaymentStatusCompleted || status == models.PaymentStatusPartiallyRefunded
}

func checkRefund(pay *models.Payment, amount float64) error {
	if !refundable(pay.Status) {
		return fmt.Errorf("%w: payment is %s", apperrors.ErrPaymentNotRefundable, pay.Status)
	}
	available := utils.SubtractMoney(utils.SubtractMoney(pay.Amount, pay.RefundedAmount), pay.PendingRefundAmount)
	if utils.RoundMoney(amount) > available {
		return &apperrors.RefundExceedsAvailableError{Requested: amount, Available: available}
	}
	return nil
}

// RefundPayment reserves the amount on the payment, executes the refund with
// the gateway, then records it. A refund that leaves nothing paid cancels the
// appointment and releases its referral.
func (s *refundService) RefundPayment(ctx context.Context, paymentID primitive.ObjectID, amount float64, reason string) (*models.RefundResult, error) {
	if amount <= 0 {
		return nil, apperrors.ErrInvalidRefundAmount
	}
	amount = utils.RoundMoney(amount)

	pay, err := s.reserve(ctx, paymentID, amount)
	if err != nil {
		return nil, err
	}

	entry, err := s.execute(ctx, pay, amount, reason)
	if err != nil {
		s.release(ctx, paymentID, amount)
		return nil, err
	}

	var refunded *models.Payment
	err = retryOnConflict(ctx, s.maxRetries, func() error {
		current, err := s.paymentRepo.GetByID(ctx, paymentID)
		if err != nil {
			return err
		}

		now := s.now()
		current.PendingRefundAmount = clampZero(utils.SubtractMoney(current.PendingRefundAmount, amount))
		current.RefundedAmount = utils.AddMoney(current.RefundedAmount, amount)
		current.Refunds = append(current.Refunds, entry)
		current.RefundedAt = &now
		if current.RefundedAmount >= current.Amount {
			current.Status = models.PaymentStatusRefunded
		} else {
			current.Status = models.PaymentStatusPartiallyRefunded
		}
		if err := s.paymentRepo.Update(ctx, current); err != nil {
			return err
		}
		refunded = current
		return nil
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("external_refund_id", entry.ExternalRefundID).
			Error("Refund executed but not recorded")
		return nil, fmt.Errorf("failed to record refund: %w", err)
	}

	s.logger.WithContext(ctx).LogPaymentEvent(refunded.ID, string(refunded.Status), amount, string(refunded.PaymentMethod))

	fully := refunded.Status == models.PaymentStatusRefunded
	appointment, effects, err := applyTransition(ctx, s.appointmentRepo, s.maxRetries, refunded.AppointmentID, s.now,
		func(appt models.Appointment, now time.Time) (models.Appointment, lifecycle.Effects, error) {
			next, eff := lifecycle.ApplyRefund(appt, fully, now)
			return next, eff, nil
		})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithAppointmentID(refunded.AppointmentID).
			Error("Failed to apply refund to appointment")
		return nil, fmt.Errorf("failed to apply refund to appointment: %w", err)
	}
	if effects.ReverseReferral {
		s.referrals.ReverseAppointmentUse(ctx, appointment)
	}

	return &models.RefundResult{
		PaymentID:      refunded.ID,
		RefundedAmount: refunded.RefundedAmount,
		Status:         refunded.Status,
	}, nil
}

// reserve holds amount against the payment so concurrent refunds cannot
// exceed what was paid while the gateway call is in flight.
func (s *refundService) reserve(ctx context.Context, paymentID primitive.ObjectID, amount float64) (*models.Payment, error) {
	var reserved *models.Payment
	err := retryOnConflict(ctx, s.maxRetries, func() error {
		current, err := s.paymentRepo.GetByID(ctx, paymentID)
		if err != nil {
			return fmt.Errorf("failed to get payment: %w", err)
		}
		if err := checkRefund(current, amount); err != nil {
			return err
		}
		current.PendingRefundAmount = utils.AddMoney(current.PendingRefundAmount, amount)
		if err := s.paymentRepo.Update(ctx, current); err != nil {
			return err
		}
		reserved = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reserved, nil
}

// release returns a reservation whose gateway refund failed.
func (s *refundService) release(ctx context.Context, paymentID primitive.ObjectID, amount float64) {
	err := retryOnConflict(ctx, s.maxRetries, func() error {
		current, err := s.paymentRepo.GetByID(ctx, paymentID)
		if err != nil {
			return err
		}
		current.PendingRefundAmount = clampZero(utils.SubtractMoney(current.PendingRefundAmount, amount))
		return s.paymentRepo.Update(ctx, current)
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("payment_id", paymentID.Hex()).
			Error("Failed to release refund reservation")
	}
}

func clampZero(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// execute moves the money. Gateways without automated refunds, and cash,
// produce a queued entry for manual processing.
func (s *refundService) execute(ctx context.Context, pay *models.Payment, amount float64, reason string) (models.RefundEntry, error) {
	entry := models.RefundEntry{
		Amount:    amount,
		Reason:    reason,
		Status:    refundStatusQueued,
		CreatedAt: s.now(),
	}

	gw, ok := s.gateways[pay.PaymentMethod]
	if !ok || gw == nil {
		return entry, nil
	}

	resp, err := gw.Refund(ctx, &payment.RefundRequest{
		GatewayOrderID:   pay.GatewayOrderID,
		GatewayPaymentID: pay.GatewayPaymentID,
		AmountSubunits:   utils.ToSubunits(amount),
		Reason:           reason,
	})
	if errors.Is(err, payment.ErrRefundNotSupported) {
		return entry, nil
	}
	if err != nil {
		return entry, fmt.Errorf("failed to execute refund: %w", err)
	}

	entry.ExternalRefundID = resp.RefundID
	entry.Status = resp.Status
	if resp.Queued {
		entry.Status = refundStatusQueued
	}
	return entry, nil
}
