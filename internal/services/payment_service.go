package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"medibook/internal/apperrors"
	"medibook/internal/lifecycle"
	"medibook/internal/models"
	"medibook/internal/repositories/interfaces"
	"medibook/internal/utils"
	"medibook/pkg/logger"
	"medibook/pkg/payment"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CashCollection is an agent's record of cash taken for an appointment.
type CashCollection struct {
	AppointmentID primitive.ObjectID
	AgentCode     string
	Amount        float64
}

type PaymentService interface {
	InitiatePayment(ctx context.Context, appointmentID primitive.ObjectID, actor models.Actor, method models.PaymentMethod) (*models.PaymentCheckout, error)
	// ReconcilePayment applies a gateway callback. Cash callbacks carry
	// appointment_id, agent_code and amount fields.
	ReconcilePayment(ctx context.Context, method models.PaymentMethod, callback *payment.Callback) (*models.ReconcileResult, error)
	CollectCash(ctx context.Context, collection *CashCollection) (*models.ReconcileResult, error)

	GetPayment(ctx context.Context, id primitive.ObjectID) (*models.Payment, error)
	ListAppointmentPayments(ctx context.Context, appointmentID primitive.ObjectID) ([]*models.Payment, error)
}

type PaymentServiceConfig struct {
	Currency      string
	CashTolerance float64
	MaxRetries    int
}

type paymentService struct {
	paymentRepo     interfaces.PaymentRepository
	appointmentRepo interfaces.AppointmentRepository
	userRepo        interfaces.UserRepository
	referrals       ReferralService
	notifications   NotificationService
	gateways        map[models.PaymentMethod]payment.Gateway
	logger          *logger.Logger
	config          PaymentServiceConfig
	now             clock
}

func NewPaymentService(
	paymentRepo interfaces.PaymentRepository,
	appointmentRepo interfaces.AppointmentRepository,
	userRepo interfaces.UserRepository,
	referrals ReferralService,
	notifications NotificationService,
	gateways map[models.PaymentMethod]payment.Gateway,
	logger *logger.Logger,
	config PaymentServiceConfig,
) PaymentService {
	return &paymentService{
		paymentRepo:     paymentRepo,
		appointmentRepo: appointmentRepo,
		userRepo:        userRepo,
		referrals:       referrals,
		notifications:   notifications,
		gateways:        gateways,
		logger:          logger,
		config:          config,
		now:             systemClock,
	}
}

func (s *paymentService) gateway(method models.PaymentMethod) (payment.Gateway, error) {
	gw, ok := s.gateways[method]
	if !ok || gw == nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnsupportedGateway, method)
	}
	return gw, nil
}

func (s *paymentService) InitiatePayment(ctx context.Context, appointmentID primitive.ObjectID, actor models.Actor, method models.PaymentMethod) (*models.PaymentCheckout, error) {
	if method == models.PaymentMethodCash {
		return nil, fmt.Errorf("%w: cash is recorded by the collecting agent", apperrors.ErrInvalidInput)
	}
	gw, err := s.gateway(method)
	if err != nil {
		return nil, err
	}

	appointment, err := s.appointmentRepo.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	if actor.Role != models.UserRoleAdmin && actor.ID != appointment.PatientID {
		return nil, fmt.Errorf("%w: only the patient can pay for this appointment", apperrors.ErrForbidden)
	}
	if !appointment.Status.IsActive() {
		return nil, apperrors.InvalidTransition(string(appointment.Status), "pay for", "appointment is no longer scheduled or confirmed")
	}
	if appointment.FinalAmount <= 0 {
		return nil, fmt.Errorf("%w: appointment has nothing to pay", apperrors.ErrInvalidInput)
	}

	existing, err := s.paymentRepo.GetActiveForAppointment(ctx, appointment.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing payments: %w", err)
	}
	if existing != nil {
		return nil, &apperrors.DuplicatePaymentError{AppointmentID: appointment.ID.Hex(), ExistingID: existing.ID.Hex()}
	}

	patient, err := s.userRepo.FindByID(ctx, appointment.PatientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}

	order, err := gw.CreateOrder(ctx, &payment.OrderRequest{
		Receipt:        appointment.ID.Hex(),
		AmountSubunits: utils.ToSubunits(appointment.FinalAmount),
		Currency:       s.config.Currency,
		Description:    "Consultation " + appointment.ID.Hex(),
		Customer: payment.Customer{
			Name:  patient.Name,
			Email: patient.Email,
			Phone: patient.Phone,
		},
		Notes: map[string]string{"appointment_id": appointment.ID.Hex()},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway order: %w", err)
	}

	pay := &models.Payment{
		ID:              primitive.NewObjectID(),
		AppointmentID:   appointment.ID,
		PatientID:       appointment.PatientID,
		PaymentMethod:   method,
		GatewayOrderID:  order.GatewayOrderID,
		Status:          models.PaymentStatusPending,
		Currency:        s.config.Currency,
		Amount:          appointment.FinalAmount,
		Discount:        appointment.Discount,
		AgentCommission: appointment.AgentCommission,
	}
	if err := s.paymentRepo.Create(ctx, pay); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	s.logger.WithContext(ctx).LogPaymentEvent(pay.ID, "initiated", pay.Amount, string(method))
	return &models.PaymentCheckout{
		Payment:        pay,
		GatewayOrderID: order.GatewayOrderID,
		ClientSecret:   order.ClientSecret,
		RedirectURL:    order.RedirectURL,
		FormFields:     order.FormFields,
	}, nil
}

func (s *paymentService) ReconcilePayment(ctx context.Context, method models.PaymentMethod, callback *payment.Callback) (*models.ReconcileResult, error) {
	if method == models.PaymentMethodCash {
		collection, err := parseCashCallback(callback)
		if err != nil {
			return nil, err
		}
		return s.CollectCash(ctx, collection)
	}

	gw, err := s.gateway(method)
	if err != nil {
		return nil, err
	}
	verification, err := gw.VerifyCallback(ctx, callback)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	if verification.Ignored {
		return &models.ReconcileResult{Ignored: true}, nil
	}

	pay, err := s.paymentRepo.GetByGatewayOrderID(ctx, method, verification.GatewayOrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment for order %s: %w", verification.GatewayOrderID, err)
	}
	log := s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"payment_id": pay.ID.Hex(),
		"gateway":    method,
		"order_id":   verification.GatewayOrderID,
	})

	if pay.Status.IsTerminal() {
		log.Info("Replayed payment callback")
		return s.replay(ctx, pay)
	}

	if !verification.Verified {
		reason := "signature verification failed"
		if verification.FailureReason != "" {
			reason += ": " + verification.FailureReason
		}
		if _, err := s.fail(ctx, pay, verification.ExternalPaymentID, reason); err != nil {
			return nil, err
		}
		log.LogSecurityEvent("payment_signature_rejected", map[string]interface{}{
			"payment_id": pay.ID.Hex(),
			"reason":     verification.FailureReason,
		})
		return nil, &apperrors.SignatureVerificationError{Gateway: string(method), Reason: verification.FailureReason}
	}

	if verification.Success && verification.AmountSubunits != 0 && verification.AmountSubunits != utils.ToSubunits(pay.Amount) {
		log.WithFields(map[string]interface{}{
			"expected_amount": utils.FormatAmount(pay.Amount),
			"reported_amount": utils.FormatAmount(utils.FromSubunits(verification.AmountSubunits)),
		}).Warn("Gateway reported a different amount")
		verification.Success = false
		verification.FailureReason = "amount mismatch"
	}

	if !verification.Success {
		reason := verification.FailureReason
		if reason == "" {
			reason = "payment " + verification.RawStatus
		}
		return s.fail(ctx, pay, verification.ExternalPaymentID, reason)
	}
	return s.complete(ctx, pay, interfaces.PaymentSettlement{
		Status:           models.PaymentStatusCompleted,
		GatewayPaymentID: verification.ExternalPaymentID,
		At:               s.now(),
	})
}

func (s *paymentService) CollectCash(ctx context.Context, collection *CashCollection) (*models.ReconcileResult, error) {
	agent, err := s.userRepo.FindActiveAgentByCode(ctx, collection.AgentCode)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, &apperrors.SignatureVerificationError{
			Gateway: string(models.PaymentMethodCash),
			Reason:  "agent code does not belong to an active agent",
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}

	appointment, err := s.appointmentRepo.GetByID(ctx, collection.AppointmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}

	existing, err := s.paymentRepo.GetActiveForAppointment(ctx, appointment.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing payments: %w", err)
	}
	if existing != nil && existing.PaymentMethod != models.PaymentMethodCash {
		return nil, &apperrors.DuplicatePaymentError{AppointmentID: appointment.ID.Hex(), ExistingID: existing.ID.Hex()}
	}
	if existing != nil && existing.Status.IsTerminal() {
		return s.replay(ctx, existing)
	}

	if !appointment.Status.IsActive() {
		return nil, apperrors.InvalidTransition(string(appointment.Status), "collect cash for", "appointment is no longer scheduled or confirmed")
	}
	if !utils.WithinTolerance(collection.Amount, appointment.FinalAmount, s.config.CashTolerance) {
		return nil, fmt.Errorf("%w: collected %s, expected %s", apperrors.ErrCashAmountMismatch,
			utils.FormatAmount(collection.Amount), utils.FormatAmount(appointment.FinalAmount))
	}

	pay := existing
	if pay == nil {
		pay = &models.Payment{
			ID:              primitive.NewObjectID(),
			AppointmentID:   appointment.ID,
			PatientID:       appointment.PatientID,
			PaymentMethod:   models.PaymentMethodCash,
			GatewayOrderID:  "cash_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
			Status:          models.PaymentStatusPending,
			Currency:        s.config.Currency,
			Amount:          appointment.FinalAmount,
			Discount:        appointment.Discount,
			AgentCommission: appointment.AgentCommission,
		}
		if err := s.paymentRepo.Create(ctx, pay); err != nil {
			return nil, fmt.Errorf("failed to create cash payment: %w", err)
		}
	}

	collector := agent.ID
	return s.complete(ctx, pay, interfaces.PaymentSettlement{
		Status:           models.PaymentStatusCompleted,
		GatewayPaymentID: "receipt_" + uuid.NewString(),
		CollectedBy:      &collector,
		At:               s.now(),
	})
}

func (s *paymentService) GetPayment(ctx context.Context, id primitive.ObjectID) (*models.Payment, error) {
	return s.paymentRepo.GetByID(ctx, id)
}

func (s *paymentService) ListAppointmentPayments(ctx context.Context, appointmentID primitive.ObjectID) ([]*models.Payment, error) {
	return s.paymentRepo.ListByAppointment(ctx, appointmentID)
}

// complete settles the payment and, if this call won the settlement,
// confirms the appointment and counts its referral.
func (s *paymentService) complete(ctx context.Context, pay *models.Payment, settlement interfaces.PaymentSettlement) (*models.ReconcileResult, error) {
	settled, won, err := s.paymentRepo.Settle(ctx, pay.ID, settlement)
	if err != nil {
		return nil, fmt.Errorf("failed to settle payment: %w", err)
	}
	if !won {
		return s.replay(ctx, settled)
	}

	s.logger.WithContext(ctx).LogPaymentEvent(settled.ID, "completed", settled.Amount, string(settled.PaymentMethod))

	appointment, err := s.applyCompletion(ctx, settled)
	if err != nil {
		return nil, err
	}
	if appointment.PaymentID != nil && *appointment.PaymentID == settled.ID {
		s.notifications.NotifyPaymentCompleted(ctx, appointment, settled)
	}
	return resultFor(appointment, settled, false), nil
}

func (s *paymentService) fail(ctx context.Context, pay *models.Payment, externalID, reason string) (*models.ReconcileResult, error) {
	settled, won, err := s.paymentRepo.Settle(ctx, pay.ID, interfaces.PaymentSettlement{
		Status:           models.PaymentStatusFailed,
		GatewayPaymentID: externalID,
		FailureReason:    reason,
		At:               s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to settle payment: %w", err)
	}
	if !won {
		return s.replay(ctx, settled)
	}

	s.logger.WithContext(ctx).WithField("failure_reason", reason).
		LogPaymentEvent(settled.ID, "failed", settled.Amount, string(settled.PaymentMethod))

	appointment, _, err := applyTransition(ctx, s.appointmentRepo, s.config.MaxRetries, settled.AppointmentID, s.now,
		func(appt models.Appointment, now time.Time) (models.Appointment, lifecycle.Effects, error) {
			if appt.PaymentStatus == models.PaymentStatusCompleted || appt.PaymentStatus == models.PaymentStatusFailed {
				return appt, lifecycle.Effects{}, errNothingToApply
			}
			return lifecycle.MarkPaymentFailed(appt, now), lifecycle.Effects{}, nil
		})
	if errors.Is(err, errNothingToApply) {
		appointment, err = s.appointmentRepo.GetByID(ctx, settled.AppointmentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record payment failure on appointment: %w", err)
	}
	return resultFor(appointment, settled, false), nil
}

var errNothingToApply = errors.New("nothing to apply")

// applyCompletion brings the appointment in line with a completed payment.
// It is safe to repeat: a counted referral is never counted again.
func (s *paymentService) applyCompletion(ctx context.Context, pay *models.Payment) (*models.Appointment, error) {
	log := s.logger.WithContext(ctx).WithAppointmentID(pay.AppointmentID)
	var (
		recordTried bool
		attached    bool
		countedOn   *models.Appointment
		updated     *models.Appointment
	)

	err := retryOnConflict(ctx, s.config.MaxRetries, func() error {
		current, err := s.appointmentRepo.GetByID(ctx, pay.AppointmentID)
		if err != nil {
			return err
		}
		if completionApplied(current, pay) {
			updated = current
			return nil
		}

		next, err := lifecycle.MarkPaid(*current, pay, s.now())
		if err != nil {
			log.WithError(err).Warn("Payment completed for an appointment that is no longer active")
			updated = current
			return nil
		}

		if countsReferral(&next) {
			if !recordTried {
				recordTried = true
				_, err := s.referrals.RecordAppointmentUse(ctx, &next)
				var invalid *apperrors.InvalidReferralError
				switch {
				case errors.As(err, &invalid):
					log.WithField("reason", invalid.Reason).Warn("Referral no longer valid at payment time, commission not counted")
				case err != nil:
					return fmt.Errorf("failed to record referral use: %w", err)
				default:
					counted := next
					countedOn = &counted
				}
			}
			next.ReferralCounted = countedOn != nil
		}

		if err := s.appointmentRepo.Update(ctx, &next); err != nil {
			return err
		}
		attached = countedOn != nil && next.ReferralCounted
		updated = &next
		return nil
	})

	// A use counted here but never persisted on the appointment would
	// otherwise stay in the aggregates with nothing left to reverse it.
	if countedOn != nil && !attached {
		log.Warn("Referral use counted but not attached to the appointment, reversing")
		s.referrals.ReverseAppointmentUse(ctx, countedOn)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to confirm appointment after payment: %w", err)
	}
	return updated, nil
}

func completionApplied(appt *models.Appointment, pay *models.Payment) bool {
	if appt.PaymentID == nil || *appt.PaymentID != pay.ID || appt.PaymentStatus != models.PaymentStatusCompleted {
		return false
	}
	return true
}

// countsReferral reports whether the appointment owes its code a use.
func countsReferral(appt *models.Appointment) bool {
	return appt.ReferralCodeID != nil && appt.AgentCommission > 0 && !appt.ReferralCounted && !appt.ReferralReversed
}

// replay answers a callback for a payment that is already settled. A
// completed payment whose appointment write was lost is finished here.
func (s *paymentService) replay(ctx context.Context, pay *models.Payment) (*models.ReconcileResult, error) {
	appointment, err := s.appointmentRepo.GetByID(ctx, pay.AppointmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	if pay.Status == models.PaymentStatusCompleted && !completionApplied(appointment, pay) && appointment.Status.IsActive() {
		appointment, err = s.applyCompletion(ctx, pay)
		if err != nil {
			return nil, err
		}
	}
	return resultFor(appointment, pay, true), nil
}

func resultFor(appt *models.Appointment, pay *models.Payment, replayed bool) *models.ReconcileResult {
	return &models.ReconcileResult{
		AppointmentID: appt.ID,
		PaymentID:     pay.ID,
		NewStatus:     appt.Status,
		PaymentStatus: pay.Status,
		Replayed:      replayed,
	}
}

func parseCashCallback(callback *payment.Callback) (*CashCollection, error) {
	f := callback.Fields
	appointmentID, err := primitive.ObjectIDFromHex(f["appointment_id"])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid appointment_id", apperrors.ErrInvalidInput)
	}
	if strings.TrimSpace(f["agent_code"]) == "" {
		return nil, fmt.Errorf("%w: agent_code is required", apperrors.ErrInvalidInput)
	}
	amount, err := strconv.ParseFloat(f["amount"], 64)
	if err != nil || amount < 0 {
		return nil, fmt.Errorf("%w: invalid amount", apperrors.ErrInvalidInput)
	}
	return &CashCollection{
		AppointmentID: appointmentID,
		AgentCode:     f["agent_code"],
		Amount:        amount,
	}, nil
}
