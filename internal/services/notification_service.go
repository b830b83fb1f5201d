package services

import (
	"context"
	"time"

	"medibook/internal/models"
	"medibook/internal/repositories/interfaces"
	"medibook/internal/utils"
	"medibook/pkg/logger"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NotificationService enqueues typed notifications. It never returns an
// error: a failed dispatch is logged and reported in the DispatchResult so
// the state change that triggered it stands.
type NotificationService interface {
	Send(ctx context.Context, category models.NotificationCategory, recipientID primitive.ObjectID, payload map[string]interface{}) models.DispatchResult
	Schedule(ctx context.Context, category models.NotificationCategory, recipientID primitive.ObjectID, payload map[string]interface{}, sendAt time.Time) models.DispatchResult

	NotifyPaymentCompleted(ctx context.Context, appointment *models.Appointment, payment *models.Payment)
}

type notificationService struct {
	queue        NotificationQueue
	userRepo     interfaces.UserRepository
	logger       *logger.Logger
	reminderLead time.Duration
	now          clock
}

func NewNotificationService(queue NotificationQueue, userRepo interfaces.UserRepository, logger *logger.Logger, reminderLead time.Duration) NotificationService {
	return &notificationService{
		queue:        queue,
		userRepo:     userRepo,
		logger:       logger,
		reminderLead: reminderLead,
		now:          systemClock,
	}
}

func (s *notificationService) Send(ctx context.Context, category models.NotificationCategory, recipientID primitive.ObjectID, payload map[string]interface{}) models.DispatchResult {
	return s.Schedule(ctx, category, recipientID, payload, s.now())
}

func (s *notificationService) Schedule(ctx context.Context, category models.NotificationCategory, recipientID primitive.ObjectID, payload map[string]interface{}, sendAt time.Time) models.DispatchResult {
	log := s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"category":     category,
		"recipient_id": recipientID.Hex(),
	})

	notification := &models.Notification{
		ID:          uuid.NewString(),
		Category:    category,
		RecipientID: recipientID,
		Payload:     payload,
		SendAt:      sendAt,
		CreatedAt:   s.now(),
	}

	recipient, err := s.userRepo.FindByID(ctx, recipientID)
	if err != nil {
		log.WithError(err).Warn("Notification recipient lookup failed")
		return models.DispatchResult{Success: false, Error: err.Error()}
	}
	notification.Email = recipient.Email
	notification.Phone = recipient.Phone

	if err := s.queue.Enqueue(ctx, notification); err != nil {
		log.WithError(err).Warn("Failed to enqueue notification")
		return models.DispatchResult{Success: false, Error: err.Error()}
	}

	log.WithField("message_id", notification.ID).Debug("Notification enqueued")
	return models.DispatchResult{Success: true, MessageID: notification.ID}
}

func (s *notificationService) NotifyPaymentCompleted(ctx context.Context, appointment *models.Appointment, payment *models.Payment) {
	payload := map[string]interface{}{
		"appointment_id":   appointment.ID.Hex(),
		"doctor_id":        appointment.DoctorID.Hex(),
		"appointment_date": appointment.AppointmentDate.Format(time.RFC3339),
		"payment_id":       payment.ID.Hex(),
		"payment_method":   payment.PaymentMethod,
		"amount":           utils.FormatAmount(payment.Amount),
		"currency":         payment.Currency,
		"amount_display":   utils.FormatCurrency(payment.Amount, payment.Currency),
	}

	s.Send(ctx, models.NotificationPaymentConfirmation, appointment.PatientID, payload)
	s.Send(ctx, models.NotificationAppointmentConfirmation, appointment.PatientID, payload)

	if remindAt := appointment.AppointmentDate.Add(-s.reminderLead); remindAt.After(s.now()) {
		s.Schedule(ctx, models.NotificationAppointmentReminder, appointment.PatientID, payload, remindAt)
	}

	if appointment.ReferralCounted && appointment.AgentID != nil {
		s.Send(ctx, models.NotificationReferralReward, *appointment.AgentID, map[string]interface{}{
			"appointment_id": appointment.ID.Hex(),
			"referral_code":  appointment.ReferralCode,
			"commission":     utils.FormatAmount(appointment.AgentCommission),
			"currency":       payment.Currency,
		})
	}
}
