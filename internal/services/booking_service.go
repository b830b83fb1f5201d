package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"medibook/internal/apperrors"
	"medibook/internal/lifecycle"
	"medibook/internal/models"
	"medibook/internal/pricing"
	"medibook/internal/referral"
	"medibook/internal/repositories/interfaces"
	"medibook/internal/utils"
	"medibook/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type BookAppointmentInput struct {
	PatientID       primitive.ObjectID
	DoctorID        primitive.ObjectID
	AppointmentDate time.Time
	// BaseFee overrides the doctor's consultation fee when positive.
	BaseFee      float64
	ReferralCode string
	Symptoms     string
}

type BookingService interface {
	// Booking
	BookAppointment(ctx context.Context, input *BookAppointmentInput) (*models.Appointment, error)
	GetAppointment(ctx context.Context, id primitive.ObjectID) (*models.Appointment, error)
	GetAppointmentWithParties(ctx context.Context, id primitive.ObjectID) (*models.AppointmentView, error)
	ListDoctorAppointments(ctx context.Context, doctorID primitive.ObjectID, from, to time.Time) ([]*models.Appointment, error)
	ListPatientAppointments(ctx context.Context, patientID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Appointment, int64, error)

	// Lifecycle
	ConfirmAppointment(ctx context.Context, id primitive.ObjectID, actor models.Actor) (*models.Appointment, error)
	RescheduleAppointment(ctx context.Context, id primitive.ObjectID, actor models.Actor, newDate time.Time) (*models.Appointment, error)
	CancelAppointment(ctx context.Context, id primitive.ObjectID, actor models.Actor, reason string) (*models.Appointment, error)
	CompleteAppointment(ctx context.Context, id primitive.ObjectID, actor models.Actor, notes *models.ConsultationNotes) (*models.Appointment, error)
	UpdateConsultationNotes(ctx context.Context, id primitive.ObjectID, actor models.Actor, notes models.ConsultationNotes) (*models.Appointment, error)
	RejectAppointment(ctx context.Context, id primitive.ObjectID, actor models.Actor, reason string) (*models.Appointment, error)
	MarkNoShow(ctx context.Context, id primitive.ObjectID, actor models.Actor) (*models.Appointment, error)
}

type bookingService struct {
	appointmentRepo interfaces.AppointmentRepository
	userRepo        interfaces.UserRepository
	referrals       ReferralService
	logger          *logger.Logger
	policy          lifecycle.Policy
	maxRetries      int
	now             clock
}

func NewBookingService(
	appointmentRepo interfaces.AppointmentRepository,
	userRepo interfaces.UserRepository,
	referrals ReferralService,
	logger *logger.Logger,
	policy lifecycle.Policy,
	maxRetries int,
) BookingService {
	return &bookingService{
		appointmentRepo: appointmentRepo,
		userRepo:        userRepo,
		referrals:       referrals,
		logger:          logger,
		policy:          policy,
		maxRetries:      maxRetries,
		now:             systemClock,
	}
}

func (s *bookingService) BookAppointment(ctx context.Context, input *BookAppointmentInput) (*models.Appointment, error) {
	now := s.now()
	if !input.AppointmentDate.After(now) {
		return nil, fmt.Errorf("%w: appointment date must be in the future", apperrors.ErrInvalidInput)
	}

	patient, err := s.userRepo.FindByID(ctx, input.PatientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	if patient.Role != models.UserRolePatient || !patient.IsActive {
		return nil, fmt.Errorf("%w: only active patients can book appointments", apperrors.ErrForbidden)
	}

	doctor, err := s.userRepo.FindByID(ctx, input.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get doctor: %w", err)
	}
	if doctor.Role != models.UserRoleDoctor || !doctor.IsActive || !doctor.IsApproved {
		return nil, fmt.Errorf("%w: doctor is not accepting appointments", apperrors.ErrInvalidInput)
	}

	baseFee := input.BaseFee
	if baseFee <= 0 {
		baseFee = doctor.ConsultationFee
	}

	// Early check for a clearer error; Create re-checks atomically.
	conflict, err := s.appointmentRepo.FindConflicting(ctx, doctor.ID, input.AppointmentDate)
	if err != nil {
		return nil, fmt.Errorf("failed to check doctor availability: %w", err)
	}
	if conflict != nil {
		return nil, &apperrors.SlotUnavailableError{
			DoctorID: doctor.ID.Hex(),
			Slot:     input.AppointmentDate.UTC().Format(time.RFC3339),
		}
	}

	var decision *referral.Decision
	if code := strings.TrimSpace(input.ReferralCode); code != "" {
		decision, err = s.referrals.ValidateReferral(ctx, code,
			models.Actor{ID: patient.ID, Role: patient.Role}, baseFee)
		if err != nil {
			return nil, err
		}
	}

	appointment := &models.Appointment{
		ID:              primitive.NewObjectID(),
		PatientID:       patient.ID,
		DoctorID:        doctor.ID,
		AppointmentDate: input.AppointmentDate,
		Status:          models.AppointmentStatusScheduled,
		Symptoms:        input.Symptoms,
		PaymentStatus:   models.PaymentStatusPending,
	}
	pricing.Apply(pricing.Price(baseFee, decision), appointment)

	if err := s.appointmentRepo.Create(ctx, appointment); err != nil {
		return nil, fmt.Errorf("failed to create appointment: %w", err)
	}

	s.logger.WithContext(ctx).LogAppointmentEvent(appointment.ID, "booked", map[string]interface{}{
		"doctor_id":     doctor.ID.Hex(),
		"patient_id":    patient.ID.Hex(),
		"final_amount":  appointment.FinalAmount,
		"referral_code": appointment.ReferralCode,
	})
	return appointment, nil
}

func (s *bookingService) GetAppointment(ctx context.Context, id primitive.ObjectID) (*models.Appointment, error) {
	return s.appointmentRepo.GetByID(ctx, id)
}

func (s *bookingService) GetAppointmentWithParties(ctx context.Context, id primitive.ObjectID) (*models.AppointmentView, error) {
	appointment, err := s.appointmentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	patient, err := s.userRepo.FindByID(ctx, appointment.PatientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	doctor, err := s.userRepo.FindByID(ctx, appointment.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get doctor: %w", err)
	}
	return &models.AppointmentView{Appointment: appointment, Patient: patient, Doctor: doctor}, nil
}

func (s *bookingService) ListDoctorAppointments(ctx context.Context, doctorID primitive.ObjectID, from, to time.Time) ([]*models.Appointment, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: range end must be after range start", apperrors.ErrInvalidInput)
	}
	return s.appointmentRepo.ListByDoctor(ctx, doctorID, from, to)
}

func (s *bookingService) ListPatientAppointments(ctx context.Context, patientID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Appointment, int64, error) {
	return s.appointmentRepo.ListByPatient(ctx, patientID, params)
}

func (s *bookingService) ConfirmAppointment(ctx context.Context, id primitive.ObjectID, actor models.Actor) (*models.Appointment, error) {
	return s.transition(ctx, id, "confirmed", func(appt models.Appointment, now time.Time) (models.Appointment, lifecycle.Effects, error) {
		next, err := lifecycle.Confirm(appt, actor, now)
		return next, lifecycle.Effects{}, err
	})
}

func (s *bookingService) RescheduleAppointment(ctx context.Context, id primitive.ObjectID, actor models.Actor, newDate time.Time) (*models.Appointment, error) {
	return s.transition(ctx, id, "rescheduled", func(appt models.Appointment, now time.Time) (models.Appointment, lifecycle.Effects, error) {
		next, err := lifecycle.Reschedule(appt, actor, newDate, now)
		return next, lifecycle.Effects{}, err
	})
}

func (s *bookingService) CancelAppointment(ctx context.Context, id primitive.ObjectID, actor models.Actor, reason string) (*models.Appointment, error) {
	return s.transition(ctx, id, "cancelled", func(appt models.Appointment, now time.Time) (models.Appointment, lifecycle.Effects, error) {
		return lifecycle.Cancel(appt, actor, reason, s.policy, now)
	})
}

func (s *bookingService) CompleteAppointment(ctx context.Context, id primitive.ObjectID, actor models.Actor, notes *models.ConsultationNotes) (*models.Appointment, error) {
	return s.transition(ctx, id, "completed", func(appt models.Appointment, now time.Time) (models.Appointment, lifecycle.Effects, error) {
		next, err := lifecycle.Complete(appt, actor, notes, now)
		return next, lifecycle.Effects{}, err
	})
}

func (s *bookingService) UpdateConsultationNotes(ctx context.Context, id primitive.ObjectID, actor models.Actor, notes models.ConsultationNotes) (*models.Appointment, error) {
	return s.transition(ctx, id, "notes_updated", func(appt models.Appointment, now time.Time) (models.Appointment, lifecycle.Effects, error) {
		next, err := lifecycle.AddNotes(appt, actor, notes, now)
		return next, lifecycle.Effects{}, err
	})
}

func (s *bookingService) RejectAppointment(ctx context.Context, id primitive.ObjectID, actor models.Actor, reason string) (*models.Appointment, error) {
	return s.transition(ctx, id, "rejected", func(appt models.Appointment, now time.Time) (models.Appointment, lifecycle.Effects, error) {
		return lifecycle.Reject(appt, actor, reason, now)
	})
}

func (s *bookingService) MarkNoShow(ctx context.Context, id primitive.ObjectID, actor models.Actor) (*models.Appointment, error) {
	return s.transition(ctx, id, "no_show", func(appt models.Appointment, now time.Time) (models.Appointment, lifecycle.Effects, error) {
		next, err := lifecycle.NoShow(appt, actor, now)
		return next, lifecycle.Effects{}, err
	})
}

type transitionFunc func(appt models.Appointment, now time.Time) (models.Appointment, lifecycle.Effects, error)

// transition reads, applies fn and writes with a version check, retrying
// on conflicts. Effects run once, after the winning write.
func (s *bookingService) transition(ctx context.Context, id primitive.ObjectID, event string, fn transitionFunc) (*models.Appointment, error) {
	updated, effects, err := applyTransition(ctx, s.appointmentRepo, s.maxRetries, id, s.now, fn)
	if err != nil {
		return nil, err
	}

	if effects.ReverseReferral {
		s.referrals.ReverseAppointmentUse(ctx, updated)
	}
	s.logger.WithContext(ctx).LogAppointmentEvent(updated.ID, event, map[string]interface{}{
		"status": updated.Status,
	})
	return updated, nil
}

func applyTransition(ctx context.Context, repo interfaces.AppointmentRepository, maxRetries int, id primitive.ObjectID, now clock, fn transitionFunc) (*models.Appointment, lifecycle.Effects, error) {
	var (
		updated *models.Appointment
		effects lifecycle.Effects
	)
	err := retryOnConflict(ctx, maxRetries, func() error {
		current, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		next, eff, err := fn(*current, now())
		if err != nil {
			return err
		}
		if err := repo.Update(ctx, &next); err != nil {
			return err
		}
		updated, effects = &next, eff
		return nil
	})
	return updated, effects, err
}
