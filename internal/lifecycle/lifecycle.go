// Package lifecycle is the appointment state machine. Transitions are pure:
// they take an appointment value and return the next one, leaving
// persistence and side effects to the caller.
package lifecycle

import (
	"fmt"
	"time"

	"medibook/internal/apperrors"
	"medibook/internal/models"
)

type Transition string

const (
	TransitionConfirm    Transition = "confirm"
	TransitionReschedule Transition = "reschedule"
	TransitionCancel     Transition = "cancel"
	TransitionComplete   Transition = "complete"
	TransitionReject     Transition = "reject"
	TransitionNoShow     Transition = "mark no_show"
	TransitionAddNotes   Transition = "add notes to"
	TransitionMarkPaid   Transition = "mark paid"

	RefundCancellationReason = "payment refunded"
)

// Effects lists what the caller must do after persisting a transition.
type Effects struct {
	ReverseReferral bool
}

type Policy struct {
	// PatientCancelWindow is how long before the appointment a patient may
	// still cancel.
	PatientCancelWindow time.Duration
}

func DefaultPolicy() Policy {
	return Policy{PatientCancelWindow: 2 * time.Hour}
}

func invalid(appt models.Appointment, t Transition, reason string) error {
	return apperrors.InvalidTransition(string(appt.Status), string(t), reason)
}

func forbidden(t Transition, actor models.Actor) error {
	return fmt.Errorf("%w: %s may not %s this appointment", apperrors.ErrForbidden, actor.Role, t)
}

func isAssignedDoctor(appt models.Appointment, actor models.Actor) bool {
	return actor.Role == models.UserRoleDoctor && actor.ID == appt.DoctorID
}

func isOwningPatient(appt models.Appointment, actor models.Actor) bool {
	return actor.Role == models.UserRolePatient && actor.ID == appt.PatientID
}

func requireActive(appt models.Appointment, t Transition) error {
	if !appt.Status.IsActive() {
		return invalid(appt, t, "appointment is no longer scheduled or confirmed")
	}
	return nil
}

func touch(appt *models.Appointment, now time.Time) {
	models.SyncSlot(appt)
	appt.UpdatedAt = now
}

// Confirm moves a scheduled appointment to confirmed on the doctor's word.
func Confirm(appt models.Appointment, actor models.Actor, now time.Time) (models.Appointment, error) {
	if actor.Role != models.UserRoleSystem && !isAssignedDoctor(appt, actor) {
		return appt, forbidden(TransitionConfirm, actor)
	}
	if appt.Status != models.AppointmentStatusScheduled {
		return appt, invalid(appt, TransitionConfirm, "only scheduled appointments can be confirmed")
	}
	appt.Status = models.AppointmentStatusConfirmed
	appt.ConfirmedAt = &now
	touch(&appt, now)
	return appt, nil
}

// MarkPaid records a completed payment. A scheduled appointment is
// confirmed; one that is already confirmed only has its payment status set.
func MarkPaid(appt models.Appointment, payment *models.Payment, now time.Time) (models.Appointment, error) {
	if !appt.Status.IsActive() {
		return appt, invalid(appt, TransitionMarkPaid, "appointment is no longer scheduled or confirmed")
	}
	if appt.Status == models.AppointmentStatusScheduled {
		appt.Status = models.AppointmentStatusConfirmed
		appt.ConfirmedAt = &now
	}
	appt.PaymentStatus = models.PaymentStatusCompleted
	if payment != nil {
		id := payment.ID
		appt.PaymentID = &id
		appt.PaymentMethod = payment.PaymentMethod
	}
	touch(&appt, now)
	return appt, nil
}

// MarkPaymentFailed leaves the status alone so the patient can pay again.
func MarkPaymentFailed(appt models.Appointment, now time.Time) models.Appointment {
	appt.PaymentStatus = models.PaymentStatusFailed
	appt.UpdatedAt = now
	return appt
}

// Reschedule moves the appointment to newDate and re-enters scheduled.
// Slot conflicts are checked by the store when the change is written.
func Reschedule(appt models.Appointment, actor models.Actor, newDate, now time.Time) (models.Appointment, error) {
	if !isAssignedDoctor(appt, actor) && !isOwningPatient(appt, actor) {
		return appt, forbidden(TransitionReschedule, actor)
	}
	if err := requireActive(appt, TransitionReschedule); err != nil {
		return appt, err
	}
	if !newDate.After(now) {
		return appt, invalid(appt, TransitionReschedule, "new appointment date must be in the future")
	}
	if newDate.Equal(appt.AppointmentDate) {
		return appt, invalid(appt, TransitionReschedule, "new appointment date equals the current one")
	}
	appt.AppointmentDate = newDate
	appt.Status = models.AppointmentStatusScheduled
	appt.ConfirmedAt = nil
	touch(&appt, now)
	return appt, nil
}

// Cancel ends an active appointment. Patients must cancel at least
// policy.PatientCancelWindow ahead; doctors, admins and the system may
// cancel at any time.
func Cancel(appt models.Appointment, actor models.Actor, reason string, policy Policy, now time.Time) (models.Appointment, Effects, error) {
	switch {
	case actor.Role == models.UserRoleAdmin, actor.Role == models.UserRoleSystem, isAssignedDoctor(appt, actor):
	case isOwningPatient(appt, actor):
		if appt.AppointmentDate.Sub(now) < policy.PatientCancelWindow {
			return appt, Effects{}, invalid(appt, TransitionCancel,
				fmt.Sprintf("patients must cancel at least %s before the appointment", policy.PatientCancelWindow))
		}
	default:
		return appt, Effects{}, forbidden(TransitionCancel, actor)
	}
	if err := requireActive(appt, TransitionCancel); err != nil {
		return appt, Effects{}, err
	}

	appt.Status = models.AppointmentStatusCancelled
	appt.CancellationReason = reason
	appt.CancelledAt = &now
	if actor.Role != models.UserRoleSystem {
		by := actor.ID
		appt.CancelledBy = &by
	}
	touch(&appt, now)
	return appt, settleReferral(&appt), nil
}

// settleReferral flags a counted referral as reversed on the appointment so
// the flag is persisted together with the terminal status.
func settleReferral(appt *models.Appointment) Effects {
	if appt.ReferralCodeID == nil || !appt.ReferralCounted || appt.ReferralReversed {
		return Effects{}
	}
	appt.ReferralReversed = true
	return Effects{ReverseReferral: true}
}

// Complete requires the assigned doctor and a confirmed appointment.
func Complete(appt models.Appointment, actor models.Actor, notes *models.ConsultationNotes, now time.Time) (models.Appointment, error) {
	if !isAssignedDoctor(appt, actor) {
		return appt, forbidden(TransitionComplete, actor)
	}
	if appt.Status != models.AppointmentStatusConfirmed {
		return appt, invalid(appt, TransitionComplete, "only confirmed appointments can be completed")
	}
	appt.Status = models.AppointmentStatusCompleted
	appt.CompletedAt = &now
	if notes != nil {
		n := *notes
		n.UpdatedAt = now
		appt.Consultation = &n
	}
	touch(&appt, now)
	return appt, nil
}

// AddNotes edits consultation notes on a completed appointment.
func AddNotes(appt models.Appointment, actor models.Actor, notes models.ConsultationNotes, now time.Time) (models.Appointment, error) {
	if !isAssignedDoctor(appt, actor) {
		return appt, forbidden(TransitionAddNotes, actor)
	}
	if appt.Status != models.AppointmentStatusCompleted {
		return appt, invalid(appt, TransitionAddNotes, "notes can only be attached to completed appointments")
	}
	notes.UpdatedAt = now
	appt.Consultation = &notes
	appt.UpdatedAt = now
	return appt, nil
}

func Reject(appt models.Appointment, actor models.Actor, reason string, now time.Time) (models.Appointment, Effects, error) {
	if !isAssignedDoctor(appt, actor) {
		return appt, Effects{}, forbidden(TransitionReject, actor)
	}
	if err := requireActive(appt, TransitionReject); err != nil {
		return appt, Effects{}, err
	}
	appt.Status = models.AppointmentStatusRejected
	appt.RejectionReason = reason
	touch(&appt, now)
	return appt, settleReferral(&appt), nil
}

// NoShow is only allowed once the appointment time has passed.
func NoShow(appt models.Appointment, actor models.Actor, now time.Time) (models.Appointment, error) {
	if !isAssignedDoctor(appt, actor) {
		return appt, forbidden(TransitionNoShow, actor)
	}
	if appt.Status != models.AppointmentStatusScheduled {
		return appt, invalid(appt, TransitionNoShow, "only scheduled appointments can be marked no_show")
	}
	if !now.After(appt.AppointmentDate) {
		return appt, invalid(appt, TransitionNoShow, "appointment time has not passed yet")
	}
	appt.Status = models.AppointmentStatusNoShow
	touch(&appt, now)
	return appt, nil
}

// ApplyRefund records a refund against the appointment. A full refund
// cancels an active appointment and releases a counted referral even when
// the appointment already completed.
func ApplyRefund(appt models.Appointment, fully bool, now time.Time) (models.Appointment, Effects) {
	if !fully {
		appt.PaymentStatus = models.PaymentStatusPartiallyRefunded
		appt.UpdatedAt = now
		return appt, Effects{}
	}
	appt.PaymentStatus = models.PaymentStatusRefunded
	if appt.Status.IsActive() {
		appt.Status = models.AppointmentStatusCancelled
		appt.CancellationReason = RefundCancellationReason
		appt.CancelledAt = &now
	}
	touch(&appt, now)
	return appt, settleReferral(&appt)
}
