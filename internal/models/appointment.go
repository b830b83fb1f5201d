package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusRejected  AppointmentStatus = "rejected"
	AppointmentStatusNoShow    AppointmentStatus = "no_show"
)

// IsActive reports whether the appointment still holds its doctor's slot.
func (s AppointmentStatus) IsActive() bool {
	return s == AppointmentStatusScheduled || s == AppointmentStatusConfirmed
}

type ConsultationNotes struct {
	Notes        string    `json:"notes,omitempty" bson:"notes,omitempty"`
	Diagnosis    string    `json:"diagnosis,omitempty" bson:"diagnosis,omitempty"`
	Prescription string    `json:"prescription,omitempty" bson:"prescription,omitempty"`
	UpdatedAt    time.Time `json:"updated_at" bson:"updated_at"`
}

// Appointment carries a pricing snapshot taken at booking. ConsultationFee,
// Discount, FinalAmount, ReferralCode and AgentCommission are never
// recomputed after creation.
type Appointment struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	PatientID       primitive.ObjectID `json:"patient_id" bson:"patient_id"`
	DoctorID        primitive.ObjectID `json:"doctor_id" bson:"doctor_id"`
	AppointmentDate time.Time          `json:"appointment_date" bson:"appointment_date"`
	Status          AppointmentStatus  `json:"status" bson:"status"`
	Symptoms        string             `json:"symptoms,omitempty" bson:"symptoms,omitempty"`

	ConsultationFee float64             `json:"consultation_fee" bson:"consultation_fee"`
	Discount        float64             `json:"discount" bson:"discount"`
	FinalAmount     float64             `json:"final_amount" bson:"final_amount"`
	ReferralCode    string              `json:"referral_code,omitempty" bson:"referral_code,omitempty"`
	ReferralCodeID  *primitive.ObjectID `json:"referral_code_id,omitempty" bson:"referral_code_id,omitempty"`
	AgentID         *primitive.ObjectID `json:"agent_id,omitempty" bson:"agent_id,omitempty"`
	AgentCommission float64             `json:"agent_commission" bson:"agent_commission"`

	// ReferralCounted is set once the code's aggregates were incremented for
	// this appointment; ReferralReversed once they were decremented again.
	ReferralCounted  bool `json:"referral_counted" bson:"referral_counted"`
	ReferralReversed bool `json:"referral_reversed" bson:"referral_reversed"`

	PaymentMethod PaymentMethod       `json:"payment_method,omitempty" bson:"payment_method,omitempty"`
	PaymentStatus PaymentStatus       `json:"payment_status" bson:"payment_status"`
	PaymentID     *primitive.ObjectID `json:"payment_id,omitempty" bson:"payment_id,omitempty"`

	Consultation *ConsultationNotes `json:"consultation,omitempty" bson:"consultation,omitempty"`

	CancellationReason string              `json:"cancellation_reason,omitempty" bson:"cancellation_reason,omitempty"`
	CancelledBy        *primitive.ObjectID `json:"cancelled_by,omitempty" bson:"cancelled_by,omitempty"`
	RejectionReason    string              `json:"rejection_reason,omitempty" bson:"rejection_reason,omitempty"`

	ConfirmedAt *time.Time `json:"confirmed_at,omitempty" bson:"confirmed_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`

	// ActiveSlot is present only while the appointment is scheduled or
	// confirmed. A unique index over it rejects double booking.
	ActiveSlot *string `json:"-" bson:"active_slot,omitempty"`
	Version    int64   `json:"version" bson:"version"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

func SlotKey(doctorID primitive.ObjectID, at time.Time) string {
	return fmt.Sprintf("%s|%d", doctorID.Hex(), at.UTC().Unix())
}

// SyncSlot keeps a.ActiveSlot in step with its Status and AppointmentDate.
func SyncSlot(a *Appointment) {
	if a.Status.IsActive() {
		key := SlotKey(a.DoctorID, a.AppointmentDate)
		a.ActiveSlot = &key
		return
	}
	a.ActiveSlot = nil
}

// AppointmentView is an appointment joined with both parties.
type AppointmentView struct {
	Appointment *Appointment `json:"appointment"`
	Patient     *User        `json:"patient"`
	Doctor      *User        `json:"doctor"`
}
