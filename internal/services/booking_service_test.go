package services

import (
	"errors"
	"sync"
	"testing"
	"time"

	"medibook/internal/apperrors"
	"medibook/internal/models"
)

func TestBookAppointmentPricing(t *testing.T) {
	f := newFixture(t)
	f.createCode(t, "save20", nil)
	f.createCode(t, "FLAT50", func(c *ReferralCodeConfig) {
		c.DiscountType = models.DiscountTypeFixed
		c.DiscountValue = 50
		c.MinOrderAmount = 500
	})

	tests := []struct {
		name           string
		code           string
		baseFee        float64
		wantDiscount   float64
		wantFinal      float64
		wantCommission float64
		wantReason     apperrors.ReferralRejection
	}{
		{name: "percentage code", code: "SAVE20", wantDiscount: 200, wantFinal: 800, wantCommission: 80},
		{name: "code is case insensitive", code: " save20 ", wantDiscount: 200, wantFinal: 800, wantCommission: 80},
		{name: "no code", code: "", wantFinal: 1000},
		{name: "fixed code", code: "FLAT50", wantDiscount: 50, wantFinal: 950, wantCommission: 95},
		{name: "below minimum", code: "FLAT50", baseFee: 300, wantReason: apperrors.ReasonMinimumAmountNotMet},
		{name: "unknown code", code: "NOPE", wantReason: apperrors.ReasonNotFound},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patient := f.newPatient(t)
			appt, err := f.booking.BookAppointment(f.ctx, &BookAppointmentInput{
				PatientID:       patient.ID,
				DoctorID:        f.doctor.ID,
				AppointmentDate: f.now.Add(time.Duration(24+i) * time.Hour),
				BaseFee:         tt.baseFee,
				ReferralCode:    tt.code,
			})
			if tt.wantReason != "" {
				assertReferralRejection(t, err, tt.wantReason)
				return
			}
			if err != nil {
				t.Fatalf("BookAppointment: %v", err)
			}
			if appt.Discount != tt.wantDiscount || appt.FinalAmount != tt.wantFinal || appt.AgentCommission != tt.wantCommission {
				t.Errorf("priced %.2f/%.2f/%.2f, want %.2f/%.2f/%.2f",
					appt.Discount, appt.FinalAmount, appt.AgentCommission,
					tt.wantDiscount, tt.wantFinal, tt.wantCommission)
			}
			if appt.Status != models.AppointmentStatusScheduled || appt.PaymentStatus != models.PaymentStatusPending {
				t.Errorf("new appointment is %s/%s", appt.Status, appt.PaymentStatus)
			}
			if tt.code != "" && (appt.AgentID == nil || *appt.AgentID != f.agent.ID) {
				t.Errorf("agent not attached to appointment")
			}
		})
	}
}

func TestBookAppointmentDoesNotCountReferralUntilPaid(t *testing.T) {
	f := newFixture(t)
	code := f.createCode(t, "SAVE20", nil)

	f.book(t, f.newPatient(t), f.now.Add(24*time.Hour), "SAVE20")

	stored := f.code(t, code.ID)
	if stored.UsageCount != 0 || stored.TotalCommissionEarned != 0 {
		t.Fatalf("booking changed aggregates: usage %d, commission %.2f", stored.UsageCount, stored.TotalCommissionEarned)
	}
}

func TestBookAppointmentPerUserLimit(t *testing.T) {
	f := newFixture(t)
	f.createCode(t, "ONCE", nil)
	patient := f.newPatient(t)

	first := f.book(t, patient, f.now.Add(24*time.Hour), "ONCE")

	_, err := f.booking.BookAppointment(f.ctx, &BookAppointmentInput{
		PatientID:       patient.ID,
		DoctorID:        f.doctor.ID,
		AppointmentDate: f.now.Add(48 * time.Hour),
		ReferralCode:    "ONCE",
	})
	assertReferralRejection(t, err, apperrors.ReasonUserUsageLimitExceeded)

	if _, err := f.booking.CancelAppointment(f.ctx, first.ID, actorOf(patient), "changed plans"); err != nil {
		t.Fatalf("CancelAppointment: %v", err)
	}
	f.book(t, patient, f.now.Add(48*time.Hour), "ONCE")
}

func TestBookAppointmentRoleTargeting(t *testing.T) {
	f := newFixture(t)
	f.createCode(t, "DOCS", func(c *ReferralCodeConfig) {
		c.TargetRoles = []models.UserRole{models.UserRoleDoctor}
	})

	_, err := f.booking.BookAppointment(f.ctx, &BookAppointmentInput{
		PatientID:       f.newPatient(t).ID,
		DoctorID:        f.doctor.ID,
		AppointmentDate: f.now.Add(24 * time.Hour),
		ReferralCode:    "DOCS",
	})
	assertReferralRejection(t, err, apperrors.ReasonRoleNotEligible)
}

func TestBookAppointmentConcurrentSameSlot(t *testing.T) {
	f := newFixture(t)
	slot := f.now.Add(72 * time.Hour)

	const attempts = 8
	patients := make([]*models.User, attempts)
	for i := range patients {
		patients[i] = f.newPatient(t)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		booked  int
		refused int
		other   []error
	)
	for _, p := range patients {
		wg.Add(1)
		go func(p *models.User) {
			defer wg.Done()
			_, err := f.booking.BookAppointment(f.ctx, &BookAppointmentInput{
				PatientID:       p.ID,
				DoctorID:        f.doctor.ID,
				AppointmentDate: slot,
			})
			mu.Lock()
			defer mu.Unlock()
			var unavailable *apperrors.SlotUnavailableError
			switch {
			case err == nil:
				booked++
			case errors.As(err, &unavailable):
				refused++
			default:
				other = append(other, err)
			}
		}(p)
	}
	wg.Wait()

	if len(other) > 0 {
		t.Fatalf("unexpected errors: %v", other)
	}
	if booked != 1 || refused != attempts-1 {
		t.Fatalf("booked %d, refused %d; want 1 and %d", booked, refused, attempts-1)
	}
}

func TestBookAppointmentRejectsInvalidParties(t *testing.T) {
	f := newFixture(t)
	pending := f.addUser(t, &models.User{Name: "Dr. New", Email: "new@example.com", Role: models.UserRoleDoctor, ConsultationFee: 500})
	patient := f.newPatient(t)

	tests := []struct {
		name    string
		input   BookAppointmentInput
		wantErr error
	}{
		{
			name:    "unapproved doctor",
			input:   BookAppointmentInput{PatientID: patient.ID, DoctorID: pending.ID, AppointmentDate: f.now.Add(24 * time.Hour)},
			wantErr: apperrors.ErrInvalidInput,
		},
		{
			name:    "past date",
			input:   BookAppointmentInput{PatientID: patient.ID, DoctorID: f.doctor.ID, AppointmentDate: f.now.Add(-time.Hour)},
			wantErr: apperrors.ErrInvalidInput,
		},
		{
			name:    "agent cannot book",
			input:   BookAppointmentInput{PatientID: f.agent.ID, DoctorID: f.doctor.ID, AppointmentDate: f.now.Add(24 * time.Hour)},
			wantErr: apperrors.ErrForbidden,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := tt.input
			if _, err := f.booking.BookAppointment(f.ctx, &input); !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCancelReversesReferralOnce(t *testing.T) {
	f := newFixture(t)
	code := f.createCode(t, "FIXED50", func(c *ReferralCodeConfig) {
		c.CommissionType = models.CommissionTypeFixed
		c.CommissionValue = 50
	})

	first := f.book(t, f.newPatient(t), f.now.Add(24*time.Hour), "FIXED50")
	second := f.book(t, f.newPatient(t), f.now.Add(25*time.Hour), "FIXED50")
	f.payRazorpay(t, first)
	f.payRazorpay(t, second)

	if got := f.code(t, code.ID).TotalCommissionEarned; got != 100 {
		t.Fatalf("commission after two payments = %.2f, want 100", got)
	}

	cancelled, err := f.booking.CancelAppointment(f.ctx, first.ID, actorOf(f.admin), "doctor unavailable")
	if err != nil {
		t.Fatalf("CancelAppointment: %v", err)
	}
	if !cancelled.ReferralReversed || cancelled.ActiveSlot != nil {
		t.Fatalf("cancelled appointment: reversed=%v slot=%v", cancelled.ReferralReversed, cancelled.ActiveSlot)
	}
	if got := f.code(t, code.ID).TotalCommissionEarned; got != 50 {
		t.Fatalf("commission after cancel = %.2f, want 50", got)
	}

	_, err = f.booking.CancelAppointment(f.ctx, first.ID, actorOf(f.admin), "again")
	assertInvalidTransition(t, err)

	stored := f.code(t, code.ID)
	if stored.TotalCommissionEarned != 50 || stored.UsageCount != 1 {
		t.Fatalf("after repeated cancel: commission %.2f, usage %d", stored.TotalCommissionEarned, stored.UsageCount)
	}
}

func TestRejectReversesCountedReferral(t *testing.T) {
	f := newFixture(t)
	code := f.createCode(t, "SAVE20", nil)
	appt := f.book(t, f.newPatient(t), f.now.Add(24*time.Hour), "SAVE20")
	f.payRazorpay(t, appt)

	if _, err := f.booking.RejectAppointment(f.ctx, appt.ID, actorOf(f.doctor), "outside specialty"); err != nil {
		t.Fatalf("RejectAppointment: %v", err)
	}
	stored := f.code(t, code.ID)
	if stored.UsageCount != 0 || stored.TotalCommissionEarned != 0 {
		t.Fatalf("after reject: usage %d, commission %.2f", stored.UsageCount, stored.TotalCommissionEarned)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	f := newFixture(t)
	patient := f.newPatient(t)
	appt := f.book(t, patient, f.now.Add(24*time.Hour), "")

	_, err := f.booking.CompleteAppointment(f.ctx, appt.ID, actorOf(f.doctor), nil)
	assertInvalidTransition(t, err)

	if _, err := f.booking.ConfirmAppointment(f.ctx, appt.ID, actorOf(patient)); !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("patient confirm: got %v, want ErrForbidden", err)
	}

	confirmed, err := f.booking.ConfirmAppointment(f.ctx, appt.ID, actorOf(f.doctor))
	if err != nil {
		t.Fatalf("ConfirmAppointment: %v", err)
	}
	if confirmed.Status != models.AppointmentStatusConfirmed || confirmed.ConfirmedAt == nil {
		t.Fatalf("confirm left %s", confirmed.Status)
	}

	notes := &models.ConsultationNotes{Diagnosis: "migraine", Prescription: "rest"}
	completed, err := f.booking.CompleteAppointment(f.ctx, appt.ID, actorOf(f.doctor), notes)
	if err != nil {
		t.Fatalf("CompleteAppointment: %v", err)
	}
	if completed.Status != models.AppointmentStatusCompleted || completed.Consultation == nil || completed.ActiveSlot != nil {
		t.Fatalf("complete left %+v", completed)
	}

	updated, err := f.booking.UpdateConsultationNotes(f.ctx, appt.ID, actorOf(f.doctor), models.ConsultationNotes{Diagnosis: "tension headache"})
	if err != nil {
		t.Fatalf("UpdateConsultationNotes: %v", err)
	}
	if updated.Consultation.Diagnosis != "tension headache" {
		t.Fatalf("diagnosis = %q", updated.Consultation.Diagnosis)
	}

	_, err = f.booking.CancelAppointment(f.ctx, appt.ID, actorOf(f.admin), "late")
	assertInvalidTransition(t, err)
}

func TestPatientCancelWindow(t *testing.T) {
	f := newFixture(t)
	patient := f.newPatient(t)
	soon := f.book(t, patient, f.now.Add(time.Hour), "")

	_, err := f.booking.CancelAppointment(f.ctx, soon.ID, actorOf(patient), "too late")
	assertInvalidTransition(t, err)

	if _, err := f.booking.CancelAppointment(f.ctx, soon.ID, actorOf(f.doctor), "emergency"); err != nil {
		t.Fatalf("doctor cancel inside window: %v", err)
	}
}

func TestRescheduleReleasesSlot(t *testing.T) {
	f := newFixture(t)
	patient := f.newPatient(t)
	original := f.now.Add(24 * time.Hour)
	appt := f.book(t, patient, original, "")

	moved, err := f.booking.RescheduleAppointment(f.ctx, appt.ID, actorOf(patient), f.now.Add(30*time.Hour))
	if err != nil {
		t.Fatalf("RescheduleAppointment: %v", err)
	}
	if !moved.AppointmentDate.Equal(f.now.Add(30 * time.Hour)) {
		t.Fatalf("date = %v", moved.AppointmentDate)
	}

	f.book(t, f.newPatient(t), original, "")

	_, err = f.booking.RescheduleAppointment(f.ctx, appt.ID, actorOf(patient), original)
	var unavailable *apperrors.SlotUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("reschedule into a taken slot: got %v", err)
	}
}

func TestMarkNoShow(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.newPatient(t), f.now.Add(time.Hour), "")

	_, err := f.booking.MarkNoShow(f.ctx, appt.ID, actorOf(f.doctor))
	assertInvalidTransition(t, err)

	f.now = f.now.Add(2 * time.Hour)
	marked, err := f.booking.MarkNoShow(f.ctx, appt.ID, actorOf(f.doctor))
	if err != nil {
		t.Fatalf("MarkNoShow: %v", err)
	}
	if marked.Status != models.AppointmentStatusNoShow {
		t.Fatalf("status = %s", marked.Status)
	}
}

func TestGetAppointmentWithParties(t *testing.T) {
	f := newFixture(t)
	patient := f.newPatient(t)
	appt := f.book(t, patient, f.now.Add(24*time.Hour), "")

	view, err := f.booking.GetAppointmentWithParties(f.ctx, appt.ID)
	if err != nil {
		t.Fatalf("GetAppointmentWithParties: %v", err)
	}
	if view.Patient.ID != patient.ID || view.Doctor.ID != f.doctor.ID {
		t.Fatalf("wrong parties: %s / %s", view.Patient.ID.Hex(), view.Doctor.ID.Hex())
	}

	list, err := f.booking.ListDoctorAppointments(f.ctx, f.doctor.ID, f.now, f.now.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("ListDoctorAppointments: %v", err)
	}
	if len(list) != 1 || list[0].ID != appt.ID {
		t.Fatalf("doctor list = %d entries", len(list))
	}
}
