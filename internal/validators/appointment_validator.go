package validators

import "time"

type BookAppointmentRequest struct {
	DoctorID        string    `json:"doctor_id" validate:"required,object_id"`
	AppointmentDate time.Time `json:"appointment_date" validate:"required,future_date"`
	ReferralCode    string    `json:"referral_code" validate:"omitempty,referral_code"`
	Symptoms        string    `json:"symptoms" validate:"omitempty,max=2000"`
}

type ValidateReferralRequest struct {
	Code        string  `json:"code" validate:"required,referral_code"`
	OrderAmount float64 `json:"order_amount" validate:"gt=0"`
}

type RescheduleAppointmentRequest struct {
	AppointmentDate time.Time `json:"appointment_date" validate:"required,future_date"`
}

type ReasonRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

type ConsultationNotesRequest struct {
	Notes        string `json:"notes" validate:"omitempty,max=5000"`
	Diagnosis    string `json:"diagnosis" validate:"omitempty,max=5000"`
	Prescription string `json:"prescription" validate:"omitempty,max=5000"`
}

type DateRangeQuery struct {
	From time.Time `form:"from" json:"from" time_format:"2006-01-02T15:04:05Z07:00" validate:"required"`
	To   time.Time `form:"to" json:"to" time_format:"2006-01-02T15:04:05Z07:00" validate:"required,gtfield=From"`
}

func ValidateBookAppointment(req *BookAppointmentRequest) ValidationErrors {
	req.Symptoms = SanitizeInput(req.Symptoms)
	return ValidateStruct(req)
}

func ValidateReason(req *ReasonRequest) ValidationErrors {
	req.Reason = SanitizeInput(req.Reason)
	return ValidateStruct(req)
}

func ValidateConsultationNotes(req *ConsultationNotesRequest) ValidationErrors {
	errors := ValidateStruct(req)
	if req.Notes == "" && req.Diagnosis == "" && req.Prescription == "" {
		errors = append(errors, ValidationError{
			Field:   "notes",
			Tag:     "required",
			Message: "At least one of notes, diagnosis or prescription is required",
		})
	}
	return errors
}

// ValidateDateRange also caps the range so a doctor's calendar query stays
// bounded.
func ValidateDateRange(req *DateRangeQuery) ValidationErrors {
	errors := ValidateStruct(req)
	if len(errors) == 0 && req.To.Sub(req.From) > maxCalendarRange {
		errors = append(errors, ValidationError{
			Field:   "to",
			Tag:     "max",
			Message: "Range cannot exceed 92 days",
		})
	}
	return errors
}

const maxCalendarRange = 92 * 24 * time.Hour
