package handlers

import (
	"medibook/internal/apperrors"
	"medibook/internal/models"
	"medibook/internal/services"
	"medibook/internal/utils"
	"medibook/internal/validators"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AppointmentHandler struct {
	bookingService  services.BookingService
	referralService services.ReferralService
}

func NewAppointmentHandler(bookingService services.BookingService, referralService services.ReferralService) *AppointmentHandler {
	return &AppointmentHandler{
		bookingService:  bookingService,
		referralService: referralService,
	}
}

// BookAppointment books a slot for the calling patient
func (h *AppointmentHandler) BookAppointment(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req validators.BookAppointmentRequest
	if !bindJSON(c, &req) || validationFailed(c, validators.ValidateBookAppointment(&req)) {
		return
	}

	appointment, err := h.bookingService.BookAppointment(c.Request.Context(), &services.BookAppointmentInput{
		PatientID:       actor.ID,
		DoctorID:        validators.MustObjectID(req.DoctorID),
		AppointmentDate: req.AppointmentDate,
		ReferralCode:    req.ReferralCode,
		Symptoms:        req.Symptoms,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, "Appointment booked successfully", appointment)
}

// ValidateReferral previews the price a code would give without booking
func (h *AppointmentHandler) ValidateReferral(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req validators.ValidateReferralRequest
	if !bindJSON(c, &req) || validationFailed(c, validators.ValidateStruct(&req)) {
		return
	}

	decision, err := h.referralService.ValidateReferral(c.Request.Context(), req.Code, actor, req.OrderAmount)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Referral code is valid", decision)
}

// GetAppointment returns the appointment with its patient and doctor
func (h *AppointmentHandler) GetAppointment(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	appointmentID, ok := paramObjectID(c, "id", "appointment")
	if !ok {
		return
	}

	view, err := h.bookingService.GetAppointmentWithParties(c.Request.Context(), appointmentID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !canView(actor, view.Appointment) {
		respondError(c, apperrors.ErrForbidden)
		return
	}

	utils.SuccessResponse(c, "Appointment retrieved successfully", view)
}

// GetMyAppointments lists the calling patient's appointments
func (h *AppointmentHandler) GetMyAppointments(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c, "appointment_date", "created_at")
	appointments, total, err := h.bookingService.ListPatientAppointments(c.Request.Context(), actor.ID, params)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, "Appointments retrieved successfully", appointments, &utils.Meta{
		Pagination: utils.CreatePaginationMeta(params, total),
	})
}

// GetDoctorSchedule lists the calling doctor's appointments in a date range
func (h *AppointmentHandler) GetDoctorSchedule(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	h.listDoctorAppointments(c, actor)
}

// GetDoctorAppointments is the admin view of any doctor's calendar
func (h *AppointmentHandler) GetDoctorAppointments(c *gin.Context) {
	doctorID, ok := paramObjectID(c, "id", "doctor")
	if !ok {
		return
	}
	h.listDoctorAppointments(c, models.Actor{ID: doctorID, Role: models.UserRoleDoctor})
}

func (h *AppointmentHandler) listDoctorAppointments(c *gin.Context, doctor models.Actor) {
	var query validators.DateRangeQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		utils.BadRequestResponse(c, "Invalid date range: "+err.Error())
		return
	}
	if validationFailed(c, validators.ValidateDateRange(&query)) {
		return
	}

	appointments, err := h.bookingService.ListDoctorAppointments(c.Request.Context(), doctor.ID, query.From, query.To)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, "Appointments retrieved successfully", appointments, &utils.Meta{
		Count: len(appointments),
	})
}

// ConfirmAppointment is the doctor's acceptance of a booking
func (h *AppointmentHandler) ConfirmAppointment(c *gin.Context) {
	h.transition(c, "Appointment confirmed successfully", func(c *gin.Context, req transitionRequest) (*models.Appointment, error) {
		return h.bookingService.ConfirmAppointment(c.Request.Context(), req.appointmentID, req.actor)
	})
}

func (h *AppointmentHandler) RescheduleAppointment(c *gin.Context) {
	var body validators.RescheduleAppointmentRequest
	h.transitionWithBody(c, &body, func() validators.ValidationErrors { return validators.ValidateStruct(&body) },
		"Appointment rescheduled successfully",
		func(c *gin.Context, req transitionRequest) (*models.Appointment, error) {
			return h.bookingService.RescheduleAppointment(c.Request.Context(), req.appointmentID, req.actor, body.AppointmentDate)
		})
}

func (h *AppointmentHandler) CancelAppointment(c *gin.Context) {
	var body validators.ReasonRequest
	h.optionalBody(c, &body, func() validators.ValidationErrors { return validators.ValidateReason(&body) },
		"Appointment cancelled successfully",
		func(c *gin.Context, req transitionRequest) (*models.Appointment, error) {
			return h.bookingService.CancelAppointment(c.Request.Context(), req.appointmentID, req.actor, body.Reason)
		})
}

func (h *AppointmentHandler) RejectAppointment(c *gin.Context) {
	var body validators.ReasonRequest
	h.optionalBody(c, &body, func() validators.ValidationErrors { return validators.ValidateReason(&body) },
		"Appointment rejected successfully",
		func(c *gin.Context, req transitionRequest) (*models.Appointment, error) {
			return h.bookingService.RejectAppointment(c.Request.Context(), req.appointmentID, req.actor, body.Reason)
		})
}

// CompleteAppointment closes the consultation, optionally with notes
func (h *AppointmentHandler) CompleteAppointment(c *gin.Context) {
	var body validators.ConsultationNotesRequest
	var notes *models.ConsultationNotes
	h.optionalBody(c, &body, func() validators.ValidationErrors {
		if body == (validators.ConsultationNotesRequest{}) {
			return nil
		}
		notes = consultationNotes(&body)
		return validators.ValidateConsultationNotes(&body)
	}, "Appointment completed successfully",
		func(c *gin.Context, req transitionRequest) (*models.Appointment, error) {
			return h.bookingService.CompleteAppointment(c.Request.Context(), req.appointmentID, req.actor, notes)
		})
}

func (h *AppointmentHandler) UpdateConsultationNotes(c *gin.Context) {
	var body validators.ConsultationNotesRequest
	h.transitionWithBody(c, &body, func() validators.ValidationErrors { return validators.ValidateConsultationNotes(&body) },
		"Consultation notes updated successfully",
		func(c *gin.Context, req transitionRequest) (*models.Appointment, error) {
			return h.bookingService.UpdateConsultationNotes(c.Request.Context(), req.appointmentID, req.actor, *consultationNotes(&body))
		})
}

func (h *AppointmentHandler) MarkNoShow(c *gin.Context) {
	h.transition(c, "Appointment marked as no-show", func(c *gin.Context, req transitionRequest) (*models.Appointment, error) {
		return h.bookingService.MarkNoShow(c.Request.Context(), req.appointmentID, req.actor)
	})
}

type transitionRequest struct {
	actor         models.Actor
	appointmentID primitive.ObjectID
}

type transitionFunc func(c *gin.Context, req transitionRequest) (*models.Appointment, error)

func (h *AppointmentHandler) transition(c *gin.Context, message string, apply transitionFunc) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	appointmentID, ok := paramObjectID(c, "id", "appointment")
	if !ok {
		return
	}

	appointment, err := apply(c, transitionRequest{actor: actor, appointmentID: appointmentID})
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, message, appointment)
}

func (h *AppointmentHandler) transitionWithBody(c *gin.Context, body interface{}, validate func() validators.ValidationErrors, message string, apply transitionFunc) {
	if !bindJSON(c, body) || validationFailed(c, validate()) {
		return
	}
	h.transition(c, message, apply)
}

func (h *AppointmentHandler) optionalBody(c *gin.Context, body interface{}, validate func() validators.ValidationErrors, message string, apply transitionFunc) {
	if !bindOptionalJSON(c, body) || validationFailed(c, validate()) {
		return
	}
	h.transition(c, message, apply)
}

func consultationNotes(req *validators.ConsultationNotesRequest) *models.ConsultationNotes {
	return &models.ConsultationNotes{
		Notes:        validators.SanitizeInput(req.Notes),
		Diagnosis:    validators.SanitizeInput(req.Diagnosis),
		Prescription: validators.SanitizeInput(req.Prescription),
	}
}

// canView allows the parties to an appointment, its referring agent and
// admins.
func canView(actor models.Actor, appointment *models.Appointment) bool {
	switch actor.Role {
	case models.UserRoleAdmin:
		return true
	case models.UserRolePatient:
		return appointment.PatientID == actor.ID
	case models.UserRoleDoctor:
		return appointment.DoctorID == actor.ID
	case models.UserRoleAgent:
		return appointment.AgentID != nil && *appointment.AgentID == actor.ID
	}
	return false
}
