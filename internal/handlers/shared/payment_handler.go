package handlers

import (
	"strings"

	"medibook/internal/apperrors"
	"medibook/internal/models"
	"medibook/internal/services"
	"medibook/internal/utils"
	"medibook/internal/validators"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	paymentService services.PaymentService
	refundService  services.RefundService
	bookingService services.BookingService
}

func NewPaymentHandler(paymentService services.PaymentService, refundService services.RefundService, bookingService services.BookingService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		refundService:  refundService,
		bookingService: bookingService,
	}
}

// InitiatePayment opens a gateway order for the appointment's final amount
func (h *PaymentHandler) InitiatePayment(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	appointmentID, ok := paramObjectID(c, "id", "appointment")
	if !ok {
		return
	}

	var req validators.InitiatePaymentRequest
	if !bindJSON(c, &req) || validationFailed(c, validators.ValidateInitiatePayment(&req)) {
		return
	}

	checkout, err := h.paymentService.InitiatePayment(c.Request.Context(), appointmentID, actor, models.PaymentMethod(req.Gateway))
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, "Payment initiated successfully", checkout)
}

// GetAppointmentPayments lists every payment attempt for an appointment
func (h *PaymentHandler) GetAppointmentPayments(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	appointmentID, ok := paramObjectID(c, "id", "appointment")
	if !ok {
		return
	}

	appointment, err := h.bookingService.GetAppointment(c.Request.Context(), appointmentID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !canView(actor, appointment) {
		respondError(c, apperrors.ErrForbidden)
		return
	}

	payments, err := h.paymentService.ListAppointmentPayments(c.Request.Context(), appointmentID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, "Payments retrieved successfully", payments, &utils.Meta{Count: len(payments)})
}

func (h *PaymentHandler) GetPayment(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	paymentID, ok := paramObjectID(c, "id", "payment")
	if !ok {
		return
	}

	payment, err := h.paymentService.GetPayment(c.Request.Context(), paymentID)
	if err != nil {
		respondError(c, err)
		return
	}
	if actor.Role != models.UserRoleAdmin && payment.PatientID != actor.ID {
		respondError(c, apperrors.ErrForbidden)
		return
	}

	utils.SuccessResponse(c, "Payment retrieved successfully", payment)
}

// RefundPayment refunds part or all of a completed payment
func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	paymentID, ok := paramObjectID(c, "id", "payment")
	if !ok {
		return
	}

	var req validators.RefundRequest
	if !bindJSON(c, &req) || validationFailed(c, validators.ValidateRefund(&req)) {
		return
	}

	result, err := h.refundService.RefundPayment(c.Request.Context(), paymentID, req.Amount, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Refund processed successfully", result)
}

// CollectCash records cash an agent took at the clinic
func (h *PaymentHandler) CollectCash(c *gin.Context) {
	var req validators.CashCollectionRequest
	if !bindJSON(c, &req) || validationFailed(c, validators.ValidateStruct(&req)) {
		return
	}

	result, err := h.paymentService.CollectCash(c.Request.Context(), &services.CashCollection{
		AppointmentID: validators.MustObjectID(req.AppointmentID),
		AgentCode:     strings.TrimSpace(req.AgentCode),
		Amount:        req.Amount,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Cash payment recorded successfully", result)
}
