package routes

import (
	handlers "medibook/internal/handlers/shared"
	"medibook/internal/middleware"
	"medibook/internal/models"

	"github.com/gin-gonic/gin"
)

// SetupAppointmentRoutes sets up booking, lifecycle and checkout routes
func SetupAppointmentRoutes(r *gin.RouterGroup, auth gin.HandlerFunc, appointmentHandler *handlers.AppointmentHandler, paymentHandler *handlers.PaymentHandler) {
	appointments := r.Group("/appointments")
	appointments.Use(auth)
	{
		appointments.GET("/:id", appointmentHandler.GetAppointment)
		appointments.GET("/:id/payments", paymentHandler.GetAppointmentPayments)
		appointments.PUT("/:id/reschedule", middleware.RequireRoles(models.UserRolePatient, models.UserRoleDoctor), appointmentHandler.RescheduleAppointment)
		appointments.PUT("/:id/cancel", middleware.RequireRoles(models.UserRolePatient, models.UserRoleDoctor, models.UserRoleAdmin), appointmentHandler.CancelAppointment)
	}

	// Patient routes
	patient := appointments.Group("")
	patient.Use(middleware.RequireRoles(models.UserRolePatient))
	{
		patient.POST("", appointmentHandler.BookAppointment)
		patient.GET("", appointmentHandler.GetMyAppointments)
		patient.POST("/:id/payments", paymentHandler.InitiatePayment)
	}

	// Doctor routes
	doctor := appointments.Group("")
	doctor.Use(middleware.RequireRoles(models.UserRoleDoctor))
	{
		doctor.GET("/schedule", appointmentHandler.GetDoctorSchedule)
		doctor.PUT("/:id/confirm", appointmentHandler.ConfirmAppointment)
		doctor.PUT("/:id/reject", appointmentHandler.RejectAppointment)
		doctor.PUT("/:id/complete", appointmentHandler.CompleteAppointment)
		doctor.PUT("/:id/notes", appointmentHandler.UpdateConsultationNotes)
		doctor.PUT("/:id/no-show", appointmentHandler.MarkNoShow)
	}

	referrals := r.Group("/referrals")
	referrals.Use(auth)
	{
		referrals.POST("/validate", appointmentHandler.ValidateReferral)
	}
}
