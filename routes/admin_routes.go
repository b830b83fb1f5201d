package routes

import (
	handlers "medibook/internal/handlers/shared"
	"medibook/internal/middleware"
	"medibook/internal/models"

	"github.com/gin-gonic/gin"
)

// SetupUserRoutes sets up routes every signed-in user or agent can reach
func SetupUserRoutes(r *gin.RouterGroup, auth gin.HandlerFunc, userHandler *handlers.UserHandler, referralHandler *handlers.ReferralHandler) {
	me := r.Group("/me")
	me.Use(auth)
	{
		me.GET("", userHandler.GetProfile)
	}

	agent := r.Group("/agent")
	agent.Use(auth, middleware.RequireRoles(models.UserRoleAgent))
	{
		agent.GET("/referral-codes", referralHandler.GetMyCodes)
		agent.GET("/referral-summary", referralHandler.GetMySummary)
	}
}

// SetupAdminRoutes sets up directory, referral code and refund administration
func SetupAdminRoutes(
	r *gin.RouterGroup,
	auth gin.HandlerFunc,
	userHandler *handlers.UserHandler,
	referralHandler *handlers.ReferralHandler,
	appointmentHandler *handlers.AppointmentHandler,
	paymentHandler *handlers.PaymentHandler,
) {
	admin := r.Group("/admin")
	admin.Use(auth, middleware.AdminRequired())

	users := admin.Group("/users")
	{
		users.POST("", userHandler.CreateUser)
		users.GET("", userHandler.ListUsers)
		users.GET("/:id", userHandler.GetUser)
		users.PUT("/:id/active", userHandler.SetUserActive)
	}

	doctors := admin.Group("/doctors")
	{
		doctors.PUT("/:id/approval", userHandler.SetDoctorApproval)
		doctors.GET("/:id/appointments", appointmentHandler.GetDoctorAppointments)
	}

	agents := admin.Group("/agents")
	{
		agents.GET("/:id/referral-codes", referralHandler.GetAgentCodes)
		agents.GET("/:id/referral-summary", referralHandler.GetAgentSummary)
	}

	codes := admin.Group("/referral-codes")
	{
		codes.POST("", referralHandler.CreateCode)
		codes.GET("", referralHandler.ListCodes)
		codes.GET("/:id", referralHandler.GetCode)
		codes.PUT("/:id", referralHandler.UpdateCode)
		codes.PUT("/:id/active", referralHandler.SetCodeActive)
	}

	payments := admin.Group("/payments")
	{
		payments.POST("/:id/refund", paymentHandler.RefundPayment)
	}
}
