package routes

import (
	handlers "medibook/internal/handlers/shared"
	"medibook/internal/middleware"
	"medibook/internal/models"

	"github.com/gin-gonic/gin"
)

// SetupPaymentRoutes sets up payment lookup, cash collection and gateway
// callback routes
func SetupPaymentRoutes(r *gin.RouterGroup, auth, webhookLimit gin.HandlerFunc, paymentHandler *handlers.PaymentHandler, webhookHandler *handlers.WebhookHandler) {
	// Public webhook routes (signature verified, no auth)
	webhooks := r.Group("/webhooks")
	webhooks.Use(webhookLimit)
	{
		webhooks.POST("/:gateway", webhookHandler.HandleGatewayCallback)
	}

	payments := r.Group("/payments")
	payments.Use(auth)
	{
		payments.GET("/:id", paymentHandler.GetPayment)
		payments.POST("/cash", middleware.RequireRoles(models.UserRoleAgent, models.UserRoleAdmin), paymentHandler.CollectCash)
	}
}
