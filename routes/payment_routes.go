package routes

import (
	"renthub/internal/handlers"
	"renthub/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupPaymentRoutes wires provider webhooks and owner payout endpoints.
func SetupPaymentRoutes(r *gin.RouterGroup, webhookHandler *handlers.WebhookHandler, payoutHandler *handlers.PayoutHandler, jwtSecret string) {
	// Provider callbacks authenticate with signatures, not tokens.
	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/stripe", webhookHandler.HandleStripeWebhook)
		webhooks.POST("/razorpay", webhookHandler.HandleRazorpayWebhook)
	}

	payments := r.Group("/payments")
	payments.Use(middleware.AuthRequired(jwtSecret), middleware.AdminRequired())
	{
		payments.POST("/transactions/:transaction_id/verify", webhookHandler.VerifyPayment)
	}

	payouts := r.Group("/payouts")
	payouts.Use(middleware.AuthRequired(jwtSecret), middleware.OwnerRequired())
	{
		payouts.GET("/balance", payoutHandler.GetBalance)
		payouts.POST("/withdrawals", payoutHandler.RequestWithdrawal)
	}
}
