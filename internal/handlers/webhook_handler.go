package handlers

import (
	"errors"
	"io"
	"net/http"

	"renthub/internal/services"
	"renthub/internal/utils"
	"renthub/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// WebhookHandler receives provider event callbacks. Signature verification
// happens before anything is trusted; replays and stale events are
// acknowledged with 2xx so providers stop retrying them.
type WebhookHandler struct {
	paymentService services.PaymentService
	bookingService services.BookingService
	log            *logger.Logger
}

func NewWebhookHandler(
	paymentService services.PaymentService,
	bookingService services.BookingService,
	log *logger.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		paymentService: paymentService,
		bookingService: bookingService,
		log:            log,
	}
}

// HandleStripeWebhook processes Stripe payment events.
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	h.handle(c, "stripe", c.GetHeader("Stripe-Signature"))
}

// HandleRazorpayWebhook processes Razorpay payment events.
func (h *WebhookHandler) HandleRazorpayWebhook(c *gin.Context) {
	h.handle(c, "razorpay", c.GetHeader("X-Razorpay-Signature"))
}

func (h *WebhookHandler) handle(c *gin.Context, providerName, signature string) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		utils.BadRequestResponse(c, "Failed to read request body")
		return
	}

	event, err := h.paymentService.ParseWebhook(c.Request.Context(), providerName, payload, signature)
	if err != nil {
		h.log.WithError(err).WithField("provider", providerName).
			Warn("Webhook rejected")
		utils.ErrorResponse(c, http.StatusBadRequest, "INVALID_WEBHOOK", "Webhook verification failed")
		return
	}

	if err := h.bookingService.HandlePaymentEvent(c.Request.Context(), event); err != nil {
		switch {
		case errors.Is(err, services.ErrTransactionNotFound):
			// Possibly an event for another system sharing the account;
			// acknowledged so the provider stops redelivering.
			h.log.WithField("provider_reference", event.ProviderReference).
				Warn("Webhook for unknown transaction acknowledged")
			c.Status(http.StatusOK)
		case errors.Is(err, services.ErrStaleEvent):
			c.Status(http.StatusOK)
		default:
			h.log.WithError(err).WithField("provider", providerName).
				Error("Webhook processing failed")
			c.Status(http.StatusInternalServerError)
		}
		return
	}

	c.Status(http.StatusOK)
}

// VerifyPayment polls the provider for a transaction's real state, the
// manual fallback when a webhook is suspected lost.
func (h *WebhookHandler) VerifyPayment(c *gin.Context) {
	transactionID, err := primitive.ObjectIDFromHex(c.Param("transaction_id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid transaction ID")
		return
	}

	transaction, err := h.paymentService.GetTransaction(c.Request.Context(), transactionID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if transaction.Status.IsTerminal() {
		utils.SuccessResponse(c, "Transaction already settled", transaction)
		return
	}

	result, err := h.paymentService.Reconcile(c.Request.Context(), transaction)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if err := h.bookingService.ApplyVerification(c.Request.Context(), transaction, result); err != nil {
		if !errors.Is(err, services.ErrStaleEvent) {
			respondServiceError(c, err)
			return
		}
	}

	transaction, err = h.paymentService.GetTransaction(c.Request.Context(), transactionID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Transaction verified", gin.H{
		"transaction": transaction,
		"result":      result,
	})
}
