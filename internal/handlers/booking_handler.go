package handlers

import (
	"errors"
	"net/http"
	"time"

	"renthub/internal/middleware"
	"renthub/internal/models"
	"renthub/internal/services"
	"renthub/internal/utils"
	"renthub/internal/validators"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type BookingHandler struct {
	bookingService      services.BookingService
	pricingService      services.PricingService
	availabilityService services.AvailabilityService
}

func NewBookingHandler(
	bookingService services.BookingService,
	pricingService services.PricingService,
	availabilityService services.AvailabilityService,
) *BookingHandler {
	return &BookingHandler{
		bookingService:      bookingService,
		pricingService:      pricingService,
		availabilityService: availabilityService,
	}
}

// CheckAvailability answers whether a vehicle is free for a window.
func (h *BookingHandler) CheckAvailability(c *gin.Context) {
	vehicleID, err := primitive.ObjectIDFromHex(c.Param("vehicle_id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid vehicle ID")
		return
	}
	pickupAt, returnAt, ok := parseWindow(c)
	if !ok {
		return
	}

	available, err := h.availabilityService.CheckAvailability(c.Request.Context(), vehicleID, pickupAt, returnAt)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Availability checked", gin.H{
		"vehicle_id": vehicleID.Hex(),
		"pickup_at":  pickupAt,
		"return_at":  returnAt,
		"available":  available,
	})
}

// GetQuote prices a rental window without creating anything.
func (h *BookingHandler) GetQuote(c *gin.Context) {
	var request services.QuoteRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if userID := middleware.CurrentUserID(c); userID != nil {
		request.UserID = userID
	}

	quote, err := h.pricingService.Quote(c.Request.Context(), &request, time.Now())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Quote calculated", quote)
}

// CreateBooking creates a booking and starts its payment attempt.
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var request services.CreateBookingRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if userID := middleware.CurrentUserID(c); userID != nil {
		request.UserID = userID
		request.Guest = nil
	}

	if errs := validators.ValidateCreateBooking(&request, time.Now()); errs != nil {
		utils.ValidationErrorResponse(c, errs)
		return
	}

	result, err := h.bookingService.CreateBooking(c.Request.Context(), &request)
	if err != nil {
		var declined *services.PaymentDeclinedError
		if errors.As(err, &declined) && result != nil {
			// The booking exists; the client can retry with another method.
			c.JSON(http.StatusPaymentRequired, utils.APIResponse{
				Status:  utils.StatusError,
				Message: "Payment was declined",
				Data:    result,
				Error: &utils.APIError{
					Code:    "PAYMENT_DECLINED",
					Message: declined.Message,
					Details: declinedDetails(declined),
				},
				Timestamp: time.Now(),
			})
			return
		}
		if services.IsProviderTransient(err) && result != nil {
			// The booking holds the window; surface it so the client can
			// retry the payment instead of re-creating the booking.
			c.JSON(http.StatusServiceUnavailable, utils.APIResponse{
				Status:  utils.StatusError,
				Message: "Payment provider is unreachable",
				Data:    result,
				Error: &utils.APIError{
					Code:    "PROVIDER_UNAVAILABLE",
					Message: "Payment could not be started, retry it against this booking",
				},
				Timestamp: time.Now(),
			})
			return
		}
		respondServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, "Booking created", result)
}

// GetBooking retrieves a booking by id.
func (h *BookingHandler) GetBooking(c *gin.Context) {
	bookingID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid booking ID")
		return
	}

	booking, err := h.bookingService.GetBooking(c.Request.Context(), bookingID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Booking retrieved", booking)
}

// GetBookingByReference retrieves a booking by its human-readable code.
func (h *BookingHandler) GetBookingByReference(c *gin.Context) {
	booking, err := h.bookingService.GetBookingByReference(c.Request.Context(), c.Param("reference"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Booking retrieved", booking)
}

// ListMyBookings lists the authenticated renter's bookings.
func (h *BookingHandler) ListMyBookings(c *gin.Context) {
	userID := middleware.CurrentUserID(c)
	if userID == nil {
		utils.UnauthorizedResponse(c)
		return
	}

	params := utils.GetPaginationParams(c)
	bookings, total, err := h.bookingService.ListByRenter(c.Request.Context(), *userID, params)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, "Bookings retrieved", bookings, &utils.Meta{
		Pagination: utils.NewPaginationMeta(params, total),
	})
}

// RetryPayment starts a new payment attempt for a pending booking.
func (h *BookingHandler) RetryPayment(c *gin.Context) {
	bookingID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid booking ID")
		return
	}

	var request struct {
		PaymentMethod models.PaymentMethod `json:"payment_method" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	result, err := h.bookingService.RetryPayment(c.Request.Context(), bookingID, request.PaymentMethod)
	if err != nil {
		var declined *services.PaymentDeclinedError
		if errors.As(err, &declined) {
			utils.ErrorResponseWithDetails(c, http.StatusPaymentRequired, "PAYMENT_DECLINED", declined.Message, declinedDetails(declined))
			return
		}
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Payment attempt started", result)
}

// ActivateBooking marks the vehicle as handed over.
func (h *BookingHandler) ActivateBooking(c *gin.Context) {
	h.transition(c, func(id primitive.ObjectID, actor *primitive.ObjectID) (*models.Booking, error) {
		return h.bookingService.ActivateBooking(c.Request.Context(), id, actor)
	}, "Booking activated")
}

// CompleteBooking marks the vehicle as returned.
func (h *BookingHandler) CompleteBooking(c *gin.Context) {
	h.transition(c, func(id primitive.ObjectID, actor *primitive.ObjectID) (*models.Booking, error) {
		return h.bookingService.CompleteBooking(c.Request.Context(), id, actor)
	}, "Booking completed")
}

// CancelBooking cancels a booking and unwinds its payment.
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	var request struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&request)

	h.transition(c, func(id primitive.ObjectID, actor *primitive.ObjectID) (*models.Booking, error) {
		return h.bookingService.CancelBooking(c.Request.Context(), id, request.Reason, actor)
	}, "Booking cancelled")
}

// MarkNoShow records that the renter never picked up the vehicle.
func (h *BookingHandler) MarkNoShow(c *gin.Context) {
	h.transition(c, func(id primitive.ObjectID, actor *primitive.ObjectID) (*models.Booking, error) {
		return h.bookingService.MarkNoShow(c.Request.Context(), id, actor)
	}, "Booking marked as no-show")
}

// DisputeBooking opens a dispute and freezes the deposit.
func (h *BookingHandler) DisputeBooking(c *gin.Context) {
	var request struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&request)

	h.transition(c, func(id primitive.ObjectID, actor *primitive.ObjectID) (*models.Booking, error) {
		return h.bookingService.DisputeBooking(c.Request.Context(), id, request.Reason, actor)
	}, "Booking disputed")
}

func (h *BookingHandler) transition(c *gin.Context, fn func(primitive.ObjectID, *primitive.ObjectID) (*models.Booking, error), message string) {
	bookingID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid booking ID")
		return
	}

	booking, err := fn(bookingID, middleware.CurrentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, message, booking)
}

// CreateCharge files a post-rental charge against a completed booking.
func (h *BookingHandler) CreateCharge(c *gin.Context) {
	bookingID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid booking ID")
		return
	}

	var request services.CreateChargeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	request.BookingID = bookingID
	request.CreatedBy = middleware.CurrentUserID(c)

	if errs := validators.ValidateCreateCharge(&request); errs != nil {
		utils.ValidationErrorResponse(c, errs)
		return
	}

	charge, err := h.bookingService.CreateCharge(c.Request.Context(), &request)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.CreatedResponse(c, "Charge filed", charge)
}

// ApproveCharge approves a pending charge.
func (h *BookingHandler) ApproveCharge(c *gin.Context) {
	chargeID, err := primitive.ObjectIDFromHex(c.Param("charge_id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid charge ID")
		return
	}

	charge, err := h.bookingService.ApproveCharge(c.Request.Context(), chargeID, middleware.CurrentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Charge approved", charge)
}

// RejectCharge rejects a pending charge.
func (h *BookingHandler) RejectCharge(c *gin.Context) {
	chargeID, err := primitive.ObjectIDFromHex(c.Param("charge_id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid charge ID")
		return
	}

	var request struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&request)

	charge, err := h.bookingService.RejectCharge(c.Request.Context(), chargeID, middleware.CurrentUserID(c), request.Reason)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Charge rejected", charge)
}

// SettleCharge collects an approved charge out of the held deposit.
func (h *BookingHandler) SettleCharge(c *gin.Context) {
	chargeID, err := primitive.ObjectIDFromHex(c.Param("charge_id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid charge ID")
		return
	}

	charge, err := h.bookingService.SettleCharge(c.Request.Context(), chargeID, middleware.CurrentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Charge settled", charge)
}

func parseWindow(c *gin.Context) (time.Time, time.Time, bool) {
	pickupAt, err := time.Parse(time.RFC3339, c.Query("pickup_at"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid pickup_at, expected RFC3339")
		return time.Time{}, time.Time{}, false
	}
	returnAt, err := time.Parse(time.RFC3339, c.Query("return_at"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid return_at, expected RFC3339")
		return time.Time{}, time.Time{}, false
	}
	return pickupAt, returnAt, true
}

func declinedDetails(declined *services.PaymentDeclinedError) map[string]string {
	details := map[string]string{"reason": string(declined.Type)}
	if declined.AlternativeMethod != "" {
		details["alternative_method"] = string(declined.AlternativeMethod)
	}
	return details
}
