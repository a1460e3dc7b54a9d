package handlers

import (
	"errors"
	"net/http"

	"renthub/internal/services"
	"renthub/internal/utils"

	"github.com/gin-gonic/gin"
)

// respondServiceError maps the service error taxonomy onto HTTP statuses.
func respondServiceError(c *gin.Context, err error) {
	var validationErr *services.ValidationError
	if errors.As(err, &validationErr) {
		details := map[string]string{}
		if validationErr.Field != "" {
			details[validationErr.Field] = validationErr.Message
		}
		utils.ErrorResponseWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", validationErr.Message, details)
		return
	}

	var conflictErr *services.ConflictError
	if errors.As(err, &conflictErr) {
		utils.ConflictResponse(c, conflictErr.Message)
		return
	}

	switch {
	case errors.Is(err, services.ErrBookingNotFound):
		utils.NotFoundResponse(c, "Booking")
	case errors.Is(err, services.ErrVehicleNotFound):
		utils.NotFoundResponse(c, "Vehicle")
	case errors.Is(err, services.ErrTransactionNotFound):
		utils.NotFoundResponse(c, "Payment transaction")
	case errors.Is(err, services.ErrChargeNotFound):
		utils.NotFoundResponse(c, "Charge")
	case errors.Is(err, services.ErrInvalidTransition):
		utils.ConflictResponse(c, err.Error())
	case errors.Is(err, services.ErrNoProviderConfigured):
		utils.ErrorResponse(c, http.StatusBadRequest, "NO_PROVIDER", err.Error())
	case services.IsProviderTransient(err):
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "PROVIDER_UNAVAILABLE",
			"Payment provider is unreachable, please try again")
	default:
		utils.InternalServerErrorResponse(c)
	}
}
