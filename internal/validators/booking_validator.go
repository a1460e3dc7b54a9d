package validators

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"renthub/internal/models"
	"renthub/internal/services"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("phone_number", validatePhoneNumber)
}

var phoneRegex = regexp.MustCompile(`^\+?[1-9]\d{6,14}$`)

func validatePhoneNumber(fl validator.FieldLevel) bool {
	return phoneRegex.MatchString(fl.Field().String())
}

// Rental windows are bounded to keep pricing and availability scans sane.
const (
	MinRentalHours = 1
	MaxRentalDays  = 90
	MaxAdvanceDays = 365
)

// ValidateCreateBooking checks the request's shape before the service layer
// touches the catalog. Returns a field → message map for the response body.
func ValidateCreateBooking(req *services.CreateBookingRequest, now time.Time) map[string]string {
	errs := make(map[string]string)

	if req.VehicleID.IsZero() {
		errs["vehicle_id"] = "vehicle id is required"
	}

	if req.PickupAt.IsZero() {
		errs["pickup_at"] = "pickup time is required"
	}
	if req.ReturnAt.IsZero() {
		errs["return_at"] = "return time is required"
	}
	if !req.PickupAt.IsZero() && !req.ReturnAt.IsZero() {
		if !req.ReturnAt.After(req.PickupAt) {
			errs["return_at"] = "return must be after pickup"
		} else {
			duration := req.ReturnAt.Sub(req.PickupAt)
			if duration < MinRentalHours*time.Hour {
				errs["return_at"] = fmt.Sprintf("rental must be at least %d hour(s)", MinRentalHours)
			}
			if duration > MaxRentalDays*24*time.Hour {
				errs["return_at"] = fmt.Sprintf("rental cannot exceed %d days", MaxRentalDays)
			}
		}
		if req.PickupAt.Before(now) {
			errs["pickup_at"] = "pickup cannot be in the past"
		}
		if req.PickupAt.After(now.Add(MaxAdvanceDays * 24 * time.Hour)) {
			errs["pickup_at"] = fmt.Sprintf("pickup cannot be more than %d days ahead", MaxAdvanceDays)
		}
	}

	if (req.UserID != nil) == (req.Guest != nil) {
		errs["renter"] = "exactly one of user id or guest contact is required"
	}
	if req.Guest != nil {
		if err := validate.Struct(req.Guest); err != nil {
			for _, fieldErr := range err.(validator.ValidationErrors) {
				errs["guest."+strings.ToLower(fieldErr.Field())] = guestFieldMessage(fieldErr)
			}
		}
		if req.Guest.Phone != "" && !phoneRegex.MatchString(req.Guest.Phone) {
			errs["guest.phone"] = "invalid phone number format"
		}
	}

	switch req.PaymentMethod {
	case models.PaymentMethodCard, models.PaymentMethodMobileMoney:
	case "":
		errs["payment_method"] = "payment method is required"
	default:
		errs["payment_method"] = "unsupported payment method"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ValidateCreateCharge checks a post-rental charge request.
func ValidateCreateCharge(req *services.CreateChargeRequest) map[string]string {
	errs := make(map[string]string)

	if req.BookingID.IsZero() {
		errs["booking_id"] = "booking id is required"
	}
	switch req.Type {
	case models.ChargeTypeDamage, models.ChargeTypeFuel, models.ChargeTypeLateReturn:
	case "":
		errs["type"] = "charge type is required"
	default:
		errs["type"] = "unsupported charge type"
	}
	if req.Amount <= 0 {
		errs["amount"] = "amount must be positive"
	}
	if len(req.EvidenceURLs) == 0 {
		errs["evidence_urls"] = "at least one evidence attachment is required"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func guestFieldMessage(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	default:
		return "is invalid"
	}
}
