package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"renthub/internal/config"
	"renthub/internal/models"
	"renthub/internal/repositories/interfaces"
	"renthub/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// QuoteRequest carries everything needed to price a rental window. The same
// request priced twice against the same catalog and the same instant yields
// the same breakdown.
type QuoteRequest struct {
	VehicleID        primitive.ObjectID  `json:"vehicle_id" validate:"required"`
	PickupAt         time.Time           `json:"pickup_at" validate:"required"`
	ReturnAt         time.Time           `json:"return_at" validate:"required"`
	PickupCity       string              `json:"pickup_city"`
	InsurancePlanID  *primitive.ObjectID `json:"insurance_plan_id"`
	ProtectionPlanID *primitive.ObjectID `json:"protection_plan_id"`
	WithDriver       bool                `json:"with_driver"`
	PromoCode        string              `json:"promo_code"`
	UserID           *primitive.ObjectID `json:"user_id"`
	GuestEmail       string              `json:"guest_email"`
	UserType         models.UserType     `json:"user_type"`
}

// Quote is the priced answer. Promo is always populated when a code was
// submitted, carrying either the discount or the exact rejection reason.
type Quote struct {
	Days         int                               `json:"days"`
	Price        models.PriceBreakdown             `json:"price"`
	PlanSnapshot *models.PlanSnapshot              `json:"plan_snapshot,omitempty"`
	Promo        *models.PromoCodeValidationResult `json:"promo,omitempty"`
}

type PricingService interface {
	// Quote prices the request at the given instant. It performs no writes;
	// promo cap checks here are advisory and re-run atomically at redemption.
	Quote(ctx context.Context, req *QuoteRequest, now time.Time) (*Quote, error)
}

type pricingService struct {
	catalogRepo interfaces.CatalogRepository
	promoRepo   interfaces.PromoCodeRepository
	bookingRepo interfaces.BookingRepository
	cfg         *config.PaymentConfig
}

func NewPricingService(
	catalogRepo interfaces.CatalogRepository,
	promoRepo interfaces.PromoCodeRepository,
	bookingRepo interfaces.BookingRepository,
	cfg *config.PaymentConfig,
) PricingService {
	return &pricingService{
		catalogRepo: catalogRepo,
		promoRepo:   promoRepo,
		bookingRepo: bookingRepo,
		cfg:         cfg,
	}
}

func (s *pricingService) Quote(ctx context.Context, req *QuoteRequest, now time.Time) (*Quote, error) {
	days := utils.RentalDays(req.PickupAt, req.ReturnAt)
	if days <= 0 {
		return nil, NewValidationError("return_at", "return must be after pickup")
	}

	vehicle, err := s.catalogRepo.GetVehicle(ctx, req.VehicleID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, ErrVehicleNotFound
		}
		return nil, fmt.Errorf("failed to load vehicle: %w", err)
	}
	if !vehicle.Active {
		return nil, NewValidationError("vehicle_id", "vehicle is not available for booking")
	}

	city := req.PickupCity
	if city == "" {
		city = vehicle.City
	}

	dailyRate, err := s.effectiveDailyRate(ctx, vehicle, city)
	if err != nil {
		return nil, err
	}
	rental := utils.RoundMoney(dailyRate * float64(days))

	insurance, err := s.insuranceFee(ctx, req.InsurancePlanID, days)
	if err != nil {
		return nil, err
	}

	protection, snapshot, err := s.protectionFee(ctx, req.ProtectionPlanID, days, now)
	if err != nil {
		return nil, err
	}

	var driverFee float64
	if req.WithDriver {
		driverFee = utils.RoundMoney(s.cfg.DriverFeePerDay * float64(days))
	}

	quote := &Quote{
		Days: days,
		Price: models.PriceBreakdown{
			Currency:   s.cfg.Currency,
			Rental:     rental,
			Deposit:    utils.RoundMoney(vehicle.DepositAmount),
			Insurance:  insurance,
			Protection: protection,
			DriverFee:  driverFee,
		},
		PlanSnapshot: snapshot,
	}

	if req.PromoCode != "" {
		result, err := s.validatePromoCode(ctx, req, vehicle, city, days, &quote.Price, now)
		if err != nil {
			return nil, err
		}
		quote.Promo = result
		if result.Valid {
			quote.Price.PromoDiscount = result.Discount
		}
	}

	quote.Price.PlatformFee = utils.RoundMoney(rental * s.cfg.PlatformFeeRate)
	quote.Price.Total = utils.RoundMoney(
		rental + insurance + protection + driverFee - quote.Price.PromoDiscount,
	)

	return quote, nil
}

// effectiveDailyRate resolves the vehicle's rate, falls back to the category
// default, and applies the pickup city's regional multiplier and band.
func (s *pricingService) effectiveDailyRate(ctx context.Context, vehicle *models.Vehicle, city string) (float64, error) {
	rate := vehicle.DailyRate
	if rate <= 0 {
		category, err := s.catalogRepo.GetCategory(ctx, vehicle.CategoryID)
		if err != nil {
			if errors.Is(err, interfaces.ErrNotFound) {
				return 0, NewValidationError("vehicle_id", "vehicle has no rate and no category default")
			}
			return 0, fmt.Errorf("failed to load vehicle category: %w", err)
		}
		rate = category.DefaultDailyRate
	}
	if rate <= 0 {
		return 0, NewValidationError("vehicle_id", "vehicle has no usable daily rate")
	}

	regional, err := s.catalogRepo.GetRegionalPricing(ctx, city)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return rate, nil
		}
		return 0, fmt.Errorf("failed to load regional pricing: %w", err)
	}
	if regional.Multiplier > 0 {
		rate = rate * regional.Multiplier
	}
	return utils.Clamp(rate, regional.MinDailyRate, regional.MaxDailyRate), nil
}

func (s *pricingService) insuranceFee(ctx context.Context, planID *primitive.ObjectID, days int) (float64, error) {
	if planID == nil {
		return 0, nil
	}
	plan, err := s.catalogRepo.GetInsurancePlan(ctx, *planID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return 0, NewValidationError("insurance_plan_id", "insurance plan not found")
		}
		return 0, fmt.Errorf("failed to load insurance plan: %w", err)
	}
	if !plan.Active {
		return 0, NewValidationError("insurance_plan_id", "insurance plan is not active")
	}
	return utils.RoundMoney(plan.DailyPrice * float64(days)), nil
}

func (s *pricingService) protectionFee(ctx context.Context, planID *primitive.ObjectID, days int, now time.Time) (float64, *models.PlanSnapshot, error) {
	if planID == nil {
		return 0, nil, nil
	}
	plan, err := s.catalogRepo.GetProtectionPlan(ctx, *planID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return 0, nil, NewValidationError("protection_plan_id", "protection plan not found")
		}
		return 0, nil, fmt.Errorf("failed to load protection plan: %w", err)
	}
	if !plan.Active {
		return 0, nil, NewValidationError("protection_plan_id", "protection plan is not active")
	}

	var fee float64
	switch plan.PricingMode {
	case models.PlanPricingFixed:
		fee = plan.FixedFee
	default:
		fee = plan.DailyPrice * float64(days)
	}
	fee = utils.RoundMoney(utils.Clamp(fee, plan.MinFee, plan.MaxFee))

	return fee, plan.Snapshot(now), nil
}

// validatePromoCode walks the eligibility ladder in a fixed order so a code
// failing several checks always reports the same reason. Cap checks read
// current counts; the authoritative check-and-increment happens at redemption.
func (s *pricingService) validatePromoCode(
	ctx context.Context,
	req *QuoteRequest,
	vehicle *models.Vehicle,
	city string,
	days int,
	price *models.PriceBreakdown,
	now time.Time,
) (*models.PromoCodeValidationResult, error) {
	reject := func(reason models.PromoFailureReason) *models.PromoCodeValidationResult {
		return &models.PromoCodeValidationResult{Valid: false, Reason: reason}
	}

	code, err := s.promoRepo.GetByCode(ctx, req.PromoCode)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return reject(models.PromoFailureNotFound), nil
		}
		return nil, fmt.Errorf("failed to load promo code: %w", err)
	}

	if code.Status != models.PromoCodeStatusActive {
		return reject(models.PromoFailureInactive), nil
	}
	if !code.ValidFrom.IsZero() && now.Before(code.ValidFrom) {
		return reject(models.PromoFailureNotStarted), nil
	}
	if !code.ValidUntil.IsZero() && now.After(code.ValidUntil) {
		return reject(models.PromoFailureExpired), nil
	}

	if len(code.ApplicableUserTypes) > 0 && !containsUserType(code.ApplicableUserTypes, req.UserType) {
		return reject(models.PromoFailureUserType), nil
	}

	if code.FirstBookingOnly {
		count, err := s.bookingRepo.CountByRenter(ctx, req.UserID, req.GuestEmail)
		if err != nil {
			return nil, fmt.Errorf("failed to count renter bookings: %w", err)
		}
		if count > 0 {
			return reject(models.PromoFailureFirstBooking), nil
		}
	}

	if len(code.ApplicableVehicles) > 0 && !containsObjectID(code.ApplicableVehicles, vehicle.ID) {
		return reject(models.PromoFailureVehicleScope), nil
	}
	if len(code.ApplicableCategories) > 0 && !containsObjectID(code.ApplicableCategories, vehicle.CategoryID) {
		return reject(models.PromoFailureCategoryScope), nil
	}
	if len(code.TargetCities) > 0 && !containsString(code.TargetCities, city) {
		return reject(models.PromoFailureCityScope), nil
	}

	if code.MinDurationDays > 0 && days < code.MinDurationDays {
		return reject(models.PromoFailureDuration), nil
	}
	if code.MaxDurationDays > 0 && days > code.MaxDurationDays {
		return reject(models.PromoFailureDuration), nil
	}

	base := price.Rental
	if code.AppliesTo == models.PromoAppliesToTotal {
		base = price.Rental + price.Insurance + price.Protection + price.DriverFee
	}
	if code.MinBookingAmount > 0 && base < code.MinBookingAmount {
		return reject(models.PromoFailureMinAmount), nil
	}

	if code.MaxTotalUses > 0 && code.UsedCount >= code.MaxTotalUses {
		return reject(models.PromoFailureTotalCapExceeded), nil
	}
	if code.MaxUsesPerUser > 0 {
		used, err := s.promoRepo.CountUsagesByUser(ctx, code.ID, req.UserID, req.GuestEmail)
		if err != nil {
			return nil, fmt.Errorf("failed to count promo usages: %w", err)
		}
		if used >= int64(code.MaxUsesPerUser) {
			return reject(models.PromoFailureUserCapExceeded), nil
		}
	}

	var discount float64
	switch code.DiscountType {
	case models.DiscountTypePercentage:
		discount = base * code.DiscountValue / 100
		if code.MaxDiscountAmount > 0 && discount > code.MaxDiscountAmount {
			discount = code.MaxDiscountAmount
		}
	case models.DiscountTypeFixed:
		discount = code.DiscountValue
	}
	if discount > base {
		discount = base
	}

	return &models.PromoCodeValidationResult{
		Valid:    true,
		Discount: utils.RoundMoney(discount),
		Code:     code,
	}, nil
}

func containsUserType(list []models.UserType, t models.UserType) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}

func containsObjectID(list []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
