package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type DiscountType string
type PromoAppliesTo string
type PromoCodeStatus string
type UserType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"

	PromoAppliesToRental PromoAppliesTo = "rental"
	PromoAppliesToTotal  PromoAppliesTo = "total"

	PromoCodeStatusActive   PromoCodeStatus = "active"
	PromoCodeStatusInactive PromoCodeStatus = "inactive"
	PromoCodeStatusExpired  PromoCodeStatus = "expired"

	UserTypeRenter UserType = "renter"
	UserTypeOwner  UserType = "owner"
	UserTypeGuest  UserType = "guest"
)

type PromoCode struct {
	ID                   primitive.ObjectID   `json:"id" bson:"_id,omitempty"`
	Code                 string               `json:"code" bson:"code" validate:"required"`
	Description          string               `json:"description" bson:"description"`
	Status               PromoCodeStatus      `json:"status" bson:"status" default:"active"`
	DiscountType         DiscountType         `json:"discount_type" bson:"discount_type" validate:"required"`
	DiscountValue        float64              `json:"discount_value" bson:"discount_value" validate:"required"`
	MaxDiscountAmount    float64              `json:"max_discount_amount" bson:"max_discount_amount"`
	AppliesTo            PromoAppliesTo       `json:"applies_to" bson:"applies_to" default:"rental"`
	MinBookingAmount     float64              `json:"min_booking_amount" bson:"min_booking_amount"`
	MinDurationDays      int                  `json:"min_duration_days" bson:"min_duration_days"`
	MaxDurationDays      int                  `json:"max_duration_days" bson:"max_duration_days"`
	MaxTotalUses         int                  `json:"max_total_uses" bson:"max_total_uses"`
	MaxUsesPerUser       int                  `json:"max_uses_per_user" bson:"max_uses_per_user" default:"1"`
	UsedCount            int                  `json:"used_count" bson:"used_count" default:"0"`
	ApplicableUserTypes  []UserType           `json:"applicable_user_types" bson:"applicable_user_types"`
	ApplicableVehicles   []primitive.ObjectID `json:"applicable_vehicles" bson:"applicable_vehicles"`
	ApplicableCategories []primitive.ObjectID `json:"applicable_categories" bson:"applicable_categories"`
	TargetCities         []string             `json:"target_cities" bson:"target_cities"`
	FirstBookingOnly     bool                 `json:"first_booking_only" bson:"first_booking_only" default:"false"`
	ValidFrom            time.Time            `json:"valid_from" bson:"valid_from"`
	ValidUntil           time.Time            `json:"valid_until" bson:"valid_until"`
	CreatedAt            time.Time            `json:"created_at" bson:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at" bson:"updated_at"`
}

// PromoCodeUsage is an append-only ledger row binding a code redemption to a
// user and at most one booking.
type PromoCodeUsage struct {
	ID          primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	PromoCodeID primitive.ObjectID  `json:"promo_code_id" bson:"promo_code_id" validate:"required"`
	UserID      *primitive.ObjectID `json:"user_id" bson:"user_id"`
	GuestEmail  string              `json:"guest_email" bson:"guest_email"`
	BookingID   *primitive.ObjectID `json:"booking_id" bson:"booking_id"`
	Discount    float64             `json:"discount" bson:"discount"`
	CreatedAt   time.Time           `json:"created_at" bson:"created_at"`
}

// PromoFailureReason is the exact reason a promo code was rejected.
type PromoFailureReason string

const (
	PromoFailureNone             PromoFailureReason = ""
	PromoFailureNotFound         PromoFailureReason = "not_found"
	PromoFailureInactive         PromoFailureReason = "inactive"
	PromoFailureNotStarted       PromoFailureReason = "not_started"
	PromoFailureExpired          PromoFailureReason = "expired"
	PromoFailureUserType         PromoFailureReason = "user_type_not_eligible"
	PromoFailureFirstBooking     PromoFailureReason = "first_booking_only"
	PromoFailureMinAmount        PromoFailureReason = "below_minimum_amount"
	PromoFailureVehicleScope     PromoFailureReason = "vehicle_not_eligible"
	PromoFailureCategoryScope    PromoFailureReason = "category_not_eligible"
	PromoFailureCityScope        PromoFailureReason = "city_not_eligible"
	PromoFailureDuration         PromoFailureReason = "duration_not_eligible"
	PromoFailureTotalCapExceeded PromoFailureReason = "total_usage_cap_exceeded"
	PromoFailureUserCapExceeded  PromoFailureReason = "user_usage_cap_exceeded"
)

// PromoCodeValidationResult consolidates eligibility checking into a single
// answer: valid or not, and if not, exactly why.
type PromoCodeValidationResult struct {
	Valid    bool               `json:"valid"`
	Reason   PromoFailureReason `json:"reason,omitempty"`
	Discount float64            `json:"discount"`
	Code     *PromoCode         `json:"-"`
}
