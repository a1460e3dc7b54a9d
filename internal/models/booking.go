package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type BookingStatus string
type BookingPaymentStatus string

const (
	BookingStatusPendingPayment BookingStatus = "pending_payment"
	BookingStatusConfirmed      BookingStatus = "confirmed"
	BookingStatusActive         BookingStatus = "active"
	BookingStatusCompleted      BookingStatus = "completed"
	BookingStatusCancelled      BookingStatus = "cancelled"
	BookingStatusNoShow         BookingStatus = "no_show"
	BookingStatusDisputed       BookingStatus = "disputed"

	BookingPaymentStatusUnpaid            BookingPaymentStatus = "unpaid"
	BookingPaymentStatusAuthorized        BookingPaymentStatus = "authorized"
	BookingPaymentStatusPaid              BookingPaymentStatus = "paid"
	BookingPaymentStatusRefunded          BookingPaymentStatus = "refunded"
	BookingPaymentStatusPartiallyRefunded BookingPaymentStatus = "partially_refunded"
)

// NonTerminalBookingStatuses are the statuses that block a vehicle's calendar.
var NonTerminalBookingStatuses = []BookingStatus{
	BookingStatusPendingPayment,
	BookingStatusConfirmed,
	BookingStatusActive,
}

func (s BookingStatus) IsTerminal() bool {
	switch s {
	case BookingStatusCompleted, BookingStatusCancelled, BookingStatusNoShow, BookingStatusDisputed:
		return true
	}
	return false
}

// GuestContact identifies a renter who has no account. A booking carries
// either a user id or a guest contact, never both and never neither.
type GuestContact struct {
	Name  string `json:"name" bson:"name" validate:"required"`
	Email string `json:"email" bson:"email" validate:"required,email"`
	Phone string `json:"phone" bson:"phone" validate:"required"`
}

// PriceBreakdown is the monetary decomposition of a booking. All amounts are
// rounded to the currency's minor unit (2 decimal places).
type PriceBreakdown struct {
	Currency      string  `json:"currency" bson:"currency"`
	Rental        float64 `json:"rental" bson:"rental"`
	Deposit       float64 `json:"deposit" bson:"deposit"`
	Insurance     float64 `json:"insurance" bson:"insurance"`
	Protection    float64 `json:"protection" bson:"protection"`
	DriverFee     float64 `json:"driver_fee" bson:"driver_fee"`
	PromoDiscount float64 `json:"promo_discount" bson:"promo_discount"`
	PlatformFee   float64 `json:"platform_fee" bson:"platform_fee"`
	Total         float64 `json:"total" bson:"total"`
}

// PlanSnapshot freezes the protection plan's terms at booking time. The live
// plan record may change later; disputes are resolved against this copy.
type PlanSnapshot struct {
	PlanID      primitive.ObjectID `json:"plan_id" bson:"plan_id"`
	Version     int                `json:"version" bson:"version"`
	Name        string             `json:"name" bson:"name"`
	PricingMode PlanPricingMode    `json:"pricing_mode" bson:"pricing_mode"`
	DailyPrice  float64            `json:"daily_price" bson:"daily_price"`
	FixedFee    float64            `json:"fixed_fee" bson:"fixed_fee"`
	Excess      float64            `json:"excess" bson:"excess"`
	Terms       map[string]string  `json:"terms" bson:"terms"`
	CapturedAt  time.Time          `json:"captured_at" bson:"captured_at"`
}

type Booking struct {
	ID            primitive.ObjectID   `json:"id" bson:"_id,omitempty"`
	ReferenceCode string               `json:"reference_code" bson:"reference_code" validate:"required"`
	VehicleID     primitive.ObjectID   `json:"vehicle_id" bson:"vehicle_id" validate:"required"`
	// OwnerID is denormalized from the vehicle at creation time so payout
	// sweeps can aggregate per owner without a join.
	OwnerID       primitive.ObjectID   `json:"owner_id" bson:"owner_id"`
	UserID        *primitive.ObjectID  `json:"user_id" bson:"user_id"`
	Guest         *GuestContact        `json:"guest" bson:"guest"`
	PickupAt      time.Time            `json:"pickup_at" bson:"pickup_at" validate:"required"`
	ReturnAt      time.Time            `json:"return_at" bson:"return_at" validate:"required"`
	PickupCity    string               `json:"pickup_city" bson:"pickup_city"`
	Price         PriceBreakdown       `json:"price" bson:"price"`
	Status        BookingStatus        `json:"status" bson:"status" default:"pending_payment"`
	PaymentStatus BookingPaymentStatus `json:"payment_status" bson:"payment_status" default:"unpaid"`
	DriverID      *primitive.ObjectID  `json:"driver_id" bson:"driver_id"`
	PromoCodeID   *primitive.ObjectID  `json:"promo_code_id" bson:"promo_code_id"`
	PlanSnapshot  *PlanSnapshot        `json:"plan_snapshot" bson:"plan_snapshot"`
	PaidOutID     *primitive.ObjectID  `json:"paid_out_id" bson:"paid_out_id"`
	CancelReason  string               `json:"cancel_reason" bson:"cancel_reason"`
	// Version increases on every transition and guards against stale
	// webhook events being applied out of order.
	Version     int64      `json:"version" bson:"version"`
	ConfirmedAt *time.Time `json:"confirmed_at" bson:"confirmed_at"`
	ActivatedAt *time.Time `json:"activated_at" bson:"activated_at"`
	CompletedAt *time.Time `json:"completed_at" bson:"completed_at"`
	CancelledAt *time.Time `json:"cancelled_at" bson:"cancelled_at"`
	CreatedAt   time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" bson:"updated_at"`
}

// IsRenterValid reports whether exactly one renter identity is set.
func (b *Booking) IsRenterValid() bool {
	return (b.UserID != nil) != (b.Guest != nil)
}

// Overlaps reports whether the booking's [pickup, return) window intersects
// the given half-open window.
func (b *Booking) Overlaps(pickupAt, returnAt time.Time) bool {
	return b.PickupAt.Before(returnAt) && b.ReturnAt.After(pickupAt)
}
