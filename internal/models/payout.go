package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PayoutStatus string
type PayoutFrequency string
type WithdrawalStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusCompleted  PayoutStatus = "completed"
	PayoutStatusFailed     PayoutStatus = "failed"

	PayoutFrequencyWeekly   PayoutFrequency = "weekly"
	PayoutFrequencyBiweekly PayoutFrequency = "biweekly"
	PayoutFrequencyMonthly  PayoutFrequency = "monthly"

	WithdrawalStatusPending   WithdrawalStatus = "pending"
	WithdrawalStatusCompleted WithdrawalStatus = "completed"
	WithdrawalStatusFailed    WithdrawalStatus = "failed"
)

// Payout aggregates the net revenue of a set of completed bookings into one
// transfer to a vehicle owner. The covered bookings are marked paid-out in
// the same transaction so a later cycle cannot include them again.
type Payout struct {
	ID            primitive.ObjectID   `json:"id" bson:"_id,omitempty"`
	OwnerID       primitive.ObjectID   `json:"owner_id" bson:"owner_id" validate:"required"`
	TransactionID *primitive.ObjectID  `json:"transaction_id" bson:"transaction_id"`
	BookingIDs    []primitive.ObjectID `json:"booking_ids" bson:"booking_ids"`
	Amount        float64              `json:"amount" bson:"amount"`
	Currency      string               `json:"currency" bson:"currency" default:"USD"`
	Status        PayoutStatus         `json:"status" bson:"status" default:"pending"`
	PeriodStart   time.Time            `json:"period_start" bson:"period_start"`
	PeriodEnd     time.Time            `json:"period_end" bson:"period_end"`
	FailureReason string               `json:"failure_reason" bson:"failure_reason"`
	ProcessedAt   *time.Time           `json:"processed_at" bson:"processed_at"`
	CreatedAt     time.Time            `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at" bson:"updated_at"`
}

// OwnerPayoutProfile carries the owner-side payout configuration read by the
// scheduled payout sweep.
type OwnerPayoutProfile struct {
	OwnerID      primitive.ObjectID `json:"owner_id" bson:"_id"`
	Frequency    PayoutFrequency    `json:"frequency" bson:"frequency" default:"monthly"`
	LastPayoutAt *time.Time         `json:"last_payout_at" bson:"last_payout_at"`
}

// InstantWithdrawal is an owner-initiated payout that bypasses the scheduled
// cycle in exchange for a fee.
type InstantWithdrawal struct {
	ID            primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	OwnerID       primitive.ObjectID  `json:"owner_id" bson:"owner_id" validate:"required"`
	TransactionID *primitive.ObjectID `json:"transaction_id" bson:"transaction_id"`
	Amount        float64             `json:"amount" bson:"amount" validate:"required"`
	Fee           float64             `json:"fee" bson:"fee"`
	NetAmount     float64             `json:"net_amount" bson:"net_amount"`
	Currency      string              `json:"currency" bson:"currency" default:"USD"`
	Status        WithdrawalStatus    `json:"status" bson:"status" default:"pending"`
	// AbsorbedByPayoutID is set once a scheduled payout has accounted for
	// this withdrawal, so it stops reducing the owner's available balance.
	AbsorbedByPayoutID *primitive.ObjectID `json:"absorbed_by_payout_id" bson:"absorbed_by_payout_id"`
	FailureReason      string              `json:"failure_reason" bson:"failure_reason"`
	ProcessedAt        *time.Time          `json:"processed_at" bson:"processed_at"`
	CreatedAt          time.Time           `json:"created_at" bson:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at" bson:"updated_at"`
}
