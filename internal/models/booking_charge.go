package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ChargeType string
type ChargeStatus string

const (
	ChargeTypeDamage     ChargeType = "damage"
	ChargeTypeFuel       ChargeType = "fuel"
	ChargeTypeLateReturn ChargeType = "late_return"

	ChargeStatusPending  ChargeStatus = "pending"
	ChargeStatusApproved ChargeStatus = "approved"
	ChargeStatusRejected ChargeStatus = "rejected"
	ChargeStatusSettled  ChargeStatus = "settled"
	ChargeStatusExpired  ChargeStatus = "expired"
)

// BookingCharge is a post-rental charge against a completed booking. It needs
// evidence attachments and admin approval before settlement, and settlement
// requires a linked PaymentTransaction.
type BookingCharge struct {
	ID            primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	BookingID     primitive.ObjectID  `json:"booking_id" bson:"booking_id" validate:"required"`
	Type          ChargeType          `json:"type" bson:"type" validate:"required"`
	Status        ChargeStatus        `json:"status" bson:"status" default:"pending"`
	Amount        float64             `json:"amount" bson:"amount" validate:"required"`
	Currency      string              `json:"currency" bson:"currency" default:"USD"`
	Description   string              `json:"description" bson:"description"`
	EvidenceURLs  []string            `json:"evidence_urls" bson:"evidence_urls" validate:"required,min=1"`
	TransactionID *primitive.ObjectID `json:"transaction_id" bson:"transaction_id"`
	ReviewedBy    *primitive.ObjectID `json:"reviewed_by" bson:"reviewed_by"`
	ReviewedAt    *time.Time          `json:"reviewed_at" bson:"reviewed_at"`
	RejectReason  string              `json:"reject_reason" bson:"reject_reason"`
	SettledAt     *time.Time          `json:"settled_at" bson:"settled_at"`
	CreatedAt     time.Time           `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at" bson:"updated_at"`
}
