package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TransactionType string
type TransactionStatus string
type PaymentMethod string

const (
	TransactionTypePayment TransactionType = "payment"
	TransactionTypeRefund  TransactionType = "refund"
	TransactionTypeDeposit TransactionType = "deposit"
	TransactionTypePayout  TransactionType = "payout"

	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusCompleted  TransactionStatus = "completed"
	TransactionStatusFailed     TransactionStatus = "failed"
	TransactionStatusCancelled  TransactionStatus = "cancelled"
	TransactionStatusSuperseded TransactionStatus = "superseded"

	PaymentMethodCard        PaymentMethod = "card"
	PaymentMethodMobileMoney PaymentMethod = "mobile_money"
)

func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionStatusCompleted, TransactionStatusFailed,
		TransactionStatusCancelled, TransactionStatusSuperseded:
		return true
	}
	return false
}

// PaymentTransaction records one attempt to move money for a booking or a
// payout batch. ProviderReference doubles as the idempotency key sent to the
// provider, so replaying an initialization can never create a second charge.
type PaymentTransaction struct {
	ID                primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	BookingID         *primitive.ObjectID `json:"booking_id" bson:"booking_id"`
	PayoutID          *primitive.ObjectID `json:"payout_id" bson:"payout_id"`
	Type              TransactionType     `json:"type" bson:"type" validate:"required"`
	Status            TransactionStatus   `json:"status" bson:"status" default:"pending"`
	Amount            float64             `json:"amount" bson:"amount" validate:"required"`
	CapturedAmount    float64             `json:"captured_amount" bson:"captured_amount"`
	Currency          string              `json:"currency" bson:"currency" default:"USD"`
	Method            PaymentMethod       `json:"method" bson:"method" validate:"required"`
	ProviderReference string              `json:"provider_reference" bson:"provider_reference"`
	ExternalID        string              `json:"external_id" bson:"external_id"`
	ErrorMessage      string              `json:"error_message" bson:"error_message"`
	ProcessedAt       *time.Time          `json:"processed_at" bson:"processed_at"`
	CreatedAt         time.Time           `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at" bson:"updated_at"`
}
