package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type DepositRefundStatus string

const (
	DepositRefundStatusPending    DepositRefundStatus = "pending"
	DepositRefundStatusProcessing DepositRefundStatus = "processing"
	DepositRefundStatusCompleted  DepositRefundStatus = "completed"
	DepositRefundStatusFailed     DepositRefundStatus = "failed"
	DepositRefundStatusCancelled  DepositRefundStatus = "cancelled"
)

// DepositRefund returns a held security deposit after a booking completes
// without chargeable incidents. Created at completion time with a due date;
// the reconciliation sweep picks it up once the due date passes.
type DepositRefund struct {
	ID                primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	BookingID         primitive.ObjectID  `json:"booking_id" bson:"booking_id" validate:"required"`
	TransactionID     *primitive.ObjectID `json:"transaction_id" bson:"transaction_id"`
	Amount            float64             `json:"amount" bson:"amount" validate:"required"`
	Currency          string              `json:"currency" bson:"currency" default:"USD"`
	Status            DepositRefundStatus `json:"status" bson:"status" default:"pending"`
	DueDate           time.Time           `json:"due_date" bson:"due_date"`
	Attempts          int                 `json:"attempts" bson:"attempts" default:"0"`
	NextAttemptAt     time.Time           `json:"next_attempt_at" bson:"next_attempt_at"`
	LastError         string              `json:"last_error" bson:"last_error"`
	ProviderRefundID  string              `json:"provider_refund_id" bson:"provider_refund_id"`
	ProcessedAt       *time.Time          `json:"processed_at" bson:"processed_at"`
	CreatedAt         time.Time           `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at" bson:"updated_at"`
}
