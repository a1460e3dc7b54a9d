package interfaces

import (
	"context"
	"time"

	"renthub/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type DepositRefundRepository interface {
	Create(ctx context.Context, refund *models.DepositRefund) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.DepositRefund, error)
	GetByBookingID(ctx context.Context, bookingID primitive.ObjectID) (*models.DepositRefund, error)

	// ClaimNextDue selects one pending refund past its due date and its
	// backoff window and marks it processing in the same statement, so two
	// scheduler instances can never claim the same row. Returns nil when
	// nothing is due.
	ClaimNextDue(ctx context.Context, now time.Time) (*models.DepositRefund, error)

	MarkCompleted(ctx context.Context, id primitive.ObjectID, providerRefundID string, processedAt time.Time) error

	// MarkForRetry records a failed attempt and schedules the next one.
	MarkForRetry(ctx context.Context, id primitive.ObjectID, attempts int, nextAttemptAt time.Time, lastError string) error

	MarkFailed(ctx context.Context, id primitive.ObjectID, lastError string) error
	Cancel(ctx context.Context, id primitive.ObjectID) error

	// ReduceAmount deducts a settled charge from a still-pending refund.
	// Returns false when the refund is no longer pending or the remaining
	// amount is smaller than the deduction.
	ReduceAmount(ctx context.Context, id primitive.ObjectID, by float64) (bool, error)
}
