package interfaces

import (
	"context"
	"time"

	"renthub/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type BookingChargeRepository interface {
	Create(ctx context.Context, charge *models.BookingCharge) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.BookingCharge, error)
	GetByBookingID(ctx context.Context, bookingID primitive.ObjectID) ([]*models.BookingCharge, error)

	// AdvanceStatus moves the charge from one status to another only if it
	// is still in the expected status, enforcing the pending → approved →
	// settled / pending → rejected ladder.
	AdvanceStatus(ctx context.Context, id primitive.ObjectID, from, to models.ChargeStatus, updates map[string]interface{}) (bool, error)

	// GetUnsettledAmountForBookings sums approved-but-unsettled charges, fed
	// into payout net revenue.
	GetUnsettledAmountForBookings(ctx context.Context, bookingIDs []primitive.ObjectID) (float64, error)

	// ExpireStalePending expires pending charges created before the cutoff.
	ExpireStalePending(ctx context.Context, cutoff time.Time) (int64, error)
}
