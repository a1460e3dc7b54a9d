package interfaces

import (
	"context"
	"time"

	"renthub/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PayoutRepository interface {
	// CreateForBookings inserts the payout and marks its bookings paid-out
	// in one transaction, so a booking can never land in two payout cycles.
	CreateForBookings(ctx context.Context, payout *models.Payout, bookingIDs []primitive.ObjectID) error

	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Payout, error)
	GetByOwnerID(ctx context.Context, ownerID primitive.ObjectID) ([]*models.Payout, error)
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.PayoutStatus, updates map[string]interface{}) error

	// Owner payout profiles.
	GetOwnersDue(ctx context.Context, now time.Time) ([]*models.OwnerPayoutProfile, error)
	SetLastPayoutAt(ctx context.Context, ownerID primitive.ObjectID, at time.Time) error
}

type WithdrawalRepository interface {
	Create(ctx context.Context, withdrawal *models.InstantWithdrawal) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.InstantWithdrawal, error)
	GetByOwnerID(ctx context.Context, ownerID primitive.ObjectID) ([]*models.InstantWithdrawal, error)
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.WithdrawalStatus, updates map[string]interface{}) error

	// GetUnabsorbed returns completed withdrawals that no scheduled payout
	// has accounted for yet. Their amounts still reduce the owner's
	// available balance.
	GetUnabsorbed(ctx context.Context, ownerID primitive.ObjectID) ([]*models.InstantWithdrawal, error)
	MarkAbsorbed(ctx context.Context, ids []primitive.ObjectID, payoutID primitive.ObjectID) error
}
