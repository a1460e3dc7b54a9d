package interfaces

import (
	"context"

	"renthub/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PromoCodeRepository interface {
	Create(ctx context.Context, code *models.PromoCode) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.PromoCode, error)
	GetByCode(ctx context.Context, code string) (*models.PromoCode, error)

	// Redeem performs the atomic check-and-increment: the total-cap filter
	// and the used_count increment are one statement, and the per-user cap
	// is re-checked inside the same transaction that appends the usage row.
	// Exceeding either cap returns a conflict; validation-time checks alone
	// are advisory.
	Redeem(ctx context.Context, codeID primitive.ObjectID, usage *models.PromoCodeUsage) error

	CountUsagesByUser(ctx context.Context, codeID primitive.ObjectID, userID *primitive.ObjectID, guestEmail string) (int64, error)

	// ReleaseUsage reverses a redemption when the booking it was bound to
	// never came into existence.
	ReleaseUsage(ctx context.Context, usageID primitive.ObjectID) error

	// BindUsageToBooking links the usage row to the booking it paid for.
	BindUsageToBooking(ctx context.Context, usageID, bookingID primitive.ObjectID) error

	// ReleaseUsageForBooking reverses the redemption bound to a booking that
	// was cancelled before its payment was captured. A no-op when the
	// booking has no usage.
	ReleaseUsageForBooking(ctx context.Context, bookingID primitive.ObjectID) error
}
