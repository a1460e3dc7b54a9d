package interfaces

import (
	"context"
	"time"

	"renthub/internal/models"
	"renthub/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type BookingRepository interface {
	// CreateIfAvailable inserts the booking only if no non-terminal booking
	// for the same vehicle overlaps its window. Check and insert run as one
	// atomic unit; a lost race returns a conflict, never a second booking.
	CreateIfAvailable(ctx context.Context, booking *models.Booking) error

	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Booking, error)
	GetByReference(ctx context.Context, referenceCode string) (*models.Booking, error)

	// CountConflicts counts non-terminal bookings for the vehicle whose
	// [pickup, return) window overlaps the given one.
	CountConflicts(ctx context.Context, vehicleID primitive.ObjectID, pickupAt, returnAt time.Time, excludeID *primitive.ObjectID) (int64, error)

	// ApplyTransition updates the booking only if its version still equals
	// expectedVersion, bumping the version and update timestamp. Returns
	// false when the row has moved on, so stale events are discarded.
	ApplyTransition(ctx context.Context, id primitive.ObjectID, expectedVersion int64, updates map[string]interface{}) (bool, error)

	// CountByRenter counts bookings ever made by the renter, used for
	// first-booking promo eligibility.
	CountByRenter(ctx context.Context, userID *primitive.ObjectID, guestEmail string) (int64, error)

	// GetCompletedUnpaidOut returns completed bookings for the owner's
	// vehicles that no payout has covered yet.
	GetCompletedUnpaidOut(ctx context.Context, ownerID primitive.ObjectID) ([]*models.Booking, error)

	GetByRenter(ctx context.Context, userID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Booking, int64, error)
	GetByStatus(ctx context.Context, status models.BookingStatus, params *utils.PaginationParams) ([]*models.Booking, int64, error)
}
