package mongodb

import (
	"context"
	"fmt"
	"time"

	"renthub/internal/models"
	"renthub/internal/repositories/interfaces"
	"renthub/internal/utils"
	"renthub/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type bookingRepository struct {
	db         *database.MongoDB
	collection *mongo.Collection
	calendars  *mongo.Collection
}

func NewBookingRepository(db *database.MongoDB) interfaces.BookingRepository {
	return &bookingRepository{
		db:         db,
		collection: db.Collection("bookings"),
		calendars:  db.Collection("vehicle_calendars"),
	}
}

func (r *bookingRepository) CreateIfAvailable(ctx context.Context, booking *models.Booking) error {
	booking.ID = primitive.NewObjectID()
	booking.Version = 1
	booking.CreatedAt = time.Now()
	booking.UpdatedAt = time.Now()

	// Conflict check and insert commit as one transaction. A snapshot
	// transaction alone is not enough: two concurrent inserts for overlapping
	// windows write disjoint documents and both commit. Bumping the vehicle's
	// calendar row first makes every pair of concurrent transactions on the
	// same vehicle write-conflict; the server aborts the loser, the driver
	// retries it, and the retried conflict count then sees the winner's row.
	_, err := r.db.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		if _, err := r.calendars.UpdateOne(
			sessCtx,
			bson.M{"_id": booking.VehicleID},
			bson.M{"$inc": bson.M{"revision": 1}},
			options.Update().SetUpsert(true),
		); err != nil {
			return nil, fmt.Errorf("failed to claim vehicle calendar: %w", err)
		}

		count, err := r.countConflicts(sessCtx, booking.VehicleID, booking.PickupAt, booking.ReturnAt, nil)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, interfaces.ErrBookingConflict
		}

		if _, err := r.collection.InsertOne(sessCtx, booking); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, interfaces.ErrDuplicateReference
			}
			return nil, fmt.Errorf("failed to create booking: %w", err)
		}
		return nil, nil
	})
	return err
}

func (r *bookingRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Booking, error) {
	var booking models.Booking
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&booking)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

func (r *bookingRepository) GetByReference(ctx context.Context, referenceCode string) (*models.Booking, error) {
	var booking models.Booking
	err := r.collection.FindOne(ctx, bson.M{"reference_code": referenceCode}).Decode(&booking)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get booking by reference: %w", err)
	}
	return &booking, nil
}

func (r *bookingRepository) CountConflicts(ctx context.Context, vehicleID primitive.ObjectID, pickupAt, returnAt time.Time, excludeID *primitive.ObjectID) (int64, error) {
	return r.countConflicts(ctx, vehicleID, pickupAt, returnAt, excludeID)
}

func (r *bookingRepository) countConflicts(ctx context.Context, vehicleID primitive.ObjectID, pickupAt, returnAt time.Time, excludeID *primitive.ObjectID) (int64, error) {
	// Half-open interval overlap: existing.pickup < requested.return AND
	// existing.return > requested.pickup.
	filter := bson.M{
		"vehicle_id": vehicleID,
		"status":     bson.M{"$in": models.NonTerminalBookingStatuses},
		"pickup_at":  bson.M{"$lt": returnAt},
		"return_at":  bson.M{"$gt": pickupAt},
	}
	if excludeID != nil {
		filter["_id"] = bson.M{"$ne": *excludeID}
	}

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count conflicting bookings: %w", err)
	}
	return count, nil
}

func (r *bookingRepository) ApplyTransition(ctx context.Context, id primitive.ObjectID, expectedVersion int64, updates map[string]interface{}) (bool, error) {
	updates["updated_at"] = time.Now()

	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id, "version": expectedVersion},
		bson.M{
			"$set": updates,
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return false, fmt.Errorf("failed to apply booking transition: %w", err)
	}
	return result.ModifiedCount == 1, nil
}

func (r *bookingRepository) CountByRenter(ctx context.Context, userID *primitive.ObjectID, guestEmail string) (int64, error) {
	var filter bson.M
	switch {
	case userID != nil:
		filter = bson.M{"user_id": *userID}
	case guestEmail != "":
		filter = bson.M{"guest.email": guestEmail}
	default:
		return 0, nil
	}

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count renter bookings: %w", err)
	}
	return count, nil
}

func (r *bookingRepository) GetCompletedUnpaidOut(ctx context.Context, ownerID primitive.ObjectID) ([]*models.Booking, error) {
	cursor, err := r.collection.Find(ctx, bson.M{
		"owner_id":    ownerID,
		"status":      models.BookingStatusCompleted,
		"paid_out_id": nil,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find completed bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*models.Booking
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}
	return bookings, nil
}

func (r *bookingRepository) GetByRenter(ctx context.Context, userID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Booking, int64, error) {
	return r.findPage(ctx, bson.M{"user_id": userID}, params)
}

func (r *bookingRepository) GetByStatus(ctx context.Context, status models.BookingStatus, params *utils.PaginationParams) ([]*models.Booking, int64, error) {
	return r.findPage(ctx, bson.M{"status": status}, params)
}

func (r *bookingRepository) findPage(ctx context.Context, filter bson.M, params *utils.PaginationParams) ([]*models.Booking, int64, error) {
	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	cursor, err := r.collection.Find(ctx, filter, params.FindOptions())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*models.Booking
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, 0, fmt.Errorf("failed to decode bookings: %w", err)
	}
	return bookings, total, nil
}
