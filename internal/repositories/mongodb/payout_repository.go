package mongodb

import (
	"context"
	"fmt"
	"time"

	"renthub/internal/models"
	"renthub/internal/repositories/interfaces"
	"renthub/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type payoutRepository struct {
	db         *database.MongoDB
	collection *mongo.Collection
	profiles   *mongo.Collection
	bookings   *mongo.Collection
}

func NewPayoutRepository(db *database.MongoDB) interfaces.PayoutRepository {
	return &payoutRepository{
		db:         db,
		collection: db.Collection("payouts"),
		profiles:   db.Collection("owner_payout_profiles"),
		bookings:   db.Collection("bookings"),
	}
}

// CreateForBookings inserts the payout and stamps its bookings with the
// payout id in one transaction. The booking filter requires paid_out_id to
// still be unset, so a booking claimed by a concurrent cycle aborts the
// whole payout instead of being paid twice.
func (r *payoutRepository) CreateForBookings(ctx context.Context, payout *models.Payout, bookingIDs []primitive.ObjectID) error {
	payout.ID = primitive.NewObjectID()
	payout.BookingIDs = bookingIDs
	payout.CreatedAt = time.Now()
	payout.UpdatedAt = time.Now()

	_, err := r.db.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		if _, err := r.collection.InsertOne(sessCtx, payout); err != nil {
			return nil, fmt.Errorf("failed to create payout: %w", err)
		}

		result, err := r.bookings.UpdateMany(
			sessCtx,
			bson.M{"_id": bson.M{"$in": bookingIDs}, "paid_out_id": nil},
			bson.M{"$set": bson.M{
				"paid_out_id": payout.ID,
				"updated_at":  time.Now(),
			}},
		)
		if err != nil {
			return nil, fmt.Errorf("failed to mark bookings paid out: %w", err)
		}
		if result.ModifiedCount != int64(len(bookingIDs)) {
			return nil, interfaces.ErrAlreadyPaidOut
		}
		return nil, nil
	})
	return err
}

func (r *payoutRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Payout, error) {
	var payout models.Payout
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&payout)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payout: %w", err)
	}
	return &payout, nil
}

func (r *payoutRepository) GetByOwnerID(ctx context.Context, ownerID primitive.ObjectID) ([]*models.Payout, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"owner_id": ownerID})
	if err != nil {
		return nil, fmt.Errorf("failed to find owner payouts: %w", err)
	}
	defer cursor.Close(ctx)

	var payouts []*models.Payout
	if err := cursor.All(ctx, &payouts); err != nil {
		return nil, fmt.Errorf("failed to decode payouts: %w", err)
	}
	return payouts, nil
}

func (r *payoutRepository) UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.PayoutStatus, updates map[string]interface{}) error {
	set := bson.M{
		"status":     status,
		"updated_at": time.Now(),
	}
	for k, v := range updates {
		set[k] = v
	}
	if status == models.PayoutStatusCompleted || status == models.PayoutStatusFailed {
		set["processed_at"] = time.Now()
	}

	if _, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set}); err != nil {
		return fmt.Errorf("failed to update payout status: %w", err)
	}
	return nil
}

func (r *payoutRepository) GetOwnersDue(ctx context.Context, now time.Time) ([]*models.OwnerPayoutProfile, error) {
	// An owner is due when the last payout predates the start of their
	// current frequency cycle (or never happened).
	filter := bson.M{"$or": []bson.M{
		{"last_payout_at": nil},
		{"frequency": models.PayoutFrequencyWeekly, "last_payout_at": bson.M{"$lte": now.AddDate(0, 0, -7)}},
		{"frequency": models.PayoutFrequencyBiweekly, "last_payout_at": bson.M{"$lte": now.AddDate(0, 0, -14)}},
		{"frequency": models.PayoutFrequencyMonthly, "last_payout_at": bson.M{"$lte": now.AddDate(0, -1, 0)}},
	}}

	cursor, err := r.profiles.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find due owners: %w", err)
	}
	defer cursor.Close(ctx)

	var profiles []*models.OwnerPayoutProfile
	if err := cursor.All(ctx, &profiles); err != nil {
		return nil, fmt.Errorf("failed to decode payout profiles: %w", err)
	}
	return profiles, nil
}

func (r *payoutRepository) SetLastPayoutAt(ctx context.Context, ownerID primitive.ObjectID, at time.Time) error {
	_, err := r.profiles.UpdateOne(
		ctx,
		bson.M{"_id": ownerID},
		bson.M{"$set": bson.M{"last_payout_at": at}},
	)
	if err != nil {
		return fmt.Errorf("failed to update last payout time: %w", err)
	}
	return nil
}
