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

type bookingChargeRepository struct {
	collection *mongo.Collection
}

func NewBookingChargeRepository(db *database.MongoDB) interfaces.BookingChargeRepository {
	return &bookingChargeRepository{
		collection: db.Collection("booking_charges"),
	}
}

func (r *bookingChargeRepository) Create(ctx context.Context, charge *models.BookingCharge) error {
	charge.ID = primitive.NewObjectID()
	charge.CreatedAt = time.Now()
	charge.UpdatedAt = time.Now()

	if _, err := r.collection.InsertOne(ctx, charge); err != nil {
		return fmt.Errorf("failed to create booking charge: %w", err)
	}
	return nil
}

func (r *bookingChargeRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.BookingCharge, error) {
	var charge models.BookingCharge
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&charge)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get booking charge: %w", err)
	}
	return &charge, nil
}

func (r *bookingChargeRepository) GetByBookingID(ctx context.Context, bookingID primitive.ObjectID) ([]*models.BookingCharge, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"booking_id": bookingID})
	if err != nil {
		return nil, fmt.Errorf("failed to find booking charges: %w", err)
	}
	defer cursor.Close(ctx)

	var charges []*models.BookingCharge
	if err := cursor.All(ctx, &charges); err != nil {
		return nil, fmt.Errorf("failed to decode charges: %w", err)
	}
	return charges, nil
}

func (r *bookingChargeRepository) AdvanceStatus(ctx context.Context, id primitive.ObjectID, from, to models.ChargeStatus, updates map[string]interface{}) (bool, error) {
	set := bson.M{
		"status":     to,
		"updated_at": time.Now(),
	}
	for k, v := range updates {
		set[k] = v
	}

	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": set},
	)
	if err != nil {
		return false, fmt.Errorf("failed to advance charge status: %w", err)
	}
	return result.ModifiedCount == 1, nil
}

func (r *bookingChargeRepository) GetUnsettledAmountForBookings(ctx context.Context, bookingIDs []primitive.ObjectID) (float64, error) {
	if len(bookingIDs) == 0 {
		return 0, nil
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"booking_id": bson.M{"$in": bookingIDs},
			"status":     models.ChargeStatusApproved,
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": "$amount"},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate unsettled charges: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		Total float64 `bson:"total"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return 0, fmt.Errorf("failed to decode charge aggregate: %w", err)
	}
	if len(results) == 0 {
		return 0, nil
	}
	return results[0].Total, nil
}

func (r *bookingChargeRepository) ExpireStalePending(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.collection.UpdateMany(
		ctx,
		bson.M{
			"status":     models.ChargeStatusPending,
			"created_at": bson.M{"$lt": cutoff},
		},
		bson.M{"$set": bson.M{
			"status":     models.ChargeStatusExpired,
			"updated_at": time.Now(),
		}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale charges: %w", err)
	}
	return result.ModifiedCount, nil
}
