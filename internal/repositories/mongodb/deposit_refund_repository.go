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
	"go.mongodb.org/mongo-driver/mongo/options"
)

type depositRefundRepository struct {
	collection *mongo.Collection
}

func NewDepositRefundRepository(db *database.MongoDB) interfaces.DepositRefundRepository {
	return &depositRefundRepository{
		collection: db.Collection("deposit_refunds"),
	}
}

func (r *depositRefundRepository) Create(ctx context.Context, refund *models.DepositRefund) error {
	refund.ID = primitive.NewObjectID()
	refund.CreatedAt = time.Now()
	refund.UpdatedAt = time.Now()
	if refund.NextAttemptAt.IsZero() {
		refund.NextAttemptAt = refund.DueDate
	}

	if _, err := r.collection.InsertOne(ctx, refund); err != nil {
		return fmt.Errorf("failed to create deposit refund: %w", err)
	}
	return nil
}

func (r *depositRefundRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.DepositRefund, error) {
	var refund models.DepositRefund
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&refund)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get deposit refund: %w", err)
	}
	return &refund, nil
}

func (r *depositRefundRepository) GetByBookingID(ctx context.Context, bookingID primitive.ObjectID) (*models.DepositRefund, error) {
	var refund models.DepositRefund
	err := r.collection.FindOne(ctx, bson.M{"booking_id": bookingID}).Decode(&refund)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get deposit refund by booking: %w", err)
	}
	return &refund, nil
}

// ClaimNextDue selects and marks a due refund in one statement. With several
// scheduler instances running, the findAndModify semantics guarantee a row
// is handed to exactly one of them.
func (r *depositRefundRepository) ClaimNextDue(ctx context.Context, now time.Time) (*models.DepositRefund, error) {
	filter := bson.M{
		"status":          models.DepositRefundStatusPending,
		"due_date":        bson.M{"$lte": now},
		"next_attempt_at": bson.M{"$lte": now},
	}
	update := bson.M{"$set": bson.M{
		"status":     models.DepositRefundStatusProcessing,
		"updated_at": time.Now(),
	}}

	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "due_date", Value: 1}}).
		SetReturnDocument(options.After)

	var refund models.DepositRefund
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&refund)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim due refund: %w", err)
	}
	return &refund, nil
}

func (r *depositRefundRepository) MarkCompleted(ctx context.Context, id primitive.ObjectID, providerRefundID string, processedAt time.Time) error {
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"status":             models.DepositRefundStatusCompleted,
			"provider_refund_id": providerRefundID,
			"processed_at":       processedAt,
			"last_error":         "",
			"updated_at":         time.Now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark refund completed: %w", err)
	}
	return nil
}

func (r *depositRefundRepository) MarkForRetry(ctx context.Context, id primitive.ObjectID, attempts int, nextAttemptAt time.Time, lastError string) error {
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"status":          models.DepositRefundStatusPending,
			"attempts":        attempts,
			"next_attempt_at": nextAttemptAt,
			"last_error":      lastError,
			"updated_at":      time.Now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark refund for retry: %w", err)
	}
	return nil
}

func (r *depositRefundRepository) MarkFailed(ctx context.Context, id primitive.ObjectID, lastError string) error {
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"status":     models.DepositRefundStatusFailed,
			"last_error": lastError,
			"updated_at": time.Now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark refund failed: %w", err)
	}
	return nil
}

func (r *depositRefundRepository) Cancel(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id, "status": models.DepositRefundStatusPending},
		bson.M{"$set": bson.M{
			"status":     models.DepositRefundStatusCancelled,
			"updated_at": time.Now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to cancel refund: %w", err)
	}
	if result.ModifiedCount == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}

func (r *depositRefundRepository) ReduceAmount(ctx context.Context, id primitive.ObjectID, by float64) (bool, error) {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{
			"_id":    id,
			"status": models.DepositRefundStatusPending,
			"amount": bson.M{"$gte": by},
		},
		bson.M{
			"$inc": bson.M{"amount": -by},
			"$set": bson.M{"updated_at": time.Now()},
		},
	)
	if err != nil {
		return false, fmt.Errorf("failed to reduce refund amount: %w", err)
	}
	return result.ModifiedCount > 0, nil
}
