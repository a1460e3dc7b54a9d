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

type withdrawalRepository struct {
	collection *mongo.Collection
}

func NewWithdrawalRepository(db *database.MongoDB) interfaces.WithdrawalRepository {
	return &withdrawalRepository{
		collection: db.Collection("instant_withdrawals"),
	}
}

func (r *withdrawalRepository) Create(ctx context.Context, withdrawal *models.InstantWithdrawal) error {
	withdrawal.ID = primitive.NewObjectID()
	withdrawal.CreatedAt = time.Now()
	withdrawal.UpdatedAt = time.Now()

	if _, err := r.collection.InsertOne(ctx, withdrawal); err != nil {
		return fmt.Errorf("failed to create instant withdrawal: %w", err)
	}
	return nil
}

func (r *withdrawalRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.InstantWithdrawal, error) {
	var withdrawal models.InstantWithdrawal
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&withdrawal)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get instant withdrawal: %w", err)
	}
	return &withdrawal, nil
}

func (r *withdrawalRepository) GetByOwnerID(ctx context.Context, ownerID primitive.ObjectID) ([]*models.InstantWithdrawal, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"owner_id": ownerID})
	if err != nil {
		return nil, fmt.Errorf("failed to find owner withdrawals: %w", err)
	}
	defer cursor.Close(ctx)

	var withdrawals []*models.InstantWithdrawal
	if err := cursor.All(ctx, &withdrawals); err != nil {
		return nil, fmt.Errorf("failed to decode withdrawals: %w", err)
	}
	return withdrawals, nil
}

func (r *withdrawalRepository) UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.WithdrawalStatus, updates map[string]interface{}) error {
	set := bson.M{
		"status":     status,
		"updated_at": time.Now(),
	}
	for k, v := range updates {
		set[k] = v
	}
	if status == models.WithdrawalStatusCompleted || status == models.WithdrawalStatusFailed {
		set["processed_at"] = time.Now()
	}

	if _, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set}); err != nil {
		return fmt.Errorf("failed to update withdrawal status: %w", err)
	}
	return nil
}

func (r *withdrawalRepository) GetUnabsorbed(ctx context.Context, ownerID primitive.ObjectID) ([]*models.InstantWithdrawal, error) {
	filter := bson.M{
		"owner_id":              ownerID,
		"status":                models.WithdrawalStatusCompleted,
		"absorbed_by_payout_id": nil,
	}
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find unabsorbed withdrawals: %w", err)
	}
	defer cursor.Close(ctx)

	var withdrawals []*models.InstantWithdrawal
	if err := cursor.All(ctx, &withdrawals); err != nil {
		return nil, fmt.Errorf("failed to decode withdrawals: %w", err)
	}
	return withdrawals, nil
}

func (r *withdrawalRepository) MarkAbsorbed(ctx context.Context, ids []primitive.ObjectID, payoutID primitive.ObjectID) error {
	if len(ids) == 0 {
		return nil
	}
	update := bson.M{"$set": bson.M{
		"absorbed_by_payout_id": payoutID,
		"updated_at":            time.Now(),
	}}
	if _, err := r.collection.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": ids}}, update); err != nil {
		return fmt.Errorf("failed to mark withdrawals absorbed: %w", err)
	}
	return nil
}
