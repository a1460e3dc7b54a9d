package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the indexes the engine's consistency guarantees
// lean on. The unique indexes on reference_code and provider_reference are
// load-bearing: they are the store-level backstop for idempotent creation.
func (m *MongoDB) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := map[string][]mongo.IndexModel{
		"bookings": {
			{
				Keys:    bson.D{{Key: "reference_code", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys: bson.D{
					{Key: "vehicle_id", Value: 1},
					{Key: "status", Value: 1},
					{Key: "pickup_at", Value: 1},
					{Key: "return_at", Value: 1},
				},
			},
			{
				Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "status", Value: 1}, {Key: "paid_out_id", Value: 1}},
			},
		},
		"payment_transactions": {
			{
				Keys:    bson.D{{Key: "provider_reference", Value: 1}},
				Options: options.Index().SetUnique(true).SetSparse(true),
			},
			{
				Keys: bson.D{{Key: "booking_id", Value: 1}, {Key: "type", Value: 1}, {Key: "status", Value: 1}},
			},
		},
		"promo_codes": {
			{
				Keys:    bson.D{{Key: "code", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		"promo_code_usages": {
			{
				Keys: bson.D{{Key: "promo_code_id", Value: 1}, {Key: "user_id", Value: 1}},
			},
		},
		"deposit_refunds": {
			{
				Keys: bson.D{{Key: "status", Value: 1}, {Key: "due_date", Value: 1}, {Key: "next_attempt_at", Value: 1}},
			},
			{
				Keys:    bson.D{{Key: "booking_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		"audit_logs": {
			{
				Keys: bson.D{{Key: "resource", Value: 1}, {Key: "resource_id", Value: 1}, {Key: "created_at", Value: -1}},
			},
		},
	}

	for collection, models := range indexes {
		if _, err := m.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes for %s: %w", collection, err)
		}
	}
	return nil
}
