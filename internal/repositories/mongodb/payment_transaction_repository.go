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

var terminalTransactionStatuses = []models.TransactionStatus{
	models.TransactionStatusCompleted,
	models.TransactionStatusFailed,
	models.TransactionStatusCancelled,
	models.TransactionStatusSuperseded,
}

type paymentTransactionRepository struct {
	collection *mongo.Collection
}

func NewPaymentTransactionRepository(db *database.MongoDB) interfaces.PaymentTransactionRepository {
	return &paymentTransactionRepository{
		collection: db.Collection("payment_transactions"),
	}
}

func (r *paymentTransactionRepository) Create(ctx context.Context, transaction *models.PaymentTransaction) error {
	transaction.ID = primitive.NewObjectID()
	transaction.CreatedAt = time.Now()
	transaction.UpdatedAt = time.Now()

	if _, err := r.collection.InsertOne(ctx, transaction); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return interfaces.ErrDuplicateReference
		}
		return fmt.Errorf("failed to create payment transaction: %w", err)
	}
	return nil
}

func (r *paymentTransactionRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.PaymentTransaction, error) {
	var transaction models.PaymentTransaction
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&transaction)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payment transaction: %w", err)
	}
	return &transaction, nil
}

func (r *paymentTransactionRepository) GetByProviderReference(ctx context.Context, providerReference string) (*models.PaymentTransaction, error) {
	var transaction models.PaymentTransaction
	err := r.collection.FindOne(ctx, bson.M{"provider_reference": providerReference}).Decode(&transaction)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get transaction by provider reference: %w", err)
	}
	return &transaction, nil
}

func (r *paymentTransactionRepository) GetByExternalID(ctx context.Context, externalID string) (*models.PaymentTransaction, error) {
	var transaction models.PaymentTransaction
	err := r.collection.FindOne(ctx, bson.M{"external_id": externalID}).Decode(&transaction)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get transaction by external id: %w", err)
	}
	return &transaction, nil
}

func (r *paymentTransactionRepository) GetByBookingID(ctx context.Context, bookingID primitive.ObjectID) ([]*models.PaymentTransaction, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"booking_id": bookingID})
	if err != nil {
		return nil, fmt.Errorf("failed to find booking transactions: %w", err)
	}
	defer cursor.Close(ctx)

	var transactions []*models.PaymentTransaction
	if err := cursor.All(ctx, &transactions); err != nil {
		return nil, fmt.Errorf("failed to decode transactions: %w", err)
	}
	return transactions, nil
}

func (r *paymentTransactionRepository) GetActivePayment(ctx context.Context, bookingID primitive.ObjectID) (*models.PaymentTransaction, error) {
	var transaction models.PaymentTransaction
	err := r.collection.FindOne(ctx, bson.M{
		"booking_id": bookingID,
		"type":       models.TransactionTypePayment,
		"status":     bson.M{"$nin": terminalTransactionStatuses},
	}).Decode(&transaction)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active payment: %w", err)
	}
	return &transaction, nil
}

func (r *paymentTransactionRepository) UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.TransactionStatus, updates map[string]interface{}) error {
	set := bson.M{
		"status":     status,
		"updated_at": time.Now(),
	}
	for k, v := range updates {
		set[k] = v
	}
	if status == models.TransactionStatusCompleted || status == models.TransactionStatusFailed {
		set["processed_at"] = time.Now()
	}

	if _, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set}); err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}
	return nil
}

func (r *paymentTransactionRepository) Supersede(ctx context.Context, id primitive.ObjectID) error {
	return r.UpdateStatus(ctx, id, models.TransactionStatusSuperseded, nil)
}

func (r *paymentTransactionRepository) GetInFlight(ctx context.Context) ([]*models.PaymentTransaction, error) {
	cursor, err := r.collection.Find(ctx, bson.M{
		"type":   models.TransactionTypePayment,
		"status": models.TransactionStatusProcessing,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find in-flight transactions: %w", err)
	}
	defer cursor.Close(ctx)

	var transactions []*models.PaymentTransaction
	if err := cursor.All(ctx, &transactions); err != nil {
		return nil, fmt.Errorf("failed to decode transactions: %w", err)
	}
	return transactions, nil
}
