package interfaces

import (
	"context"

	"renthub/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PaymentTransactionRepository interface {
	Create(ctx context.Context, transaction *models.PaymentTransaction) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.PaymentTransaction, error)
	GetByProviderReference(ctx context.Context, providerReference string) (*models.PaymentTransaction, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.PaymentTransaction, error)
	GetByBookingID(ctx context.Context, bookingID primitive.ObjectID) ([]*models.PaymentTransaction, error)

	// GetActivePayment returns the booking's single non-terminal payment-type
	// transaction, or nil if none exists.
	GetActivePayment(ctx context.Context, bookingID primitive.ObjectID) (*models.PaymentTransaction, error)

	UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.TransactionStatus, updates map[string]interface{}) error

	// Supersede terminally marks a prior attempt that is being replaced by a
	// new initialization.
	Supersede(ctx context.Context, id primitive.ObjectID) error

	// GetInFlight returns transactions stuck in processing, for the
	// reconciliation sweep's polling fallback.
	GetInFlight(ctx context.Context) ([]*models.PaymentTransaction, error)
}
