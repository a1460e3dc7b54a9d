package services

import (
	"context"
	"errors"
	"fmt"

	"renthub/internal/config"
	"renthub/internal/models"
	"renthub/internal/repositories/interfaces"
	"renthub/internal/utils"
	"renthub/pkg/logger"
	"renthub/pkg/payment"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PaymentService owns the money-movement side of a booking: one active
// payment attempt per booking at a time, idempotent provider initialization,
// and refunds against captured amounts.
type PaymentService interface {
	// InitializePayment creates or resumes the booking's payment attempt for
	// the given method. Resubmitting the same method returns the existing
	// attempt; switching methods supersedes the old attempt first.
	InitializePayment(ctx context.Context, booking *models.Booking, method models.PaymentMethod) (*models.PaymentTransaction, *payment.InitializeResult, error)

	// Reconcile polls the provider for an in-flight transaction's real state.
	// Transactions that never reached the provider are re-initialized under
	// their original idempotency reference instead.
	Reconcile(ctx context.Context, transaction *models.PaymentTransaction) (*payment.VerificationResult, error)

	// Refund moves money back on a completed transaction and records the
	// refund as its own transaction row.
	Refund(ctx context.Context, transaction *models.PaymentTransaction, amount float64, refundType models.TransactionType) (*models.PaymentTransaction, error)

	// ParseWebhook verifies the named provider's signature and normalizes
	// the event payload.
	ParseWebhook(ctx context.Context, providerName string, payload []byte, signature string) (*payment.WebhookEvent, error)

	GetTransaction(ctx context.Context, id primitive.ObjectID) (*models.PaymentTransaction, error)
	ProviderFor(method models.PaymentMethod) (payment.Provider, error)
}

type paymentService struct {
	transactionRepo interfaces.PaymentTransactionRepository
	providers       map[models.PaymentMethod]payment.Provider
	cfg             *config.PaymentConfig
	log             *logger.Logger
}

func NewPaymentService(
	transactionRepo interfaces.PaymentTransactionRepository,
	providers map[models.PaymentMethod]payment.Provider,
	cfg *config.PaymentConfig,
	log *logger.Logger,
) PaymentService {
	return &paymentService{
		transactionRepo: transactionRepo,
		providers:       providers,
		cfg:             cfg,
		log:             log,
	}
}

func (s *paymentService) ProviderFor(method models.PaymentMethod) (payment.Provider, error) {
	provider, ok := s.providers[method]
	if !ok || provider == nil {
		return nil, ErrNoProviderConfigured
	}
	return provider, nil
}

func (s *paymentService) providerByName(name string) (payment.Provider, error) {
	for _, provider := range s.providers {
		if provider != nil && provider.Name() == name {
			return provider, nil
		}
	}
	return nil, ErrNoProviderConfigured
}

// alternativeMethod returns another configured method, if any, to suggest
// after a decline.
func (s *paymentService) alternativeMethod(declined models.PaymentMethod) models.PaymentMethod {
	for method, provider := range s.providers {
		if method != declined && provider != nil {
			return method
		}
	}
	return ""
}

func (s *paymentService) InitializePayment(ctx context.Context, booking *models.Booking, method models.PaymentMethod) (*models.PaymentTransaction, *payment.InitializeResult, error) {
	provider, err := s.ProviderFor(method)
	if err != nil {
		return nil, nil, err
	}

	transaction, err := s.transactionRepo.GetActivePayment(ctx, booking.ID)
	if err != nil {
		return nil, nil, err
	}

	if transaction != nil && transaction.Method != method {
		// Method switch: the old attempt is terminally closed so the
		// booking never has two live charges in flight.
		if err := s.transactionRepo.Supersede(ctx, transaction.ID); err != nil {
			return nil, nil, err
		}
		s.log.WithBookingID(booking.ID).
			WithField("superseded_transaction", transaction.ID.Hex()).
			Info("Payment attempt superseded by method switch")
		transaction = nil
	}

	if transaction == nil {
		transaction = &models.PaymentTransaction{
			BookingID:         &booking.ID,
			Type:              models.TransactionTypePayment,
			Status:            models.TransactionStatusPending,
			Amount:            chargeAmount(booking),
			Currency:          booking.Price.Currency,
			Method:            method,
			ProviderReference: utils.GenerateIdempotencyReference(),
		}
		if err := s.transactionRepo.Create(ctx, transaction); err != nil {
			return nil, nil, err
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()

	result, err := provider.Initialize(callCtx, &payment.InitializeRequest{
		Amount:               transaction.Amount,
		Currency:             transaction.Currency,
		CustomerEmail:        renterEmail(booking),
		Description:          fmt.Sprintf("Booking %s", booking.ReferenceCode),
		IdempotencyReference: transaction.ProviderReference,
		Metadata: map[string]string{
			"booking_id":     booking.ID.Hex(),
			"reference_code": booking.ReferenceCode,
		},
	})
	if err != nil {
		return s.handleInitializeError(ctx, booking, transaction, method, err)
	}

	if err := s.transactionRepo.UpdateStatus(ctx, transaction.ID, models.TransactionStatusProcessing, map[string]interface{}{
		"external_id": result.ProviderReference,
	}); err != nil {
		return nil, nil, err
	}
	transaction.Status = models.TransactionStatusProcessing
	transaction.ExternalID = result.ProviderReference

	s.log.LogPaymentEvent(transaction.ID, "payment_initialized", transaction.Amount, transaction.Currency)
	return transaction, result, nil
}

func (s *paymentService) handleInitializeError(ctx context.Context, booking *models.Booking, transaction *models.PaymentTransaction, method models.PaymentMethod, err error) (*models.PaymentTransaction, *payment.InitializeResult, error) {
	log := s.log.WithBookingID(booking.ID).
		WithField("transaction_id", transaction.ID.Hex()).
		WithError(err)

	if IsProviderTransient(err) {
		// Ambiguous outcome: the charge may or may not exist on the
		// provider side. The attempt stays open; the reconciliation sweep
		// resolves it under the same idempotency reference.
		log.Warn("Payment initialization outcome ambiguous, left in flight")
		if uerr := s.transactionRepo.UpdateStatus(ctx, transaction.ID, models.TransactionStatusProcessing, map[string]interface{}{
			"error_message": err.Error(),
		}); uerr != nil {
			return nil, nil, uerr
		}
		return nil, nil, err
	}

	log.Warn("Payment initialization declined")
	if uerr := s.transactionRepo.UpdateStatus(ctx, transaction.ID, models.TransactionStatusFailed, map[string]interface{}{
		"error_message": err.Error(),
	}); uerr != nil {
		return nil, nil, uerr
	}
	return nil, nil, &PaymentDeclinedError{
		Type:              payment.TypeOf(err),
		Message:           err.Error(),
		AlternativeMethod: s.alternativeMethod(method),
	}
}

func (s *paymentService) Reconcile(ctx context.Context, transaction *models.PaymentTransaction) (*payment.VerificationResult, error) {
	provider, err := s.ProviderFor(transaction.Method)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()

	if transaction.ExternalID == "" {
		// Initialization never got an answer. Re-running it with the same
		// idempotency reference either resumes the existing provider
		// transaction or creates it for the first time.
		result, err := provider.Initialize(callCtx, &payment.InitializeRequest{
			Amount:               transaction.Amount,
			Currency:             transaction.Currency,
			IdempotencyReference: transaction.ProviderReference,
		})
		if err != nil {
			return nil, err
		}
		if err := s.transactionRepo.UpdateStatus(ctx, transaction.ID, models.TransactionStatusProcessing, map[string]interface{}{
			"external_id": result.ProviderReference,
		}); err != nil {
			return nil, err
		}
		transaction.ExternalID = result.ProviderReference
	}

	return provider.Verify(callCtx, transaction.ExternalID)
}

func (s *paymentService) Refund(ctx context.Context, transaction *models.PaymentTransaction, amount float64, refundType models.TransactionType) (*models.PaymentTransaction, error) {
	if transaction.Status != models.TransactionStatusCompleted {
		return nil, NewValidationError("transaction", "only completed transactions can be refunded")
	}
	if amount <= 0 || amount > transaction.CapturedAmount {
		return nil, NewValidationError("amount", "refund amount exceeds captured amount")
	}

	provider, err := s.ProviderFor(transaction.Method)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()

	result, err := provider.Refund(callCtx, transaction.ExternalID, amount)
	if err != nil {
		return nil, fmt.Errorf("provider refund failed: %w", err)
	}

	refund := &models.PaymentTransaction{
		BookingID:         transaction.BookingID,
		Type:              refundType,
		Status:            models.TransactionStatusCompleted,
		Amount:            amount,
		CapturedAmount:    amount,
		Currency:          transaction.Currency,
		Method:            transaction.Method,
		ProviderReference: utils.GenerateIdempotencyReference(),
		ExternalID:        result.RefundID,
	}
	if err := s.transactionRepo.Create(ctx, refund); err != nil {
		return nil, err
	}

	s.log.LogPaymentEvent(refund.ID, "refund_completed", amount, transaction.Currency)
	return refund, nil
}

func (s *paymentService) GetTransaction(ctx context.Context, id primitive.ObjectID) (*models.PaymentTransaction, error) {
	transaction, err := s.transactionRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return transaction, nil
}

func (s *paymentService) ParseWebhook(ctx context.Context, providerName string, payload []byte, signature string) (*payment.WebhookEvent, error) {
	provider, err := s.providerByName(providerName)
	if err != nil {
		return nil, err
	}
	return provider.VerifyWebhook(ctx, payload, signature)
}

// chargeAmount is what the renter's payment method is charged: the booking
// total plus the security deposit hold.
func chargeAmount(booking *models.Booking) float64 {
	return utils.RoundMoney(booking.Price.Total + booking.Price.Deposit)
}

func renterEmail(booking *models.Booking) string {
	if booking.Guest != nil {
		return booking.Guest.Email
	}
	return ""
}
