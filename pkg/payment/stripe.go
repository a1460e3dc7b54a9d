package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const stripeProviderName = "stripe"

// StripeProvider is the card-network backend.
type StripeProvider struct {
	client        *client.API
	webhookSecret string
}

func NewStripeProvider(secretKey, webhookSecret string) *StripeProvider {
	sc := &client.API{}
	sc.Init(secretKey, nil)

	return &StripeProvider{
		client:        sc,
		webhookSecret: webhookSecret,
	}
}

func (s *StripeProvider) Name() string {
	return stripeProviderName
}

func (s *StripeProvider) Initialize(ctx context.Context, request *InitializeRequest) (*InitializeResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:       stripe.Int64(toMinorUnits(request.Amount)),
		Currency:     stripe.String(request.Currency),
		Description:  stripe.String(request.Description),
		ReceiptEmail: stripe.String(request.CustomerEmail),
	}
	params.Context = ctx
	// Stripe deduplicates on the idempotency key server-side: a replay with
	// the same key returns the original intent instead of a second charge.
	params.IdempotencyKey = stripe.String(request.IdempotencyReference)

	for key, value := range request.Metadata {
		params.AddMetadata(key, value)
	}

	pi, err := s.client.PaymentIntents.New(params)
	if err != nil {
		return nil, s.wrapError("failed to create payment intent", err)
	}

	return &InitializeResult{
		ProviderReference: pi.ID,
		ClientSecret:      pi.ClientSecret,
	}, nil
}

func (s *StripeProvider) Verify(ctx context.Context, providerReference string) (*VerificationResult, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := s.client.PaymentIntents.Get(providerReference, params)
	if err != nil {
		return nil, s.wrapError("failed to retrieve payment intent", err)
	}

	return s.intentToResult(pi), nil
}

func (s *StripeProvider) Capture(ctx context.Context, providerReference string, amount float64) (*VerificationResult, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	if amount > 0 {
		params.AmountToCapture = stripe.Int64(toMinorUnits(amount))
	}

	pi, err := s.client.PaymentIntents.Capture(providerReference, params)
	if err != nil {
		return nil, s.wrapError("failed to capture payment intent", err)
	}

	return s.intentToResult(pi), nil
}

func (s *StripeProvider) Refund(ctx context.Context, providerReference string, amount float64) (*RefundResult, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(providerReference),
	}
	params.Context = ctx
	if amount > 0 {
		params.Amount = stripe.Int64(toMinorUnits(amount))
	}

	refund, err := s.client.Refunds.New(params)
	if err != nil {
		return nil, s.wrapError("failed to create refund", err)
	}

	return &RefundResult{
		RefundID:  refund.ID,
		Status:    string(refund.Status),
		Amount:    fromMinorUnits(refund.Amount),
		Currency:  string(refund.Currency),
		CreatedAt: refund.Created,
	}, nil
}

func (s *StripeProvider) VerifyWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to verify webhook signature: %w", err)
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
	}

	we := &WebhookEvent{
		EventID:           event.ID,
		EventType:         string(event.Type),
		ProviderReference: pi.ID,
		Amount:            fromMinorUnits(pi.AmountReceived),
		Currency:          string(pi.Currency),
		Succeeded:         event.Type == "payment_intent.succeeded",
		CreatedAt:         event.Created,
	}
	if pi.LastPaymentError != nil {
		we.FailureCode = string(pi.LastPaymentError.DeclineCode)
	}

	return we, nil
}

// intentToResult maps a PaymentIntent status into the canonical result. A
// not-yet-final status yields Success=false with no error type, which keeps
// the transaction in flight.
func (s *StripeProvider) intentToResult(pi *stripe.PaymentIntent) *VerificationResult {
	result := &VerificationResult{
		Status:         string(pi.Status),
		CapturedAmount: fromMinorUnits(pi.AmountReceived),
		Currency:       string(pi.Currency),
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		result.Success = true
	case stripe.PaymentIntentStatusCanceled:
		result.ErrorType = ErrorTypeDeclined
		result.ErrorMessage = "payment intent cancelled"
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if pi.LastPaymentError != nil {
			result.ErrorType = mapStripeDecline(pi.LastPaymentError)
			result.ErrorMessage = pi.LastPaymentError.Msg
		}
	}

	return result
}

func (s *StripeProvider) wrapError(message string, err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return newError(stripeProviderName, classifyTransportError(err), message, err)
	}

	errType := ErrorTypeUnknown
	switch stripeErr.Type {
	case stripe.ErrorTypeCard:
		errType = mapStripeDecline(stripeErr)
	case stripe.ErrorTypeInvalidRequest:
		errType = ErrorTypeInvalidDetails
	case stripe.ErrorTypeAPI:
		errType = ErrorTypeProviderError
	}
	if stripeErr.HTTPStatusCode >= 500 {
		errType = ErrorTypeProviderError
	}

	return newError(stripeProviderName, errType, message, err)
}

func mapStripeDecline(stripeErr *stripe.Error) ErrorType {
	switch stripeErr.DeclineCode {
	case stripe.DeclineCodeInsufficientFunds:
		return ErrorTypeInsufficientFunds
	case stripe.DeclineCodeIncorrectNumber, stripe.DeclineCodeInvalidNumber,
		stripe.DeclineCodeInvalidCVC, stripe.DeclineCodeInvalidExpiryYear:
		return ErrorTypeInvalidDetails
	}
	return ErrorTypeDeclined
}

func toMinorUnits(amount float64) int64 {
	return int64(amount*100 + 0.5)
}

func fromMinorUnits(amount int64) float64 {
	return float64(amount) / 100
}
