package payment

import (
	"context"
)

// Provider is the uniform contract over the configured payment backends. Each
// backend translates its own statuses and error codes into the canonical
// result shapes below; callers never see provider-specific types.
type Provider interface {
	// Initialize creates (or retrieves) a provider transaction for the given
	// idempotency reference. Re-invoking with the same reference returns the
	// same provider transaction rather than creating a duplicate charge.
	Initialize(ctx context.Context, request *InitializeRequest) (*InitializeResult, error)
	// Verify fetches the current state of a provider transaction. Webhooks
	// are the primary path; Verify is the polling fallback.
	Verify(ctx context.Context, providerReference string) (*VerificationResult, error)
	Capture(ctx context.Context, providerReference string, amount float64) (*VerificationResult, error)
	Refund(ctx context.Context, providerReference string, amount float64) (*RefundResult, error)
	// VerifyWebhook checks the provider's signature and normalizes the event.
	VerifyWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error)
	Name() string
}

type InitializeRequest struct {
	Amount               float64           `json:"amount"`
	Currency             string            `json:"currency"`
	CustomerEmail        string            `json:"customer_email"`
	Description          string            `json:"description"`
	IdempotencyReference string            `json:"idempotency_reference"`
	Metadata             map[string]string `json:"metadata"`
}

type InitializeResult struct {
	ProviderReference string `json:"provider_reference"`
	// ClientSecret is set by card backends, AuthorizationURL by redirect
	// based backends. Exactly one is populated.
	ClientSecret     string `json:"client_secret,omitempty"`
	AuthorizationURL string `json:"authorization_url,omitempty"`
}

type VerificationResult struct {
	Success        bool      `json:"success"`
	Status         string    `json:"status"`
	CapturedAmount float64   `json:"captured_amount"`
	Currency       string    `json:"currency"`
	ErrorType      ErrorType `json:"error_type,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}

type RefundResult struct {
	RefundID  string  `json:"refund_id"`
	Status    string  `json:"status"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	CreatedAt int64   `json:"created_at"`
}

type WebhookEvent struct {
	EventID           string  `json:"event_id"`
	EventType         string  `json:"event_type"`
	ProviderReference string  `json:"provider_reference"`
	Amount            float64 `json:"amount"`
	Currency          string  `json:"currency"`
	Succeeded         bool    `json:"succeeded"`
	FailureCode       string  `json:"failure_code,omitempty"`
	CreatedAt         int64   `json:"created_at"`
}
