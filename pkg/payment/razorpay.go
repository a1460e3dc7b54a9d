package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

const razorpayProviderName = "razorpay"

// razorpayAPI is the subset of the razorpay-go client the provider uses,
// extracted so tests can substitute a fake.
type razorpayAPI interface {
	CreateOrder(data map[string]interface{}) (map[string]interface{}, error)
	FindOrderByReceipt(receipt string) (map[string]interface{}, error)
	OrderPayments(orderID string) ([]map[string]interface{}, error)
	CapturePayment(paymentID string, amount int) (map[string]interface{}, error)
	RefundPayment(paymentID string, amount int, data map[string]interface{}) (map[string]interface{}, error)
}

// RazorpayProvider is the mobile-money backend. Payments are authorized on
// the client against an order; the engine verifies and captures server-side.
type RazorpayProvider struct {
	api           razorpayAPI
	webhookSecret string
}

func NewRazorpayProvider(keyID, keySecret, webhookSecret string) *RazorpayProvider {
	return &RazorpayProvider{
		api:           newRazorpayClient(keyID, keySecret),
		webhookSecret: webhookSecret,
	}
}

// NewRazorpayProviderWithAPI wires a custom API implementation, used in tests.
func NewRazorpayProviderWithAPI(api razorpayAPI, webhookSecret string) *RazorpayProvider {
	return &RazorpayProvider{api: api, webhookSecret: webhookSecret}
}

func (r *RazorpayProvider) Name() string {
	return razorpayProviderName
}

func (r *RazorpayProvider) Initialize(ctx context.Context, request *InitializeRequest) (*InitializeResult, error) {
	// Orders carry the idempotency reference as their receipt. A replay
	// looks the order up by receipt first, so the same reference can never
	// produce two live orders.
	existing, err := r.api.FindOrderByReceipt(request.IdempotencyReference)
	if err != nil {
		return nil, r.wrapError("failed to look up order by receipt", err)
	}
	if existing != nil {
		return &InitializeResult{
			ProviderReference: stringField(existing, "id"),
			AuthorizationURL:  stringField(existing, "short_url"),
		}, nil
	}

	notes := make(map[string]interface{}, len(request.Metadata))
	for k, v := range request.Metadata {
		notes[k] = v
	}

	order, err := r.api.CreateOrder(map[string]interface{}{
		"amount":   int(toMinorUnits(request.Amount)),
		"currency": request.Currency,
		"receipt":  request.IdempotencyReference,
		"notes":    notes,
	})
	if err != nil {
		return nil, r.wrapError("failed to create order", err)
	}

	return &InitializeResult{
		ProviderReference: stringField(order, "id"),
		AuthorizationURL:  stringField(order, "short_url"),
	}, nil
}

func (r *RazorpayProvider) Verify(ctx context.Context, providerReference string) (*VerificationResult, error) {
	payments, err := r.api.OrderPayments(providerReference)
	if err != nil {
		return nil, r.wrapError("failed to fetch order payments", err)
	}

	result := &VerificationResult{Status: "created"}
	for _, p := range payments {
		status := stringField(p, "status")
		switch status {
		case "captured":
			return &VerificationResult{
				Success:        true,
				Status:         status,
				CapturedAmount: fromMinorUnits(intField(p, "amount")),
				Currency:       stringField(p, "currency"),
			}, nil
		case "authorized":
			result.Status = status
		case "failed":
			result.Status = status
			result.ErrorType = mapRazorpayFailure(stringField(p, "error_reason"))
			result.ErrorMessage = stringField(p, "error_description")
		}
	}

	return result, nil
}

func (r *RazorpayProvider) Capture(ctx context.Context, providerReference string, amount float64) (*VerificationResult, error) {
	payments, err := r.api.OrderPayments(providerReference)
	if err != nil {
		return nil, r.wrapError("failed to fetch order payments", err)
	}

	for _, p := range payments {
		if stringField(p, "status") != "authorized" {
			continue
		}
		captured, err := r.api.CapturePayment(stringField(p, "id"), int(toMinorUnits(amount)))
		if err != nil {
			return nil, r.wrapError("failed to capture payment", err)
		}
		return &VerificationResult{
			Success:        true,
			Status:         stringField(captured, "status"),
			CapturedAmount: fromMinorUnits(intField(captured, "amount")),
			Currency:       stringField(captured, "currency"),
		}, nil
	}

	return nil, newError(razorpayProviderName, ErrorTypeInvalidDetails, "no authorized payment to capture", nil)
}

func (r *RazorpayProvider) Refund(ctx context.Context, providerReference string, amount float64) (*RefundResult, error) {
	payments, err := r.api.OrderPayments(providerReference)
	if err != nil {
		return nil, r.wrapError("failed to fetch order payments", err)
	}

	for _, p := range payments {
		if stringField(p, "status") != "captured" {
			continue
		}
		refund, err := r.api.RefundPayment(stringField(p, "id"), int(toMinorUnits(amount)), nil)
		if err != nil {
			return nil, r.wrapError("failed to create refund", err)
		}
		return &RefundResult{
			RefundID:  stringField(refund, "id"),
			Status:    stringField(refund, "status"),
			Amount:    fromMinorUnits(intField(refund, "amount")),
			Currency:  stringField(refund, "currency"),
			CreatedAt: intField(refund, "created_at"),
		}, nil
	}

	return nil, newError(razorpayProviderName, ErrorTypeInvalidDetails, "no captured payment to refund", nil)
}

func (r *RazorpayProvider) VerifyWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	mac := hmac.New(sha256.New, []byte(r.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return nil, fmt.Errorf("invalid webhook signature")
	}

	var event struct {
		Event     string `json:"event"`
		CreatedAt int64  `json:"created_at"`
		Payload   struct {
			Payment struct {
				Entity map[string]interface{} `json:"entity"`
			} `json:"payment"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal webhook payload: %w", err)
	}

	entity := event.Payload.Payment.Entity
	createdAt := event.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().Unix()
	}

	return &WebhookEvent{
		EventID:           fmt.Sprintf("%s:%s", event.Event, stringField(entity, "id")),
		EventType:         event.Event,
		ProviderReference: stringField(entity, "order_id"),
		Amount:            fromMinorUnits(intField(entity, "amount")),
		Currency:          stringField(entity, "currency"),
		Succeeded:         event.Event == "payment.captured",
		FailureCode:       stringField(entity, "error_reason"),
		CreatedAt:         createdAt,
	}, nil
}

func (r *RazorpayProvider) wrapError(message string, err error) error {
	return newError(razorpayProviderName, classifyRazorpayError(err), message, err)
}

func classifyRazorpayError(err error) ErrorType {
	if t := classifyTransportError(err); t == ErrorTypeNetwork {
		return ErrorTypeNetwork
	}
	return ErrorTypeProviderError
}

func mapRazorpayFailure(reason string) ErrorType {
	switch reason {
	case "payment_declined", "payment_failed":
		return ErrorTypeDeclined
	case "insufficient_funds":
		return ErrorTypeInsufficientFunds
	case "invalid_vpa", "invalid_account", "incorrect_otp":
		return ErrorTypeInvalidDetails
	case "gateway_technical_error", "server_error":
		return ErrorTypeProviderError
	case "":
		return ErrorTypeNone
	}
	return ErrorTypeUnknown
}

func stringField(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func intField(m map[string]interface{}, key string) int64 {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}
