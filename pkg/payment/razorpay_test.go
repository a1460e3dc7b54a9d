package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
)

type fakeRazorpayAPI struct {
	orders       map[string]map[string]interface{}
	payments     map[string][]map[string]interface{}
	createCalls  int
	captureCalls int
	refundCalls  int
	failWith     error
}

func newFakeRazorpayAPI() *fakeRazorpayAPI {
	return &fakeRazorpayAPI{
		orders:   make(map[string]map[string]interface{}),
		payments: make(map[string][]map[string]interface{}),
	}
}

func (f *fakeRazorpayAPI) CreateOrder(data map[string]interface{}) (map[string]interface{}, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.createCalls++
	receipt := data["receipt"].(string)
	order := map[string]interface{}{
		"id":      "order_" + receipt,
		"receipt": receipt,
		"amount":  data["amount"],
	}
	f.orders[receipt] = order
	return order, nil
}

func (f *fakeRazorpayAPI) FindOrderByReceipt(receipt string) (map[string]interface{}, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	if order, ok := f.orders[receipt]; ok {
		return order, nil
	}
	return nil, nil
}

func (f *fakeRazorpayAPI) OrderPayments(orderID string) ([]map[string]interface{}, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.payments[orderID], nil
}

func (f *fakeRazorpayAPI) CapturePayment(paymentID string, amount int) (map[string]interface{}, error) {
	f.captureCalls++
	return map[string]interface{}{
		"id":       paymentID,
		"status":   "captured",
		"amount":   float64(amount),
		"currency": "USD",
	}, nil
}

func (f *fakeRazorpayAPI) RefundPayment(paymentID string, amount int, data map[string]interface{}) (map[string]interface{}, error) {
	f.refundCalls++
	return map[string]interface{}{
		"id":       "rfnd_1",
		"status":   "processed",
		"amount":   float64(amount),
		"currency": "USD",
	}, nil
}

func TestRazorpayInitialize_IdempotentByReceipt(t *testing.T) {
	t.Parallel()

	api := newFakeRazorpayAPI()
	provider := NewRazorpayProviderWithAPI(api, "whsec")

	req := &InitializeRequest{Amount: 740, Currency: "USD", IdempotencyReference: "idem-1"}
	first, err := provider.Initialize(context.Background(), req)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	second, err := provider.Initialize(context.Background(), req)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if first.ProviderReference != second.ProviderReference {
		t.Errorf("expected the same order on replay, got %q and %q", first.ProviderReference, second.ProviderReference)
	}
	if api.createCalls != 1 {
		t.Errorf("expected exactly one order created, got %d", api.createCalls)
	}
}

func TestRazorpayInitialize_TransportErrorIsTyped(t *testing.T) {
	t.Parallel()

	api := newFakeRazorpayAPI()
	api.failWith = errors.New("connection refused")
	provider := NewRazorpayProviderWithAPI(api, "whsec")

	_, err := provider.Initialize(context.Background(), &InitializeRequest{
		Amount: 740, Currency: "USD", IdempotencyReference: "idem-2",
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected a typed provider error, got: %v", err)
	}
	if !perr.Type.IsTransient() {
		t.Errorf("expected a transient classification, got %s", perr.Type)
	}
}

func TestRazorpayVerify(t *testing.T) {
	t.Parallel()

	api := newFakeRazorpayAPI()
	provider := NewRazorpayProviderWithAPI(api, "whsec")

	t.Run("captured payment", func(t *testing.T) {
		api.payments["order_a"] = []map[string]interface{}{
			{"id": "pay_1", "status": "captured", "amount": float64(74000), "currency": "USD"},
		}
		result, err := provider.Verify(context.Background(), "order_a")
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if !result.Success {
			t.Error("expected success")
		}
		if result.CapturedAmount != 740 {
			t.Errorf("expected 740 from minor units, got %v", result.CapturedAmount)
		}
	})

	t.Run("failed payment carries the reason", func(t *testing.T) {
		api.payments["order_b"] = []map[string]interface{}{
			{"id": "pay_2", "status": "failed", "error_reason": "insufficient_funds", "error_description": "balance too low"},
		}
		result, err := provider.Verify(context.Background(), "order_b")
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if result.Success {
			t.Error("expected failure")
		}
		if result.ErrorType != ErrorTypeInsufficientFunds {
			t.Errorf("expected insufficient_funds mapped, got %s", result.ErrorType)
		}
	})

	t.Run("no payments yet", func(t *testing.T) {
		result, err := provider.Verify(context.Background(), "order_empty")
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if result.Success {
			t.Error("expected a still-pending result")
		}
	})
}

func TestRazorpayRefund(t *testing.T) {
	t.Parallel()

	api := newFakeRazorpayAPI()
	provider := NewRazorpayProviderWithAPI(api, "whsec")
	api.payments["order_c"] = []map[string]interface{}{
		{"id": "pay_3", "status": "captured", "amount": float64(74000), "currency": "USD"},
	}

	result, err := provider.Refund(context.Background(), "order_c", 150)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if result.RefundID == "" {
		t.Error("expected a refund id")
	}
	if result.Amount != 150 {
		t.Errorf("expected 150, got %v", result.Amount)
	}

	_, err = provider.Refund(context.Background(), "order_empty", 150)
	if err == nil {
		t.Fatal("expected an error with nothing captured")
	}
}

func TestRazorpayVerifyWebhook(t *testing.T) {
	t.Parallel()

	const secret = "whsec_test"
	provider := NewRazorpayProviderWithAPI(newFakeRazorpayAPI(), secret)

	payload := []byte(`{
		"event": "payment.captured",
		"created_at": 1750000000,
		"payload": {"payment": {"entity": {
			"id": "pay_9", "order_id": "order_z", "amount": 74000, "currency": "USD"
		}}}
	}`)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	signature := hex.EncodeToString(mac.Sum(nil))

	event, err := provider.VerifyWebhook(context.Background(), payload, signature)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !event.Succeeded {
		t.Error("expected payment.captured to mark success")
	}
	if event.ProviderReference != "order_z" {
		t.Errorf("expected the order id, got %q", event.ProviderReference)
	}
	if event.Amount != 740 {
		t.Errorf("expected 740 from minor units, got %v", event.Amount)
	}

	if _, err := provider.VerifyWebhook(context.Background(), payload, "bad-signature"); err == nil {
		t.Error("expected a bad signature to be rejected")
	}
}
