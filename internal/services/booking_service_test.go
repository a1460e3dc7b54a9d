package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"renthub/internal/models"
	"renthub/pkg/payment"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type bookingFixture struct {
	bookings     *mockBookingRepo
	transactions *mockTransactionRepo
	promos       *mockPromoRepo
	refunds      *mockRefundRepo
	charges      *mockChargeRepo
	audits       *mockAuditRepo
	catalog      *mockCatalogRepo
	card         *mockProvider
	mobile       *mockProvider
	sender       *mockSender
	clock        *fakeClock
	svc          BookingService
	vehicle      *models.Vehicle
}

func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()

	f := &bookingFixture{
		bookings:     newMockBookingRepo(),
		transactions: newMockTransactionRepo(),
		promos:       newMockPromoRepo(),
		refunds:      newMockRefundRepo(),
		charges:      newMockChargeRepo(),
		audits:       newMockAuditRepo(),
		catalog:      newMockCatalogRepo(),
		card:         newMockProvider("stripe"),
		mobile:       newMockProvider("razorpay"),
		sender:       &mockSender{},
		clock:        newFakeClock(time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC)),
	}
	f.vehicle = f.catalog.addVehicle(&models.Vehicle{
		OwnerID:       primitive.NewObjectID(),
		CategoryID:    primitive.NewObjectID(),
		City:          "Accra",
		DailyRate:     200,
		DepositAmount: 150,
		Active:        true,
	})

	log := testLogger(t)
	payCfg := testPaymentConfig()
	pricing := NewPricingService(f.catalog, f.promos, f.bookings, payCfg)
	payments := NewPaymentService(f.transactions, map[models.PaymentMethod]payment.Provider{
		models.PaymentMethodCard:        f.card,
		models.PaymentMethodMobileMoney: f.mobile,
	}, payCfg, log)
	f.svc = NewBookingService(
		f.bookings, f.transactions, f.promos, f.refunds, f.charges, f.audits,
		f.catalog, pricing, payments, f.sender, f.clock, testSchedulerConfig(), log,
	)
	return f
}

func (f *bookingFixture) createRequest() *CreateBookingRequest {
	pickup := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	return &CreateBookingRequest{
		QuoteRequest: QuoteRequest{
			VehicleID: f.vehicle.ID,
			PickupAt:  pickup,
			ReturnAt:  pickup.Add(3 * 24 * time.Hour),
		},
		Guest: &models.GuestContact{
			Name:  "Ama Mensah",
			Email: "ama@example.com",
			Phone: "+233201234567",
		},
		PaymentMethod: models.PaymentMethodCard,
	}
}

// createBooking creates a pending booking and returns the result.
func (f *bookingFixture) createBooking(t *testing.T) *BookingResult {
	t.Helper()
	result, err := f.svc.CreateBooking(context.Background(), f.createRequest())
	if err != nil {
		t.Fatalf("failed to create booking: %v", err)
	}
	return result
}

// confirmBooking delivers the payment success event for the booking's
// in-flight transaction.
func (f *bookingFixture) confirmBooking(t *testing.T, result *BookingResult) *models.Booking {
	t.Helper()
	err := f.svc.HandlePaymentEvent(context.Background(), &payment.WebhookEvent{
		ProviderReference: result.Transaction.ExternalID,
		Succeeded:         true,
		Amount:            result.Transaction.Amount,
	})
	if err != nil {
		t.Fatalf("failed to apply payment event: %v", err)
	}
	booking, err := f.svc.GetBooking(context.Background(), result.Booking.ID)
	if err != nil {
		t.Fatalf("failed to reload booking: %v", err)
	}
	return booking
}

func TestCreateBooking_GuestCheckout(t *testing.T) {
	t.Parallel()

	f := newBookingFixture(t)
	result := f.createBooking(t)

	booking := result.Booking
	if booking.Status != models.BookingStatusPendingPayment {
		t.Errorf("expected pending_payment, got %s", booking.Status)
	}
	if booking.PaymentStatus != models.BookingPaymentStatusUnpaid {
		t.Errorf("expected unpaid, got %s", booking.PaymentStatus)
	}
	if booking.ReferenceCode == "" {
		t.Error("expected a reference code")
	}
	if booking.OwnerID != f.vehicle.OwnerID {
		t.Error("expected the vehicle owner denormalized onto the booking")
	}
	if result.Transaction == nil || result.Transaction.Amount != 740 {
		t.Fatalf("expected a 740 charge (total 590 plus deposit 150), got %+v", result.Transaction)
	}
	if result.PaymentInstructions == nil || result.PaymentInstructions.ClientSecret == "" {
		t.Error("expected payment instructions for the client")
	}
}

func TestCreateBooking_RequiresExactlyOneRenter(t *testing.T) {
	t.Parallel()

	f := newBookingFixture(t)

	req := f.createRequest()
	userID := primitive.NewObjectID()
	req.UserID = &userID
	if _, err := f.svc.CreateBooking(context.Background(), req); !IsValidation(err) {
		t.Errorf("expected validation error with both identities, got: %v", err)
	}

	req = f.createRequest()
	req.Guest = nil
	if _, err := f.svc.CreateBooking(context.Background(), req); !IsValidation(err) {
		t.Errorf("expected validation error with no identity, got: %v", err)
	}
}

func TestCreateBooking_OverlapRejected(t *testing.T) {
	t.Parallel()

	f := newBookingFixture(t)
	req := f.createRequest()
	f.bookings.insert(&models.Booking{
		ReferenceCode: "RH-EXISTING",
		VehicleID:     f.vehicle.ID,
		Status:        models.BookingStatusConfirmed,
		PickupAt:      req.PickupAt.Add(24 * time.Hour),
		ReturnAt:      req.ReturnAt.Add(24 * time.Hour),
	})

	_, err := f.svc.CreateBooking(context.Background(), req)
	if !errors.Is(err, ErrVehicleUnavailable) {
		t.Errorf("expected ErrVehicleUnavailable, got: %v", err)
	}
}

func TestCreateBooking_ConflictReleasesPromoSlot(t *testing.T) {
	t.Parallel()

	f := newBookingFixture(t)
	code := f.promos.addCode(&models.PromoCode{
		Code:          "WELCOME",
		Status:        models.PromoCodeStatusActive,
		DiscountType:  models.DiscountTypeFixed,
		DiscountValue: 20,
		MaxTotalUses:  10,
	})

	req := f.createRequest()
	req.PromoCode = "WELCOME"
	f.bookings.insert(&models.Booking{
		ReferenceCode: "RH-EXISTING",
		VehicleID:     f.vehicle.ID,
		Status:        models.BookingStatusConfirmed,
		PickupAt:      req.PickupAt,
		ReturnAt:      req.ReturnAt,
	})

	_, err := f.svc.CreateBooking(context.Background(), req)
	if !errors.Is(err, ErrVehicleUnavailable) {
		t.Fatalf("expected ErrVehicleUnavailable, got: %v", err)
	}
	if code.UsedCount != 0 {
		t.Errorf("expected the redemption released, used count %d", code.UsedCount)
	}
	if f.promos.usageCount() != 0 {
		t.Errorf("expected no usage rows, got %d", f.promos.usageCount())
	}
}

func TestCreateBooking_RejectedPromoFailsRequest(t *testing.T) {
	t.Parallel()

	f := newBookingFixture(t)
	f.promos.addCode(&models.PromoCode{
		Code:          "STALE",
		Status:        models.PromoCodeStatusActive,
		DiscountType:  models.DiscountTypeFixed,
		DiscountValue: 20,
		ValidUntil:    f.clock.Now().Add(-time.Hour),
	})

	req := f.createRequest()
	req.PromoCode = "STALE"
	_, err := f.svc.CreateBooking(context.Background(), req)
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got: %v", err)
	}
	var ve *ValidationError
	errors.As(err, &ve)
	if ve.Message != string(models.PromoFailureExpired) {
		t.Errorf("expected the exact rejection reason, got %q", ve.Message)
	}
}

func TestCreateBooking_DeclineStillReturnsBooking(t *testing.T) {
	t.Parallel()

	f := newBookingFixture(t)
	f.card.initializeFn = func(ctx context.Context, req *payment.InitializeRequest) (*payment.InitializeResult, error) {
		return nil, &payment.Error{Type: payment.ErrorTypeDeclined, Provider: "stripe", Message: "card declined"}
	}

	result, err := f.svc.CreateBooking(context.Background(), f.createRequest())
	var declined *PaymentDeclinedError
	if !errors.As(err, &declined) {
		t.Fatalf("expected a PaymentDeclinedError, got: %v", err)
	}
	if result == nil || result.Booking == nil {
		t.Fatal("expected the booking returned alongside the decline")
	}

	stored, err := f.svc.GetBooking(context.Background(), result.Booking.ID)
	if err != nil {
		t.Fatalf("expected the booking persisted: %v", err)
	}
	if stored.Status != models.BookingStatusPendingPayment {
		t.Errorf("expected the booking left in pending_payment, got %s", stored.Status)
	}
}

func TestCreateBooking_TransientFailureStillReturnsBooking(t *testing.T) {
	t.Parallel()

	f := newBookingFixture(t)
	f.card.initializeFn = func(ctx context.Context, req *payment.InitializeRequest) (*payment.InitializeResult, error) {
		return nil, &payment.Error{Type: payment.ErrorTypeNetwork, Provider: "stripe", Message: "connection reset"}
	}

	result, err := f.svc.CreateBooking(context.Background(), f.createRequest())
	if !IsProviderTransient(err) {
		t.Fatalf("expected a transient provider error, got: %v", err)
	}
	if result == nil || result.Booking == nil {
		t.Fatal("expected the booking returned alongside the provider failure")
	}

	stored, err := f.svc.GetBooking(context.Background(), result.Booking.ID)
	if err != nil {
		t.Fatalf("expected the booking persisted: %v", err)
	}
	if stored.Status != models.BookingStatusPendingPayment {
		t.Errorf("expected the booking left in pending_payment, got %s", stored.Status)
	}
}

func TestHandlePaymentEvent_ConfirmsBooking(t *testing.T) {
	t.Parallel()

	f := newBookingFixture(t)
	result := f.createBooking(t)
	booking := f.confirmBooking(t, result)

	if booking.Status != models.BookingStatusConfirmed {
		t.Errorf("expected confirmed, got %s", booking.Status)
	}
	if booking.PaymentStatus != models.BookingPaymentStatusPaid {
		t.Errorf("expected paid, got %s", booking.PaymentStatus)
	}
	if booking.ConfirmedAt == nil {
		t.Error("expected confirmed_at set")
	}

	txn, err := f.transactions.GetByID(context.Background(), result.Transaction.ID)
	if err != nil {
		t.Fatal(err)
	}
	if txn.Status != models.TransactionStatusCompleted {
		t.Errorf("expected the transaction completed, got %s", txn.Status)
	}
	if txn.CapturedAmount != 740 {
		t.Errorf("expected captured amount 740, got %v", txn.CapturedAmount)
	}
	if f.sender.count() != 1 {
		t.Errorf("expected one confirmation SMS, got %d", f.sender.count())
	}
}

func TestHandlePaymentEvent_ReplayIsNoOp(t *testing.T) {
	t.Parallel()

	f := newBookingFixture(t)
	result := f.createBooking(t)
	booking := f.confirmBooking(t, result)
	version := booking.Version

	err := f.svc.HandlePaymentEvent(context.Background(), &payment.WebhookEvent{
		ProviderReference: result.Transaction.ExternalID,
		Succeeded:         true,
		Amount:            result.Transaction.Amount,
	})
	if err != nil {
		t.Fatalf("expected a replay to be a no-op, got: %v", err)
	}

	fresh, err := f.svc.GetBooking(context.Background(), booking.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fresh.Version != version {
		t.Errorf("expected version unchanged at %d, got %d", version, fresh.Version)
	}
	if f.card.refundCallCount() != 0 {
		t.Error("expected no refunds from a replay")
	}
}

func TestHandlePaymentEvent_FailureMarksAttempt(t *testing.T) {
	t.Parallel()

	f := newBookingFixture(t)
	result := f.createBooking(t)

	err := f.svc.HandlePaymentEvent(context.Background(), &payment.WebhookEvent{
		ProviderReference: result.Transaction.ExternalID,
		Succeeded:         false,
		FailureCode:       "card_declined",
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	txn, err := f.transactions.GetByID(context.Background(), result.Transaction.ID)
	if err != nil {
		t.Fatal(err)
	}
	if txn.Status != models.TransactionStatusFailed {
		t.Errorf("expected failed, got %s", txn.Status)
	}
	if txn.ErrorMessage != "card_declined" {
		t.Errorf("expected the failure code recorded, got %q", txn.ErrorMessage)
	}

	booking, err := f.svc.GetBooking(context.Background(), result.Booking.ID)
	if err != nil {
		t.Fatal(err)
	}
	if booking.Status != models.BookingStatusPendingPayment {
		t.Errorf("expected the booking still pending_payment, got %s", booking.Status)
	}
}

func TestHandlePaymentEvent_UnknownReference(t *testing.T) {
	t.Parallel()

	f := newBookingFixture(t)
	err := f.svc.HandlePaymentEvent(context.Background(), &payment.WebhookEvent{
		ProviderReference: "pi_never_seen",
		Succeeded:         true,
	})
	if !errors.Is(err, ErrTransactionNotFound) {
		t.Errorf("expected ErrTransactionNotFound, got: %v", err)
	}
}

func TestHandlePaymentEvent_CaptureAfterCancellationIsRefunded(t *testing.T) {
	t.Parallel()

	f := newBookingFixture(t)
	result := f.createBooking(t)

	if _, err := f.svc.CancelBooking(context.Background(), result.Booking.ID, "changed plans", nil); err != nil {
		t.Fatalf("failed to cancel: %v", err)
	}

	// The provider captured anyway; the late success event must trigger an
	// automatic refund.
	err := f.svc.HandlePaymentEvent(context.Background(), &payment.WebhookEvent{
		ProviderReference: result.Transaction.ExternalID,
		Succeeded:         true,
		Amount:            result.Transaction.Amount,
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if f.card.refundCallCount() != 1 {
		t.Errorf("expected one automatic refund, got %d", f.card.refundCallCount())
	}
}

func TestHandlePaymentEvent_OrphanRefundFailureFlagsForReview(t *testing.T) {
	t.Parallel()

	f := newBookingFixture(t)
	result := f.createBooking(t)
	if _, err := f.svc.CancelBooking(context.Background(), result.Booking.ID, "changed plans", nil); err != nil {
		t.Fatalf("failed to cancel: %v", err)
	}

	f.card.refundFn = func(ctx context.Context, ref string, amount float64) (*payment.RefundResult, error) {
		return nil, &payment.Error{Type: payment.ErrorTypeProviderError, Provider: "stripe", Message: "unavailable"}
	}

	err := f.svc.HandlePaymentEvent(context.Background(), &payment.WebhookEvent{
		ProviderReference: result.Transaction.ExternalID,
		Succeeded:         true,
		Amount:            result.Transaction.Amount,
	})
	if err != nil {
		t.Fatalf("expected the failure swallowed for manual review, got: %v", err)
	}
	if f.audits.countByAction(models.AuditActionManualReviewFlag) != 1 {
		t.Error("expected a manual review flag in the audit trail")
	}
}

func TestCancelBooking_RefundFailureQueuedForRetry(t *testing.T) {
	t.Parallel()

	f := newBookingFixture(t)
	result := f.createBooking(t)
	f.confirmBooking(t, result)

	f.card.refundFn = func(ctx context.Context, ref string, amount float64) (*payment.RefundResult, error) {
		return nil, &payment.Error{Type: payment.ErrorTypeNetwork, Provider: "stripe", Message: "timeout"}
	}

	booking, err := f.svc.CancelBooking(context.Background(), result.Booking.ID, "weather", nil)
	if err != nil {
		t.Fatalf("expected the cancellation to proceed, got: %v", err)
	}
	if booking.Status != models.BookingStatusCancelled {
		t.Errorf("expected cancelled, got %s", booking.Status)
	}

	queued, err := f.refunds.GetByBookingID(context.Background(), booking.ID)
	if err != nil {
		t.Fatalf("expected a queued refund row: %v", err)
	}
	if queued.Status != models.DepositRefundStatusPending {
		t.Errorf("expected pending, got %s", queued.Status)
	}
	if queued.Amount != 740 {
		t.Errorf("expected the full captured amount 740 queued, got %v", queued.Amount)
	}
	if !queued.DueDate.Equal(f.clock.Now()) {
		t.Errorf("expected the refund due immediately, got %v", queued.DueDate)
	}
	if queued.LastError == "" {
		t.Error("expected the failure recorded on the row")
	}
}

func TestCancelBooking_RefundSuccessMarksRefunded(t *testing.T) {
	t.Parallel()

	f := newBookingFixture(t)
	result := f.createBooking(t)
	f.confirmBooking(t, result)

	booking, err := f.svc.CancelBooking(context.Background(), result.Booking.ID, "weather", nil)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	fresh, err := f.svc.GetBooking(context.Background(), booking.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fresh.PaymentStatus != models.BookingPaymentStatusRefunded {
		t.Errorf("expected refunded, got %s", fresh.PaymentStatus)
	}
	if f.card.refundCallCount() != 1 {
		t.Errorf("expected one refund call, got %d", f.card.refundCallCount())
	}
}

func TestCancelBooking_UncapturedReleasesPromoSlot(t *testing.T) {
	t.Parallel()

	f := newBookingFixture(t)
	code := f.promos.addCode(&models.PromoCode{
		Code:          "WELCOME",
		Status:        models.PromoCodeStatusActive,
		DiscountType:  models.DiscountTypeFixed,
		DiscountValue: 20,
		MaxTotalUses:  10,
	})

	req := f.createRequest()
	req.PromoCode = "WELCOME"
	result, err := f.svc.CreateBooking(context.Background(), req)
	if err != nil {
		t.Fatalf("failed to create booking: %v", err)
	}
	if code.UsedCount != 1 {
		t.Fatalf("expected the code redeemed, used count %d", code.UsedCount)
	}

	if _, err := f.svc.CancelBooking(context.Background(), result.Booking.ID, "changed plans", nil); err != nil {
		t.Fatalf("failed to cancel: %v", err)
	}
	if code.UsedCount != 0 {
		t.Errorf("expected the slot returned, used count %d", code.UsedCount)
	}
	if f.card.refundCallCount() != 0 {
		t.Error("expected no refund when nothing was captured")
	}
}

func TestCompleteBooking_SchedulesDepositRefund(t *testing.T) {
	t.Parallel()

	f := newBookingFixture(t)
	result := f.createBooking(t)
	f.confirmBooking(t, result)

	if _, err := f.svc.ActivateBooking(context.Background(), result.Booking.ID, nil); err != nil {
		t.Fatalf("failed to activate: %v", err)
	}
	booking, err := f.svc.CompleteBooking(context.Background(), result.Booking.ID, nil)
	if err != nil {
		t.Fatalf("failed to complete: %v", err)
	}
	if booking.Status != models.BookingStatusCompleted {
		t.Errorf("expected completed, got %s", booking.Status)
	}

	refund, err := f.refunds.GetByBookingID(context.Background(), booking.ID)
	if err != nil {
		t.Fatalf("expected a scheduled deposit refund: %v", err)
	}
	if refund.Amount != 150 {
		t.Errorf("expected the deposit amount 150, got %v", refund.Amount)
	}
	want := f.clock.Now().Add(24 * time.Hour)
	if !refund.DueDate.Equal(want) {
		t.Errorf("expected due date %v, got %v", want, refund.DueDate)
	}
	if refund.TransactionID == nil {
		t.Error("expected the refund linked to the captured transaction")
	}
}

func TestMarkNoShow_RetainsFunds(t *testing.T) {
	t.Parallel()

	f := newBookingFixture(t)
	result := f.createBooking(t)
	f.confirmBooking(t, result)

	booking, err := f.svc.MarkNoShow(context.Background(), result.Booking.ID, nil)
	if err != nil {
		t.Fatalf("failed to mark no-show: %v", err)
	}
	if booking.Status != models.BookingStatusNoShow {
		t.Errorf("expected no_show, got %s", booking.Status)
	}
	if booking.PaymentStatus != models.BookingPaymentStatusPaid {
		t.Errorf("expected funds retained, got %s", booking.PaymentStatus)
	}
	if f.card.refundCallCount() != 0 {
		t.Error("expected no refund on a no-show")
	}
	if _, err := f.refunds.GetByBookingID(context.Background(), booking.ID); err == nil {
		t.Error("expected no deposit refund scheduled")
	}
}

func TestDisputeBooking_FreezesDepositRefund(t *testing.T) {
	t.Parallel()

	f := newBookingFixture(t)
	result := f.createBooking(t)
	f.confirmBooking(t, result)
	if _, err := f.svc.ActivateBooking(context.Background(), result.Booking.ID, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.CompleteBooking(context.Background(), result.Booking.ID, nil); err != nil {
		t.Fatal(err)
	}

	booking, err := f.svc.DisputeBooking(context.Background(), result.Booking.ID, "damage claim", nil)
	if err != nil {
		t.Fatalf("failed to dispute: %v", err)
	}
	if booking.Status != models.BookingStatusDisputed {
		t.Errorf("expected disputed, got %s", booking.Status)
	}

	refund, err := f.refunds.GetByBookingID(context.Background(), booking.ID)
	if err != nil {
		t.Fatal(err)
	}
	if refund.Status != models.DepositRefundStatusCancelled {
		t.Errorf("expected the refund frozen, got %s", refund.Status)
	}
}

func TestTransition_InvalidEdgeRejected(t *testing.T) {
	t.Parallel()

	f := newBookingFixture(t)
	result := f.createBooking(t)

	// pending_payment cannot go straight to active.
	_, err := f.svc.ActivateBooking(context.Background(), result.Booking.ID, nil)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got: %v", err)
	}
}

func TestRetryPayment_OnlyWhileAwaitingPayment(t *testing.T) {
	t.Parallel()

	f := newBookingFixture(t)
	result := f.createBooking(t)
	f.confirmBooking(t, result)

	_, err := f.svc.RetryPayment(context.Background(), result.Booking.ID, models.PaymentMethodMobileMoney)
	if !IsConflict(err) {
		t.Errorf("expected a conflict for a confirmed booking, got: %v", err)
	}
}

func TestRetryPayment_SwitchesMethod(t *testing.T) {
	t.Parallel()

	f := newBookingFixture(t)
	result := f.createBooking(t)

	retry, err := f.svc.RetryPayment(context.Background(), result.Booking.ID, models.PaymentMethodMobileMoney)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if retry.Transaction.Method != models.PaymentMethodMobileMoney {
		t.Errorf("expected the retry on mobile_money, got %s", retry.Transaction.Method)
	}

	old, err := f.transactions.GetByID(context.Background(), result.Transaction.ID)
	if err != nil {
		t.Fatal(err)
	}
	if old.Status != models.TransactionStatusSuperseded {
		t.Errorf("expected the first attempt superseded, got %s", old.Status)
	}
}

// completedFixture drives a booking through to completed and returns it.
func completedFixture(t *testing.T) (*bookingFixture, *models.Booking) {
	t.Helper()
	f := newBookingFixture(t)
	result := f.createBooking(t)
	f.confirmBooking(t, result)
	if _, err := f.svc.ActivateBooking(context.Background(), result.Booking.ID, nil); err != nil {
		t.Fatal(err)
	}
	booking, err := f.svc.CompleteBooking(context.Background(), result.Booking.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	return f, booking
}

func TestCreateCharge_WithinReviewWindow(t *testing.T) {
	t.Parallel()

	f, booking := completedFixture(t)
	charge, err := f.svc.CreateCharge(context.Background(), &CreateChargeRequest{
		BookingID:    booking.ID,
		Type:         models.ChargeTypeFuel,
		Amount:       40,
		EvidenceURLs: []string{"https://cdn.example.com/fuel-gauge.jpg"},
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if charge.Status != models.ChargeStatusPending {
		t.Errorf("expected pending, got %s", charge.Status)
	}
	if charge.Currency != "USD" {
		t.Errorf("expected the booking currency, got %s", charge.Currency)
	}
}

func TestCreateCharge_WindowClosed(t *testing.T) {
	t.Parallel()

	f, booking := completedFixture(t)
	f.clock.Advance(8 * 24 * time.Hour)

	_, err := f.svc.CreateCharge(context.Background(), &CreateChargeRequest{
		BookingID:    booking.ID,
		Type:         models.ChargeTypeDamage,
		Amount:       100,
		EvidenceURLs: []string{"https://cdn.example.com/dent.jpg"},
	})
	if !IsValidation(err) {
		t.Errorf("expected validation error after the window closed, got: %v", err)
	}
}

func TestCreateCharge_RequiresEvidence(t *testing.T) {
	t.Parallel()

	f, booking := completedFixture(t)
	_, err := f.svc.CreateCharge(context.Background(), &CreateChargeRequest{
		BookingID: booking.ID,
		Type:      models.ChargeTypeDamage,
		Amount:    100,
	})
	if !IsValidation(err) {
		t.Errorf("expected validation error without evidence, got: %v", err)
	}
}

func TestApproveCharge_OnlyOnce(t *testing.T) {
	t.Parallel()

	f, booking := completedFixture(t)
	charge, err := f.svc.CreateCharge(context.Background(), &CreateChargeRequest{
		BookingID:    booking.ID,
		Type:         models.ChargeTypeFuel,
		Amount:       40,
		EvidenceURLs: []string{"https://cdn.example.com/fuel-gauge.jpg"},
	})
	if err != nil {
		t.Fatal(err)
	}

	reviewer := primitive.NewObjectID()
	if _, err := f.svc.ApproveCharge(context.Background(), charge.ID, &reviewer); err != nil {
		t.Fatalf("expected the first approval to succeed: %v", err)
	}
	if _, err := f.svc.ApproveCharge(context.Background(), charge.ID, &reviewer); !IsConflict(err) {
		t.Errorf("expected a conflict on the second approval, got: %v", err)
	}
}

func TestSettleCharge_CollectsFromHeldDeposit(t *testing.T) {
	t.Parallel()

	f, booking := completedFixture(t)
	charge, err := f.svc.CreateCharge(context.Background(), &CreateChargeRequest{
		BookingID:    booking.ID,
		Type:         models.ChargeTypeFuel,
		Amount:       40,
		EvidenceURLs: []string{"https://cdn.example.com/fuel-gauge.jpg"},
	})
	if err != nil {
		t.Fatal(err)
	}
	reviewer := primitive.NewObjectID()
	if _, err := f.svc.ApproveCharge(context.Background(), charge.ID, &reviewer); err != nil {
		t.Fatal(err)
	}

	settled, err := f.svc.SettleCharge(context.Background(), charge.ID, &reviewer)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if settled.Status != models.ChargeStatusSettled {
		t.Errorf("expected settled, got %s", settled.Status)
	}
	if settled.TransactionID == nil {
		t.Fatal("expected a settlement transaction linked")
	}
	if settled.SettledAt == nil {
		t.Error("expected settled_at set")
	}

	refund, err := f.refunds.GetByBookingID(context.Background(), booking.ID)
	if err != nil {
		t.Fatal(err)
	}
	if refund.Amount != 110 {
		t.Errorf("expected the deposit reduced to 110, got %v", refund.Amount)
	}

	settlement, err := f.transactions.GetByID(context.Background(), *settled.TransactionID)
	if err != nil {
		t.Fatal(err)
	}
	if settlement.Amount != 40 || settlement.Status != models.TransactionStatusCompleted {
		t.Errorf("expected a completed 40 settlement, got %+v", settlement)
	}
}

func TestSettleCharge_RejectedWhenDepositInsufficient(t *testing.T) {
	t.Parallel()

	f, booking := completedFixture(t)
	charge, err := f.svc.CreateCharge(context.Background(), &CreateChargeRequest{
		BookingID:    booking.ID,
		Type:         models.ChargeTypeDamage,
		Amount:       500,
		EvidenceURLs: []string{"https://cdn.example.com/dent.jpg"},
	})
	if err != nil {
		t.Fatal(err)
	}
	reviewer := primitive.NewObjectID()
	if _, err := f.svc.ApproveCharge(context.Background(), charge.ID, &reviewer); err != nil {
		t.Fatal(err)
	}

	_, err = f.svc.SettleCharge(context.Background(), charge.ID, &reviewer)
	if !IsValidation(err) {
		t.Errorf("expected a validation error, got: %v", err)
	}

	refund, err := f.refunds.GetByBookingID(context.Background(), booking.ID)
	if err != nil {
		t.Fatal(err)
	}
	if refund.Amount != 150 {
		t.Errorf("expected the deposit untouched at 150, got %v", refund.Amount)
	}
}

func TestSettleCharge_RequiresApproval(t *testing.T) {
	t.Parallel()

	f, booking := completedFixture(t)
	charge, err := f.svc.CreateCharge(context.Background(), &CreateChargeRequest{
		BookingID:    booking.ID,
		Type:         models.ChargeTypeFuel,
		Amount:       40,
		EvidenceURLs: []string{"https://cdn.example.com/fuel-gauge.jpg"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.SettleCharge(context.Background(), charge.ID, nil); !IsConflict(err) {
		t.Errorf("expected a conflict for an unapproved charge, got: %v", err)
	}
}

func TestCreateBooking_ConcurrentOverlapSingleWinner(t *testing.T) {
	t.Parallel()

	f := newBookingFixture(t)

	var wg sync.WaitGroup
	results := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.CreateBooking(context.Background(), f.createRequest())
			results[i] = err
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range results {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrVehicleUnavailable):
			lost++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if won != 1 {
		t.Errorf("expected exactly one winner, got %d", won)
	}
	if lost != 3 {
		t.Errorf("expected three conflicts, got %d", lost)
	}
}

func TestCreateBooking_PromoCapUnderConcurrency(t *testing.T) {
	t.Parallel()

	f := newBookingFixture(t)
	code := f.promos.addCode(&models.PromoCode{
		Code:          "LIMITED",
		Status:        models.PromoCodeStatusActive,
		DiscountType:  models.DiscountTypeFixed,
		DiscountValue: 20,
		MaxTotalUses:  3,
	})

	var wg sync.WaitGroup
	results := make([]error, 6)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := f.createRequest()
			// Distinct vehicles so only the promo cap is contended.
			vehicle := f.catalog.addVehicle(&models.Vehicle{
				OwnerID:       primitive.NewObjectID(),
				City:          "Accra",
				DailyRate:     200,
				DepositAmount: 150,
				Active:        true,
			})
			req.VehicleID = vehicle.ID
			req.PromoCode = "LIMITED"
			req.Guest.Email = fmt.Sprintf("renter%d@example.com", i)
			_, err := f.svc.CreateBooking(context.Background(), req)
			results[i] = err
		}(i)
	}
	wg.Wait()

	var won int
	for _, err := range results {
		if err == nil {
			won++
			continue
		}
		if !IsConflict(err) && !IsValidation(err) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if won != 3 {
		t.Errorf("expected exactly three redemptions, got %d", won)
	}
	if code.UsedCount != 3 {
		t.Errorf("expected the cap fully consumed, used count %d", code.UsedCount)
	}
}
