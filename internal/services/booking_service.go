package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"renthub/internal/config"
	"renthub/internal/models"
	"renthub/internal/repositories/interfaces"
	"renthub/internal/utils"
	"renthub/pkg/logger"
	"renthub/pkg/notify"
	"renthub/pkg/payment"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// bookingTransitions is the full transition table. Anything not listed is
// rejected; terminal statuses have no outgoing edges except completed, which
// can still be disputed.
var bookingTransitions = map[models.BookingStatus]map[models.BookingStatus]bool{
	models.BookingStatusPendingPayment: {
		models.BookingStatusConfirmed: true,
		models.BookingStatusCancelled: true,
	},
	models.BookingStatusConfirmed: {
		models.BookingStatusActive:    true,
		models.BookingStatusCancelled: true,
		models.BookingStatusNoShow:    true,
	},
	models.BookingStatusActive: {
		models.BookingStatusCompleted: true,
		models.BookingStatusCancelled: true,
		models.BookingStatusDisputed:  true,
	},
	models.BookingStatusCompleted: {
		models.BookingStatusDisputed: true,
	},
}

type CreateBookingRequest struct {
	QuoteRequest
	Guest         *models.GuestContact `json:"guest"`
	PaymentMethod models.PaymentMethod `json:"payment_method" validate:"required"`
}

// BookingResult is the create-booking answer. When payment initialization is
// declined the booking still exists in pending_payment and Result carries it
// alongside the decline error, so the client can retry with another method.
type BookingResult struct {
	Booking             *models.Booking            `json:"booking"`
	Quote               *Quote                     `json:"quote"`
	Transaction         *models.PaymentTransaction `json:"transaction,omitempty"`
	PaymentInstructions *payment.InitializeResult  `json:"payment_instructions,omitempty"`
}

type CreateChargeRequest struct {
	BookingID    primitive.ObjectID  `json:"booking_id" validate:"required"`
	Type         models.ChargeType   `json:"type" validate:"required"`
	Amount       float64             `json:"amount" validate:"required,gt=0"`
	Description  string              `json:"description"`
	EvidenceURLs []string            `json:"evidence_urls" validate:"required,min=1"`
	CreatedBy    *primitive.ObjectID `json:"created_by"`
}

type BookingService interface {
	CreateBooking(ctx context.Context, req *CreateBookingRequest) (*BookingResult, error)
	GetBooking(ctx context.Context, id primitive.ObjectID) (*models.Booking, error)
	GetBookingByReference(ctx context.Context, referenceCode string) (*models.Booking, error)
	ListByRenter(ctx context.Context, userID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Booking, int64, error)
	ListByStatus(ctx context.Context, status models.BookingStatus, params *utils.PaginationParams) ([]*models.Booking, int64, error)

	// RetryPayment starts a new payment attempt for a pending booking,
	// superseding any earlier attempt with a different method.
	RetryPayment(ctx context.Context, id primitive.ObjectID, method models.PaymentMethod) (*BookingResult, error)

	// HandlePaymentEvent applies a verified provider webhook. Replayed events
	// are no-ops; events for rows that have moved on are discarded.
	HandlePaymentEvent(ctx context.Context, event *payment.WebhookEvent) error

	// ApplyVerification applies a polled verification result to an in-flight
	// transaction, the fallback path when webhooks go missing.
	ApplyVerification(ctx context.Context, transaction *models.PaymentTransaction, result *payment.VerificationResult) error

	ActivateBooking(ctx context.Context, id primitive.ObjectID, actorID *primitive.ObjectID) (*models.Booking, error)
	CompleteBooking(ctx context.Context, id primitive.ObjectID, actorID *primitive.ObjectID) (*models.Booking, error)
	CancelBooking(ctx context.Context, id primitive.ObjectID, reason string, actorID *primitive.ObjectID) (*models.Booking, error)
	MarkNoShow(ctx context.Context, id primitive.ObjectID, actorID *primitive.ObjectID) (*models.Booking, error)
	DisputeBooking(ctx context.Context, id primitive.ObjectID, reason string, actorID *primitive.ObjectID) (*models.Booking, error)

	CreateCharge(ctx context.Context, req *CreateChargeRequest) (*models.BookingCharge, error)
	ApproveCharge(ctx context.Context, chargeID primitive.ObjectID, reviewerID *primitive.ObjectID) (*models.BookingCharge, error)
	RejectCharge(ctx context.Context, chargeID primitive.ObjectID, reviewerID *primitive.ObjectID, reason string) (*models.BookingCharge, error)
	SettleCharge(ctx context.Context, chargeID primitive.ObjectID, actorID *primitive.ObjectID) (*models.BookingCharge, error)
}

type bookingService struct {
	bookingRepo     interfaces.BookingRepository
	transactionRepo interfaces.PaymentTransactionRepository
	promoRepo       interfaces.PromoCodeRepository
	refundRepo      interfaces.DepositRefundRepository
	chargeRepo      interfaces.BookingChargeRepository
	auditRepo       interfaces.AuditLogRepository
	catalogRepo     interfaces.CatalogRepository
	pricing         PricingService
	payments        PaymentService
	sender          notify.Sender
	clock           Clock
	schedCfg        *config.SchedulerConfig
	log             *logger.Logger
}

func NewBookingService(
	bookingRepo interfaces.BookingRepository,
	transactionRepo interfaces.PaymentTransactionRepository,
	promoRepo interfaces.PromoCodeRepository,
	refundRepo interfaces.DepositRefundRepository,
	chargeRepo interfaces.BookingChargeRepository,
	auditRepo interfaces.AuditLogRepository,
	catalogRepo interfaces.CatalogRepository,
	pricing PricingService,
	payments PaymentService,
	sender notify.Sender,
	clock Clock,
	schedCfg *config.SchedulerConfig,
	log *logger.Logger,
) BookingService {
	return &bookingService{
		bookingRepo:     bookingRepo,
		transactionRepo: transactionRepo,
		promoRepo:       promoRepo,
		refundRepo:      refundRepo,
		chargeRepo:      chargeRepo,
		auditRepo:       auditRepo,
		catalogRepo:     catalogRepo,
		pricing:         pricing,
		payments:        payments,
		sender:          sender,
		clock:           clock,
		schedCfg:        schedCfg,
		log:             log,
	}
}

func (s *bookingService) CreateBooking(ctx context.Context, req *CreateBookingRequest) (*BookingResult, error) {
	if req.Guest != nil {
		req.GuestEmail = req.Guest.Email
		if req.UserType == "" {
			req.UserType = models.UserTypeGuest
		}
	} else if req.UserType == "" {
		req.UserType = models.UserTypeRenter
	}

	now := s.clock.Now()

	quote, err := s.pricing.Quote(ctx, &req.QuoteRequest, now)
	if err != nil {
		return nil, err
	}
	if req.PromoCode != "" && !quote.Promo.Valid {
		return nil, NewValidationError("promo_code", string(quote.Promo.Reason))
	}

	// The quote already validated the vehicle; this read resolves the owner
	// for payout denormalization.
	vehicle, err := s.catalogRepo.GetVehicle(ctx, req.VehicleID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, ErrVehicleNotFound
		}
		return nil, err
	}

	booking := &models.Booking{
		VehicleID:     req.VehicleID,
		OwnerID:       vehicle.OwnerID,
		UserID:        req.UserID,
		Guest:         req.Guest,
		PickupAt:      req.PickupAt,
		ReturnAt:      req.ReturnAt,
		PickupCity:    req.PickupCity,
		Price:         quote.Price,
		Status:        models.BookingStatusPendingPayment,
		PaymentStatus: models.BookingPaymentStatusUnpaid,
		PlanSnapshot:  quote.PlanSnapshot,
	}
	if booking.PickupCity == "" {
		booking.PickupCity = vehicle.City
	}
	if !booking.IsRenterValid() {
		return nil, NewValidationError("renter", "exactly one of user id or guest contact is required")
	}

	var usage *models.PromoCodeUsage
	if quote.Promo != nil && quote.Promo.Valid {
		usage = &models.PromoCodeUsage{
			UserID:     req.UserID,
			GuestEmail: req.GuestEmail,
			Discount:   quote.Promo.Discount,
		}
		if err := s.promoRepo.Redeem(ctx, quote.Promo.Code.ID, usage); err != nil {
			switch {
			case errors.Is(err, interfaces.ErrPromoCapExceeded):
				return nil, NewConflictError(string(models.PromoFailureTotalCapExceeded))
			case errors.Is(err, interfaces.ErrPromoUserCapExceeded):
				return nil, NewConflictError(string(models.PromoFailureUserCapExceeded))
			}
			return nil, err
		}
		booking.PromoCodeID = &quote.Promo.Code.ID
	}

	if err := s.insertBooking(ctx, booking); err != nil {
		if usage != nil {
			if rerr := s.promoRepo.ReleaseUsage(ctx, usage.ID); rerr != nil {
				s.log.WithError(rerr).WithField("usage_id", usage.ID.Hex()).
					Error("Failed to release promo usage after booking conflict")
			}
		}
		return nil, err
	}

	if usage != nil {
		if err := s.promoRepo.BindUsageToBooking(ctx, usage.ID, booking.ID); err != nil {
			s.log.WithError(err).WithBookingID(booking.ID).
				Error("Failed to bind promo usage to booking")
		}
	}

	s.audit(ctx, nil, models.AuditActionCreate, "booking", booking.ID.Hex(), nil, map[string]interface{}{
		"reference_code": booking.ReferenceCode,
		"vehicle_id":     booking.VehicleID.Hex(),
		"total":          booking.Price.Total,
	}, nil)
	s.log.LogBookingEvent(booking.ID, "booking_created", map[string]interface{}{
		"reference_code": booking.ReferenceCode,
		"total":          booking.Price.Total,
	})

	result := &BookingResult{Booking: booking, Quote: quote}
	transaction, instructions, err := s.payments.InitializePayment(ctx, booking, req.PaymentMethod)
	if err != nil {
		// The booking exists either way; a decline or an ambiguous provider
		// outcome is reported alongside it so the client can retry.
		return result, err
	}
	result.Transaction = transaction
	result.PaymentInstructions = instructions
	return result, nil
}

// insertBooking assigns a reference code and inserts atomically against the
// availability check, regenerating the code on the rare unique-index
// collision.
func (s *bookingService) insertBooking(ctx context.Context, booking *models.Booking) error {
	for attempt := 0; attempt < 3; attempt++ {
		booking.ReferenceCode = utils.GenerateReferenceCode()
		err := s.bookingRepo.CreateIfAvailable(ctx, booking)
		if err == nil {
			return nil
		}
		if errors.Is(err, interfaces.ErrBookingConflict) {
			return ErrVehicleUnavailable
		}
		if errors.Is(err, interfaces.ErrDuplicateReference) {
			continue
		}
		return err
	}
	return fmt.Errorf("failed to allocate a unique reference code")
}

func (s *bookingService) GetBooking(ctx context.Context, id primitive.ObjectID) (*models.Booking, error) {
	booking, err := s.bookingRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return booking, nil
}

func (s *bookingService) GetBookingByReference(ctx context.Context, referenceCode string) (*models.Booking, error) {
	booking, err := s.bookingRepo.GetByReference(ctx, referenceCode)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return booking, nil
}

func (s *bookingService) ListByRenter(ctx context.Context, userID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Booking, int64, error) {
	return s.bookingRepo.GetByRenter(ctx, userID, params)
}

func (s *bookingService) ListByStatus(ctx context.Context, status models.BookingStatus, params *utils.PaginationParams) ([]*models.Booking, int64, error) {
	return s.bookingRepo.GetByStatus(ctx, status, params)
}

func (s *bookingService) RetryPayment(ctx context.Context, id primitive.ObjectID, method models.PaymentMethod) (*BookingResult, error) {
	booking, err := s.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusPendingPayment {
		return nil, NewConflictError("booking is no longer awaiting payment")
	}

	result := &BookingResult{Booking: booking}
	transaction, instructions, err := s.payments.InitializePayment(ctx, booking, method)
	if err != nil {
		return result, err
	}
	result.Transaction = transaction
	result.PaymentInstructions = instructions
	return result, nil
}

func (s *bookingService) HandlePaymentEvent(ctx context.Context, event *payment.WebhookEvent) error {
	transaction, err := s.transactionRepo.GetByExternalID(ctx, event.ProviderReference)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return ErrTransactionNotFound
		}
		return err
	}

	if !event.Succeeded {
		return s.markPaymentFailed(ctx, transaction, event.FailureCode)
	}
	return s.applyPaymentSuccess(ctx, transaction, event.Amount)
}

func (s *bookingService) ApplyVerification(ctx context.Context, transaction *models.PaymentTransaction, result *payment.VerificationResult) error {
	if result.Success {
		return s.applyPaymentSuccess(ctx, transaction, result.CapturedAmount)
	}
	if result.ErrorType != "" && !result.ErrorType.IsTransient() {
		return s.markPaymentFailed(ctx, transaction, result.ErrorMessage)
	}
	// Still in flight at the provider; the next sweep polls again.
	return nil
}

func (s *bookingService) markPaymentFailed(ctx context.Context, transaction *models.PaymentTransaction, failureCode string) error {
	if transaction.Status.IsTerminal() {
		return nil
	}
	if err := s.transactionRepo.UpdateStatus(ctx, transaction.ID, models.TransactionStatusFailed, map[string]interface{}{
		"error_message": failureCode,
	}); err != nil {
		return err
	}
	s.log.LogPaymentEvent(transaction.ID, "payment_failed", transaction.Amount, transaction.Currency)
	if transaction.BookingID != nil {
		s.audit(ctx, nil, models.AuditActionStatusChange, "payment_transaction", transaction.ID.Hex(),
			map[string]interface{}{"status": transaction.Status},
			map[string]interface{}{"status": models.TransactionStatusFailed, "error": failureCode}, nil)
	}
	return nil
}

// applyPaymentSuccess is the capture commit point. The transaction row is
// completed first, then the booking is flipped under a version guard; a crash
// between the two heals on the next delivery of the same event.
func (s *bookingService) applyPaymentSuccess(ctx context.Context, transaction *models.PaymentTransaction, capturedAmount float64) error {
	if capturedAmount <= 0 {
		capturedAmount = transaction.Amount
	}

	switch transaction.Status {
	case models.TransactionStatusCompleted:
		// Replay; fall through to make sure the booking flip landed too.
	case models.TransactionStatusFailed, models.TransactionStatusCancelled, models.TransactionStatusSuperseded:
		// A success event for a closed attempt means money was captured on
		// a charge nobody is waiting for. Complete the row so the money is
		// refundable, then send it back.
		if err := s.transactionRepo.UpdateStatus(ctx, transaction.ID, models.TransactionStatusCompleted, map[string]interface{}{
			"captured_amount": capturedAmount,
		}); err != nil {
			return err
		}
		transaction.Status = models.TransactionStatusCompleted
		transaction.CapturedAmount = capturedAmount
		return s.refundOrphanedCapture(ctx, transaction)
	default:
		if err := s.transactionRepo.UpdateStatus(ctx, transaction.ID, models.TransactionStatusCompleted, map[string]interface{}{
			"captured_amount": capturedAmount,
		}); err != nil {
			return err
		}
		transaction.Status = models.TransactionStatusCompleted
		transaction.CapturedAmount = capturedAmount
		s.log.LogPaymentEvent(transaction.ID, "payment_captured", capturedAmount, transaction.Currency)
	}

	if transaction.BookingID == nil {
		return nil
	}
	booking, err := s.bookingRepo.GetByID(ctx, *transaction.BookingID)
	if err != nil {
		return err
	}

	switch booking.Status {
	case models.BookingStatusPendingPayment:
		now := s.clock.Now()
		applied, err := s.bookingRepo.ApplyTransition(ctx, booking.ID, booking.Version, map[string]interface{}{
			"status":         models.BookingStatusConfirmed,
			"payment_status": models.BookingPaymentStatusPaid,
			"confirmed_at":   now,
		})
		if err != nil {
			return err
		}
		if !applied {
			fresh, err := s.bookingRepo.GetByID(ctx, booking.ID)
			if err != nil {
				return err
			}
			if fresh.Status == models.BookingStatusConfirmed {
				return nil
			}
			s.log.WithBookingID(booking.ID).
				WithField("status", fresh.Status).
				Warn("Stale payment event discarded")
			return ErrStaleEvent
		}
		s.audit(ctx, nil, models.AuditActionStatusChange, "booking", booking.ID.Hex(),
			map[string]interface{}{"status": models.BookingStatusPendingPayment},
			map[string]interface{}{"status": models.BookingStatusConfirmed}, nil)
		s.log.LogBookingEvent(booking.ID, "booking_confirmed", map[string]interface{}{
			"reference_code": booking.ReferenceCode,
		})
		s.notifyRenter(ctx, booking, fmt.Sprintf(
			"Your booking %s is confirmed. Pickup on %s.",
			booking.ReferenceCode, booking.PickupAt.Format("Jan 2, 2006"),
		))
		return nil

	case models.BookingStatusConfirmed:
		// Already applied.
		return nil

	case models.BookingStatusCancelled:
		// Cancelled while the capture was in flight: send the money back.
		return s.refundOrphanedCapture(ctx, transaction)

	default:
		s.audit(ctx, nil, models.AuditActionManualReviewFlag, "booking", booking.ID.Hex(), nil,
			map[string]interface{}{
				"transaction_id": transaction.ID.Hex(),
				"status":         booking.Status,
				"message":        "payment captured for a booking in an unexpected status",
			}, nil)
		s.log.WithBookingID(booking.ID).
			WithField("status", booking.Status).
			Error("Payment captured for a booking in an unexpected status, flagged for review")
		return ErrStaleEvent
	}
}

// refundOrphanedCapture returns a capture that no live booking is waiting
// for. A refund failure here is flagged for manual review rather than
// retried, since no refund row exists to drive backoff.
func (s *bookingService) refundOrphanedCapture(ctx context.Context, transaction *models.PaymentTransaction) error {
	_, err := s.payments.Refund(ctx, transaction, transaction.CapturedAmount, models.TransactionTypeRefund)
	if err != nil {
		resourceID := transaction.ID.Hex()
		s.audit(ctx, nil, models.AuditActionManualReviewFlag, "payment_transaction", resourceID, nil,
			map[string]interface{}{"message": "orphaned capture refund failed", "error": err.Error()}, nil)
		s.log.WithError(err).
			WithField("transaction_id", resourceID).
			Error("Failed to refund orphaned capture, flagged for review")
		return nil
	}
	s.audit(ctx, nil, models.AuditActionRefundAttempt, "payment_transaction", transaction.ID.Hex(), nil,
		map[string]interface{}{"amount": transaction.CapturedAmount, "outcome": "completed"}, nil)
	return nil
}

func (s *bookingService) ActivateBooking(ctx context.Context, id primitive.ObjectID, actorID *primitive.ObjectID) (*models.Booking, error) {
	now := s.clock.Now()
	return s.transition(ctx, id, models.BookingStatusActive, actorID, map[string]interface{}{
		"activated_at": now,
	})
}

func (s *bookingService) CompleteBooking(ctx context.Context, id primitive.ObjectID, actorID *primitive.ObjectID) (*models.Booking, error) {
	now := s.clock.Now()
	booking, err := s.transition(ctx, id, models.BookingStatusCompleted, actorID, map[string]interface{}{
		"completed_at": now,
	})
	if err != nil {
		return nil, err
	}

	if booking.Price.Deposit > 0 && booking.PaymentStatus == models.BookingPaymentStatusPaid {
		if err := s.scheduleDepositRefund(ctx, booking, now); err != nil {
			s.log.WithError(err).WithBookingID(booking.ID).
				Error("Failed to schedule deposit refund")
		}
	}

	s.notifyRenter(ctx, booking, fmt.Sprintf(
		"Thanks for riding with us. Booking %s is complete; your deposit will be returned after review.",
		booking.ReferenceCode,
	))
	return booking, nil
}

// scheduleDepositRefund queues the deposit return with a due date in the
// future, leaving a window for post-rental charges to be filed against it.
func (s *bookingService) scheduleDepositRefund(ctx context.Context, booking *models.Booking, now time.Time) error {
	paymentTxn, err := s.completedPayment(ctx, booking.ID)
	if err != nil {
		return err
	}

	refund := &models.DepositRefund{
		BookingID: booking.ID,
		Amount:    booking.Price.Deposit,
		Currency:  booking.Price.Currency,
		Status:    models.DepositRefundStatusPending,
		DueDate:   now.Add(s.schedCfg.RefundDueAfter),
	}
	if paymentTxn != nil {
		refund.TransactionID = &paymentTxn.ID
	}
	if err := s.refundRepo.Create(ctx, refund); err != nil {
		return err
	}
	s.log.LogBookingEvent(booking.ID, "deposit_refund_scheduled", map[string]interface{}{
		"amount":   refund.Amount,
		"due_date": refund.DueDate,
	})
	return nil
}

func (s *bookingService) CancelBooking(ctx context.Context, id primitive.ObjectID, reason string, actorID *primitive.ObjectID) (*models.Booking, error) {
	now := s.clock.Now()
	booking, err := s.transition(ctx, id, models.BookingStatusCancelled, actorID, map[string]interface{}{
		"cancel_reason": reason,
		"cancelled_at":  now,
	})
	if err != nil {
		return nil, err
	}

	if err := s.settleCancelledPayment(ctx, booking, now); err != nil {
		return nil, err
	}

	s.notifyRenter(ctx, booking, fmt.Sprintf("Booking %s has been cancelled.", booking.ReferenceCode))
	return booking, nil
}

// settleCancelledPayment unwinds the money side of a cancellation: open
// attempts are closed, captured amounts are refunded, and an unredeemed
// promo slot is handed back. A failed refund is queued for the sweep instead
// of blocking the cancellation.
func (s *bookingService) settleCancelledPayment(ctx context.Context, booking *models.Booking, now time.Time) error {
	active, err := s.transactionRepo.GetActivePayment(ctx, booking.ID)
	if err != nil {
		return err
	}
	if active != nil {
		if err := s.transactionRepo.UpdateStatus(ctx, active.ID, models.TransactionStatusCancelled, nil); err != nil {
			return err
		}
	}

	captured, err := s.completedPayment(ctx, booking.ID)
	if err != nil {
		return err
	}
	if captured == nil {
		// Nothing was charged; the promo slot goes back into the pool.
		if booking.PromoCodeID != nil {
			if err := s.promoRepo.ReleaseUsageForBooking(ctx, booking.ID); err != nil {
				s.log.WithError(err).WithBookingID(booking.ID).
					Error("Failed to release promo usage on cancellation")
			}
		}
		return nil
	}

	_, refundErr := s.payments.Refund(ctx, captured, captured.CapturedAmount, models.TransactionTypeRefund)
	if refundErr != nil {
		// Recorded as a retryable fault; the reconciliation sweep owns it
		// from here.
		queued := &models.DepositRefund{
			BookingID:     booking.ID,
			TransactionID: &captured.ID,
			Amount:        captured.CapturedAmount,
			Currency:      captured.Currency,
			Status:        models.DepositRefundStatusPending,
			DueDate:       now,
			LastError:     refundErr.Error(),
		}
		if err := s.refundRepo.Create(ctx, queued); err != nil {
			return fmt.Errorf("failed to queue cancellation refund: %w", err)
		}
		s.audit(ctx, nil, models.AuditActionRefundAttempt, "booking", booking.ID.Hex(), nil,
			map[string]interface{}{"outcome": "queued", "error": refundErr.Error()}, nil)
		s.log.WithError(refundErr).WithBookingID(booking.ID).
			Warn("Cancellation refund failed, queued for retry")
		return nil
	}

	if _, err := s.updatePaymentStatus(ctx, booking, models.BookingPaymentStatusRefunded); err != nil {
		return err
	}
	s.audit(ctx, nil, models.AuditActionRefundAttempt, "booking", booking.ID.Hex(), nil,
		map[string]interface{}{"outcome": "completed", "amount": captured.CapturedAmount}, nil)
	return nil
}

func (s *bookingService) MarkNoShow(ctx context.Context, id primitive.ObjectID, actorID *primitive.ObjectID) (*models.Booking, error) {
	// Funds are retained on a no-show; only the status moves.
	return s.transition(ctx, id, models.BookingStatusNoShow, actorID, nil)
}

func (s *bookingService) DisputeBooking(ctx context.Context, id primitive.ObjectID, reason string, actorID *primitive.ObjectID) (*models.Booking, error) {
	booking, err := s.transition(ctx, id, models.BookingStatusDisputed, actorID, map[string]interface{}{
		"cancel_reason": reason,
	})
	if err != nil {
		return nil, err
	}

	// A dispute freezes the deposit until it is resolved.
	refund, err := s.refundRepo.GetByBookingID(ctx, booking.ID)
	if err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		return nil, err
	}
	if refund != nil && refund.Status == models.DepositRefundStatusPending {
		if err := s.refundRepo.Cancel(ctx, refund.ID); err != nil && !errors.Is(err, interfaces.ErrNotFound) {
			return nil, err
		}
		s.log.WithBookingID(booking.ID).Info("Deposit refund frozen by dispute")
	}
	return booking, nil
}

// transition applies one guarded state machine edge under the version check.
func (s *bookingService) transition(ctx context.Context, id primitive.ObjectID, to models.BookingStatus, actorID *primitive.ObjectID, extra map[string]interface{}) (*models.Booking, error) {
	booking, err := s.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if !bookingTransitions[booking.Status][to] {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, booking.Status, to)
	}

	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}

	applied, err := s.bookingRepo.ApplyTransition(ctx, booking.ID, booking.Version, updates)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, NewConflictError("booking was modified concurrently")
	}

	from := booking.Status
	booking, err = s.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, actorID, models.AuditActionStatusChange, "booking", booking.ID.Hex(),
		map[string]interface{}{"status": from},
		map[string]interface{}{"status": to}, nil)
	s.log.LogBookingEvent(booking.ID, "booking_"+string(to), map[string]interface{}{
		"from": from,
	})
	return booking, nil
}

// updatePaymentStatus moves only payment_status, re-reading for the version.
func (s *bookingService) updatePaymentStatus(ctx context.Context, booking *models.Booking, status models.BookingPaymentStatus) (*models.Booking, error) {
	fresh, err := s.GetBooking(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	applied, err := s.bookingRepo.ApplyTransition(ctx, fresh.ID, fresh.Version, map[string]interface{}{
		"payment_status": status,
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, NewConflictError("booking was modified concurrently")
	}
	return s.GetBooking(ctx, booking.ID)
}

func (s *bookingService) CreateCharge(ctx context.Context, req *CreateChargeRequest) (*models.BookingCharge, error) {
	if req.Amount <= 0 {
		return nil, NewValidationError("amount", "charge amount must be positive")
	}
	if len(req.EvidenceURLs) == 0 {
		return nil, NewValidationError("evidence_urls", "at least one evidence attachment is required")
	}

	booking, err := s.GetBooking(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusCompleted {
		return nil, NewValidationError("booking_id", "charges can only be filed against completed bookings")
	}
	if booking.CompletedAt != nil {
		cutoff := booking.CompletedAt.Add(s.schedCfg.ChargeReviewWindow)
		if s.clock.Now().After(cutoff) {
			return nil, NewValidationError("booking_id", "charge window for this booking has closed")
		}
	}

	charge := &models.BookingCharge{
		BookingID:    booking.ID,
		Type:         req.Type,
		Status:       models.ChargeStatusPending,
		Amount:       utils.RoundMoney(req.Amount),
		Currency:     booking.Price.Currency,
		Description:  req.Description,
		EvidenceURLs: req.EvidenceURLs,
	}
	if err := s.chargeRepo.Create(ctx, charge); err != nil {
		return nil, err
	}

	s.audit(ctx, req.CreatedBy, models.AuditActionCreate, "booking_charge", charge.ID.Hex(), nil,
		map[string]interface{}{"type": charge.Type, "amount": charge.Amount}, nil)
	return charge, nil
}

func (s *bookingService) ApproveCharge(ctx context.Context, chargeID primitive.ObjectID, reviewerID *primitive.ObjectID) (*models.BookingCharge, error) {
	return s.reviewCharge(ctx, chargeID, reviewerID, models.ChargeStatusApproved, "")
}

func (s *bookingService) RejectCharge(ctx context.Context, chargeID primitive.ObjectID, reviewerID *primitive.ObjectID, reason string) (*models.BookingCharge, error) {
	return s.reviewCharge(ctx, chargeID, reviewerID, models.ChargeStatusRejected, reason)
}

func (s *bookingService) reviewCharge(ctx context.Context, chargeID primitive.ObjectID, reviewerID *primitive.ObjectID, to models.ChargeStatus, reason string) (*models.BookingCharge, error) {
	now := s.clock.Now()
	updates := map[string]interface{}{
		"reviewed_at": now,
	}
	if reviewerID != nil {
		updates["reviewed_by"] = *reviewerID
	}
	if reason != "" {
		updates["reject_reason"] = reason
	}

	applied, err := s.chargeRepo.AdvanceStatus(ctx, chargeID, models.ChargeStatusPending, to, updates)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, NewConflictError("charge is no longer pending review")
	}

	charge, err := s.chargeRepo.GetByID(ctx, chargeID)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, reviewerID, models.AuditActionChargeReview, "booking_charge", chargeID.Hex(),
		map[string]interface{}{"status": models.ChargeStatusPending},
		map[string]interface{}{"status": to, "reason": reason}, nil)
	return charge, nil
}

// SettleCharge collects an approved charge out of the booking's still-held
// deposit. The deduction and the deposit-refund reduction are guarded so the
// deposit can never go negative.
func (s *bookingService) SettleCharge(ctx context.Context, chargeID primitive.ObjectID, actorID *primitive.ObjectID) (*models.BookingCharge, error) {
	charge, err := s.chargeRepo.GetByID(ctx, chargeID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, ErrChargeNotFound
		}
		return nil, err
	}
	if charge.Status != models.ChargeStatusApproved {
		return nil, NewConflictError("only approved charges can be settled")
	}

	refund, err := s.refundRepo.GetByBookingID(ctx, charge.BookingID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, NewValidationError("charge", "no held deposit to settle against")
		}
		return nil, err
	}

	reduced, err := s.refundRepo.ReduceAmount(ctx, refund.ID, charge.Amount)
	if err != nil {
		return nil, err
	}
	if !reduced {
		return nil, NewValidationError("charge", "held deposit does not cover the charge")
	}

	original, err := s.completedPayment(ctx, charge.BookingID)
	if err != nil {
		return nil, err
	}
	method := models.PaymentMethodCard
	if original != nil {
		method = original.Method
	}

	// Internal ledger movement: the money is already held, it just changes
	// destination.
	settlement := &models.PaymentTransaction{
		BookingID:         &charge.BookingID,
		Type:              models.TransactionTypePayment,
		Status:            models.TransactionStatusCompleted,
		Amount:            charge.Amount,
		CapturedAmount:    charge.Amount,
		Currency:          charge.Currency,
		Method:            method,
		ProviderReference: utils.GenerateIdempotencyReference(),
	}
	if err := s.transactionRepo.Create(ctx, settlement); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	applied, err := s.chargeRepo.AdvanceStatus(ctx, chargeID, models.ChargeStatusApproved, models.ChargeStatusSettled, map[string]interface{}{
		"transaction_id": settlement.ID,
		"settled_at":     now,
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, NewConflictError("charge was settled concurrently")
	}

	s.audit(ctx, actorID, models.AuditActionChargeReview, "booking_charge", chargeID.Hex(),
		map[string]interface{}{"status": models.ChargeStatusApproved},
		map[string]interface{}{"status": models.ChargeStatusSettled, "transaction_id": settlement.ID.Hex()}, nil)
	s.log.LogPaymentEvent(settlement.ID, "charge_settled", charge.Amount, charge.Currency)

	return s.chargeRepo.GetByID(ctx, chargeID)
}

// completedPayment returns the booking's captured payment transaction, nil
// when nothing was captured.
func (s *bookingService) completedPayment(ctx context.Context, bookingID primitive.ObjectID) (*models.PaymentTransaction, error) {
	transactions, err := s.transactionRepo.GetByBookingID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	for _, txn := range transactions {
		if txn.Type == models.TransactionTypePayment && txn.Status == models.TransactionStatusCompleted {
			return txn, nil
		}
	}
	return nil, nil
}

func (s *bookingService) audit(ctx context.Context, actorID *primitive.ObjectID, action models.AuditAction, resource, resourceID string, old, new map[string]interface{}, meta map[string]interface{}) {
	entry := &models.AuditLog{
		ActorID:    actorID,
		Actor:      "system",
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		OldValues:  old,
		NewValues:  new,
		Metadata:   meta,
	}
	if actorID != nil {
		entry.Actor = "user"
	}
	if err := s.auditRepo.Create(ctx, entry); err != nil {
		s.log.WithError(err).
			WithFields(map[string]interface{}{"resource": resource, "resource_id": resourceID}).
			Error("Failed to write audit log entry")
	}
}

func (s *bookingService) notifyRenter(ctx context.Context, booking *models.Booking, body string) {
	if booking.Guest == nil || booking.Guest.Phone == "" {
		return
	}
	message := &notify.Message{
		To:      booking.Guest.Phone,
		Channel: notify.ChannelSMS,
		Body:    body,
	}
	if err := s.sender.Send(ctx, message); err != nil {
		s.log.WithError(err).WithBookingID(booking.ID).
			Warn("Failed to send booking notification")
	}
}
