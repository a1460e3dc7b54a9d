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
	"renthub/pkg/cache"
	"renthub/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	sweepLockKey       = "scheduler:sweep:lock"
	withdrawalLockKey  = "scheduler:withdrawal:lock:"
	withdrawalLockTTL  = 30 * time.Second
	maxRefundsPerSweep = 100
)

// ReconciliationService is the background spine of the engine: it resolves
// in-flight payments that never got a webhook, drives deposit refunds with
// retry and backoff, expires stale charges, and runs the payout cycle. All
// sweep work claims rows atomically, so running several instances is safe.
type ReconciliationService interface {
	// Start blocks, sweeping on the configured interval until ctx ends.
	Start(ctx context.Context)

	// RunSweep runs one full pass under the distributed sweep lock.
	RunSweep(ctx context.Context)

	// AvailableBalance is the owner's payable balance: net revenue of
	// completed unpaid-out bookings minus unabsorbed instant withdrawals.
	AvailableBalance(ctx context.Context, ownerID primitive.ObjectID) (float64, error)

	// RequestInstantWithdrawal pays out part of the owner's balance ahead of
	// the scheduled cycle, for a fee.
	RequestInstantWithdrawal(ctx context.Context, ownerID primitive.ObjectID, amount float64) (*models.InstantWithdrawal, error)
}

type reconciliationService struct {
	bookingRepo     interfaces.BookingRepository
	transactionRepo interfaces.PaymentTransactionRepository
	refundRepo      interfaces.DepositRefundRepository
	payoutRepo      interfaces.PayoutRepository
	withdrawalRepo  interfaces.WithdrawalRepository
	chargeRepo      interfaces.BookingChargeRepository
	auditRepo       interfaces.AuditLogRepository
	payments        PaymentService
	bookings        BookingService
	locks           *cache.RedisCache
	clock           Clock
	cfg             *config.SchedulerConfig
	payCfg          *config.PaymentConfig
	log             *logger.Logger
}

func NewReconciliationService(
	bookingRepo interfaces.BookingRepository,
	transactionRepo interfaces.PaymentTransactionRepository,
	refundRepo interfaces.DepositRefundRepository,
	payoutRepo interfaces.PayoutRepository,
	withdrawalRepo interfaces.WithdrawalRepository,
	chargeRepo interfaces.BookingChargeRepository,
	auditRepo interfaces.AuditLogRepository,
	payments PaymentService,
	bookings BookingService,
	locks *cache.RedisCache,
	clock Clock,
	cfg *config.SchedulerConfig,
	payCfg *config.PaymentConfig,
	log *logger.Logger,
) ReconciliationService {
	return &reconciliationService{
		bookingRepo:     bookingRepo,
		transactionRepo: transactionRepo,
		refundRepo:      refundRepo,
		payoutRepo:      payoutRepo,
		withdrawalRepo:  withdrawalRepo,
		chargeRepo:      chargeRepo,
		auditRepo:       auditRepo,
		payments:        payments,
		bookings:        bookings,
		locks:           locks,
		clock:           clock,
		cfg:             cfg,
		payCfg:          payCfg,
		log:             log,
	}
}

func (s *reconciliationService) Start(ctx context.Context) {
	s.log.WithField("interval", s.cfg.SweepInterval.String()).Info("Reconciliation scheduler started")
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Reconciliation scheduler stopped")
			return
		case <-ticker.C:
			s.RunSweep(ctx)
		}
	}
}

func (s *reconciliationService) RunSweep(ctx context.Context) {
	if s.locks != nil {
		acquired, err := s.locks.SetNX(ctx, sweepLockKey, s.clock.Now().Unix(), s.cfg.SweepLockTTL)
		if err != nil {
			s.log.WithError(err).Error("Failed to acquire sweep lock")
			return
		}
		if !acquired {
			s.log.Debug("Sweep lock held elsewhere, skipping")
			return
		}
		defer func() {
			if err := s.locks.Delete(ctx, sweepLockKey); err != nil {
				s.log.WithError(err).Warn("Failed to release sweep lock")
			}
		}()
	}

	s.sweepInFlightPayments(ctx)
	s.sweepDepositRefunds(ctx)
	s.sweepCharges(ctx)
	s.sweepPayouts(ctx)
}

// sweepInFlightPayments polls the provider for transactions whose webhook
// never arrived. Young transactions are left alone; the webhook usually wins.
func (s *reconciliationService) sweepInFlightPayments(ctx context.Context) {
	transactions, err := s.transactionRepo.GetInFlight(ctx)
	if err != nil {
		s.log.WithError(err).Error("Failed to list in-flight transactions")
		return
	}

	now := s.clock.Now()
	for _, transaction := range transactions {
		if now.Sub(transaction.CreatedAt) < s.payCfg.VerifyTimeout {
			continue
		}

		result, err := s.payments.Reconcile(ctx, transaction)
		if err != nil {
			s.log.WithError(err).
				WithField("transaction_id", transaction.ID.Hex()).
				Warn("In-flight verification failed, retrying next sweep")
			continue
		}
		if err := s.bookings.ApplyVerification(ctx, transaction, result); err != nil {
			if errors.Is(err, ErrStaleEvent) {
				continue
			}
			s.log.WithError(err).
				WithField("transaction_id", transaction.ID.Hex()).
				Error("Failed to apply verification result")
		}
	}
}

func (s *reconciliationService) sweepDepositRefunds(ctx context.Context) {
	now := s.clock.Now()
	for i := 0; i < maxRefundsPerSweep; i++ {
		refund, err := s.refundRepo.ClaimNextDue(ctx, now)
		if err != nil {
			s.log.WithError(err).Error("Failed to claim due refund")
			return
		}
		if refund == nil {
			return
		}
		s.processRefund(ctx, refund, now)
	}
}

// processRefund runs one refund attempt: success completes the row, failure
// backs off exponentially until the attempt budget is spent.
func (s *reconciliationService) processRefund(ctx context.Context, refund *models.DepositRefund, now time.Time) {
	log := s.log.WithBookingID(refund.BookingID).WithField("refund_id", refund.ID.Hex())

	source, err := s.refundSource(ctx, refund)
	if err != nil {
		log.WithError(err).Error("Failed to resolve refund source transaction")
		s.failRefundAttempt(ctx, refund, now, err)
		return
	}
	if source == nil {
		log.Error("No captured transaction to refund against, marking failed")
		if err := s.refundRepo.MarkFailed(ctx, refund.ID, "no captured transaction"); err != nil {
			log.WithError(err).Error("Failed to mark refund failed")
		}
		s.auditRefundAttempt(ctx, refund, refund.Attempts+1, "failed", "no captured transaction")
		s.auditRefundFailed(ctx, refund, refund.Attempts+1, "no captured transaction")
		return
	}

	refundTxn, err := s.payments.Refund(ctx, source, refund.Amount, models.TransactionTypeDeposit)
	if err != nil {
		s.auditRefundAttempt(ctx, refund, refund.Attempts+1, "failed", err.Error())
		s.failRefundAttempt(ctx, refund, now, err)
		return
	}

	if err := s.refundRepo.MarkCompleted(ctx, refund.ID, refundTxn.ExternalID, now); err != nil {
		log.WithError(err).Error("Refund executed but row not marked completed")
		return
	}
	s.auditRefundAttempt(ctx, refund, refund.Attempts+1, "completed", "")
	s.updateRefundedBooking(ctx, refund, source)
	log.WithField("amount", refund.Amount).Info("Refund completed")
}

// failRefundAttempt schedules the next try or exhausts the attempt budget.
// Exhaustion is terminal and surfaces to operators through the error log and
// the audit trail.
func (s *reconciliationService) failRefundAttempt(ctx context.Context, refund *models.DepositRefund, now time.Time, cause error) {
	attempts := refund.Attempts + 1
	log := s.log.WithBookingID(refund.BookingID).
		WithField("refund_id", refund.ID.Hex()).
		WithField("attempts", attempts).
		WithError(cause)

	if attempts >= s.cfg.RefundMaxAttempts {
		if err := s.refundRepo.MarkFailed(ctx, refund.ID, cause.Error()); err != nil {
			log.WithError(err).Error("Failed to mark refund failed")
			return
		}
		s.auditRefundFailed(ctx, refund, attempts, cause.Error())
		log.Error("Refund attempts exhausted, manual intervention required")
		return
	}

	backoff := s.cfg.RefundBackoffBase
	for i := 0; i < refund.Attempts; i++ {
		backoff *= 2
		if backoff >= s.cfg.RefundBackoffCap {
			backoff = s.cfg.RefundBackoffCap
			break
		}
	}
	if err := s.refundRepo.MarkForRetry(ctx, refund.ID, attempts, now.Add(backoff), cause.Error()); err != nil {
		log.WithError(err).Error("Failed to schedule refund retry")
		return
	}
	log.WithField("next_attempt_in", backoff.String()).Warn("Refund attempt failed, retry scheduled")
}

func (s *reconciliationService) refundSource(ctx context.Context, refund *models.DepositRefund) (*models.PaymentTransaction, error) {
	if refund.TransactionID != nil {
		transaction, err := s.transactionRepo.GetByID(ctx, *refund.TransactionID)
		if err != nil {
			if errors.Is(err, interfaces.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return transaction, nil
	}

	transactions, err := s.transactionRepo.GetByBookingID(ctx, refund.BookingID)
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

func (s *reconciliationService) updateRefundedBooking(ctx context.Context, refund *models.DepositRefund, source *models.PaymentTransaction) {
	booking, err := s.bookingRepo.GetByID(ctx, refund.BookingID)
	if err != nil {
		s.log.WithError(err).WithBookingID(refund.BookingID).
			Warn("Refund completed but booking not reloaded")
		return
	}

	status := models.BookingPaymentStatusPartiallyRefunded
	if refund.Amount >= source.CapturedAmount {
		status = models.BookingPaymentStatusRefunded
	}
	applied, err := s.bookingRepo.ApplyTransition(ctx, booking.ID, booking.Version, map[string]interface{}{
		"payment_status": status,
	})
	if err != nil || !applied {
		s.log.WithBookingID(booking.ID).
			Warn("Refund completed but booking payment status not updated")
	}
}

func (s *reconciliationService) auditRefundAttempt(ctx context.Context, refund *models.DepositRefund, attempt int, outcome, detail string) {
	entry := &models.AuditLog{
		Actor:      "scheduler",
		Action:     models.AuditActionRefundAttempt,
		Resource:   "deposit_refund",
		ResourceID: refund.ID.Hex(),
		NewValues: map[string]interface{}{
			"attempt": attempt,
			"outcome": outcome,
			"amount":  refund.Amount,
		},
	}
	if detail != "" {
		entry.NewValues["error"] = detail
	}
	if err := s.auditRepo.Create(ctx, entry); err != nil {
		s.log.WithError(err).WithField("refund_id", refund.ID.Hex()).
			Error("Failed to write refund attempt audit entry")
	}
}

// auditRefundFailed writes the terminal entry when a refund row is marked
// failed, on top of the per-attempt trail.
func (s *reconciliationService) auditRefundFailed(ctx context.Context, refund *models.DepositRefund, attempts int, detail string) {
	entry := &models.AuditLog{
		Actor:      "scheduler",
		Action:     models.AuditActionRefundFailed,
		Resource:   "deposit_refund",
		ResourceID: refund.ID.Hex(),
		NewValues: map[string]interface{}{
			"attempts": attempts,
			"amount":   refund.Amount,
			"error":    detail,
		},
	}
	if err := s.auditRepo.Create(ctx, entry); err != nil {
		s.log.WithError(err).WithField("refund_id", refund.ID.Hex()).
			Error("Failed to write refund failure audit entry")
	}
}

func (s *reconciliationService) sweepCharges(ctx context.Context) {
	cutoff := s.clock.Now().Add(-s.cfg.ChargeReviewWindow)
	expired, err := s.chargeRepo.ExpireStalePending(ctx, cutoff)
	if err != nil {
		s.log.WithError(err).Error("Failed to expire stale charges")
		return
	}
	if expired > 0 {
		s.log.WithField("count", expired).Info("Expired unreviewed charges")
	}
}

func (s *reconciliationService) sweepPayouts(ctx context.Context) {
	now := s.clock.Now()
	owners, err := s.payoutRepo.GetOwnersDue(ctx, now)
	if err != nil {
		s.log.WithError(err).Error("Failed to list owners due for payout")
		return
	}

	for _, profile := range owners {
		if err := s.runOwnerPayout(ctx, profile.OwnerID, now); err != nil {
			s.log.WithError(err).
				WithField("owner_id", profile.OwnerID.Hex()).
				Error("Owner payout failed")
		}
	}
}

func (s *reconciliationService) runOwnerPayout(ctx context.Context, ownerID primitive.ObjectID, now time.Time) error {
	balance, err := s.ownerBalance(ctx, ownerID)
	if err != nil {
		return err
	}

	if balance.net < s.cfg.MinPayoutAmount {
		// Below the minimum the balance rolls into the next cycle.
		return s.payoutRepo.SetLastPayoutAt(ctx, ownerID, now)
	}

	bookingIDs := make([]primitive.ObjectID, 0, len(balance.bookings))
	var periodStart time.Time
	for _, booking := range balance.bookings {
		bookingIDs = append(bookingIDs, booking.ID)
		if booking.CompletedAt != nil && (periodStart.IsZero() || booking.CompletedAt.Before(periodStart)) {
			periodStart = *booking.CompletedAt
		}
	}

	payout := &models.Payout{
		OwnerID:     ownerID,
		BookingIDs:  bookingIDs,
		Amount:      balance.net,
		Currency:    s.payCfg.Currency,
		Status:      models.PayoutStatusPending,
		PeriodStart: periodStart,
		PeriodEnd:   now,
	}
	if err := s.payoutRepo.CreateForBookings(ctx, payout, bookingIDs); err != nil {
		if errors.Is(err, interfaces.ErrAlreadyPaidOut) {
			// Another instance got here first.
			s.log.WithField("owner_id", ownerID.Hex()).
				Warn("Payout skipped, bookings already covered")
			return nil
		}
		return err
	}

	if len(balance.withdrawalIDs) > 0 {
		if err := s.withdrawalRepo.MarkAbsorbed(ctx, balance.withdrawalIDs, payout.ID); err != nil {
			s.log.WithError(err).WithField("payout_id", payout.ID.Hex()).
				Error("Failed to mark withdrawals absorbed")
		}
	}

	transaction := &models.PaymentTransaction{
		PayoutID:          &payout.ID,
		Type:              models.TransactionTypePayout,
		Status:            models.TransactionStatusCompleted,
		Amount:            balance.net,
		CapturedAmount:    balance.net,
		Currency:          payout.Currency,
		Method:            models.PaymentMethodCard,
		ProviderReference: utils.GenerateIdempotencyReference(),
	}
	if err := s.transactionRepo.Create(ctx, transaction); err != nil {
		return fmt.Errorf("payout created but transaction not recorded: %w", err)
	}

	if err := s.payoutRepo.UpdateStatus(ctx, payout.ID, models.PayoutStatusCompleted, map[string]interface{}{
		"transaction_id": transaction.ID,
		"processed_at":   now,
	}); err != nil {
		return err
	}
	if err := s.payoutRepo.SetLastPayoutAt(ctx, ownerID, now); err != nil {
		return err
	}

	s.auditPayout(ctx, payout, len(bookingIDs))
	s.log.WithFields(map[string]interface{}{
		"owner_id":  ownerID.Hex(),
		"payout_id": payout.ID.Hex(),
		"amount":    balance.net,
		"bookings":  len(bookingIDs),
	}).Info("Scheduled payout completed")
	return nil
}

func (s *reconciliationService) auditPayout(ctx context.Context, payout *models.Payout, bookingCount int) {
	entry := &models.AuditLog{
		Actor:      "scheduler",
		Action:     models.AuditActionPayoutCreated,
		Resource:   "payout",
		ResourceID: payout.ID.Hex(),
		NewValues: map[string]interface{}{
			"owner_id": payout.OwnerID.Hex(),
			"amount":   payout.Amount,
			"bookings": bookingCount,
		},
	}
	if err := s.auditRepo.Create(ctx, entry); err != nil {
		s.log.WithError(err).WithField("payout_id", payout.ID.Hex()).
			Error("Failed to write payout audit entry")
	}
}

type ownerBalance struct {
	net           float64
	bookings      []*models.Booking
	withdrawalIDs []primitive.ObjectID
}

// ownerBalance computes the payable balance. Approved-but-unsettled charges
// are held back: the owner receives them through the settlement path once
// review resolves, not through the payout.
func (s *reconciliationService) ownerBalance(ctx context.Context, ownerID primitive.ObjectID) (*ownerBalance, error) {
	bookings, err := s.bookingRepo.GetCompletedUnpaidOut(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	var gross float64
	bookingIDs := make([]primitive.ObjectID, 0, len(bookings))
	for _, booking := range bookings {
		gross += booking.Price.Total - booking.Price.PlatformFee
		bookingIDs = append(bookingIDs, booking.ID)
	}

	var holdback float64
	if len(bookingIDs) > 0 {
		holdback, err = s.chargeRepo.GetUnsettledAmountForBookings(ctx, bookingIDs)
		if err != nil {
			return nil, err
		}
	}

	withdrawals, err := s.withdrawalRepo.GetUnabsorbed(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	var withdrawn float64
	withdrawalIDs := make([]primitive.ObjectID, 0, len(withdrawals))
	for _, withdrawal := range withdrawals {
		withdrawn += withdrawal.Amount
		withdrawalIDs = append(withdrawalIDs, withdrawal.ID)
	}

	net := utils.RoundMoney(gross - holdback - withdrawn)
	if net < 0 {
		net = 0
	}
	return &ownerBalance{
		net:           net,
		bookings:      bookings,
		withdrawalIDs: withdrawalIDs,
	}, nil
}

func (s *reconciliationService) AvailableBalance(ctx context.Context, ownerID primitive.ObjectID) (float64, error) {
	balance, err := s.ownerBalance(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	return balance.net, nil
}

func (s *reconciliationService) RequestInstantWithdrawal(ctx context.Context, ownerID primitive.ObjectID, amount float64) (*models.InstantWithdrawal, error) {
	if amount <= 0 {
		return nil, NewValidationError("amount", "withdrawal amount must be positive")
	}

	// One withdrawal per owner at a time: the balance read and the insert
	// are not one statement, so the lock closes the race.
	if s.locks != nil {
		lockKey := withdrawalLockKey + ownerID.Hex()
		acquired, err := s.locks.SetNX(ctx, lockKey, s.clock.Now().Unix(), withdrawalLockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire withdrawal lock: %w", err)
		}
		if !acquired {
			return nil, NewConflictError("another withdrawal is already in progress")
		}
		defer func() {
			if err := s.locks.Delete(ctx, lockKey); err != nil {
				s.log.WithError(err).Warn("Failed to release withdrawal lock")
			}
		}()
	}

	balance, err := s.ownerBalance(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if amount > balance.net {
		return nil, ErrInsufficientBalance
	}

	fee := utils.RoundMoney(amount * s.cfg.WithdrawalFeeRate)
	withdrawal := &models.InstantWithdrawal{
		OwnerID:   ownerID,
		Amount:    utils.RoundMoney(amount),
		Fee:       fee,
		NetAmount: utils.RoundMoney(amount - fee),
		Currency:  s.payCfg.Currency,
		Status:    models.WithdrawalStatusPending,
	}
	if err := s.withdrawalRepo.Create(ctx, withdrawal); err != nil {
		return nil, err
	}

	transaction := &models.PaymentTransaction{
		Type:              models.TransactionTypePayout,
		Status:            models.TransactionStatusCompleted,
		Amount:            withdrawal.NetAmount,
		CapturedAmount:    withdrawal.NetAmount,
		Currency:          withdrawal.Currency,
		Method:            models.PaymentMethodCard,
		ProviderReference: utils.GenerateIdempotencyReference(),
	}
	if err := s.transactionRepo.Create(ctx, transaction); err != nil {
		return nil, fmt.Errorf("withdrawal created but transaction not recorded: %w", err)
	}

	if err := s.withdrawalRepo.UpdateStatus(ctx, withdrawal.ID, models.WithdrawalStatusCompleted, map[string]interface{}{
		"transaction_id": transaction.ID,
	}); err != nil {
		return nil, err
	}
	withdrawal.Status = models.WithdrawalStatusCompleted
	withdrawal.TransactionID = &transaction.ID

	entry := &models.AuditLog{
		ActorID:    &ownerID,
		Actor:      "owner",
		Action:     models.AuditActionWithdrawal,
		Resource:   "instant_withdrawal",
		ResourceID: withdrawal.ID.Hex(),
		NewValues: map[string]interface{}{
			"amount": withdrawal.Amount,
			"fee":    withdrawal.Fee,
			"net":    withdrawal.NetAmount,
		},
	}
	if err := s.auditRepo.Create(ctx, entry); err != nil {
		s.log.WithError(err).WithField("withdrawal_id", withdrawal.ID.Hex()).
			Error("Failed to write withdrawal audit entry")
	}

	s.log.WithFields(map[string]interface{}{
		"owner_id":      ownerID.Hex(),
		"withdrawal_id": withdrawal.ID.Hex(),
		"amount":        withdrawal.Amount,
		"fee":           withdrawal.Fee,
	}).Info("Instant withdrawal completed")
	return withdrawal, nil
}
