package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
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

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Format: "text"})
	if err != nil {
		t.Fatalf("failed to build test logger: %v", err)
	}
	log.SetOutput(io.Discard)
	return log
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testPaymentConfig() *config.PaymentConfig {
	return &config.PaymentConfig{
		Currency:        "USD",
		PlatformFeeRate: 0.15,
		DriverFeePerDay: 25,
		ProviderTimeout: 5 * time.Second,
		VerifyTimeout:   10 * time.Minute,
	}
}

func testSchedulerConfig() *config.SchedulerConfig {
	return &config.SchedulerConfig{
		SweepInterval:      time.Minute,
		RefundDueAfter:     24 * time.Hour,
		RefundMaxAttempts:  3,
		RefundBackoffBase:  30 * time.Minute,
		RefundBackoffCap:   24 * time.Hour,
		MinPayoutAmount:    50,
		WithdrawalFeeRate:  0.02,
		ChargeReviewWindow: 7 * 24 * time.Hour,
		SweepLockTTL:       4 * time.Minute,
	}
}

// ---------------------------------------------------------------------------
// Catalog

type mockCatalogRepo struct {
	mu         sync.Mutex
	vehicles   map[primitive.ObjectID]*models.Vehicle
	categories map[primitive.ObjectID]*models.VehicleCategory
	regions    map[string]*models.RegionalPricing
	insurance  map[primitive.ObjectID]*models.InsurancePlan
	protection map[primitive.ObjectID]*models.ProtectionPlan
}

func newMockCatalogRepo() *mockCatalogRepo {
	return &mockCatalogRepo{
		vehicles:   make(map[primitive.ObjectID]*models.Vehicle),
		categories: make(map[primitive.ObjectID]*models.VehicleCategory),
		regions:    make(map[string]*models.RegionalPricing),
		insurance:  make(map[primitive.ObjectID]*models.InsurancePlan),
		protection: make(map[primitive.ObjectID]*models.ProtectionPlan),
	}
}

func (m *mockCatalogRepo) addVehicle(v *models.Vehicle) *models.Vehicle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.ID.IsZero() {
		v.ID = primitive.NewObjectID()
	}
	m.vehicles[v.ID] = v
	return v
}

func (m *mockCatalogRepo) GetVehicle(ctx context.Context, id primitive.ObjectID) (*models.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.vehicles[id]; ok {
		return v, nil
	}
	return nil, interfaces.ErrNotFound
}

func (m *mockCatalogRepo) GetCategory(ctx context.Context, id primitive.ObjectID) (*models.VehicleCategory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.categories[id]; ok {
		return c, nil
	}
	return nil, interfaces.ErrNotFound
}

func (m *mockCatalogRepo) GetRegionalPricing(ctx context.Context, city string) (*models.RegionalPricing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.regions[city]; ok {
		return r, nil
	}
	return nil, interfaces.ErrNotFound
}

func (m *mockCatalogRepo) GetInsurancePlan(ctx context.Context, id primitive.ObjectID) (*models.InsurancePlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.insurance[id]; ok {
		return p, nil
	}
	return nil, interfaces.ErrNotFound
}

func (m *mockCatalogRepo) GetProtectionPlan(ctx context.Context, id primitive.ObjectID) (*models.ProtectionPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.protection[id]; ok {
		return p, nil
	}
	return nil, interfaces.ErrNotFound
}

// ---------------------------------------------------------------------------
// Bookings

type mockBookingRepo struct {
	mu       sync.Mutex
	bookings map[primitive.ObjectID]*models.Booking
}

func newMockBookingRepo() *mockBookingRepo {
	return &mockBookingRepo{bookings: make(map[primitive.ObjectID]*models.Booking)}
}

func (m *mockBookingRepo) insert(b *models.Booking) *models.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID.IsZero() {
		b.ID = primitive.NewObjectID()
	}
	if b.Version == 0 {
		b.Version = 1
	}
	m.bookings[b.ID] = b
	return b
}

func (m *mockBookingRepo) CreateIfAvailable(ctx context.Context, booking *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.bookings {
		if existing.ReferenceCode == booking.ReferenceCode {
			return interfaces.ErrDuplicateReference
		}
	}
	for _, existing := range m.bookings {
		if existing.VehicleID != booking.VehicleID || existing.Status.IsTerminal() {
			continue
		}
		if existing.Overlaps(booking.PickupAt, booking.ReturnAt) {
			return interfaces.ErrBookingConflict
		}
	}
	booking.ID = primitive.NewObjectID()
	booking.Version = 1
	booking.CreatedAt = time.Now()
	booking.UpdatedAt = booking.CreatedAt
	m.bookings[booking.ID] = booking
	return nil
}

func (m *mockBookingRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.bookings[id]; ok {
		copied := *b
		return &copied, nil
	}
	return nil, interfaces.ErrNotFound
}

func (m *mockBookingRepo) GetByReference(ctx context.Context, referenceCode string) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.ReferenceCode == referenceCode {
			copied := *b
			return &copied, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (m *mockBookingRepo) CountConflicts(ctx context.Context, vehicleID primitive.ObjectID, pickupAt, returnAt time.Time, excludeID *primitive.ObjectID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, b := range m.bookings {
		if b.VehicleID != vehicleID || b.Status.IsTerminal() {
			continue
		}
		if excludeID != nil && b.ID == *excludeID {
			continue
		}
		if b.Overlaps(pickupAt, returnAt) {
			count++
		}
	}
	return count, nil
}

func (m *mockBookingRepo) ApplyTransition(ctx context.Context, id primitive.ObjectID, expectedVersion int64, updates map[string]interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.Version != expectedVersion {
		return false, nil
	}
	for key, value := range updates {
		switch key {
		case "status":
			b.Status = value.(models.BookingStatus)
		case "payment_status":
			b.PaymentStatus = value.(models.BookingPaymentStatus)
		case "cancel_reason":
			b.CancelReason = value.(string)
		case "confirmed_at":
			at := value.(time.Time)
			b.ConfirmedAt = &at
		case "activated_at":
			at := value.(time.Time)
			b.ActivatedAt = &at
		case "completed_at":
			at := value.(time.Time)
			b.CompletedAt = &at
		case "cancelled_at":
			at := value.(time.Time)
			b.CancelledAt = &at
		}
	}
	b.Version++
	b.UpdatedAt = time.Now()
	return true, nil
}

func (m *mockBookingRepo) CountByRenter(ctx context.Context, userID *primitive.ObjectID, guestEmail string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, b := range m.bookings {
		if userID != nil && b.UserID != nil && *b.UserID == *userID {
			count++
			continue
		}
		if guestEmail != "" && b.Guest != nil && b.Guest.Email == guestEmail {
			count++
		}
	}
	return count, nil
}

func (m *mockBookingRepo) GetCompletedUnpaidOut(ctx context.Context, ownerID primitive.ObjectID) ([]*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Booking
	for _, b := range m.bookings {
		if b.OwnerID == ownerID && b.Status == models.BookingStatusCompleted && b.PaidOutID == nil {
			copied := *b
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockBookingRepo) GetByRenter(ctx context.Context, userID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Booking, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Booking
	for _, b := range m.bookings {
		if b.UserID != nil && *b.UserID == userID {
			copied := *b
			out = append(out, &copied)
		}
	}
	return out, int64(len(out)), nil
}

func (m *mockBookingRepo) GetByStatus(ctx context.Context, status models.BookingStatus, params *utils.PaginationParams) ([]*models.Booking, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Booking
	for _, b := range m.bookings {
		if b.Status == status {
			copied := *b
			out = append(out, &copied)
		}
	}
	return out, int64(len(out)), nil
}

// ---------------------------------------------------------------------------
// Payment transactions

type mockTransactionRepo struct {
	mu           sync.Mutex
	transactions map[primitive.ObjectID]*models.PaymentTransaction
}

func newMockTransactionRepo() *mockTransactionRepo {
	return &mockTransactionRepo{transactions: make(map[primitive.ObjectID]*models.PaymentTransaction)}
}

func (m *mockTransactionRepo) Create(ctx context.Context, transaction *models.PaymentTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if transaction.ID.IsZero() {
		transaction.ID = primitive.NewObjectID()
	}
	if transaction.CreatedAt.IsZero() {
		transaction.CreatedAt = time.Now()
	}
	m.transactions[transaction.ID] = transaction
	return nil
}

func (m *mockTransactionRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.transactions[id]; ok {
		copied := *t
		return &copied, nil
	}
	return nil, interfaces.ErrNotFound
}

func (m *mockTransactionRepo) GetByProviderReference(ctx context.Context, providerReference string) (*models.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.transactions {
		if t.ProviderReference == providerReference {
			copied := *t
			return &copied, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (m *mockTransactionRepo) GetByExternalID(ctx context.Context, externalID string) (*models.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.transactions {
		if t.ExternalID != "" && t.ExternalID == externalID {
			copied := *t
			return &copied, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (m *mockTransactionRepo) GetByBookingID(ctx context.Context, bookingID primitive.ObjectID) ([]*models.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PaymentTransaction
	for _, t := range m.transactions {
		if t.BookingID != nil && *t.BookingID == bookingID {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockTransactionRepo) GetActivePayment(ctx context.Context, bookingID primitive.ObjectID) (*models.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.transactions {
		if t.BookingID != nil && *t.BookingID == bookingID &&
			t.Type == models.TransactionTypePayment && !t.Status.IsTerminal() {
			copied := *t
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *mockTransactionRepo) UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.TransactionStatus, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok {
		return interfaces.ErrNotFound
	}
	t.Status = status
	for key, value := range updates {
		switch key {
		case "external_id":
			t.ExternalID = value.(string)
		case "captured_amount":
			t.CapturedAmount = value.(float64)
		case "error_message":
			t.ErrorMessage = value.(string)
		}
	}
	t.UpdatedAt = time.Now()
	return nil
}

func (m *mockTransactionRepo) Supersede(ctx context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok {
		return interfaces.ErrNotFound
	}
	t.Status = models.TransactionStatusSuperseded
	return nil
}

func (m *mockTransactionRepo) GetInFlight(ctx context.Context) ([]*models.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PaymentTransaction
	for _, t := range m.transactions {
		if t.Status == models.TransactionStatusProcessing {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockTransactionRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.transactions)
}

func (m *mockTransactionRepo) byType(txnType models.TransactionType) []*models.PaymentTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PaymentTransaction
	for _, t := range m.transactions {
		if t.Type == txnType {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Promo codes

type mockPromoRepo struct {
	mu     sync.Mutex
	codes  map[primitive.ObjectID]*models.PromoCode
	usages map[primitive.ObjectID]*models.PromoCodeUsage
}

func newMockPromoRepo() *mockPromoRepo {
	return &mockPromoRepo{
		codes:  make(map[primitive.ObjectID]*models.PromoCode),
		usages: make(map[primitive.ObjectID]*models.PromoCodeUsage),
	}
}

func (m *mockPromoRepo) addCode(code *models.PromoCode) *models.PromoCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	if code.ID.IsZero() {
		code.ID = primitive.NewObjectID()
	}
	m.codes[code.ID] = code
	return code
}

func (m *mockPromoRepo) Create(ctx context.Context, code *models.PromoCode) error {
	m.addCode(code)
	return nil
}

func (m *mockPromoRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.PromoCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.codes[id]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, interfaces.ErrNotFound
}

func (m *mockPromoRepo) GetByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.codes {
		if c.Code == code {
			copied := *c
			return &copied, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (m *mockPromoRepo) Redeem(ctx context.Context, codeID primitive.ObjectID, usage *models.PromoCodeUsage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	code, ok := m.codes[codeID]
	if !ok {
		return interfaces.ErrNotFound
	}
	if code.MaxTotalUses > 0 && code.UsedCount >= code.MaxTotalUses {
		return interfaces.ErrPromoCapExceeded
	}
	if code.MaxUsesPerUser > 0 {
		var used int
		for _, u := range m.usages {
			if u.PromoCodeID != codeID {
				continue
			}
			if usage.UserID != nil && u.UserID != nil && *u.UserID == *usage.UserID {
				used++
			} else if usage.GuestEmail != "" && u.GuestEmail == usage.GuestEmail {
				used++
			}
		}
		if used >= code.MaxUsesPerUser {
			return interfaces.ErrPromoUserCapExceeded
		}
	}
	code.UsedCount++
	usage.ID = primitive.NewObjectID()
	usage.PromoCodeID = codeID
	usage.CreatedAt = time.Now()
	m.usages[usage.ID] = usage
	return nil
}

func (m *mockPromoRepo) CountUsagesByUser(ctx context.Context, codeID primitive.ObjectID, userID *primitive.ObjectID, guestEmail string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, u := range m.usages {
		if u.PromoCodeID != codeID {
			continue
		}
		if userID != nil && u.UserID != nil && *u.UserID == *userID {
			count++
		} else if guestEmail != "" && u.GuestEmail == guestEmail {
			count++
		}
	}
	return count, nil
}

func (m *mockPromoRepo) ReleaseUsage(ctx context.Context, usageID primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	usage, ok := m.usages[usageID]
	if !ok {
		return interfaces.ErrNotFound
	}
	if code, ok := m.codes[usage.PromoCodeID]; ok && code.UsedCount > 0 {
		code.UsedCount--
	}
	delete(m.usages, usageID)
	return nil
}

func (m *mockPromoRepo) BindUsageToBooking(ctx context.Context, usageID, bookingID primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	usage, ok := m.usages[usageID]
	if !ok {
		return interfaces.ErrNotFound
	}
	usage.BookingID = &bookingID
	return nil
}

func (m *mockPromoRepo) ReleaseUsageForBooking(ctx context.Context, bookingID primitive.ObjectID) error {
	m.mu.Lock()
	var target primitive.ObjectID
	found := false
	for id, u := range m.usages {
		if u.BookingID != nil && *u.BookingID == bookingID {
			target = id
			found = true
			break
		}
	}
	m.mu.Unlock()
	if !found {
		return nil
	}
	return m.ReleaseUsage(ctx, target)
}

func (m *mockPromoRepo) usageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.usages)
}

// ---------------------------------------------------------------------------
// Deposit refunds

type mockRefundRepo struct {
	mu      sync.Mutex
	refunds map[primitive.ObjectID]*models.DepositRefund
}

func newMockRefundRepo() *mockRefundRepo {
	return &mockRefundRepo{refunds: make(map[primitive.ObjectID]*models.DepositRefund)}
}

func (m *mockRefundRepo) Create(ctx context.Context, refund *models.DepositRefund) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if refund.ID.IsZero() {
		refund.ID = primitive.NewObjectID()
	}
	refund.CreatedAt = time.Now()
	m.refunds[refund.ID] = refund
	return nil
}

func (m *mockRefundRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.DepositRefund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.refunds[id]; ok {
		copied := *r
		return &copied, nil
	}
	return nil, interfaces.ErrNotFound
}

func (m *mockRefundRepo) GetByBookingID(ctx context.Context, bookingID primitive.ObjectID) (*models.DepositRefund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.refunds {
		if r.BookingID == bookingID {
			copied := *r
			return &copied, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (m *mockRefundRepo) ClaimNextDue(ctx context.Context, now time.Time) (*models.DepositRefund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.refunds {
		if r.Status != models.DepositRefundStatusPending {
			continue
		}
		if r.DueDate.After(now) {
			continue
		}
		if !r.NextAttemptAt.IsZero() && r.NextAttemptAt.After(now) {
			continue
		}
		r.Status = models.DepositRefundStatusProcessing
		copied := *r
		return &copied, nil
	}
	return nil, nil
}

func (m *mockRefundRepo) MarkCompleted(ctx context.Context, id primitive.ObjectID, providerRefundID string, processedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.refunds[id]
	if !ok {
		return interfaces.ErrNotFound
	}
	r.Status = models.DepositRefundStatusCompleted
	r.ProviderRefundID = providerRefundID
	r.ProcessedAt = &processedAt
	return nil
}

func (m *mockRefundRepo) MarkForRetry(ctx context.Context, id primitive.ObjectID, attempts int, nextAttemptAt time.Time, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.refunds[id]
	if !ok {
		return interfaces.ErrNotFound
	}
	r.Status = models.DepositRefundStatusPending
	r.Attempts = attempts
	r.NextAttemptAt = nextAttemptAt
	r.LastError = lastError
	return nil
}

func (m *mockRefundRepo) MarkFailed(ctx context.Context, id primitive.ObjectID, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.refunds[id]
	if !ok {
		return interfaces.ErrNotFound
	}
	r.Status = models.DepositRefundStatusFailed
	r.LastError = lastError
	return nil
}

func (m *mockRefundRepo) Cancel(ctx context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.refunds[id]
	if !ok {
		return interfaces.ErrNotFound
	}
	r.Status = models.DepositRefundStatusCancelled
	return nil
}

func (m *mockRefundRepo) ReduceAmount(ctx context.Context, id primitive.ObjectID, by float64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.refunds[id]
	if !ok {
		return false, nil
	}
	if r.Status != models.DepositRefundStatusPending || r.Amount < by {
		return false, nil
	}
	r.Amount -= by
	return true, nil
}

// ---------------------------------------------------------------------------
// Charges

type mockChargeRepo struct {
	mu      sync.Mutex
	charges map[primitive.ObjectID]*models.BookingCharge
	expired int64
}

func newMockChargeRepo() *mockChargeRepo {
	return &mockChargeRepo{charges: make(map[primitive.ObjectID]*models.BookingCharge)}
}

func (m *mockChargeRepo) Create(ctx context.Context, charge *models.BookingCharge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if charge.ID.IsZero() {
		charge.ID = primitive.NewObjectID()
	}
	if charge.CreatedAt.IsZero() {
		charge.CreatedAt = time.Now()
	}
	m.charges[charge.ID] = charge
	return nil
}

func (m *mockChargeRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.BookingCharge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.charges[id]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, interfaces.ErrNotFound
}

func (m *mockChargeRepo) GetByBookingID(ctx context.Context, bookingID primitive.ObjectID) ([]*models.BookingCharge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.BookingCharge
	for _, c := range m.charges {
		if c.BookingID == bookingID {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockChargeRepo) AdvanceStatus(ctx context.Context, id primitive.ObjectID, from, to models.ChargeStatus, updates map[string]interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.charges[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	for key, value := range updates {
		switch key {
		case "reviewed_by":
			reviewer := value.(primitive.ObjectID)
			c.ReviewedBy = &reviewer
		case "reviewed_at":
			at := value.(time.Time)
			c.ReviewedAt = &at
		case "reject_reason":
			c.RejectReason = value.(string)
		case "transaction_id":
			txnID := value.(primitive.ObjectID)
			c.TransactionID = &txnID
		case "settled_at":
			at := value.(time.Time)
			c.SettledAt = &at
		}
	}
	return true, nil
}

func (m *mockChargeRepo) GetUnsettledAmountForBookings(ctx context.Context, bookingIDs []primitive.ObjectID) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for _, c := range m.charges {
		if c.Status != models.ChargeStatusApproved {
			continue
		}
		for _, id := range bookingIDs {
			if c.BookingID == id {
				total += c.Amount
				break
			}
		}
	}
	return total, nil
}

func (m *mockChargeRepo) ExpireStalePending(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, c := range m.charges {
		if c.Status == models.ChargeStatusPending && c.CreatedAt.Before(cutoff) {
			c.Status = models.ChargeStatusExpired
			count++
		}
	}
	m.expired += count
	return count, nil
}

// ---------------------------------------------------------------------------
// Payouts and withdrawals

type mockPayoutRepo struct {
	mu           sync.Mutex
	bookingRepo  *mockBookingRepo
	payouts      map[primitive.ObjectID]*models.Payout
	ownersDue    []*models.OwnerPayoutProfile
	lastPayoutAt map[primitive.ObjectID]time.Time
}

func newMockPayoutRepo(bookingRepo *mockBookingRepo) *mockPayoutRepo {
	return &mockPayoutRepo{
		bookingRepo:  bookingRepo,
		payouts:      make(map[primitive.ObjectID]*models.Payout),
		lastPayoutAt: make(map[primitive.ObjectID]time.Time),
	}
}

func (m *mockPayoutRepo) CreateForBookings(ctx context.Context, payout *models.Payout, bookingIDs []primitive.ObjectID) error {
	m.bookingRepo.mu.Lock()
	for _, id := range bookingIDs {
		if b, ok := m.bookingRepo.bookings[id]; ok && b.PaidOutID != nil {
			m.bookingRepo.mu.Unlock()
			return interfaces.ErrAlreadyPaidOut
		}
	}
	payout.ID = primitive.NewObjectID()
	payout.CreatedAt = time.Now()
	for _, id := range bookingIDs {
		if b, ok := m.bookingRepo.bookings[id]; ok {
			b.PaidOutID = &payout.ID
		}
	}
	m.bookingRepo.mu.Unlock()

	m.mu.Lock()
	m.payouts[payout.ID] = payout
	m.mu.Unlock()
	return nil
}

func (m *mockPayoutRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.payouts[id]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, interfaces.ErrNotFound
}

func (m *mockPayoutRepo) GetByOwnerID(ctx context.Context, ownerID primitive.ObjectID) ([]*models.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Payout
	for _, p := range m.payouts {
		if p.OwnerID == ownerID {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockPayoutRepo) UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.PayoutStatus, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payouts[id]
	if !ok {
		return interfaces.ErrNotFound
	}
	p.Status = status
	for key, value := range updates {
		switch key {
		case "transaction_id":
			txnID := value.(primitive.ObjectID)
			p.TransactionID = &txnID
		case "processed_at":
			at := value.(time.Time)
			p.ProcessedAt = &at
		}
	}
	return nil
}

func (m *mockPayoutRepo) GetOwnersDue(ctx context.Context, now time.Time) ([]*models.OwnerPayoutProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ownersDue, nil
}

func (m *mockPayoutRepo) SetLastPayoutAt(ctx context.Context, ownerID primitive.ObjectID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastPayoutAt[ownerID] = at
	return nil
}

func (m *mockPayoutRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payouts)
}

type mockWithdrawalRepo struct {
	mu          sync.Mutex
	withdrawals map[primitive.ObjectID]*models.InstantWithdrawal
}

func newMockWithdrawalRepo() *mockWithdrawalRepo {
	return &mockWithdrawalRepo{withdrawals: make(map[primitive.ObjectID]*models.InstantWithdrawal)}
}

func (m *mockWithdrawalRepo) Create(ctx context.Context, withdrawal *models.InstantWithdrawal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if withdrawal.ID.IsZero() {
		withdrawal.ID = primitive.NewObjectID()
	}
	withdrawal.CreatedAt = time.Now()
	m.withdrawals[withdrawal.ID] = withdrawal
	return nil
}

func (m *mockWithdrawalRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.InstantWithdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.withdrawals[id]; ok {
		copied := *w
		return &copied, nil
	}
	return nil, interfaces.ErrNotFound
}

func (m *mockWithdrawalRepo) GetByOwnerID(ctx context.Context, ownerID primitive.ObjectID) ([]*models.InstantWithdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.InstantWithdrawal
	for _, w := range m.withdrawals {
		if w.OwnerID == ownerID {
			copied := *w
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockWithdrawalRepo) UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.WithdrawalStatus, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.withdrawals[id]
	if !ok {
		return interfaces.ErrNotFound
	}
	w.Status = status
	for key, value := range updates {
		switch key {
		case "transaction_id":
			txnID := value.(primitive.ObjectID)
			w.TransactionID = &txnID
		}
	}
	return nil
}

func (m *mockWithdrawalRepo) GetUnabsorbed(ctx context.Context, ownerID primitive.ObjectID) ([]*models.InstantWithdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.InstantWithdrawal
	for _, w := range m.withdrawals {
		if w.OwnerID == ownerID && w.Status == models.WithdrawalStatusCompleted && w.AbsorbedByPayoutID == nil {
			copied := *w
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockWithdrawalRepo) MarkAbsorbed(ctx context.Context, ids []primitive.ObjectID, payoutID primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if w, ok := m.withdrawals[id]; ok {
			w.AbsorbedByPayoutID = &payoutID
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Audit log

type mockAuditRepo struct {
	mu      sync.Mutex
	entries []*models.AuditLog
}

func newMockAuditRepo() *mockAuditRepo {
	return &mockAuditRepo{}
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = primitive.NewObjectID()
	entry.CreatedAt = time.Now()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRepo) GetByResource(ctx context.Context, resource, resourceID string, params *utils.PaginationParams) ([]*models.AuditLog, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AuditLog
	for _, e := range m.entries {
		if e.Resource == resource && e.ResourceID == resourceID {
			out = append(out, e)
		}
	}
	return out, int64(len(out)), nil
}

func (m *mockAuditRepo) countByAction(action models.AuditAction) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int
	for _, e := range m.entries {
		if e.Action == action {
			count++
		}
	}
	return count
}

// ---------------------------------------------------------------------------
// Payment provider

var errWebhookNotStubbed = errors.New("webhook verification not stubbed")

type mockProvider struct {
	mu           sync.Mutex
	name         string
	initializeFn func(ctx context.Context, req *payment.InitializeRequest) (*payment.InitializeResult, error)
	verifyFn     func(ctx context.Context, ref string) (*payment.VerificationResult, error)
	refundFn     func(ctx context.Context, ref string, amount float64) (*payment.RefundResult, error)
	webhookFn    func(ctx context.Context, payload []byte, signature string) (*payment.WebhookEvent, error)
	initCalls    int
	refundCalls  int
	lastInitReq  *payment.InitializeRequest
}

func newMockProvider(name string) *mockProvider {
	return &mockProvider{name: name}
}

func (p *mockProvider) Name() string { return p.name }

func (p *mockProvider) Initialize(ctx context.Context, req *payment.InitializeRequest) (*payment.InitializeResult, error) {
	p.mu.Lock()
	p.initCalls++
	p.lastInitReq = req
	fn := p.initializeFn
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return &payment.InitializeResult{
		ProviderReference: "ext_" + req.IdempotencyReference,
		ClientSecret:      "secret_" + req.IdempotencyReference,
	}, nil
}

func (p *mockProvider) Verify(ctx context.Context, ref string) (*payment.VerificationResult, error) {
	p.mu.Lock()
	fn := p.verifyFn
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, ref)
	}
	return &payment.VerificationResult{Success: true, Status: "succeeded"}, nil
}

func (p *mockProvider) Capture(ctx context.Context, ref string, amount float64) (*payment.VerificationResult, error) {
	return &payment.VerificationResult{Success: true, Status: "succeeded", CapturedAmount: amount}, nil
}

func (p *mockProvider) Refund(ctx context.Context, ref string, amount float64) (*payment.RefundResult, error) {
	p.mu.Lock()
	p.refundCalls++
	fn := p.refundFn
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, ref, amount)
	}
	return &payment.RefundResult{RefundID: "re_" + ref, Status: "succeeded", Amount: amount}, nil
}

func (p *mockProvider) VerifyWebhook(ctx context.Context, payload []byte, signature string) (*payment.WebhookEvent, error) {
	p.mu.Lock()
	fn := p.webhookFn
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, payload, signature)
	}
	return nil, errWebhookNotStubbed
}

func (p *mockProvider) initializeCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initCalls
}

func (p *mockProvider) refundCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refundCalls
}

// ---------------------------------------------------------------------------
// Notifications

type mockSender struct {
	mu       sync.Mutex
	messages []*notify.Message
}

func (m *mockSender) Send(ctx context.Context, message *notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, message)
	return nil
}

func (m *mockSender) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}
