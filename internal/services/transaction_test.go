package services

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/depositly-backend/internal/apierr"
	"github.com/yungbote/depositly-backend/internal/repos"
	"github.com/yungbote/depositly-backend/internal/requestdata"
	"github.com/yungbote/depositly-backend/internal/types"
)

type txFixture struct {
	db       *gorm.DB
	gateway  *fakeGateway
	svc      TransactionService
	itemRepo repos.ItemRepo
}

func newTxFixture(t *testing.T) *txFixture {
	t.Helper()
	log := mustTestLogger(t)
	db := mustTestDB(t)
	gateway := newFakeGateway()

	txRepo := repos.NewTransactionRepo(db, log)
	itemRepo := repos.NewItemRepo(db, log)
	businessRepo := repos.NewBusinessRepo(db, log)
	customerRepo := repos.NewCustomerRepo(db, log)
	ratingRepo := repos.NewBusinessRatingRepo(db, log)
	notificationRepo := repos.NewNotificationRepo(db, log)

	ratingSvc := NewRatingService(db, log, ratingRepo)
	notificationSvc := NewNotificationService(db, log, notificationRepo, nil, nil)

	svc := NewTransactionService(db, log, txRepo, itemRepo, businessRepo, customerRepo, gateway, notificationSvc, ratingSvc)
	return &txFixture{db: db, gateway: gateway, svc: svc, itemRepo: itemRepo}
}

func (f *txFixture) mustStatus(t *testing.T, id uuid.UUID) types.TransactionStatus {
	t.Helper()
	var tr types.Transaction
	if err := f.db.Where("id = ?", id).First(&tr).Error; err != nil {
		t.Fatalf("failed to reload transaction: %v", err)
	}
	return tr.Status
}

func (f *txFixture) countNotifications(t *testing.T, role requestdata.Role, recipientID uuid.UUID, ntype types.NotificationType) int64 {
	t.Helper()
	var n int64
	err := f.db.Model(&types.Notification{}).
		Where("recipient_role = ? AND recipient_id = ? AND type = ?", role, recipientID, ntype).
		Count(&n).Error
	if err != nil {
		t.Fatalf("failed to count notifications: %v", err)
	}
	return n
}

func TestOpenIntent_CreatesIntentWithHold(t *testing.T) {
	f := newTxFixture(t)
	customer := seedCustomer(t, f.db)
	business := seedBusiness(t, f.db, false)

	result, err := f.svc.OpenIntent(customerCtx(customer.ID), OpenIntentInput{
		Amount:      5000,
		Currency:    "usd",
		BusinessID:  business.ID,
		Description: "bike rental deposit",
	})
	if err != nil {
		t.Fatalf("OpenIntent failed: %v", err)
	}
	if result.Transaction.Status != types.TransactionStatusIntent {
		t.Fatalf("expected intent, got %s", result.Transaction.Status)
	}
	if result.Transaction.Currency != "USD" {
		t.Fatalf("expected normalized currency, got %q", result.Transaction.Currency)
	}
	if result.ClientAuthToken == "" {
		t.Fatalf("expected a client auth token")
	}
	if h := f.gateway.hold(result.Transaction.HoldRef); h == nil || h.amount != 5000 {
		t.Fatalf("expected a 5000 hold at the gateway")
	}
}

func TestOpenIntent_ItemSetsPriceAndReturnDate(t *testing.T) {
	f := newTxFixture(t)
	customer := seedCustomer(t, f.db)
	business := seedBusiness(t, f.db, false)
	item := &types.Item{
		ID:         uuid.New(),
		BusinessID: business.ID,
		Title:      "Camera kit",
		Price:      12000,
		Currency:   "USD",
		Duration:   2,
		TimeUnit:   types.TimeUnitDays,
	}
	if err := f.db.Create(item).Error; err != nil {
		t.Fatalf("failed to seed item: %v", err)
	}

	result, err := f.svc.OpenIntent(customerCtx(customer.ID), OpenIntentInput{ItemID: &item.ID})
	if err != nil {
		t.Fatalf("OpenIntent failed: %v", err)
	}
	tr := result.Transaction
	if tr.Amount != 12000 || tr.BusinessID != business.ID {
		t.Fatalf("expected item price and business, got %d / %s", tr.Amount, tr.BusinessID)
	}
	if tr.ReturnDate == nil {
		t.Fatalf("expected a return date")
	}
	want := tr.OpenedAt.Add(48 * time.Hour)
	if diff := tr.ReturnDate.Sub(want); diff > time.Second || diff < -time.Second {
		t.Fatalf("expected return date 48h after open, off by %v", diff)
	}
}

func TestOpenIntent_RejectsExcessiveDuration(t *testing.T) {
	f := newTxFixture(t)
	customer := seedCustomer(t, f.db)
	business := seedBusiness(t, f.db, false)
	item := &types.Item{
		ID:         uuid.New(),
		BusinessID: business.ID,
		Title:      "Van",
		Price:      50000,
		Currency:   "USD",
		Duration:   45,
		TimeUnit:   types.TimeUnitDays,
	}
	if err := f.db.Create(item).Error; err != nil {
		t.Fatalf("failed to seed item: %v", err)
	}

	_, err := f.svc.OpenIntent(customerCtx(customer.ID), OpenIntentInput{ItemID: &item.ID})
	if !apierr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestOpenIntent_SuspendedBusinessConflicts(t *testing.T) {
	f := newTxFixture(t)
	customer := seedCustomer(t, f.db)
	business := seedBusiness(t, f.db, true)

	_, err := f.svc.OpenIntent(customerCtx(customer.ID), OpenIntentInput{
		Amount:     1000,
		Currency:   "USD",
		BusinessID: business.ID,
	})
	if !apierr.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestOpenIntent_BusinessActorForbidden(t *testing.T) {
	f := newTxFixture(t)
	business := seedBusiness(t, f.db, false)

	_, err := f.svc.OpenIntent(businessCtx(business.ID), OpenIntentInput{
		Amount:     1000,
		Currency:   "USD",
		BusinessID: business.ID,
	})
	if !apierr.IsPermission(err) {
		t.Fatalf("expected permission error, got %v", err)
	}
}

func TestConfirmPayment_MovesIntentToOpen(t *testing.T) {
	f := newTxFixture(t)
	customer := seedCustomer(t, f.db)
	business := seedBusiness(t, f.db, false)
	f.gateway.addHold("hold_a", HoldStatusCapturable, 2000)
	tr := seedTransaction(t, f.db, business.ID, customer.ID, types.TransactionStatusIntent, 2000, "hold_a")

	got, err := f.svc.ConfirmPayment(customerCtx(customer.ID), tr.ID)
	if err != nil {
		t.Fatalf("ConfirmPayment failed: %v", err)
	}
	if got.Status != types.TransactionStatusOpen {
		t.Fatalf("expected open, got %s", got.Status)
	}
	if n := f.countNotifications(t, requestdata.RoleBusiness, business.ID, types.NotificationTransactionOpened); n != 1 {
		t.Fatalf("expected 1 opened notification for the business, got %d", n)
	}
}

func TestConfirmPayment_DeletesTemporaryItem(t *testing.T) {
	f := newTxFixture(t)
	customer := seedCustomer(t, f.db)
	business := seedBusiness(t, f.db, false)
	rd := time.Now().UTC().Add(6 * time.Hour)
	item := &types.Item{
		ID:         uuid.New(),
		BusinessID: business.ID,
		Title:      "One-off listing",
		Price:      3000,
		Currency:   "USD",
		Temporary:  true,
		ReturnDate: &rd,
	}
	if err := f.db.Create(item).Error; err != nil {
		t.Fatalf("failed to seed item: %v", err)
	}
	f.gateway.addHold("hold_b", HoldStatusCapturable, 3000)
	tr := seedTransaction(t, f.db, business.ID, customer.ID, types.TransactionStatusIntent, 3000, "hold_b")
	if err := f.db.Model(&types.Transaction{}).Where("id = ?", tr.ID).Update("item_id", item.ID).Error; err != nil {
		t.Fatalf("failed to link item: %v", err)
	}

	if _, err := f.svc.ConfirmPayment(customerCtx(customer.ID), tr.ID); err != nil {
		t.Fatalf("ConfirmPayment failed: %v", err)
	}
	left, err := f.itemRepo.GetByID(customerCtx(customer.ID), nil, item.ID)
	if err != nil {
		t.Fatalf("item lookup failed: %v", err)
	}
	if left != nil {
		t.Fatalf("temporary item should be gone after confirmation")
	}
}

func TestConfirmPayment_PendingHoldStaysIntent(t *testing.T) {
	f := newTxFixture(t)
	customer := seedCustomer(t, f.db)
	business := seedBusiness(t, f.db, false)
	f.gateway.addHold("hold_c", HoldStatusPending, 2000)
	tr := seedTransaction(t, f.db, business.ID, customer.ID, types.TransactionStatusIntent, 2000, "hold_c")

	_, err := f.svc.ConfirmPayment(customerCtx(customer.ID), tr.ID)
	if !apierr.IsGateway(err) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if got := f.mustStatus(t, tr.ID); got != types.TransactionStatusIntent {
		t.Fatalf("gateway failure must not advance status, got %s", got)
	}
}

func TestConfirmPayment_OtherCustomerForbidden(t *testing.T) {
	f := newTxFixture(t)
	customer := seedCustomer(t, f.db)
	stranger := seedCustomer(t, f.db)
	business := seedBusiness(t, f.db, false)
	f.gateway.addHold("hold_d", HoldStatusCapturable, 2000)
	tr := seedTransaction(t, f.db, business.ID, customer.ID, types.TransactionStatusIntent, 2000, "hold_d")

	_, err := f.svc.ConfirmPayment(customerCtx(stranger.ID), tr.ID)
	if !apierr.IsPermission(err) {
		t.Fatalf("expected permission error, got %v", err)
	}
}

func TestCloseTransaction_ReleasesHold(t *testing.T) {
	f := newTxFixture(t)
	customer := seedCustomer(t, f.db)
	business := seedBusiness(t, f.db, false)
	f.gateway.addHold("hold_e", HoldStatusCapturable, 2000)
	tr := seedTransaction(t, f.db, business.ID, customer.ID, types.TransactionStatusOpen, 2000, "hold_e")

	got, err := f.svc.CloseTransaction(businessCtx(business.ID), tr.ID)
	if err != nil {
		t.Fatalf("CloseTransaction failed: %v", err)
	}
	if got.Status != types.TransactionStatusClosed || got.ClosedAt == nil {
		t.Fatalf("expected closed with timestamp, got %s", got.Status)
	}
	if h := f.gateway.hold("hold_e"); h.cancelCalls != 1 || h.status != HoldStatusCanceled {
		t.Fatalf("expected exactly one cancel, got %d (status %s)", h.cancelCalls, h.status)
	}
	if n := f.countNotifications(t, requestdata.RoleCustomer, customer.ID, types.NotificationDepositReleased); n != 1 {
		t.Fatalf("expected 1 released notification for the customer, got %d", n)
	}

	var rating types.BusinessRating
	if err := f.db.Where("business_id = ?", business.ID).First(&rating).Error; err != nil {
		t.Fatalf("expected a rating row: %v", err)
	}
	if rating.QualifyingCount != 1 || rating.ChargedCount != 0 {
		t.Fatalf("expected qualifying=1 charged=0, got %d/%d", rating.QualifyingCount, rating.ChargedCount)
	}
}

func TestCloseTransaction_AlreadyCanceledHoldSkipsCancel(t *testing.T) {
	f := newTxFixture(t)
	customer := seedCustomer(t, f.db)
	business := seedBusiness(t, f.db, false)
	f.gateway.addHold("hold_f", HoldStatusCanceled, 2000)
	tr := seedTransaction(t, f.db, business.ID, customer.ID, types.TransactionStatusOpen, 2000, "hold_f")

	got, err := f.svc.CloseTransaction(businessCtx(business.ID), tr.ID)
	if err != nil {
		t.Fatalf("CloseTransaction failed: %v", err)
	}
	if got.Status != types.TransactionStatusClosed {
		t.Fatalf("expected closed, got %s", got.Status)
	}
	if h := f.gateway.hold("hold_f"); h.cancelCalls != 0 {
		t.Fatalf("released hold must not be canceled again, got %d calls", h.cancelCalls)
	}
}

func TestCloseTransaction_CustomerForbidden(t *testing.T) {
	f := newTxFixture(t)
	customer := seedCustomer(t, f.db)
	business := seedBusiness(t, f.db, false)
	f.gateway.addHold("hold_g", HoldStatusCapturable, 2000)
	tr := seedTransaction(t, f.db, business.ID, customer.ID, types.TransactionStatusOpen, 2000, "hold_g")

	_, err := f.svc.CloseTransaction(customerCtx(customer.ID), tr.ID)
	if !apierr.IsPermission(err) {
		t.Fatalf("expected permission error, got %v", err)
	}
}

func TestCaptureDeposit_PartialAmount(t *testing.T) {
	f := newTxFixture(t)
	customer := seedCustomer(t, f.db)
	business := seedBusiness(t, f.db, false)
	f.gateway.addHold("hold_h", HoldStatusCapturable, 10000)
	tr := seedTransaction(t, f.db, business.ID, customer.ID, types.TransactionStatusOpen, 10000, "hold_h")

	amount := int64(3000)
	got, err := f.svc.CaptureDeposit(businessCtx(business.ID), tr.ID, CaptureInput{
		Amount:      &amount,
		Description: "broken tail light",
	})
	if err != nil {
		t.Fatalf("CaptureDeposit failed: %v", err)
	}
	if got.Status != types.TransactionStatusCharged {
		t.Fatalf("expected charged, got %s", got.Status)
	}
	if got.Charged == nil || *got.Charged != 3000 {
		t.Fatalf("expected charged=3000, got %v", got.Charged)
	}
	h := f.gateway.hold("hold_h")
	if h.captureCalls != 1 || h.capturedAmount != 3000 {
		t.Fatalf("expected exactly one capture of 3000, got %d calls for %d", h.captureCalls, h.capturedAmount)
	}
	if n := f.countNotifications(t, requestdata.RoleCustomer, customer.ID, types.NotificationDepositCharged); n != 1 {
		t.Fatalf("expected 1 charged notification for the customer, got %d", n)
	}
}

func TestCaptureDeposit_RejectsOverCapture(t *testing.T) {
	f := newTxFixture(t)
	customer := seedCustomer(t, f.db)
	business := seedBusiness(t, f.db, false)
	f.gateway.addHold("hold_i", HoldStatusCapturable, 1000)
	tr := seedTransaction(t, f.db, business.ID, customer.ID, types.TransactionStatusOpen, 1000, "hold_i")

	amount := int64(1001)
	_, err := f.svc.CaptureDeposit(businessCtx(business.ID), tr.ID, CaptureInput{Amount: &amount})
	if !apierr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if h := f.gateway.hold("hold_i"); h.captureCalls != 0 {
		t.Fatalf("over-capture must never reach the gateway, got %d calls", h.captureCalls)
	}
	if got := f.mustStatus(t, tr.ID); got != types.TransactionStatusOpen {
		t.Fatalf("expected open, got %s", got)
	}
}

func TestCaptureDeposit_GatewayFailureLeavesState(t *testing.T) {
	f := newTxFixture(t)
	customer := seedCustomer(t, f.db)
	business := seedBusiness(t, f.db, false)
	f.gateway.addHold("hold_j", HoldStatusCapturable, 2000)
	f.gateway.failCapture = true
	tr := seedTransaction(t, f.db, business.ID, customer.ID, types.TransactionStatusOpen, 2000, "hold_j")

	_, err := f.svc.CaptureDeposit(businessCtx(business.ID), tr.ID, CaptureInput{})
	if !apierr.IsGateway(err) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if got := f.mustStatus(t, tr.ID); got != types.TransactionStatusOpen {
		t.Fatalf("gateway failure must not advance status, got %s", got)
	}

	// Retry succeeds once the gateway recovers.
	f.gateway.failCapture = false
	got, err := f.svc.CaptureDeposit(businessCtx(business.ID), tr.ID, CaptureInput{})
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if got.Status != types.TransactionStatusCharged {
		t.Fatalf("expected charged after retry, got %s", got.Status)
	}
}

func TestCaptureDeposit_AlreadyCapturedHoldRecovers(t *testing.T) {
	f := newTxFixture(t)
	customer := seedCustomer(t, f.db)
	business := seedBusiness(t, f.db, false)
	f.gateway.addHold("hold_k", HoldStatusCaptured, 2000)
	tr := seedTransaction(t, f.db, business.ID, customer.ID, types.TransactionStatusOpen, 2000, "hold_k")

	got, err := f.svc.CaptureDeposit(businessCtx(business.ID), tr.ID, CaptureInput{})
	if err != nil {
		t.Fatalf("CaptureDeposit failed: %v", err)
	}
	if got.Status != types.TransactionStatusCharged {
		t.Fatalf("expected charged, got %s", got.Status)
	}
	if h := f.gateway.hold("hold_k"); h.captureCalls != 0 {
		t.Fatalf("captured hold must not be captured again, got %d calls", h.captureCalls)
	}
}

func TestCaptureDeposit_RecoveryRecordsGatewayCapturedAmount(t *testing.T) {
	f := newTxFixture(t)
	customer := seedCustomer(t, f.db)
	business := seedBusiness(t, f.db, false)
	// An earlier partial capture of 3000 succeeded at the gateway but never
	// reached the db; the retry asks for the full amount.
	f.gateway.addHold("hold_l", HoldStatusCaptured, 10000)
	f.gateway.hold("hold_l").capturedAmount = 3000
	tr := seedTransaction(t, f.db, business.ID, customer.ID, types.TransactionStatusOpen, 10000, "hold_l")

	got, err := f.svc.CaptureDeposit(businessCtx(business.ID), tr.ID, CaptureInput{})
	if err != nil {
		t.Fatalf("CaptureDeposit failed: %v", err)
	}
	if got.Status != types.TransactionStatusCharged {
		t.Fatalf("expected charged, got %s", got.Status)
	}
	if got.Charged == nil || *got.Charged != 3000 {
		t.Fatalf("expected charged to match the gateway's 3000, got %v", got.Charged)
	}
	if h := f.gateway.hold("hold_l"); h.captureCalls != 0 {
		t.Fatalf("captured hold must not be captured again, got %d calls", h.captureCalls)
	}
}

func TestConcurrentCaptureAndClose_OneWinner(t *testing.T) {
	f := newTxFixture(t)
	customer := seedCustomer(t, f.db)
	business := seedBusiness(t, f.db, false)
	f.gateway.addHold("hold_l", HoldStatusCapturable, 5000)
	tr := seedTransaction(t, f.db, business.ID, customer.ID, types.TransactionStatusOpen, 5000, "hold_l")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = f.svc.CaptureDeposit(businessCtx(business.ID), tr.ID, CaptureInput{})
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = f.svc.CloseTransaction(businessCtx(business.ID), tr.ID)
	}()
	wg.Wait()

	var okCount, conflictCount int
	for _, err := range errs {
		switch {
		case err == nil:
			okCount++
		case apierr.IsConflict(err):
			conflictCount++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if okCount != 1 || conflictCount != 1 {
		t.Fatalf("expected exactly one winner and one conflict, got ok=%d conflict=%d", okCount, conflictCount)
	}
	if got := f.mustStatus(t, tr.ID); !got.Terminal() {
		t.Fatalf("expected a terminal status, got %s", got)
	}
}

func TestCaptureDeposit_ChargeRateAlertNotifiesAdmin(t *testing.T) {
	adminID := uuid.New()
	t.Setenv("ADMIN_RECIPIENT_ID", adminID.String())
	t.Setenv("CHARGE_ALERT_THRESHOLD", "0.5")
	t.Setenv("CHARGE_ALERT_MIN_SAMPLE", "1")
	f := newTxFixture(t)
	customer := seedCustomer(t, f.db)
	business := seedBusiness(t, f.db, false)

	// Two captures out of two settlements: rate 1.0 over a sample of 2.
	for i, ref := range []string{"hold_x1", "hold_x2"} {
		f.gateway.addHold(ref, HoldStatusCapturable, 2000)
		tr := seedTransaction(t, f.db, business.ID, customer.ID, types.TransactionStatusOpen, 2000, ref)
		if _, err := f.svc.CaptureDeposit(businessCtx(business.ID), tr.ID, CaptureInput{}); err != nil {
			t.Fatalf("capture %d failed: %v", i, err)
		}
	}

	if n := f.countNotifications(t, requestdata.RoleAdmin, adminID, types.NotificationChargeRateExceeded); n != 1 {
		t.Fatalf("expected exactly 1 admin alert, got %d", n)
	}
}

func TestDeleteIntentTransaction_CancelsHoldAndDeletes(t *testing.T) {
	f := newTxFixture(t)
	customer := seedCustomer(t, f.db)
	business := seedBusiness(t, f.db, false)
	f.gateway.addHold("hold_m", HoldStatusCapturable, 2000)
	tr := seedTransaction(t, f.db, business.ID, customer.ID, types.TransactionStatusIntent, 2000, "hold_m")

	if err := f.svc.DeleteIntentTransaction(customerCtx(customer.ID), tr.ID); err != nil {
		t.Fatalf("DeleteIntentTransaction failed: %v", err)
	}
	var n int64
	if err := f.db.Model(&types.Transaction{}).Where("id = ?", tr.ID).Count(&n).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected the intent row to be gone")
	}
	if h := f.gateway.hold("hold_m"); h.status != HoldStatusCanceled {
		t.Fatalf("expected hold canceled, got %s", h.status)
	}
}

func TestDeleteIntentTransaction_OpenTransactionConflicts(t *testing.T) {
	f := newTxFixture(t)
	customer := seedCustomer(t, f.db)
	business := seedBusiness(t, f.db, false)
	f.gateway.addHold("hold_n", HoldStatusCapturable, 2000)
	tr := seedTransaction(t, f.db, business.ID, customer.ID, types.TransactionStatusOpen, 2000, "hold_n")

	err := f.svc.DeleteIntentTransaction(customerCtx(customer.ID), tr.ID)
	if !apierr.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if got := f.mustStatus(t, tr.ID); got != types.TransactionStatusOpen {
		t.Fatalf("expected open, got %s", got)
	}
}
