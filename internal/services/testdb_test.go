package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yungbote/depositly-backend/internal/apierr"
	"github.com/yungbote/depositly-backend/internal/logger"
	"github.com/yungbote/depositly-backend/internal/requestdata"
	"github.com/yungbote/depositly-backend/internal/types"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("failed to init test logger: %v", err)
	}
	return log
}

// Postgres defaults like uuid_generate_v4() do not exist on sqlite, so the
// test schema is written out by hand. Services set ids and timestamps
// explicitly, nothing relies on column defaults.
var testSchema = []string{
	`CREATE TABLE "customer" (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		first_name TEXT,
		last_name TEXT,
		stripe_customer_id TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE "business" (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		suspended BOOLEAN NOT NULL DEFAULT 0,
		stripe_account_id TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE "item" (
		id TEXT PRIMARY KEY,
		business_id TEXT NOT NULL,
		title TEXT NOT NULL,
		price INTEGER NOT NULL,
		currency TEXT NOT NULL,
		duration INTEGER,
		time_unit TEXT,
		temporary BOOLEAN NOT NULL DEFAULT 0,
		return_date DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE "transaction" (
		id TEXT PRIMARY KEY,
		amount INTEGER NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		business_id TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		item_id TEXT,
		description TEXT,
		opened_at DATETIME NOT NULL,
		return_date DATETIME,
		closed_at DATETIME,
		charged INTEGER,
		charged_description TEXT,
		hold_ref TEXT NOT NULL,
		review_id TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE "review" (
		id TEXT PRIMARY KEY,
		business_id TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		transaction_id TEXT NOT NULL UNIQUE,
		content TEXT NOT NULL,
		quality REAL NOT NULL DEFAULT 0,
		reliability REAL NOT NULL DEFAULT 0,
		price REAL NOT NULL DEFAULT 0,
		overall REAL NOT NULL DEFAULT 0,
		images TEXT,
		scored_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE "business_rating" (
		business_id TEXT PRIMARY KEY,
		overall REAL NOT NULL DEFAULT 5,
		quality REAL NOT NULL DEFAULT 0,
		reliability REAL NOT NULL DEFAULT 0,
		price REAL NOT NULL DEFAULT 0,
		review_overall REAL NOT NULL DEFAULT 0,
		charged_score REAL NOT NULL DEFAULT 5,
		review_count INTEGER NOT NULL DEFAULT 0,
		quality_count INTEGER NOT NULL DEFAULT 0,
		reliability_count INTEGER NOT NULL DEFAULT 0,
		price_count INTEGER NOT NULL DEFAULT 0,
		charged_count INTEGER NOT NULL DEFAULT 0,
		qualifying_count INTEGER NOT NULL DEFAULT 0,
		insights TEXT,
		review_summary TEXT,
		updated_at DATETIME
	)`,
	`CREATE TABLE "notification" (
		id TEXT PRIMARY KEY,
		recipient_role TEXT NOT NULL,
		recipient_id TEXT NOT NULL,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		data TEXT,
		"read" BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME
	)`,
}

func mustTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	// One shared in-memory db, serialized access.
	sqlDB.SetMaxOpenConns(1)
	for _, ddl := range testSchema {
		if err := db.Exec(ddl).Error; err != nil {
			t.Fatalf("failed to create test schema: %v", err)
		}
	}
	return db
}

func customerCtx(id uuid.UUID) context.Context {
	return requestdata.WithRequestData(context.Background(), &requestdata.RequestData{
		Role:    requestdata.RoleCustomer,
		ActorID: id,
	})
}

func businessCtx(id uuid.UUID) context.Context {
	return requestdata.WithRequestData(context.Background(), &requestdata.RequestData{
		Role:    requestdata.RoleBusiness,
		ActorID: id,
	})
}

func seedCustomer(t *testing.T, db *gorm.DB) *types.Customer {
	t.Helper()
	row := &types.Customer{
		ID:               uuid.New(),
		Email:            fmt.Sprintf("%s@example.com", uuid.NewString()[:8]),
		FirstName:        "Test",
		LastName:         "Customer",
		StripeCustomerID: "cus_test",
	}
	if err := db.Create(row).Error; err != nil {
		t.Fatalf("failed to seed customer: %v", err)
	}
	return row
}

func seedBusiness(t *testing.T, db *gorm.DB, suspended bool) *types.Business {
	t.Helper()
	row := &types.Business{
		ID:              uuid.New(),
		Name:            "Test Business",
		Email:           fmt.Sprintf("%s@example.com", uuid.NewString()[:8]),
		Suspended:       suspended,
		StripeAccountID: "acct_test",
	}
	if err := db.Create(row).Error; err != nil {
		t.Fatalf("failed to seed business: %v", err)
	}
	return row
}

func seedTransaction(t *testing.T, db *gorm.DB, businessID, customerID uuid.UUID, status types.TransactionStatus, amount int64, holdRef string) *types.Transaction {
	t.Helper()
	row := &types.Transaction{
		ID:         uuid.New(),
		Amount:     amount,
		Currency:   "USD",
		Status:     status,
		BusinessID: businessID,
		CustomerID: customerID,
		OpenedAt:   time.Now().UTC(),
		HoldRef:    holdRef,
	}
	if err := db.Create(row).Error; err != nil {
		t.Fatalf("failed to seed transaction: %v", err)
	}
	return row
}

// fakeGateway is an in-memory stand-in for the payment provider. Every call is
// counted so tests can assert at-most-once semantics.
type fakeGateway struct {
	mu    sync.Mutex
	holds map[string]*fakeHold

	failCapture bool
	failCancel  bool
}

type fakeHold struct {
	status         HoldStatus
	amount         int64
	capturedAmount int64
	captureCalls   int
	cancelCalls    int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{holds: map[string]*fakeHold{}}
}

func (g *fakeGateway) addHold(ref string, status HoldStatus, amount int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.holds[ref] = &fakeHold{status: status, amount: amount}
}

func (g *fakeGateway) hold(ref string) *fakeHold {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.holds[ref]
}

func (g *fakeGateway) CreateHold(ctx context.Context, req HoldRequest) (*Hold, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ref := "hold_" + uuid.NewString()
	g.holds[ref] = &fakeHold{status: HoldStatusCapturable, amount: req.Amount}
	return &Hold{ID: ref, ClientAuthToken: "secret_" + ref}, nil
}

func (g *fakeGateway) RetrieveHold(ctx context.Context, accountRef, holdID string) (*HoldState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.holds[holdID]
	if !ok {
		return nil, apierr.Gateway(fmt.Errorf("unknown hold %s", holdID))
	}
	return &HoldState{Status: h.status, Captured: h.capturedAmount}, nil
}

func (g *fakeGateway) Capture(ctx context.Context, accountRef, holdID string, amount int64) (*Receipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.holds[holdID]
	if !ok {
		return nil, apierr.Gateway(fmt.Errorf("unknown hold %s", holdID))
	}
	h.captureCalls++
	if g.failCapture {
		return nil, apierr.Gateway(fmt.Errorf("capture refused"))
	}
	if h.status != HoldStatusCapturable {
		return nil, apierr.Gateway(fmt.Errorf("hold %s not capturable", holdID))
	}
	h.status = HoldStatusCaptured
	h.capturedAmount = amount
	return &Receipt{HoldID: holdID, Captured: amount}, nil
}

func (g *fakeGateway) Cancel(ctx context.Context, accountRef, holdID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.holds[holdID]
	if !ok {
		return apierr.Gateway(fmt.Errorf("unknown hold %s", holdID))
	}
	h.cancelCalls++
	if g.failCancel {
		return apierr.Gateway(fmt.Errorf("cancel refused"))
	}
	if h.status != HoldStatusCapturable && h.status != HoldStatusPending {
		return apierr.Gateway(fmt.Errorf("hold %s not cancelable", holdID))
	}
	h.status = HoldStatusCanceled
	return nil
}
