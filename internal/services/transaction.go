package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/depositly-backend/internal/apierr"
	"github.com/yungbote/depositly-backend/internal/logger"
	"github.com/yungbote/depositly-backend/internal/repos"
	"github.com/yungbote/depositly-backend/internal/requestdata"
	"github.com/yungbote/depositly-backend/internal/types"
	"github.com/yungbote/depositly-backend/internal/utils"
)

type OpenIntentInput struct {
	ItemID      *uuid.UUID
	Amount      int64
	Currency    string
	BusinessID  uuid.UUID
	Description string
}

type OpenIntentResult struct {
	Transaction *types.Transaction `json:"transaction"`
	// ClientAuthToken lets the client finish authorizing the hold with the
	// gateway directly.
	ClientAuthToken string `json:"client_auth_token"`
}

type CaptureInput struct {
	// Amount defaults to the full authorized amount when nil.
	Amount      *int64
	Description string
}

// TransactionService owns the deposit lifecycle:
//
//	intent → open    (ConfirmPayment)
//	intent → deleted (DeleteIntentTransaction)
//	open   → closed  (CloseTransaction, hold released)
//	open   → charged (CaptureDeposit, hold captured up to the held amount)
//
// Status is only advanced after the gateway has confirmed the corresponding
// call, through a conditional update on the previous status, so concurrent
// operations on one transaction resolve to exactly one winner.
type TransactionService interface {
	OpenIntent(ctx context.Context, input OpenIntentInput) (*OpenIntentResult, error)
	ConfirmPayment(ctx context.Context, transactionID uuid.UUID) (*types.Transaction, error)
	CloseTransaction(ctx context.Context, transactionID uuid.UUID) (*types.Transaction, error)
	CaptureDeposit(ctx context.Context, transactionID uuid.UUID, input CaptureInput) (*types.Transaction, error)
	DeleteIntentTransaction(ctx context.Context, transactionID uuid.UUID) error
	Get(ctx context.Context, transactionID uuid.UUID) (*types.Transaction, error)
	List(ctx context.Context) ([]*types.Transaction, error)
}

type transactionService struct {
	db           *gorm.DB
	log          *logger.Logger
	txRepo       repos.TransactionRepo
	itemRepo     repos.ItemRepo
	businessRepo repos.BusinessRepo
	customerRepo repos.CustomerRepo
	gateway      PaymentGateway
	notifier     NotificationService
	rating       RatingService
	locks        *keyedMutex

	chargeAlertThreshold float64
	chargeAlertMinSample int
	adminRecipientID     uuid.UUID
}

func NewTransactionService(
	db *gorm.DB,
	baseLog *logger.Logger,
	txRepo repos.TransactionRepo,
	itemRepo repos.ItemRepo,
	businessRepo repos.BusinessRepo,
	customerRepo repos.CustomerRepo,
	gateway PaymentGateway,
	notifier NotificationService,
	rating RatingService,
) TransactionService {
	log := baseLog.With("service", "TransactionService")
	adminID, _ := uuid.Parse(utils.GetEnv("ADMIN_RECIPIENT_ID", "", log))
	return &transactionService{
		db:                   db,
		log:                  log,
		txRepo:               txRepo,
		itemRepo:             itemRepo,
		businessRepo:         businessRepo,
		customerRepo:         customerRepo,
		gateway:              gateway,
		notifier:             notifier,
		rating:               rating,
		locks:                newKeyedMutex(),
		chargeAlertThreshold: utils.GetEnvAsFloat("CHARGE_ALERT_THRESHOLD", 0.5, log),
		chargeAlertMinSample: utils.GetEnvAsInt("CHARGE_ALERT_MIN_SAMPLE", 5, log),
		adminRecipientID:     adminID,
	}
}

func (ts *transactionService) OpenIntent(ctx context.Context, input OpenIntentInput) (*OpenIntentResult, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.Role != requestdata.RoleCustomer || rd.ActorID == uuid.Nil {
		return nil, apierr.Permission("only a customer can open a deposit")
	}

	amount := input.Amount
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	businessID := input.BusinessID
	description := strings.TrimSpace(input.Description)
	var item *types.Item
	var returnDate *time.Time

	now := time.Now().UTC()

	if input.ItemID != nil {
		var err error
		item, err = ts.itemRepo.GetByID(ctx, nil, *input.ItemID)
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, apierr.NotFound("item not found")
		}
		amount = item.Price
		currency = strings.ToUpper(item.Currency)
		businessID = item.BusinessID
		if description == "" {
			description = item.Title
		}
		retDate, err := resolveReturnDate(item, now)
		if err != nil {
			return nil, err
		}
		returnDate = retDate
	}

	if amount <= 0 {
		return nil, apierr.Validation("deposit amount must be positive")
	}
	if currency == "" {
		return nil, apierr.Validation("missing currency")
	}
	if businessID == uuid.Nil {
		return nil, apierr.Validation("missing business")
	}

	business, err := ts.businessRepo.GetByID(ctx, nil, businessID)
	if err != nil {
		return nil, err
	}
	if business == nil {
		return nil, apierr.NotFound("business not found")
	}
	if business.Suspended {
		return nil, apierr.Conflict("business is suspended")
	}

	customer, err := ts.customerRepo.GetByID(ctx, nil, rd.ActorID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, apierr.NotFound("customer not found")
	}

	hold, err := ts.gateway.CreateHold(ctx, HoldRequest{
		Amount:      amount,
		Currency:    currency,
		CustomerRef: customer.StripeCustomerID,
		AccountRef:  business.StripeAccountID,
	})
	if err != nil {
		return nil, err
	}

	row := &types.Transaction{
		ID:          uuid.New(),
		Amount:      amount,
		Currency:    currency,
		Status:      types.TransactionStatusIntent,
		BusinessID:  businessID,
		CustomerID:  rd.ActorID,
		ItemID:      input.ItemID,
		Description: description,
		OpenedAt:    now,
		ReturnDate:  returnDate,
		HoldRef:     hold.ID,
	}
	if _, err := ts.txRepo.Create(ctx, nil, []*types.Transaction{row}); err != nil {
		return nil, err
	}

	ts.log.Info("Deposit intent opened", "transaction_id", row.ID, "business_id", businessID, "amount", amount, "currency", currency)
	return &OpenIntentResult{Transaction: row, ClientAuthToken: hold.ClientAuthToken}, nil
}

// resolveReturnDate: temporary items carry their own fixed date; everything
// else runs duration × timeUnit from the open time.
func resolveReturnDate(item *types.Item, openedAt time.Time) (*time.Time, error) {
	if item.Temporary {
		return item.ReturnDate, nil
	}
	if item.Duration <= 0 {
		return nil, nil
	}
	var d time.Duration
	switch item.TimeUnit {
	case types.TimeUnitDays:
		if item.Duration > 30 {
			return nil, apierr.Validation("duration in days must be at most 30")
		}
		d = time.Duration(item.Duration) * 24 * time.Hour
	case types.TimeUnitHours:
		if item.Duration > 24 {
			return nil, apierr.Validation("duration in hours must be at most 24")
		}
		d = time.Duration(item.Duration) * time.Hour
	case types.TimeUnitMinutes:
		if item.Duration > 60 {
			return nil, apierr.Validation("duration in minutes must be at most 60")
		}
		d = time.Duration(item.Duration) * time.Minute
	default:
		return nil, apierr.Validation("unknown time unit %q", item.TimeUnit)
	}
	rd := openedAt.Add(d)
	return &rd, nil
}

func (ts *transactionService) ConfirmPayment(ctx context.Context, transactionID uuid.UUID) (*types.Transaction, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.Role != requestdata.RoleCustomer {
		return nil, apierr.Permission("only the customer can confirm a deposit")
	}

	unlock := ts.locks.Lock(transactionID)
	defer unlock()

	tr, err := ts.loadOwned(ctx, transactionID, rd)
	if err != nil {
		return nil, err
	}
	if tr.Status != types.TransactionStatusIntent {
		return nil, apierr.Conflict("transaction is %s, expected intent", tr.Status)
	}

	business, err := ts.businessRepo.GetByID(ctx, nil, tr.BusinessID)
	if err != nil {
		return nil, err
	}
	if business == nil {
		return nil, apierr.NotFound("business not found")
	}

	state, err := ts.gateway.RetrieveHold(ctx, business.StripeAccountID, tr.HoldRef)
	if err != nil {
		return nil, err
	}
	if state.Status != HoldStatusCapturable {
		// Client has not finished SCA yet; retry once authorization is done.
		return nil, apierr.Gateway(fmt.Errorf("hold %s is not capturable yet (%s)", tr.HoldRef, state.Status))
	}

	err = ts.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		moved, err := ts.txRepo.AdvanceStatus(ctx, tx, tr.ID, types.TransactionStatusIntent, map[string]interface{}{
			"status": types.TransactionStatusOpen,
		})
		if err != nil {
			return err
		}
		if moved == 0 {
			return apierr.Conflict("transaction already advanced")
		}
		// Single-use semantics: the temporary item dies with its confirmation.
		if tr.ItemID != nil {
			item, err := ts.itemRepo.GetByID(ctx, tx, *tr.ItemID)
			if err != nil {
				return err
			}
			if item != nil && item.Temporary {
				if err := ts.itemRepo.Delete(ctx, tx, item.ID); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	tr.Status = types.TransactionStatusOpen

	ts.publish(ctx, requestdata.RoleBusiness, tr.BusinessID, types.NotificationTransactionOpened,
		"A new deposit was opened with you", tr)

	ts.log.Info("Deposit confirmed", "transaction_id", tr.ID, "business_id", tr.BusinessID)
	return tr, nil
}

func (ts *transactionService) CloseTransaction(ctx context.Context, transactionID uuid.UUID) (*types.Transaction, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.Role != requestdata.RoleBusiness {
		return nil, apierr.Permission("only the business can close a deposit")
	}

	unlock := ts.locks.Lock(transactionID)
	defer unlock()

	tr, err := ts.loadOwned(ctx, transactionID, rd)
	if err != nil {
		return nil, err
	}
	if tr.Status != types.TransactionStatusOpen {
		return nil, apierr.Conflict("transaction is %s, expected open", tr.Status)
	}

	business, err := ts.businessRepo.GetByID(ctx, nil, tr.BusinessID)
	if err != nil {
		return nil, err
	}
	if business == nil {
		return nil, apierr.NotFound("business not found")
	}

	// Re-check gateway state before mutating so a retry after a partial
	// failure never cancels twice.
	state, err := ts.gateway.RetrieveHold(ctx, business.StripeAccountID, tr.HoldRef)
	if err != nil {
		return nil, err
	}
	switch state.Status {
	case HoldStatusCanceled:
		// Hold already released on a previous attempt; just settle locally.
	case HoldStatusCapturable:
		if err := ts.gateway.Cancel(ctx, business.StripeAccountID, tr.HoldRef); err != nil {
			return nil, err
		}
	default:
		return nil, apierr.Conflict("hold %s cannot be released from state %s", tr.HoldRef, state.Status)
	}

	now := time.Now().UTC()
	moved, err := ts.txRepo.AdvanceStatus(ctx, nil, tr.ID, types.TransactionStatusOpen, map[string]interface{}{
		"status":    types.TransactionStatusClosed,
		"closed_at": now,
	})
	if err != nil {
		return nil, err
	}
	if moved == 0 {
		return nil, apierr.Conflict("transaction already advanced")
	}
	tr.Status = types.TransactionStatusClosed
	tr.ClosedAt = &now

	if _, err := ts.rating.RecordOutcome(ctx, tr.BusinessID, false); err != nil {
		ts.log.Warn("Failed to fold released deposit into rating", "transaction_id", tr.ID, "error", err)
	}

	ts.publish(ctx, requestdata.RoleCustomer, tr.CustomerID, types.NotificationDepositReleased,
		"Your deposit was released in full", tr)

	ts.log.Info("Deposit released", "transaction_id", tr.ID, "business_id", tr.BusinessID)
	return tr, nil
}

func (ts *transactionService) CaptureDeposit(ctx context.Context, transactionID uuid.UUID, input CaptureInput) (*types.Transaction, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.Role != requestdata.RoleBusiness {
		return nil, apierr.Permission("only the business can capture a deposit")
	}

	unlock := ts.locks.Lock(transactionID)
	defer unlock()

	tr, err := ts.loadOwned(ctx, transactionID, rd)
	if err != nil {
		return nil, err
	}
	if tr.Status != types.TransactionStatusOpen {
		return nil, apierr.Conflict("transaction is %s, expected open", tr.Status)
	}

	amount := tr.Amount
	if input.Amount != nil {
		amount = *input.Amount
	}
	if amount <= 0 {
		return nil, apierr.Validation("capture amount must be positive")
	}
	if amount > tr.Amount {
		return nil, apierr.Validation("capture amount %d exceeds authorized amount %d", amount, tr.Amount)
	}

	business, err := ts.businessRepo.GetByID(ctx, nil, tr.BusinessID)
	if err != nil {
		return nil, err
	}
	if business == nil {
		return nil, apierr.NotFound("business not found")
	}

	state, err := ts.gateway.RetrieveHold(ctx, business.StripeAccountID, tr.HoldRef)
	if err != nil {
		return nil, err
	}
	switch state.Status {
	case HoldStatusCaptured:
		// Captured on a previous attempt that failed before persisting;
		// settle locally with what the gateway actually took, which may
		// differ from what this retry asked for.
		if state.Captured > 0 {
			amount = state.Captured
		}
	case HoldStatusCapturable:
		if _, err := ts.gateway.Capture(ctx, business.StripeAccountID, tr.HoldRef, amount); err != nil {
			return nil, err
		}
	default:
		return nil, apierr.Conflict("hold %s cannot be captured from state %s", tr.HoldRef, state.Status)
	}

	now := time.Now().UTC()
	moved, err := ts.txRepo.AdvanceStatus(ctx, nil, tr.ID, types.TransactionStatusOpen, map[string]interface{}{
		"status":              types.TransactionStatusCharged,
		"charged":             amount,
		"charged_description": strings.TrimSpace(input.Description),
		"closed_at":           now,
	})
	if err != nil {
		return nil, err
	}
	if moved == 0 {
		return nil, apierr.Conflict("transaction already advanced")
	}
	tr.Status = types.TransactionStatusCharged
	tr.Charged = &amount
	tr.ChargedDescription = strings.TrimSpace(input.Description)
	tr.ClosedAt = &now

	stats, err := ts.rating.RecordOutcome(ctx, tr.BusinessID, true)
	if err != nil {
		ts.log.Warn("Failed to fold charge into rating", "transaction_id", tr.ID, "error", err)
	} else if stats.Rate > ts.chargeAlertThreshold && stats.QualifyingCount > ts.chargeAlertMinSample {
		ts.publish(ctx, requestdata.RoleAdmin, ts.adminRecipientID, types.NotificationChargeRateExceeded,
			fmt.Sprintf("Business %s charge rate is %.0f%% over %d transactions", tr.BusinessID, stats.Rate*100, stats.QualifyingCount),
			map[string]any{"business_id": tr.BusinessID, "rate": stats.Rate, "qualifying_count": stats.QualifyingCount})
	}

	ts.publish(ctx, requestdata.RoleCustomer, tr.CustomerID, types.NotificationDepositCharged,
		fmt.Sprintf("Your deposit was charged %d %s", amount, tr.Currency), tr)

	ts.log.Info("Deposit captured", "transaction_id", tr.ID, "business_id", tr.BusinessID, "charged", amount)
	return tr, nil
}

func (ts *transactionService) DeleteIntentTransaction(ctx context.Context, transactionID uuid.UUID) error {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.Role != requestdata.RoleCustomer {
		return apierr.Permission("only the customer can delete a deposit intent")
	}

	unlock := ts.locks.Lock(transactionID)
	defer unlock()

	tr, err := ts.loadOwned(ctx, transactionID, rd)
	if err != nil {
		return err
	}
	if tr.Status != types.TransactionStatusIntent {
		return apierr.Conflict("transaction is %s, expected intent", tr.Status)
	}

	business, err := ts.businessRepo.GetByID(ctx, nil, tr.BusinessID)
	if err != nil {
		return err
	}
	if business != nil {
		state, err := ts.gateway.RetrieveHold(ctx, business.StripeAccountID, tr.HoldRef)
		if err != nil {
			return err
		}
		if state.Status == HoldStatusPending || state.Status == HoldStatusCapturable {
			if err := ts.gateway.Cancel(ctx, business.StripeAccountID, tr.HoldRef); err != nil {
				return err
			}
		}
	}

	return ts.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deleted, err := ts.txRepo.DeleteIfStatus(ctx, tx, tr.ID, types.TransactionStatusIntent)
		if err != nil {
			return err
		}
		if deleted == 0 {
			return apierr.Conflict("transaction already advanced")
		}
		if tr.ItemID != nil {
			item, err := ts.itemRepo.GetByID(ctx, tx, *tr.ItemID)
			if err != nil {
				return err
			}
			if item != nil && item.Temporary {
				if err := ts.itemRepo.Delete(ctx, tx, item.ID); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (ts *transactionService) Get(ctx context.Context, transactionID uuid.UUID) (*types.Transaction, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil {
		return nil, apierr.Permission("unauthenticated")
	}
	return ts.loadOwned(ctx, transactionID, rd)
}

func (ts *transactionService) List(ctx context.Context) ([]*types.Transaction, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil {
		return nil, apierr.Permission("unauthenticated")
	}
	switch rd.Role {
	case requestdata.RoleCustomer:
		return ts.txRepo.ListByCustomer(ctx, nil, rd.ActorID)
	case requestdata.RoleBusiness:
		return ts.txRepo.ListByBusiness(ctx, nil, rd.ActorID)
	default:
		return nil, apierr.Permission("unsupported role %q", rd.Role)
	}
}

// loadOwned fetches the transaction and checks the actor is a party to it:
// the owning customer for customer actors, the owning business for business
// actors.
func (ts *transactionService) loadOwned(ctx context.Context, transactionID uuid.UUID, rd *requestdata.RequestData) (*types.Transaction, error) {
	tr, err := ts.txRepo.GetByID(ctx, nil, transactionID)
	if err != nil {
		return nil, err
	}
	if tr == nil {
		return nil, apierr.NotFound("transaction not found")
	}
	switch rd.Role {
	case requestdata.RoleCustomer:
		if tr.CustomerID != rd.ActorID {
			return nil, apierr.Permission("transaction belongs to another customer")
		}
	case requestdata.RoleBusiness:
		if tr.BusinessID != rd.ActorID {
			return nil, apierr.Permission("transaction belongs to another business")
		}
	case requestdata.RoleAdmin:
		// admins read everything
	default:
		return nil, apierr.Permission("unsupported role %q", rd.Role)
	}
	return tr, nil
}

// publish is fire-and-forget: notification failures never fail the lifecycle
// operation that triggered them.
func (ts *transactionService) publish(ctx context.Context, role requestdata.Role, recipientID uuid.UUID, ntype types.NotificationType, content string, data any) {
	if ts.notifier == nil {
		return
	}
	payload := map[string]any{}
	switch v := data.(type) {
	case *types.Transaction:
		payload["transaction_id"] = v.ID
		payload["status"] = v.Status
		payload["amount"] = v.Amount
		payload["currency"] = v.Currency
		if v.Charged != nil {
			payload["charged"] = *v.Charged
		}
	case map[string]any:
		payload = v
	}
	if err := ts.notifier.Publish(ctx, role, recipientID, ntype, content, payload); err != nil {
		ts.log.Warn("Failed to publish notification", "type", ntype, "recipient_id", recipientID, "error", err)
	}
}
