package services

import "context"

type HoldStatus string

const (
	// HoldStatusPending: the customer has not finished authorizing yet
	// (3-D Secure / SCA still outstanding).
	HoldStatusPending HoldStatus = "pending"
	// HoldStatusCapturable: funds are reserved and can be captured or
	// released.
	HoldStatusCapturable HoldStatus = "capturable"
	HoldStatusCaptured   HoldStatus = "captured"
	HoldStatusCanceled   HoldStatus = "canceled"
)

type HoldRequest struct {
	Amount      int64
	Currency    string
	CustomerRef string
	// AccountRef is the business's connected merchant account.
	AccountRef string
}

type Hold struct {
	ID string
	// ClientAuthToken is handed to the client so it can complete the
	// authorization against the gateway directly.
	ClientAuthToken string
}

type Receipt struct {
	HoldID   string
	Captured int64
}

// HoldState is the gateway's current view of a hold: its lifecycle status
// and, once captured, the amount the gateway actually took. Recovery paths
// settle with Captured rather than whatever the retrying request asked for.
type HoldState struct {
	Status   HoldStatus
	Captured int64
}

// PaymentGateway is the narrow surface the escrow manager drives. Every
// implementation must treat Capture and Cancel as non-idempotent: callers
// re-check RetrieveHold before re-issuing after a partial failure.
type PaymentGateway interface {
	CreateHold(ctx context.Context, req HoldRequest) (*Hold, error)
	RetrieveHold(ctx context.Context, accountRef, holdID string) (*HoldState, error)
	Capture(ctx context.Context, accountRef, holdID string, amount int64) (*Receipt, error)
	Cancel(ctx context.Context, accountRef, holdID string) error
}
