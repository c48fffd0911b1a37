package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/paymentintent"

	"github.com/yungbote/depositly-backend/internal/apierr"
	"github.com/yungbote/depositly-backend/internal/logger"
	"github.com/yungbote/depositly-backend/internal/utils"
)

// stripeGateway holds deposits as manual-capture PaymentIntents created
// directly on the business's connected account.
type stripeGateway struct {
	log *logger.Logger
}

func NewStripeGateway(log *logger.Logger) (PaymentGateway, error) {
	key := utils.GetEnv("STRIPE_SECRET_KEY", "", log)
	if key == "" {
		return nil, fmt.Errorf("missing STRIPE_SECRET_KEY")
	}
	stripe.Key = key
	return &stripeGateway{log: log.With("service", "StripeGateway")}, nil
}

func (g *stripeGateway) CreateHold(ctx context.Context, req HoldRequest) (*Hold, error) {
	if req.Amount <= 0 {
		return nil, apierr.Validation("hold amount must be positive")
	}
	if req.AccountRef == "" {
		return nil, apierr.Validation("missing connected account ref")
	}
	params := &stripe.PaymentIntentParams{
		Params: stripe.Params{
			Context: ctx,
		},
		Amount:             stripe.Int64(req.Amount),
		Currency:           stripe.String(strings.ToLower(req.Currency)),
		CaptureMethod:      stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	if req.CustomerRef != "" {
		params.Customer = stripe.String(req.CustomerRef)
	}
	params.SetStripeAccount(req.AccountRef)

	pi, err := paymentintent.New(params)
	if err != nil {
		g.log.Warn("Stripe hold creation failed", "error", err)
		return nil, gatewayErr(err)
	}
	return &Hold{ID: pi.ID, ClientAuthToken: pi.ClientSecret}, nil
}

func (g *stripeGateway) RetrieveHold(ctx context.Context, accountRef, holdID string) (*HoldState, error) {
	params := &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	}
	params.SetStripeAccount(accountRef)
	pi, err := paymentintent.Get(holdID, params)
	if err != nil {
		return nil, gatewayErr(err)
	}
	return &HoldState{
		Status:   mapIntentStatus(pi.Status),
		Captured: pi.AmountReceived,
	}, nil
}

func (g *stripeGateway) Capture(ctx context.Context, accountRef, holdID string, amount int64) (*Receipt, error) {
	params := &stripe.PaymentIntentCaptureParams{
		Params:          stripe.Params{Context: ctx},
		AmountToCapture: stripe.Int64(amount),
	}
	params.SetStripeAccount(accountRef)
	pi, err := paymentintent.Capture(holdID, params)
	if err != nil {
		g.log.Warn("Stripe capture failed", "hold_id", holdID, "error", err)
		return nil, gatewayErr(err)
	}
	return &Receipt{HoldID: pi.ID, Captured: pi.AmountReceived}, nil
}

func (g *stripeGateway) Cancel(ctx context.Context, accountRef, holdID string) error {
	params := &stripe.PaymentIntentCancelParams{
		Params: stripe.Params{Context: ctx},
	}
	params.SetStripeAccount(accountRef)
	if _, err := paymentintent.Cancel(holdID, params); err != nil {
		g.log.Warn("Stripe cancel failed", "hold_id", holdID, "error", err)
		return gatewayErr(err)
	}
	return nil
}

func mapIntentStatus(status stripe.PaymentIntentStatus) HoldStatus {
	switch status {
	case stripe.PaymentIntentStatusRequiresCapture:
		return HoldStatusCapturable
	case stripe.PaymentIntentStatusSucceeded:
		return HoldStatusCaptured
	case stripe.PaymentIntentStatusCanceled:
		return HoldStatusCanceled
	default:
		return HoldStatusPending
	}
}

func gatewayErr(err error) error {
	return apierr.Gateway(fmt.Errorf("stripe: %w", err))
}
