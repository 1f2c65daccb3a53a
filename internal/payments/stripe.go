package payments

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeGateway charges saved cards off-session with PaymentIntents and pays
// charities out through Connect transfers.
type StripeGateway struct {
	sc *client.API
}

var _ Gateway = (*StripeGateway)(nil)

func NewStripeGateway(secretKey string) *StripeGateway {
	return &StripeGateway{sc: client.New(secretKey, nil)}
}

func (g *StripeGateway) CreateCharge(ctx context.Context, req ChargeRequest) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.AmountMinor),
		Currency:      stripe.String(req.Currency),
		Customer:      stripe.String(req.CustomerRef),
		PaymentMethod: stripe.String(req.PaymentMethodID),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	pi, err := g.sc.PaymentIntents.New(params)
	if err != nil {
		return "", fmt.Errorf("create payment intent: %w", err)
	}
	return pi.ID, nil
}

func (g *StripeGateway) Transfer(ctx context.Context, req TransferRequest) (string, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(req.AmountMinor),
		Currency:    stripe.String(req.Currency),
		Destination: stripe.String(req.Destination),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	tr, err := g.sc.Transfers.New(params)
	if err != nil {
		return "", fmt.Errorf("create transfer: %w", err)
	}
	return tr.ID, nil
}

func (g *StripeGateway) ChargeStatus(ctx context.Context, ref string) (Outcome, string, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.sc.PaymentIntents.Get(ref, params)
	if err != nil {
		return "", "", fmt.Errorf("get payment intent %s: %w", ref, err)
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return OutcomeSucceeded, "", nil
	case stripe.PaymentIntentStatusCanceled, stripe.PaymentIntentStatusRequiresPaymentMethod:
		reason := string(pi.Status)
		if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
			reason = pi.LastPaymentError.Msg
		}
		return OutcomeFailed, reason, nil
	}
	return OutcomePending, "", nil
}

// VerifyPaymentMethod checks that the payment method exists and is attached
// to the customer, so later off-session charges can use it.
func (g *StripeGateway) VerifyPaymentMethod(ctx context.Context, customerRef, paymentMethodID string) error {
	params := &stripe.PaymentMethodParams{}
	params.Context = ctx
	pm, err := g.sc.PaymentMethods.Get(paymentMethodID, params)
	if err != nil {
		return fmt.Errorf("get payment method %s: %w", paymentMethodID, err)
	}
	if pm.Customer == nil || pm.Customer.ID != customerRef {
		return ErrPaymentMethodNotAttached
	}
	return nil
}
