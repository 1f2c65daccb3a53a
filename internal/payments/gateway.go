// Package payments turns the financial penalty of a failed commitment into a
// charge on the user's saved payment method and a payout to the charity.
package payments

import (
	"context"
	"errors"
)

// ErrPaymentMethodNotAttached is returned when a payment method does not
// belong to the customer it is saved for.
var ErrPaymentMethodNotAttached = errors.New("payment method is not attached to the customer")

// Outcome is how the gateway resolved a charge.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeRefunded  Outcome = "refunded"
	// OutcomePending is reported by ChargeStatus while the processor is
	// still working on the charge.
	OutcomePending Outcome = "pending"
)

type ChargeRequest struct {
	AmountMinor     int64
	Currency        string
	CustomerRef     string
	PaymentMethodID string
	// IdempotencyKey makes a retried request return the original charge.
	IdempotencyKey string
	Metadata       map[string]string
}

type TransferRequest struct {
	AmountMinor    int64
	Currency       string
	Destination    string
	IdempotencyKey string
	Metadata       map[string]string
}

// Gateway is the external payment processor. CreateCharge and Transfer
// return the processor's reference for the created object.
type Gateway interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (string, error)
	Transfer(ctx context.Context, req TransferRequest) (string, error)
	// ChargeStatus reads the current outcome of a charge. The reason is set
	// for failed charges.
	ChargeStatus(ctx context.Context, ref string) (Outcome, string, error)
	VerifyPaymentMethod(ctx context.Context, customerRef, paymentMethodID string) error
}
