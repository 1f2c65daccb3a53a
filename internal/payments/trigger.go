package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/redemption/backend/internal/apperr"
	"github.com/redemption/backend/internal/metrics"
	"github.com/redemption/backend/internal/models"
	"github.com/redemption/backend/internal/repository"
)

// Payment event labels.
const (
	EventChargeCreated   = "charge_created"
	EventChargeRejected  = "charge_rejected"
	EventChargeSucceeded = "charge_succeeded"
	EventChargeFailed    = "charge_failed"
	EventChargeRefunded  = "charge_refunded"
	EventPayoutSent      = "payout_sent"
	EventUnknownRef      = "unknown_reference"
)

// ErrUnknownReference is returned by ResolveCharge when no donation carries
// the gateway reference. The callback may have overtaken the commit of the
// relapse that created the charge, so callers should let it be redelivered.
var ErrUnknownReference = errors.New("unknown gateway reference")

// Store is implemented by repository.DonationRepo.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, tx pgx.Tx, d *models.Donation) error
	Update(ctx context.Context, tx pgx.Tx, d *models.Donation) error
	GetByGatewayRefForUpdate(ctx context.Context, tx pgx.Tx, ref string) (*models.Donation, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Donation, error)
	RecordTransfer(ctx context.Context, id uuid.UUID, transferRef string, at time.Time) error
	GetCharity(ctx context.Context, id int64) (*models.Charity, error)
	GetPaymentProfile(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.PaymentProfile, error)
	// ListStaleProcessing returns PROCESSING donations last touched before
	// the cutoff, oldest first.
	ListStaleProcessing(ctx context.Context, before time.Time, limit int) ([]*models.Donation, error)
}

// CommitmentUpdater applies a resolved charge to its commitment inside tx.
// It is implemented by commitments.Engine.
type CommitmentUpdater interface {
	ApplyChargeOutcome(ctx context.Context, tx pgx.Tx, commitmentID uuid.UUID, paid bool, at time.Time) error
}

// PayoutEnqueuer schedules the charity payout of a completed donation.
type PayoutEnqueuer interface {
	EnqueuePayout(ctx context.Context, tx pgx.Tx, donationID uuid.UUID) error
}

// Trigger records donations and drives them through the gateway. Commitments
// and Payouts are wired after construction because both depend on the
// Trigger themselves.
type Trigger struct {
	store    Store
	gateway  Gateway
	currency string
	metrics  *metrics.Metrics
	log      *slog.Logger

	Commitments CommitmentUpdater
	Payouts     PayoutEnqueuer
	Now         func() time.Time

	// ReconcileAfter is how long a charge may stay PROCESSING before
	// ReconcileCharges asks the gateway about it.
	ReconcileAfter time.Duration
	ReconcileBatch int
}

func NewTrigger(store Store, gateway Gateway, currency string, m *metrics.Metrics, log *slog.Logger) *Trigger {
	if log == nil {
		log = slog.Default()
	}
	return &Trigger{
		store:    store,
		gateway:  gateway,
		currency: currency,
		metrics:  m,
		log:      log,
		Now:      time.Now,

		ReconcileAfter: 15 * time.Minute,
		ReconcileBatch: 100,
	}
}

func (t *Trigger) now() time.Time { return t.Now().UTC() }

// CheckCharity fails unless the charity exists and can receive payouts.
func (t *Trigger) CheckCharity(ctx context.Context, charityID int64) error {
	ch, err := t.store.GetCharity(ctx, charityID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.Validation("charity %d does not exist", charityID)
	}
	if err != nil {
		return err
	}
	if !ch.IsActive || ch.PayoutAccount == "" {
		return apperr.Validation("charity %q is not accepting donations", ch.Name)
	}
	return nil
}

// ChargeForFailure records a PENDING donation for c and creates the charge,
// moving the donation to PROCESSING. It returns once the gateway accepted the
// charge; the outcome arrives later through ResolveCharge.
func (t *Trigger) ChargeForFailure(ctx context.Context, tx pgx.Tx, c *models.Commitment) (*models.Donation, error) {
	if c.FinancialAmount == nil || c.CharityID == nil {
		return nil, fmt.Errorf("commitment %s has no financial penalty", c.ID)
	}
	profile, err := t.store.GetPaymentProfile(ctx, tx, c.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Validation("a saved payment method is required before reporting a relapse on a %s commitment", c.Type)
	}
	if err != nil {
		return nil, err
	}

	d := &models.Donation{
		ID:           uuid.New(),
		CommitmentID: c.ID,
		UserID:       c.UserID,
		CharityID:    *c.CharityID,
		AmountMinor:  *c.FinancialAmount,
		Currency:     t.currency,
		Status:       models.DonationStatusPending,
	}
	if err := t.store.Create(ctx, tx, d); err != nil {
		return nil, err
	}

	ref, err := t.gateway.CreateCharge(ctx, ChargeRequest{
		AmountMinor:     d.AmountMinor,
		Currency:        d.Currency,
		CustomerRef:     profile.CustomerRef,
		PaymentMethodID: profile.PaymentMethodID,
		IdempotencyKey:  d.ID.String(),
		Metadata: map[string]string{
			"donation_id":   d.ID.String(),
			"commitment_id": c.ID.String(),
			"user_id":       c.UserID.String(),
			"charity_id":    strconv.FormatInt(d.CharityID, 10),
		},
	})
	if err != nil {
		t.metrics.PaymentEvent(EventChargeRejected)
		t.log.Warn("charge rejected", "commitment_id", c.ID, "donation_id", d.ID, "error", err)
		return nil, apperr.Dependency(err, "payment gateway rejected the charge")
	}

	d.Status = models.DonationStatusProcessing
	d.GatewayRef = &ref
	if err := t.store.Update(ctx, tx, d); err != nil {
		return nil, err
	}
	t.metrics.PaymentEvent(EventChargeCreated)
	t.log.Info("charge created", "commitment_id", c.ID, "donation_id", d.ID, "gateway_ref", ref)
	return d, nil
}

// ResolveCharge applies a gateway callback. Callbacks are delivered at least
// once and possibly out of order, so a donation that cannot move to the new
// status is left alone. An unknown reference fails with ErrUnknownReference.
func (t *Trigger) ResolveCharge(ctx context.Context, ref string, outcome Outcome, reason string) error {
	tx, err := t.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	d, err := t.store.GetByGatewayRefForUpdate(ctx, tx, ref)
	if errors.Is(err, repository.ErrNotFound) {
		t.metrics.PaymentEvent(EventUnknownRef)
		t.log.Warn("charge callback for unknown reference", "gateway_ref", ref, "outcome", outcome)
		return fmt.Errorf("%w: %s", ErrUnknownReference, ref)
	}
	if err != nil {
		return err
	}

	var next models.DonationStatus
	var event string
	switch outcome {
	case OutcomeSucceeded:
		next, event = models.DonationStatusCompleted, EventChargeSucceeded
	case OutcomeFailed:
		next, event = models.DonationStatusFailed, EventChargeFailed
	case OutcomeRefunded:
		next, event = models.DonationStatusRefunded, EventChargeRefunded
	default:
		return fmt.Errorf("unknown charge outcome %q", outcome)
	}
	if !d.Status.CanMoveTo(next) {
		t.log.Info("charge callback ignored", "donation_id", d.ID, "status", d.Status, "outcome", outcome)
		return nil
	}

	now := t.now()
	d.Status = next
	if next != models.DonationStatusRefunded {
		d.ResolvedAt = &now
	}
	if next == models.DonationStatusFailed && reason != "" {
		d.FailureReason = &reason
	}
	if err := t.store.Update(ctx, tx, d); err != nil {
		return err
	}

	if next != models.DonationStatusRefunded && t.Commitments != nil {
		if err := t.Commitments.ApplyChargeOutcome(ctx, tx, d.CommitmentID, next == models.DonationStatusCompleted, now); err != nil {
			return fmt.Errorf("apply charge outcome to commitment %s: %w", d.CommitmentID, err)
		}
	}
	if next == models.DonationStatusCompleted {
		t.enqueuePayout(ctx, tx, d)
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	t.metrics.PaymentEvent(event)
	t.log.Info("charge resolved", "donation_id", d.ID, "commitment_id", d.CommitmentID, "status", d.Status)
	return nil
}

// ReconcileReport summarizes one ReconcileCharges pass.
type ReconcileReport struct {
	Checked  int `json:"checked"`
	Resolved int `json:"resolved"`
	Pending  int `json:"pending"`
	Errors   int `json:"errors"`
}

// ReconcileCharges asks the gateway about charges that stayed PROCESSING
// longer than ReconcileAfter and applies any final outcome through
// ResolveCharge. It recovers callbacks that were lost or gave up retrying.
// A failure on one donation is counted and the pass moves on.
func (t *Trigger) ReconcileCharges(ctx context.Context) (*ReconcileReport, error) {
	stale, err := t.store.ListStaleProcessing(ctx, t.now().Add(-t.ReconcileAfter), t.ReconcileBatch)
	if err != nil {
		return nil, fmt.Errorf("list stale charges: %w", err)
	}
	rep := &ReconcileReport{}
	for _, d := range stale {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if d.GatewayRef == nil {
			continue
		}
		rep.Checked++
		ref := *d.GatewayRef
		outcome, reason, err := t.gateway.ChargeStatus(ctx, ref)
		if err != nil {
			rep.Errors++
			t.log.Warn("charge status lookup failed", "donation_id", d.ID, "gateway_ref", ref, "error", err)
			continue
		}
		if outcome == OutcomePending {
			rep.Pending++
			continue
		}
		if err := t.ResolveCharge(ctx, ref, outcome, reason); err != nil {
			rep.Errors++
			t.log.Warn("charge reconciliation failed", "donation_id", d.ID, "gateway_ref", ref, "error", err)
			continue
		}
		rep.Resolved++
	}
	if rep.Checked > 0 {
		t.log.Info("charges reconciled", "checked", rep.Checked, "resolved", rep.Resolved, "pending", rep.Pending, "errors", rep.Errors)
	}
	return rep, nil
}

// enqueuePayout runs under a savepoint; a failure is logged and the payout
// can be retried from the operator CLI.
func (t *Trigger) enqueuePayout(ctx context.Context, tx pgx.Tx, d *models.Donation) {
	if t.Payouts == nil {
		return
	}
	sp, err := tx.Begin(ctx)
	if err != nil {
		t.log.Warn("payout savepoint failed", "donation_id", d.ID, "error", err)
		return
	}
	if err := t.Payouts.EnqueuePayout(ctx, sp, d.ID); err != nil {
		_ = sp.Rollback(ctx)
		t.log.Warn("payout enqueue failed", "donation_id", d.ID, "error", err)
		return
	}
	if err := sp.Commit(ctx); err != nil {
		t.log.Warn("payout savepoint release failed", "donation_id", d.ID, "error", err)
	}
}

// Payout transfers a completed donation to its charity. The full amount is
// sent. It is safe to call repeatedly: the transfer reuses the donation's
// idempotency key and an already recorded transfer is skipped.
func (t *Trigger) Payout(ctx context.Context, donationID uuid.UUID) error {
	d, err := t.store.GetByID(ctx, donationID)
	if err != nil {
		return fmt.Errorf("load donation %s: %w", donationID, err)
	}
	if d.Status != models.DonationStatusCompleted {
		t.log.Info("payout skipped", "donation_id", d.ID, "status", d.Status)
		return nil
	}
	if d.TransferRef != nil {
		return nil
	}
	ch, err := t.store.GetCharity(ctx, d.CharityID)
	if err != nil {
		return fmt.Errorf("load charity %d: %w", d.CharityID, err)
	}
	if ch.PayoutAccount == "" {
		return fmt.Errorf("charity %d has no payout account", ch.ID)
	}

	ref, err := t.gateway.Transfer(ctx, TransferRequest{
		AmountMinor:    d.AmountMinor,
		Currency:       d.Currency,
		Destination:    ch.PayoutAccount,
		IdempotencyKey: "payout-" + d.ID.String(),
		Metadata: map[string]string{
			"donation_id":   d.ID.String(),
			"commitment_id": d.CommitmentID.String(),
		},
	})
	if err != nil {
		return fmt.Errorf("transfer donation %s: %w", d.ID, err)
	}
	if err := t.store.RecordTransfer(ctx, d.ID, ref, t.now()); err != nil {
		return err
	}
	t.metrics.PaymentEvent(EventPayoutSent)
	t.log.Info("payout sent", "donation_id", d.ID, "charity_id", ch.ID, "transfer_ref", ref)
	return nil
}
