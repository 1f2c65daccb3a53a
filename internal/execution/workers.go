package execution

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/redemption/backend/internal/commitments"
	"github.com/redemption/backend/internal/models"
	"github.com/redemption/backend/internal/payments"
)

// Notifier delivers a notification to its user. Returning an error makes
// River retry the job.
type Notifier interface {
	Deliver(ctx context.Context, n models.Notification) error
}

// LogNotifier writes notifications to the log. Push and email delivery are
// provided by other services reading the same kinds.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Deliver(_ context.Context, n models.Notification) error {
	log := l.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Info("notification", "user_id", n.UserID, "kind", n.Kind, "commitment_id", n.CommitmentID, "payload", n.Payload)
	return nil
}

// Lifecycle is the engine surface the workers drive. It is implemented by
// commitments.Engine.
type Lifecycle interface {
	AutoApprove(ctx context.Context, commitmentID, proofID uuid.UUID) (bool, error)
	SweepOverdue(ctx context.Context) (*commitments.SweepReport, error)
	SweepAutoApprove(ctx context.Context) (*commitments.SweepReport, error)
}

// Payments is implemented by payments.Trigger.
type Payments interface {
	Payout(ctx context.Context, donationID uuid.UUID) error
	ReconcileCharges(ctx context.Context) (*payments.ReconcileReport, error)
}

type NotifyWorker struct {
	river.WorkerDefaults[NotifyArgs]
	notifier Notifier
}

func NewNotifyWorker(n Notifier) *NotifyWorker {
	return &NotifyWorker{notifier: n}
}

func (w *NotifyWorker) Work(ctx context.Context, job *river.Job[NotifyArgs]) error {
	if err := w.notifier.Deliver(ctx, job.Args.Notification); err != nil {
		return fmt.Errorf("deliver %s notification: %w", job.Args.Notification.Kind, err)
	}
	return nil
}

type AutoApproveWorker struct {
	river.WorkerDefaults[AutoApproveArgs]
	engine Lifecycle
	log    *slog.Logger
}

func NewAutoApproveWorker(engine Lifecycle, log *slog.Logger) *AutoApproveWorker {
	if log == nil {
		log = slog.Default()
	}
	return &AutoApproveWorker{engine: engine, log: log}
}

// Work approves the proof if it is still the undecided live proof. A proof
// that was decided, superseded or withdrawn in the meantime completes the
// job without doing anything.
func (w *AutoApproveWorker) Work(ctx context.Context, job *river.Job[AutoApproveArgs]) error {
	approved, err := w.engine.AutoApprove(ctx, job.Args.CommitmentID, job.Args.ProofID)
	if err != nil {
		return fmt.Errorf("auto-approve proof %s: %w", job.Args.ProofID, err)
	}
	w.log.Info("auto-approval timer fired", "commitment_id", job.Args.CommitmentID, "proof_id", job.Args.ProofID, "approved", approved)
	return nil
}

// Sweep workers fail only when the batch could not be listed; per-commitment
// failures are in the report and picked up by the next run.

type SweepOverdueWorker struct {
	river.WorkerDefaults[SweepOverdueArgs]
	engine Lifecycle
}

func NewSweepOverdueWorker(engine Lifecycle) *SweepOverdueWorker {
	return &SweepOverdueWorker{engine: engine}
}

func (w *SweepOverdueWorker) Work(ctx context.Context, _ *river.Job[SweepOverdueArgs]) error {
	_, err := w.engine.SweepOverdue(ctx)
	return err
}

type SweepAutoApproveWorker struct {
	river.WorkerDefaults[SweepAutoApproveArgs]
	engine Lifecycle
}

func NewSweepAutoApproveWorker(engine Lifecycle) *SweepAutoApproveWorker {
	return &SweepAutoApproveWorker{engine: engine}
}

func (w *SweepAutoApproveWorker) Work(ctx context.Context, _ *river.Job[SweepAutoApproveArgs]) error {
	_, err := w.engine.SweepAutoApprove(ctx)
	return err
}

type PayoutWorker struct {
	river.WorkerDefaults[PayoutArgs]
	payments Payments
}

func NewPayoutWorker(p Payments) *PayoutWorker {
	return &PayoutWorker{payments: p}
}

func (w *PayoutWorker) Work(ctx context.Context, job *river.Job[PayoutArgs]) error {
	return w.payments.Payout(ctx, job.Args.DonationID)
}

// ReconcileWorker fails only when the stale charges could not be listed;
// per-charge failures are retried by the next run.
type ReconcileWorker struct {
	river.WorkerDefaults[ReconcileChargesArgs]
	payments Payments
}

func NewReconcileWorker(p Payments) *ReconcileWorker {
	return &ReconcileWorker{payments: p}
}

func (w *ReconcileWorker) Work(ctx context.Context, _ *river.Job[ReconcileChargesArgs]) error {
	_, err := w.payments.ReconcileCharges(ctx)
	return err
}

// NewWorkers registers every worker of the service.
func NewWorkers(engine Lifecycle, payouts Payments, notifier Notifier, log *slog.Logger) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker(workers, NewNotifyWorker(notifier))
	river.AddWorker(workers, NewAutoApproveWorker(engine, log))
	river.AddWorker(workers, NewSweepOverdueWorker(engine))
	river.AddWorker(workers, NewSweepAutoApproveWorker(engine))
	river.AddWorker(workers, NewPayoutWorker(payouts))
	river.AddWorker(workers, NewReconcileWorker(payouts))
	return workers
}
