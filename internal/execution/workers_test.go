package execution

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/redemption/backend/internal/commitments"
	"github.com/redemption/backend/internal/models"
	"github.com/redemption/backend/internal/payments"
)

type mockLifecycle struct {
	approved  []uuid.UUID
	approveOK bool
	err       error
	sweeps    []string
}

func (m *mockLifecycle) AutoApprove(_ context.Context, _, proofID uuid.UUID) (bool, error) {
	m.approved = append(m.approved, proofID)
	return m.approveOK, m.err
}

func (m *mockLifecycle) SweepOverdue(context.Context) (*commitments.SweepReport, error) {
	m.sweeps = append(m.sweeps, commitments.SweepOverdue)
	return &commitments.SweepReport{Sweep: commitments.SweepOverdue, Errors: []error{errors.New("one bad row")}}, m.err
}

func (m *mockLifecycle) SweepAutoApprove(context.Context) (*commitments.SweepReport, error) {
	m.sweeps = append(m.sweeps, commitments.SweepAutoApprove)
	return &commitments.SweepReport{Sweep: commitments.SweepAutoApprove}, m.err
}

type mockNotifier struct {
	got []models.Notification
	err error
}

func (m *mockNotifier) Deliver(_ context.Context, n models.Notification) error {
	m.got = append(m.got, n)
	return m.err
}

type mockPayments struct {
	ids        []uuid.UUID
	reconciles int
	err        error
}

func (m *mockPayments) Payout(_ context.Context, id uuid.UUID) error {
	m.ids = append(m.ids, id)
	return nil
}

func (m *mockPayments) ReconcileCharges(context.Context) (*payments.ReconcileReport, error) {
	m.reconciles++
	if m.err != nil {
		return nil, m.err
	}
	return &payments.ReconcileReport{Checked: 3, Resolved: 1, Pending: 1, Errors: 1}, nil
}

func TestAutoApproveWorker(t *testing.T) {
	ctx := context.Background()
	engine := &mockLifecycle{}
	w := NewAutoApproveWorker(engine, nil)
	pid := uuid.New()

	// An ineligible proof completes the job.
	if err := w.Work(ctx, &river.Job[AutoApproveArgs]{Args: AutoApproveArgs{CommitmentID: uuid.New(), ProofID: pid}}); err != nil {
		t.Errorf("skip: %v", err)
	}
	engine.err = errors.New("db down")
	if err := w.Work(ctx, &river.Job[AutoApproveArgs]{Args: AutoApproveArgs{ProofID: pid}}); err == nil {
		t.Error("engine failure not returned for retry")
	}
	if len(engine.approved) != 2 || engine.approved[0] != pid {
		t.Errorf("approved = %v", engine.approved)
	}
}

func TestSweepWorkers_ItemFailuresDoNotFailTheJob(t *testing.T) {
	ctx := context.Background()
	engine := &mockLifecycle{}
	if err := NewSweepOverdueWorker(engine).Work(ctx, &river.Job[SweepOverdueArgs]{}); err != nil {
		t.Errorf("overdue sweep: %v", err)
	}
	if err := NewSweepAutoApproveWorker(engine).Work(ctx, &river.Job[SweepAutoApproveArgs]{}); err != nil {
		t.Errorf("auto-approve sweep: %v", err)
	}
	if len(engine.sweeps) != 2 {
		t.Errorf("sweeps = %v", engine.sweeps)
	}

	engine.err = errors.New("cannot list")
	if err := NewSweepOverdueWorker(engine).Work(ctx, &river.Job[SweepOverdueArgs]{}); err == nil {
		t.Error("listing failure not returned")
	}
}

func TestNotifyWorker(t *testing.T) {
	n := &mockNotifier{}
	w := NewNotifyWorker(n)
	note := models.Notification{UserID: uuid.New(), Kind: models.NotifyActionOverdue}
	if err := w.Work(context.Background(), &river.Job[NotifyArgs]{Args: NotifyArgs{Notification: note}}); err != nil {
		t.Fatal(err)
	}
	if len(n.got) != 1 || n.got[0].Kind != models.NotifyActionOverdue {
		t.Errorf("delivered = %+v", n.got)
	}
	n.err = errors.New("smtp down")
	if err := w.Work(context.Background(), &river.Job[NotifyArgs]{Args: NotifyArgs{Notification: note}}); err == nil {
		t.Error("delivery failure not returned for retry")
	}
}

func TestPayoutWorker(t *testing.T) {
	p := &mockPayments{}
	id := uuid.New()
	if err := NewPayoutWorker(p).Work(context.Background(), &river.Job[PayoutArgs]{Args: PayoutArgs{DonationID: id}}); err != nil {
		t.Fatal(err)
	}
	if len(p.ids) != 1 || p.ids[0] != id {
		t.Errorf("payouts = %v", p.ids)
	}
}

func TestReconcileWorker(t *testing.T) {
	ctx := context.Background()
	p := &mockPayments{}
	w := NewReconcileWorker(p)
	if err := w.Work(ctx, &river.Job[ReconcileChargesArgs]{}); err != nil {
		t.Errorf("per-charge errors failed the job: %v", err)
	}
	p.err = errors.New("cannot list")
	if err := w.Work(ctx, &river.Job[ReconcileChargesArgs]{}); err == nil {
		t.Error("listing failure not returned")
	}
	if p.reconciles != 2 {
		t.Errorf("reconciles = %d", p.reconciles)
	}
}

func TestPeriodicJobs(t *testing.T) {
	jobs, err := PeriodicJobs(Schedules{Overdue: "*/5 * * * *", AutoApprove: "@every 10m", Reconcile: "*/10 * * * *"})
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 3 {
		t.Errorf("jobs = %d", len(jobs))
	}
	_, err = PeriodicJobs(Schedules{Overdue: "*/5 * * * *", AutoApprove: "*/5 * * * *", Reconcile: "every ten minutes"})
	if err == nil || !strings.Contains(err.Error(), "charge reconciliation") {
		t.Errorf("bad schedule: %v", err)
	}
}
