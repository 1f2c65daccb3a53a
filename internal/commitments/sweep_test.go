package commitments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redemption/backend/internal/models"
)

func TestSweepOverdue_FailureDoesNotStopBatch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	broken := f.create(t, nil)
	healthy := f.create(t, nil)
	f.relapse(t, broken.ID)
	f.relapse(t, healthy.ID)
	f.w.advance(49 * time.Hour)
	f.w.failUpdate[broken.ID] = errors.New("disk full")

	rep, err := f.e.SweepOverdue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Scanned != 2 || rep.Processed != 1 || len(rep.Errors) != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if got := f.w.commitment(healthy.ID); got.Status != models.CommitmentStatusActionOverdue {
		t.Errorf("healthy status = %s", got.Status)
	}
	if got := f.w.commitment(broken.ID); got.Status != models.CommitmentStatusActionPending {
		t.Errorf("broken status = %s, want unchanged", got.Status)
	}

	delete(f.w.failUpdate, broken.ID)
	rep, _ = f.e.SweepOverdue(ctx)
	if rep.Scanned != 1 || rep.Processed != 1 {
		t.Errorf("retry report = %+v", rep)
	}
	rep, _ = f.e.SweepOverdue(ctx)
	if rep.Scanned != 0 {
		t.Errorf("third run scanned %d", rep.Scanned)
	}
}

func TestSweepOverdue_IgnoresCommitmentsInsideWindow(t *testing.T) {
	f := newFixture()
	c := f.create(t, nil)
	f.relapse(t, c.ID)
	f.w.advance(47 * time.Hour)

	rep, err := f.e.SweepOverdue(context.Background())
	if err != nil || rep.Scanned != 0 {
		t.Fatalf("report = %+v, %v", rep, err)
	}
	if got := f.w.commitment(c.ID); got.Status != models.CommitmentStatusActionPending {
		t.Errorf("status = %s", got.Status)
	}
}

func TestSweepAutoApprove_OnlyLiveProofs(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	noPartner := func(in *CreateInput) {
		in.PartnerID = nil
		in.RequirePartnerVerification = false
	}
	ready := f.create(t, noPartner)
	fresh := f.create(t, noPartner)
	verified := f.create(t, nil)
	for _, c := range []*models.Commitment{ready, fresh, verified} {
		f.relapse(t, c.ID)
	}
	f.submit(t, ready.ID)
	f.submit(t, verified.ID)
	f.w.advance(20 * time.Hour)
	f.submit(t, fresh.ID)
	f.w.advance(5 * time.Hour)

	rep, err := f.e.SweepAutoApprove(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Scanned != 1 || rep.Processed != 1 || len(rep.Errors) != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if got := f.w.commitment(ready.ID); got.Status != models.CommitmentStatusActionCompleted {
		t.Errorf("ready status = %s", got.Status)
	}
	for _, c := range []*models.Commitment{fresh, verified} {
		if got := f.w.commitment(c.ID); got.Status != models.CommitmentStatusActionProofSubmitted {
			t.Errorf("%s moved to %s", c.ID, got.Status)
		}
	}

	rep, _ = f.e.SweepAutoApprove(ctx)
	if rep.Scanned != 0 {
		t.Errorf("second run scanned %d", rep.Scanned)
	}
	if s := f.w.st.stats[f.owner]; s.TotalActionsCompleted != 1 {
		t.Errorf("completions = %d, want 1", s.TotalActionsCompleted)
	}
}

func TestSweep_RespectsBatchSize(t *testing.T) {
	f := newFixture()
	f.e.cfg.SweepBatchSize = 2
	for i := 0; i < 3; i++ {
		c := f.create(t, nil)
		f.relapse(t, c.ID)
	}
	f.w.advance(49 * time.Hour)

	rep, _ := f.e.SweepOverdue(context.Background())
	if rep.Processed != 2 {
		t.Fatalf("first batch processed %d", rep.Processed)
	}
	rep, _ = f.e.SweepOverdue(context.Background())
	if rep.Processed != 1 {
		t.Errorf("second batch processed %d", rep.Processed)
	}
}

func TestSweep_StopsWorkOnCancelledContext(t *testing.T) {
	f := newFixture()
	c := f.create(t, nil)
	f.relapse(t, c.ID)
	f.w.advance(49 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := f.e.SweepOverdue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Processed != 0 || len(rep.Errors) != 1 || !errors.Is(rep.Errors[0], context.Canceled) {
		t.Errorf("report = %+v", rep)
	}
}
