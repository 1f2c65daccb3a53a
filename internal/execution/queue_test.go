package execution

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"

	"github.com/redemption/backend/internal/models"
)

type inserted struct {
	args river.JobArgs
	opts *river.InsertOpts
}

func recordingQueue() (*Queue, *[]inserted) {
	var got []inserted
	q := NewQueue(func(_ context.Context, _ pgx.Tx, args river.JobArgs, opts *river.InsertOpts) error {
		got = append(got, inserted{args, opts})
		return nil
	})
	return q, &got
}

func TestQueue_Notify(t *testing.T) {
	q, got := recordingQueue()
	n := models.Notification{UserID: uuid.New(), Kind: models.NotifyProofSubmitted, CommitmentID: uuid.New()}
	if err := q.Notify(context.Background(), nil, n); err != nil {
		t.Fatal(err)
	}
	if len(*got) != 1 {
		t.Fatalf("inserted %d jobs", len(*got))
	}
	args, ok := (*got)[0].args.(NotifyArgs)
	if !ok || args.Notification.Kind != n.Kind || args.Notification.UserID != n.UserID {
		t.Errorf("args = %#v", (*got)[0].args)
	}
}

func TestQueue_ScheduleAutoApproval(t *testing.T) {
	q, got := recordingQueue()
	cid, pid := uuid.New(), uuid.New()
	at := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	if err := q.ScheduleAutoApproval(context.Background(), nil, cid, pid, at); err != nil {
		t.Fatal(err)
	}
	job := (*got)[0]
	if args := job.args.(AutoApproveArgs); args.CommitmentID != cid || args.ProofID != pid {
		t.Errorf("args = %+v", args)
	}
	if job.opts == nil || !job.opts.ScheduledAt.Equal(at) || !job.opts.UniqueOpts.ByArgs {
		t.Errorf("opts = %+v", job.opts)
	}
}

func TestQueue_EnqueuePayout(t *testing.T) {
	q, got := recordingQueue()
	id := uuid.New()
	if err := q.EnqueuePayout(context.Background(), nil, id); err != nil {
		t.Fatal(err)
	}
	if args := (*got)[0].args.(PayoutArgs); args.DonationID != id {
		t.Errorf("args = %+v", args)
	}
}

func TestJobKindsAreDistinct(t *testing.T) {
	seen := map[string]bool{}
	for _, a := range []river.JobArgs{NotifyArgs{}, AutoApproveArgs{}, SweepOverdueArgs{}, SweepAutoApproveArgs{}, PayoutArgs{}} {
		if seen[a.Kind()] {
			t.Errorf("duplicate kind %q", a.Kind())
		}
		seen[a.Kind()] = true
	}
}
