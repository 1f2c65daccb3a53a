package execution

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"

	"github.com/redemption/backend/internal/models"
)

// InsertTxFunc inserts a job inside tx. In production it wraps
// river.Client.InsertTx; the indirection lets the queue exist before the
// River client that runs the workers needing it.
type InsertTxFunc func(ctx context.Context, tx pgx.Tx, args river.JobArgs, opts *river.InsertOpts) error

// Queue is the transactional outbox: every side effect becomes a River job
// committed or rolled back together with tx.
type Queue struct {
	insert InsertTxFunc
}

func NewQueue(insert InsertTxFunc) *Queue {
	return &Queue{insert: insert}
}

func (q *Queue) Notify(ctx context.Context, tx pgx.Tx, n models.Notification) error {
	return q.insert(ctx, tx, NotifyArgs{Notification: n}, nil)
}

// ScheduleAutoApproval runs the auto-approval of proofID at at. A duplicate
// schedule for the same proof is dropped.
func (q *Queue) ScheduleAutoApproval(ctx context.Context, tx pgx.Tx, commitmentID, proofID uuid.UUID, at time.Time) error {
	return q.insert(ctx, tx, AutoApproveArgs{CommitmentID: commitmentID, ProofID: proofID}, &river.InsertOpts{
		ScheduledAt: at,
		UniqueOpts:  river.UniqueOpts{ByArgs: true},
	})
}

func (q *Queue) EnqueuePayout(ctx context.Context, tx pgx.Tx, donationID uuid.UUID) error {
	return q.insert(ctx, tx, PayoutArgs{DonationID: donationID}, &river.InsertOpts{
		UniqueOpts: river.UniqueOpts{ByArgs: true},
	})
}
