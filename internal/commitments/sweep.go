package commitments

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Sweep names, also used as metric labels.
const (
	SweepOverdue     = "overdue"
	SweepAutoApprove = "auto_approve"
)

// SweepReport summarizes one sweep run. Failures are per commitment and never
// stop the batch.
type SweepReport struct {
	Sweep     string
	Scanned   int
	Processed int
	Skipped   int
	Errors    []error
}

func (r *SweepReport) fail(id uuid.UUID, err error) {
	r.Errors = append(r.Errors, fmt.Errorf("commitment %s: %w", id, err))
}

// SweepOverdue moves every ACTION_PENDING commitment past its deadline to
// ACTION_OVERDUE. Running it again is harmless: already-overdue commitments
// are not listed and MarkOverdue re-checks the state under lock.
func (e *Engine) SweepOverdue(ctx context.Context) (*SweepReport, error) {
	rep := &SweepReport{Sweep: SweepOverdue}
	ids, err := e.store.ListOverdueIDs(ctx, e.now(), e.cfg.SweepBatchSize)
	if err != nil {
		return nil, err
	}
	rep.Scanned = len(ids)
	for _, id := range ids {
		if ctx.Err() != nil {
			rep.fail(id, ctx.Err())
			continue
		}
		applied, err := e.MarkOverdue(ctx, id)
		switch {
		case err != nil:
			rep.fail(id, err)
		case applied:
			rep.Processed++
		default:
			rep.Skipped++
		}
	}
	e.finish(rep)
	return rep, nil
}

// SweepAutoApprove approves live proofs that waited AutoApproveAfter on
// commitments that do not require partner verification. Only the live proof
// of each commitment is ever considered.
func (e *Engine) SweepAutoApprove(ctx context.Context) (*SweepReport, error) {
	rep := &SweepReport{Sweep: SweepAutoApprove}
	cutoff := e.now().Add(-e.cfg.AutoApproveAfter)
	refs, err := e.store.ListAutoApproveCandidates(ctx, cutoff, e.cfg.SweepBatchSize)
	if err != nil {
		return nil, err
	}
	rep.Scanned = len(refs)
	for _, ref := range refs {
		if ctx.Err() != nil {
			rep.fail(ref.CommitmentID, ctx.Err())
			continue
		}
		applied, err := e.AutoApprove(ctx, ref.CommitmentID, ref.ProofID)
		switch {
		case err != nil:
			rep.fail(ref.CommitmentID, err)
		case applied:
			rep.Processed++
		default:
			rep.Skipped++
		}
	}
	e.finish(rep)
	return rep, nil
}

func (e *Engine) finish(rep *SweepReport) {
	e.metrics.SweepRun(rep.Sweep, len(rep.Errors))
	for _, err := range rep.Errors {
		e.log.Error("sweep item failed", "sweep", rep.Sweep, "error", err)
	}
	e.log.Info("sweep finished", "sweep", rep.Sweep, "scanned", rep.Scanned, "processed", rep.Processed,
		"skipped", rep.Skipped, "failed", len(rep.Errors))
}
