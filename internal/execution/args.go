package execution

import (
	"github.com/google/uuid"

	"github.com/redemption/backend/internal/models"
)

// NotifyArgs delivers one notification. Enqueued in the transaction that
// caused it.
type NotifyArgs struct {
	Notification models.Notification `json:"notification"`
}

func (NotifyArgs) Kind() string { return "notify" }

// AutoApproveArgs is the per-proof auto-approval timer.
type AutoApproveArgs struct {
	CommitmentID uuid.UUID `json:"commitment_id"`
	ProofID      uuid.UUID `json:"proof_id"`
}

func (AutoApproveArgs) Kind() string { return "auto_approve" }

type SweepOverdueArgs struct{}

func (SweepOverdueArgs) Kind() string { return "sweep_overdue" }

type SweepAutoApproveArgs struct{}

func (SweepAutoApproveArgs) Kind() string { return "sweep_auto_approve" }

// PayoutArgs transfers a completed donation to its charity.
type PayoutArgs struct {
	DonationID uuid.UUID `json:"donation_id"`
}

func (PayoutArgs) Kind() string { return "payout" }

// ReconcileChargesArgs asks the gateway about charges stuck in PROCESSING.
type ReconcileChargesArgs struct{}

func (ReconcileChargesArgs) Kind() string { return "reconcile_charges" }
