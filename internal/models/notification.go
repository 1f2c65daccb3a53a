package models

import "github.com/google/uuid"

// Notification kinds dispatched through the outbox.
const (
	NotifyPartnerInvited     = "partner_invited"
	NotifyRelapseReported    = "relapse_reported"
	NotifyProofSubmitted     = "proof_submitted"
	NotifyProofApproved      = "proof_approved"
	NotifyProofRejected      = "proof_rejected"
	NotifyActionOverdue      = "action_overdue"
	NotifyPaymentCompleted   = "payment_completed"
	NotifyPaymentFailed      = "payment_failed"
	NotifyCommitmentComplete = "commitment_completed"
)

type Notification struct {
	UserID       uuid.UUID         `json:"user_id"`
	Kind         string            `json:"kind"`
	CommitmentID uuid.UUID         `json:"commitment_id"`
	Payload      map[string]string `json:"payload,omitempty"`
}
