package models

import (
	"time"

	"github.com/google/uuid"
)

type CommitmentType string

const (
	CommitmentTypeService   CommitmentType = "SERVICE"
	CommitmentTypeFinancial CommitmentType = "FINANCIAL"
	CommitmentTypeHybrid    CommitmentType = "HYBRID"
)

// Valid reports whether t is a known commitment type.
func (t CommitmentType) Valid() bool {
	switch t {
	case CommitmentTypeService, CommitmentTypeFinancial, CommitmentTypeHybrid:
		return true
	}
	return false
}

type CommitmentStatus string

const (
	CommitmentStatusActive               CommitmentStatus = "ACTIVE"
	CommitmentStatusActionPending        CommitmentStatus = "ACTION_PENDING"
	CommitmentStatusActionProofSubmitted CommitmentStatus = "ACTION_PROOF_SUBMITTED"
	CommitmentStatusActionOverdue        CommitmentStatus = "ACTION_OVERDUE"
	CommitmentStatusActionCompleted      CommitmentStatus = "ACTION_COMPLETED"
	CommitmentStatusCompleted            CommitmentStatus = "COMPLETED"
	CommitmentStatusFailed               CommitmentStatus = "FAILED"
)

// Valid reports whether s is one of the seven lifecycle states.
func (s CommitmentStatus) Valid() bool {
	switch s {
	case CommitmentStatusActive, CommitmentStatusActionPending, CommitmentStatusActionProofSubmitted,
		CommitmentStatusActionOverdue, CommitmentStatusActionCompleted, CommitmentStatusCompleted,
		CommitmentStatusFailed:
		return true
	}
	return false
}

// Terminal states never transition again.
func (s CommitmentStatus) Terminal() bool {
	return s == CommitmentStatusActionCompleted || s == CommitmentStatusCompleted || s == CommitmentStatusFailed
}

// Commitment is a user's pledge that activates when a relapse is reported.
type Commitment struct {
	ID                         uuid.UUID        `json:"id"`
	UserID                     uuid.UUID        `json:"user_id"`
	Type                       CommitmentType   `json:"commitment_type"`
	ActionID                   *uuid.UUID       `json:"action_id,omitempty"`
	CustomDescription          *string          `json:"custom_description,omitempty"`
	CustomHours                *float64         `json:"custom_hours,omitempty"`
	TargetDate                 time.Time        `json:"target_date"`
	PartnerID                  *uuid.UUID       `json:"partner_id,omitempty"`
	RequirePartnerVerification bool             `json:"require_partner_verification"`
	AllowPublicShare           bool             `json:"allow_public_share"`
	Status                     CommitmentStatus `json:"status"`
	RelapseReportedAt          *time.Time       `json:"relapse_reported_at,omitempty"`
	ActionDeadline             *time.Time       `json:"action_deadline,omitempty"`
	ActionCompletedAt          *time.Time       `json:"action_completed_at,omitempty"`
	FinancialAmount            *int64           `json:"financial_amount,omitempty"` // minor currency units
	FinancialPaidAt            *time.Time       `json:"financial_paid_at,omitempty"`
	CharityID                  *int64           `json:"charity_id,omitempty"`
	Version                    int              `json:"-"`
	CreatedAt                  time.Time        `json:"created_at"`
	UpdatedAt                  time.Time        `json:"updated_at"`
	DeletedAt                  *time.Time       `json:"-"`
}

// HasFinancialPenalty is true for FINANCIAL and HYBRID commitments.
func (c *Commitment) HasFinancialPenalty() bool {
	return c.Type == CommitmentTypeFinancial || c.Type == CommitmentTypeHybrid
}

// RequiresAction is true for SERVICE and HYBRID commitments.
func (c *Commitment) RequiresAction() bool {
	return c.Type == CommitmentTypeService || c.Type == CommitmentTypeHybrid
}

// IsPartner reports whether userID is the designated partner.
func (c *Commitment) IsPartner(userID uuid.UUID) bool {
	return c.PartnerID != nil && *c.PartnerID == userID
}
