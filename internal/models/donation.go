package models

import (
	"time"

	"github.com/google/uuid"
)

type DonationStatus string

const (
	DonationStatusPending    DonationStatus = "PENDING"
	DonationStatusProcessing DonationStatus = "PROCESSING"
	DonationStatusCompleted  DonationStatus = "COMPLETED"
	DonationStatusFailed     DonationStatus = "FAILED"
	DonationStatusRefunded   DonationStatus = "REFUNDED"
)

// CanMoveTo reports whether a donation in status s may move to next.
func (s DonationStatus) CanMoveTo(next DonationStatus) bool {
	switch s {
	case DonationStatusPending:
		return next == DonationStatusProcessing || next == DonationStatusFailed
	case DonationStatusProcessing:
		return next == DonationStatusCompleted || next == DonationStatusFailed
	case DonationStatusCompleted:
		return next == DonationStatusRefunded
	}
	return false
}

// Donation tracks the monetary transfer triggered by a financial penalty.
// Its lifecycle is independent of the commitment's status.
type Donation struct {
	ID            uuid.UUID      `json:"id"`
	CommitmentID  uuid.UUID      `json:"commitment_id"`
	UserID        uuid.UUID      `json:"user_id"`
	CharityID     int64          `json:"charity_id"`
	AmountMinor   int64          `json:"amount"`
	Currency      string         `json:"currency"`
	Status        DonationStatus `json:"status"`
	GatewayRef    *string        `json:"gateway_ref,omitempty"`
	FailureReason *string        `json:"failure_reason,omitempty"`
	TransferRef   *string        `json:"transfer_ref,omitempty"`
	TransferredAt *time.Time     `json:"transferred_at,omitempty"`
	ResolvedAt    *time.Time     `json:"resolved_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Charity is a payout destination for financial penalties.
type Charity struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	PayoutAccount string `json:"-"`
	IsActive      bool   `json:"is_active"`
}

// PaymentProfile links a user to the gateway customer charged on failure.
type PaymentProfile struct {
	UserID          uuid.UUID
	CustomerRef     string
	PaymentMethodID string
}
