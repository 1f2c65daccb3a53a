package models

import (
	"time"

	"github.com/google/uuid"
)

type MediaType string

const (
	MediaTypePhoto MediaType = "photo"
	MediaTypeVideo MediaType = "video"
	MediaTypeOther MediaType = "other"
)

func (m MediaType) Valid() bool {
	return m == MediaTypePhoto || m == MediaTypeVideo || m == MediaTypeOther
}

type RejectionReason string

const (
	RejectionPhotoUnclear     RejectionReason = "PHOTO_UNCLEAR"
	RejectionWrongAction      RejectionReason = "WRONG_ACTION"
	RejectionIncompleteAction RejectionReason = "INCOMPLETE_ACTION"
	RejectionSuspectedFraud   RejectionReason = "SUSPECTED_FRAUD"
	RejectionOther            RejectionReason = "OTHER"
)

func (r RejectionReason) Valid() bool {
	switch r {
	case RejectionPhotoUnclear, RejectionWrongAction, RejectionIncompleteAction, RejectionSuspectedFraud, RejectionOther:
		return true
	}
	return false
}

// ActionProof is one submission attempt for a commitment. Only the row with
// IsSuperseded=false is eligible for verification.
type ActionProof struct {
	ID                    uuid.UUID        `json:"id"`
	CommitmentID          uuid.UUID        `json:"commitment_id"`
	UserID                uuid.UUID        `json:"user_id"`
	MediaType             MediaType        `json:"media_type"`
	MediaURL              string           `json:"media_url"`
	ThumbnailURL          *string          `json:"thumbnail_url,omitempty"`
	Latitude              *float64         `json:"latitude,omitempty"`
	Longitude             *float64         `json:"longitude,omitempty"`
	LocationName          *string          `json:"location_name,omitempty"`
	UserNotes             *string          `json:"user_notes,omitempty"`
	Reflection            *string          `json:"reflection,omitempty"`
	CapturedAt            time.Time        `json:"captured_at"`
	SubmittedAt           time.Time        `json:"submitted_at"`
	CapturedBeforeRelapse bool             `json:"captured_before_relapse"`
	PartnerApproved       *bool            `json:"partner_approved,omitempty"` // nil while pending
	VerifiedAt            *time.Time       `json:"verified_at,omitempty"`
	VerifiedBy            *uuid.UUID       `json:"verified_by,omitempty"`
	AutoApproved          bool             `json:"auto_approved"`
	RejectionReason       *RejectionReason `json:"rejection_reason,omitempty"`
	RejectionNotes        *string          `json:"rejection_notes,omitempty"`
	IsLateSubmission      bool             `json:"is_late_submission"`
	IsSuperseded          bool             `json:"is_superseded"`
	CreatedAt             time.Time        `json:"created_at"`
}

// Pending is true until a verification decision has been recorded.
func (p *ActionProof) Pending() bool { return p.PartnerApproved == nil }
