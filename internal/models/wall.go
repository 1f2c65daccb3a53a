package models

import (
	"time"

	"github.com/google/uuid"
)

// RedemptionWallEntry is the public, anonymized snapshot of a completed
// commitment. There is at most one entry per commitment.
type RedemptionWallEntry struct {
	ID                 uuid.UUID `json:"id"`
	CommitmentID       uuid.UUID `json:"-"`
	ActionTitle        string    `json:"action_title"`
	ActionCategory     string    `json:"action_category"`
	ServiceHours       float64   `json:"service_hours"`
	ProofMediaType     MediaType `json:"proof_media_type"`
	ProofMediaURL      string    `json:"proof_media_url"`
	ProofThumbnailURL  *string   `json:"proof_thumbnail_url,omitempty"`
	Reflection         *string   `json:"reflection,omitempty"`
	EncouragementCount int       `json:"encouragement_count"`
	CommentCount       int       `json:"comment_count"`
	CreatedAt          time.Time `json:"created_at"`
}
