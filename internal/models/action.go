package models

import (
	"time"

	"github.com/google/uuid"
)

// Action difficulty levels in the catalog.
const (
	ActionDifficultyEasy   = "easy"
	ActionDifficultyMedium = "medium"
	ActionDifficultyHard   = "hard"
)

// Action is a redeemable entry in the Action Catalog.
type Action struct {
	ID                uuid.UUID `json:"id"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	Category          string    `json:"category"`
	Difficulty        string    `json:"difficulty"`
	EstimatedHours    float64   `json:"estimated_hours"`
	ProofInstructions string    `json:"proof_instructions"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
}
