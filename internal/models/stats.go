package models

import (
	"time"

	"github.com/google/uuid"
)

// UserServiceStats holds per-user accumulated redemption counters.
type UserServiceStats struct {
	UserID                  uuid.UUID  `json:"user_id"`
	TotalServiceHours       float64    `json:"total_service_hours"`
	TotalMoneyDonated       int64      `json:"total_money_donated"` // minor currency units
	TotalActionsCompleted   int        `json:"total_actions_completed"`
	RedemptionStreak        int        `json:"redemption_streak"`
	LongestRedemptionStreak int        `json:"longest_redemption_streak"`
	LastCompletedAt         *time.Time `json:"last_completed_at,omitempty"`
	LastOverdueAt           *time.Time `json:"last_overdue_at,omitempty"`
	UpdatedAt               time.Time  `json:"updated_at"`
}
