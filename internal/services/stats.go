package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/redemption/backend/internal/models"
)

// StatsRepository locks and persists a single user's stats row.
type StatsRepository interface {
	LockForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.UserServiceStats, error)
	Save(ctx context.Context, tx pgx.Tx, s *models.UserServiceStats) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.UserServiceStats, error)
}

// StatsAggregator is the only writer of user_service_stats. Each call locks
// the user's row for the rest of tx, so concurrent completions for the same
// user serialize instead of losing increments.
type StatsAggregator struct {
	Repo StatsRepository
}

func NewStatsAggregator(repo StatsRepository) *StatsAggregator {
	return &StatsAggregator{Repo: repo}
}

func (a *StatsAggregator) Get(ctx context.Context, userID uuid.UUID) (*models.UserServiceStats, error) {
	return a.Repo.GetByUserID(ctx, userID)
}

// OnActionCompleted credits a verified completion. amount is added to the
// donated total only when isHybridFinancial is set.
func (a *StatsAggregator) OnActionCompleted(ctx context.Context, tx pgx.Tx, userID uuid.UUID, hours float64, isHybridFinancial bool, amount int64, at time.Time) (*models.UserServiceStats, error) {
	s, err := a.Repo.LockForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	ApplyCompletion(s, hours, isHybridFinancial, amount, at)
	if err := a.Repo.Save(ctx, tx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// OnOverdue breaks the user's streak.
func (a *StatsAggregator) OnOverdue(ctx context.Context, tx pgx.Tx, userID uuid.UUID, at time.Time) (*models.UserServiceStats, error) {
	s, err := a.Repo.LockForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	ApplyOverdue(s, at)
	if err := a.Repo.Save(ctx, tx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func ApplyCompletion(s *models.UserServiceStats, hours float64, isHybridFinancial bool, amount int64, at time.Time) {
	if hours > 0 {
		s.TotalServiceHours += hours
	}
	if isHybridFinancial && amount > 0 {
		s.TotalMoneyDonated += amount
	}
	s.TotalActionsCompleted++
	s.RedemptionStreak++
	if s.RedemptionStreak > s.LongestRedemptionStreak {
		s.LongestRedemptionStreak = s.RedemptionStreak
	}
	s.LastCompletedAt = &at
}

func ApplyOverdue(s *models.UserServiceStats, at time.Time) {
	s.RedemptionStreak = 0
	s.LastOverdueAt = &at
}
