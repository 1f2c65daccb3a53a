package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/redemption/backend/internal/models"
)

const statsColumns = `user_id, total_service_hours, total_money_donated, total_actions_completed, redemption_streak,
	longest_redemption_streak, last_completed_at, last_overdue_at, updated_at`

type StatsRepo struct {
	pool *pgxpool.Pool
}

func NewStatsRepo(pool *pgxpool.Pool) *StatsRepo {
	return &StatsRepo{pool: pool}
}

func scanStats(row scanner) (*models.UserServiceStats, error) {
	var s models.UserServiceStats
	err := row.Scan(&s.UserID, &s.TotalServiceHours, &s.TotalMoneyDonated, &s.TotalActionsCompleted, &s.RedemptionStreak,
		&s.LongestRedemptionStreak, &s.LastCompletedAt, &s.LastOverdueAt, &s.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

// LockForUpdate creates the user's stats row if missing and locks it for the
// rest of the transaction. Concurrent completions for one user serialize on
// this row lock; the in-memory fakes used by the engine tests do not model it,
// so that ordering is only exercised against a real Postgres.
func (r *StatsRepo) LockForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.UserServiceStats, error) {
	if _, err := tx.Exec(ctx, `
		INSERT INTO user_service_stats (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING
	`, userID); err != nil {
		return nil, translate(err)
	}
	return scanStats(tx.QueryRow(ctx, `
		SELECT `+statsColumns+` FROM user_service_stats WHERE user_id = $1 FOR UPDATE
	`, userID))
}

func (r *StatsRepo) Save(ctx context.Context, tx pgx.Tx, s *models.UserServiceStats) error {
	return tx.QueryRow(ctx, `
		UPDATE user_service_stats SET total_service_hours = $2, total_money_donated = $3, total_actions_completed = $4,
			redemption_streak = $5, longest_redemption_streak = $6, last_completed_at = $7, last_overdue_at = $8,
			updated_at = now()
		WHERE user_id = $1
		RETURNING updated_at
	`, s.UserID, s.TotalServiceHours, s.TotalMoneyDonated, s.TotalActionsCompleted, s.RedemptionStreak,
		s.LongestRedemptionStreak, s.LastCompletedAt, s.LastOverdueAt).Scan(&s.UpdatedAt)
}

// GetByUserID returns zeroed stats for users that have none yet.
func (r *StatsRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.UserServiceStats, error) {
	s, err := scanStats(r.pool.QueryRow(ctx, `
		SELECT `+statsColumns+` FROM user_service_stats WHERE user_id = $1
	`, userID))
	if errors.Is(err, ErrNotFound) {
		return &models.UserServiceStats{UserID: userID}, nil
	}
	return s, err
}
