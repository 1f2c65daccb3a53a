package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/redemption/backend/internal/models"
)

type mockStats struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.UserServiceStats
}

func newMockStats() *mockStats {
	return &mockStats{rows: make(map[uuid.UUID]*models.UserServiceStats)}
}

func (m *mockStats) LockForUpdate(_ context.Context, _ pgx.Tx, userID uuid.UUID) (*models.UserServiceStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[userID]
	if !ok {
		s = &models.UserServiceStats{UserID: userID}
		m.rows[userID] = s
	}
	cp := *s
	return &cp, nil
}

func (m *mockStats) Save(_ context.Context, _ pgx.Tx, s *models.UserServiceStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.rows[s.UserID] = &cp
	return nil
}

func (m *mockStats) GetByUserID(_ context.Context, userID uuid.UUID) (*models.UserServiceStats, error) {
	s := m.get(userID)
	return &s, nil
}

func (m *mockStats) get(userID uuid.UUID) models.UserServiceStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.rows[userID]; ok {
		return *s
	}
	return models.UserServiceStats{UserID: userID}
}

func TestStatsAggregator_Completion(t *testing.T) {
	repo := newMockStats()
	agg := NewStatsAggregator(repo)
	ctx := context.Background()
	user := uuid.New()
	now := time.Now()

	if _, err := agg.OnActionCompleted(ctx, nil, user, 3, false, 500, now); err != nil {
		t.Fatal(err)
	}
	if _, err := agg.OnActionCompleted(ctx, nil, user, 1.5, true, 500, now); err != nil {
		t.Fatal(err)
	}
	s := repo.get(user)
	if s.TotalServiceHours != 4.5 {
		t.Errorf("hours = %v, want 4.5", s.TotalServiceHours)
	}
	if s.TotalMoneyDonated != 500 {
		t.Errorf("donated = %d, want 500 (only the hybrid completion counts)", s.TotalMoneyDonated)
	}
	if s.TotalActionsCompleted != 2 || s.RedemptionStreak != 2 || s.LongestRedemptionStreak != 2 {
		t.Errorf("counters = %+v", s)
	}
	if s.LastCompletedAt == nil {
		t.Error("last completed should be set")
	}
}

// The streak always equals the trailing run of completions since the last
// overdue event, and the longest streak is the maximum run seen.
func TestStatsAggregator_StreakSequences(t *testing.T) {
	sequences := []string{
		"",
		"AAAAA",
		"AAAAAO",
		"AAOAAA",
		"OOAO",
		"AOAOAOA",
		"AAAAAOAAOAAAAAAA",
	}
	for _, seq := range sequences {
		t.Run(seq, func(t *testing.T) {
			repo := newMockStats()
			agg := NewStatsAggregator(repo)
			ctx := context.Background()
			user := uuid.New()
			run, longest, total := 0, 0, 0
			for _, ev := range seq {
				var err error
				if ev == 'A' {
					_, err = agg.OnActionCompleted(ctx, nil, user, 1, false, 0, time.Now())
					run++
					total++
					if run > longest {
						longest = run
					}
				} else {
					_, err = agg.OnOverdue(ctx, nil, user, time.Now())
					run = 0
				}
				if err != nil {
					t.Fatal(err)
				}
			}
			s := repo.get(user)
			if s.RedemptionStreak != run {
				t.Errorf("streak = %d, want %d", s.RedemptionStreak, run)
			}
			if s.LongestRedemptionStreak != longest {
				t.Errorf("longest = %d, want %d", s.LongestRedemptionStreak, longest)
			}
			if s.TotalActionsCompleted != total {
				t.Errorf("completed = %d, want %d", s.TotalActionsCompleted, total)
			}
		})
	}
}

func TestStatsAggregator_OverdueResetsStreakOnly(t *testing.T) {
	repo := newMockStats()
	agg := NewStatsAggregator(repo)
	ctx := context.Background()
	user := uuid.New()
	for i := 0; i < 5; i++ {
		if _, err := agg.OnActionCompleted(ctx, nil, user, 2, false, 0, time.Now()); err != nil {
			t.Fatal(err)
		}
	}
	s, err := agg.OnOverdue(ctx, nil, user, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if s.RedemptionStreak != 0 {
		t.Errorf("streak = %d, want 0", s.RedemptionStreak)
	}
	if s.LongestRedemptionStreak != 5 || s.TotalActionsCompleted != 5 || s.TotalServiceHours != 10 {
		t.Errorf("overdue must not change totals: %+v", s)
	}
	if s.LastOverdueAt == nil {
		t.Error("last overdue should be set")
	}
}
