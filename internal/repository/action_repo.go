package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/redemption/backend/internal/models"
)

const actionColumns = `id, title, description, category, difficulty, estimated_hours, proof_instructions, is_active, created_at`

type ActionRepo struct {
	pool *pgxpool.Pool
}

func NewActionRepo(pool *pgxpool.Pool) *ActionRepo {
	return &ActionRepo{pool: pool}
}

func scanAction(row scanner) (*models.Action, error) {
	var a models.Action
	err := row.Scan(&a.ID, &a.Title, &a.Description, &a.Category, &a.Difficulty, &a.EstimatedHours, &a.ProofInstructions,
		&a.IsActive, &a.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (r *ActionRepo) Create(ctx context.Context, a *models.Action) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO actions (id, title, description, category, difficulty, estimated_hours, proof_instructions, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, a.ID, a.Title, a.Description, a.Category, a.Difficulty, a.EstimatedHours, a.ProofInstructions, a.IsActive).Scan(&a.CreatedAt)
}

func (r *ActionRepo) GetActiveByID(ctx context.Context, id uuid.UUID) (*models.Action, error) {
	return scanAction(r.pool.QueryRow(ctx, `
		SELECT `+actionColumns+` FROM actions WHERE id = $1 AND is_active
	`, id))
}

// GetByID ignores is_active so completed commitments keep resolving their action.
func (r *ActionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Action, error) {
	return scanAction(r.pool.QueryRow(ctx, `SELECT `+actionColumns+` FROM actions WHERE id = $1`, id))
}

func (r *ActionRepo) ListActive(ctx context.Context, category string) ([]*models.Action, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+actionColumns+` FROM actions
		WHERE is_active AND ($1 = '' OR category = $1)
		ORDER BY category, estimated_hours
	`, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}
