package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/redemption/backend/internal/models"
)

type WallRepo struct {
	pool *pgxpool.Pool
}

func NewWallRepo(pool *pgxpool.Pool) *WallRepo {
	return &WallRepo{pool: pool}
}

// InsertIfAbsent creates the entry unless one already exists for the
// commitment. The unique constraint on commitment_id decides.
func (r *WallRepo) InsertIfAbsent(ctx context.Context, tx pgx.Tx, e *models.RedemptionWallEntry) (bool, error) {
	err := tx.QueryRow(ctx, `
		INSERT INTO redemption_wall_entries (id, commitment_id, action_title, action_category, service_hours,
			proof_media_type, proof_media_url, proof_thumbnail_url, reflection)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (commitment_id) DO NOTHING
		RETURNING created_at
	`, e.ID, e.CommitmentID, e.ActionTitle, e.ActionCategory, e.ServiceHours, string(e.ProofMediaType), e.ProofMediaURL,
		e.ProofThumbnailURL, e.Reflection).Scan(&e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, translate(err)
	}
	return true, nil
}

func (r *WallRepo) ListRecent(ctx context.Context, limit, offset int) ([]*models.RedemptionWallEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, commitment_id, action_title, action_category, service_hours, proof_media_type, proof_media_url,
			proof_thumbnail_url, reflection, encouragement_count, comment_count, created_at
		FROM redemption_wall_entries ORDER BY created_at DESC LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.RedemptionWallEntry
	for rows.Next() {
		var e models.RedemptionWallEntry
		var mediaType string
		if err := rows.Scan(&e.ID, &e.CommitmentID, &e.ActionTitle, &e.ActionCategory, &e.ServiceHours, &mediaType,
			&e.ProofMediaURL, &e.ProofThumbnailURL, &e.Reflection, &e.EncouragementCount, &e.CommentCount, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ProofMediaType = models.MediaType(mediaType)
		list = append(list, &e)
	}
	return list, rows.Err()
}
