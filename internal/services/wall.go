package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/redemption/backend/internal/models"
)

// Labels used on the wall for commitments without a catalog action. The
// owner's free-text description is never published; only the reflection the
// owner wrote for the wall is.
const (
	customActionTitle    = "Personal act of service"
	customActionCategory = "custom"
)

type WallRepository interface {
	InsertIfAbsent(ctx context.Context, tx pgx.Tx, e *models.RedemptionWallEntry) (bool, error)
	ListRecent(ctx context.Context, limit, offset int) ([]*models.RedemptionWallEntry, error)
}

// WallPublisher snapshots completed commitments onto the public wall.
type WallPublisher struct {
	Repo WallRepository
}

func NewWallPublisher(repo WallRepository) *WallPublisher {
	return &WallPublisher{Repo: repo}
}

// PublishIfEligible creates the commitment's wall entry when the owner opted
// into public sharing. It returns nil when nothing was published, including
// when an entry already exists.
func (p *WallPublisher) PublishIfEligible(ctx context.Context, tx pgx.Tx, c *models.Commitment, action *models.Action, proof *models.ActionProof) (*models.RedemptionWallEntry, error) {
	if !c.AllowPublicShare || proof == nil {
		return nil, nil
	}
	e := &models.RedemptionWallEntry{
		ID:                uuid.New(),
		CommitmentID:      c.ID,
		ActionTitle:       customActionTitle,
		ActionCategory:    customActionCategory,
		ServiceHours:      ServiceHours(c, action),
		ProofMediaType:    proof.MediaType,
		ProofMediaURL:     proof.MediaURL,
		ProofThumbnailURL: proof.ThumbnailURL,
		Reflection:        proof.Reflection,
	}
	if action != nil {
		e.ActionTitle = action.Title
		e.ActionCategory = action.Category
	}
	created, err := p.Repo.InsertIfAbsent(ctx, tx, e)
	if err != nil || !created {
		return nil, err
	}
	return e, nil
}

// Recent pages through the wall, newest first.
func (p *WallPublisher) Recent(ctx context.Context, limit, offset int) ([]*models.RedemptionWallEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return p.Repo.ListRecent(ctx, limit, offset)
}

// ServiceHours is the credit a completion earns: the catalog estimate, or the
// declared hours of a custom action.
func ServiceHours(c *models.Commitment, action *models.Action) float64 {
	if action != nil {
		return action.EstimatedHours
	}
	if c.CustomHours != nil {
		return *c.CustomHours
	}
	return 0
}
