package commitments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/redemption/backend/internal/apperr"
	"github.com/redemption/backend/internal/models"
	"github.com/redemption/backend/internal/repository"
)

// DeadlineStatus is the answer to a deadline check.
type DeadlineStatus struct {
	Commitment       *models.Commitment
	ActionDeadline   *time.Time
	RemainingSeconds int64
	IsOverdue        bool
}

// Get returns a commitment visible to userID: its owner or its partner.
func (e *Engine) Get(ctx context.Context, commitmentID, userID uuid.UUID) (*models.Commitment, error) {
	c, err := e.store.GetByID(ctx, commitmentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound(msgNoAccess)
	}
	if err != nil {
		return nil, err
	}
	if c.UserID != userID && !c.IsPartner(userID) {
		return nil, noAccess()
	}
	return c, nil
}

func (e *Engine) ListMine(ctx context.Context, userID uuid.UUID) ([]*models.Commitment, error) {
	return e.store.ListByUser(ctx, userID)
}

// ListAwaitingVerification returns commitments with proof waiting on partnerID.
func (e *Engine) ListAwaitingVerification(ctx context.Context, partnerID uuid.UUID) ([]*models.Commitment, error) {
	return e.store.ListAwaitingPartner(ctx, partnerID)
}

func (e *Engine) ListProofs(ctx context.Context, commitmentID, userID uuid.UUID) ([]*models.ActionProof, error) {
	if _, err := e.Get(ctx, commitmentID, userID); err != nil {
		return nil, err
	}
	return e.proofs.History(ctx, commitmentID)
}

// ListDonations returns the charges made for a commitment, newest first.
// They are visible to the owner only; a partner gets the concealed answer.
func (e *Engine) ListDonations(ctx context.Context, commitmentID, userID uuid.UUID) ([]*models.Donation, error) {
	c, err := e.Get(ctx, commitmentID, userID)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, noAccess()
	}
	if e.donations == nil {
		return nil, nil
	}
	return e.donations.ListByCommitment(ctx, c.ID)
}

func (e *Engine) Stats(ctx context.Context, userID uuid.UUID) (*models.UserServiceStats, error) {
	return e.stats.Get(ctx, userID)
}

func (e *Engine) Wall(ctx context.Context, limit, offset int) ([]*models.RedemptionWallEntry, error) {
	return e.wall.Recent(ctx, limit, offset)
}

// CheckDeadline reports the time left on the action window. A pending
// commitment found past its deadline is moved to ACTION_OVERDUE on the spot,
// through the same path the overdue sweep uses.
func (e *Engine) CheckDeadline(ctx context.Context, commitmentID, userID uuid.UUID) (*DeadlineStatus, error) {
	c, err := e.Get(ctx, commitmentID, userID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if overdue(c, now) {
		if _, err := e.MarkOverdue(ctx, c.ID); err != nil {
			return nil, err
		}
		if c, err = e.Get(ctx, commitmentID, userID); err != nil {
			return nil, err
		}
	}

	ds := &DeadlineStatus{Commitment: c, ActionDeadline: c.ActionDeadline}
	if c.ActionDeadline != nil {
		if remaining := c.ActionDeadline.Sub(now); remaining > 0 {
			ds.RemainingSeconds = int64(remaining / time.Second)
		}
		// FINANCIAL commitments settle through the payment path and never go overdue.
		ds.IsOverdue = c.RequiresAction() &&
			(c.Status == models.CommitmentStatusActionOverdue ||
				(!c.Status.Terminal() && now.After(*c.ActionDeadline)))
	}
	return ds, nil
}
