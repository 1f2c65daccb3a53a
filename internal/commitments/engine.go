// Package commitments owns the commitment state machine. Every transition
// runs in one transaction holding the commitment's row lock, and side effects
// are enqueued inside that transaction behind a savepoint so a failed enqueue
// never undoes the transition.
package commitments

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/redemption/backend/internal/apperr"
	"github.com/redemption/backend/internal/metrics"
	"github.com/redemption/backend/internal/models"
	"github.com/redemption/backend/internal/repository"
	"github.com/redemption/backend/internal/services"
)

// Store is implemented by repository.CommitmentRepo.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, tx pgx.Tx, c *models.Commitment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Commitment, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Commitment, error)
	Update(ctx context.Context, tx pgx.Tx, c *models.Commitment) error
	SoftDelete(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Commitment, error)
	ListAwaitingPartner(ctx context.Context, partnerID uuid.UUID) ([]*models.Commitment, error)
	ListOverdueIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	ListAutoApproveCandidates(ctx context.Context, cutoff time.Time, limit int) ([]repository.ProofRef, error)
}

// Catalog is implemented by catalog.Service.
type Catalog interface {
	FindActiveByID(ctx context.Context, id uuid.UUID) (*models.Action, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Action, error)
}

// PaymentTrigger is implemented by payments.Trigger.
type PaymentTrigger interface {
	// CheckCharity fails with a validation error unless the charity can receive payouts.
	CheckCharity(ctx context.Context, charityID int64) error
	// ChargeForFailure records a Donation and creates the gateway charge
	// inside tx. A gateway failure is an apperr dependency error.
	ChargeForFailure(ctx context.Context, tx pgx.Tx, c *models.Commitment) (*models.Donation, error)
}

// Donations is implemented by repository.DonationRepo.
type Donations interface {
	ListByCommitment(ctx context.Context, commitmentID uuid.UUID) ([]*models.Donation, error)
}

// Dispatcher enqueues side effects in the caller's transaction. It is
// implemented by execution.Queue.
type Dispatcher interface {
	Notify(ctx context.Context, tx pgx.Tx, n models.Notification) error
	ScheduleAutoApproval(ctx context.Context, tx pgx.Tx, commitmentID, proofID uuid.UUID, at time.Time) error
}

type Config struct {
	ActionWindow       time.Duration
	AutoApproveAfter   time.Duration
	MaxRelapseBackdate time.Duration
	MinTargetLead      time.Duration
	MaxTargetLead      time.Duration
	MinFinancialAmount int64
	MaxFinancialAmount int64
	SweepBatchSize     int
}

func DefaultConfig() Config {
	return Config{
		ActionWindow:       48 * time.Hour,
		AutoApproveAfter:   24 * time.Hour,
		MaxRelapseBackdate: 24 * time.Hour,
		MinTargetLead:      24 * time.Hour,
		MaxTargetLead:      90 * 24 * time.Hour,
		MinFinancialAmount: 100,
		MaxFinancialAmount: 100_000,
		SweepBatchSize:     500,
	}
}

// targetSlack absorbs the latency between the client computing a target
// date and the server checking it.
const targetSlack = time.Minute

// Deps are the collaborators of an Engine. Donations, Dispatcher, Metrics and
// Logger are optional.
type Deps struct {
	Store      Store
	Catalog    Catalog
	Proofs     *services.ProofStore
	Stats      *services.StatsAggregator
	Wall       *services.WallPublisher
	Payments   PaymentTrigger
	Donations  Donations
	Dispatcher Dispatcher
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

type Engine struct {
	store     Store
	catalog   Catalog
	proofs    *services.ProofStore
	stats     *services.StatsAggregator
	wall      *services.WallPublisher
	payments  PaymentTrigger
	donations Donations
	dispatch  Dispatcher
	metrics   *metrics.Metrics
	log       *slog.Logger
	cfg       Config

	// Now is the engine clock. Tests replace it.
	Now func() time.Time
}

func NewEngine(d Deps, cfg Config) *Engine {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Engine{
		store:     d.Store,
		catalog:   d.Catalog,
		proofs:    d.Proofs,
		stats:     d.Stats,
		wall:      d.Wall,
		payments:  d.Payments,
		donations: d.Donations,
		dispatch:  d.Dispatcher,
		metrics:   d.Metrics,
		log:       d.Logger,
		cfg:       cfg,
		Now:       time.Now,
	}
}

func (e *Engine) now() time.Time { return e.Now().UTC() }

// msgNoAccess is shared by missing commitments and commitments the caller
// may not see, so the two are indistinguishable.
const msgNoAccess = "commitment not found"

func noAccess() error { return apperr.Forbidden(msgNoAccess) }

// IsConcealed reports whether err hides the existence of a commitment.
func IsConcealed(err error) bool {
	return errors.Is(err, apperr.ErrForbidden) && apperr.Message(err) == msgNoAccess
}

// lock loads the commitment for update and maps repository errors.
func (e *Engine) lock(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Commitment, error) {
	c, err := e.store.GetByIDForUpdate(ctx, tx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound(msgNoAccess)
	}
	return c, err
}

// save persists c, reporting a lost version race as a conflict.
func (e *Engine) save(ctx context.Context, tx pgx.Tx, c *models.Commitment) error {
	err := e.store.Update(ctx, tx, c)
	if errors.Is(err, repository.ErrStaleVersion) {
		return apperr.Conflict("commitment was modified concurrently, retry")
	}
	return err
}

// commit finishes tx and counts the transitions it carried.
func (e *Engine) commit(ctx context.Context, tx pgx.Tx, transitions ...[2]models.CommitmentStatus) error {
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	for _, t := range transitions {
		e.metrics.Transition(string(t[0]), string(t[1]))
	}
	return nil
}

func moved(from, to models.CommitmentStatus) [2]models.CommitmentStatus {
	return [2]models.CommitmentStatus{from, to}
}

// enqueue runs fn under a savepoint of tx. A failure rolls back only the
// savepoint and is logged.
func (e *Engine) enqueue(ctx context.Context, tx pgx.Tx, what string, commitmentID uuid.UUID, fn func(pgx.Tx) error) {
	if e.dispatch == nil {
		return
	}
	sp, err := tx.Begin(ctx)
	if err != nil {
		e.log.Warn("side effect savepoint failed", "side_effect", what, "commitment_id", commitmentID, "error", err)
		return
	}
	if err := fn(sp); err != nil {
		_ = sp.Rollback(ctx)
		e.log.Warn("side effect enqueue failed", "side_effect", what, "commitment_id", commitmentID, "error", err)
		return
	}
	if err := sp.Commit(ctx); err != nil {
		e.log.Warn("side effect release failed", "side_effect", what, "commitment_id", commitmentID, "error", err)
	}
}

func (e *Engine) notify(ctx context.Context, tx pgx.Tx, userID uuid.UUID, kind string, c *models.Commitment, payload map[string]string) {
	n := models.Notification{UserID: userID, Kind: kind, CommitmentID: c.ID, Payload: payload}
	e.enqueue(ctx, tx, "notify:"+kind, c.ID, func(sp pgx.Tx) error {
		return e.dispatch.Notify(ctx, sp, n)
	})
}

// notifyPartner is a no-op for commitments without a partner.
func (e *Engine) notifyPartner(ctx context.Context, tx pgx.Tx, kind string, c *models.Commitment, payload map[string]string) {
	if c.PartnerID != nil {
		e.notify(ctx, tx, *c.PartnerID, kind, c, payload)
	}
}
