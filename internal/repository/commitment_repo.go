package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/redemption/backend/internal/models"
)

const commitmentColumns = `id, user_id, commitment_type, action_id, custom_description, custom_hours, target_date,
	partner_id, require_partner_verification, allow_public_share, status, relapse_reported_at, action_deadline,
	action_completed_at, financial_amount, financial_paid_at, charity_id, version, created_at, updated_at, deleted_at`

type CommitmentRepo struct {
	pool *pgxpool.Pool
}

func NewCommitmentRepo(pool *pgxpool.Pool) *CommitmentRepo {
	return &CommitmentRepo{pool: pool}
}

// Begin opens the transaction every state transition runs in.
func (r *CommitmentRepo) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func scanCommitment(row scanner) (*models.Commitment, error) {
	var c models.Commitment
	var typ, status string
	err := row.Scan(&c.ID, &c.UserID, &typ, &c.ActionID, &c.CustomDescription, &c.CustomHours, &c.TargetDate,
		&c.PartnerID, &c.RequirePartnerVerification, &c.AllowPublicShare, &status, &c.RelapseReportedAt, &c.ActionDeadline,
		&c.ActionCompletedAt, &c.FinancialAmount, &c.FinancialPaidAt, &c.CharityID, &c.Version, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt)
	if err != nil {
		return nil, translate(err)
	}
	c.Type = models.CommitmentType(typ)
	c.Status = models.CommitmentStatus(status)
	return &c, nil
}

func (r *CommitmentRepo) Create(ctx context.Context, tx pgx.Tx, c *models.Commitment) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO commitments (id, user_id, commitment_type, action_id, custom_description, custom_hours, target_date,
			partner_id, require_partner_verification, allow_public_share, status, financial_amount, charity_id, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1)
		RETURNING version, created_at, updated_at
	`, c.ID, c.UserID, string(c.Type), c.ActionID, c.CustomDescription, c.CustomHours, c.TargetDate,
		c.PartnerID, c.RequirePartnerVerification, c.AllowPublicShare, string(c.Status), c.FinancialAmount, c.CharityID,
	).Scan(&c.Version, &c.CreatedAt, &c.UpdatedAt)
	return translate(err)
}

func (r *CommitmentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Commitment, error) {
	return scanCommitment(r.pool.QueryRow(ctx, `
		SELECT `+commitmentColumns+` FROM commitments WHERE id = $1 AND deleted_at IS NULL
	`, id))
}

// GetByIDForUpdate locks the commitment row until the transaction ends.
func (r *CommitmentRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Commitment, error) {
	return scanCommitment(tx.QueryRow(ctx, `
		SELECT `+commitmentColumns+` FROM commitments WHERE id = $1 AND deleted_at IS NULL FOR UPDATE
	`, id))
}

// Update writes the mutable lifecycle fields. It fails with ErrStaleVersion
// when the row changed since c was read, and bumps c.Version on success.
// Racing writers are settled by the version predicate together with the
// FOR UPDATE lock in GetByIDForUpdate; no test drives two real transactions
// against each other.
func (r *CommitmentRepo) Update(ctx context.Context, tx pgx.Tx, c *models.Commitment) error {
	err := tx.QueryRow(ctx, `
		UPDATE commitments SET status = $3, relapse_reported_at = $4, action_deadline = $5, action_completed_at = $6,
			financial_paid_at = $7, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2 AND deleted_at IS NULL
		RETURNING version, updated_at
	`, c.ID, c.Version, string(c.Status), c.RelapseReportedAt, c.ActionDeadline, c.ActionCompletedAt, c.FinancialPaidAt,
	).Scan(&c.Version, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrStaleVersion
	}
	return translate(err)
}

func (r *CommitmentRepo) SoftDelete(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE commitments SET deleted_at = $2, version = version + 1, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *CommitmentRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Commitment, error) {
	return r.list(ctx, `
		SELECT `+commitmentColumns+` FROM commitments
		WHERE user_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC
	`, userID)
}

// ListAwaitingPartner returns commitments with a proof waiting on partnerID.
func (r *CommitmentRepo) ListAwaitingPartner(ctx context.Context, partnerID uuid.UUID) ([]*models.Commitment, error) {
	return r.list(ctx, `
		SELECT `+commitmentColumns+` FROM commitments
		WHERE partner_id = $1 AND status = 'ACTION_PROOF_SUBMITTED' AND deleted_at IS NULL
		ORDER BY updated_at ASC
	`, partnerID)
}

// ListOverdueIDs returns action-bearing commitments still pending after their deadline.
func (r *CommitmentRepo) ListOverdueIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM commitments
		WHERE status = 'ACTION_PENDING' AND action_deadline < $1 AND commitment_type <> 'FINANCIAL' AND deleted_at IS NULL
		ORDER BY action_deadline ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ProofRef identifies a live proof awaiting auto-approval.
type ProofRef struct {
	CommitmentID uuid.UUID
	ProofID      uuid.UUID
}

// ListAutoApproveCandidates returns live, undecided proofs submitted at or
// before cutoff on commitments that do not require partner verification.
func (r *CommitmentRepo) ListAutoApproveCandidates(ctx context.Context, cutoff time.Time, limit int) ([]ProofRef, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, p.id FROM commitments c
		JOIN action_proofs p ON p.commitment_id = c.id AND NOT p.is_superseded
		WHERE c.status = 'ACTION_PROOF_SUBMITTED' AND NOT c.require_partner_verification AND c.deleted_at IS NULL
			AND p.partner_approved IS NULL AND p.submitted_at <= $1
		ORDER BY p.submitted_at ASC
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var refs []ProofRef
	for rows.Next() {
		var ref ProofRef
		if err := rows.Scan(&ref.CommitmentID, &ref.ProofID); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (r *CommitmentRepo) list(ctx context.Context, sql string, args ...any) ([]*models.Commitment, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Commitment
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}
