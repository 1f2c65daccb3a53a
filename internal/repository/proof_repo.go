package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/redemption/backend/internal/models"
)

const proofColumns = `id, commitment_id, user_id, media_type, media_url, thumbnail_url, latitude, longitude, location_name,
	user_notes, reflection, captured_at, submitted_at, captured_before_relapse, partner_approved, verified_at, verified_by, auto_approved,
	rejection_reason, rejection_notes, is_late_submission, is_superseded, created_at`

type ProofRepo struct {
	pool *pgxpool.Pool
}

func NewProofRepo(pool *pgxpool.Pool) *ProofRepo {
	return &ProofRepo{pool: pool}
}

func scanProof(row scanner) (*models.ActionProof, error) {
	var p models.ActionProof
	var mediaType string
	var reason *string
	err := row.Scan(&p.ID, &p.CommitmentID, &p.UserID, &mediaType, &p.MediaURL, &p.ThumbnailURL, &p.Latitude, &p.Longitude,
		&p.LocationName, &p.UserNotes, &p.Reflection, &p.CapturedAt, &p.SubmittedAt, &p.CapturedBeforeRelapse, &p.PartnerApproved,
		&p.VerifiedAt, &p.VerifiedBy, &p.AutoApproved, &reason, &p.RejectionNotes, &p.IsLateSubmission, &p.IsSuperseded,
		&p.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	p.MediaType = models.MediaType(mediaType)
	if reason != nil {
		rr := models.RejectionReason(*reason)
		p.RejectionReason = &rr
	}
	return &p, nil
}

// SupersedeLive marks every live proof of the commitment superseded.
func (r *ProofRepo) SupersedeLive(ctx context.Context, tx pgx.Tx, commitmentID uuid.UUID) (int64, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE action_proofs SET is_superseded = TRUE WHERE commitment_id = $1 AND NOT is_superseded
	`, commitmentID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *ProofRepo) Insert(ctx context.Context, tx pgx.Tx, p *models.ActionProof) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO action_proofs (id, commitment_id, user_id, media_type, media_url, thumbnail_url, latitude, longitude,
			location_name, user_notes, reflection, captured_at, submitted_at, captured_before_relapse, is_late_submission,
			is_superseded)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, FALSE)
		RETURNING created_at
	`, p.ID, p.CommitmentID, p.UserID, string(p.MediaType), p.MediaURL, p.ThumbnailURL, p.Latitude, p.Longitude,
		p.LocationName, p.UserNotes, p.Reflection, p.CapturedAt, p.SubmittedAt, p.CapturedBeforeRelapse, p.IsLateSubmission,
	).Scan(&p.CreatedAt)
	return translate(err)
}

func (r *ProofRepo) GetByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.ActionProof, error) {
	return scanProof(tx.QueryRow(ctx, `SELECT `+proofColumns+` FROM action_proofs WHERE id = $1`, id))
}

func (r *ProofRepo) FindLive(ctx context.Context, tx pgx.Tx, commitmentID uuid.UUID) (*models.ActionProof, error) {
	return scanProof(tx.QueryRow(ctx, `
		SELECT `+proofColumns+` FROM action_proofs WHERE commitment_id = $1 AND NOT is_superseded
	`, commitmentID))
}

// UpdateVerification records a verification decision on a proof.
func (r *ProofRepo) UpdateVerification(ctx context.Context, tx pgx.Tx, p *models.ActionProof) error {
	var reason *string
	if p.RejectionReason != nil {
		reason = strPtr(string(*p.RejectionReason))
	}
	_, err := tx.Exec(ctx, `
		UPDATE action_proofs SET partner_approved = $2, verified_at = $3, verified_by = $4, auto_approved = $5,
			rejection_reason = $6, rejection_notes = $7
		WHERE id = $1
	`, p.ID, p.PartnerApproved, p.VerifiedAt, p.VerifiedBy, p.AutoApproved, reason, p.RejectionNotes)
	return err
}

func (r *ProofRepo) ListByCommitment(ctx context.Context, commitmentID uuid.UUID) ([]*models.ActionProof, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+proofColumns+` FROM action_proofs WHERE commitment_id = $1 ORDER BY submitted_at DESC
	`, commitmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.ActionProof
	for rows.Next() {
		p, err := scanProof(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}
