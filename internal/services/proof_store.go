package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/redemption/backend/internal/models"
)

// ClockSkew is how far a client-supplied timestamp may run ahead of the server.
const ClockSkew = 5 * time.Minute

// ProofRepository is the persistence surface the proof store needs.
type ProofRepository interface {
	SupersedeLive(ctx context.Context, tx pgx.Tx, commitmentID uuid.UUID) (int64, error)
	Insert(ctx context.Context, tx pgx.Tx, p *models.ActionProof) error
	GetByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.ActionProof, error)
	FindLive(ctx context.Context, tx pgx.Tx, commitmentID uuid.UUID) (*models.ActionProof, error)
	UpdateVerification(ctx context.Context, tx pgx.Tx, p *models.ActionProof) error
	ListByCommitment(ctx context.Context, commitmentID uuid.UUID) ([]*models.ActionProof, error)
}

// ProofStore keeps the append-only proof history and its single live proof.
// Callers must hold the commitment row lock in tx.
type ProofStore struct {
	Repo ProofRepository
}

func NewProofStore(repo ProofRepository) *ProofStore {
	return &ProofStore{Repo: repo}
}

// SupersedeAndCreate retires every live proof of p's commitment and inserts p
// as the new live proof. Both steps share tx, so a failure leaves the prior
// live proof untouched.
func (s *ProofStore) SupersedeAndCreate(ctx context.Context, tx pgx.Tx, p *models.ActionProof) (superseded int64, err error) {
	superseded, err = s.Repo.SupersedeLive(ctx, tx, p.CommitmentID)
	if err != nil {
		return 0, err
	}
	p.IsSuperseded = false
	if err := s.Repo.Insert(ctx, tx, p); err != nil {
		return 0, err
	}
	return superseded, nil
}

func (s *ProofStore) FindLive(ctx context.Context, tx pgx.Tx, commitmentID uuid.UUID) (*models.ActionProof, error) {
	return s.Repo.FindLive(ctx, tx, commitmentID)
}

func (s *ProofStore) FindByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.ActionProof, error) {
	return s.Repo.GetByID(ctx, tx, id)
}

// History lists every submission for the commitment, newest first.
func (s *ProofStore) History(ctx context.Context, commitmentID uuid.UUID) ([]*models.ActionProof, error) {
	return s.Repo.ListByCommitment(ctx, commitmentID)
}

// Approve records an approval by verifier. auto marks approvals made on the
// owner's behalf after the waiting window.
func (s *ProofStore) Approve(ctx context.Context, tx pgx.Tx, p *models.ActionProof, verifier uuid.UUID, auto bool, at time.Time) error {
	approved := true
	p.PartnerApproved = &approved
	p.VerifiedAt = &at
	p.VerifiedBy = &verifier
	p.AutoApproved = auto
	p.RejectionReason = nil
	p.RejectionNotes = nil
	return s.Repo.UpdateVerification(ctx, tx, p)
}

func (s *ProofStore) Reject(ctx context.Context, tx pgx.Tx, p *models.ActionProof, verifier uuid.UUID, reason models.RejectionReason, notes *string, at time.Time) error {
	approved := false
	p.PartnerApproved = &approved
	p.VerifiedAt = &at
	p.VerifiedBy = &verifier
	p.AutoApproved = false
	p.RejectionReason = &reason
	p.RejectionNotes = notes
	return s.Repo.UpdateVerification(ctx, tx, p)
}

// NormalizeCapturedAt applies the capture-time policy: a missing value or one
// ahead of the server beyond ClockSkew becomes submittedAt, and a value before
// the relapse is kept but flagged.
func NormalizeCapturedAt(claimed *time.Time, submittedAt time.Time, relapseAt *time.Time) (capturedAt time.Time, beforeRelapse bool) {
	capturedAt = submittedAt
	if claimed != nil && !claimed.After(submittedAt.Add(ClockSkew)) {
		capturedAt = *claimed
	}
	if capturedAt.After(submittedAt) {
		capturedAt = submittedAt
	}
	if relapseAt != nil && capturedAt.Before(*relapseAt) {
		beforeRelapse = true
	}
	return capturedAt, beforeRelapse
}
