package commitments

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/redemption/backend/internal/apperr"
	"github.com/redemption/backend/internal/models"
	"github.com/redemption/backend/internal/repository"
	"github.com/redemption/backend/internal/services"
)

type CreateInput struct {
	Type                       models.CommitmentType
	ActionID                   *uuid.UUID
	CustomDescription          *string
	CustomHours                *float64
	TargetDate                 time.Time
	PartnerID                  *uuid.UUID
	RequirePartnerVerification bool
	AllowPublicShare           bool
	FinancialAmount            *int64
	CharityID                  *int64
}

type RelapseResult struct {
	Commitment *models.Commitment
	// Donation is the pending charge for FINANCIAL and HYBRID commitments.
	Donation *models.Donation
}

type ProofInput struct {
	MediaType    models.MediaType
	MediaURL     string
	ThumbnailURL *string
	Latitude     *float64
	Longitude    *float64
	LocationName *string
	UserNotes    *string
	// Reflection is published with the wall entry when the owner shares.
	Reflection   *string
	CapturedAt   *time.Time
}

type SubmitResult struct {
	Commitment                  *models.Commitment
	Proof                       *models.ActionProof
	RequiresPartnerVerification bool
	AutoApproveAt               *time.Time
}

type VerifyInput struct {
	ProofID  uuid.UUID
	Approved bool
	Reason   *models.RejectionReason
	Notes    *string
}

type VerifyResult struct {
	Commitment *models.Commitment
	Proof      *models.ActionProof
	Stats      *models.UserServiceStats
	WallEntry  *models.RedemptionWallEntry
}

// CreateCommitment validates in and stores a new ACTIVE commitment for userID.
func (e *Engine) CreateCommitment(ctx context.Context, userID uuid.UUID, in CreateInput) (*models.Commitment, error) {
	now := e.now()
	if err := e.validateCreate(ctx, userID, in, now); err != nil {
		return nil, err
	}

	c := &models.Commitment{
		ID:                         uuid.New(),
		UserID:                     userID,
		Type:                       in.Type,
		ActionID:                   in.ActionID,
		CustomDescription:          trimmed(in.CustomDescription),
		CustomHours:                in.CustomHours,
		TargetDate:                 in.TargetDate.UTC(),
		PartnerID:                  in.PartnerID,
		RequirePartnerVerification: in.RequirePartnerVerification,
		AllowPublicShare:           in.AllowPublicShare,
		Status:                     models.CommitmentStatusActive,
	}
	if c.HasFinancialPenalty() {
		c.FinancialAmount = in.FinancialAmount
		c.CharityID = in.CharityID
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := e.store.Create(ctx, tx, c); err != nil {
		if errors.Is(err, repository.ErrReferenceNotFound) {
			switch repository.Constraint(err) {
			case repository.FKCommitmentPartner:
				return nil, apperr.Validation("partner does not exist")
			case repository.FKCommitmentAction:
				return nil, apperr.Validation("action does not exist")
			case repository.FKCommitmentCharity:
				return nil, apperr.Validation("charity does not exist")
			}
			return nil, apperr.Validation("referenced action, partner or charity does not exist")
		}
		return nil, err
	}
	e.notifyPartner(ctx, tx, models.NotifyPartnerInvited, c, nil)
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (e *Engine) validateCreate(ctx context.Context, userID uuid.UUID, in CreateInput, now time.Time) error {
	if !in.Type.Valid() {
		return apperr.Validation("commitment_type must be SERVICE, FINANCIAL or HYBRID")
	}
	hasAction := in.ActionID != nil
	hasCustom := trimmed(in.CustomDescription) != nil
	if hasAction == hasCustom {
		return apperr.Validation("exactly one of action_id or custom_description is required")
	}
	if hasCustom && in.PartnerID == nil {
		return apperr.Validation("custom actions require a partner")
	}
	if in.CustomHours != nil && (!hasCustom || *in.CustomHours <= 0) {
		return apperr.Validation("custom_hours must be positive and only accompanies a custom action")
	}
	if in.RequirePartnerVerification && in.PartnerID == nil {
		return apperr.Validation("partner verification requires a partner")
	}
	if in.PartnerID != nil && *in.PartnerID == userID {
		return apperr.Validation("you cannot be your own partner")
	}

	earliest := now.Add(e.cfg.MinTargetLead - targetSlack)
	latest := now.Add(e.cfg.MaxTargetLead + targetSlack)
	if in.TargetDate.Before(earliest) || in.TargetDate.After(latest) {
		return apperr.Validation("target_date must be between 1 and 90 days from now")
	}

	switch in.Type {
	case models.CommitmentTypeFinancial, models.CommitmentTypeHybrid:
		if in.CharityID == nil {
			return apperr.Validation("%s commitments require a charity", strings.ToLower(string(in.Type)))
		}
		if in.FinancialAmount == nil {
			return apperr.Validation("%s commitments require a financial_amount", strings.ToLower(string(in.Type)))
		}
		if amt := *in.FinancialAmount; amt < e.cfg.MinFinancialAmount || amt > e.cfg.MaxFinancialAmount {
			return apperr.Validation("financial_amount must be between %d and %d", e.cfg.MinFinancialAmount, e.cfg.MaxFinancialAmount)
		}
		if err := e.payments.CheckCharity(ctx, *in.CharityID); err != nil {
			return err
		}
	default:
		if in.CharityID != nil || in.FinancialAmount != nil {
			return apperr.Validation("financial_amount and charity_id only apply to FINANCIAL and HYBRID commitments")
		}
	}

	if hasAction {
		if _, err := e.catalog.FindActiveByID(ctx, *in.ActionID); err != nil {
			return err
		}
	}
	return nil
}

// ReportRelapse starts the action window. relapseDate may backdate the
// relapse by at most MaxRelapseBackdate and never before the commitment was
// created. For commitments with a financial penalty the charge is created
// before the transition commits; a gateway failure leaves the commitment ACTIVE.
func (e *Engine) ReportRelapse(ctx context.Context, commitmentID, userID uuid.UUID, relapseDate *time.Time) (*RelapseResult, error) {
	now := e.now()
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	c, err := e.lock(ctx, tx, commitmentID)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, noAccess()
	}
	if c.RelapseReportedAt != nil {
		return nil, apperr.Conflict("relapse already reported")
	}
	if c.Status != models.CommitmentStatusActive {
		return nil, apperr.Conflict("commitment is %s, not ACTIVE", c.Status)
	}

	relapseAt := now
	if relapseDate != nil {
		relapseAt = relapseDate.UTC()
		switch {
		case relapseAt.After(now.Add(services.ClockSkew)):
			return nil, apperr.Validation("relapse_date cannot be in the future")
		case relapseAt.Before(c.CreatedAt):
			return nil, apperr.Validation("relapse_date cannot be before the commitment was created")
		case relapseAt.Before(now.Add(-e.cfg.MaxRelapseBackdate)):
			return nil, apperr.Validation("relapse_date cannot be more than %s in the past", e.cfg.MaxRelapseBackdate)
		}
		if relapseAt.After(now) {
			relapseAt = now
		}
	}
	deadline := relapseAt.Add(e.cfg.ActionWindow)

	from := c.Status
	c.Status = models.CommitmentStatusActionPending
	c.RelapseReportedAt = &relapseAt
	c.ActionDeadline = &deadline
	if err := e.save(ctx, tx, c); err != nil {
		return nil, err
	}

	res := &RelapseResult{Commitment: c}
	if c.HasFinancialPenalty() {
		d, err := e.payments.ChargeForFailure(ctx, tx, c)
		if err != nil {
			return nil, err
		}
		res.Donation = d
	}

	payload := map[string]string{"action_deadline": deadline.Format(time.RFC3339)}
	e.notify(ctx, tx, c.UserID, models.NotifyRelapseReported, c, payload)
	e.notifyPartner(ctx, tx, models.NotifyRelapseReported, c, payload)

	if err := e.commit(ctx, tx, moved(from, c.Status)); err != nil {
		return nil, err
	}
	return res, nil
}

// SubmitProof records new evidence and moves the commitment to
// ACTION_PROOF_SUBMITTED. Any earlier proof is superseded in the same
// transaction.
func (e *Engine) SubmitProof(ctx context.Context, commitmentID, userID uuid.UUID, in ProofInput) (*SubmitResult, error) {
	if !in.MediaType.Valid() {
		return nil, apperr.Validation("media_type must be photo, video or other")
	}
	if strings.TrimSpace(in.MediaURL) == "" {
		return nil, apperr.Validation("media_url is required")
	}
	if (in.Latitude == nil) != (in.Longitude == nil) {
		return nil, apperr.Validation("latitude and longitude must be provided together")
	}

	now := e.now()
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	c, err := e.lock(ctx, tx, commitmentID)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, noAccess()
	}
	if !c.RequiresAction() {
		return nil, apperr.Conflict("financial commitments are resolved by payment, not proof")
	}
	if c.Status != models.CommitmentStatusActionPending && c.Status != models.CommitmentStatusActionOverdue {
		return nil, apperr.Conflict("proof can only be submitted while an action is pending or overdue (status is %s)", c.Status)
	}

	capturedAt, beforeRelapse := services.NormalizeCapturedAt(in.CapturedAt, now, c.RelapseReportedAt)
	p := &models.ActionProof{
		ID:                    uuid.New(),
		CommitmentID:          c.ID,
		UserID:                userID,
		MediaType:             in.MediaType,
		MediaURL:              strings.TrimSpace(in.MediaURL),
		ThumbnailURL:          in.ThumbnailURL,
		Latitude:              in.Latitude,
		Longitude:             in.Longitude,
		LocationName:          in.LocationName,
		UserNotes:             in.UserNotes,
		Reflection:            trimmed(in.Reflection),
		CapturedAt:            capturedAt,
		SubmittedAt:           now,
		CapturedBeforeRelapse: beforeRelapse,
		IsLateSubmission:      c.ActionDeadline != nil && now.After(*c.ActionDeadline),
	}
	if _, err := e.proofs.SupersedeAndCreate(ctx, tx, p); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict("another proof was submitted concurrently, retry")
		}
		return nil, err
	}

	from := c.Status
	c.Status = models.CommitmentStatusActionProofSubmitted
	if err := e.save(ctx, tx, c); err != nil {
		return nil, err
	}

	res := &SubmitResult{Commitment: c, Proof: p, RequiresPartnerVerification: c.RequirePartnerVerification}
	if !c.RequirePartnerVerification {
		at := now.Add(e.cfg.AutoApproveAfter)
		res.AutoApproveAt = &at
		e.enqueue(ctx, tx, "schedule_auto_approval", c.ID, func(sp pgx.Tx) error {
			return e.dispatch.ScheduleAutoApproval(ctx, sp, c.ID, p.ID, at)
		})
	}
	e.notifyPartner(ctx, tx, models.NotifyProofSubmitted, c, map[string]string{
		"proof_id": p.ID.String(),
		"late":     strconv.FormatBool(p.IsLateSubmission),
	})

	if err := e.commit(ctx, tx, moved(from, c.Status)); err != nil {
		return nil, err
	}
	return res, nil
}

// VerifyProof applies the designated partner's decision on the live proof.
func (e *Engine) VerifyProof(ctx context.Context, commitmentID, verifierID uuid.UUID, in VerifyInput) (*VerifyResult, error) {
	if !in.Approved {
		if in.Reason == nil {
			return nil, apperr.Validation("rejection_reason is required when rejecting proof")
		}
		if !in.Reason.Valid() {
			return nil, apperr.Validation("unknown rejection_reason %q", *in.Reason)
		}
	}

	now := e.now()
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	c, err := e.lock(ctx, tx, commitmentID)
	if err != nil {
		return nil, err
	}
	if !c.IsPartner(verifierID) {
		if c.UserID == verifierID {
			return nil, apperr.Forbidden("only the designated partner can verify this proof")
		}
		return nil, noAccess()
	}

	p, err := e.liveProof(ctx, tx, c, in.ProofID)
	if err != nil {
		return nil, err
	}

	from := c.Status
	res := &VerifyResult{Commitment: c, Proof: p}
	if in.Approved {
		if err := e.complete(ctx, tx, c, p, verifierID, false, now, res); err != nil {
			return nil, err
		}
	} else {
		if err := e.proofs.Reject(ctx, tx, p, verifierID, *in.Reason, in.Notes, now); err != nil {
			return nil, err
		}
		c.Status = models.CommitmentStatusActionPending
		if err := e.save(ctx, tx, c); err != nil {
			return nil, err
		}
		e.notify(ctx, tx, c.UserID, models.NotifyProofRejected, c, map[string]string{
			"proof_id": p.ID.String(),
			"reason":   string(*in.Reason),
		})
	}

	if err := e.commit(ctx, tx, moved(from, c.Status)); err != nil {
		return nil, err
	}
	return res, nil
}

// liveProof loads proofID and checks that it is the commitment's undecided
// live proof and that the commitment is waiting on it.
func (e *Engine) liveProof(ctx context.Context, tx pgx.Tx, c *models.Commitment, proofID uuid.UUID) (*models.ActionProof, error) {
	p, err := e.proofs.FindByID(ctx, tx, proofID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && p.CommitmentID != c.ID) {
		return nil, apperr.NotFound("proof not found for this commitment")
	}
	if err != nil {
		return nil, err
	}
	if c.Status != models.CommitmentStatusActionProofSubmitted {
		return nil, apperr.Conflict("commitment is %s, not awaiting verification", c.Status)
	}
	if p.IsSuperseded {
		return nil, apperr.Conflict("proof has been superseded by a newer submission")
	}
	if !p.Pending() {
		return nil, apperr.Conflict("proof has already been verified")
	}
	return p, nil
}

// complete is the single approval path shared by partner verification and
// auto-approval.
func (e *Engine) complete(ctx context.Context, tx pgx.Tx, c *models.Commitment, p *models.ActionProof, verifier uuid.UUID, auto bool, now time.Time, res *VerifyResult) error {
	if err := e.proofs.Approve(ctx, tx, p, verifier, auto, now); err != nil {
		return err
	}
	c.Status = models.CommitmentStatusActionCompleted
	c.ActionCompletedAt = &now
	if err := e.save(ctx, tx, c); err != nil {
		return err
	}

	var action *models.Action
	if c.ActionID != nil {
		a, err := e.catalog.GetByID(ctx, *c.ActionID)
		if err != nil {
			return err
		}
		action = a
	}

	var amount int64
	if c.FinancialAmount != nil {
		amount = *c.FinancialAmount
	}
	paidHybrid := c.Type == models.CommitmentTypeHybrid && c.FinancialPaidAt != nil
	stats, err := e.stats.OnActionCompleted(ctx, tx, c.UserID, services.ServiceHours(c, action), paidHybrid, amount, now)
	if err != nil {
		return err
	}
	entry, err := e.wall.PublishIfEligible(ctx, tx, c, action, p)
	if err != nil {
		return err
	}
	res.Stats = stats
	res.WallEntry = entry

	e.notify(ctx, tx, c.UserID, models.NotifyProofApproved, c, map[string]string{
		"proof_id":      p.ID.String(),
		"auto_approved": strconv.FormatBool(auto),
	})
	return nil
}

// AutoApprove approves proofID on the owner's behalf once it has waited
// AutoApproveAfter without a decision. It reports whether it approved
// anything; a proof that is no longer eligible is skipped without error.
func (e *Engine) AutoApprove(ctx context.Context, commitmentID, proofID uuid.UUID) (bool, error) {
	now := e.now()
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	c, err := e.store.GetByIDForUpdate(ctx, tx, commitmentID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if c.RequirePartnerVerification || c.Status != models.CommitmentStatusActionProofSubmitted {
		return false, nil
	}
	p, err := e.proofs.FindByID(ctx, tx, proofID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if p.CommitmentID != c.ID || p.IsSuperseded || !p.Pending() {
		return false, nil
	}
	if now.Before(p.SubmittedAt.Add(e.cfg.AutoApproveAfter)) {
		return false, nil
	}

	from := c.Status
	if err := e.complete(ctx, tx, c, p, c.UserID, true, now, &VerifyResult{}); err != nil {
		return false, err
	}
	if err := e.commit(ctx, tx, moved(from, c.Status)); err != nil {
		return false, err
	}
	return true, nil
}

// MarkOverdue moves a pending commitment past its deadline to ACTION_OVERDUE
// and breaks the owner's streak. It reports whether it changed anything.
func (e *Engine) MarkOverdue(ctx context.Context, commitmentID uuid.UUID) (bool, error) {
	now := e.now()
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	c, err := e.store.GetByIDForUpdate(ctx, tx, commitmentID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !overdue(c, now) {
		return false, nil
	}

	from := c.Status
	c.Status = models.CommitmentStatusActionOverdue
	if err := e.save(ctx, tx, c); err != nil {
		return false, err
	}
	if _, err := e.stats.OnOverdue(ctx, tx, c.UserID, now); err != nil {
		return false, err
	}
	e.notify(ctx, tx, c.UserID, models.NotifyActionOverdue, c, nil)
	e.notifyPartner(ctx, tx, models.NotifyActionOverdue, c, nil)

	if err := e.commit(ctx, tx, moved(from, c.Status)); err != nil {
		return false, err
	}
	return true, nil
}

// overdue is true for action-bearing commitments still pending after their
// deadline. FINANCIAL commitments are settled by the payment path instead.
func overdue(c *models.Commitment, now time.Time) bool {
	return c.Status == models.CommitmentStatusActionPending &&
		c.RequiresAction() &&
		c.ActionDeadline != nil &&
		now.After(*c.ActionDeadline)
}

// ApplyChargeOutcome updates the commitment after the gateway resolved its
// charge. It runs in the caller's transaction. A successful charge sets
// financialPaidAt and completes a pending FINANCIAL commitment; a failed one
// fails a pending FINANCIAL commitment. HYBRID commitments keep their action
// path either way.
func (e *Engine) ApplyChargeOutcome(ctx context.Context, tx pgx.Tx, commitmentID uuid.UUID, paid bool, at time.Time) error {
	c, err := e.store.GetByIDForUpdate(ctx, tx, commitmentID)
	if err != nil {
		return err
	}
	from := c.Status
	changed := false
	if paid {
		if c.FinancialPaidAt == nil {
			t := at.UTC()
			c.FinancialPaidAt = &t
			changed = true
		}
		if c.Type == models.CommitmentTypeFinancial && c.Status == models.CommitmentStatusActionPending {
			c.Status = models.CommitmentStatusCompleted
			changed = true
		}
	} else if c.Type == models.CommitmentTypeFinancial && c.Status == models.CommitmentStatusActionPending {
		c.Status = models.CommitmentStatusFailed
		changed = true
	}
	if changed {
		if err := e.save(ctx, tx, c); err != nil {
			return err
		}
		if from != c.Status {
			e.metrics.Transition(string(from), string(c.Status))
		}
	}
	if paid {
		e.notify(ctx, tx, c.UserID, models.NotifyPaymentCompleted, c, nil)
	} else {
		e.notify(ctx, tx, c.UserID, models.NotifyPaymentFailed, c, nil)
	}
	if from != c.Status && c.Status == models.CommitmentStatusCompleted {
		e.notify(ctx, tx, c.UserID, models.NotifyCommitmentComplete, c, nil)
	}
	return nil
}

// Delete tombstones a commitment that has not been triggered yet.
func (e *Engine) Delete(ctx context.Context, commitmentID, userID uuid.UUID) error {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	c, err := e.lock(ctx, tx, commitmentID)
	if err != nil {
		return err
	}
	if c.UserID != userID {
		return noAccess()
	}
	if c.Status != models.CommitmentStatusActive {
		return apperr.Conflict("only commitments without a reported relapse can be deleted")
	}
	if err := e.store.SoftDelete(ctx, tx, c.ID, e.now()); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
