package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/redemption/backend/internal/models"
)

const donationColumns = `id, commitment_id, user_id, charity_id, amount, currency, status, gateway_ref, failure_reason,
	transfer_ref, transferred_at, resolved_at, created_at, updated_at`

type DonationRepo struct {
	pool *pgxpool.Pool
}

func NewDonationRepo(pool *pgxpool.Pool) *DonationRepo {
	return &DonationRepo{pool: pool}
}

func (r *DonationRepo) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func scanDonation(row scanner) (*models.Donation, error) {
	var d models.Donation
	var status string
	err := row.Scan(&d.ID, &d.CommitmentID, &d.UserID, &d.CharityID, &d.AmountMinor, &d.Currency, &status, &d.GatewayRef,
		&d.FailureReason, &d.TransferRef, &d.TransferredAt, &d.ResolvedAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	d.Status = models.DonationStatus(status)
	return &d, nil
}

func (r *DonationRepo) Create(ctx context.Context, tx pgx.Tx, d *models.Donation) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO donations (id, commitment_id, user_id, charity_id, amount, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, d.ID, d.CommitmentID, d.UserID, d.CharityID, d.AmountMinor, d.Currency, string(d.Status)).Scan(&d.CreatedAt, &d.UpdatedAt)
	return translate(err)
}

// Update persists status, gateway reference and resolution fields.
func (r *DonationRepo) Update(ctx context.Context, tx pgx.Tx, d *models.Donation) error {
	err := tx.QueryRow(ctx, `
		UPDATE donations SET status = $2, gateway_ref = $3, failure_reason = $4, resolved_at = $5, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, d.ID, string(d.Status), d.GatewayRef, d.FailureReason, d.ResolvedAt).Scan(&d.UpdatedAt)
	return translate(err)
}

func (r *DonationRepo) GetByGatewayRefForUpdate(ctx context.Context, tx pgx.Tx, ref string) (*models.Donation, error) {
	return scanDonation(tx.QueryRow(ctx, `
		SELECT `+donationColumns+` FROM donations WHERE gateway_ref = $1 FOR UPDATE
	`, ref))
}

func (r *DonationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Donation, error) {
	return scanDonation(r.pool.QueryRow(ctx, `SELECT `+donationColumns+` FROM donations WHERE id = $1`, id))
}

// RecordTransfer stores the payout reference once. A second call is a no-op.
func (r *DonationRepo) RecordTransfer(ctx context.Context, id uuid.UUID, transferRef string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE donations SET transfer_ref = $2, transferred_at = $3, updated_at = now()
		WHERE id = $1 AND transfer_ref IS NULL
	`, id, transferRef, at)
	return err
}

// ListStaleProcessing returns charges still PROCESSING that were last
// updated before the cutoff, oldest first.
func (r *DonationRepo) ListStaleProcessing(ctx context.Context, before time.Time, limit int) ([]*models.Donation, error) {
	return r.list(ctx, `
		SELECT `+donationColumns+` FROM donations
		WHERE status = $1 AND gateway_ref IS NOT NULL AND updated_at < $2
		ORDER BY updated_at
		LIMIT $3
	`, string(models.DonationStatusProcessing), before, limit)
}

func (r *DonationRepo) ListByCommitment(ctx context.Context, commitmentID uuid.UUID) ([]*models.Donation, error) {
	return r.list(ctx, `
		SELECT `+donationColumns+` FROM donations WHERE commitment_id = $1 ORDER BY created_at DESC
	`, commitmentID)
}

func (r *DonationRepo) list(ctx context.Context, sql string, args ...any) ([]*models.Donation, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

func (r *DonationRepo) GetCharity(ctx context.Context, id int64) (*models.Charity, error) {
	var c models.Charity
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, payout_account, is_active FROM charities WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.PayoutAccount, &c.IsActive)
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *DonationRepo) GetPaymentProfile(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.PaymentProfile, error) {
	var p models.PaymentProfile
	err := tx.QueryRow(ctx, `
		SELECT user_id, customer_ref, payment_method_id FROM payment_profiles WHERE user_id = $1
	`, userID).Scan(&p.UserID, &p.CustomerRef, &p.PaymentMethodID)
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *DonationRepo) CreateCharity(ctx context.Context, c *models.Charity) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO charities (name, payout_account, is_active) VALUES ($1, $2, $3) RETURNING id
	`, c.Name, c.PayoutAccount, c.IsActive).Scan(&c.ID)
	return translate(err)
}

// ListActiveCharities returns the charities open for donations, by name.
func (r *DonationRepo) ListActiveCharities(ctx context.Context) ([]*models.Charity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, payout_account, is_active FROM charities WHERE is_active ORDER BY name, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Charity
	for rows.Next() {
		var c models.Charity
		if err := rows.Scan(&c.ID, &c.Name, &c.PayoutAccount, &c.IsActive); err != nil {
			return nil, err
		}
		list = append(list, &c)
	}
	return list, rows.Err()
}

// UpsertPaymentProfile replaces the user's saved payment method.
func (r *DonationRepo) UpsertPaymentProfile(ctx context.Context, p *models.PaymentProfile) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO payment_profiles (user_id, customer_ref, payment_method_id) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET customer_ref = EXCLUDED.customer_ref, payment_method_id = EXCLUDED.payment_method_id
	`, p.UserID, p.CustomerRef, p.PaymentMethodID)
	return translate(err)
}
