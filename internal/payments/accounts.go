package payments

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/redemption/backend/internal/apperr"
	"github.com/redemption/backend/internal/models"
)

// Accounts manages the charities penalties are paid to and the payment
// methods users are charged on.
type Accounts interface {
	ListCharities(ctx context.Context) ([]*models.Charity, error)
	CreateCharity(ctx context.Context, in CharityInput) (*models.Charity, error)
	SavePaymentMethod(ctx context.Context, userID uuid.UUID, in PaymentMethodInput) error
}

// AccountStore is implemented by repository.DonationRepo.
type AccountStore interface {
	CreateCharity(ctx context.Context, c *models.Charity) error
	ListActiveCharities(ctx context.Context) ([]*models.Charity, error)
	UpsertPaymentProfile(ctx context.Context, p *models.PaymentProfile) error
}

type CharityInput struct {
	Name          string
	PayoutAccount string
}

// PaymentMethodInput names a payment method the client already attached to
// the gateway customer.
type PaymentMethodInput struct {
	CustomerRef     string
	PaymentMethodID string
}

type accounts struct {
	store   AccountStore
	gateway Gateway
	log     *slog.Logger
}

func NewAccounts(store AccountStore, gateway Gateway, log *slog.Logger) *accounts {
	if log == nil {
		log = slog.Default()
	}
	return &accounts{store: store, gateway: gateway, log: log}
}

var _ Accounts = (*accounts)(nil)

func (a *accounts) ListCharities(ctx context.Context) ([]*models.Charity, error) {
	return a.store.ListActiveCharities(ctx)
}

func (a *accounts) CreateCharity(ctx context.Context, in CharityInput) (*models.Charity, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	account := strings.TrimSpace(in.PayoutAccount)
	if !strings.HasPrefix(account, "acct_") {
		return nil, apperr.Validation("payout_account must be a connected account id (acct_...)")
	}
	c := &models.Charity{Name: name, PayoutAccount: account, IsActive: true}
	if err := a.store.CreateCharity(ctx, c); err != nil {
		return nil, err
	}
	a.log.Info("charity created", "charity_id", c.ID, "name", c.Name)
	return c, nil
}

// SavePaymentMethod checks the method with the gateway before storing it, so
// a later off-session charge does not fail on a method that was never
// attached.
func (a *accounts) SavePaymentMethod(ctx context.Context, userID uuid.UUID, in PaymentMethodInput) error {
	customer := strings.TrimSpace(in.CustomerRef)
	method := strings.TrimSpace(in.PaymentMethodID)
	if !strings.HasPrefix(customer, "cus_") {
		return apperr.Validation("customer_ref must be a customer id (cus_...)")
	}
	if !strings.HasPrefix(method, "pm_") {
		return apperr.Validation("payment_method_id must be a payment method id (pm_...)")
	}
	err := a.gateway.VerifyPaymentMethod(ctx, customer, method)
	if errors.Is(err, ErrPaymentMethodNotAttached) {
		return apperr.Validation("payment method is not attached to the customer")
	}
	if err != nil {
		return apperr.Dependency(err, "payment gateway could not verify the payment method")
	}
	if err := a.store.UpsertPaymentProfile(ctx, &models.PaymentProfile{
		UserID:          userID,
		CustomerRef:     customer,
		PaymentMethodID: method,
	}); err != nil {
		return err
	}
	a.log.Info("payment method saved", "user_id", userID)
	return nil
}
