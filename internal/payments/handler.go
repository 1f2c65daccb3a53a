package payments

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/redemption/backend/internal/apperr"
	"github.com/redemption/backend/internal/middleware"
	"github.com/redemption/backend/internal/models"
)

type CreateCharityRequest struct {
	Name          string `json:"name"`
	PayoutAccount string `json:"payout_account"`
}

type SavePaymentMethodRequest struct {
	CustomerRef     string `json:"customer_ref"`
	PaymentMethodID string `json:"payment_method_id"`
}

// AccountsHandler serves the charity list and the saved payment method.
type AccountsHandler struct {
	svc Accounts
	log *slog.Logger
}

func NewAccountsHandler(svc Accounts, log *slog.Logger) *AccountsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AccountsHandler{svc: svc, log: log}
}

func (h *AccountsHandler) ListCharities(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListCharities(r.Context())
	if err != nil {
		h.fail(w, "list charities failed", err)
		return
	}
	if list == nil {
		list = []*models.Charity{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *AccountsHandler) CreateCharity(w http.ResponseWriter, r *http.Request) {
	var req CreateCharityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	c, err := h.svc.CreateCharity(r.Context(), CharityInput(req))
	if err != nil {
		h.fail(w, "create charity failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *AccountsHandler) SavePaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req SavePaymentMethodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	err := h.svc.SavePaymentMethod(r.Context(), middleware.UserIDFromCtx(r.Context()), PaymentMethodInput(req))
	if err != nil {
		h.fail(w, "save payment method failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountsHandler) fail(w http.ResponseWriter, msg string, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error(msg, "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": apperr.Message(err)})
}
