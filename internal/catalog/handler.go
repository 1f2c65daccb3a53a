package catalog

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/redemption/backend/internal/apperr"
	"github.com/redemption/backend/internal/models"
)

type CreateActionRequest struct {
	Title             string  `json:"title"`
	Description       string  `json:"description"`
	Category          string  `json:"category"`
	Difficulty        string  `json:"difficulty"`
	EstimatedHours    float64 `json:"estimated_hours"`
	ProofInstructions string  `json:"proof_instructions"`
}

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

func (h *Handler) ListActions(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListActive(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		h.log.Error("list actions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list actions failed")
		return
	}
	if list == nil {
		list = []*models.Action{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) CreateAction(w http.ResponseWriter, r *http.Request) {
	var req CreateActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	a, err := h.svc.CreateAction(r.Context(), CreateActionInput(req))
	if err != nil {
		status := apperr.HTTPStatus(err)
		if status == http.StatusInternalServerError {
			h.log.Error("create action failed", "error", err)
		}
		writeError(w, status, apperr.Message(err))
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
