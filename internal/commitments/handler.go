package commitments

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/redemption/backend/internal/apperr"
	"github.com/redemption/backend/internal/middleware"
	"github.com/redemption/backend/internal/models"
)

// Service is the engine surface the HTTP layer uses.
type Service interface {
	CreateCommitment(ctx context.Context, userID uuid.UUID, in CreateInput) (*models.Commitment, error)
	ReportRelapse(ctx context.Context, commitmentID, userID uuid.UUID, relapseDate *time.Time) (*RelapseResult, error)
	SubmitProof(ctx context.Context, commitmentID, userID uuid.UUID, in ProofInput) (*SubmitResult, error)
	VerifyProof(ctx context.Context, commitmentID, verifierID uuid.UUID, in VerifyInput) (*VerifyResult, error)
	CheckDeadline(ctx context.Context, commitmentID, userID uuid.UUID) (*DeadlineStatus, error)
	Get(ctx context.Context, commitmentID, userID uuid.UUID) (*models.Commitment, error)
	ListMine(ctx context.Context, userID uuid.UUID) ([]*models.Commitment, error)
	ListAwaitingVerification(ctx context.Context, partnerID uuid.UUID) ([]*models.Commitment, error)
	ListProofs(ctx context.Context, commitmentID, userID uuid.UUID) ([]*models.ActionProof, error)
	ListDonations(ctx context.Context, commitmentID, userID uuid.UUID) ([]*models.Donation, error)
	Delete(ctx context.Context, commitmentID, userID uuid.UUID) error
	Stats(ctx context.Context, userID uuid.UUID) (*models.UserServiceStats, error)
	Wall(ctx context.Context, limit, offset int) ([]*models.RedemptionWallEntry, error)
}

var _ Service = (*Engine)(nil)

// Request bodies (snake_case JSON). Shapes are checked by the validation
// middleware before they reach the handler.

type CreateRequest struct {
	CommitmentType             string   `json:"commitment_type"`
	ActionID                   *string  `json:"action_id"`
	CustomDescription          *string  `json:"custom_description"`
	CustomHours                *float64 `json:"custom_hours"`
	TargetDate                 string   `json:"target_date"`
	PartnerID                  *string  `json:"partner_id"`
	RequirePartnerVerification bool     `json:"require_partner_verification"`
	AllowPublicShare           bool     `json:"allow_public_share"`
	FinancialAmount            *int64   `json:"financial_amount"`
	CharityID                  *int64   `json:"charity_id"`
}

type ReportRelapseRequest struct {
	RelapseDate *string `json:"relapse_date"`
}

type SubmitProofRequest struct {
	MediaType    string   `json:"media_type"`
	MediaURL     string   `json:"media_url"`
	ThumbnailURL *string  `json:"thumbnail_url"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	LocationName *string  `json:"location_name"`
	UserNotes    *string  `json:"user_notes"`
	Reflection   *string  `json:"reflection"`
	CapturedAt   *string  `json:"captured_at"`
}

type VerifyProofRequest struct {
	ProofID         string  `json:"proof_id"`
	Approved        bool    `json:"approved"`
	RejectionReason *string `json:"rejection_reason"`
	RejectionNotes  *string `json:"rejection_notes"`
}

// Response is the envelope every lifecycle operation returns.
type Response struct {
	Success                     bool                        `json:"success"`
	Status                      models.CommitmentStatus     `json:"status,omitempty"`
	Commitment                  *models.Commitment          `json:"commitment,omitempty"`
	Donation                    *models.Donation            `json:"donation,omitempty"`
	Proof                       *models.ActionProof         `json:"proof,omitempty"`
	RequiresPartnerVerification *bool                       `json:"requires_partner_verification,omitempty"`
	AutoApproveAt               *time.Time                  `json:"auto_approve_at,omitempty"`
	Stats                       *models.UserServiceStats    `json:"stats,omitempty"`
	WallEntry                   *models.RedemptionWallEntry `json:"wall_entry,omitempty"`
	Error                       string                      `json:"error,omitempty"`
}

type DeadlineResponse struct {
	Success          bool                    `json:"success"`
	Status           models.CommitmentStatus `json:"status"`
	ActionDeadline   *time.Time              `json:"action_deadline,omitempty"`
	RemainingSeconds int64                   `json:"remaining_seconds"`
	IsOverdue        bool                    `json:"is_overdue"`
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

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	var req CreateRequest
	if !decode(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		h.fail(w, err)
		return
	}
	c, err := h.svc.CreateCommitment(r.Context(), userID, in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Response{Success: true, Status: c.Status, Commitment: c})
}

func (req CreateRequest) input() (CreateInput, error) {
	in := CreateInput{
		Type:                       models.CommitmentType(req.CommitmentType),
		CustomDescription:          req.CustomDescription,
		CustomHours:                req.CustomHours,
		RequirePartnerVerification: req.RequirePartnerVerification,
		AllowPublicShare:           req.AllowPublicShare,
		FinancialAmount:            req.FinancialAmount,
		CharityID:                  req.CharityID,
	}
	var err error
	if in.ActionID, err = parseOptionalUUID("action_id", req.ActionID); err != nil {
		return in, err
	}
	if in.PartnerID, err = parseOptionalUUID("partner_id", req.PartnerID); err != nil {
		return in, err
	}
	target, err := parseTime("target_date", req.TargetDate)
	if err != nil {
		return in, err
	}
	in.TargetDate = target
	return in, nil
}

func (h *Handler) ReportRelapse(w http.ResponseWriter, r *http.Request) {
	id, ok := h.commitmentID(w, r)
	if !ok {
		return
	}
	var req ReportRelapseRequest
	if !decode(w, r, &req) {
		return
	}
	var relapseDate *time.Time
	if req.RelapseDate != nil {
		t, err := parseTime("relapse_date", *req.RelapseDate)
		if err != nil {
			h.fail(w, err)
			return
		}
		relapseDate = &t
	}
	res, err := h.svc.ReportRelapse(r.Context(), id, middleware.UserIDFromCtx(r.Context()), relapseDate)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Success:    true,
		Status:     res.Commitment.Status,
		Commitment: res.Commitment,
		Donation:   res.Donation,
	})
}

func (h *Handler) SubmitProof(w http.ResponseWriter, r *http.Request) {
	id, ok := h.commitmentID(w, r)
	if !ok {
		return
	}
	var req SubmitProofRequest
	if !decode(w, r, &req) {
		return
	}
	in := ProofInput{
		MediaType:    models.MediaType(req.MediaType),
		MediaURL:     req.MediaURL,
		ThumbnailURL: req.ThumbnailURL,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		LocationName: req.LocationName,
		UserNotes:    req.UserNotes,
		Reflection:   req.Reflection,
	}
	if req.CapturedAt != nil {
		t, err := parseTime("captured_at", *req.CapturedAt)
		if err != nil {
			h.fail(w, err)
			return
		}
		in.CapturedAt = &t
	}
	res, err := h.svc.SubmitProof(r.Context(), id, middleware.UserIDFromCtx(r.Context()), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	requires := res.RequiresPartnerVerification
	writeJSON(w, http.StatusCreated, Response{
		Success:                     true,
		Status:                      res.Commitment.Status,
		Commitment:                  res.Commitment,
		Proof:                       res.Proof,
		RequiresPartnerVerification: &requires,
		AutoApproveAt:               res.AutoApproveAt,
	})
}

func (h *Handler) VerifyProof(w http.ResponseWriter, r *http.Request) {
	id, ok := h.commitmentID(w, r)
	if !ok {
		return
	}
	var req VerifyProofRequest
	if !decode(w, r, &req) {
		return
	}
	proofID, err := uuid.Parse(req.ProofID)
	if err != nil {
		h.fail(w, apperr.Validation("proof_id must be a UUID"))
		return
	}
	in := VerifyInput{ProofID: proofID, Approved: req.Approved, Notes: req.RejectionNotes}
	if req.RejectionReason != nil {
		reason := models.RejectionReason(*req.RejectionReason)
		in.Reason = &reason
	}
	res, err := h.svc.VerifyProof(r.Context(), id, middleware.UserIDFromCtx(r.Context()), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Success:    true,
		Status:     res.Commitment.Status,
		Commitment: res.Commitment,
		Proof:      res.Proof,
		Stats:      res.Stats,
		WallEntry:  res.WallEntry,
	})
}

func (h *Handler) CheckDeadline(w http.ResponseWriter, r *http.Request) {
	id, ok := h.commitmentID(w, r)
	if !ok {
		return
	}
	ds, err := h.svc.CheckDeadline(r.Context(), id, middleware.UserIDFromCtx(r.Context()))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DeadlineResponse{
		Success:          true,
		Status:           ds.Commitment.Status,
		ActionDeadline:   ds.ActionDeadline,
		RemainingSeconds: ds.RemainingSeconds,
		IsOverdue:        ds.IsOverdue,
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.commitmentID(w, r)
	if !ok {
		return
	}
	c, err := h.svc.Get(r.Context(), id, middleware.UserIDFromCtx(r.Context()))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Status: c.Status, Commitment: c})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.commitmentID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id, middleware.UserIDFromCtx(r.Context())); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListMine(r.Context(), middleware.UserIDFromCtx(r.Context()))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeList(w, list)
}

func (h *Handler) ListAwaitingVerification(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListAwaitingVerification(r.Context(), middleware.UserIDFromCtx(r.Context()))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeList(w, list)
}

func (h *Handler) ListProofs(w http.ResponseWriter, r *http.Request) {
	id, ok := h.commitmentID(w, r)
	if !ok {
		return
	}
	list, err := h.svc.ListProofs(r.Context(), id, middleware.UserIDFromCtx(r.Context()))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeList(w, list)
}

func (h *Handler) ListDonations(w http.ResponseWriter, r *http.Request) {
	id, ok := h.commitmentID(w, r)
	if !ok {
		return
	}
	list, err := h.svc.ListDonations(r.Context(), id, middleware.UserIDFromCtx(r.Context()))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeList(w, list)
}

func (h *Handler) MyStats(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Stats(r.Context(), middleware.UserIDFromCtx(r.Context()))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Wall is public; entries carry no user identifiers.
func (h *Handler) Wall(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	list, err := h.svc.Wall(r.Context(), limit, offset)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeList(w, list)
}

func (h *Handler) commitmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, apperr.NotFound(msgNoAccess))
		return uuid.Nil, false
	}
	return id, true
}

// fail writes err as a JSON error. Concealed authorization failures look
// exactly like a missing commitment.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if IsConcealed(err) {
		status = http.StatusNotFound
	}
	msg := apperr.Message(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("commitment request failed", "status", status, "error", err)
	}
	writeJSON(w, status, Response{Success: false, Error: msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Error: "invalid JSON"})
		return false
	}
	return true
}

func parseOptionalUUID(field string, s *string) (*uuid.UUID, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, apperr.Validation("%s must be a UUID", field)
	}
	return &id, nil
}

// parseTime accepts RFC 3339 timestamps and plain dates (midnight UTC).
func parseTime(field, s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, apperr.Validation("%s must be an RFC 3339 timestamp or a YYYY-MM-DD date", field)
}

func writeList[T any](w http.ResponseWriter, list []T) {
	if list == nil {
		list = []T{}
	}
	writeJSON(w, http.StatusOK, list)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
