package commitments

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/redemption/backend/internal/apperr"
	"github.com/redemption/backend/internal/models"
	"github.com/redemption/backend/internal/repository"
	"github.com/redemption/backend/internal/services"
)

// state is everything the fake database holds. Values are stored by copy so
// a snapshot taken at Begin can be restored on Rollback.
type state struct {
	commitments   map[uuid.UUID]models.Commitment
	proofs        []models.ActionProof
	stats         map[uuid.UUID]models.UserServiceStats
	wall          map[uuid.UUID]models.RedemptionWallEntry
	donations     []models.Donation
	notifications []models.Notification
	scheduled     []scheduledApproval
}

type scheduledApproval struct {
	CommitmentID uuid.UUID
	ProofID      uuid.UUID
	At           time.Time
}

func (s *state) clone() *state {
	cp := &state{
		commitments:   make(map[uuid.UUID]models.Commitment, len(s.commitments)),
		proofs:        append([]models.ActionProof(nil), s.proofs...),
		stats:         make(map[uuid.UUID]models.UserServiceStats, len(s.stats)),
		wall:          make(map[uuid.UUID]models.RedemptionWallEntry, len(s.wall)),
		donations:     append([]models.Donation(nil), s.donations...),
		notifications: append([]models.Notification(nil), s.notifications...),
		scheduled:     append([]scheduledApproval(nil), s.scheduled...),
	}
	for k, v := range s.commitments {
		cp.commitments[k] = v
	}
	for k, v := range s.stats {
		cp.stats[k] = v
	}
	for k, v := range s.wall {
		cp.wall[k] = v
	}
	return cp
}

// world is a single-goroutine fake of Postgres plus the external
// collaborators of the engine.
type world struct {
	st      *state
	actions map[uuid.UUID]models.Action
	now     time.Time

	// users with no account, rejected by the partner foreign key
	unknownUsers map[uuid.UUID]bool

	commits int

	// failure injection
	failUpdate   map[uuid.UUID]error
	failNotify   bool
	failSchedule bool
	chargeErr    error
	charityErr   error
}

func newWorld(now time.Time) *world {
	return &world{
		st: &state{
			commitments: make(map[uuid.UUID]models.Commitment),
			stats:       make(map[uuid.UUID]models.UserServiceStats),
			wall:        make(map[uuid.UUID]models.RedemptionWallEntry),
		},
		actions:      make(map[uuid.UUID]models.Action),
		now:          now,
		unknownUsers: make(map[uuid.UUID]bool),
		failUpdate:   make(map[uuid.UUID]error),
	}
}

func (w *world) engine() *Engine {
	e := NewEngine(Deps{
		Store:      commitmentStore{w},
		Catalog:    catalogFake{w},
		Proofs:     services.NewProofStore(proofRepo{w}),
		Stats:      services.NewStatsAggregator(statsRepo{w}),
		Wall:       services.NewWallPublisher(wallRepo{w}),
		Payments:   paymentsFake{w},
		Donations:  paymentsFake{w},
		Dispatcher: dispatcherFake{w},
	}, DefaultConfig())
	e.Now = func() time.Time { return w.now }
	return e
}

func (w *world) advance(d time.Duration) { w.now = w.now.Add(d) }

func (w *world) commitment(id uuid.UUID) models.Commitment { return w.st.commitments[id] }

func (w *world) addAction(hours float64) uuid.UUID {
	a := models.Action{
		ID:             uuid.New(),
		Title:          "Serve a meal at a shelter",
		Category:       "community",
		Difficulty:     models.ActionDifficultyEasy,
		EstimatedHours: hours,
		IsActive:       true,
	}
	w.actions[a.ID] = a
	return a.ID
}

func (w *world) liveProofs(commitmentID uuid.UUID) int {
	n := 0
	for _, p := range w.st.proofs {
		if p.CommitmentID == commitmentID && !p.IsSuperseded {
			n++
		}
	}
	return n
}

func (w *world) notified(userID uuid.UUID, kind string) bool {
	for _, n := range w.st.notifications {
		if n.UserID == userID && n.Kind == kind {
			return true
		}
	}
	return false
}

// --- transactions ---

type fakeTx struct {
	w    *world
	snap *state
	done bool
}

func (w *world) begin() *fakeTx { return &fakeTx{w: w, snap: w.st.clone()} }

// Begin opens a savepoint.
func (t *fakeTx) Begin(context.Context) (pgx.Tx, error) { return t.w.begin(), nil }

func (t *fakeTx) Commit(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.w.commits++
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.w.st = t.snap
	return nil
}

func (*fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (*fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (*fakeTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (*fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (*fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (*fakeTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (*fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (*fakeTx) Conn() *pgx.Conn { return nil }

// --- Store ---

type commitmentStore struct{ w *world }

func (s commitmentStore) Begin(context.Context) (pgx.Tx, error) { return s.w.begin(), nil }

func (s commitmentStore) Create(_ context.Context, _ pgx.Tx, c *models.Commitment) error {
	if c.ActionID != nil {
		if _, ok := s.w.actions[*c.ActionID]; !ok {
			return &repository.ConstraintError{Kind: repository.ErrReferenceNotFound, Constraint: repository.FKCommitmentAction}
		}
	}
	if c.PartnerID != nil && s.w.unknownUsers[*c.PartnerID] {
		return &repository.ConstraintError{Kind: repository.ErrReferenceNotFound, Constraint: repository.FKCommitmentPartner}
	}
	c.Version = 1
	c.CreatedAt = s.w.now
	c.UpdatedAt = s.w.now
	s.w.st.commitments[c.ID] = *c
	return nil
}

func (s commitmentStore) GetByID(_ context.Context, id uuid.UUID) (*models.Commitment, error) {
	c, ok := s.w.st.commitments[id]
	if !ok || c.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (s commitmentStore) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.Commitment, error) {
	return s.GetByID(ctx, id)
}

func (s commitmentStore) Update(_ context.Context, _ pgx.Tx, c *models.Commitment) error {
	if err := s.w.failUpdate[c.ID]; err != nil {
		return err
	}
	cur, ok := s.w.st.commitments[c.ID]
	if !ok || cur.DeletedAt != nil || cur.Version != c.Version {
		return repository.ErrStaleVersion
	}
	c.Version++
	c.UpdatedAt = s.w.now
	s.w.st.commitments[c.ID] = *c
	return nil
}

func (s commitmentStore) SoftDelete(_ context.Context, _ pgx.Tx, id uuid.UUID, at time.Time) error {
	c, ok := s.w.st.commitments[id]
	if !ok || c.DeletedAt != nil {
		return repository.ErrNotFound
	}
	c.DeletedAt = &at
	c.Version++
	s.w.st.commitments[id] = c
	return nil
}

func (s commitmentStore) list(keep func(models.Commitment) bool) []*models.Commitment {
	var out []*models.Commitment
	for _, c := range s.w.st.commitments {
		if c.DeletedAt == nil && keep(c) {
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s commitmentStore) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.Commitment, error) {
	return s.list(func(c models.Commitment) bool { return c.UserID == userID }), nil
}

func (s commitmentStore) ListAwaitingPartner(_ context.Context, partnerID uuid.UUID) ([]*models.Commitment, error) {
	return s.list(func(c models.Commitment) bool {
		return c.IsPartner(partnerID) && c.Status == models.CommitmentStatusActionProofSubmitted
	}), nil
}

func (s commitmentStore) ListOverdueIDs(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, c := range s.list(func(c models.Commitment) bool {
		return c.Status == models.CommitmentStatusActionPending && c.Type != models.CommitmentTypeFinancial &&
			c.ActionDeadline != nil && c.ActionDeadline.Before(now)
	}) {
		if len(ids) == limit {
			break
		}
		ids = append(ids, c.ID)
	}
	return ids, nil
}

func (s commitmentStore) ListAutoApproveCandidates(_ context.Context, cutoff time.Time, limit int) ([]repository.ProofRef, error) {
	var refs []repository.ProofRef
	for _, p := range s.w.st.proofs {
		c, ok := s.w.st.commitments[p.CommitmentID]
		if !ok || c.DeletedAt != nil || c.RequirePartnerVerification || c.Status != models.CommitmentStatusActionProofSubmitted {
			continue
		}
		if p.IsSuperseded || !p.Pending() || p.SubmittedAt.After(cutoff) {
			continue
		}
		if len(refs) == limit {
			break
		}
		refs = append(refs, repository.ProofRef{CommitmentID: c.ID, ProofID: p.ID})
	}
	return refs, nil
}

// --- ProofRepository ---

type proofRepo struct{ w *world }

func (r proofRepo) SupersedeLive(_ context.Context, _ pgx.Tx, commitmentID uuid.UUID) (int64, error) {
	var n int64
	for i := range r.w.st.proofs {
		if p := &r.w.st.proofs[i]; p.CommitmentID == commitmentID && !p.IsSuperseded {
			p.IsSuperseded = true
			n++
		}
	}
	return n, nil
}

func (r proofRepo) Insert(_ context.Context, _ pgx.Tx, p *models.ActionProof) error {
	if r.w.liveProofs(p.CommitmentID) > 0 {
		return repository.ErrDuplicate
	}
	p.CreatedAt = r.w.now
	r.w.st.proofs = append(r.w.st.proofs, *p)
	return nil
}

func (r proofRepo) GetByID(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.ActionProof, error) {
	for _, p := range r.w.st.proofs {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r proofRepo) FindLive(_ context.Context, _ pgx.Tx, commitmentID uuid.UUID) (*models.ActionProof, error) {
	for _, p := range r.w.st.proofs {
		if p.CommitmentID == commitmentID && !p.IsSuperseded {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r proofRepo) UpdateVerification(_ context.Context, _ pgx.Tx, p *models.ActionProof) error {
	for i := range r.w.st.proofs {
		if r.w.st.proofs[i].ID == p.ID {
			r.w.st.proofs[i] = *p
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r proofRepo) ListByCommitment(_ context.Context, commitmentID uuid.UUID) ([]*models.ActionProof, error) {
	var out []*models.ActionProof
	for _, p := range r.w.st.proofs {
		if p.CommitmentID == commitmentID {
			out = append(out, &p)
		}
	}
	return out, nil
}

// --- StatsRepository ---

type statsRepo struct{ w *world }

func (r statsRepo) LockForUpdate(_ context.Context, _ pgx.Tx, userID uuid.UUID) (*models.UserServiceStats, error) {
	s, ok := r.w.st.stats[userID]
	if !ok {
		s = models.UserServiceStats{UserID: userID}
	}
	return &s, nil
}

func (r statsRepo) Save(_ context.Context, _ pgx.Tx, s *models.UserServiceStats) error {
	r.w.st.stats[s.UserID] = *s
	return nil
}

func (r statsRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.UserServiceStats, error) {
	return r.LockForUpdate(ctx, nil, userID)
}

// --- WallRepository ---

type wallRepo struct{ w *world }

func (r wallRepo) InsertIfAbsent(_ context.Context, _ pgx.Tx, e *models.RedemptionWallEntry) (bool, error) {
	if _, ok := r.w.st.wall[e.CommitmentID]; ok {
		return false, nil
	}
	e.CreatedAt = r.w.now
	r.w.st.wall[e.CommitmentID] = *e
	return true, nil
}

func (r wallRepo) ListRecent(_ context.Context, limit, offset int) ([]*models.RedemptionWallEntry, error) {
	var out []*models.RedemptionWallEntry
	for _, e := range r.w.st.wall {
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- Catalog ---

type catalogFake struct{ w *world }

func (c catalogFake) FindActiveByID(ctx context.Context, id uuid.UUID) (*models.Action, error) {
	a, err := c.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.IsActive {
		return nil, apperr.Validation("action is not available")
	}
	return a, nil
}

func (c catalogFake) GetByID(_ context.Context, id uuid.UUID) (*models.Action, error) {
	a, ok := c.w.actions[id]
	if !ok {
		return nil, apperr.NotFound("action not found")
	}
	return &a, nil
}

// --- PaymentTrigger ---

type paymentsFake struct{ w *world }

func (p paymentsFake) CheckCharity(_ context.Context, _ int64) error { return p.w.charityErr }

func (p paymentsFake) ChargeForFailure(_ context.Context, _ pgx.Tx, c *models.Commitment) (*models.Donation, error) {
	d := models.Donation{
		ID:           uuid.New(),
		CommitmentID: c.ID,
		UserID:       c.UserID,
		CharityID:    *c.CharityID,
		AmountMinor:  *c.FinancialAmount,
		Currency:     "usd",
		Status:       models.DonationStatusPending,
		CreatedAt:    p.w.now,
	}
	p.w.st.donations = append(p.w.st.donations, d)
	if p.w.chargeErr != nil {
		return nil, apperr.Dependency(p.w.chargeErr, "payment gateway rejected the charge")
	}
	d.Status = models.DonationStatusProcessing
	p.w.st.donations[len(p.w.st.donations)-1] = d
	return &d, nil
}

func (p paymentsFake) ListByCommitment(_ context.Context, commitmentID uuid.UUID) ([]*models.Donation, error) {
	var list []*models.Donation
	for i := len(p.w.st.donations) - 1; i >= 0; i-- {
		if d := p.w.st.donations[i]; d.CommitmentID == commitmentID {
			list = append(list, &d)
		}
	}
	return list, nil
}

// --- Dispatcher ---

var errQueueDown = errors.New("queue unavailable")

type dispatcherFake struct{ w *world }

// Notify records n before failing so a test can tell whether the savepoint
// rollback removed it.
func (d dispatcherFake) Notify(_ context.Context, _ pgx.Tx, n models.Notification) error {
	d.w.st.notifications = append(d.w.st.notifications, n)
	if d.w.failNotify {
		return errQueueDown
	}
	return nil
}

func (d dispatcherFake) ScheduleAutoApproval(_ context.Context, _ pgx.Tx, commitmentID, proofID uuid.UUID, at time.Time) error {
	d.w.st.scheduled = append(d.w.st.scheduled, scheduledApproval{commitmentID, proofID, at})
	if d.w.failSchedule {
		return errQueueDown
	}
	return nil
}
