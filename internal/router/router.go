package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/redemption/backend/internal/auth"
	"github.com/redemption/backend/internal/catalog"
	"github.com/redemption/backend/internal/commitments"
	"github.com/redemption/backend/internal/middleware"
	"github.com/redemption/backend/internal/models"
	"github.com/redemption/backend/internal/payments"
	"github.com/redemption/backend/internal/validation"
)

// Handlers groups the HTTP surfaces mounted by New. Metrics may be nil.
type Handlers struct {
	Auth        *auth.Handler
	Catalog     *catalog.Handler
	Commitments *commitments.Handler
	Accounts    *payments.AccountsHandler
	Webhook     http.Handler
	Metrics     http.Handler
}

// New returns an http.Handler that serves the API under /api/v1.
func New(h Handlers, tokens middleware.TokenValidator, bodies middleware.BodyValidator, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics)
	}
	if h.Webhook != nil {
		r.Method(http.MethodPost, "/webhooks/payments", h.Webhook)
	}

	body := func(schema string) func(http.Handler) http.Handler {
		return middleware.ValidateBody(bodies, schema)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", h.Auth.Register)
		r.Post("/auth/login", h.Auth.Login)
		r.Get("/wall", h.Commitments.Wall)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(tokens))

			r.Get("/actions", h.Catalog.ListActions)
			r.With(middleware.RequireRole(models.UserRoleAdmin), body(validation.CreateAction)).
				Post("/actions", h.Catalog.CreateAction)

			r.Get("/stats/me", h.Commitments.MyStats)

			r.Get("/charities", h.Accounts.ListCharities)
			r.With(middleware.RequireRole(models.UserRoleAdmin), body(validation.CreateCharity)).
				Post("/charities", h.Accounts.CreateCharity)
			r.With(body(validation.SavePaymentMethod)).Post("/payment-method", h.Accounts.SavePaymentMethod)

			r.Route("/commitments", func(r chi.Router) {
				r.With(body(validation.CreateCommitment)).Post("/", h.Commitments.Create)
				r.Get("/", h.Commitments.ListMine)
				r.Get("/awaiting-verification", h.Commitments.ListAwaitingVerification)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.Commitments.Get)
					r.Delete("/", h.Commitments.Delete)
					r.With(body(validation.ReportRelapse)).Post("/report-relapse", h.Commitments.ReportRelapse)
					r.With(body(validation.SubmitProof)).Post("/submit-proof", h.Commitments.SubmitProof)
					r.With(body(validation.VerifyProof)).Post("/verify-proof", h.Commitments.VerifyProof)
					r.Get("/check-deadline", h.Commitments.CheckDeadline)
					r.Get("/proofs", h.Commitments.ListProofs)
					r.Get("/donations", h.Commitments.ListDonations)
				})
			})
		})
	})
	return r
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", chimw.GetReqID(r.Context()),
			)
		})
	}
}
