package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/redemption/backend/internal/apperr"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type stubTokens struct {
	id   uuid.UUID
	role string
	err  error
}

func (s *stubTokens) ValidateToken(_ context.Context, _ string) (uuid.UUID, string, error) {
	return s.id, s.role, s.err
}

// okHandler writes 200 and the caller id.
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(UserIDFromCtx(r.Context()).String()))
})

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestAuthenticate_ValidToken(t *testing.T) {
	id := uuid.New()
	mw := Authenticate(&stubTokens{id: id, role: "user"})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := rec.Body.String(); body != id.String() {
		t.Errorf("expected user id %q in body, got %q", id, body)
	}
}

func TestAuthenticate_MissingHeader(t *testing.T) {
	mw := Authenticate(&stubTokens{id: uuid.New()})(okHandler)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthenticate_InvalidToken(t *testing.T) {
	mw := Authenticate(&stubTokens{err: errors.New("token is expired")})(okHandler)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer stale")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	cases := []struct {
		name string
		role string
		want int
	}{
		{"admin allowed", "admin", http.StatusOK},
		{"user forbidden", "user", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := Authenticate(&stubTokens{id: uuid.New(), role: tc.role})(RequireRole("admin")(okHandler))
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req.Header.Set("Authorization", "Bearer t")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Errorf("got %d, want %d", rec.Code, tc.want)
			}
		})
	}

	rec := httptest.NewRecorder()
	RequireRole("admin")(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("without principal: got %d, want 401", rec.Code)
	}
}

type stubValidator struct{ err error }

func (s stubValidator) Validate(_ string, _ []byte) error { return s.err }

func TestValidateBody(t *testing.T) {
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		w.Write(b)
	})

	rec := httptest.NewRecorder()
	ValidateBody(stubValidator{}, "s")(echo).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`)))
	if rec.Code != http.StatusOK || rec.Body.String() != `{"a":1}` {
		t.Errorf("valid body should reach handler intact, got %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	ValidateBody(stubValidator{err: apperr.Validation("target_date: missing")}, "s")(echo).
		ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid body: got %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "target_date") {
		t.Errorf("error body should explain the failure, got %q", rec.Body.String())
	}
}
