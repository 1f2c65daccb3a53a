package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/redemption/backend/internal/apperr"
)

const maxBodyBytes = 1 << 20

// BodyValidator is implemented by validation.Validator.
type BodyValidator interface {
	Validate(schema string, body []byte) error
}

// ValidateBody checks the JSON body against the named schema, then restores
// r.Body so the handler can decode it again.
func ValidateBody(v BodyValidator, schema string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
			r.Body.Close()
			if err != nil {
				writeError(w, http.StatusBadRequest, "failed to read body")
				return
			}
			if len(body) > maxBodyBytes {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			if len(bytes.TrimSpace(body)) == 0 {
				body = []byte("{}")
			}
			if err := v.Validate(schema, body); err != nil {
				writeError(w, apperr.HTTPStatus(err), apperr.Message(err))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}
