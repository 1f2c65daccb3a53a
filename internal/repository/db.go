// Package repository holds the pgx-backed persistence for commitments and
// their collaborators. Methods that take a pgx.Tx run inside the caller's
// transaction; the rest use the pool directly.
package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicate         = errors.New("duplicate record")
	ErrReferenceNotFound = errors.New("referenced record not found")
	ErrStaleVersion      = errors.New("record was modified concurrently")
)

// Foreign keys of the commitments table, as named by Postgres.
const (
	FKCommitmentAction  = "commitments_action_id_fkey"
	FKCommitmentPartner = "commitments_partner_id_fkey"
	FKCommitmentCharity = "commitments_charity_id_fkey"
)

// ConstraintError names the constraint a write violated. It matches
// ErrDuplicate or ErrReferenceNotFound through errors.Is.
type ConstraintError struct {
	Kind       error
	Constraint string
}

func (e *ConstraintError) Error() string { return e.Kind.Error() + ": " + e.Constraint }
func (e *ConstraintError) Unwrap() error { return e.Kind }

// Constraint returns the violated constraint carried by err, or "".
func Constraint(err error) string {
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return ce.Constraint
	}
	return ""
}

type scanner interface {
	Scan(dest ...any) error
}

// Migrate applies the embedded schema. Statements are idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return &ConstraintError{Kind: ErrDuplicate, Constraint: pgErr.ConstraintName}
		case "23503":
			return &ConstraintError{Kind: ErrReferenceNotFound, Constraint: pgErr.ConstraintName}
		}
	}
	return err
}

func strPtr(s string) *string { return &s }
