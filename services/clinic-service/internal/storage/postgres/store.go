// Package postgres implements storage.Store on pgx. Every tenant transaction
// is serializable and retried on serialization failures by db.Pool.RunInTx.
package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/clinicops/libs/db"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/storage"
)

//go:embed schema.sql
var schema string

type Store struct {
	pool *db.Pool
}

func New(pool *db.Pool) *Store {
	return &Store{pool: pool}
}

var _ storage.Store = (*Store)(nil)

// Migrate applies the idempotent schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) InTenant(ctx context.Context, companyID string, fn func(ctx context.Context, tx storage.Tx) error) error {
	if !validID(companyID) {
		return model.Invalid("company_id", "must be a UUID")
	}
	return s.pool.RunInTx(ctx, db.Serializable, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &tenantTx{tx: tx, companyID: companyID})
	})
}

func (s *Store) SettledCompanies(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT company_id::text
		FROM appointments
		WHERE paid OR stock_deducted
		ORDER BY 1
	`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

type tenantTx struct {
	tx        pgx.Tx
	companyID string
}

func (t *tenantTx) CompanyID() string { return t.companyID }

// notFound turns pgx.ErrNoRows into model.ErrNotFound.
func notFound(err error, what string) error {
	if db.IsNotFound(err) {
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// validID keeps malformed identifiers away from uuid columns, where they would
// surface as a syntax error instead of a missing row.
func validID(id string) bool {
	return uuid.Validate(id) == nil
}
