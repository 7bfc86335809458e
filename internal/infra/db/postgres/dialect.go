package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/bryanwahyu/automaton-review/internal/infra/db/sqlstore"
)

// Dialect serializes run creation per change set with a transaction-scoped advisory lock.
type Dialect struct{}

var _ sqlstore.Dialect = Dialect{}

func (Dialect) Name() string { return "postgres" }

func (Dialect) Rebind(q string) string { return sqlstore.RebindDollar(q) }

func (Dialect) Time(t time.Time) any { return t.UTC() }

func (Dialect) Exclusive(ctx context.Context, db *sql.DB, key string, fn func(tx *sql.Tx) error) error {
	return sqlstore.InTx(ctx, db, func(tx *sql.Tx) error {
		// lock dilepas otomatis saat commit/rollback
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return err
		}
		return fn(tx)
	})
}

func NewRunRepository(db *sql.DB) *sqlstore.RunRepository {
	return sqlstore.NewRunRepository(db, Dialect{})
}

func NewSuggestionRepository(db *sql.DB) *sqlstore.SuggestionRepository {
	return sqlstore.NewSuggestionRepository(db, Dialect{})
}
