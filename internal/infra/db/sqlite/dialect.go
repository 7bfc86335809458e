package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/bryanwahyu/automaton-review/internal/infra/db/sqlstore"
)

// Dialect relies on the single-connection pool: a transaction holds the only connection.
type Dialect struct{}

var _ sqlstore.Dialect = Dialect{}

func (Dialect) Name() string { return "sqlite" }

func (Dialect) Rebind(q string) string { return q }

func (Dialect) Time(t time.Time) any { return sqlstore.FormatTime(t) }

func (Dialect) Exclusive(ctx context.Context, db *sql.DB, _ string, fn func(tx *sql.Tx) error) error {
	return sqlstore.InTx(ctx, db, fn)
}

func NewRunRepository(db *sql.DB) *sqlstore.RunRepository {
	return sqlstore.NewRunRepository(db, Dialect{})
}

func NewSuggestionRepository(db *sql.DB) *sqlstore.SuggestionRepository {
	return sqlstore.NewSuggestionRepository(db, Dialect{})
}
