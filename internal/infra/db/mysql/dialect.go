package mysql

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/bryanwahyu/automaton-review/internal/infra/db/sqlstore"
)

// LockTimeout is how long GET_LOCK waits, in seconds.
const LockTimeout = 10

// ErrLockTimeout means another writer held the change-set lock for too long.
var ErrLockTimeout = errors.New("mysql: change set lock timeout")

// Dialect serializes run creation per change set with a named lock (GET_LOCK).
// MySQL has no partial unique index, so the lock is the only guard.
type Dialect struct{}

var _ sqlstore.Dialect = Dialect{}

func (Dialect) Name() string { return "mysql" }

func (Dialect) Rebind(q string) string { return q }

func (Dialect) Time(t time.Time) any { return t.UTC() }

// LockName returns the GET_LOCK name for key; names are capped at 64 chars.
func LockName(key string) string {
	sum := sha1.Sum([]byte(key))
	return "ar:" + hex.EncodeToString(sum[:])
}

func (Dialect) Exclusive(ctx context.Context, db *sql.DB, key string, fn func(tx *sql.Tx) error) error {
	// GET_LOCK terikat ke session, jadi koneksi harus di-pin
	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	name := LockName(key)
	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, `SELECT GET_LOCK(?, ?)`, name, LockTimeout).Scan(&got); err != nil {
		return fmt.Errorf("get_lock: %w", err)
	}
	if !got.Valid || got.Int64 != 1 {
		return ErrLockTimeout
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), `DO RELEASE_LOCK(?)`, name)
	}()

	return sqlstore.InTx(ctx, conn, fn)
}

func NewRunRepository(db *sql.DB) *sqlstore.RunRepository {
	return sqlstore.NewRunRepository(db, Dialect{})
}

func NewSuggestionRepository(db *sql.DB) *sqlstore.SuggestionRepository {
	return sqlstore.NewSuggestionRepository(db, Dialect{})
}
