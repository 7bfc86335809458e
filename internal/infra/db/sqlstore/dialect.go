package sqlstore

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"
)

// Dialect captures what differs between the SQL backends.
type Dialect interface {
	Name() string
	// Rebind rewrites "?" placeholders into the driver's syntax.
	Rebind(q string) string
	// Time converts a timestamp into the value bound for a timestamp column.
	Time(t time.Time) any
	// Exclusive runs fn in a transaction while holding an exclusive lock for key.
	Exclusive(ctx context.Context, db *sql.DB, key string, fn func(tx *sql.Tx) error) error
}

// RebindDollar converts "?" into "$1, $2, ..." (Postgres).
func RebindDollar(q string) string {
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// InTx runs fn inside a transaction on db, rolling back on error.
func InTx(ctx context.Context, db interface {
	BeginTx(context.Context, *sql.TxOptions) (*sql.Tx, error)
}, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
