package sqlite

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// MemoryDSN is a private in-memory database, kept alive by the single pooled connection.
const MemoryDSN = ":memory:"

// Connect opens a SQLite database with one connection, so writers are serialized.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		dsn = MemoryDSN
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, pragma := range []string{`PRAGMA foreign_keys = ON`, `PRAGMA busy_timeout = 5000`} {
		if _, err := db.ExecContext(ctx2, pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}
