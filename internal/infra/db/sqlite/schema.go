package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS review_runs (
  id            TEXT PRIMARY KEY,
  pr_id         TEXT NOT NULL,
  requested_by  TEXT NOT NULL DEFAULT '',
  status        TEXT NOT NULL,
  error_message TEXT NOT NULL DEFAULT '',
  created_at    TEXT NOT NULL,
  completed_at  TEXT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_review_runs_pr ON review_runs (pr_id, created_at)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_review_runs_active ON review_runs (pr_id)
  WHERE status IN ('pending', 'in_progress')`,
	`CREATE TABLE IF NOT EXISTS review_suggestions (
  id             TEXT PRIMARY KEY,
  analysis_id    TEXT NOT NULL REFERENCES review_runs (id) ON DELETE CASCADE,
  pr_id          TEXT NOT NULL,
  file_path      TEXT NOT NULL,
  line_start     INTEGER NOT NULL,
  line_end       INTEGER NOT NULL,
  type           TEXT NOT NULL,
  message        TEXT NOT NULL,
  explanation    TEXT NOT NULL,
  original_code  TEXT NOT NULL,
  suggested_code TEXT NOT NULL,
  confidence     REAL NOT NULL,
  status         TEXT NOT NULL DEFAULT 'pending',
  created_at     TEXT NOT NULL,
  updated_at     TEXT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_review_suggestions_pr ON review_suggestions (pr_id)`,
	`CREATE INDEX IF NOT EXISTS idx_review_suggestions_run ON review_suggestions (analysis_id)`,
}

// Migrate creates the tables if they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
