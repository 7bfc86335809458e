package mysql

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS review_runs (
  id            VARCHAR(64)  NOT NULL PRIMARY KEY,
  pr_id         VARCHAR(255) NOT NULL,
  requested_by  VARCHAR(255) NOT NULL DEFAULT '',
  status        VARCHAR(16)  NOT NULL,
  error_message TEXT         NULL,
  created_at    DATETIME(6)  NOT NULL,
  completed_at  DATETIME(6)  NULL,
  KEY idx_review_runs_pr (pr_id, created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS review_suggestions (
  id             VARCHAR(64)  NOT NULL PRIMARY KEY,
  analysis_id    VARCHAR(64)  NOT NULL,
  pr_id          VARCHAR(255) NOT NULL,
  file_path      VARCHAR(1024) NOT NULL,
  line_start     INT          NOT NULL,
  line_end       INT          NOT NULL,
  type           VARCHAR(16)  NOT NULL,
  message        TEXT         NOT NULL,
  explanation    TEXT         NOT NULL,
  original_code  MEDIUMTEXT   NOT NULL,
  suggested_code MEDIUMTEXT   NOT NULL,
  confidence     DOUBLE       NOT NULL,
  status         VARCHAR(16)  NOT NULL DEFAULT 'pending',
  created_at     DATETIME(6)  NOT NULL,
  updated_at     DATETIME(6)  NULL,
  KEY idx_review_suggestions_pr (pr_id),
  KEY idx_review_suggestions_run (analysis_id),
  CONSTRAINT fk_review_suggestions_run FOREIGN KEY (analysis_id) REFERENCES review_runs (id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates the tables if they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("mysql migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
