package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domain "github.com/bryanwahyu/automaton-review/internal/domain/analysis"
)

// RunRepository implements domain.RunRepository on database/sql.
type RunRepository struct {
	db *sql.DB
	d  Dialect
}

var _ domain.RunRepository = (*RunRepository)(nil)

func NewRunRepository(db *sql.DB, d Dialect) *RunRepository {
	return &RunRepository{db: db, d: d}
}

const runColumns = `id, pr_id, requested_by, status, error_message, created_at, completed_at`

// CreateUnlessActive returns the active run of the change set, or inserts run.
// The check and the insert run under the dialect's per-change-set lock.
func (r *RunRepository) CreateUnlessActive(ctx context.Context, run *domain.Run) (*domain.Run, bool, error) {
	var (
		existing *domain.Run
		created  bool
	)
	err := r.d.Exclusive(ctx, r.db, string(run.ChangeSetID), func(tx *sql.Tx) error {
		q := r.d.Rebind(`SELECT ` + runColumns + ` FROM review_runs
WHERE pr_id=? AND status IN (?, ?)
ORDER BY created_at DESC LIMIT 1`)
		got, err := scanRun(tx.QueryRowContext(ctx, q, string(run.ChangeSetID), string(domain.StatusPending), string(domain.StatusInProgress)))
		switch {
		case err == nil:
			existing = got
			return nil
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}

		ins := r.d.Rebind(`INSERT INTO review_runs (` + runColumns + `) VALUES (?,?,?,?,?,?,?)`)
		if _, err := tx.ExecContext(ctx, ins,
			string(run.ID), string(run.ChangeSetID), run.RequestedBy, string(run.Status), run.Error,
			r.d.Time(run.CreatedAt), r.timePtr(run.CompletedAt),
		); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		return run, true, nil
	}
	return existing, false, nil
}

// Transition applies the status change only if the stored status is still from.
func (r *RunRepository) Transition(ctx context.Context, id domain.RunID, from, to domain.Status, errMsg string, completedAt *time.Time) error {
	q := r.d.Rebind(`UPDATE review_runs SET status=?, error_message=?, completed_at=? WHERE id=? AND status=?`)
	res, err := r.db.ExecContext(ctx, q, string(to), errMsg, r.timePtr(completedAt), string(id), string(from))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	cur, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: stored %s, expected %s", domain.ErrInvalidTransition, cur.Status, from)
}

func (r *RunRepository) Get(ctx context.Context, id domain.RunID) (*domain.Run, error) {
	q := r.d.Rebind(`SELECT ` + runColumns + ` FROM review_runs WHERE id=? LIMIT 1`)
	return scanRun(r.db.QueryRowContext(ctx, q, string(id)))
}

func (r *RunRepository) LatestByChangeSet(ctx context.Context, cs domain.ChangeSetID) (*domain.Run, error) {
	q := r.d.Rebind(`SELECT ` + runColumns + ` FROM review_runs WHERE pr_id=? ORDER BY created_at DESC, id DESC LIMIT 1`)
	return scanRun(r.db.QueryRowContext(ctx, q, string(cs)))
}

// ListByChangeSet returns runs newest first.
func (r *RunRepository) ListByChangeSet(ctx context.Context, cs domain.ChangeSetID, limit int) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	q := r.d.Rebind(`SELECT ` + runColumns + ` FROM review_runs WHERE pr_id=? ORDER BY created_at DESC, id DESC LIMIT ?`)
	rows, err := r.db.QueryContext(ctx, q, string(cs), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (r *RunRepository) timePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return r.d.Time(*t)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*domain.Run, error) {
	var (
		run       domain.Run
		errMsg    sql.NullString
		created   nullTime
		completed nullTime
	)
	if err := row.Scan(&run.ID, &run.ChangeSetID, &run.RequestedBy, &run.Status, &errMsg, &created, &completed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	run.Error = nullString(errMsg)
	run.CreatedAt = created.Time
	run.CompletedAt = completed.ptr()
	return &run, nil
}
