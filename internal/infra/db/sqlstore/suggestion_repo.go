package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domain "github.com/bryanwahyu/automaton-review/internal/domain/analysis"
)

type SuggestionRepository struct {
	db *sql.DB
	d  Dialect
}

var _ domain.SuggestionRepository = (*SuggestionRepository)(nil)

func NewSuggestionRepository(db *sql.DB, d Dialect) *SuggestionRepository {
	return &SuggestionRepository{db: db, d: d}
}

const suggestionColumns = `id, analysis_id, pr_id, file_path, line_start, line_end, type,
 message, explanation, original_code, suggested_code, confidence, status, created_at, updated_at`

// SaveBatch insert semua suggestion satu file dalam satu transaksi
func (r *SuggestionRepository) SaveBatch(ctx context.Context, batch []*domain.Suggestion) error {
	if len(batch) == 0 {
		return nil
	}
	q := r.d.Rebind(`INSERT INTO review_suggestions (` + suggestionColumns + `)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	return InTx(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, s := range batch {
			var updated any
			if s.UpdatedAt != nil {
				updated = r.d.Time(*s.UpdatedAt)
			}
			if _, err := stmt.ExecContext(ctx,
				string(s.ID), string(s.RunID), string(s.ChangeSetID), s.FilePath, s.Lines.Start, s.Lines.End, string(s.Category),
				s.Message, s.Explanation, s.OriginalCode, s.SuggestedCode, s.Confidence, string(s.Disposition),
				r.d.Time(s.CreatedAt), updated,
			); err != nil {
				return fmt.Errorf("insert suggestion %s: %w", s.ID, err)
			}
		}
		return nil
	})
}

func (r *SuggestionRepository) ListByChangeSet(ctx context.Context, cs domain.ChangeSetID) ([]*domain.Suggestion, error) {
	q := r.d.Rebind(`SELECT ` + suggestionColumns + ` FROM review_suggestions
WHERE pr_id=? ORDER BY created_at DESC, file_path, line_start`)
	return r.list(ctx, q, string(cs))
}

func (r *SuggestionRepository) ListByRun(ctx context.Context, id domain.RunID) ([]*domain.Suggestion, error) {
	q := r.d.Rebind(`SELECT ` + suggestionColumns + ` FROM review_suggestions
WHERE analysis_id=? ORDER BY file_path, line_start`)
	return r.list(ctx, q, string(id))
}

// UpdateDisposition simpan status review lalu return row terbaru
func (r *SuggestionRepository) UpdateDisposition(ctx context.Context, id domain.SuggestionID, d domain.Disposition, at time.Time) (*domain.Suggestion, error) {
	q := r.d.Rebind(`UPDATE review_suggestions SET status=?, updated_at=? WHERE id=?`)
	if _, err := r.db.ExecContext(ctx, q, string(d), r.d.Time(at), string(id)); err != nil {
		return nil, err
	}
	// RowsAffected tidak dipakai: MySQL return 0 kalau value sama
	sel := r.d.Rebind(`SELECT ` + suggestionColumns + ` FROM review_suggestions WHERE id=? LIMIT 1`)
	return scanSuggestion(r.db.QueryRowContext(ctx, sel, string(id)))
}

func (r *SuggestionRepository) list(ctx context.Context, q string, args ...any) ([]*domain.Suggestion, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*domain.Suggestion{}
	for rows.Next() {
		s, err := scanSuggestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSuggestion(row scanner) (*domain.Suggestion, error) {
	var (
		s       domain.Suggestion
		created nullTime
		updated nullTime
	)
	if err := row.Scan(
		&s.ID, &s.RunID, &s.ChangeSetID, &s.FilePath, &s.Lines.Start, &s.Lines.End, &s.Category,
		&s.Message, &s.Explanation, &s.OriginalCode, &s.SuggestedCode, &s.Confidence, &s.Disposition,
		&created, &updated,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	s.CreatedAt = created.Time
	s.UpdatedAt = updated.ptr()
	return &s, nil
}
