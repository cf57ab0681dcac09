package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// RefreshSourceRepository persists refresh schedule state.
type RefreshSourceRepository struct {
	db DB
}

// NewRefreshSourceRepository creates a new refresh source repository.
func NewRefreshSourceRepository(db DB) *RefreshSourceRepository {
	return &RefreshSourceRepository{db: db}
}

// List returns all sources ordered by name.
func (r *RefreshSourceRepository) List(ctx context.Context) ([]*RefreshSource, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT source, frequency, enabled, last_run, last_status FROM refresh_sources ORDER BY source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*RefreshSource
	for rows.Next() {
		s := &RefreshSource{}
		if err := rows.Scan(&s.Source, &s.Frequency, &s.Enabled, &s.LastRun, &s.LastStatus); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Get returns one source.
func (r *RefreshSourceRepository) Get(ctx context.Context, source string) (*RefreshSource, error) {
	s := &RefreshSource{}
	err := r.db.QueryRowContext(ctx,
		`SELECT source, frequency, enabled, last_run, last_status FROM refresh_sources WHERE source = $1`, source,
	).Scan(&s.Source, &s.Frequency, &s.Enabled, &s.LastRun, &s.LastStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// Seed inserts a source unless it already exists. Existing state is kept.
func (r *RefreshSourceRepository) Seed(ctx context.Context, s *RefreshSource) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_sources (source, frequency, enabled)
		VALUES ($1, $2, $3)
		ON CONFLICT (source) DO NOTHING
	`, s.Source, s.Frequency, s.Enabled)
	return err
}

// Upsert writes the frequency and enabled flag of a source.
func (r *RefreshSourceRepository) Upsert(ctx context.Context, s *RefreshSource) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_sources (source, frequency, enabled)
		VALUES ($1, $2, $3)
		ON CONFLICT (source) DO UPDATE SET frequency = EXCLUDED.frequency, enabled = EXCLUDED.enabled
	`, s.Source, s.Frequency, s.Enabled)
	return err
}

// MarkRun records the outcome of a refresh run.
func (r *RefreshSourceRepository) MarkRun(ctx context.Context, source string, at time.Time, status string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_sources SET last_run = $1, last_status = $2 WHERE source = $3`,
		at.UTC(), status, source,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
