// Package postgres keeps the render journal in PostgreSQL through pgx.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"trendmaker/internal/pkg/errors"
	"trendmaker/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS render_journal (
	id           BIGSERIAL PRIMARY KEY,
	job_id       TEXT NOT NULL,
	phase        TEXT NOT NULL,
	server_state TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT '',
	result_url   TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	polls        INTEGER NOT NULL DEFAULT 0,
	generation   BIGINT NOT NULL DEFAULT 0,
	recorded_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_render_journal_job ON render_journal(job_id);
`

type Store struct {
	db   *pgxpool.Pool
	keep int
}

// Open connects to dsn and creates the journal table if needed. keep > 0
// caps the number of rows kept.
func Open(ctx context.Context, dsn string, keep int) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "postgres.Open", "failed to connect to PostgreSQL")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "postgres.Open", "failed to ping PostgreSQL")
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "postgres.Open", "init journal schema")
	}
	return New(pool, keep), nil
}

func New(db *pgxpool.Pool, keep int) *Store {
	return &Store{db: db, keep: keep}
}

func (s *Store) Driver() string { return "postgres" }

func (s *Store) Append(ctx context.Context, e ports.JournalEntry) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO render_journal (job_id, phase, server_state, status, result_url, error, polls, generation, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, e.JobID, e.Phase, e.ServerState, e.Status, e.ResultURL, e.ErrorMessage, e.Polls, int64(e.Generation), e.RecordedAt)
	if err != nil {
		return errors.Wrap(err, "postgres.Append", "insert journal entry")
	}

	if s.keep > 0 {
		_, err = s.db.Exec(ctx, `
			DELETE FROM render_journal
			WHERE id <= (SELECT id FROM render_journal ORDER BY id DESC OFFSET $1 LIMIT 1)
		`, s.keep)
		if err != nil {
			return errors.Wrap(err, "postgres.Append", "trim journal")
		}
	}
	return nil
}

func (s *Store) Recent(ctx context.Context, limit int) ([]ports.JournalEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT job_id, phase, server_state, status, result_url, error, polls, generation, recorded_at
		FROM render_journal
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "postgres.Recent", "query journal")
	}
	defer rows.Close()

	out := []ports.JournalEntry{}
	for rows.Next() {
		var e ports.JournalEntry
		var gen int64
		if err := rows.Scan(&e.JobID, &e.Phase, &e.ServerState, &e.Status, &e.ResultURL, &e.ErrorMessage, &e.Polls, &gen, &e.RecordedAt); err != nil {
			return nil, errors.Wrap(err, "postgres.Recent", "scan journal entry")
		}
		e.Generation = uint64(gen)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) Close() error {
	s.db.Close()
	return nil
}
