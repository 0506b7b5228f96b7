// Package sqlite keeps the render journal in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"trendmaker/internal/pkg/errors"
	"trendmaker/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS render_journal (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id       TEXT NOT NULL,
    phase        TEXT NOT NULL,
    server_state TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL DEFAULT '',
    result_url   TEXT NOT NULL DEFAULT '',
    error        TEXT NOT NULL DEFAULT '',
    polls        INTEGER NOT NULL DEFAULT 0,
    generation   INTEGER NOT NULL DEFAULT 0,
    recorded_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_render_journal_job ON render_journal(job_id);
`

// Store implements ports.JournalStore using SQLite.
type Store struct {
	db   *sql.DB
	keep int
}

// New opens (and creates) the database at dbPath. keep > 0 caps the
// number of rows retained.
func New(dbPath string, keep int) (*Store, error) {
	path := strings.TrimPrefix(dbPath, "file:")
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "sqlite.New", "create journal directory")
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite.New", "open journal")
	}
	// one writer at a time
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "sqlite.New", "init journal schema")
	}

	return &Store{db: db, keep: keep}, nil
}

func (s *Store) Driver() string { return "sqlite" }

func (s *Store) Append(ctx context.Context, e ports.JournalEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO render_journal (job_id, phase, server_state, status, result_url, error, polls, generation, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.JobID, e.Phase, e.ServerState, e.Status, e.ResultURL, e.ErrorMessage, e.Polls, int64(e.Generation), e.RecordedAt.UnixMilli(),
	)
	if err != nil {
		return errors.Wrap(err, "sqlite.Append", "insert journal entry")
	}

	if s.keep > 0 {
		_, err = s.db.ExecContext(ctx,
			`DELETE FROM render_journal WHERE id NOT IN (SELECT id FROM render_journal ORDER BY id DESC LIMIT ?)`,
			s.keep,
		)
		if err != nil {
			return errors.Wrap(err, "sqlite.Append", "trim journal")
		}
	}
	return nil
}

func (s *Store) Recent(ctx context.Context, limit int) ([]ports.JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, phase, server_state, status, result_url, error, polls, generation, recorded_at
		 FROM render_journal ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite.Recent", "query journal")
	}
	defer rows.Close()

	out := []ports.JournalEntry{}
	for rows.Next() {
		var e ports.JournalEntry
		var gen, at int64
		if err := rows.Scan(&e.JobID, &e.Phase, &e.ServerState, &e.Status, &e.ResultURL, &e.ErrorMessage, &e.Polls, &gen, &at); err != nil {
			return nil, errors.Wrap(err, "sqlite.Recent", "scan journal entry")
		}
		e.Generation = uint64(gen)
		e.RecordedAt = time.UnixMilli(at).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
