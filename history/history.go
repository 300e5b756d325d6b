// Package history archives extraction runs in SQLite: the canonical
// profile as JSON plus the columns needed to list runs without decoding it.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/profilex/fault"
	"github.com/hazyhaar/profilex/internal/dbopen"
	"github.com/hazyhaar/profilex/profile"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id      TEXT PRIMARY KEY,
    name        TEXT NOT NULL DEFAULT '',
    username    TEXT NOT NULL DEFAULT '',
    profile_url TEXT NOT NULL DEFAULT '',
    sources     TEXT NOT NULL DEFAULT '',
    failed      TEXT NOT NULL DEFAULT '',
    error       TEXT NOT NULL DEFAULT '',
    profile     TEXT NOT NULL,
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);
`

// Run is one archived extraction.
type Run struct {
	ID        string                   `json:"run_id"`
	Profile   profile.CanonicalProfile `json:"profile"`
	Error     string                   `json:"error,omitempty"`
	CreatedAt time.Time                `json:"created_at"`
}

// Summary is the listing form of a Run.
type Summary struct {
	ID        string           `json:"run_id"`
	Identity  profile.Identity `json:"identity"`
	Sources   []string         `json:"sources"`
	Failed    []string         `json:"failed,omitempty"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// Store reads and writes runs. Safe for concurrent use.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the archive at path.
func Open(path string) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(schema))
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// New wraps an open database and applies the schema.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("history: DB is required")
	}
	if err := dbopen.ExecScript(db, schema); err != nil {
		return nil, fmt.Errorf("history: schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Save archives a run. runErr is the error the pipeline returned, if any.
func (s *Store) Save(ctx context.Context, runID string, p profile.CanonicalProfile, runErr error) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("history: encode profile: %w", err)
	}
	var msg string
	if runErr != nil {
		msg = runErr.Error()
	}
	var failed []string
	for _, r := range p.Reports {
		if r.Failed() {
			failed = append(failed, r.Source)
		}
	}
	return dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO runs (run_id, name, username, profile_url, sources, failed, error, profile, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, p.Identity.Name, p.Identity.Username, p.Identity.ProfileURL,
			strings.Join(p.Sources, ","), strings.Join(failed, ","), msg, string(body), s.now().UnixMilli())
		if err != nil {
			return fmt.Errorf("history: insert %s: %w", runID, err)
		}
		return nil
	})
}

// Get returns the run with the given id, or an ErrNotFound error.
func (s *Store) Get(ctx context.Context, runID string) (Run, error) {
	var (
		body    string
		created int64
		run     = Run{ID: runID}
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT profile, error, created_at FROM runs WHERE run_id = ?`, runID,
	).Scan(&body, &run.Error, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fault.Newf(fault.ErrNotFound, "history: run %s not found", runID)
	}
	if err != nil {
		return Run{}, fmt.Errorf("history: get %s: %w", runID, err)
	}
	if err := json.Unmarshal([]byte(body), &run.Profile); err != nil {
		return Run{}, fault.Wrap(err, fault.ErrInvalidResponse, "history: decode "+runID)
	}
	run.CreatedAt = time.UnixMilli(created).UTC()
	return run, nil
}

// List returns the most recent runs first. limit <= 0 means 50.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, name, username, profile_url, sources, failed, error, created_at
		FROM runs ORDER BY created_at DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var (
			sm              Summary
			sources, failed string
			created         int64
		)
		if err := rows.Scan(&sm.ID, &sm.Identity.Name, &sm.Identity.Username, &sm.Identity.ProfileURL,
			&sources, &failed, &sm.Error, &created); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		sm.Sources, sm.Failed = split(sources), split(failed)
		sm.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, sm)
	}
	return out, rows.Err()
}

func split(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
