// Package store keeps a local history of automation sessions and every
// application attempt in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a session has no history row.
var ErrNotFound = errors.New("not found")

type Store struct {
	DB *sql.DB
}

func New(db *sql.DB) *Store { return &Store{DB: db} }

// Open opens path and migrates it.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.DB.Close() }

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	profile TEXT,
	status TEXT NOT NULL,
	error TEXT,
	applications_submitted INTEGER NOT NULL DEFAULT 0,
	started_at INTEGER NOT NULL,
	finished_at INTEGER NULL
);

CREATE TABLE IF NOT EXISTS attempts (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	item_index INTEGER NOT NULL,
	outcome TEXT NOT NULL,
	error TEXT,
	started_at INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS attempts_session ON attempts(session_id, item_index);
`)
	return err
}

// SessionRecord is one row of the sessions table.
type SessionRecord struct {
	ID                    string
	Profile               string
	Status                string
	Error                 string
	ApplicationsSubmitted int
	StartedAt             time.Time
	FinishedAt            time.Time
}

// Attempt is one application attempt on a listing.
type Attempt struct {
	ID         string
	SessionID  string
	ItemIndex  int
	Outcome    string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// StartSession inserts (or resets) the history row of a session.
func (s *Store) StartSession(ctx context.Context, id, profile string, at time.Time) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO sessions (id, profile, status, started_at)
		VALUES (?, ?, 'running', ?)
		ON CONFLICT(id) DO UPDATE SET
			profile = excluded.profile,
			status = excluded.status,
			started_at = excluded.started_at`,
		id, profile, at.UnixMilli(),
	)
	return err
}

// FinishSession stores the final outcome of a session.
func (s *Store) FinishSession(ctx context.Context, id, status, errMsg string, applied int, at time.Time) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE sessions
		SET status = ?, error = ?, applications_submitted = ?, finished_at = ?
		WHERE id = ?`,
		status, nullString(errMsg), applied, at.UnixMilli(), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

// RecordAttempt stores a, assigning it a fresh id, and returns that id.
func (s *Store) RecordAttempt(ctx context.Context, a Attempt) (string, error) {
	a.ID = uuid.NewString()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO attempts (id, session_id, item_index, outcome, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SessionID, a.ItemIndex, a.Outcome, nullString(a.Error),
		a.StartedAt.UnixMilli(), a.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return "", err
	}
	return a.ID, nil
}

// Session returns the history row of id.
func (s *Store) Session(ctx context.Context, id string) (SessionRecord, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, profile, status, error, applications_submitted, started_at, finished_at
		FROM sessions WHERE id = ?`, id)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return rec, err
}

// RecentSessions returns up to limit sessions, newest first.
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, profile, status, error, applications_submitted, started_at, finished_at
		FROM sessions
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Attempts returns the attempts of a session in item order.
func (s *Store) Attempts(ctx context.Context, sessionID string) ([]Attempt, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, session_id, item_index, outcome, error, started_at, finished_at
		FROM attempts
		WHERE session_id = ?
		ORDER BY item_index, started_at`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var (
			a                 Attempt
			errMsg            sql.NullString
			started, finished int64
		)
		if err := rows.Scan(&a.ID, &a.SessionID, &a.ItemIndex, &a.Outcome, &errMsg, &started, &finished); err != nil {
			return nil, err
		}
		a.Error = errMsg.String
		a.StartedAt = time.UnixMilli(started)
		a.FinishedAt = time.UnixMilli(finished)
		out = append(out, a)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (SessionRecord, error) {
	var (
		rec      SessionRecord
		profile  sql.NullString
		errMsg   sql.NullString
		started  int64
		finished sql.NullInt64
	)
	if err := row.Scan(&rec.ID, &profile, &rec.Status, &errMsg, &rec.ApplicationsSubmitted, &started, &finished); err != nil {
		return SessionRecord{}, err
	}
	rec.Profile = profile.String
	rec.Error = errMsg.String
	rec.StartedAt = time.UnixMilli(started)
	if finished.Valid {
		rec.FinishedAt = time.UnixMilli(finished.Int64)
	}
	return rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
