package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const scanEventsSchema = `
CREATE TABLE IF NOT EXISTS scan_events (
	id          TEXT PRIMARY KEY,
	version     TEXT NOT NULL,
	ts          TEXT NOT NULL,
	source      TEXT NOT NULL,
	model       TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	label       TEXT NOT NULL DEFAULT '',
	score       REAL NOT NULL DEFAULT 0,
	size        INTEGER NOT NULL DEFAULT 0,
	mime        TEXT NOT NULL DEFAULT '',
	error_kind  TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	duration_ms REAL NOT NULL DEFAULT 0
)`

const scanEventsIndex = `CREATE INDEX IF NOT EXISTS idx_scan_events_label ON scan_events(label, ts)`

// ErrEventNotFound is returned by SQLiteSink.Get for unknown IDs.
var ErrEventNotFound = errors.New("scan event not found")

// SQLiteSink stores events in a SQLite table so they can be queried later.
type SQLiteSink struct {
	path string
	db   *sql.DB
}

// NewSQLiteSink opens (or creates) the database at path. ":memory:" is
// accepted for tests.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", scanEventsSchema, scanEventsIndex} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
	}
	return &SQLiteSink{path: path, db: db}, nil
}

func (s *SQLiteSink) Name() string { return "sqlite:" + s.path }

func (s *SQLiteSink) Deliver(ctx context.Context, ev *Event) error {
	if ev == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO scan_events
		(id, version, ts, source, model, status, label, score, size, mime, error_kind, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID,
		ev.Version,
		ev.Timestamp.UTC().Format(time.RFC3339Nano),
		ev.Source,
		ev.Model,
		ev.Status,
		ev.Label,
		float64(ev.Score),
		ev.Size,
		ev.MIME,
		ev.ErrorKind,
		ev.Error,
		ev.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Get loads one event by ID.
func (s *SQLiteSink) Get(ctx context.Context, id string) (*Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, version, ts, source, model, status, label, score, size, mime, error_kind, error, duration_ms
		FROM scan_events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	return ev, err
}

// CountByLabel returns how many successful scans produced each label.
func (s *SQLiteSink) CountByLabel(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT label, COUNT(*) FROM scan_events
		WHERE status = ? GROUP BY label`, StatusOK)
	if err != nil {
		return nil, fmt.Errorf("query counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, err
		}
		out[label] = n
	}
	return out, rows.Err()
}

func (s *SQLiteSink) Close(context.Context) error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*Event, error) {
	var (
		ev    Event
		ts    string
		score float64
	)
	if err := row.Scan(&ev.ID, &ev.Version, &ts, &ev.Source, &ev.Model, &ev.Status, &ev.Label,
		&score, &ev.Size, &ev.MIME, &ev.ErrorKind, &ev.Error, &ev.DurationMs); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", ts, err)
	}
	ev.Timestamp = t
	ev.Score = float32(score)
	return &ev, nil
}
