// Package runstore persists committed projection runs and their engine
// events in SQLite. The engine itself never touches it; the CLI records runs
// after the fact.
package runstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store manages projection run history in SQLite.
type Store struct {
	DBPath string
	db     *sql.DB
}

// Run is one recorded projection run.
type Run struct {
	ID             string
	CreatedAt      time.Time
	PlanPath       string
	Mode           string // preview or create
	ReadinessScore float64
	Confidence     float64
	EnvelopeState  string
	ResultJSON     string
}

// Event is one engine-level event attached to a run.
type Event struct {
	ID          int64
	RunID       string
	CreatedAt   time.Time
	Type        string
	PayloadJSON string
}

// Open opens or creates the run history database.
func Open(path string) (*Store, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve run db path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure run db dir: %w", err)
	}

	db, err := sql.Open("sqlite", absPath)
	if err != nil {
		return nil, fmt.Errorf("open run db: %w", err)
	}

	store := &Store{DBPath: absPath, db: db}
	if err := store.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) ensureSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	plan_path TEXT NOT NULL,
	mode TEXT NOT NULL,
	readiness_score REAL NOT NULL,
	confidence REAL NOT NULL,
	envelope_state TEXT NOT NULL,
	result_json TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);

CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	created_at TEXT NOT NULL,
	type TEXT NOT NULL,
	payload_json TEXT
);

CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, id);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create run schema: %w", err)
	}
	return nil
}

// RecordRun stores a completed projection run and returns its id.
func (s *Store) RecordRun(planPath, mode string, readinessScore, confidence float64, envelopeState string, result any) (string, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("marshal run result: %w", err)
	}

	id := uuid.NewString()
	createdAt := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.Exec(
		`INSERT INTO runs (id, created_at, plan_path, mode, readiness_score, confidence, envelope_state, result_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, createdAt, planPath, mode, readinessScore, confidence, envelopeState, string(resultJSON),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// LogEvent attaches an engine event to a run.
func (s *Store) LogEvent(runID, eventType string, payload any) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	createdAt := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.Exec(
		`INSERT INTO events (run_id, created_at, type, payload_json) VALUES (?, ?, ?, ?)`,
		runID, createdAt, eventType, string(payloadJSON),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetRun fetches one run by id.
func (s *Store) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(
		`SELECT id, created_at, plan_path, mode, readiness_score, confidence, envelope_state, result_json
		 FROM runs WHERE id = ?`, id)

	var run Run
	var createdAt string
	if err := row.Scan(&run.ID, &createdAt, &run.PlanPath, &run.Mode, &run.ReadinessScore, &run.Confidence, &run.EnvelopeState, &run.ResultJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run %s not found", id)
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse run created_at: %w", err)
	}
	run.CreatedAt = parsed
	return &run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, created_at, plan_path, mode, readiness_score, confidence, envelope_state, result_json
		 FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var createdAt string
		if err := rows.Scan(&run.ID, &createdAt, &run.PlanPath, &run.Mode, &run.ReadinessScore, &run.Confidence, &run.EnvelopeState, &run.ResultJSON); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		parsed, parseErr := time.Parse(time.RFC3339, createdAt)
		if parseErr != nil {
			return nil, fmt.Errorf("parse run created_at: %w", parseErr)
		}
		run.CreatedAt = parsed
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListEvents returns a run's events in insertion order.
func (s *Store) ListEvents(runID string) ([]Event, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, created_at, type, payload_json FROM events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var createdAt string
		if err := rows.Scan(&ev.ID, &ev.RunID, &createdAt, &ev.Type, &ev.PayloadJSON); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		parsed, parseErr := time.Parse(time.RFC3339, createdAt)
		if parseErr != nil {
			return nil, fmt.Errorf("parse event created_at: %w", parseErr)
		}
		ev.CreatedAt = parsed
		events = append(events, ev)
	}
	return events, rows.Err()
}
