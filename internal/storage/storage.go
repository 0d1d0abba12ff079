package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrRunNotFound is returned when no run matches a correlation id.
var ErrRunNotFound = errors.New("run not found")

// Store defines the persistence operations for pipeline runs.
type Store interface {
	// Run operations
	SaveRun(ctx context.Context, run *RunRecord) error
	LoadRun(ctx context.Context, correlationID string) (*RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]*RunRecord, error)

	// Transition log
	AppendEvent(ctx context.Context, event *Event) error
	LoadEvents(ctx context.Context, correlationID string) ([]*Event, error)

	// Recovery
	RecoverInterrupted(ctx context.Context, startedBefore time.Time) ([]string, error)

	// Lifecycle
	Close() error
}

// RunRecord is the archived view of one pipeline run.
type RunRecord struct {
	ID               string
	CorrelationID    string
	LeadEmail        string
	LeadType         string
	Provider         string
	State            string
	ErrorKind        string
	ErrorMessage     string
	Repaired         bool
	CoreTasksAdded   int
	ValidationErrors []string
	Report           json.RawMessage
	StartedAt        time.Time
	FinishedAt       time.Time
}

// Finished reports whether the run reached a terminal state.
func (r *RunRecord) Finished() bool { return !r.FinishedAt.IsZero() }

// SQLiteStorage implements Store using SQLite.
type SQLiteStorage struct {
	db         *sql.DB
	mu         sync.Mutex
	seqNumbers map[string]int64 // correlation_id -> next sequence number
}

// NewSQLiteStorage opens (creating if needed) the run archive at dbPath.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dbPath == "" {
		dbPath = "./data/timefreedom.db"
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	// WAL journal keeps readers of the run list off the writer's lock
	db, err := sql.Open("sqlite3", dbPath+"?cache=shared&mode=rwc&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := InitSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	store := &SQLiteStorage{
		db:         db,
		seqNumbers: make(map[string]int64),
	}

	if err := store.loadSequenceNumbers(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load sequence numbers: %w", err)
	}

	log.Printf("[Storage] SQLite run archive initialized at %s", dbPath)
	return store, nil
}

// SaveRun inserts or updates a run keyed by correlation id.
func (s *SQLiteStorage) SaveRun(ctx context.Context, run *RunRecord) error {
	if run.CorrelationID == "" {
		return fmt.Errorf("run has no correlation id")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	errorsJSON, err := json.Marshal(run.ValidationErrors)
	if err != nil {
		return fmt.Errorf("failed to encode validation errors: %w", err)
	}
	report := run.Report
	if len(report) == 0 {
		report = json.RawMessage("null")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, correlation_id, lead_email, lead_type, provider, state,
			error_kind, error_message, repaired, core_tasks_added, validation_errors,
			report, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(correlation_id) DO UPDATE SET
			provider = excluded.provider,
			state = excluded.state,
			error_kind = excluded.error_kind,
			error_message = excluded.error_message,
			repaired = excluded.repaired,
			core_tasks_added = excluded.core_tasks_added,
			validation_errors = excluded.validation_errors,
			report = excluded.report,
			finished_at = excluded.finished_at
	`, run.ID, run.CorrelationID, run.LeadEmail, run.LeadType, run.Provider, run.State,
		run.ErrorKind, run.ErrorMessage, run.Repaired, run.CoreTasksAdded, string(errorsJSON),
		string(report), run.StartedAt.UTC(), nullTime(run.FinishedAt))

	return err
}

const runColumns = `id, correlation_id, lead_email, lead_type, provider, state,
	error_kind, error_message, repaired, core_tasks_added, validation_errors,
	report, started_at, finished_at`

// LoadRun retrieves a run by correlation id.
func (s *SQLiteStorage) LoadRun(ctx context.Context, correlationID string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE correlation_id = ?`, correlationID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return run, err
}

// ListRuns returns the most recent runs first. A non-positive limit means 20.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*RunRecord, error) {
	var run RunRecord
	var errorsJSON, report string
	var finished sql.NullTime

	err := sc.Scan(&run.ID, &run.CorrelationID, &run.LeadEmail, &run.LeadType, &run.Provider,
		&run.State, &run.ErrorKind, &run.ErrorMessage, &run.Repaired, &run.CoreTasksAdded,
		&errorsJSON, &report, &run.StartedAt, &finished)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(errorsJSON), &run.ValidationErrors); err != nil {
		return nil, fmt.Errorf("failed to decode validation errors for run %s: %w", run.CorrelationID, err)
	}
	if report != "null" && report != "" {
		run.Report = json.RawMessage(report)
	}
	if finished.Valid {
		run.FinishedAt = finished.Time
	}

	return &run, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
