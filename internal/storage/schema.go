package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
)

// migrations are applied in order; index i brings the schema to version i+1.
var migrations = []string{
	`CREATE TABLE runs (
		id                TEXT PRIMARY KEY,
		correlation_id    TEXT NOT NULL UNIQUE,
		lead_email        TEXT NOT NULL,
		lead_type         TEXT NOT NULL,
		provider          TEXT NOT NULL DEFAULT '',
		state             TEXT NOT NULL,
		error_kind        TEXT NOT NULL DEFAULT '',
		error_message     TEXT NOT NULL DEFAULT '',
		repaired          BOOLEAN NOT NULL DEFAULT 0,
		core_tasks_added  INTEGER NOT NULL DEFAULT 0,
		validation_errors TEXT NOT NULL DEFAULT '[]',
		report            TEXT NOT NULL DEFAULT 'null',
		started_at        TIMESTAMP NOT NULL,
		finished_at       TIMESTAMP
	);
	CREATE INDEX idx_runs_started ON runs(started_at);
	CREATE INDEX idx_runs_unfinished ON runs(finished_at) WHERE finished_at IS NULL;

	CREATE TABLE run_events (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		correlation_id TEXT NOT NULL,
		sequence_num   INTEGER NOT NULL,
		from_state     TEXT NOT NULL,
		to_state       TEXT NOT NULL,
		detail         TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMP NOT NULL
	);
	CREATE UNIQUE INDEX idx_events_run_seq ON run_events(correlation_id, sequence_num);`,
}

// SchemaVersion is the version a fully migrated archive reports.
func SchemaVersion() int { return len(migrations) }

// InitSchema brings db up to SchemaVersion. It is safe to call on every start.
func InitSchema(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version    INTEGER PRIMARY KEY,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	current, err := schemaVersion(db)
	if err != nil {
		return err
	}
	for v := current; v < len(migrations); v++ {
		if err := migrate(db, v+1, migrations[v]); err != nil {
			return err
		}
		log.Printf("[Storage] Migrated run archive to version %d", v+1)
	}
	return nil
}

func migrate(db *sql.DB, version int, stmt string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration %d: %w", version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(stmt); err != nil {
		return fmt.Errorf("migration %d: %w", version, err)
	}
	if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, version); err != nil {
		return fmt.Errorf("record migration %d: %w", version, err)
	}
	return tx.Commit()
}

func schemaVersion(db *sql.DB) (int, error) {
	var v sql.NullInt64
	err := db.QueryRow(`SELECT MAX(version) FROM schema_version`).Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	case !v.Valid:
		return 0, nil
	}
	return int(v.Int64), nil
}
