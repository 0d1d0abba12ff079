package storage

import (
	"context"
	"fmt"
	"log"
	"time"
)

const (
	// InterruptedState is written to runs that never reached a terminal state.
	InterruptedState = "Failed"
	// InterruptedKind is the error kind recorded for those runs.
	InterruptedKind = "interrupted"
)

// RecoverInterrupted closes out runs that were still in flight when the
// process stopped. Each one is marked failed with the last recorded state in
// its error message. It returns the affected correlation ids.
func (s *SQLiteStorage) RecoverInterrupted(ctx context.Context, startedBefore time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT correlation_id, state
		FROM runs
		WHERE finished_at IS NULL AND started_at < ?
	`, startedBefore.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query unfinished runs: %w", err)
	}

	type pending struct{ id, state string }
	var stale []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.state); err != nil {
			rows.Close()
			return nil, err
		}
		stale = append(stale, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(stale) == 0 {
		return nil, nil
	}

	log.Printf("[Storage] Recovering %d interrupted runs", len(stale))

	now := time.Now().UTC()
	recovered := make([]string, 0, len(stale))
	for _, p := range stale {
		last := p.state
		events, err := s.LoadEvents(ctx, p.id)
		if err != nil {
			return recovered, fmt.Errorf("failed to load events for %s: %w", p.id, err)
		}
		if n := len(events); n > 0 {
			last = events[n-1].To
		}

		msg := fmt.Sprintf("run interrupted during %s", last)
		if _, err := s.db.ExecContext(ctx, `
			UPDATE runs
			SET state = ?, error_kind = ?, error_message = ?, finished_at = ?
			WHERE correlation_id = ?
		`, InterruptedState, InterruptedKind, msg, now, p.id); err != nil {
			return recovered, fmt.Errorf("failed to close run %s: %w", p.id, err)
		}

		if err := s.AppendEvent(ctx, &Event{
			CorrelationID: p.id,
			From:          last,
			To:            InterruptedState,
			Detail:        InterruptedKind,
			CreatedAt:     now,
		}); err != nil {
			log.Printf("[Storage] Warning: failed to log recovery event for %s: %v", p.id, err)
		}

		recovered = append(recovered, p.id)
	}

	log.Printf("[Storage] Recovered %d interrupted runs", len(recovered))
	return recovered, nil
}
