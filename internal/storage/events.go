package storage

import (
	"context"
	"fmt"
	"time"
)

// Event is one state transition recorded for a run.
type Event struct {
	ID            int64
	CorrelationID string
	SequenceNum   int64
	From          string
	To            string
	Detail        string
	CreatedAt     time.Time
}

func (s *SQLiteStorage) loadSequenceNumbers() error {
	rows, err := s.db.Query("SELECT correlation_id, MAX(sequence_num) FROM run_events GROUP BY correlation_id")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var correlationID string
		var maxSeq int64
		if err := rows.Scan(&correlationID, &maxSeq); err != nil {
			return err
		}
		s.seqNumbers[correlationID] = maxSeq + 1
	}

	return rows.Err()
}

func (s *SQLiteStorage) nextSeqNum(correlationID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.seqNumbers[correlationID]
	if seq == 0 {
		seq = 1
	}
	s.seqNumbers[correlationID] = seq + 1
	return seq
}

// AppendEvent adds a transition to the run's log, assigning its sequence
// number when the caller left it zero.
func (s *SQLiteStorage) AppendEvent(ctx context.Context, event *Event) error {
	if event.CorrelationID == "" {
		return fmt.Errorf("event has no correlation id")
	}
	if event.SequenceNum == 0 {
		event.SequenceNum = s.nextSeqNum(event.CorrelationID)
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO run_events (correlation_id, sequence_num, from_state, to_state, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, event.CorrelationID, event.SequenceNum, event.From, event.To, event.Detail, event.CreatedAt.UTC())
	if err != nil {
		return err
	}

	if id, err := result.LastInsertId(); err == nil {
		event.ID = id
	}
	return nil
}

// LoadEvents returns a run's transitions in sequence order.
func (s *SQLiteStorage) LoadEvents(ctx context.Context, correlationID string) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, correlation_id, sequence_num, from_state, to_state, detail, created_at
		FROM run_events
		WHERE correlation_id = ?
		ORDER BY sequence_num
	`, correlationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.CorrelationID, &e.SequenceNum, &e.From, &e.To, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}

	return events, rows.Err()
}
