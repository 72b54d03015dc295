package store

import (
	"context"
	"fmt"

	"github.com/kozaktomas/photo-batcher/internal/constants"
)

// AppendLog records one processing audit entry for a batch.
func (s *Store) AppendLog(ctx context.Context, e *LogEntry) error {
	_, err := s.exec(ctx, `
		INSERT INTO processing_log (batch_id, action, message, severity, registration_id)
		VALUES (?, ?, ?, ?, ?)`,
		e.BatchID, e.Action, e.Message, e.Severity, e.RegistrationID)
	if err != nil {
		return fmt.Errorf("failed to append log entry for batch %d: %w", e.BatchID, err)
	}
	return nil
}

// RecentLogs returns the newest entries for a batch, newest first.
func (s *Store) RecentLogs(ctx context.Context, batchID int64) ([]LogEntry, error) {
	var entries []LogEntry
	err := s.retry.Do(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, batch_id, ts, action, message, severity, registration_id
			FROM processing_log
			WHERE batch_id = ?
			ORDER BY id DESC
			LIMIT ?`, batchID, constants.RecentLogEntries)
		if err != nil {
			return err
		}
		defer rows.Close()

		entries = entries[:0]
		for rows.Next() {
			var e LogEntry
			if err := rows.Scan(&e.ID, &e.BatchID, &e.Timestamp, &e.Action,
				&e.Message, &e.Severity, &e.RegistrationID); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load log entries for batch %d: %w", batchID, err)
	}
	return entries, nil
}
