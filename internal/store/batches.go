package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const batchColumns = `id, name, status, total_photos, processed_photos, uploaded_photos,
	people_found, people_uploaded, unmatched_photos, current_action, current_file,
	error_message, created_at, completed_at`

func scanBatch(row *sql.Row) (*Batch, error) {
	var b Batch
	var completedAt sql.NullTime
	err := row.Scan(&b.ID, &b.Name, &b.Status, &b.TotalPhotos, &b.ProcessedPhotos,
		&b.UploadedPhotos, &b.PeopleFound, &b.PeopleUploaded, &b.UnmatchedPhotos,
		&b.CurrentAction, &b.CurrentFile, &b.ErrorMessage, &b.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		b.CompletedAt = &completedAt.Time
	}
	return &b, nil
}

// CreateBatch inserts a new batch in the uploading state.
func (s *Store) CreateBatch(ctx context.Context, name string) (*Batch, error) {
	res, err := s.exec(ctx, "INSERT INTO batches (name, status) VALUES (?, ?)", name, BatchUploading)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read batch id: %w", err)
	}
	return s.GetBatch(ctx, id)
}

// GetBatch fetches one batch by id.
func (s *Store) GetBatch(ctx context.Context, id int64) (*Batch, error) {
	var b *Batch
	err := s.retry.Do(ctx, func() error {
		var err error
		b, err = scanBatch(s.db.QueryRowContext(ctx,
			"SELECT "+batchColumns+" FROM batches WHERE id = ?", id))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch %d: %w", id, err)
	}
	return b, nil
}

// ListBatches returns all batches, newest first.
func (s *Store) ListBatches(ctx context.Context) ([]Batch, error) {
	var batches []Batch
	err := s.retry.Do(ctx, func() error {
		rows, err := s.db.QueryContext(ctx,
			"SELECT "+batchColumns+" FROM batches ORDER BY created_at DESC, id DESC")
		if err != nil {
			return err
		}
		defer rows.Close()

		batches = batches[:0]
		for rows.Next() {
			var b Batch
			var completedAt sql.NullTime
			if err := rows.Scan(&b.ID, &b.Name, &b.Status, &b.TotalPhotos, &b.ProcessedPhotos,
				&b.UploadedPhotos, &b.PeopleFound, &b.PeopleUploaded, &b.UnmatchedPhotos,
				&b.CurrentAction, &b.CurrentFile, &b.ErrorMessage, &b.CreatedAt, &completedAt); err != nil {
				return err
			}
			if completedAt.Valid {
				b.CompletedAt = &completedAt.Time
			}
			batches = append(batches, b)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	return batches, nil
}

// TransitionBatch moves a batch to a new lifecycle state, enforcing the legal
// edges of the state machine. Terminal states are never left.
func (s *Store) TransitionBatch(ctx context.Context, id int64, to BatchStatus) error {
	b, err := s.GetBatch(ctx, id)
	if err != nil {
		return err
	}
	if !canTransition(b.Status, to) {
		return fmt.Errorf("illegal batch transition %s -> %s", b.Status, to)
	}

	query := "UPDATE batches SET status = ? WHERE id = ? AND status = ?"
	if to.Terminal() {
		query = "UPDATE batches SET status = ?, completed_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?"
	}
	res, err := s.exec(ctx, query, to, id, b.Status)
	if err != nil {
		return fmt.Errorf("failed to transition batch %d to %s: %w", id, to, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Lost a race with a concurrent transition.
		return fmt.Errorf("batch %d changed state concurrently", id)
	}
	return nil
}

// MarkBatchFailed moves a batch to failed with a human-readable message.
// Already-terminal batches are left untouched.
func (s *Store) MarkBatchFailed(ctx context.Context, id int64, message string) error {
	_, err := s.exec(ctx, `
		UPDATE batches SET status = ?, error_message = ?, completed_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status NOT IN (?, ?)`,
		BatchFailed, message, id, BatchCompleted, BatchFailed)
	if err != nil {
		return fmt.Errorf("failed to mark batch %d failed: %w", id, err)
	}
	return nil
}

// SetBatchAction updates the operator-visible current action / file fields.
func (s *Store) SetBatchAction(ctx context.Context, id int64, action, file string) error {
	_, err := s.exec(ctx,
		"UPDATE batches SET current_action = ?, current_file = ? WHERE id = ?",
		action, file, id)
	if err != nil {
		return fmt.Errorf("failed to update batch %d action: %w", id, err)
	}
	return nil
}

// SetProcessedPhotos records scan progress. processed_photos is monotonic:
// an update can never move it backwards.
func (s *Store) SetProcessedPhotos(ctx context.Context, id int64, processed int) error {
	_, err := s.exec(ctx,
		"UPDATE batches SET processed_photos = ? WHERE id = ? AND processed_photos <= ?",
		processed, id, processed)
	if err != nil {
		return fmt.Errorf("failed to update batch %d progress: %w", id, err)
	}
	return nil
}

// AddBatchPhotos bumps the total photo counter after an upload request.
func (s *Store) AddBatchPhotos(ctx context.Context, id int64, n int) error {
	_, err := s.exec(ctx,
		"UPDATE batches SET total_photos = total_photos + ? WHERE id = ?", n, id)
	if err != nil {
		return fmt.Errorf("failed to add photos to batch %d: %w", id, err)
	}
	return nil
}

// IncrementPeopleFound bumps the people counter when a new group starts.
func (s *Store) IncrementPeopleFound(ctx context.Context, id int64) error {
	_, err := s.exec(ctx,
		"UPDATE batches SET people_found = people_found + 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to increment people for batch %d: %w", id, err)
	}
	return nil
}

// IncrementPeopleUploaded bumps the uploaded-groups counter.
func (s *Store) IncrementPeopleUploaded(ctx context.Context, id int64) error {
	_, err := s.exec(ctx,
		"UPDATE batches SET people_uploaded = people_uploaded + 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to increment uploaded people for batch %d: %w", id, err)
	}
	return nil
}

// AddUploadedPhotos bumps the per-batch uploaded photo counter.
func (s *Store) AddUploadedPhotos(ctx context.Context, id int64, n int) error {
	_, err := s.exec(ctx,
		"UPDATE batches SET uploaded_photos = uploaded_photos + ? WHERE id = ?", n, id)
	if err != nil {
		return fmt.Errorf("failed to add uploaded photos to batch %d: %w", id, err)
	}
	return nil
}

// SetUnmatchedPhotos records the final count of unattributed photos.
func (s *Store) SetUnmatchedPhotos(ctx context.Context, id int64, n int) error {
	_, err := s.exec(ctx,
		"UPDATE batches SET unmatched_photos = ? WHERE id = ?", n, id)
	if err != nil {
		return fmt.Errorf("failed to set unmatched count for batch %d: %w", id, err)
	}
	return nil
}
