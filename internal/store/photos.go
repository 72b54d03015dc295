package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const photoColumns = `id, batch_id, registration_id, filename, original_path,
	is_qr_code, qr_data, processed, uploaded_to_drive, created_at`

func scanPhotoRow(scan func(...any) error) (*Photo, error) {
	var p Photo
	var regID sql.NullInt64
	err := scan(&p.ID, &p.BatchID, &regID, &p.Filename, &p.OriginalPath,
		&p.IsQRCode, &p.QRData, &p.Processed, &p.UploadedToDrive, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if regID.Valid {
		p.RegistrationID = &regID.Int64
	}
	return &p, nil
}

// AddPhoto records an uploaded photo for a batch.
func (s *Store) AddPhoto(ctx context.Context, batchID int64, filename, originalPath string) (*Photo, error) {
	res, err := s.exec(ctx,
		"INSERT INTO photos (batch_id, filename, original_path) VALUES (?, ?, ?)",
		batchID, filename, originalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to add photo %s: %w", filename, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read photo id: %w", err)
	}
	return s.GetPhoto(ctx, id)
}

// GetPhoto fetches one photo by id.
func (s *Store) GetPhoto(ctx context.Context, id int64) (*Photo, error) {
	var p *Photo
	err := s.retry.Do(ctx, func() error {
		row := s.db.QueryRowContext(ctx, "SELECT "+photoColumns+" FROM photos WHERE id = ?", id)
		var err error
		p, err = scanPhotoRow(row.Scan)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get photo %d: %w", id, err)
	}
	return p, nil
}

// ListBatchPhotos returns all photos of a batch. The order is insertion order;
// callers that care about processing order sort by filename themselves.
func (s *Store) ListBatchPhotos(ctx context.Context, batchID int64) ([]Photo, error) {
	var photos []Photo
	err := s.retry.Do(ctx, func() error {
		rows, err := s.db.QueryContext(ctx,
			"SELECT "+photoColumns+" FROM photos WHERE batch_id = ? ORDER BY id", batchID)
		if err != nil {
			return err
		}
		defer rows.Close()

		photos = photos[:0]
		for rows.Next() {
			p, err := scanPhotoRow(rows.Scan)
			if err != nil {
				return err
			}
			photos = append(photos, *p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list photos for batch %d: %w", batchID, err)
	}
	return photos, nil
}

// ListUnmatchedPhotos returns processed photos of a batch that belong to
// nobody, in filename order for display.
func (s *Store) ListUnmatchedPhotos(ctx context.Context, batchID int64) ([]Photo, error) {
	var photos []Photo
	err := s.retry.Do(ctx, func() error {
		rows, err := s.db.QueryContext(ctx,
			"SELECT "+photoColumns+` FROM photos
			WHERE batch_id = ? AND registration_id IS NULL AND processed = 1
			ORDER BY filename`, batchID)
		if err != nil {
			return err
		}
		defer rows.Close()

		photos = photos[:0]
		for rows.Next() {
			p, err := scanPhotoRow(rows.Scan)
			if err != nil {
				return err
			}
			photos = append(photos, *p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list unmatched photos for batch %d: %w", batchID, err)
	}
	return photos, nil
}

// AssignRegistration attributes a photo to a registration. A photo is
// attributed at most once; assigning an already-attributed photo returns
// ErrAlreadyAssigned, which keeps re-runs of segmentation idempotent.
func (s *Store) AssignRegistration(ctx context.Context, photoID, registrationID int64) error {
	res, err := s.exec(ctx,
		"UPDATE photos SET registration_id = ? WHERE id = ? AND registration_id IS NULL",
		registrationID, photoID)
	if err != nil {
		return fmt.Errorf("failed to assign photo %d: %w", photoID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		if _, err := s.GetPhoto(ctx, photoID); err != nil {
			return err
		}
		return ErrAlreadyAssigned
	}
	return nil
}

// MarkQRCode flags a photo as the one carrying the registration QR code and
// stores the decoded payload for the audit trail.
func (s *Store) MarkQRCode(ctx context.Context, photoID int64, qrData string) error {
	_, err := s.exec(ctx,
		"UPDATE photos SET is_qr_code = 1, qr_data = ? WHERE id = ?", qrData, photoID)
	if err != nil {
		return fmt.Errorf("failed to mark photo %d as QR code: %w", photoID, err)
	}
	return nil
}

// MarkPhotoProcessed flags a photo as scanned.
func (s *Store) MarkPhotoProcessed(ctx context.Context, photoID int64) error {
	_, err := s.exec(ctx, "UPDATE photos SET processed = 1 WHERE id = ?", photoID)
	if err != nil {
		return fmt.Errorf("failed to mark photo %d processed: %w", photoID, err)
	}
	return nil
}

// MarkPhotoUploaded flags a photo as delivered to cloud storage.
func (s *Store) MarkPhotoUploaded(ctx context.Context, photoID int64) error {
	_, err := s.exec(ctx, "UPDATE photos SET uploaded_to_drive = 1 WHERE id = ?", photoID)
	if err != nil {
		return fmt.Errorf("failed to mark photo %d uploaded: %w", photoID, err)
	}
	return nil
}

// ListRegistrationPhotos returns a registration's photos within one batch in
// id order.
func (s *Store) ListRegistrationPhotos(ctx context.Context, batchID, registrationID int64) ([]Photo, error) {
	var photos []Photo
	err := s.retry.Do(ctx, func() error {
		rows, err := s.db.QueryContext(ctx,
			"SELECT "+photoColumns+" FROM photos WHERE batch_id = ? AND registration_id = ? ORDER BY id",
			batchID, registrationID)
		if err != nil {
			return err
		}
		defer rows.Close()

		photos = photos[:0]
		for rows.Next() {
			p, err := scanPhotoRow(rows.Scan)
			if err != nil {
				return err
			}
			photos = append(photos, *p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list photos for registration %d: %w", registrationID, err)
	}
	return photos, nil
}
