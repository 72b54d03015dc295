package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const registrationColumns = `id, first_name, last_name, email, qr_token,
	photo_count, photos_processed, photos_uploaded, drive_folder_id, drive_link,
	email_sent, email_sent_at, created_at`

func scanRegistrationRow(scan func(...any) error) (*Registration, error) {
	var r Registration
	var emailSentAt sql.NullTime
	err := scan(&r.ID, &r.FirstName, &r.LastName, &r.Email, &r.QRToken,
		&r.PhotoCount, &r.PhotosProcessed, &r.PhotosUploaded, &r.DriveFolderID,
		&r.DriveLink, &r.EmailSent, &emailSentAt, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	if emailSentAt.Valid {
		r.EmailSentAt = &emailSentAt.Time
	}
	return &r, nil
}

// CreateRegistration inserts a participant with a freshly generated QR token.
func (s *Store) CreateRegistration(ctx context.Context, firstName, lastName, email string) (*Registration, error) {
	token := uuid.New().String()
	res, err := s.exec(ctx,
		"INSERT INTO registrations (first_name, last_name, email, qr_token) VALUES (?, ?, ?, ?)",
		firstName, lastName, email, token)
	if err != nil {
		return nil, fmt.Errorf("failed to create registration: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read registration id: %w", err)
	}
	return s.GetRegistration(ctx, id)
}

func (s *Store) getRegistrationWhere(ctx context.Context, where string, args ...any) (*Registration, error) {
	var r *Registration
	err := s.retry.Do(ctx, func() error {
		row := s.db.QueryRowContext(ctx,
			"SELECT "+registrationColumns+" FROM registrations WHERE "+where, args...)
		var err error
		r, err = scanRegistrationRow(row.Scan)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}
	return r, nil
}

// GetRegistration fetches one registration by id.
func (s *Store) GetRegistration(ctx context.Context, id int64) (*Registration, error) {
	return s.getRegistrationWhere(ctx, "id = ?", id)
}

// GetRegistrationByToken fetches a registration by its QR token.
func (s *Store) GetRegistrationByToken(ctx context.Context, token string) (*Registration, error) {
	return s.getRegistrationWhere(ctx, "qr_token = ?", token)
}

// GetRegistrationByIdentity fetches a registration by name and email, the last
// resort of the QR matching chain.
func (s *Store) GetRegistrationByIdentity(ctx context.Context, firstName, lastName, email string) (*Registration, error) {
	return s.getRegistrationWhere(ctx,
		"first_name = ? AND last_name = ? AND email = ? ORDER BY id LIMIT 1",
		firstName, lastName, email)
}

// ListRegistrations returns all registrations, newest first.
func (s *Store) ListRegistrations(ctx context.Context) ([]Registration, error) {
	var regs []Registration
	err := s.retry.Do(ctx, func() error {
		rows, err := s.db.QueryContext(ctx,
			"SELECT "+registrationColumns+" FROM registrations ORDER BY created_at DESC, id DESC")
		if err != nil {
			return err
		}
		defer rows.Close()

		regs = regs[:0]
		for rows.Next() {
			r, err := scanRegistrationRow(rows.Scan)
			if err != nil {
				return err
			}
			regs = append(regs, *r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	return regs, nil
}

// ListBatchRegistrations returns the registrations that own at least one
// photo of a batch, in filename order of their first photo so results read
// in shooting order.
func (s *Store) ListBatchRegistrations(ctx context.Context, batchID int64) ([]Registration, error) {
	cols := "r.id, r.first_name, r.last_name, r.email, r.qr_token, " +
		"r.photo_count, r.photos_processed, r.photos_uploaded, r.drive_folder_id, r.drive_link, " +
		"r.email_sent, r.email_sent_at, r.created_at"
	var regs []Registration
	err := s.retry.Do(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT `+cols+` FROM registrations r
			JOIN photos p ON p.registration_id = r.id
			WHERE p.batch_id = ?
			GROUP BY r.id
			ORDER BY MIN(p.filename)`, batchID)
		if err != nil {
			return err
		}
		defer rows.Close()

		regs = regs[:0]
		for rows.Next() {
			r, err := scanRegistrationRow(rows.Scan)
			if err != nil {
				return err
			}
			regs = append(regs, *r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations for batch %d: %w", batchID, err)
	}
	return regs, nil
}

// SetDriveResult writes back the upload outcome for a registration.
func (s *Store) SetDriveResult(ctx context.Context, id int64, folderID, link string, photoCount, uploaded int) error {
	_, err := s.exec(ctx, `
		UPDATE registrations
		SET drive_folder_id = ?, drive_link = ?, photo_count = ?,
		    photos_processed = ?, photos_uploaded = ?
		WHERE id = ?`,
		folderID, link, photoCount, photoCount, uploaded, id)
	if err != nil {
		return fmt.Errorf("failed to record drive result for registration %d: %w", id, err)
	}
	return nil
}

// MarkEmailSent records that the photos email went out.
func (s *Store) MarkEmailSent(ctx context.Context, id int64) error {
	_, err := s.exec(ctx,
		"UPDATE registrations SET email_sent = 1, email_sent_at = CURRENT_TIMESTAMP WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to mark email sent for registration %d: %w", id, err)
	}
	return nil
}
