package store

import (
	"time"

	"github.com/kozaktomas/photo-batcher/internal/constants"
)

// BatchStatus is the lifecycle state of a photo batch.
type BatchStatus string

// Batch lifecycle: uploading -> uploaded -> processing -> completed | failed.
// failed is reachable from any non-terminal state.
const (
	BatchUploading  BatchStatus = "uploading"
	BatchUploaded   BatchStatus = "uploaded"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s BatchStatus) Terminal() bool {
	return s == BatchCompleted || s == BatchFailed
}

// canTransition enumerates the legal forward edges of the batch state machine.
func canTransition(from, to BatchStatus) bool {
	if from.Terminal() {
		return false
	}
	if to == BatchFailed {
		return true
	}
	switch from {
	case BatchUploading:
		return to == BatchUploaded
	case BatchUploaded:
		return to == BatchProcessing
	case BatchProcessing:
		return to == BatchCompleted
	default:
		return false
	}
}

// Batch is one uploaded set of event photographs processed as a unit.
type Batch struct {
	ID              int64       `json:"id"`
	Name            string      `json:"name"`
	Status          BatchStatus `json:"status"`
	TotalPhotos     int         `json:"total_photos"`
	ProcessedPhotos int         `json:"processed_photos"`
	UploadedPhotos  int         `json:"uploaded_photos"`
	PeopleFound     int         `json:"people_found"`
	PeopleUploaded  int         `json:"people_uploaded"`
	UnmatchedPhotos int         `json:"unmatched_photos"`
	CurrentAction   string      `json:"current_action"`
	CurrentFile     string      `json:"current_file"`
	ErrorMessage    string      `json:"error_message,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
}

// ProgressPct maps batch counters to a 0-100 progress value in two phases:
// scanning covers 0-80 and group uploading covers 80-100. Scan cost per photo
// and upload cost per person differ by orders of magnitude; a single linear
// bar stalls at 100% while uploads run for minutes.
func (b *Batch) ProgressPct() int {
	if b.Status == BatchCompleted {
		return 100
	}
	if b.TotalPhotos == 0 {
		return 0
	}
	if b.ProcessedPhotos < b.TotalPhotos {
		return b.ProcessedPhotos * constants.ScanProgressShare / b.TotalPhotos
	}
	if b.PeopleFound == 0 {
		return constants.ScanProgressShare
	}
	pct := constants.ScanProgressShare +
		b.PeopleUploaded*(100-constants.ScanProgressShare)/b.PeopleFound
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Photo is a single uploaded photograph belonging to one batch.
type Photo struct {
	ID              int64     `json:"id"`
	BatchID         int64     `json:"batch_id"`
	RegistrationID  *int64    `json:"registration_id,omitempty"`
	Filename        string    `json:"filename"`
	OriginalPath    string    `json:"original_path"`
	IsQRCode        bool      `json:"is_qr_code"`
	QRData          string    `json:"-"`
	Processed       bool      `json:"processed"`
	UploadedToDrive bool      `json:"uploaded_to_drive"`
	CreatedAt       time.Time `json:"created_at"`
}

// Registration is an event participant who may appear in batch photos.
type Registration struct {
	ID              int64      `json:"id"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	Email           string     `json:"email"`
	QRToken         string     `json:"-"`
	PhotoCount      int        `json:"photo_count"`
	PhotosProcessed int        `json:"photos_processed"`
	PhotosUploaded  int        `json:"photos_uploaded"`
	DriveFolderID   string     `json:"drive_folder_id,omitempty"`
	DriveLink       string     `json:"drive_link,omitempty"`
	EmailSent       bool       `json:"email_sent"`
	EmailSentAt     *time.Time `json:"email_sent_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// OAuthToken is the persisted cloud-storage credential for one user.
// Raw tokens never leave the drive package; everything else sees only
// connection status, account email and expiry.
type OAuthToken struct {
	UserIdentifier string
	AccessToken    string
	RefreshToken   string
	Expiry         time.Time
	Scope          string
	Email          string
	UpdatedAt      time.Time
}

// Severity levels for processing log entries.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// LogEntry is one append-only processing audit record. The log exists so an
// operator can reconstruct what happened to a batch and recover manually.
type LogEntry struct {
	ID             int64     `json:"id"`
	BatchID        int64     `json:"batch_id"`
	Timestamp      time.Time `json:"timestamp"`
	Action         string    `json:"action"`
	Message        string    `json:"message"`
	Severity       string    `json:"severity"`
	RegistrationID *int64    `json:"registration_id,omitempty"`
}
