// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// QR detection constants
const (
	// MaxDecodeDimension is the maximum dimension (width or height) an image
	// is downscaled to before the fast-path QR decode attempt
	MaxDecodeDimension = 1200

	// EnhancedContrastPct is the contrast stretch applied in enhanced decode mode
	EnhancedContrastPct = 50

	// AdaptiveWindow is the neighborhood size for adaptive thresholding
	AdaptiveWindow = 11

	// AdaptiveBias is subtracted from the local mean when thresholding
	AdaptiveBias = 2
)

// Persistence retry constants
const (
	// WriteMaxAttempts is the number of attempts for a contended database
	// operation: the initial try plus five retries at 500ms, 1s, 2s, 4s, 8s
	WriteMaxAttempts = 6

	// WriteBackoffBase is the delay before the first retry; it doubles per attempt
	WriteBackoffBase = 500 * time.Millisecond
)

// Progress constants
const (
	// ScanProgressShare is the portion of the progress bar covered by the
	// QR scanning phase. Uploading groups covers the remainder.
	ScanProgressShare = 80

	// ProgressLogInterval is the number of photos between periodic progress log entries
	ProgressLogInterval = 50
)

// Event streaming constants
const (
	// EventChannelBuffer is the buffer size for per-listener event channels
	EventChannelBuffer = 64

	// RecentLogEntries is the number of log entries returned with batch status
	RecentLogEntries = 20
)

// Drive constants
const (
	// TokenExpiryMargin refreshes an access token this long before it expires
	TokenExpiryMargin = 2 * time.Minute

	// DriveFolderMimeType is the Drive MIME type for folders
	DriveFolderMimeType = "application/vnd.google-apps.folder"
)
