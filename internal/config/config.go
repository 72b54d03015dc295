package config

import (
	"os"
	"strconv"
)

type Config struct {
	Database   DatabaseConfig
	Upload     UploadConfig
	Drive      DriveConfig
	SMTP       SMTPConfig
	Processing ProcessingConfig
}

type DatabaseConfig struct {
	Path string // SQLite database file path
}

type UploadConfig struct {
	// Dir is the root directory for uploaded batch photos.
	// Photos for batch N live under Dir/N/.
	Dir string

	// MaxUploadSize limits a single multipart upload request, in bytes.
	MaxUploadSize int64
}

type DriveConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// ParentFolderID is an optional Drive folder all event folders are created under.
	ParentFolderID string

	// FolderNameFormat controls person folder naming:
	// "FirstName_LastName" (default), "LastName_FirstName" or "Event_YYYYMMDD/FirstName_LastName".
	FolderNameFormat string

	// APIBaseURL and UploadBaseURL override the Drive API endpoints. Used in tests.
	APIBaseURL    string
	UploadBaseURL string
	TokenURL      string
	RevokeURL     string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

type ProcessingConfig struct {
	// EnhancedQR enables the multi-strategy QR decode pipeline by default.
	// Individual process requests can still override it.
	EnhancedQR bool

	// AutoEmail sends the photos email automatically after each person's
	// group finishes uploading. When false, emails are sent manually.
	AutoEmail bool
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envBool reads an environment variable as a boolean flag.
func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return defaultVal
	}
	return b
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func Load() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: envOr("DATABASE_PATH", "photo-batcher.db"),
		},
		Upload: UploadConfig{
			Dir:           envOr("UPLOAD_DIR", "uploads"),
			MaxUploadSize: int64(envInt("MAX_UPLOAD_SIZE_MB", 512)) << 20,
		},
		Drive: DriveConfig{
			ClientID:         os.Getenv("GOOGLE_OAUTH_CLIENT_ID"),
			ClientSecret:     os.Getenv("GOOGLE_OAUTH_CLIENT_SECRET"),
			RedirectURL:      os.Getenv("GOOGLE_OAUTH_REDIRECT_URL"),
			ParentFolderID:   os.Getenv("DRIVE_PARENT_FOLDER_ID"),
			FolderNameFormat: envOr("DRIVE_FOLDER_NAME_FORMAT", "FirstName_LastName"),
			APIBaseURL:       envOr("DRIVE_API_BASE_URL", "https://www.googleapis.com/drive/v3"),
			UploadBaseURL:    envOr("DRIVE_UPLOAD_BASE_URL", "https://www.googleapis.com/upload/drive/v3"),
			TokenURL:         envOr("GOOGLE_OAUTH_TOKEN_URL", "https://oauth2.googleapis.com/token"),
			RevokeURL:        envOr("GOOGLE_OAUTH_REVOKE_URL", "https://oauth2.googleapis.com/revoke"),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     envInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     envOr("SMTP_FROM", os.Getenv("SMTP_USERNAME")),
			FromName: envOr("SMTP_FROM_NAME", "Photo Batcher"),
		},
		Processing: ProcessingConfig{
			EnhancedQR: envBool("QR_ENHANCED_MODE", false),
			AutoEmail:  envBool("AUTO_SEND_EMAILS", false),
		},
	}
}
