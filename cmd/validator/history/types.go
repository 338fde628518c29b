// types.go
package history

import (
	"time"
)

// User is a dashboard user profile. The Gazelle API key is stored
// encrypted; it never leaves the repository in plain form except via
// GetUserAPIKey.
type User struct {
	ID              int64      `db:"id" json:"id"`
	Email           string     `db:"email" json:"email"`
	AzureADObjectID *string    `db:"azure_ad_object_id" json:"azureAdObjectId,omitempty"`
	DisplayName     *string    `db:"display_name" json:"displayName,omitempty"`
	EncryptedAPIKey *string    `db:"encrypted_api_key" json:"-"`
	IsActive        bool       `db:"is_active" json:"isActive"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	LastLoginAt     *time.Time `db:"last_login_at" json:"lastLoginAt,omitempty"`
}

// Entry is one validation run's metadata. Raw message bytes are not
// persisted here; the ephemeral store owns those.
type Entry struct {
	ID              int64     `db:"id" json:"id"`
	UserID          int64     `db:"user_id" json:"userId"`
	Filename        string    `db:"filename" json:"filename"`
	MessageType     string    `db:"message_type" json:"messageType"`
	Status          string    `db:"status" json:"status"`
	ErrorCount      int       `db:"error_count" json:"errorCount"`
	WarningCount    int       `db:"warning_count" json:"warningCount"`
	CorrectionCount int       `db:"correction_count" json:"correctionCount"`
	ReportURL       string    `db:"report_url" json:"reportUrl,omitempty"`
	ValidatedAt     time.Time `db:"validated_at" json:"validatedAt"`
}

// Statistics aggregates a user's validation history.
type Statistics struct {
	TotalValidations int `db:"total_validations" json:"totalValidations"`
	Passed           int `db:"passed" json:"passed"`
	Failed           int `db:"failed" json:"failed"`
	TotalCorrections int `db:"total_corrections" json:"totalCorrections"`
}
