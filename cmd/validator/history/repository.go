// repository.go
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

// ErrNoAPIKey means the user has not stored a Gazelle API key yet.
var ErrNoAPIKey = errors.New("history: no API key stored for user")

// Repository persists user profiles and validation history metadata.
type Repository struct {
	db     *sqlx.DB
	cipher *keyCipher
	log    zerolog.Logger
}

// NewRepository wraps an open database handle. encryptionKey must be
// 32 bytes (hex-encoded, 64 chars) and is used to encrypt stored API
// keys at rest.
func NewRepository(db *sqlx.DB, encryptionKey string, log zerolog.Logger) (*Repository, error) {
	cipher, err := newKeyCipher(encryptionKey)
	if err != nil {
		return nil, err
	}
	return &Repository{
		db:     db,
		cipher: cipher,
		log:    log.With().Str("component", "history").Logger(),
	}, nil
}

// CreateOrUpdateUser upserts a user profile by email and refreshes the
// last-login timestamp.
func (r *Repository) CreateOrUpdateUser(ctx context.Context, email string, azureADObjectID, displayName *string) (int64, error) {
	var id int64
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO users (email, azure_ad_object_id, display_name, last_login_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (email) DO UPDATE
		SET azure_ad_object_id = EXCLUDED.azure_ad_object_id,
		    display_name = EXCLUDED.display_name,
		    last_login_at = NOW()
		RETURNING id`,
		email, azureADObjectID, displayName).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert user: %w", err)
	}
	return id, nil
}

// GetUserByEmail returns the active user with the given email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := r.db.GetContext(ctx, &user, `
		SELECT id, email, azure_ad_object_id, display_name, encrypted_api_key,
		       is_active, created_at, last_login_at
		FROM users
		WHERE email = $1 AND is_active`, email)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", email, err)
	}
	return &user, nil
}

// SetUserAPIKey encrypts and stores the user's Gazelle API key.
func (r *Repository) SetUserAPIKey(ctx context.Context, userID int64, apiKey string) error {
	encrypted, err := r.cipher.encrypt(apiKey)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE users SET encrypted_api_key = $1 WHERE id = $2`, encrypted, userID)
	if err != nil {
		return fmt.Errorf("failed to store API key: %w", err)
	}
	r.log.Info().Int64("user_id", userID).Msg("Stored encrypted API key")
	return nil
}

// GetUserAPIKey decrypts and returns the user's Gazelle API key.
func (r *Repository) GetUserAPIKey(ctx context.Context, userID int64) (string, error) {
	var encrypted sql.NullString
	err := r.db.GetContext(ctx, &encrypted,
		`SELECT encrypted_api_key FROM users WHERE id = $1`, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load API key: %w", err)
	}
	if !encrypted.Valid || encrypted.String == "" {
		return "", ErrNoAPIKey
	}
	return r.cipher.decrypt(encrypted.String)
}

// SaveValidationResult records one validation run's metadata.
func (r *Repository) SaveValidationResult(ctx context.Context, e Entry) (int64, error) {
	if e.ValidatedAt.IsZero() {
		e.ValidatedAt = time.Now()
	}
	var id int64
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO validation_history
			(user_id, filename, message_type, status, error_count,
			 warning_count, correction_count, report_url, validated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		e.UserID, e.Filename, e.MessageType, e.Status, e.ErrorCount,
		e.WarningCount, e.CorrectionCount, e.ReportURL, e.ValidatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to save validation result: %w", err)
	}
	return id, nil
}

// GetUserValidationHistory returns the user's most recent runs.
func (r *Repository) GetUserValidationHistory(ctx context.Context, userID int64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []Entry
	err := r.db.SelectContext(ctx, &entries, `
		SELECT id, user_id, filename, message_type, status, error_count,
		       warning_count, correction_count, report_url, validated_at
		FROM validation_history
		WHERE user_id = $1
		ORDER BY validated_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load validation history: %w", err)
	}
	return entries, nil
}

// GetUserStatistics aggregates the user's history.
func (r *Repository) GetUserStatistics(ctx context.Context, userID int64) (*Statistics, error) {
	var stats Statistics
	err := r.db.GetContext(ctx, &stats, `
		SELECT COUNT(*) AS total_validations,
		       COUNT(*) FILTER (WHERE status = 'PASSED') AS passed,
		       COUNT(*) FILTER (WHERE status <> 'PASSED') AS failed,
		       COALESCE(SUM(correction_count), 0) AS total_corrections
		FROM validation_history
		WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load statistics: %w", err)
	}
	return &stats, nil
}
