// Package tokenstore persists the OAuth token record between restarts.
package tokenstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/saxo-portfolio/internal/domain"
	"github.com/rs/zerolog"
)

// SQLiteStore keeps one JSON token record per account in the oauth_tokens table.
type SQLiteStore struct {
	db         *sql.DB
	accountKey string
	log        zerolog.Logger
}

// NewSQLiteStore creates a store bound to accountKey
func NewSQLiteStore(db *sql.DB, accountKey string, log zerolog.Logger) *SQLiteStore {
	return &SQLiteStore{
		db:         db,
		accountKey: accountKey,
		log:        log.With().Str("component", "token_store").Str("backend", "sqlite").Logger(),
	}
}

// Load returns the stored record, or nil when the account has none.
func (s *SQLiteStore) Load(ctx context.Context) (*domain.TokenRecord, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM oauth_tokens WHERE account_key = ?", s.accountKey,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token for %s: %w", s.accountKey, err)
	}

	var record domain.TokenRecord
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return nil, fmt.Errorf("failed to decode token for %s: %w", s.accountKey, err)
	}
	return &record, nil
}

// Save replaces the stored record.
func (s *SQLiteStore) Save(ctx context.Context, record domain.TokenRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO oauth_tokens (account_key, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(account_key) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, s.accountKey, string(payload), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save token for %s: %w", s.accountKey, err)
	}

	s.log.Debug().Str("account_key", s.accountKey).Int64("expires_at", record.ExpiresAt).Msg("Token saved")
	return nil
}

var _ domain.TokenStore = (*SQLiteStore)(nil)
