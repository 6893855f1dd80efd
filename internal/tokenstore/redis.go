package tokenstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/aristath/saxo-portfolio/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// KeyPrefix namespaces token keys. Format: saxo:oauth:{accountKey}
const KeyPrefix = "saxo:oauth"

// RedisStore keeps the token record msgpack-encoded under one key per account.
// Keys have no TTL; the refresh token lifetime is tracked inside the record.
type RedisStore struct {
	client     redis.UniversalClient
	accountKey string
	log        zerolog.Logger
}

// NewRedisStore creates a store bound to accountKey
func NewRedisStore(client redis.UniversalClient, accountKey string, log zerolog.Logger) *RedisStore {
	return &RedisStore{
		client:     client,
		accountKey: accountKey,
		log:        log.With().Str("component", "token_store").Str("backend", "redis").Logger(),
	}
}

func (s *RedisStore) key() string {
	return fmt.Sprintf("%s:%s", KeyPrefix, s.accountKey)
}

// Load returns the stored record, or nil when the account has none.
func (s *RedisStore) Load(ctx context.Context) (*domain.TokenRecord, error) {
	data, err := s.client.Get(ctx, s.key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token for %s: %w", s.accountKey, err)
	}

	var record domain.TokenRecord
	if err := msgpack.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode token for %s: %w", s.accountKey, err)
	}
	return &record, nil
}

// Save replaces the stored record.
func (s *RedisStore) Save(ctx context.Context, record domain.TokenRecord) error {
	data, err := msgpack.Marshal(&record)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := s.client.Set(ctx, s.key(), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save token for %s: %w", s.accountKey, err)
	}

	s.log.Debug().Str("account_key", s.accountKey).Int64("expires_at", record.ExpiresAt).Msg("Token saved")
	return nil
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

var _ domain.TokenStore = (*RedisStore)(nil)
