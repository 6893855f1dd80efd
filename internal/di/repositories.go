package di

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/saxo-portfolio/internal/config"
	"github.com/aristath/saxo-portfolio/internal/modules/settings"
	"github.com/aristath/saxo-portfolio/internal/tokenstore"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const redisPingTimeout = 5 * time.Second

// InitializeRepositories creates the settings repository and the token store
func InitializeRepositories(container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.SettingsRepo = settings.NewRepository(container.DB.Conn(), log)

	switch cfg.TokenStore {
	case config.TokenStoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		store := tokenstore.NewRedisStore(client, cfg.AccountKey, log)
		ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			_ = client.Close()
			return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}

		container.Redis = client
		container.TokenStore = store
	default:
		container.TokenStore = tokenstore.NewSQLiteStore(container.DB.Conn(), cfg.AccountKey, log)
	}

	log.Info().
		Str("token_store", cfg.TokenStore).
		Str("account_key", cfg.AccountKey).
		Msg("Repositories initialized")

	return nil
}
