package tokenstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aristath/saxo-portfolio/internal/domain"
	testingpkg "github.com/aristath/saxo-portfolio/internal/testing"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T, accountKey string) *SQLiteStore {
	t.Helper()
	db := testingpkg.NewTestDB(t)
	return NewSQLiteStore(db.Conn(), accountKey, zerolog.Nop())
}

func newRedisStore(t *testing.T, accountKey string) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, accountKey, zerolog.Nop()), mr
}

func sampleRecord() domain.TokenRecord {
	refreshIn := int64(3600)
	return domain.TokenRecord{
		AccessToken:           "access",
		RefreshToken:          "refresh",
		TokenType:             "Bearer",
		ExpiresIn:             1200,
		ExpiresAt:             1741609200,
		IssuedAt:              1741608000,
		RefreshTokenExpiresIn: &refreshIn,
		RedirectURI:           "http://localhost/cb",
	}
}

func TestStores_Contract(t *testing.T) {
	backends := map[string]func(t *testing.T) domain.TokenStore{
		"sqlite": func(t *testing.T) domain.TokenStore { return newSQLiteStore(t, "default") },
		"redis": func(t *testing.T) domain.TokenStore {
			store, _ := newRedisStore(t, "default")
			return store
		},
	}

	for name, build := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := build(t)

			record, err := store.Load(ctx)
			require.NoError(t, err)
			assert.Nil(t, record, "missing record is not an error")

			require.NoError(t, store.Save(ctx, sampleRecord()))
			record, err = store.Load(ctx)
			require.NoError(t, err)
			require.NotNil(t, record)
			assert.Equal(t, sampleRecord(), *record)

			updated := sampleRecord()
			updated.AccessToken = "access-2"
			updated.RefreshTokenExpiresIn = nil
			require.NoError(t, store.Save(ctx, updated))

			record, err = store.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, "access-2", record.AccessToken)
			assert.Nil(t, record.RefreshTokenExpiresIn)
		})
	}
}

func TestSQLiteStore_AccountsAreIsolated(t *testing.T) {
	ctx := context.Background()
	db := testingpkg.NewTestDB(t)

	a := NewSQLiteStore(db.Conn(), "a", zerolog.Nop())
	b := NewSQLiteStore(db.Conn(), "b", zerolog.Nop())
	require.NoError(t, a.Save(ctx, sampleRecord()))

	record, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestRedisStore_KeyAndCorruptPayload(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t, "acct")
	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.Save(ctx, sampleRecord()))

	assert.True(t, mr.Exists("saxo:oauth:acct"))
	assert.Equal(t, 0, int(mr.TTL("saxo:oauth:acct")))

	require.NoError(t, mr.Set("saxo:oauth:acct", "not msgpack \xc1"))
	_, err := store.Load(ctx)
	assert.Error(t, err)
}

func TestRedisStore_Unavailable(t *testing.T) {
	store, mr := newRedisStore(t, "acct")
	mr.Close()

	_, err := store.Load(context.Background())
	assert.Error(t, err)
	assert.Error(t, store.Save(context.Background(), sampleRecord()))
}
