package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/saxo-portfolio/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu     sync.Mutex
	record *domain.TokenRecord
	saves  int
}

func (s *memoryStore) Load(ctx context.Context) (*domain.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return nil, nil
	}
	r := *s.record
	return &r, nil
}

func (s *memoryStore) Save(ctx context.Context, record domain.TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = &record
	s.saves++
	return nil
}

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func seconds(v int64) *int64 { return &v }

type tokenServer struct {
	*httptest.Server
	calls    int32
	lastForm map[string]string
	user     string
	pass     string
	mu       sync.Mutex
}

func newTokenServer(t *testing.T, status int, body interface{}) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&ts.calls, 1)
		require.NoError(t, r.ParseForm())
		ts.mu.Lock()
		ts.lastForm = map[string]string{}
		for k := range r.PostForm {
			ts.lastForm[k] = r.PostForm.Get(k)
		}
		ts.user, ts.pass, _ = r.BasicAuth()
		ts.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestManager(t *testing.T, store *memoryStore, tokenURL string) *Manager {
	t.Helper()
	creds := Credentials{AppKey: "app-key", AppSecret: "app-secret", RedirectURI: "http://localhost/cb"}
	m := NewManager(store, creds, zerolog.New(nil).Level(zerolog.Disabled),
		WithTokenURL(tokenURL),
		WithClock(func() time.Time { return testNow }),
	)
	require.NoError(t, m.Load(context.Background()))
	return m
}

func storedRecord(accessExpiresIn time.Duration, refreshExpiresIn *int64) *domain.TokenRecord {
	issued := testNow.Add(-10 * time.Minute)
	return &domain.TokenRecord{
		AccessToken:           "old-access",
		RefreshToken:          "old-refresh",
		ExpiresAt:             testNow.Add(accessExpiresIn).Unix(),
		IssuedAt:              issued.Unix(),
		RefreshTokenExpiresIn: refreshExpiresIn,
	}
}

func refreshBody() map[string]interface{} {
	return map[string]interface{}{
		"access_token":             "new-access",
		"refresh_token":            "new-refresh",
		"token_type":               "Bearer",
		"expires_in":               1200,
		"refresh_token_expires_in": 3600,
	}
}

func TestEnsureValid_ValidTokenNoRefresh(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, refreshBody())
	store := &memoryStore{record: storedRecord(time.Hour, seconds(7200))}
	m := newTestManager(t, store, ts.URL)

	require.NoError(t, m.EnsureValid(context.Background()))
	assert.Equal(t, int32(0), atomic.LoadInt32(&ts.calls))
	assert.Equal(t, StateValid, m.State())
	assert.Equal(t, uint64(1), m.Generation())
}

func TestEnsureValid_AccessTokenExpiringRefreshes(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, refreshBody())
	store := &memoryStore{record: storedRecord(4*time.Minute, nil)}
	m := newTestManager(t, store, ts.URL)

	require.NoError(t, m.EnsureValid(context.Background()))

	assert.Equal(t, int32(1), atomic.LoadInt32(&ts.calls))
	assert.Equal(t, "refresh_token", ts.lastForm["grant_type"])
	assert.Equal(t, "old-refresh", ts.lastForm["refresh_token"])
	assert.Equal(t, "http://localhost/cb", ts.lastForm["redirect_uri"])
	assert.Equal(t, "app-key", ts.user)
	assert.Equal(t, "app-secret", ts.pass)

	token, generation := m.AccessToken()
	assert.Equal(t, "new-access", token)
	assert.Equal(t, uint64(2), generation)
	assert.Equal(t, StateValid, m.State())

	current := m.Token()
	assert.Equal(t, testNow.Add(1200*time.Second), current.ExpiresAt)
	assert.Equal(t, testNow, current.IssuedAt)
	assert.Equal(t, "new-refresh", current.RefreshToken)

	require.NotNil(t, store.record)
	assert.Equal(t, "new-access", store.record.AccessToken)
	assert.Equal(t, testNow.Unix(), store.record.IssuedAt)
	assert.Equal(t, testNow.Add(1200*time.Second).Unix(), store.record.ExpiresAt)
	assert.Equal(t, int64(3600), *store.record.RefreshTokenExpiresIn)
}

func TestEnsureValid_RefreshTokenExpiredIsFatalWithoutHTTP(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, refreshBody())
	// issued 10 minutes ago, refresh token lived 5 minutes
	store := &memoryStore{record: storedRecord(time.Hour, seconds(300))}
	m := newTestManager(t, store, ts.URL)

	err := m.EnsureValid(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsAuthFatal(err))
	assert.Equal(t, StateExpired, m.State())
	assert.Equal(t, int32(0), atomic.LoadInt32(&ts.calls))

	// terminal: a second call stays fatal
	assert.True(t, domain.IsAuthFatal(m.EnsureValid(context.Background())))
	assert.True(t, domain.IsAuthFatal(m.Refresh(context.Background())))
	assert.Equal(t, int32(0), atomic.LoadInt32(&ts.calls))
}

func TestEnsureValid_RefreshTokenExpiringRefreshesProactively(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, refreshBody())
	// refresh token expires in 4 minutes, access token still fine
	store := &memoryStore{record: storedRecord(time.Hour, seconds(14*60))}
	m := newTestManager(t, store, ts.URL)

	require.NoError(t, m.EnsureValid(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&ts.calls))
	assert.Equal(t, "new-refresh", m.Token().RefreshToken)
}

func TestEnsureValid_TwiceTriggersSingleRefresh(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, refreshBody())
	store := &memoryStore{record: storedRecord(time.Minute, nil)}
	m := newTestManager(t, store, ts.URL)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.EnsureValid(context.Background()))
		}()
	}
	wg.Wait()
	require.NoError(t, m.EnsureValid(context.Background()))

	assert.Equal(t, int32(1), atomic.LoadInt32(&ts.calls))
	assert.Equal(t, uint64(2), m.Generation())
}

func TestRefresh_RejectedIsAuthFatal(t *testing.T) {
	ts := newTokenServer(t, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
	store := &memoryStore{record: storedRecord(time.Minute, nil)}
	m := newTestManager(t, store, ts.URL)

	err := m.EnsureValid(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsAuthFatal(err))
	assert.Equal(t, StateExpired, m.State())
	assert.Equal(t, uint64(1), m.Generation())
	assert.Equal(t, 0, store.saves)
}

func TestRefresh_TransportErrorIsTransient(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, refreshBody())
	url := ts.URL
	ts.Close()

	store := &memoryStore{record: storedRecord(time.Minute, nil)}
	m := newTestManager(t, store, url)

	err := m.EnsureValid(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.KindTransient, domain.KindOf(err))
	assert.Equal(t, StateNeedsRefresh, m.State())
}

func TestRefresh_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	ts := newTokenServer(t, http.StatusCreated, map[string]interface{}{
		"access_token": "new-access",
		"expires_in":   1200,
	})
	store := &memoryStore{record: storedRecord(time.Hour, seconds(3600))}
	m := newTestManager(t, store, ts.URL)

	require.NoError(t, m.Refresh(context.Background()))

	current := m.Token()
	assert.Equal(t, "old-refresh", current.RefreshToken)
	expiry, ok := current.RefreshTokenExpiresAt()
	require.True(t, ok)
	// original expiry: issued 10 min ago + 60 min
	assert.Equal(t, testNow.Add(50*time.Minute), expiry)
}

func TestEnsureValid_NotConfigured(t *testing.T) {
	m := newTestManager(t, &memoryStore{}, "http://unused")
	err := m.EnsureValid(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsAuthFatal(err))
}

func TestSetToken_LeavesExpired(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, refreshBody())
	store := &memoryStore{record: storedRecord(time.Hour, seconds(300))}
	m := newTestManager(t, store, ts.URL)
	require.Error(t, m.EnsureValid(context.Background()))

	hint := time.Hour
	require.NoError(t, m.SetToken(context.Background(), TokenState{
		AccessToken:           "fresh",
		RefreshToken:          "fresh-refresh",
		ExpiresAt:             testNow.Add(20 * time.Minute),
		IssuedAt:              testNow,
		RefreshTokenExpiresIn: &hint,
	}))

	assert.Equal(t, StateValid, m.State())
	require.NoError(t, m.EnsureValid(context.Background()))
	assert.Equal(t, "fresh", store.record.AccessToken)
	assert.Equal(t, "http://localhost/cb", store.record.RedirectURI)
}
