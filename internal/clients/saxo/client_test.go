package saxo

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/saxo-portfolio/internal/domain"
	"github.com/aristath/saxo-portfolio/internal/ratelimit"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingThrottle struct {
	mu        sync.Mutex
	turns     int
	cooldowns []time.Duration
}

func (r *recordingThrottle) AwaitTurn(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns++
	return ctx.Err()
}

func (r *recordingThrottle) ReportServerCooldown(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cooldowns = append(r.cooldowns, d)
}

type recordingSleeper struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps = append(s.sleeps, d)
	return ctx.Err()
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *recordingThrottle, *recordingSleeper) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	throttle := &recordingThrottle{}
	sleeper := &recordingSleeper{}
	log := zerolog.New(nil).Level(zerolog.Disabled)
	client := NewClient("test-token", 1, throttle, log,
		WithBaseURL(server.URL),
		WithSleep(sleeper.Sleep),
		WithBatchSpacing(0),
	)
	t.Cleanup(client.Close)
	return client, throttle, sleeper
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func TestBalance_SendsAuthenticatedRequest(t *testing.T) {
	var captured *http.Request
	client, throttle, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		captured = r
		writeJSON(w, map[string]interface{}{
			"CashBalance":             1000.5,
			"Currency":                "EUR",
			"TotalValue":              2500.25,
			"NonMarginPositionsValue": 1499.75,
		})
	})

	balance, err := client.Balance(context.Background())
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, captured.Method)
	assert.Equal(t, balancePath, captured.URL.Path)
	assert.Equal(t, "Bearer test-token", captured.Header.Get("Authorization"))
	assert.Equal(t, "application/json", captured.Header.Get("Content-Type"))
	assert.Contains(t, captured.Header.Get("User-Agent"), "saxo-portfolio")
	assert.Equal(t, 1, throttle.turns)

	assert.Equal(t, 1000.5, balance.CashBalance)
	assert.Equal(t, 2500.25, balance.TotalValue)
	assert.Equal(t, 1499.75, balance.NonMarginPositionsValue)
	assert.Equal(t, "EUR", balance.Currency)
}

func TestBalance_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		message string
	}{
		{"missing fields", `{"CashBalance": 1}`, "Currency, TotalValue"},
		{"negative total", `{"CashBalance": 1, "Currency": "EUR", "TotalValue": -5}`, "TotalValue must be >= 0"},
		{"string number", `{"CashBalance": "1", "Currency": "EUR", "TotalValue": 5}`, "failed to parse response"},
		{"empty currency", `{"CashBalance": 1, "Currency": " ", "TotalValue": 5}`, "Currency is empty"},
		{"not json", `<html>`, "failed to parse response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.payload))
			})

			_, err := client.Balance(context.Background())
			require.Error(t, err)
			assert.Equal(t, domain.KindValidation, domain.KindOf(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestGet_UnauthorizedIsNotRetried(t *testing.T) {
	var calls int32
	client, _, sleeper := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"ErrorCode":"InvalidToken"}`))
	})

	_, err := client.Balance(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsUnauthorized(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Empty(t, sleeper.sleeps)
}

func TestGet_RateLimitedThenSucceeds(t *testing.T) {
	var calls int32
	client, throttle, sleeper := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(w, map[string]interface{}{"CashBalance": 1, "Currency": "USD", "TotalValue": 2})
	})

	balance, err := client.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2.0, balance.TotalValue)

	assert.Equal(t, []time.Duration{2 * time.Second}, throttle.cooldowns)
	require.Len(t, sleeper.sleeps, 1)
	assert.GreaterOrEqual(t, sleeper.sleeps[0], 2*time.Second)
	assert.Equal(t, 2, throttle.turns)
}

func TestGet_RateLimitExhausted(t *testing.T) {
	var calls int32
	client, throttle, sleeper := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Retry-After", "10")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Balance(context.Background())
	require.Error(t, err)

	var tagged *domain.Error
	require.True(t, errors.As(err, &tagged))
	assert.Equal(t, domain.KindRateLimited, tagged.Kind)
	assert.Equal(t, domain.CodeRateLimitExceeded, tagged.Code)
	assert.Equal(t, 10*time.Second, tagged.RetryAfter)

	assert.Equal(t, int32(maxRetries), atomic.LoadInt32(&calls))
	assert.Len(t, throttle.cooldowns, maxRetries)
	assert.Equal(t, []time.Duration{10 * time.Second, 20 * time.Second}, sleeper.sleeps)
}

func TestGet_RateLimitBackoffBeyondDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	sleeper := &recordingSleeper{}
	client := NewClient("t", 1, ratelimit.New(zerolog.Nop()), zerolog.Nop(),
		WithBaseURL(server.URL),
		WithSleep(sleeper.Sleep),
	)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Balance(ctx)
	require.Error(t, err)
	assert.Equal(t, domain.KindRateLimited, domain.KindOf(err))
	assert.Empty(t, sleeper.sleeps, "no backoff that cannot finish in time")
	assert.Less(t, time.Since(start), 300*time.Millisecond)
}

func TestGet_RateLimitBackoffInterrupted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	client := NewClient("t", 1, &recordingThrottle{}, zerolog.Nop(),
		WithBaseURL(server.URL),
		WithSleep(func(ctx context.Context, d time.Duration) error { return context.DeadlineExceeded }),
	)
	defer client.Close()

	_, err := client.Balance(context.Background())
	require.Error(t, err)

	var tagged *domain.Error
	require.True(t, errors.As(err, &tagged))
	assert.Equal(t, domain.KindRateLimited, tagged.Kind)
	assert.Equal(t, 5*time.Second, tagged.RetryAfter)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGet_ServerErrorIsTransientAPIError(t *testing.T) {
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(strings.Repeat("x", 800)))
	})

	_, err := client.Balance(context.Background())
	require.Error(t, err)

	var tagged *domain.Error
	require.True(t, errors.As(err, &tagged))
	assert.Equal(t, domain.KindTransient, tagged.Kind)
	assert.Equal(t, http.StatusBadGateway, tagged.StatusCode)
	assert.Contains(t, tagged.Message, "...")
	assert.Less(t, len(tagged.Message), 600)
}

func TestGet_NetworkErrorRetriedThenTransient(t *testing.T) {
	// Closed listener: every dial is refused
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	throttle := &recordingThrottle{}
	sleeper := &recordingSleeper{}
	client := NewClient("t", 1, throttle, zerolog.Nop(),
		WithBaseURL("http://"+addr),
		WithSleep(sleeper.Sleep),
	)
	defer client.Close()

	_, err = client.Balance(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.KindTransient, domain.KindOf(err))
	assert.Equal(t, maxRetries, throttle.turns)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.sleeps)
}

func TestBackoffHelpers(t *testing.T) {
	assert.Equal(t, 2*time.Second, rateLimitBackoff(2*time.Second, 0))
	assert.Equal(t, 8*time.Second, rateLimitBackoff(2*time.Second, 2))
	assert.Equal(t, maxRateBackoff, rateLimitBackoff(200*time.Second, 1))

	assert.Equal(t, time.Second, networkBackoff(0, false))
	assert.Equal(t, 4*time.Second, networkBackoff(2, false))
	assert.Equal(t, maxNetBackoff, networkBackoff(10, false))
	assert.Equal(t, 10*time.Second, networkBackoff(1, true))
	assert.Equal(t, maxNetBackoff, networkBackoff(3, true))
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, defaultRetryAfter, parseRetryAfter(""))
	assert.Equal(t, defaultRetryAfter, parseRetryAfter("soon"))
	assert.Equal(t, 2*time.Second, parseRetryAfter("2"))
	assert.Equal(t, time.Duration(0), parseRetryAfter(time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat)))
}

func TestIsDNSError(t *testing.T) {
	wrapped := errors.Join(errors.New("request failed"), &net.DNSError{Err: "no such host", Name: "gateway"})
	assert.True(t, isDNSError(wrapped))
	assert.False(t, isDNSError(errors.New("connection refused")))
}
