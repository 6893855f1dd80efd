// Package ratelimit provides the client-side request throttle shared by all
// brokerage calls: a sliding window of request timestamps plus a cooldown
// deadline set from server Retry-After responses.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	DefaultWindow      = 60 * time.Second
	DefaultMaxRequests = 120

	// A saturated window would otherwise warn on every request.
	windowFullLogInterval = time.Minute
)

// SleepFunc suspends for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc backed by a timer.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Stats is a point-in-time view of the limiter state.
type Stats struct {
	RequestsInWindow int       `json:"requests_in_window"`
	MaxRequests      int       `json:"max_requests"`
	WindowSeconds    float64   `json:"window_seconds"`
	CooldownUntil    time.Time `json:"cooldown_until,omitempty"`
}

// Limiter serializes outbound requests.
// turn is held for the whole of AwaitTurn, so callers proceed one at a time.
// mu guards the state and is never held while sleeping, which keeps
// ReportServerCooldown and Stats non-blocking.
type Limiter struct {
	turn sync.Mutex

	mu            sync.Mutex
	timestamps    []time.Time
	cooldownUntil time.Time

	window        time.Duration
	maxRequests   int
	now           func() time.Time
	sleep         SleepFunc
	log           zerolog.Logger
	windowFullLog rate.Sometimes
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithWindow overrides the window length and request cap.
func WithWindow(window time.Duration, maxRequests int) Option {
	return func(l *Limiter) {
		l.window = window
		l.maxRequests = maxRequests
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithSleep overrides how the limiter suspends.
func WithSleep(sleep SleepFunc) Option {
	return func(l *Limiter) { l.sleep = sleep }
}

// New creates a limiter with the default 120 requests per 60s window.
func New(log zerolog.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		window:      DefaultWindow,
		maxRequests: DefaultMaxRequests,
		now:         time.Now,
		sleep:       Sleep,
		log:         log.With().Str("component", "rate_limiter").Logger(),
	}
	l.windowFullLog.Interval = windowFullLogInterval
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AwaitTurn returns once it is safe to issue the next request.
// The only error is ctx.Err() when the caller gives up while suspended.
func (l *Limiter) AwaitTurn(ctx context.Context) error {
	l.turn.Lock()
	defer l.turn.Unlock()

	// Server cooldown first. It may be extended while we sleep.
	for {
		l.mu.Lock()
		wait := l.cooldownUntil.Sub(l.now())
		if wait <= 0 {
			l.cooldownUntil = time.Time{}
			l.mu.Unlock()
			break
		}
		l.mu.Unlock()

		l.log.Info().Dur("wait", wait).Msg("Server cooldown active, waiting")
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}

	l.mu.Lock()
	now := l.now()
	l.prune(now)
	var wait time.Duration
	if len(l.timestamps) >= l.maxRequests {
		wait = l.window - now.Sub(l.timestamps[0])
	}
	l.mu.Unlock()

	if wait > 0 {
		l.windowFullLog.Do(func() {
			l.log.Warn().
				Dur("wait", wait).
				Int("max_requests", l.maxRequests).
				Msg("Request window full, waiting")
		})
		l.log.Debug().Dur("wait", wait).Msg("Request window full")
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}

	l.mu.Lock()
	now = l.now()
	l.prune(now)
	l.timestamps = append(l.timestamps, now)
	l.mu.Unlock()

	return nil
}

// ReportServerCooldown blocks every request until d has elapsed.
// A shorter cooldown never shortens an existing one.
func (l *Limiter) ReportServerCooldown(d time.Duration) {
	if d <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	until := l.now().Add(d)
	if until.After(l.cooldownUntil) {
		l.cooldownUntil = until
	}
	l.log.Warn().Dur("cooldown", d).Time("until", l.cooldownUntil).Msg("Server requested cooldown")
}

// Stats returns the current window usage.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.now())
	return Stats{
		RequestsInWindow: len(l.timestamps),
		MaxRequests:      l.maxRequests,
		WindowSeconds:    l.window.Seconds(),
		CooldownUntil:    l.cooldownUntil,
	}
}

// prune drops timestamps older than now - window. Caller holds mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.timestamps) && !l.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.timestamps = append(l.timestamps[:0], l.timestamps[i:]...)
	}
}
