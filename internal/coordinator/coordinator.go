// Package coordinator runs the single-flight polling engine that turns
// brokerage API responses into published portfolio snapshots.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/aristath/saxo-portfolio/internal/domain"
	"github.com/aristath/saxo-portfolio/internal/events"
	"github.com/aristath/saxo-portfolio/internal/modules/market_hours"
	"github.com/aristath/saxo-portfolio/internal/ratelimit"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	// Polling intervals
	IntervalFixed        = 15 * time.Minute
	IntervalMarketOpen   = 5 * time.Minute
	IntervalMarketClosed = 30 * time.Minute

	DefaultPerformanceTTL     = 2 * time.Hour
	DefaultPollTimeout        = 60 * time.Second
	DefaultPerformanceTimeout = 30 * time.Second
	DefaultMaxStartupJitter   = 30 * time.Second
	DefaultAvailabilityFloor  = 15 * time.Minute

	availabilityMultiplier = 3
	moduleName             = "coordinator"
	pollKey                = "poll"
)

// ErrClosed is returned by polls issued after Close.
var ErrClosed = errors.New("coordinator closed")

// TokenSource is the token manager as seen by the engine.
type TokenSource interface {
	EnsureValid(ctx context.Context) error
	Refresh(ctx context.Context) error
	AccessToken() (string, uint64)
}

// ClientFactory builds a broker client bound to one token generation.
type ClientFactory func(accessToken string, generation uint64) domain.BrokerClient

// EventEmitter publishes engine events.
type EventEmitter interface {
	EmitTyped(module string, data events.EventData)
}

// Config holds the engine tunables. Zero values take the defaults; a
// negative MaxStartupJitter disables the jitter.
type Config struct {
	Timezone           string
	PerformanceTTL     time.Duration
	PollTimeout        time.Duration
	PerformanceTimeout time.Duration
	MaxStartupJitter   time.Duration
	AvailabilityFloor  time.Duration
}

func (c *Config) applyDefaults() {
	if c.Timezone == "" {
		c.Timezone = market_hours.Any
	}
	if c.PerformanceTTL <= 0 {
		c.PerformanceTTL = DefaultPerformanceTTL
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.PerformanceTimeout <= 0 {
		c.PerformanceTimeout = DefaultPerformanceTimeout
	}
	switch {
	case c.MaxStartupJitter == 0:
		c.MaxStartupJitter = DefaultMaxStartupJitter
	case c.MaxStartupJitter < 0:
		c.MaxStartupJitter = 0
	}
	if c.AvailabilityFloor <= 0 {
		c.AvailabilityFloor = DefaultAvailabilityFloor
	}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithSleep overrides how the startup jitter is waited out.
func WithSleep(sleep ratelimit.SleepFunc) Option {
	return func(c *Coordinator) { c.sleep = sleep }
}

// WithJitter overrides the startup jitter source. It receives the maximum.
func WithJitter(jitter func(max time.Duration) time.Duration) Option {
	return func(c *Coordinator) { c.jitter = jitter }
}

// WithEvents publishes engine events to emitter.
func WithEvents(emitter EventEmitter) Option {
	return func(c *Coordinator) { c.events = emitter }
}

// WithReloadFunc sets the action run when sensors must be recreated.
// It runs on its own goroutine.
func WithReloadFunc(reload func()) Option {
	return func(c *Coordinator) { c.reload = reload }
}

// WithIntervalHook is called with the new interval whenever it changes.
func WithIntervalHook(hook func(time.Duration)) Option {
	return func(c *Coordinator) { c.onInterval = hook }
}

// Coordinator owns one account's token-driven polling loop.
type Coordinator struct {
	cfg        Config
	tokens     TokenSource
	newClient  ClientFactory
	events     EventEmitter
	reload     func()
	onInterval func(time.Duration)
	now        func() time.Time
	sleep      ratelimit.SleepFunc
	jitter     func(time.Duration) time.Duration
	log        zerolog.Logger

	group  singleflight.Group
	ctx    context.Context
	cancel context.CancelFunc

	clientMu     sync.Mutex
	client       domain.BrokerClient
	clientGen    uint64
	clientClosed bool

	mu                sync.RWMutex
	calc              *market_hours.Calculator
	snapshot          *domain.Snapshot
	cache             domain.PerformanceCache
	lastUpdateSuccess bool
	lastSuccessAt     time.Time
	lastErr           error
	interval          time.Duration
	lifecycle         Lifecycle
	knownClientName   string
	jitterDone        bool
	closed            bool
}

// New creates an engine. The initial interval is computed immediately so
// the host can schedule the first poll.
func New(tokens TokenSource, factory ClientFactory, cfg Config, log zerolog.Logger, opts ...Option) (*Coordinator, error) {
	cfg.applyDefaults()

	calc, err := market_hours.NewCalculator(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to create market hours calculator: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		cfg:             cfg,
		tokens:          tokens,
		newClient:       factory,
		now:             time.Now,
		sleep:           ratelimit.Sleep,
		jitter:          randomJitter,
		log:             log.With().Str("component", "coordinator").Logger(),
		ctx:             ctx,
		cancel:          cancel,
		calc:            calc,
		cache:           domain.NewPerformanceCache(),
		lifecycle:       newLifecycle(),
		knownClientName: domain.UnknownClientName,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.interval = c.computeInterval(c.now())
	return c, nil
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}

// Poll runs one scheduled poll. The first poll of the engine waits out a
// random startup jitter. Concurrent calls share the in-flight poll.
func (c *Coordinator) Poll(ctx context.Context) error {
	return c.run(ctx, true)
}

// Refresh runs a manual poll without jitter, sharing any in-flight poll.
func (c *Coordinator) Refresh(ctx context.Context) error {
	return c.run(ctx, false)
}

func (c *Coordinator) run(ctx context.Context, scheduled bool) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	ch := c.group.DoChan(pollKey, func() (interface{}, error) {
		return nil, c.poll(scheduled)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// poll is the body guarded by the single-flight group. It runs on the
// engine context so a caller giving up does not abort it for the others.
func (c *Coordinator) poll(scheduled bool) error {
	pollID := uuid.NewString()
	log := c.log.With().Str("poll_id", pollID).Logger()

	if err := c.startupJitter(scheduled, log); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.PollTimeout)
	defer cancel()

	start := c.now()
	log.Debug().Msg("Poll started")

	if err := c.tokens.EnsureValid(ctx); err != nil {
		return c.fail(pollID, "ensure_token", err, log)
	}

	balance, err := c.fetchBalance(ctx, log)
	if err != nil {
		return c.fail(pollID, "balance", err, log)
	}

	c.mu.RLock()
	cache := c.cache
	c.mu.RUnlock()

	now := c.now()
	cacheHit := !cache.NeedsRefresh(now, c.cfg.PerformanceTTL)
	if !cacheHit {
		refreshed, err := c.refreshPerformance(ctx, cache, now, log)
		if err != nil {
			log.Warn().
				Err(err).
				Str("kind", string(domain.KindOf(err))).
				Msg("Performance refresh failed, keeping cached values")
		} else {
			cache = refreshed
		}
	}

	snapshot := domain.NewSnapshot(*balance, cache, now)

	c.mu.Lock()
	previousName := c.knownClientName
	c.snapshot = snapshot
	c.cache = cache
	c.lastUpdateSuccess = true
	c.lastSuccessAt = now
	c.lastErr = nil
	c.knownClientName = snapshot.ClientName
	reload := c.lifecycle.shouldReload(previousName, snapshot.ClientName)
	if reload {
		c.lifecycle.ReloadScheduled = true
	}
	c.mu.Unlock()

	log.Info().
		Float64("total_value", snapshot.TotalValue).
		Str("currency", snapshot.Currency).
		Bool("performance_cache_hit", cacheHit).
		Dur("duration", c.now().Sub(start)).
		Msg("Snapshot published")

	c.emit(&events.SnapshotUpdatedData{
		PollID:      pollID,
		TotalValue:  snapshot.TotalValue,
		CashBalance: snapshot.CashBalance,
		Currency:    snapshot.Currency,
		ClientName:  snapshot.ClientName,
		LastUpdated: snapshot.LastUpdated,
		CacheHit:    cacheHit,
	})

	c.applyInterval(now, log)

	if reload {
		log.Info().Str("client_name", snapshot.ClientName).Msg("Client identity resolved after setup, requesting reload")
		c.emit(&events.ReloadRequestedData{ClientName: snapshot.ClientName})
		if c.reload != nil {
			go c.reload()
		}
	}

	return nil
}

func (c *Coordinator) startupJitter(scheduled bool, log zerolog.Logger) error {
	c.mu.Lock()
	first := !c.jitterDone
	c.jitterDone = true
	c.mu.Unlock()

	if !first || !scheduled {
		return nil
	}

	delay := c.jitter(c.cfg.MaxStartupJitter)
	if delay <= 0 {
		return nil
	}
	log.Info().Dur("delay", delay).Msg("Delaying first poll")
	if err := c.sleep(c.ctx, delay); err != nil {
		return domain.Wrap(domain.KindTransient, "startup_jitter", err)
	}
	return nil
}

// fetchBalance gets the mandatory balance. A 401 forces one token refresh
// and one retry; a second 401 is fatal.
func (c *Coordinator) fetchBalance(ctx context.Context, log zerolog.Logger) (*domain.AccountBalance, error) {
	client, err := c.clientFor(log)
	if err != nil {
		return nil, err
	}
	balance, err := client.Balance(ctx)
	if !domain.IsUnauthorized(err) {
		return balance, err
	}

	log.Warn().Msg("Balance request unauthorized, forcing token refresh")
	if err := c.tokens.Refresh(ctx); err != nil {
		return nil, err
	}
	if client, err = c.clientFor(log); err != nil {
		return nil, err
	}
	return client.Balance(ctx)
}

// refreshPerformance fetches identity and performance figures on their own
// deadline. The returned cache is committed only if every call succeeded.
func (c *Coordinator) refreshPerformance(ctx context.Context, cache domain.PerformanceCache, now time.Time, log zerolog.Logger) (domain.PerformanceCache, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.PerformanceTimeout)
	defer cancel()

	client, err := c.clientFor(log)
	if err != nil {
		return cache, err
	}

	details, err := client.ClientDetails(ctx)
	if err != nil {
		return cache, fmt.Errorf("failed to fetch client details: %w", err)
	}
	next := cache.WithIdentity(*details)

	if next.ClientKey != "" {
		accumulated, err := client.PerformanceV3(ctx, next.ClientKey)
		if err != nil {
			return cache, fmt.Errorf("failed to fetch accumulated profit/loss: %w", err)
		}
		periods, err := client.PerformanceV4Batch(ctx, next.ClientKey)
		if err != nil {
			return cache, err
		}
		next = next.WithPerformance(domain.PerformanceSummary{
			AccumulatedProfitLoss: accumulated,
			Periods:               periods,
		})
	} else {
		log.Warn().Msg("Client details carried no ClientKey, skipping performance")
	}

	next.LastRefreshed = now
	log.Info().
		Str("client_name", next.ClientName).
		Float64("ytd_performance", next.YTDPerformance).
		Msg("Performance cache refreshed")
	return next, nil
}

// clientFor returns the client for the current token generation, replacing
// the pooled client when the token changed. No client is built once the
// engine is closed.
func (c *Coordinator) clientFor(log zerolog.Logger) (domain.BrokerClient, error) {
	token, generation := c.tokens.AccessToken()

	c.clientMu.Lock()
	defer c.clientMu.Unlock()

	if c.clientClosed {
		return nil, ErrClosed
	}
	if c.client != nil && c.clientGen == generation {
		return c.client, nil
	}
	if c.client != nil {
		log.Info().
			Uint64("previous_generation", c.clientGen).
			Uint64("generation", generation).
			Msg("Token changed, rebuilding API client")
		c.client.Close()
		c.emit(&events.TokenRefreshedData{Generation: generation})
	}
	c.client = c.newClient(token, generation)
	c.clientGen = generation
	return c.client, nil
}

// fail records a failed poll. The previous snapshot stays published.
func (c *Coordinator) fail(pollID, op string, err error, log zerolog.Logger) error {
	if ctxErr := c.ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		err = ErrClosed
	}
	kind := domain.KindOf(err)

	c.mu.Lock()
	c.lastUpdateSuccess = false
	c.lastErr = err
	c.mu.Unlock()

	// Failures that need the user (re-authorization, broken payloads) log as errors
	retryable := domain.IsRetryable(err)
	event := log.Warn()
	if !retryable || kind == domain.KindUnexpected {
		event = log.Error()
	}
	event.Err(err).
		Str("op", op).
		Str("kind", string(kind)).
		Bool("retryable", retryable).
		Msg("Poll failed, keeping previous snapshot")

	c.emit(&events.PollFailedData{
		PollID:    pollID,
		Kind:      string(kind),
		Error:     err.Error(),
		Retryable: retryable,
	})
	if kind == domain.KindAuthFatal {
		c.emit(&events.ReauthRequiredData{Reason: err.Error()})
	}
	return err
}

func (c *Coordinator) emit(data events.EventData) {
	if c.events != nil {
		c.events.EmitTyped(moduleName, data)
	}
}

// NetPositions fetches the open positions outside the poll cycle.
func (c *Coordinator) NetPositions(ctx context.Context) ([]domain.NetPosition, error) {
	if err := c.tokens.EnsureValid(ctx); err != nil {
		return nil, err
	}
	client, err := c.clientFor(c.log)
	if err != nil {
		return nil, err
	}
	return client.NetPositions(ctx)
}

// MarkSetupComplete records that the host finished its initial setup.
func (c *Coordinator) MarkSetupComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lifecycle.Phase = PhaseRunning
}

// MarkSensorsReady records that the host created its sensors.
func (c *Coordinator) MarkSensorsReady() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lifecycle.Sensors = SensorsReady
}

// Lifecycle returns the current lifecycle state.
func (c *Coordinator) Lifecycle() Lifecycle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lifecycle
}

// Close cancels any in-flight poll and releases the HTTP connection pool.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()

	c.clientMu.Lock()
	defer c.clientMu.Unlock()
	c.clientClosed = true
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
	c.log.Info().Msg("Coordinator closed")
}
