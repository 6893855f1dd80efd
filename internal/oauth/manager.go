// Package oauth manages the OAuth access/refresh token pair for one account.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aristath/saxo-portfolio/internal/domain"
	"github.com/rs/zerolog"
)

const (
	DefaultTokenURL     = "https://live.logonvalidation.net/token"
	DefaultAuthorizeURL = "https://live.logonvalidation.net/authorize"

	// Refresh this long before either token expires
	RefreshBuffer = 5 * time.Minute

	maxLoggedBody = 500
)

// State is the token lifecycle state.
type State string

const (
	StateValid        State = "VALID"
	StateNeedsRefresh State = "NEEDS_REFRESH"
	StateRefreshing   State = "REFRESHING"
	StateExpired      State = "EXPIRED" // Terminal until new credentials are stored
)

// Credentials are the registered application credentials.
type Credentials struct {
	AppKey      string
	AppSecret   string
	RedirectURI string
}

// Manager owns the token state of one account.
// mu is the refresh mutex and serializes every transition; dataMu only
// guards reads of the current token so readers never wait on a refresh.
type Manager struct {
	mu sync.Mutex

	dataMu     sync.RWMutex
	token      TokenState
	state      State
	generation uint64

	store      domain.TokenStore
	creds      Credentials
	tokenURL   string
	httpClient *http.Client
	now        func() time.Time
	log        zerolog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithTokenURL overrides the token endpoint.
func WithTokenURL(tokenURL string) Option {
	return func(m *Manager) { m.tokenURL = tokenURL }
}

// WithHTTPClient overrides the HTTP client used for token requests.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) { m.httpClient = client }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager with no token loaded.
func NewManager(store domain.TokenStore, creds Credentials, log zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		state:      StateNeedsRefresh,
		store:      store,
		creds:      creds,
		tokenURL:   DefaultTokenURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
		log:        log.With().Str("component", "token_manager").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load reads the persisted record. A missing record is not an error;
// EnsureValid will report the account as not configured.
func (m *Manager) Load(ctx context.Context) error {
	record, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load token record: %w", err)
	}
	if record == nil {
		m.log.Warn().Msg("No stored token, authorization required")
		return nil
	}

	token := FromRecord(*record)
	if token.RedirectURI == "" {
		token.RedirectURI = m.creds.RedirectURI
	}

	m.dataMu.Lock()
	m.token = token
	m.state = StateValid
	m.generation++
	m.dataMu.Unlock()

	m.log.Info().
		Time("expires_at", token.ExpiresAt).
		Bool("has_refresh_expiry", token.RefreshTokenExpiresIn != nil).
		Msg("Loaded stored token")
	return nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.dataMu.RLock()
	defer m.dataMu.RUnlock()
	return m.state
}

// Generation increments on every token change; clients built for an older
// generation must be rebuilt.
func (m *Manager) Generation() uint64 {
	m.dataMu.RLock()
	defer m.dataMu.RUnlock()
	return m.generation
}

// AccessToken returns the current access token and its generation.
func (m *Manager) AccessToken() (string, uint64) {
	m.dataMu.RLock()
	defer m.dataMu.RUnlock()
	return m.token.AccessToken, m.generation
}

// Token returns a copy of the current token state.
func (m *Manager) Token() TokenState {
	m.dataMu.RLock()
	defer m.dataMu.RUnlock()
	return m.token
}

// EnsureValid applies the transition rule:
//  1. refresh token expired: EXPIRED, auth-fatal, no HTTP call
//  2. refresh token expires within RefreshBuffer: refresh
//  3. access token expires within RefreshBuffer: refresh
//  4. otherwise VALID
//
// Two immediate calls cause at most one refresh.
func (m *Manager) EnsureValid(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	token := m.Token()
	if token.IsZero() {
		return domain.NewNotConfiguredError("no OAuth token stored, authorization required")
	}
	if m.State() == StateExpired {
		return domain.NewTokenExpiredError("token expired, re-authorization required")
	}

	now := m.now()
	if refreshExpiry, ok := token.RefreshTokenExpiresAt(); ok {
		if !now.Before(refreshExpiry) {
			m.setState(StateExpired)
			m.log.Error().Time("refresh_expired_at", refreshExpiry).Msg("Refresh token expired, re-authorization required")
			return domain.NewTokenExpiredError(fmt.Sprintf("refresh token expired at %s", refreshExpiry.Format(time.RFC3339)))
		}
		if refreshExpiry.Sub(now) <= RefreshBuffer {
			m.log.Info().Time("refresh_expires_at", refreshExpiry).Msg("Refresh token expiring soon, refreshing proactively")
			return m.refreshLocked(ctx)
		}
	}

	if token.ExpiresAt.Sub(now) <= RefreshBuffer {
		m.log.Debug().Time("expires_at", token.ExpiresAt).Msg("Access token expiring, refreshing")
		return m.refreshLocked(ctx)
	}

	m.setState(StateValid)
	return nil
}

// SetCredentials replaces the application credentials used for refresh grants.
func (m *Manager) SetCredentials(creds Credentials) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = creds
	m.log.Info().Msg("Application credentials updated")
}

// Refresh forces a refresh regardless of expiry, e.g. after a 401.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() == StateExpired {
		return domain.NewTokenExpiredError("token expired, re-authorization required")
	}
	return m.refreshLocked(ctx)
}

// SetToken installs freshly exchanged credentials and leaves EXPIRED.
func (m *Manager) SetToken(ctx context.Context, token TokenState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if token.RedirectURI == "" {
		token.RedirectURI = m.creds.RedirectURI
	}
	if err := m.store.Save(ctx, token.Record()); err != nil {
		return fmt.Errorf("failed to persist token: %w", err)
	}
	m.install(token)
	m.log.Info().Time("expires_at", token.ExpiresAt).Msg("Stored new token")
	return nil
}

// refreshLocked runs the refresh-token grant. Caller holds mu.
func (m *Manager) refreshLocked(ctx context.Context) error {
	current := m.Token()
	if current.RefreshToken == "" {
		m.setState(StateExpired)
		return domain.NewTokenExpiredError("no refresh token available, re-authorization required")
	}

	m.setState(StateRefreshing)

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", current.RefreshToken)
	redirectURI := current.RedirectURI
	if redirectURI == "" {
		redirectURI = m.creds.RedirectURI
	}
	if redirectURI != "" {
		form.Set("redirect_uri", redirectURI)
	}

	resp, err := m.requestToken(ctx, form)
	if err != nil {
		var tagged *domain.Error
		if errors.As(err, &tagged) && tagged.Kind == domain.KindAuthFatal {
			m.setState(StateExpired)
		} else {
			m.setState(StateNeedsRefresh)
		}
		return err
	}

	now := m.now()
	next, err := newTokenState(*resp, now, redirectURI)
	if err != nil {
		m.setState(StateExpired)
		return domain.NewTokenRefreshError(http.StatusOK, err.Error())
	}
	if next.RefreshToken == "" {
		// Not rotated: keep the old refresh token and its remaining lifetime
		next.RefreshToken = current.RefreshToken
		if expiry, ok := current.RefreshTokenExpiresAt(); ok {
			remaining := expiry.Sub(now)
			next.RefreshTokenExpiresIn = &remaining
		}
	}

	if err := m.store.Save(ctx, next.Record()); err != nil {
		m.log.Error().Err(err).Msg("Failed to persist refreshed token, keeping it in memory")
	}
	m.install(next)

	m.log.Info().
		Time("expires_at", next.ExpiresAt).
		Uint64("generation", m.Generation()).
		Msg("Token refreshed")
	return nil
}

// requestToken posts a grant to the token endpoint with basic auth.
// Non-2xx responses are auth-fatal; transport failures are transient.
func (m *Manager) requestToken(ctx context.Context, form url.Values) (*tokenResponse, error) {
	return postTokenRequest(ctx, m.httpClient, m.tokenURL, m.creds, form, m.log)
}

func postTokenRequest(ctx context.Context, client *http.Client, tokenURL string, creds Credentials, form url.Values, log zerolog.Logger) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(creds.AppKey, creds.AppSecret)

	resp, err := client.Do(req)
	if err != nil {
		return nil, domain.NewNetworkError("token_refresh", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewNetworkError("token_refresh", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		bodyStr := string(body)
		if len(bodyStr) > maxLoggedBody {
			bodyStr = bodyStr[:maxLoggedBody] + "..."
		}
		log.Error().
			Int("status_code", resp.StatusCode).
			Str("response_body", bodyStr).
			Str("grant_type", form.Get("grant_type")).
			Msg("Token endpoint rejected request")
		return nil, domain.NewTokenRefreshError(resp.StatusCode, bodyStr)
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, domain.NewTokenRefreshError(resp.StatusCode, fmt.Sprintf("invalid token response: %v", err))
	}
	return &parsed, nil
}

func (m *Manager) install(token TokenState) {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	m.token = token
	m.state = StateValid
	m.generation++
}

func (m *Manager) setState(state State) {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	m.state = state
}
