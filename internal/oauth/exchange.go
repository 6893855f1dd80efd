package oauth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/aristath/saxo-portfolio/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const stateTTL = 10 * time.Minute

// Exchanger performs the authorization-code grant.
type Exchanger struct {
	creds        Credentials
	authorizeURL string
	tokenURL     string
	httpClient   *http.Client
	now          func() time.Time
	log          zerolog.Logger

	mu     sync.Mutex
	states map[string]time.Time
}

// NewExchanger creates an exchanger against the default endpoints.
func NewExchanger(creds Credentials, log zerolog.Logger) *Exchanger {
	return &Exchanger{
		creds:        creds,
		authorizeURL: DefaultAuthorizeURL,
		tokenURL:     DefaultTokenURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		now:          time.Now,
		log:          log.With().Str("component", "oauth_exchange").Logger(),
		states:       make(map[string]time.Time),
	}
}

// SetEndpoints overrides the authorization and token endpoints.
func (e *Exchanger) SetEndpoints(authorizeURL, tokenURL string) {
	e.authorizeURL = authorizeURL
	e.tokenURL = tokenURL
}

// SetCredentials replaces the application credentials.
func (e *Exchanger) SetCredentials(creds Credentials) {
	e.mu.Lock()
	e.creds = creds
	e.mu.Unlock()
}

// Configured reports whether an app key and secret are present.
func (e *Exchanger) Configured() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.creds.AppKey != "" && e.creds.AppSecret != ""
}

// AuthorizeURL returns the URL the user must visit, with a fresh state value.
func (e *Exchanger) AuthorizeURL() (string, string) {
	state := uuid.NewString()

	e.mu.Lock()
	now := e.now()
	for s, issued := range e.states {
		if now.Sub(issued) > stateTTL {
			delete(e.states, s)
		}
	}
	e.states[state] = now
	creds := e.creds
	e.mu.Unlock()

	query := url.Values{}
	query.Set("response_type", "code")
	query.Set("client_id", creds.AppKey)
	query.Set("redirect_uri", creds.RedirectURI)
	query.Set("state", state)
	return e.authorizeURL + "?" + query.Encode(), state
}

// ConsumeState reports whether state was issued by AuthorizeURL and is still fresh.
// Each state is accepted once.
func (e *Exchanger) ConsumeState(state string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	issued, ok := e.states[state]
	if !ok {
		return false
	}
	delete(e.states, state)
	return e.now().Sub(issued) <= stateTTL
}

// ExchangeCode trades an authorization code for a token.
func (e *Exchanger) ExchangeCode(ctx context.Context, code string) (TokenState, error) {
	if code == "" {
		return TokenState{}, domain.NewValidationError("authorization_code", "code is required")
	}

	e.mu.Lock()
	creds := e.creds
	e.mu.Unlock()

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	if creds.RedirectURI != "" {
		form.Set("redirect_uri", creds.RedirectURI)
	}

	resp, err := postTokenRequest(ctx, e.httpClient, e.tokenURL, creds, form, e.log)
	if err != nil {
		return TokenState{}, err
	}

	token, err := newTokenState(*resp, e.now(), creds.RedirectURI)
	if err != nil {
		return TokenState{}, fmt.Errorf("failed to normalize token response: %w", err)
	}
	e.log.Info().Time("expires_at", token.ExpiresAt).Msg("Authorization code exchanged")
	return token, nil
}
