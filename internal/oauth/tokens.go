package oauth

import (
	"fmt"
	"time"

	"github.com/aristath/saxo-portfolio/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// TokenState is the in-memory mirror of the persisted credential record.
type TokenState struct {
	AccessToken           string
	RefreshToken          string
	TokenType             string
	ExpiresAt             time.Time
	IssuedAt              time.Time
	RefreshTokenExpiresIn *time.Duration // nil when the server gave no hint
	RedirectURI           string
}

// RefreshTokenExpiresAt returns issued_at + refresh_token_expires_in when known.
func (t TokenState) RefreshTokenExpiresAt() (time.Time, bool) {
	if t.RefreshTokenExpiresIn == nil || t.IssuedAt.IsZero() {
		return time.Time{}, false
	}
	return t.IssuedAt.Add(*t.RefreshTokenExpiresIn), true
}

// IsZero reports whether no credentials are loaded.
func (t TokenState) IsZero() bool {
	return t.AccessToken == "" && t.RefreshToken == ""
}

// tokenResponse is the body returned by the token endpoint.
type tokenResponse struct {
	AccessToken           string `json:"access_token"`
	RefreshToken          string `json:"refresh_token"`
	TokenType             string `json:"token_type"`
	ExpiresIn             int64  `json:"expires_in"`
	RefreshTokenExpiresIn *int64 `json:"refresh_token_expires_in"`
}

// newTokenState normalizes a token response received at now.
func newTokenState(resp tokenResponse, now time.Time, redirectURI string) (TokenState, error) {
	if resp.AccessToken == "" {
		return TokenState{}, fmt.Errorf("token response has no access_token")
	}

	expiresAt := now.Add(time.Duration(resp.ExpiresIn) * time.Second)
	if resp.ExpiresIn <= 0 {
		exp, ok := jwtExpiry(resp.AccessToken)
		if !ok {
			return TokenState{}, fmt.Errorf("token response has no expires_in")
		}
		expiresAt = exp
	}

	state := TokenState{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		ExpiresAt:    expiresAt,
		IssuedAt:     now,
		RedirectURI:  redirectURI,
	}
	if resp.RefreshTokenExpiresIn != nil {
		d := time.Duration(*resp.RefreshTokenExpiresIn) * time.Second
		state.RefreshTokenExpiresIn = &d
	}
	return state, nil
}

// FromRecord restores a TokenState from its persisted form.
// Records without expires_at derive it from issued_at + expires_in,
// then from the access token's JWT exp claim.
func FromRecord(record domain.TokenRecord) TokenState {
	state := TokenState{
		AccessToken:  record.AccessToken,
		RefreshToken: record.RefreshToken,
		TokenType:    record.TokenType,
		RedirectURI:  record.RedirectURI,
	}
	if record.IssuedAt > 0 {
		state.IssuedAt = time.Unix(record.IssuedAt, 0)
	}

	switch {
	case record.ExpiresAt > 0:
		state.ExpiresAt = time.Unix(record.ExpiresAt, 0)
	case record.IssuedAt > 0 && record.ExpiresIn > 0:
		state.ExpiresAt = time.Unix(record.IssuedAt+record.ExpiresIn, 0)
	default:
		if exp, ok := jwtExpiry(record.AccessToken); ok {
			state.ExpiresAt = exp
		}
	}

	if record.RefreshTokenExpiresIn != nil {
		d := time.Duration(*record.RefreshTokenExpiresIn) * time.Second
		state.RefreshTokenExpiresIn = &d
	}
	return state
}

// Record converts the state into its persisted form.
func (t TokenState) Record() domain.TokenRecord {
	record := domain.TokenRecord{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		RedirectURI:  t.RedirectURI,
	}
	if !t.ExpiresAt.IsZero() {
		record.ExpiresAt = t.ExpiresAt.Unix()
	}
	if !t.IssuedAt.IsZero() {
		record.IssuedAt = t.IssuedAt.Unix()
		if !t.ExpiresAt.IsZero() {
			record.ExpiresIn = record.ExpiresAt - record.IssuedAt
		}
	}
	if t.RefreshTokenExpiresIn != nil {
		secs := int64(t.RefreshTokenExpiresIn.Seconds())
		record.RefreshTokenExpiresIn = &secs
	}
	return record
}

// jwtExpiry reads the exp claim without verifying the signature.
func jwtExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
