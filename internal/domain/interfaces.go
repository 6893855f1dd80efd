package domain

import "context"

// BrokerClient defines the remote operations the coordinator needs.
// One instance is bound to exactly one access token.
type BrokerClient interface {
	Balance(ctx context.Context) (*AccountBalance, error)
	ClientDetails(ctx context.Context) (*ClientDetails, error)
	PerformanceV3(ctx context.Context, clientKey string) (float64, error)
	PerformanceV4Batch(ctx context.Context, clientKey string) (map[PerformancePeriod]PeriodPerformance, error)
	NetPositions(ctx context.Context) ([]NetPosition, error)

	// Close releases the pooled connections held by the client.
	Close()
}

// TokenStore persists the OAuth credential record between restarts.
// It is the only durable state of the service.
type TokenStore interface {
	// Load returns nil, nil when no record exists yet.
	Load(ctx context.Context) (*TokenRecord, error)
	Save(ctx context.Context, record TokenRecord) error
}

// TokenRecord is the persisted shape of the OAuth credentials.
// Times are Unix seconds so every backend stores the same payload.
type TokenRecord struct {
	AccessToken           string `json:"access_token" msgpack:"access_token"`
	RefreshToken          string `json:"refresh_token" msgpack:"refresh_token"`
	TokenType             string `json:"token_type,omitempty" msgpack:"token_type,omitempty"`
	ExpiresIn             int64  `json:"expires_in" msgpack:"expires_in"`
	ExpiresAt             int64  `json:"expires_at" msgpack:"expires_at"`
	IssuedAt              int64  `json:"issued_at" msgpack:"issued_at"`
	RefreshTokenExpiresIn *int64 `json:"refresh_token_expires_in,omitempty" msgpack:"refresh_token_expires_in,omitempty"`
	RedirectURI           string `json:"redirect_uri,omitempty" msgpack:"redirect_uri,omitempty"`
}
