// Package saxo provides the Saxo OpenAPI client used to poll account data.
package saxo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/aristath/saxo-portfolio/internal/domain"
	"github.com/aristath/saxo-portfolio/internal/ratelimit"
	"github.com/rs/zerolog"
)

const (
	DefaultBaseURL = "https://gateway.saxobank.com/openapi"
	userAgent      = "saxo-portfolio/1.0 (+https://github.com/aristath/saxo-portfolio)"

	connectTimeout = 10 * time.Second
	readTimeout    = 30 * time.Second
	totalTimeout   = 45 * time.Second

	maxRetries     = 3
	backoffFactor  = 2.0
	maxRateBackoff = 300 * time.Second
	maxNetBackoff  = 30 * time.Second
	dnsBackoffBase = 5 * time.Second

	defaultRetryAfter = 60 * time.Second
	batchCallSpacing  = 500 * time.Millisecond

	maxLoggedBody = 500
)

// Throttle is the part of the rate limiter the client needs.
type Throttle interface {
	AwaitTurn(ctx context.Context) error
	ReportServerCooldown(d time.Duration)
}

// Client is bound to one access token. Build a new one when the token changes.
type Client struct {
	baseURL      string
	accessToken  string
	transport    *http.Transport
	httpClient   *http.Client
	throttle     Throttle
	sleep        ratelimit.SleepFunc
	batchSpacing time.Duration
	log          zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another gateway.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithSleep overrides how retry backoff suspends.
func WithSleep(sleep ratelimit.SleepFunc) Option {
	return func(c *Client) { c.sleep = sleep }
}

// WithBatchSpacing overrides the pause between batched performance calls.
// Zero disables it.
func WithBatchSpacing(d time.Duration) Option {
	return func(c *Client) { c.batchSpacing = d }
}

// NewClient creates a client for accessToken.
// generation identifies the token revision the client was built for.
func NewClient(accessToken string, generation uint64, throttle Throttle, log zerolog.Logger, opts ...Option) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: readTimeout,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   5,
		IdleConnTimeout:       90 * time.Second,
	}

	c := &Client{
		baseURL:     DefaultBaseURL,
		accessToken: accessToken,
		transport:   transport,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   totalTimeout,
		},
		throttle:     throttle,
		sleep:        ratelimit.Sleep,
		batchSpacing: batchCallSpacing,
		log:          log.With().Str("component", "saxo_client").Uint64("token_generation", generation).Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close releases pooled connections.
func (c *Client) Close() {
	c.transport.CloseIdleConnections()
}

// get issues an authenticated GET and decodes a 200 body into out.
// 429 and transport failures are retried up to maxRetries times. Once a 429
// was seen, running out of time while waiting is still a rate-limit error.
func (c *Client) get(ctx context.Context, op, path string, query url.Values, out interface{}) error {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var lastErr error
	var retryAfter time.Duration
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := c.throttle.AwaitTurn(ctx); err != nil {
			if retryAfter > 0 {
				return rateLimitError(op, retryAfter, err)
			}
			return domain.Wrap(domain.KindTransient, op, err)
		}

		status, header, body, err := c.do(ctx, requestURL)
		if err != nil {
			if ctx.Err() != nil {
				return domain.NewNetworkError(op, err)
			}
			lastErr = err
			if attempt == maxRetries-1 {
				break
			}
			delay := networkBackoff(attempt, isDNSError(err))
			c.log.Warn().
				Err(err).
				Str("op", op).
				Int("attempt", attempt+1).
				Dur("backoff", delay).
				Msg("Request failed, retrying")
			if err := c.sleep(ctx, delay); err != nil {
				return domain.NewNetworkError(op, err)
			}
			continue
		}

		switch status {
		case http.StatusOK:
			if err := json.Unmarshal(body, out); err != nil {
				return domain.NewValidationError(op, "failed to parse response: %v (body: %s)", err, truncate(body))
			}
			return nil

		case http.StatusUnauthorized:
			c.log.Warn().Str("op", op).Msg("Access token rejected")
			return domain.NewAuthenticationError(op, truncate(body))

		case http.StatusTooManyRequests:
			retryAfter = parseRetryAfter(header.Get("Retry-After"))
			c.throttle.ReportServerCooldown(retryAfter)
			if attempt == maxRetries-1 {
				c.log.Error().Str("op", op).Dur("retry_after", retryAfter).Msg("Rate limit retries exhausted")
				return domain.NewRateLimitError(op, retryAfter)
			}
			delay := rateLimitBackoff(retryAfter, attempt)
			if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < delay {
				c.log.Warn().
					Str("op", op).
					Dur("backoff", delay).
					Msg("Rate limit backoff exceeds the deadline, giving up")
				return domain.NewRateLimitError(op, retryAfter)
			}
			c.log.Warn().
				Str("op", op).
				Int("attempt", attempt+1).
				Dur("retry_after", retryAfter).
				Dur("backoff", delay).
				Msg("Rate limited, backing off")
			if err := c.sleep(ctx, delay); err != nil {
				return rateLimitError(op, retryAfter, err)
			}

		default:
			c.log.Error().
				Int("status_code", status).
				Str("response_body", truncate(body)).
				Str("url", requestURL).
				Msg("API returned non-200 status")
			return domain.NewAPIError(op, status, truncate(body))
		}
	}

	return domain.NewNetworkError(op, lastErr)
}

func rateLimitError(op string, retryAfter time.Duration, cause error) error {
	err := domain.NewRateLimitError(op, retryAfter)
	err.Cause = cause
	return err
}

func (c *Client) do(ctx context.Context, requestURL string) (int, http.Header, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, resp.Header, body, nil
}

// rateLimitBackoff is min(retryAfter * factor^attempt, 300s).
func rateLimitBackoff(retryAfter time.Duration, attempt int) time.Duration {
	d := time.Duration(float64(retryAfter) * math.Pow(backoffFactor, float64(attempt)))
	if d > maxRateBackoff {
		return maxRateBackoff
	}
	return d
}

// networkBackoff is min(base * factor^attempt, 30s); DNS failures use a 5s base.
func networkBackoff(attempt int, dns bool) time.Duration {
	base := time.Second
	if dns {
		base = dnsBackoffBase
	}
	d := time.Duration(float64(base) * math.Pow(backoffFactor, float64(attempt)))
	if d > maxNetBackoff {
		return maxNetBackoff
	}
	return d
}

// parseRetryAfter accepts delay-seconds or an HTTP date, defaulting to 60s.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
		return 0
	}
	return defaultRetryAfter
}

func isDNSError(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func truncate(body []byte) string {
	s := string(body)
	if len(s) > maxLoggedBody {
		return s[:maxLoggedBody] + "..."
	}
	return s
}
