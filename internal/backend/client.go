// Package backend talks to the voting service over JSON/HTTP. It attaches the
// stored session token to every request and drops that token as soon as the
// service answers 401.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"ballotkey.org/internal/credstore"
	"ballotkey.org/internal/ids"
	"ballotkey.org/internal/obs"
)

const (
	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 1 << 20

	authHeader      = "Authorization"
	bearer          = "Bearer "
	requestIDHeader = "X-Request-ID"
)

// Endpoint paths relative to the base URL.
const (
	PathUser                 = "/user"
	PathLogin                = "/auth/login"
	PathRegister             = "/auth/register"
	PathLogout               = "/auth/logout"
	PathCandidates           = "/auth/candidates"
	PathVoterRegister        = "/auth/voter/register"
	PathVote                 = "/auth/voter/vote"
	DefaultVoterStatusPath   = "/auth/voter/status"
	AlternateVoterStatusPath = "/voter/status"
)

// Client issues requests against the voting service.
type Client struct {
	baseURL   string
	hc        *http.Client
	store     credstore.Store
	limiter   *rate.Limiter
	userAgent string
}

// Option configures Client.
type Option func(*Client) error

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc != nil {
			c.hc = hc
		}
		return nil
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return errors.New("backend: timeout must be greater than zero")
		}
		c.hc.Timeout = d
		return nil
	}
}

// WithRateLimit throttles outgoing requests with a token bucket.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) error {
		if perSecond <= 0 || burst <= 0 {
			return errors.New("backend: rate limit must be positive")
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		return nil
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) error {
		c.userAgent = strings.TrimSpace(ua)
		return nil
	}
}

// New constructs a Client for baseURL (e.g. "https://vote.example/api").
func New(baseURL string, store credstore.Store, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}
	if store == nil {
		return nil, errors.New("backend: credential store is required")
	}
	c := &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		hc:      &http.Client{Timeout: defaultTimeout},
		store:   store,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Call sends one request. body, when non-nil, is encoded as JSON. A nil error
// means a response arrived, whatever its status; transport failures come back
// as *NetworkError.
func (c *Client) Call(ctx context.Context, method, path string, body any) (*Response, error) {
	ctx, requestID := ids.EnsureRequestID(ctx)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &NetworkError{Method: method, Path: path, Err: err}
		}
	}

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("backend: encode %s body: %w", path, err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, requestID)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if token := c.sessionToken(ctx); token != "" {
		req.Header.Set(authHeader, bearer+token)
	}

	done := obs.BackendRequestStarted(method, path)
	resp, err := c.hc.Do(req)
	if err != nil {
		done(0)
		return nil, &NetworkError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		done(0)
		return nil, &NetworkError{Method: method, Path: path, Err: fmt.Errorf("read body: %w", err)}
	}
	done(resp.StatusCode)

	if resp.StatusCode == http.StatusUnauthorized {
		c.revokeSession(ctx, method, path, requestID)
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header.Clone(), Body: data}, nil
}

func (c *Client) sessionToken(ctx context.Context) string {
	token, err := c.store.Get(ctx, credstore.KeyAuthToken)
	if err != nil {
		if !errors.Is(err, credstore.ErrNotFound) {
			obs.Warn("session token unreadable, sending request without it", map[string]any{"error": err})
		}
		return ""
	}
	return strings.TrimSpace(token)
}

func (c *Client) revokeSession(ctx context.Context, method, path, requestID string) {
	fields := map[string]any{"method": method, "path": path, "request_id": requestID}
	if err := c.store.Delete(ctx, credstore.KeyAuthToken); err != nil {
		fields["error"] = err
		obs.Warn("failed to delete session token after 401", fields)
		return
	}
	obs.Info("session token deleted after 401", fields)
}
