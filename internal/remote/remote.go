// Package remote talks to the Veil control-plane API: the server directory
// and the config issuer. All calls are bearer-token authenticated.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/veilnet/veil/internal/wgcfg"
)

const (
	// DefaultTimeout is the default HTTP client timeout.
	DefaultTimeout = 30 * time.Second

	userAgent = "Veil/1.0"
)

// ErrUnauthorized means the bearer token was rejected.
var ErrUnauthorized = errors.New("remote: unauthorized")

// Server is one entry in the server directory.
type Server struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	City        string  `json:"city"`
	IP          string  `json:"ip"`
	PublicKey   string  `json:"publicKey"`
	Load        float64 `json:"load"`
	Latency     int     `json:"latency"`
}

// Client is the control-plane API client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	cache      *ServerCache
	logger     *slog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithCacheTTL sets the server-list cache TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = NewServerCache(ttl)
	}
}

// NewClient creates an API client for the given base URL and bearer token.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    baseURL,
		token:      token,
		cache:      NewServerCache(DefaultCacheTTL),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchServers retrieves the server directory, serving from cache when fresh.
func (c *Client) FetchServers(ctx context.Context) ([]Server, error) {
	if servers, ok := c.cache.Get(); ok {
		c.logger.Debug("returning cached servers", "count", len(servers))
		return servers, nil
	}

	var servers []Server
	if err := c.get(ctx, "/api/vpn/servers", &servers); err != nil {
		return nil, err
	}
	c.cache.Set(servers)

	c.logger.Info("fetched server list", "count", len(servers))
	return servers, nil
}

// FetchConfig asks the control plane to issue a tunnel config for the given
// server. The returned config carries a freshly generated peer assignment.
func (c *Client) FetchConfig(ctx context.Context, serverID string) (*wgcfg.Config, error) {
	payload, err := json.Marshal(map[string]string{"serverId": serverID})
	if err != nil {
		return nil, err
	}

	var cfg wgcfg.Config
	if err := c.post(ctx, "/api/vpn/config", payload, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("remote: issued config is invalid: %w", err)
	}
	return &cfg, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body []byte, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("remote: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("remote: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096)) //nolint:errcheck
		return fmt.Errorf("remote: %s %s: unexpected status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("remote: decode response: %w", err)
	}
	return nil
}
