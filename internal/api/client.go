package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/veilnet/veil/internal/remote"
	"github.com/veilnet/veil/internal/vpn"
	"github.com/veilnet/veil/internal/wgcfg"
)

// Client talks to a running daemon's control API. Used by the CLI.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient creates a control API client for the given listen address.
func NewClient(addr, token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    "http://" + addr,
		token:      token,
	}
}

// Connect asks the daemon to connect to the given directory server.
func (c *Client) Connect(ctx context.Context, serverID string) (vpn.Status, error) {
	var status vpn.Status
	err := c.do(ctx, http.MethodPost, "/api/v1/connect", connectRequest{ServerID: serverID}, &status)
	return status, err
}

// ConnectConfig asks the daemon to connect with an explicit tunnel config.
func (c *Client) ConnectConfig(ctx context.Context, cfg *wgcfg.Config) (vpn.Status, error) {
	var status vpn.Status
	err := c.do(ctx, http.MethodPost, "/api/v1/connect/config", cfg, &status)
	return status, err
}

// Disconnect asks the daemon to tear the tunnel down.
func (c *Client) Disconnect(ctx context.Context) (vpn.Status, error) {
	var status vpn.Status
	err := c.do(ctx, http.MethodPost, "/api/v1/disconnect", nil, &status)
	return status, err
}

// Status fetches the daemon's lifecycle state.
func (c *Client) Status(ctx context.Context) (vpn.Status, error) {
	var status vpn.Status
	err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, &status)
	return status, err
}

// Stats fetches the daemon's traffic accounting.
func (c *Client) Stats(ctx context.Context) (vpn.Stats, error) {
	var stats vpn.Stats
	err := c.do(ctx, http.MethodGet, "/api/v1/stats", nil, &stats)
	return stats, err
}

// Servers fetches the server directory through the daemon.
func (c *Client) Servers(ctx context.Context) ([]remote.Server, error) {
	var servers []remote.Server
	err := c.do(ctx, http.MethodGet, "/api/v1/servers", nil, &servers)
	return servers, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("api: %s", apiErr.Error)
		}
		return fmt.Errorf("api: unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
