package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilnet/veil/internal/remote"
	"github.com/veilnet/veil/internal/vpn"
	"github.com/veilnet/veil/internal/wgcfg"
)

type nopDriver struct {
	connectErr error
}

func (d *nopDriver) Connect(ctx context.Context, cfg *wgcfg.Config) error { return d.connectErr }
func (d *nopDriver) Disconnect(ctx context.Context) error                 { return nil }
func (d *nopDriver) TransferStats() (uint64, uint64, error)               { return 0, 0, nil }

type fakeDirectory struct {
	servers []remote.Server
	config  *wgcfg.Config
	err     error
}

func (d *fakeDirectory) FetchServers(ctx context.Context) ([]remote.Server, error) {
	return d.servers, d.err
}

func (d *fakeDirectory) FetchConfig(ctx context.Context, serverID string) (*wgcfg.Config, error) {
	return d.config, d.err
}

func testTunnelConfig() *wgcfg.Config {
	return &wgcfg.Config{
		Interface: wgcfg.InterfaceConfig{
			PrivateKey: wgcfg.EncodeKey([32]byte{1}),
			Address:    "10.8.0.2/24",
			DNS:        []string{"10.8.0.1"},
		},
		Peer: wgcfg.PeerConfig{
			PublicKey:  wgcfg.EncodeKey([32]byte{2}),
			Endpoint:   "203.0.113.5:51820",
			AllowedIPs: []string{"0.0.0.0/0"},
		},
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, driver vpn.TunnelDriver, dir Directory, token string) *httptest.Server {
	t.Helper()
	srv := New(Config{
		Manager:   vpn.NewManager(driver, discard()),
		Directory: dir,
		Token:     token,
		Logger:    discard(),
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestConnectConfig_Lifecycle(t *testing.T) {
	ts := newTestServer(t, &nopDriver{}, nil, "")

	resp := postJSON(t, ts.URL+"/api/v1/connect/config", testTunnelConfig())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status struct {
		State string `json:"state"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "connected", status.State)

	// Second connect conflicts with the lifecycle guard.
	resp = postJSON(t, ts.URL+"/api/v1/connect/config", testTunnelConfig())
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/v1/disconnect", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// And disconnecting again conflicts the other way.
	resp = postJSON(t, ts.URL+"/api/v1/disconnect", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestConnectConfig_RejectsInvalidConfig(t *testing.T) {
	ts := newTestServer(t, &nopDriver{}, nil, "")

	cfg := testTunnelConfig()
	cfg.Interface.PrivateKey = "notakey"
	resp := postJSON(t, ts.URL+"/api/v1/connect/config", cfg)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body.Error, "private_key")
}

func TestConnect_ResolvesThroughDirectory(t *testing.T) {
	dir := &fakeDirectory{config: testTunnelConfig()}
	ts := newTestServer(t, &nopDriver{}, dir, "")

	resp := postJSON(t, ts.URL+"/api/v1/connect", map[string]string{"server_id": "de-1"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestConnect_RequiresServerID(t *testing.T) {
	ts := newTestServer(t, &nopDriver{}, &fakeDirectory{}, "")

	resp := postJSON(t, ts.URL+"/api/v1/connect", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestConnect_DirectoryFailureIsBadGateway(t *testing.T) {
	dir := &fakeDirectory{err: errors.New("control plane down")}
	ts := newTestServer(t, &nopDriver{}, dir, "")

	resp := postJSON(t, ts.URL+"/api/v1/connect", map[string]string{"server_id": "de-1"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestConnect_DriverFailureIsInternal(t *testing.T) {
	ts := newTestServer(t, &nopDriver{connectErr: errors.New("handshake timeout")}, nil, "")

	resp := postJSON(t, ts.URL+"/api/v1/connect/config", testTunnelConfig())
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestStatusAndStats(t *testing.T) {
	ts := newTestServer(t, &nopDriver{}, nil, "")

	resp, err := http.Get(ts.URL + "/api/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status struct {
		State string `json:"state"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "disconnected", status.State)

	resp, err = http.Get(ts.URL + "/api/v1/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServers(t *testing.T) {
	dir := &fakeDirectory{servers: []remote.Server{{ID: "de-1", Name: "Frankfurt"}}}
	ts := newTestServer(t, &nopDriver{}, dir, "")

	resp, err := http.Get(ts.URL + "/api/v1/servers")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var servers []remote.Server
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&servers))
	require.Len(t, servers, 1)
	assert.Equal(t, "de-1", servers[0].ID)
}

func TestAuth_RejectsMissingToken(t *testing.T) {
	ts := newTestServer(t, &nopDriver{}, nil, "secret")

	resp, err := http.Get(ts.URL + "/api/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuth_AcceptsBearerToken(t *testing.T) {
	ts := newTestServer(t, &nopDriver{}, nil, "secret")

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/status", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClient_RoundTrip(t *testing.T) {
	ts := newTestServer(t, &nopDriver{}, &fakeDirectory{config: testTunnelConfig()}, "secret")

	client := NewClient(ts.Listener.Addr().String(), "secret")
	ctx := context.Background()

	status, err := client.Connect(ctx, "de-1")
	require.NoError(t, err)
	assert.Equal(t, vpn.StateConnected.String(), status.State.String())

	_, err = client.Stats(ctx)
	require.NoError(t, err)

	status, err = client.Disconnect(ctx)
	require.NoError(t, err)
	assert.Equal(t, vpn.StateDisconnected.String(), status.State.String())

	// The guard error surfaces through the error body.
	_, err = client.Disconnect(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, &nopDriver{}, nil, "")

	resp, err := http.Get(ts.URL + "/api/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}
