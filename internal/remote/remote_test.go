package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchServers(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/api/vpn/servers", r.URL.Path)
		assert.Equal(t, "Bearer tok123", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode([]Server{
			{ID: "nl-1", Name: "Amsterdam 1", Country: "Netherlands", IP: "203.0.113.5", Load: 0.3},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok123")

	servers, err := c.FetchServers(context.Background())
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, "nl-1", servers[0].ID)

	// Second fetch is served from cache.
	_, err = c.FetchServers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestFetchServers_CacheExpiry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode([]Server{{ID: "a"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", WithCacheTTL(time.Nanosecond))

	_, err := c.FetchServers(context.Background())
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = c.FetchServers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestFetchConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/vpn/config", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "nl-1", body["serverId"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"interface": {
				"private_key": "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=",
				"address": "10.0.0.2/24",
				"dns": ["1.1.1.1"]
			},
			"peer": {
				"public_key": "AQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQE=",
				"endpoint": "203.0.113.5:51820",
				"allowed_ips": ["0.0.0.0/0"],
				"persistent_keepalive": 25
			}
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")

	cfg, err := c.FetchConfig(context.Background(), "nl-1")
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.5:51820", cfg.Peer.Endpoint)
	assert.Equal(t, 25, cfg.Peer.PersistentKeepalive)
}

func TestFetchConfig_RejectsInvalidIssuedConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"interface":{"private_key":"bogus"},"peer":{}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	_, err := c.FetchConfig(context.Background(), "nl-1")
	assert.Error(t, err)
}

func TestUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "expired")
	_, err := c.FetchServers(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "directory unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	_, err := c.FetchServers(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
