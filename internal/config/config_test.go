package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := DefaultAppConfig()
	cfg.Backend = "embedded"
	cfg.API.Listen = "127.0.0.1:9000"
	require.NoError(t, Save(path, &cfg))

	// Configs may carry key material.
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	var loaded AppConfig
	require.NoError(t, LoadAndValidate(path, &loaded))
	assert.Equal(t, "embedded", loaded.Backend)
	assert.Equal(t, "127.0.0.1:9000", loaded.API.Listen)
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("VEIL_TEST_LISTEN", "127.0.0.1:7000")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  listen: ${VEIL_TEST_LISTEN}\n"), 0o600))

	var cfg AppConfig
	require.NoError(t, Load(path, &cfg))
	assert.Equal(t, "127.0.0.1:7000", cfg.API.Listen)
}

func TestLoad_MissingFile(t *testing.T) {
	var cfg AppConfig
	err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &cfg)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultAppConfig()
	require.NoError(t, cfg.Validate())

	cfg.Backend = "kernel"
	assert.Error(t, cfg.Validate())

	cfg = DefaultAppConfig()
	cfg.API.Listen = ""
	assert.Error(t, cfg.Validate())
}

func TestLoadAndValidate_RejectsBadTunnelProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
api:
  listen: 127.0.0.1:7357
tunnel:
  interface:
    private_key: notakey
  peer: {}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	var cfg AppConfig
	err := LoadAndValidate(path, &cfg)
	assert.Error(t, err)
}
