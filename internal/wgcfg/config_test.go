package wgcfg

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(b byte) string {
	raw := bytes.Repeat([]byte{b}, 32)
	return base64.StdEncoding.EncodeToString(raw)
}

func testConfig() Config {
	return Config{
		Interface: InterfaceConfig{
			PrivateKey: testKey(0x00),
			Address:    "10.0.0.2/24",
			DNS:        []string{"1.1.1.1", "8.8.8.8"},
		},
		Peer: PeerConfig{
			PublicKey:           testKey(0x01),
			Endpoint:            "203.0.113.5:51820",
			AllowedIPs:          []string{"0.0.0.0/0"},
			PersistentKeepalive: 25,
		},
	}
}

func TestValidate(t *testing.T) {
	cfg := testConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"short private key", func(c *Config) { c.Interface.PrivateKey = base64.StdEncoding.EncodeToString([]byte("short")) }, "interface.private_key"},
		{"bad base64", func(c *Config) { c.Interface.PrivateKey = "not-base64!!!" }, "interface.private_key"},
		{"bad address", func(c *Config) { c.Interface.Address = "10.0.0.2" }, "interface.address"},
		{"bad dns", func(c *Config) { c.Interface.DNS = []string{"nope"} }, "interface.dns"},
		{"mtu too small", func(c *Config) { c.Interface.MTU = 100 }, "interface.mtu"},
		{"bad public key", func(c *Config) { c.Peer.PublicKey = testKey(0x01)[:10] }, "peer.public_key"},
		{"bad endpoint", func(c *Config) { c.Peer.Endpoint = "203.0.113.5" }, "peer.endpoint"},
		{"no allowed ips", func(c *Config) { c.Peer.AllowedIPs = nil }, "peer.allowed_ips"},
		{"bad allowed ip", func(c *Config) { c.Peer.AllowedIPs = []string{"10.0.0.0"} }, "peer.allowed_ips"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestRender_CanonicalForm(t *testing.T) {
	cfg := testConfig()
	out := cfg.Render()

	assert.Contains(t, out, "[Interface]\n")
	assert.Contains(t, out, "[Peer]\n")
	assert.Contains(t, out, "PrivateKey = "+testKey(0x00)+"\n")
	assert.Contains(t, out, "Address = 10.0.0.2/24\n")
	assert.Contains(t, out, "DNS = 1.1.1.1, 8.8.8.8\n")
	assert.Contains(t, out, "PublicKey = "+testKey(0x01)+"\n")
	assert.Contains(t, out, "Endpoint = 203.0.113.5:51820\n")
	assert.Contains(t, out, "AllowedIPs = 0.0.0.0/0\n")
	assert.Contains(t, out, "PersistentKeepalive = 25\n")

	// MTU is unset and must not appear.
	assert.NotContains(t, out, "MTU")

	// Interface block must precede the Peer block.
	assert.Less(t, strings.Index(out, "[Interface]"), strings.Index(out, "[Peer]"))
}

func TestRender_OptionalFields(t *testing.T) {
	cfg := testConfig()
	cfg.Interface.MTU = 1380
	cfg.Peer.PersistentKeepalive = 0

	out := cfg.Render()
	assert.Contains(t, out, "MTU = 1380\n")
	assert.NotContains(t, out, "PersistentKeepalive")
}

func TestParse_RoundTrip(t *testing.T) {
	cfg := testConfig()
	cfg.Interface.MTU = 1400

	parsed, err := ParseString(cfg.Render())
	require.NoError(t, err)
	require.NoError(t, parsed.Validate())

	// render(parse(render(c))) == render(c)
	assert.Equal(t, cfg.Render(), parsed.Render())
}

func TestParse_CommentsAndBlankLines(t *testing.T) {
	cfg := testConfig()
	text := "# managed by veil\n\n" + cfg.Render()
	parsed, err := ParseString(text)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2/24", parsed.Interface.Address)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"garbage line", "[Interface]\nPrivateKey\n"},
		{"unknown section", "[Route]\n"},
		{"entry outside section", "PrivateKey = " + testKey(0) + "\n"},
		{"bad key", "[Interface]\nPrivateKey = tooshort\n"},
		{"bad keepalive", "[Peer]\nPersistentKeepalive = never\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseString(tt.text)
			assert.Error(t, err)
		})
	}
}

func TestToIPC(t *testing.T) {
	cfg := testConfig()
	ipc := cfg.ToIPC()

	assert.Contains(t, ipc, "private_key="+strings.Repeat("00", 32)+"\n")
	assert.Contains(t, ipc, "public_key="+strings.Repeat("01", 32)+"\n")
	assert.Contains(t, ipc, "endpoint=203.0.113.5:51820\n")
	assert.Contains(t, ipc, "allowed_ip=0.0.0.0/0\n")
	assert.Contains(t, ipc, "persistent_keepalive_interval=25\n")
}

func TestDecodeKey(t *testing.T) {
	key, err := DecodeKey(testKey(0xAB))
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), key[0])
	assert.Equal(t, testKey(0xAB), EncodeKey(key))

	_, err = DecodeKey("%%%")
	assert.Error(t, err)
	_, err = DecodeKey(base64.StdEncoding.EncodeToString([]byte("33-bytes-is-one-byte-too-long....")))
	assert.Error(t, err)
}

func TestPublicKey_Derivation(t *testing.T) {
	priv, err := GeneratePrivateKey()
	require.NoError(t, err)

	pub, err := PublicKey(priv)
	require.NoError(t, err)
	require.NoError(t, validateKey(pub))
	assert.NotEqual(t, priv, pub)

	// Derivation is deterministic.
	again, err := PublicKey(priv)
	require.NoError(t, err)
	assert.Equal(t, pub, again)
}

func TestRoutesAll(t *testing.T) {
	cfg := testConfig()
	assert.True(t, cfg.RoutesAll())

	cfg.Peer.AllowedIPs = []string{"10.8.0.0/16"}
	assert.False(t, cfg.RoutesAll())
}

func TestMTU_Default(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, DefaultMTU, cfg.MTU())
	cfg.Interface.MTU = 1280
	assert.Equal(t, 1280, cfg.MTU())
}
