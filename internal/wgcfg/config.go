// Package wgcfg provides the tunnel configuration model and the canonical
// WireGuard text configuration codec.
package wgcfg

import (
	"encoding/base64"
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// DefaultMTU is used when the interface section does not specify one.
const DefaultMTU = 1420

// Config describes a single tunnel: the local interface and one peer.
// Remote-issued configs arrive as JSON; local profiles are stored as YAML.
type Config struct {
	Interface InterfaceConfig `json:"interface" yaml:"interface"`
	Peer      PeerConfig      `json:"peer" yaml:"peer"`
}

// InterfaceConfig represents the [Interface] section.
type InterfaceConfig struct {
	PrivateKey string   `json:"private_key" yaml:"private_key"`
	Address    string   `json:"address" yaml:"address"`
	DNS        []string `json:"dns" yaml:"dns"`
	MTU        int      `json:"mtu,omitempty" yaml:"mtu,omitempty"`
}

// PeerConfig represents the [Peer] section.
type PeerConfig struct {
	PublicKey           string   `json:"public_key" yaml:"public_key"`
	Endpoint            string   `json:"endpoint" yaml:"endpoint"`
	AllowedIPs          []string `json:"allowed_ips" yaml:"allowed_ips"`
	PersistentKeepalive int      `json:"persistent_keepalive,omitempty" yaml:"persistent_keepalive,omitempty"`
}

// ConfigError describes a rejected configuration field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Message)
}

// DecodeKey decodes a base64 WireGuard key and requires exactly 32 bytes.
func DecodeKey(key string) ([32]byte, error) {
	var out [32]byte
	decoded, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return out, fmt.Errorf("not valid base64")
	}
	if len(decoded) != 32 {
		return out, fmt.Errorf("key must be 32 bytes, got %d", len(decoded))
	}
	copy(out[:], decoded)
	return out, nil
}

// EncodeKey is the inverse of DecodeKey.
func EncodeKey(key [32]byte) string {
	return base64.StdEncoding.EncodeToString(key[:])
}

func validateKey(key string) error {
	_, err := DecodeKey(key)
	return err
}

func validateCIDR(s string) error {
	if _, err := netip.ParsePrefix(s); err != nil {
		return fmt.Errorf("invalid CIDR: %s", s)
	}
	return nil
}

// Validate checks the configuration against the invariants required before a
// connection attempt: 32-byte keys, CIDR address, resolvable endpoint.
func (c *Config) Validate() error {
	if err := validateKey(c.Interface.PrivateKey); err != nil {
		return &ConfigError{Field: "interface.private_key", Message: err.Error()}
	}
	if err := validateCIDR(c.Interface.Address); err != nil {
		return &ConfigError{Field: "interface.address", Message: err.Error()}
	}
	for _, srv := range c.Interface.DNS {
		if _, err := netip.ParseAddr(srv); err != nil {
			return &ConfigError{Field: "interface.dns", Message: fmt.Sprintf("invalid resolver address: %s", srv)}
		}
	}
	if c.Interface.MTU != 0 && (c.Interface.MTU < 576 || c.Interface.MTU > 65535) {
		return &ConfigError{Field: "interface.mtu", Message: fmt.Sprintf("out of range: %d", c.Interface.MTU)}
	}
	if err := validateKey(c.Peer.PublicKey); err != nil {
		return &ConfigError{Field: "peer.public_key", Message: err.Error()}
	}
	if _, _, err := net.SplitHostPort(c.Peer.Endpoint); err != nil {
		return &ConfigError{Field: "peer.endpoint", Message: fmt.Sprintf("not a host:port address: %s", c.Peer.Endpoint)}
	}
	if len(c.Peer.AllowedIPs) == 0 {
		return &ConfigError{Field: "peer.allowed_ips", Message: "at least one range is required"}
	}
	for _, cidr := range c.Peer.AllowedIPs {
		if err := validateCIDR(cidr); err != nil {
			return &ConfigError{Field: "peer.allowed_ips", Message: err.Error()}
		}
	}
	if c.Peer.PersistentKeepalive < 0 || c.Peer.PersistentKeepalive > 65535 {
		return &ConfigError{Field: "peer.persistent_keepalive", Message: fmt.Sprintf("out of range: %d", c.Peer.PersistentKeepalive)}
	}
	return nil
}

// MTU returns the effective MTU for the tunnel interface.
func (c *Config) MTU() int {
	if c.Interface.MTU > 0 {
		return c.Interface.MTU
	}
	return DefaultMTU
}

// LocalAddr returns the interface address without its prefix length.
func (c *Config) LocalAddr() (netip.Addr, error) {
	prefix, err := netip.ParsePrefix(c.Interface.Address)
	if err != nil {
		return netip.Addr{}, &ConfigError{Field: "interface.address", Message: err.Error()}
	}
	return prefix.Addr(), nil
}

// RoutesAll reports whether the allowed set covers all IPv4 destinations.
func (c *Config) RoutesAll() bool {
	for _, cidr := range c.Peer.AllowedIPs {
		if strings.TrimSpace(cidr) == "0.0.0.0/0" {
			return true
		}
	}
	return false
}
