package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/veilnet/veil/internal/driver"
	"github.com/veilnet/veil/internal/health"
	"github.com/veilnet/veil/internal/logging"
	"github.com/veilnet/veil/internal/wgcfg"
)

// AppConfig is the daemon's top-level configuration.
type AppConfig struct {
	// Backend selects the tunnel backend: auto, embedded, wg-quick.
	Backend string `yaml:"backend" json:"backend"`

	// StateDir holds rendered tool configs and other runtime files.
	StateDir string `yaml:"state_dir" json:"state_dir"`

	API     APIConfig      `yaml:"api" json:"api"`
	Remote  RemoteConfig   `yaml:"remote" json:"remote"`
	Logging logging.Config `yaml:"logging" json:"logging"`
	Health  health.Config  `yaml:"health" json:"health"`

	// Tunnel is an optional static profile used when no control plane is
	// configured.
	Tunnel *wgcfg.Config `yaml:"tunnel,omitempty" json:"tunnel,omitempty"`
}

// APIConfig configures the local control socket.
type APIConfig struct {
	Listen string `yaml:"listen" json:"listen"`
	// Token, when set, is required as a bearer token on every request.
	Token   string `yaml:"token,omitempty" json:"token,omitempty"`
	Metrics bool   `yaml:"metrics" json:"metrics"`
}

// RemoteConfig points at the control-plane API.
type RemoteConfig struct {
	URL string `yaml:"url,omitempty" json:"url,omitempty"`
	// Account keys the bearer token in the OS credential store.
	Account string `yaml:"account,omitempty" json:"account,omitempty"`
}

// DefaultAppConfig returns the daemon defaults.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Backend:  string(driver.BackendAuto),
		StateDir: defaultStateDir(),
		API: APIConfig{
			Listen:  "127.0.0.1:7357",
			Metrics: true,
		},
		Logging: logging.DefaultConfig(),
		Health:  health.DefaultConfig(),
	}
}

// Validate checks the fields a misconfigured daemon would trip over late.
func (c *AppConfig) Validate() error {
	switch driver.Backend(c.Backend) {
	case driver.BackendAuto, driver.BackendEmbedded, driver.BackendWGQuick, "":
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.API.Listen == "" {
		return fmt.Errorf("config: api.listen must not be empty")
	}
	if c.Tunnel != nil {
		if err := c.Tunnel.Validate(); err != nil {
			return fmt.Errorf("config: tunnel profile: %w", err)
		}
	}
	return nil
}

// DefaultPath returns the per-user config file location.
func DefaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "veil", "config.yaml")
	}
	return filepath.Join(".", "veil.yaml")
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "veil")
	}
	return "."
}
