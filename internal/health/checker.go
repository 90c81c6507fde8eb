// Package health probes tunnel reachability once a connection is up.
package health

import (
	"context"
	"time"
)

// Checker is a single reachability probe.
type Checker interface {
	// Check performs one probe and returns the result.
	Check(ctx context.Context) Result

	// Type returns the probe type.
	Type() string
}

// Result is the outcome of one probe.
type Result struct {
	Healthy   bool          `json:"healthy"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency"`
	Timestamp time.Time     `json:"timestamp"`
	Error     string        `json:"error,omitempty"`
}

// Config selects and parameterizes a probe.
type Config struct {
	Type    string        `yaml:"type"`    // dns, tcp
	Target  string        `yaml:"target"`  // probe address (host:port)
	Timeout time.Duration `yaml:"timeout"` // per-probe timeout
}

// DefaultConfig probes a public resolver, which a full-tunnel config routes
// through the tunnel.
func DefaultConfig() Config {
	return Config{
		Type:    "dns",
		Target:  "1.1.1.1:53",
		Timeout: 5 * time.Second,
	}
}

// New creates a checker from configuration.
func New(cfg Config) Checker {
	switch cfg.Type {
	case "tcp":
		return NewTCPChecker(cfg)
	default:
		return NewDNSChecker(cfg)
	}
}
