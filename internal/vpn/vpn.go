// Package vpn holds the connection state machine that serializes tunnel
// lifecycle operations against a single logical tunnel.
package vpn

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/veilnet/veil/internal/wgcfg"
)

var (
	// ErrAlreadyConnected is returned by Connect when a tunnel is up.
	ErrAlreadyConnected = errors.New("vpn: already connected")

	// ErrNotConnected is returned by Disconnect when no tunnel exists.
	ErrNotConnected = errors.New("vpn: not connected")
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is a snapshot of the lifecycle state. Error carries the failure
// message when State is StateError.
type Status struct {
	State State  `json:"state"`
	Error string `json:"error,omitempty"`
}

// MarshalJSON renders State as its string form inside Status snapshots.
func (s Status) MarshalJSON() ([]byte, error) {
	type alias struct {
		State string `json:"state"`
		Error string `json:"error,omitempty"`
	}
	return json.Marshal(alias{State: s.State.String(), Error: s.Error})
}

// UnmarshalJSON parses the string state form produced by MarshalJSON.
func (s *Status) UnmarshalJSON(data []byte) error {
	var alias struct {
		State string `json:"state"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	s.Error = alias.Error
	s.State = parseState(alias.State)
	return nil
}

func parseState(name string) State {
	for _, s := range []State{StateDisconnected, StateConnecting, StateConnected, StateDisconnecting, StateError} {
		if s.String() == name {
			return s
		}
	}
	return StateDisconnected
}

// Stats is a snapshot of traffic accounting. Speeds are bytes per sampling
// interval, derived by UpdateStats; totals are cumulative since connect.
type Stats struct {
	UploadSpeed     uint64     `json:"upload_speed"`
	DownloadSpeed   uint64     `json:"download_speed"`
	TotalUploaded   uint64     `json:"total_uploaded"`
	TotalDownloaded uint64     `json:"total_downloaded"`
	ConnectedSince  *time.Time `json:"connected_since,omitempty"`
}

// TunnelDriver establishes and tears down the actual tunnel. Implementations
// are the embedded userspace engine and the external wg-quick tool.
type TunnelDriver interface {
	// Connect establishes the tunnel. Only called when no tunnel is up.
	Connect(ctx context.Context, cfg *wgcfg.Config) error

	// Disconnect tears down everything Connect created. Safe to call on an
	// already-down driver.
	Disconnect(ctx context.Context) error

	// TransferStats returns cumulative received and sent bytes, or (0,0)
	// when not connected.
	TransferStats() (rx, tx uint64, err error)
}

// Manager owns the single tunnel's status, config, and stats. All lifecycle
// calls go through it; the driver call itself runs outside the locks so
// status reads during a slow connect observe Connecting.
type Manager struct {
	driver TunnelDriver
	log    *slog.Logger

	statusMu sync.RWMutex
	status   Status

	statsMu sync.RWMutex
	stats   Stats

	configMu sync.RWMutex
	config   *wgcfg.Config
}

// NewManager creates a manager in the Disconnected state.
func NewManager(driver TunnelDriver, log *slog.Logger) *Manager {
	return &Manager{
		driver: driver,
		log:    log,
		status: Status{State: StateDisconnected},
	}
}

// Connect validates the lifecycle guard, transitions to Connecting, and asks
// the driver to establish the tunnel. On success stats are reset with a fresh
// connected-since timestamp; on failure the status carries the error and the
// config is retained for diagnostics.
func (m *Manager) Connect(ctx context.Context, cfg *wgcfg.Config) error {
	m.statusMu.Lock()
	if m.status.State == StateConnected {
		m.statusMu.Unlock()
		return ErrAlreadyConnected
	}
	m.status = Status{State: StateConnecting}
	m.statusMu.Unlock()

	m.configMu.Lock()
	m.config = cfg
	m.configMu.Unlock()

	m.log.Info("connecting", "endpoint", cfg.Peer.Endpoint)

	if err := m.driver.Connect(ctx, cfg); err != nil {
		m.setError(err)
		m.log.Error("connect failed", "error", err)
		return err
	}

	now := time.Now()
	m.statsMu.Lock()
	m.stats = Stats{ConnectedSince: &now}
	m.statsMu.Unlock()

	m.setState(StateConnected)
	m.log.Info("connected", "endpoint", cfg.Peer.Endpoint)
	return nil
}

// Disconnect tears the tunnel down. The config and stats are cleared
// regardless of the driver's outcome, so a repeated call observes
// NotConnected rather than a stuck Disconnecting.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.statusMu.Lock()
	if m.status.State == StateDisconnected {
		m.statusMu.Unlock()
		return ErrNotConnected
	}
	m.status = Status{State: StateDisconnecting}
	m.statusMu.Unlock()

	m.log.Info("disconnecting")
	err := m.driver.Disconnect(ctx)

	m.configMu.Lock()
	m.config = nil
	m.configMu.Unlock()

	m.statsMu.Lock()
	m.stats = Stats{}
	m.statsMu.Unlock()

	if err != nil {
		m.setError(err)
		m.log.Error("disconnect failed", "error", err)
		return err
	}

	m.setState(StateDisconnected)
	m.log.Info("disconnected")
	return nil
}

// Status returns a snapshot of the lifecycle state.
func (m *Manager) Status() Status {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	return m.status
}

// Stats returns a snapshot of the traffic accounting.
func (m *Manager) Stats() Stats {
	m.statsMu.RLock()
	defer m.statsMu.RUnlock()
	return m.stats
}

// Config returns the active tunnel config, or nil when none is stored.
func (m *Manager) Config() *wgcfg.Config {
	m.configMu.RLock()
	defer m.configMu.RUnlock()
	return m.config
}

// UpdateStats samples the driver's cumulative counters and derives speeds.
// It is a no-op unless connected; the caller drives it on a fixed cadence.
func (m *Manager) UpdateStats() {
	if m.Status().State != StateConnected {
		return
	}

	rx, tx, err := m.driver.TransferStats()
	if err != nil {
		// Stats are advisory; a failed sample is logged and skipped.
		m.log.Warn("stats query failed", "error", err)
		return
	}

	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	m.stats.UploadSpeed = saturatingDelta(tx, m.stats.TotalUploaded)
	m.stats.DownloadSpeed = saturatingDelta(rx, m.stats.TotalDownloaded)
	m.stats.TotalUploaded = tx
	m.stats.TotalDownloaded = rx
}

// saturatingDelta returns new-old, clamped to zero if the counter regressed.
func saturatingDelta(newTotal, oldTotal uint64) uint64 {
	if newTotal < oldTotal {
		return 0
	}
	return newTotal - oldTotal
}

func (m *Manager) setState(s State) {
	m.statusMu.Lock()
	m.status = Status{State: s}
	m.statusMu.Unlock()
}

func (m *Manager) setError(err error) {
	m.statusMu.Lock()
	m.status = Status{State: StateError, Error: err.Error()}
	m.statusMu.Unlock()
}
