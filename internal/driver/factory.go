package driver

import (
	"log/slog"
	"os"
	"os/exec"
	"runtime"

	"github.com/veilnet/veil/internal/vpn"
)

// Backend names a tunnel backend selection.
type Backend string

const (
	// BackendAuto probes the environment and picks the first usable backend.
	BackendAuto Backend = "auto"
	// BackendEmbedded forces the in-process userspace engine.
	BackendEmbedded Backend = "embedded"
	// BackendWGQuick forces the external wg-quick tool.
	BackendWGQuick Backend = "wg-quick"
)

// New selects a backend at startup. Selection is a runtime probe rather than
// a compile-time branch so the orchestration above it is testable everywhere.
func New(backend Backend, configDir string, log *slog.Logger) (vpn.TunnelDriver, error) {
	switch backend {
	case BackendEmbedded:
		return NewEmbedded(log), nil
	case BackendWGQuick:
		return NewWGQuick(log, configDir), nil
	case BackendAuto, "":
		if embeddedAvailable() {
			log.Debug("selected embedded backend")
			return NewEmbedded(log), nil
		}
		if _, err := exec.LookPath("wg-quick"); err == nil {
			log.Debug("selected wg-quick backend")
			return NewWGQuick(log, configDir), nil
		}
		return nil, ErrNoBackend
	default:
		return nil, &TunnelError{Op: "select backend", Err: errUnknownBackend(backend)}
	}
}

type errUnknownBackend string

func (e errUnknownBackend) Error() string {
	return "unknown backend: " + string(e)
}

// embeddedAvailable reports whether the platform adapter can be created.
func embeddedAvailable() bool {
	switch runtime.GOOS {
	case "linux":
		_, err := os.Stat("/dev/net/tun")
		return err == nil
	case "windows":
		// wintun.dll is loaded lazily; adapter creation reports its absence.
		return true
	default:
		return false
	}
}
