// Package driver provides the two tunnel backends: the embedded userspace
// engine and the external wg-quick tool. Both satisfy vpn.TunnelDriver.
package driver

import (
	"errors"
	"fmt"
	"runtime"
)

var (
	// ErrPermissionDenied means the backend needs elevated privileges. It is
	// surfaced verbatim and never retried automatically.
	ErrPermissionDenied = errors.New("driver: permission denied, elevated privileges required")

	// ErrToolTimeout means the external tool did not finish within the
	// configured deadline.
	ErrToolTimeout = errors.New("driver: external tool timed out")

	// ErrNoBackend means no usable backend was found during probing.
	ErrNoBackend = errors.New("driver: no tunnel backend available")
)

// TunnelError wraps a failed backend operation with the step that failed.
type TunnelError struct {
	Op  string
	Err error
}

func (e *TunnelError) Error() string {
	return fmt.Sprintf("tunnel %s: %v", e.Op, e.Err)
}

func (e *TunnelError) Unwrap() error {
	return e.Err
}

// TunnelName is the fixed interface name the backends manage.
func TunnelName() string {
	if runtime.GOOS == "windows" {
		return "Veil"
	}
	return "veil0"
}
