// Package adapter manages the virtual tunnel interface the embedded engine
// reads plaintext from and writes plaintext to. Reads are non-blocking so a
// single pump goroutine can multiplex the tunnel and the UDP socket.
package adapter

import (
	"errors"
	"fmt"
	"net/netip"
)

var (
	// ErrNoPacket is returned by TryRead when no packet is pending.
	ErrNoPacket = errors.New("adapter: no packet available")

	// ErrPermissionDenied is returned when the adapter cannot be created
	// without elevated privileges.
	ErrPermissionDenied = errors.New("adapter: permission denied")

	// ErrNotSupported is returned on platforms without an embedded adapter.
	ErrNotSupported = errors.New("adapter: not supported on this platform")
)

// Config describes the interface to create.
type Config struct {
	// Name is the requested interface name; the OS may adjust it.
	Name string
	// Address is the local tunnel address with prefix length.
	Address netip.Prefix
	// MTU applies to the interface; the caller supplies the effective value.
	MTU int
}

// Device is a created tunnel interface.
type Device interface {
	// Name returns the actual interface name assigned by the OS.
	Name() string

	// MTU returns the configured MTU.
	MTU() int

	// TryRead copies one pending outbound IP packet into buf. It returns
	// ErrNoPacket immediately when none is queued.
	TryRead(buf []byte) (int, error)

	// Write injects one inbound IP packet.
	Write(pkt []byte) (int, error)

	// Close destroys the interface.
	Close() error
}

// DeviceError wraps a failed adapter operation with the step that failed.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("adapter: %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// Open creates and configures the platform tunnel interface.
func Open(cfg Config) (Device, error) {
	return openPlatform(cfg)
}
