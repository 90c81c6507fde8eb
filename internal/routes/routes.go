// Package routes installs and removes the host routes that steer traffic
// into the tunnel interface.
package routes

import (
	"fmt"
	"net/netip"
)

// defaultSplit is the pair of half-space routes installed instead of
// replacing the default route. They win over 0.0.0.0/0 by prefix length and
// disappear cleanly when removed.
var defaultSplit = []string{"0.0.0.0/1", "128.0.0.0/1"}

// Plan expands the allowed ranges into the concrete routes to install. A
// full-tunnel range (0.0.0.0/0) becomes the two half-space routes; everything
// else passes through validated.
func Plan(allowedIPs []string) ([]string, error) {
	var out []string
	for _, cidr := range allowedIPs {
		if _, err := netip.ParsePrefix(cidr); err != nil {
			return nil, fmt.Errorf("routes: invalid range %q: %w", cidr, err)
		}
		if cidr == "0.0.0.0/0" {
			out = append(out, defaultSplit...)
			continue
		}
		out = append(out, cidr)
	}
	return out, nil
}

// Manager installs routes on connect and removes the same set on disconnect.
type Manager struct {
	iface     string
	localAddr netip.Addr
	installed []string
}

// NewManager creates a route manager for the given tunnel interface. The
// local address is needed on platforms that route via gateway address rather
// than interface name.
func NewManager(iface string, localAddr netip.Addr) *Manager {
	return &Manager{iface: iface, localAddr: localAddr}
}

// Install plans and installs routes for the allowed ranges. Partially
// installed routes are rolled back on failure.
func (m *Manager) Install(allowedIPs []string) error {
	planned, err := Plan(allowedIPs)
	if err != nil {
		return err
	}
	for i, cidr := range planned {
		if err := m.addRoute(cidr); err != nil {
			for _, prev := range planned[:i] {
				_ = m.delRoute(prev)
			}
			return fmt.Errorf("routes: add %s: %w", cidr, err)
		}
	}
	m.installed = planned
	return nil
}

// Remove tears down whatever Install put in place. Errors on individual
// routes are collected but do not stop the sweep; the kernel drops interface
// routes with the interface anyway.
func (m *Manager) Remove() error {
	var firstErr error
	for _, cidr := range m.installed {
		if err := m.delRoute(cidr); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("routes: remove %s: %w", cidr, err)
		}
	}
	m.installed = nil
	return firstErr
}
