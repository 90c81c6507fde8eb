//go:build linux

package routes

import (
	"fmt"
	"os/exec"
	"strings"
)

func (m *Manager) addRoute(destination string) error {
	cmd := exec.Command("ip", "route", "replace", destination, "dev", m.iface)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ip route replace failed: %w: %s", err, string(output))
	}
	return nil
}

func (m *Manager) delRoute(destination string) error {
	cmd := exec.Command("ip", "route", "del", destination, "dev", m.iface)
	output, err := cmd.CombinedOutput()
	if err != nil {
		// The route vanishes with the interface; that is not a failure.
		if strings.Contains(string(output), "No such process") {
			return nil
		}
		return fmt.Errorf("ip route del failed: %w: %s", err, string(output))
	}
	return nil
}
