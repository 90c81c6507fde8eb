//go:build darwin

package routes

import (
	"fmt"
	"net/netip"
	"os/exec"
	"strings"
)

func maskString(bits int) string {
	mask := uint32(0xFFFFFFFF) << (32 - bits)
	return fmt.Sprintf("%d.%d.%d.%d",
		(mask>>24)&0xFF,
		(mask>>16)&0xFF,
		(mask>>8)&0xFF,
		mask&0xFF,
	)
}

func (m *Manager) addRoute(destination string) error {
	prefix, err := netip.ParsePrefix(destination)
	if err != nil {
		return err
	}
	network := prefix.Masked().Addr().String()

	cmd := exec.Command("route", "-n", "add", "-net", network,
		"-netmask", maskString(prefix.Bits()), "-interface", m.iface)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("route add failed: %w: %s", err, string(output))
	}
	return nil
}

func (m *Manager) delRoute(destination string) error {
	prefix, err := netip.ParsePrefix(destination)
	if err != nil {
		return err
	}
	network := prefix.Masked().Addr().String()

	cmd := exec.Command("route", "-n", "delete", "-net", network,
		"-netmask", maskString(prefix.Bits()))
	output, err := cmd.CombinedOutput()
	if err != nil {
		if strings.Contains(string(output), "not in table") {
			return nil
		}
		return fmt.Errorf("route delete failed: %w: %s", err, string(output))
	}
	return nil
}
