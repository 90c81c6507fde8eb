package wgcfg

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Render produces the canonical text form consumed by wg-quick and by the
// userspace engine's construction step. Section and field order are fixed;
// MTU and PersistentKeepalive lines are omitted when unset.
func (c *Config) Render() string {
	var sb strings.Builder

	sb.WriteString("[Interface]\n")
	fmt.Fprintf(&sb, "PrivateKey = %s\n", c.Interface.PrivateKey)
	fmt.Fprintf(&sb, "Address = %s\n", c.Interface.Address)
	fmt.Fprintf(&sb, "DNS = %s\n", strings.Join(c.Interface.DNS, ", "))
	if c.Interface.MTU > 0 {
		fmt.Fprintf(&sb, "MTU = %d\n", c.Interface.MTU)
	}

	sb.WriteString("\n[Peer]\n")
	fmt.Fprintf(&sb, "PublicKey = %s\n", c.Peer.PublicKey)
	fmt.Fprintf(&sb, "Endpoint = %s\n", c.Peer.Endpoint)
	fmt.Fprintf(&sb, "AllowedIPs = %s\n", strings.Join(c.Peer.AllowedIPs, ", "))
	if c.Peer.PersistentKeepalive > 0 {
		fmt.Fprintf(&sb, "PersistentKeepalive = %d\n", c.Peer.PersistentKeepalive)
	}

	return sb.String()
}

// Parse reads a configuration in the canonical text form.
func Parse(r io.Reader) (*Config, error) {
	cfg := &Config{}
	var section string

	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.ToLower(strings.Trim(line, "[]"))
			if section != "interface" && section != "peer" {
				return nil, fmt.Errorf("line %d: unknown section %q", lineNum, line)
			}
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("line %d: invalid format", lineNum)
		}
		key = strings.TrimSpace(strings.ToLower(key))
		value = strings.TrimSpace(value)

		var err error
		switch section {
		case "interface":
			err = parseInterfaceKey(&cfg.Interface, key, value)
		case "peer":
			err = parsePeerKey(&cfg.Peer, key, value)
		default:
			err = fmt.Errorf("entry outside of a section")
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan config: %w", err)
	}

	return cfg, nil
}

// ParseString is a convenience wrapper around Parse.
func ParseString(s string) (*Config, error) {
	return Parse(strings.NewReader(s))
}

func parseInterfaceKey(iface *InterfaceConfig, key, value string) error {
	switch key {
	case "privatekey":
		if err := validateKey(value); err != nil {
			return fmt.Errorf("invalid private key: %w", err)
		}
		iface.PrivateKey = value
	case "address":
		if err := validateCIDR(value); err != nil {
			return fmt.Errorf("invalid address: %w", err)
		}
		iface.Address = value
	case "dns":
		for _, srv := range strings.Split(value, ",") {
			iface.DNS = append(iface.DNS, strings.TrimSpace(srv))
		}
	case "mtu":
		mtu, err := strconv.Atoi(value)
		if err != nil || mtu < 576 || mtu > 65535 {
			return fmt.Errorf("invalid MTU: %s", value)
		}
		iface.MTU = mtu
	}
	return nil
}

func parsePeerKey(peer *PeerConfig, key, value string) error {
	switch key {
	case "publickey":
		if err := validateKey(value); err != nil {
			return fmt.Errorf("invalid public key: %w", err)
		}
		peer.PublicKey = value
	case "endpoint":
		peer.Endpoint = value
	case "allowedips":
		for _, cidr := range strings.Split(value, ",") {
			cidr = strings.TrimSpace(cidr)
			if err := validateCIDR(cidr); err != nil {
				return fmt.Errorf("invalid allowed IP: %s", cidr)
			}
			peer.AllowedIPs = append(peer.AllowedIPs, cidr)
		}
	case "persistentkeepalive":
		ka, err := strconv.Atoi(value)
		if err != nil || ka < 0 || ka > 65535 {
			return fmt.Errorf("invalid persistent keepalive: %s", value)
		}
		peer.PersistentKeepalive = ka
	}
	return nil
}

// ToIPC generates the UAPI configuration string for the userspace device.
// Keys are hex encoded; the caller is expected to have validated the config.
func (c *Config) ToIPC() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "private_key=%s\n", hexKey(c.Interface.PrivateKey))
	fmt.Fprintf(&sb, "public_key=%s\n", hexKey(c.Peer.PublicKey))
	fmt.Fprintf(&sb, "endpoint=%s\n", c.Peer.Endpoint)
	for _, ip := range c.Peer.AllowedIPs {
		fmt.Fprintf(&sb, "allowed_ip=%s\n", ip)
	}
	if c.Peer.PersistentKeepalive > 0 {
		fmt.Fprintf(&sb, "persistent_keepalive_interval=%d\n", c.Peer.PersistentKeepalive)
	}

	return sb.String()
}

// hexKey converts a pre-validated base64 key to the hex form UAPI expects.
func hexKey(b64Key string) string {
	key, _ := DecodeKey(b64Key) //nolint:errcheck
	return fmt.Sprintf("%x", key[:])
}
