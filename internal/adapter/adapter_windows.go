//go:build windows

package adapter

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"golang.org/x/sys/windows"
	"golang.zx2c4.com/wintun"
)

// Ring buffer size for the wintun session.
const tunRingCapacity = 0x400000 // 4 MiB

type windowsTUN struct {
	name    string
	mtu     int
	adapter *wintun.Adapter
	session wintun.Session
	mu      sync.Mutex
	closed  bool
}

func openPlatform(cfg Config) (Device, error) {
	ad, err := wintun.CreateAdapter(cfg.Name, "Veil", nil)
	if err != nil {
		ad, err = wintun.OpenAdapter(cfg.Name)
		if err != nil {
			if isAccessDenied(err) {
				return nil, ErrPermissionDenied
			}
			return nil, &DeviceError{Op: "create adapter", Err: err}
		}
	}

	session, err := ad.StartSession(tunRingCapacity)
	if err != nil {
		ad.Close()
		return nil, &DeviceError{Op: "start session", Err: err}
	}

	t := &windowsTUN{name: cfg.Name, mtu: cfg.MTU, adapter: ad, session: session}
	if err := t.configure(cfg); err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

func (t *windowsTUN) configure(cfg Config) error {
	addr := cfg.Address.Addr()
	if !addr.Is4() {
		return &DeviceError{Op: "set address", Err: errors.New("only IPv4 tunnel addresses are supported")}
	}

	cmd := exec.Command("netsh", "interface", "ip", "set", "address",
		fmt.Sprintf("name=%s", t.name),
		"source=static",
		fmt.Sprintf("addr=%s", addr),
		fmt.Sprintf("mask=%s", prefixToMask(cfg.Address.Bits())),
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		if isAccessDenied(err) || strings.Contains(string(output), "Access is denied") {
			return ErrPermissionDenied
		}
		return &DeviceError{Op: "netsh address", Err: fmt.Errorf("%w: %s", err, string(output))}
	}

	cmd = exec.Command("netsh", "interface", "ipv4", "set", "subinterface",
		t.name,
		fmt.Sprintf("mtu=%d", cfg.MTU),
		"store=persistent",
	)
	// MTU failure is non-fatal; the default is usable.
	_, _ = cmd.CombinedOutput()

	return nil
}

func prefixToMask(bits int) string {
	mask := uint32(0xFFFFFFFF) << (32 - bits)
	return fmt.Sprintf("%d.%d.%d.%d",
		(mask>>24)&0xFF,
		(mask>>16)&0xFF,
		(mask>>8)&0xFF,
		mask&0xFF,
	)
}

func isAccessDenied(err error) bool {
	return errors.Is(err, windows.ERROR_ACCESS_DENIED)
}

func (t *windowsTUN) Name() string { return t.name }
func (t *windowsTUN) MTU() int     { return t.mtu }

func (t *windowsTUN) TryRead(buf []byte) (int, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, &DeviceError{Op: "receive", Err: errors.New("device closed")}
	}
	session := t.session
	t.mu.Unlock()

	pkt, err := session.ReceivePacket()
	if err != nil {
		if errors.Is(err, windows.ERROR_NO_MORE_ITEMS) {
			return 0, ErrNoPacket
		}
		return 0, &DeviceError{Op: "receive", Err: err}
	}
	n := copy(buf, pkt)
	session.ReleaseReceivePacket(pkt)
	return n, nil
}

func (t *windowsTUN) Write(pkt []byte) (int, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, &DeviceError{Op: "send", Err: errors.New("device closed")}
	}
	session := t.session
	t.mu.Unlock()

	out, err := session.AllocateSendPacket(len(pkt))
	if err != nil {
		return 0, &DeviceError{Op: "allocate", Err: err}
	}
	copy(out, pkt)
	session.SendPacket(out)
	return len(pkt), nil
}

func (t *windowsTUN) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.session.End()
	t.adapter.Close()
	return nil
}
