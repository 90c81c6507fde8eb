package noise

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"

	"golang.zx2c4.com/wireguard/conn"
	"golang.zx2c4.com/wireguard/device"
	"golang.zx2c4.com/wireguard/tun"

	"github.com/veilnet/veil/internal/wgcfg"
)

// queueDepth bounds the channels between the pump and the protocol
// goroutines. The pump submits one packet per call, so a small buffer is
// enough to absorb handshake bursts.
const queueDepth = 64

// ErrSessionClosed is returned by session operations after Close.
var ErrSessionClosed = errors.New("noise: session closed")

// deviceSession adapts the userspace WireGuard device to the pull-based
// Session interface. The device runs its own protocol goroutines; we hand it
// a channel-backed tunnel and a channel-backed socket and exchange packets
// with those goroutines on every pump call.
type deviceSession struct {
	dev  *device.Device
	tun  *chanTUN
	bind *chanBind
	done chan struct{}
}

// NewSession builds a configured, running session for the given tunnel
// config. The config must have been validated and its endpoint resolved to an
// IP literal.
func NewSession(cfg *wgcfg.Config) (Session, error) {
	ep, err := netip.ParseAddrPort(cfg.Peer.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("noise: endpoint is not an ip:port literal: %w", err)
	}

	done := make(chan struct{})
	t := &chanTUN{
		in:     make(chan []byte, queueDepth),
		out:    make(chan []byte, queueDepth),
		events: make(chan tun.Event, 1),
		mtu:    cfg.MTU(),
		done:   done,
	}
	b := &chanBind{
		in:   make(chan []byte, queueDepth),
		out:  make(chan []byte, queueDepth),
		peer: ep,
		done: done,
	}

	dev := device.NewDevice(t, b, device.NewLogger(device.LogLevelError, "veil: "))
	// On failure, done must close before the device: a receive goroutine
	// blocked in the bind only unblocks via done, and Close waits for it.
	if err := dev.IpcSet(cfg.ToIPC()); err != nil {
		close(done)
		dev.Close()
		return nil, fmt.Errorf("noise: apply device config: %w", err)
	}
	if err := dev.Up(); err != nil {
		close(done)
		dev.Close()
		return nil, fmt.Errorf("noise: bring device up: %w", err)
	}
	t.events <- tun.EventUp

	return &deviceSession{dev: dev, tun: t, bind: b, done: done}, nil
}

func (s *deviceSession) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *deviceSession) Encapsulate(pkt []byte) (Result, error) {
	if s.closed() {
		return Result{}, ErrSessionClosed
	}
	buf := make([]byte, len(pkt))
	copy(buf, pkt)
	select {
	case s.tun.in <- buf:
	case <-s.done:
		return Result{}, ErrSessionClosed
	}
	return s.drain(), nil
}

func (s *deviceSession) Decapsulate(pkt []byte) (Result, error) {
	if s.closed() {
		return Result{}, ErrSessionClosed
	}
	buf := make([]byte, len(pkt))
	copy(buf, pkt)
	select {
	case s.bind.in <- buf:
	case <-s.done:
		return Result{}, ErrSessionClosed
	}
	return s.drain(), nil
}

func (s *deviceSession) TickTimers() (Result, error) {
	if s.closed() {
		return Result{}, ErrSessionClosed
	}
	return s.drain(), nil
}

// drain returns one pending output packet if the protocol goroutines have
// produced any. Encryption happens asynchronously, so the packet returned
// here is not necessarily the one submitted on this call; that is fine
// because ciphertext always goes to the network and plaintext always goes to
// the tunnel, regardless of pairing.
func (s *deviceSession) drain() Result {
	select {
	case pkt := <-s.bind.out:
		return Result{Op: OpSendToNetwork, Data: pkt}
	default:
	}
	select {
	case pkt := <-s.tun.out:
		return Result{Op: OpWriteToTunnel, Data: pkt}
	default:
	}
	return Result{Op: OpNone}
}

func (s *deviceSession) Close() error {
	if s.closed() {
		return nil
	}
	close(s.done)
	s.dev.Close()
	return nil
}

// chanTUN is a tun.Device backed by channels instead of a kernel interface.
// The protocol's read loop blocks on in; its writes land on out.
type chanTUN struct {
	in     chan []byte
	out    chan []byte
	events chan tun.Event
	mtu    int
	done   chan struct{}
}

func (t *chanTUN) File() *os.File { return nil }

func (t *chanTUN) Read(bufs [][]byte, sizes []int, offset int) (int, error) {
	select {
	case pkt := <-t.in:
		n := copy(bufs[0][offset:], pkt)
		sizes[0] = n
		return 1, nil
	case <-t.done:
		return 0, os.ErrClosed
	}
}

func (t *chanTUN) Write(bufs [][]byte, offset int) (int, error) {
	written := 0
	for _, buf := range bufs {
		pkt := make([]byte, len(buf)-offset)
		copy(pkt, buf[offset:])
		select {
		case t.out <- pkt:
			written++
		case <-t.done:
			return written, os.ErrClosed
		}
	}
	return written, nil
}

func (t *chanTUN) MTU() (int, error)        { return t.mtu, nil }
func (t *chanTUN) Name() (string, error)    { return "veil-session", nil }
func (t *chanTUN) Events() <-chan tun.Event { return t.events }
func (t *chanTUN) BatchSize() int           { return 1 }
func (t *chanTUN) Close() error             { return nil }

// chanBind is a conn.Bind backed by channels. The pump owns the real UDP
// socket; the protocol only sees packet buffers.
type chanBind struct {
	in   chan []byte
	out  chan []byte
	peer netip.AddrPort
	done chan struct{}
}

func (b *chanBind) Open(port uint16) ([]conn.ReceiveFunc, uint16, error) {
	recv := func(packets [][]byte, sizes []int, eps []conn.Endpoint) (int, error) {
		select {
		case pkt := <-b.in:
			n := copy(packets[0], pkt)
			sizes[0] = n
			eps[0] = peerEndpoint{ap: b.peer}
			return 1, nil
		case <-b.done:
			return 0, net.ErrClosed
		}
	}
	return []conn.ReceiveFunc{recv}, port, nil
}

func (b *chanBind) Send(bufs [][]byte, _ conn.Endpoint) error {
	for _, buf := range bufs {
		pkt := make([]byte, len(buf))
		copy(pkt, buf)
		select {
		case b.out <- pkt:
		case <-b.done:
			return net.ErrClosed
		}
	}
	return nil
}

func (b *chanBind) ParseEndpoint(s string) (conn.Endpoint, error) {
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		return nil, err
	}
	return peerEndpoint{ap: ap}, nil
}

func (b *chanBind) SetMark(uint32) error { return nil }
func (b *chanBind) BatchSize() int       { return 1 }
func (b *chanBind) Close() error         { return nil }

// peerEndpoint is the single peer address as seen by the protocol.
type peerEndpoint struct {
	ap netip.AddrPort
}

func (e peerEndpoint) ClearSrc()           {}
func (e peerEndpoint) SrcToString() string { return "" }
func (e peerEndpoint) DstToString() string { return e.ap.String() }
func (e peerEndpoint) DstToBytes() []byte {
	b, _ := e.ap.MarshalBinary() //nolint:errcheck
	return b
}
func (e peerEndpoint) DstIP() netip.Addr { return e.ap.Addr() }
func (e peerEndpoint) SrcIP() netip.Addr { return netip.Addr{} }
