package engine

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/veilnet/veil/internal/adapter"
)

// wirePollInterval bounds how long a socket poll may block. The pump calls
// TryRead in a tight loop, so this is effectively the socket's would-block
// window.
const wirePollInterval = 500 * time.Microsecond

// Wire is the encrypted side of the tunnel: a datagram path to the peer.
// TryRead returns adapter.ErrNoPacket when nothing is pending, mirroring the
// tunnel device so the pump treats both sides uniformly.
type Wire interface {
	TryRead(buf []byte) (int, error)
	Write(pkt []byte) (int, error)
	Close() error
}

type udpWire struct {
	conn *net.UDPConn
}

// DialWire connects a UDP socket to the peer endpoint.
func DialWire(endpoint string) (Wire, error) {
	raddr, err := net.ResolveUDPAddr("udp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("engine: resolve endpoint %q: %w", endpoint, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("engine: dial endpoint %q: %w", endpoint, err)
	}
	return &udpWire{conn: conn}, nil
}

func (w *udpWire) TryRead(buf []byte) (int, error) {
	if err := w.conn.SetReadDeadline(time.Now().Add(wirePollInterval)); err != nil {
		return 0, err
	}
	n, err := w.conn.Read(buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return 0, adapter.ErrNoPacket
		}
		return 0, err
	}
	return n, nil
}

func (w *udpWire) Write(pkt []byte) (int, error) {
	return w.conn.Write(pkt)
}

func (w *udpWire) Close() error {
	return w.conn.Close()
}
