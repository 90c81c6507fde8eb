// Package noise wraps the WireGuard protocol engine behind a pull-based
// session interface. The packet pump feeds plaintext and ciphertext in and
// receives explicit routing decisions back, so the pump owns all I/O and the
// session owns all cryptography.
package noise

// Op tells the caller where a produced packet must be delivered.
type Op int

const (
	// OpNone means no packet is ready; poll again later.
	OpNone Op = iota
	// OpSendToNetwork delivers ciphertext to the peer's UDP endpoint.
	OpSendToNetwork
	// OpWriteToTunnel delivers plaintext to the local tunnel interface.
	OpWriteToTunnel
)

func (o Op) String() string {
	switch o {
	case OpNone:
		return "none"
	case OpSendToNetwork:
		return "send-to-network"
	case OpWriteToTunnel:
		return "write-to-tunnel"
	default:
		return "unknown"
	}
}

// Result is the outcome of a session operation. Data is only valid when Op is
// not OpNone, and is owned by the caller once returned.
type Result struct {
	Op   Op
	Data []byte
}

// Session is a single established tunnel's cryptographic state. Encapsulate
// and Decapsulate may return OpNone when the protocol buffers the packet
// internally (for example while a handshake is in flight); such packets
// surface on later calls, including TickTimers.
//
// Implementations are safe for use from a single pump goroutine only.
type Session interface {
	// Encapsulate submits an outbound plaintext IP packet.
	Encapsulate(pkt []byte) (Result, error)

	// Decapsulate submits an inbound ciphertext datagram.
	Decapsulate(pkt []byte) (Result, error)

	// TickTimers drives retransmission and keepalive machinery and drains
	// any internally buffered output.
	TickTimers() (Result, error)

	// Close tears down the session and zeroes key material.
	Close() error
}
