// Package engine moves packets between the tunnel interface, the protocol
// session, and the UDP socket. A single goroutine polls both sides so no
// locking is needed on the data path.
package engine

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/veilnet/veil/internal/adapter"
	"github.com/veilnet/veil/internal/noise"
)

const (
	// maxPacketSize covers the largest IP packet plus protocol overhead.
	maxPacketSize = 65536

	// idleSleep is the pause after an iteration that moved nothing, keeping
	// the poll loop from spinning a core on an idle tunnel.
	idleSleep = 250 * time.Microsecond
)

// Tunnel is the plaintext side of the pump. adapter.Device satisfies it; the
// tests substitute fakes.
type Tunnel interface {
	TryRead(buf []byte) (int, error)
	Write(pkt []byte) (int, error)
	Close() error
}

// Engine owns the forwarding loop for one established tunnel.
type Engine struct {
	tun      Tunnel
	wire     Wire
	session  noise.Session
	counters *Counters
	log      *slog.Logger

	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}
}

// New assembles an engine. The engine takes ownership of all three components
// and closes them on Stop.
func New(tun Tunnel, wire Wire, session noise.Session, counters *Counters, log *slog.Logger) *Engine {
	return &Engine{
		tun:      tun,
		wire:     wire,
		session:  session,
		counters: counters,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Counters exposes the engine's traffic counters.
func (e *Engine) Counters() *Counters {
	return e.counters
}

// Start launches the forwarding loop. It may be called once.
func (e *Engine) Start() {
	if !e.running.CompareAndSwap(false, true) {
		return
	}
	e.counters.Reset()
	go e.loop()
}

// Stop halts the loop, waits for the in-flight iteration to finish, then
// tears down the session, the socket, and the tunnel interface.
func (e *Engine) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	close(e.stop)
	<-e.done

	if err := e.session.Close(); err != nil {
		e.log.Warn("session close failed", "error", err)
	}
	if err := e.wire.Close(); err != nil {
		e.log.Warn("socket close failed", "error", err)
	}
	if err := e.tun.Close(); err != nil {
		e.log.Warn("tunnel close failed", "error", err)
	}
}

func (e *Engine) loop() {
	defer close(e.done)

	buf := make([]byte, maxPacketSize)
	for {
		select {
		case <-e.stop:
			return
		default:
		}

		if !e.step(buf) {
			time.Sleep(idleSleep)
		}
	}
}

// step performs one poll of the tunnel, the socket, and the timer machinery.
// It reports whether any packet moved, so the loop can back off when idle.
func (e *Engine) step(buf []byte) bool {
	moved := false

	// Outbound: plaintext from the tunnel interface.
	n, err := e.tun.TryRead(buf)
	switch {
	case err == nil && n > 0:
		moved = true
		e.counters.AddTx(n)
		res, err := e.session.Encapsulate(buf[:n])
		if err != nil {
			e.log.Warn("encapsulate failed", "error", err)
		} else {
			e.dispatch(res)
		}
	case err != nil && !errors.Is(err, adapter.ErrNoPacket):
		e.log.Warn("tunnel read failed", "error", err)
	}

	// Inbound: ciphertext from the peer.
	n, err = e.wire.TryRead(buf)
	switch {
	case err == nil && n > 0:
		moved = true
		e.counters.AddRx(n)
		res, err := e.session.Decapsulate(buf[:n])
		if err != nil {
			e.log.Warn("decapsulate failed", "error", err)
		} else {
			e.dispatch(res)
		}
	case err != nil && !errors.Is(err, adapter.ErrNoPacket):
		e.log.Warn("socket read failed", "error", err)
	}

	// Timers: keepalives, retransmissions, buffered output.
	res, err := e.session.TickTimers()
	if err != nil {
		e.log.Warn("timer tick failed", "error", err)
	} else {
		if res.Op != noise.OpNone {
			moved = true
		}
		e.dispatch(res)
	}

	return moved
}

// dispatch delivers a session result to the side it names.
func (e *Engine) dispatch(res noise.Result) {
	switch res.Op {
	case noise.OpSendToNetwork:
		if _, err := e.wire.Write(res.Data); err != nil {
			e.log.Warn("socket write failed", "error", err)
		}
	case noise.OpWriteToTunnel:
		if _, err := e.tun.Write(res.Data); err != nil {
			e.log.Warn("tunnel write failed", "error", err)
		}
	}
}
