package engine

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilnet/veil/internal/adapter"
	"github.com/veilnet/veil/internal/noise"
)

type fakeTunnel struct {
	pending [][]byte
	written [][]byte
	closed  bool
}

func (f *fakeTunnel) TryRead(buf []byte) (int, error) {
	if len(f.pending) == 0 {
		return 0, adapter.ErrNoPacket
	}
	pkt := f.pending[0]
	f.pending = f.pending[1:]
	return copy(buf, pkt), nil
}

func (f *fakeTunnel) Write(pkt []byte) (int, error) {
	f.written = append(f.written, append([]byte(nil), pkt...))
	return len(pkt), nil
}

func (f *fakeTunnel) Close() error {
	f.closed = true
	return nil
}

type fakeWire struct {
	pending [][]byte
	written [][]byte
	closed  bool
}

func (f *fakeWire) TryRead(buf []byte) (int, error) {
	if len(f.pending) == 0 {
		return 0, adapter.ErrNoPacket
	}
	pkt := f.pending[0]
	f.pending = f.pending[1:]
	return copy(buf, pkt), nil
}

func (f *fakeWire) Write(pkt []byte) (int, error) {
	f.written = append(f.written, append([]byte(nil), pkt...))
	return len(pkt), nil
}

func (f *fakeWire) Close() error {
	f.closed = true
	return nil
}

// fakeSession marks packets instead of encrypting them and can hold timer
// output for the next tick.
type fakeSession struct {
	timerOut [][]byte
	closed   bool
}

func (f *fakeSession) Encapsulate(pkt []byte) (noise.Result, error) {
	return noise.Result{Op: noise.OpSendToNetwork, Data: append([]byte("enc:"), pkt...)}, nil
}

func (f *fakeSession) Decapsulate(pkt []byte) (noise.Result, error) {
	return noise.Result{Op: noise.OpWriteToTunnel, Data: append([]byte("dec:"), pkt...)}, nil
}

func (f *fakeSession) TickTimers() (noise.Result, error) {
	if len(f.timerOut) == 0 {
		return noise.Result{Op: noise.OpNone}, nil
	}
	out := f.timerOut[0]
	f.timerOut = f.timerOut[1:]
	return noise.Result{Op: noise.OpSendToNetwork, Data: out}, nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func newTestEngine(tun *fakeTunnel, wire *fakeWire, sess *fakeSession) *Engine {
	return New(tun, wire, sess, &Counters{}, slog.Default())
}

func TestStep_CountsOutboundBytes(t *testing.T) {
	tun := &fakeTunnel{pending: [][]byte{
		bytes.Repeat([]byte{0xAA}, 100),
		bytes.Repeat([]byte{0xBB}, 200),
	}}
	wire := &fakeWire{}
	e := newTestEngine(tun, wire, &fakeSession{})

	buf := make([]byte, maxPacketSize)
	assert.True(t, e.step(buf))
	assert.True(t, e.step(buf))

	_, tx := e.Counters().Totals()
	assert.Equal(t, uint64(300), tx)

	require.Len(t, wire.written, 2)
	assert.True(t, bytes.HasPrefix(wire.written[0], []byte("enc:")))
}

func TestStep_CountsInboundBytes(t *testing.T) {
	tun := &fakeTunnel{}
	wire := &fakeWire{pending: [][]byte{bytes.Repeat([]byte{0xCC}, 150)}}
	e := newTestEngine(tun, wire, &fakeSession{})

	buf := make([]byte, maxPacketSize)
	assert.True(t, e.step(buf))

	rx, _ := e.Counters().Totals()
	assert.Equal(t, uint64(150), rx)

	require.Len(t, tun.written, 1)
	assert.True(t, bytes.HasPrefix(tun.written[0], []byte("dec:")))
}

func TestStep_TimerOutputGoesToNetwork(t *testing.T) {
	wire := &fakeWire{}
	sess := &fakeSession{timerOut: [][]byte{[]byte("keepalive")}}
	e := newTestEngine(&fakeTunnel{}, wire, sess)

	buf := make([]byte, maxPacketSize)
	assert.True(t, e.step(buf))
	assert.False(t, e.step(buf))

	require.Len(t, wire.written, 1)
	assert.Equal(t, []byte("keepalive"), wire.written[0])
}

func TestStep_IdleMovesNothing(t *testing.T) {
	e := newTestEngine(&fakeTunnel{}, &fakeWire{}, &fakeSession{})
	buf := make([]byte, maxPacketSize)
	assert.False(t, e.step(buf))
}

func TestStartStop_ClosesComponents(t *testing.T) {
	tun := &fakeTunnel{pending: [][]byte{[]byte("ping")}}
	wire := &fakeWire{}
	sess := &fakeSession{}
	e := newTestEngine(tun, wire, sess)

	e.Start()
	require.Eventually(t, func() bool {
		_, tx := e.Counters().Totals()
		return tx == 4
	}, time.Second, time.Millisecond)
	e.Stop()

	assert.True(t, sess.closed)
	assert.True(t, wire.closed)
	assert.True(t, tun.closed)

	// Stop is idempotent.
	e.Stop()
}

func TestStartResetsCounters(t *testing.T) {
	e := newTestEngine(&fakeTunnel{}, &fakeWire{}, &fakeSession{})
	e.Counters().AddRx(10)
	e.Counters().AddTx(20)

	e.Start()
	defer e.Stop()

	require.Eventually(t, func() bool {
		rx, tx := e.Counters().Totals()
		return rx == 0 && tx == 0
	}, time.Second, time.Millisecond)
}
