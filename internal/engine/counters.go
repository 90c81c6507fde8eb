package engine

import "sync/atomic"

// Counters tracks cumulative tunnel traffic. Safe for concurrent use: the
// pump goroutine adds while status readers snapshot.
type Counters struct {
	rx atomic.Uint64
	tx atomic.Uint64
}

// AddRx records bytes received from the peer.
func (c *Counters) AddRx(n int) {
	c.rx.Add(uint64(n))
}

// AddTx records bytes sent toward the peer.
func (c *Counters) AddTx(n int) {
	c.tx.Add(uint64(n))
}

// Totals returns the cumulative received and sent byte counts.
func (c *Counters) Totals() (rx, tx uint64) {
	return c.rx.Load(), c.tx.Load()
}

// Reset zeroes both counters. Called when a new connection is established.
func (c *Counters) Reset() {
	c.rx.Store(0)
	c.tx.Store(0)
}
