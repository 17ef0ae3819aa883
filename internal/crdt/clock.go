package crdt

import "sync/atomic"

// Clock is the document's lamport clock for stamping field writes.
//
// Every local field write is stamped with a strictly increasing value from
// this clock. Remote stamps are folded back in via Observe so that writes
// made after a merge always dominate everything already seen.
//
// Thread-safety: safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at a specific stamp.
// Used when rehydrating a document from a snapshot.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Tick returns the next stamp and advances the clock.
func (c *Clock) Tick() int64 {
	return c.seq.Add(1)
}

// Observe folds a remotely-seen stamp into the clock so that subsequent
// local Ticks are greater than anything observed.
func (c *Clock) Observe(stamp int64) {
	for {
		cur := c.seq.Load()
		if stamp <= cur || c.seq.CompareAndSwap(cur, stamp) {
			return
		}
	}
}

// Current returns the current stamp without advancing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
