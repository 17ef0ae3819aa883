// Package testutil holds deterministic generators shared by package tests.
package testutil

import (
	"fmt"
	"sync"
	"time"
)

// FixedNow is a test clock that starts at a fixed instant and only moves
// when advanced explicitly. Its Now method plugs into any component that
// takes a `func() time.Time`.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type FixedNow struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedNow creates a clock pinned at t.
func NewFixedNow(t time.Time) *FixedNow {
	return &FixedNow{now: t}
}

// Now returns the current pinned instant.
func (c *FixedNow) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FixedNow) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// FixedIDs generates a predictable id sequence for deterministic tests.
//
// Each call to Next returns "<prefix>-<n>" with n starting at 1. Unlike a
// random UUID source, the same test run always produces the same ids, so
// snapshots and golden files stay byte-identical.
type FixedIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewFixedIDs creates a generator. An empty prefix defaults to "test-id".
func NewFixedIDs(prefix string) *FixedIDs {
	if prefix == "" {
		prefix = "test-id"
	}
	return &FixedIDs{prefix: prefix}
}

// Next returns the next id in sequence.
func (g *FixedIDs) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
