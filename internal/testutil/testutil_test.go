package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedNow_AdvancesOnlyExplicitly(t *testing.T) {
	start := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	clock := NewFixedNow(start)

	assert.Equal(t, start, clock.Now())
	assert.Equal(t, start, clock.Now(), "repeated reads do not move the clock")

	clock.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), clock.Now())
}

func TestFixedIDs_Sequence(t *testing.T) {
	g := NewFixedIDs("cmd")
	assert.Equal(t, "cmd-1", g.Next())
	assert.Equal(t, "cmd-2", g.Next())

	d := NewFixedIDs("")
	assert.Equal(t, "test-id-1", d.Next())
}
