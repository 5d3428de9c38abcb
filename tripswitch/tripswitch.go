// Package tripswitch implements the process-wide fail-fast latch of
// §4.7: once tripped, by repeated refresh failure or a configured
// critical exception, every externally facing query/write entry point
// must fail fast with ServiceUnavailable until the process restarts.
//
// A single atomic.Bool is process scope by design — §4.7 describes it
// as a latch for the whole process, not per-component — so any number
// of components (buffer, reader, shard client) can trip or consult it
// without coordinating with each other.
package tripswitch

import (
	"sync/atomic"

	"accessplane/logger"
)

var tripped atomic.Bool

// Trip engages the latch. reason is logged once at ERROR level; repeat
// calls after the first are no-ops (the latch does not record how many
// times it would have tripped).
func Trip(reason string) {
	if tripped.CompareAndSwap(false, true) {
		logger.Error("[TripSwitch] engaged: %s", reason)
	}
}

// Tripped reports whether the latch is currently engaged.
func Tripped() bool {
	return tripped.Load()
}

// Reset disengages the latch. Used after an operator-initiated recovery
// or, in tests, between scenarios.
func Reset() {
	tripped.Store(false)
}
