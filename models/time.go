package models

import "time"

// TimeTick is the minimum representable increment of an Event's
// occurredAt field: 100 nanoseconds, giving the 7 fractional digits of
// the wire format's "ISO8601 with 7-digit fractional seconds" (§6) —
// the same tick size .NET's DateTime uses, which is what the original
// timestamps were minted from.
const TimeTick = 100 * time.Nanosecond

// ISO8601Micro7 formats t as UTC ISO8601 with exactly 7 fractional
// digits, e.g. "2024-01-15T10:30:45.1234567Z".
func ISO8601Micro7(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.0000000Z")
}

// MonotonicClock hands out strictly non-decreasing timestamps for a
// single writer. §3: "occurredAt is assigned at the writer at enqueue
// time and is monotonically non-decreasing per writer." Each call
// advances by at least one TimeTick past the previous call, even under
// clock skew or repeated calls within the same tick.
type MonotonicClock struct {
	last time.Time
}

// Next returns the next timestamp: max(now, last+TimeTick).
func (c *MonotonicClock) Next() time.Time {
	now := time.Now().UTC()
	next := c.last.Add(TimeTick)
	if now.After(next) {
		next = now
	}
	c.last = next
	return next
}

// NewMonotonicClock creates a clock seeded at the current time.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{last: time.Now().UTC()}
}
