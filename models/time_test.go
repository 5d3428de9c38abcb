package models

import "testing"

func TestMonotonicClockNeverGoesBackwards(t *testing.T) {
	c := NewMonotonicClock()
	prev := c.Next()
	for i := 0; i < 1000; i++ {
		next := c.Next()
		if !next.After(prev) {
			t.Fatalf("clock went backwards or stalled: prev=%v next=%v", prev, next)
		}
		prev = next
	}
}

func TestISO8601Micro7HasSevenFractionalDigits(t *testing.T) {
	c := NewMonotonicClock()
	got := ISO8601Micro7(c.Next())
	// "2006-01-02T15:04:05.0000000Z" is 28 runes long.
	if len(got) != len("2006-01-02T15:04:05.0000000Z") {
		t.Fatalf("ISO8601Micro7(%v) = %q, unexpected length", got, got)
	}
}
