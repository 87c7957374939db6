package fuser

import "time"

// Wire timestamps are a signed 64-bit second count paired with an unsigned
// nanosecond remainder in [0, 1e9). Pre-epoch times have a negative second
// count and a still-positive remainder, which matches how time.Time stores
// its wall clock, so the round trip is exact.

// SplitTime breaks t into its wire representation. The zero time maps to
// (0, 0).
func SplitTime(t time.Time) (sec int64, nsec uint32) {
	if t.IsZero() {
		return 0, 0
	}
	return t.Unix(), uint32(t.Nanosecond())
}

// MakeTime rebuilds a wall-clock time from its wire representation.
func MakeTime(sec int64, nsec uint32) time.Time {
	return time.Unix(sec, int64(nsec))
}

// SplitDuration breaks a cache TTL into its wire representation. Negative
// durations clamp to zero.
func SplitDuration(d time.Duration) (sec uint64, nsec uint32) {
	if d <= 0 {
		return 0, 0
	}
	rem := d - d.Truncate(time.Second)
	return uint64(d / time.Second), uint32(rem.Nanoseconds())
}
