// Package interval holds the half-open time range predicates shared by booking and discovery.
package interval

import "time"

// Valid reports whether [start, end) is a non-empty range.
func Valid(start, end time.Time) bool {
	return start.Before(end)
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) share an instant.
// Touching ranges (aEnd == bStart) do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
