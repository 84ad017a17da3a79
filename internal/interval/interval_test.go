package interval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name   string
		aStart time.Time
		aEnd   time.Time
		bStart time.Time
		bEnd   time.Time
		want   bool
	}{
		{"identical", at(10, 0), at(12, 0), at(10, 0), at(12, 0), true},
		{"partial left", at(9, 0), at(11, 0), at(10, 0), at(12, 0), true},
		{"partial right", at(11, 0), at(13, 0), at(10, 0), at(12, 0), true},
		{"contained", at(10, 30), at(11, 0), at(10, 0), at(12, 0), true},
		{"containing", at(9, 0), at(13, 0), at(10, 0), at(12, 0), true},
		{"touching end", at(8, 0), at(10, 0), at(10, 0), at(12, 0), false},
		{"touching start", at(12, 0), at(14, 0), at(10, 0), at(12, 0), false},
		{"disjoint", at(6, 0), at(7, 0), at(10, 0), at(12, 0), false},
		{"one nanosecond", at(10, 0).Add(-time.Nanosecond), at(10, 0).Add(time.Nanosecond), at(10, 0), at(12, 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(tt.aStart, tt.aEnd, tt.bStart, tt.bEnd))
			assert.Equal(t, tt.want, Overlaps(tt.bStart, tt.bEnd, tt.aStart, tt.aEnd), "overlap must be symmetric")
		})
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(at(10, 0), at(10, 1)))
	assert.False(t, Valid(at(10, 0), at(10, 0)))
	assert.False(t, Valid(at(11, 0), at(10, 0)))
}
