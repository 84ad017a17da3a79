// Package schedule models the recurring weekly open hours of a bookable spot
// and answers whether a requested range fits inside them.
package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrInvalidSchedule is returned for malformed weekdays, times or entry sets.
var ErrInvalidSchedule = errors.New("invalid schedule")

const clockLayout = "15:04"

// TimeOfDay is an offset from local midnight.
type TimeOfDay time.Duration

// ParseTimeOfDay parses "HH:MM" in 24h format.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse(clockLayout, strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: invalid time '%s', expected HH:MM", ErrInvalidSchedule, s)
	}
	return TimeOfDay(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute), nil
}

// Of returns the local time-of-day of t, including seconds and sub-second precision.
func Of(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return TimeOfDay(time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(t.Nanosecond()))
}

// String formats the value as HH:MM.
func (t TimeOfDay) String() string {
	d := time.Duration(t)
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday accepts full English names ("Monday") or their three-letter prefix, case-insensitive.
func ParseWeekday(s string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if d, ok := weekdays[key]; ok {
		return d, nil
	}
	if len(key) == 3 {
		for name, d := range weekdays {
			if strings.HasPrefix(name, key) {
				return d, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: unknown weekday '%s'", ErrInvalidSchedule, s)
}

// Entry is the open range of one weekday.
type Entry struct {
	Day   time.Weekday
	Open  TimeOfDay
	Close TimeOfDay
}

// EntrySpec is the textual form of an Entry used in config files and request bodies.
type EntrySpec struct {
	Day   string `yaml:"day" json:"day" validate:"required"`
	Open  string `yaml:"open" json:"open" validate:"required"`
	Close string `yaml:"close" json:"close" validate:"required"`
}

// Weekly is a validated set of at most one Entry per weekday. The zero value is closed every day.
type Weekly struct {
	entries []Entry
}

// New validates entries and builds a Weekly schedule.
func New(entries ...Entry) (Weekly, error) {
	seen := make(map[time.Weekday]bool, len(entries))
	out := make([]Entry, 0, len(entries))
	for i, e := range entries {
		if e.Day < time.Sunday || e.Day > time.Saturday {
			return Weekly{}, fmt.Errorf("%w: entry[%d]: invalid weekday %d", ErrInvalidSchedule, i, e.Day)
		}
		if seen[e.Day] {
			return Weekly{}, fmt.Errorf("%w: entry[%d]: duplicate weekday %s", ErrInvalidSchedule, i, e.Day)
		}
		seen[e.Day] = true
		if e.Open < 0 || time.Duration(e.Close) > 24*time.Hour {
			return Weekly{}, fmt.Errorf("%w: entry[%d]: time out of day range", ErrInvalidSchedule, i)
		}
		if e.Open >= e.Close {
			return Weekly{}, fmt.Errorf("%w: entry[%d]: close must be after open", ErrInvalidSchedule, i)
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return Weekly{entries: out}, nil
}

// FromSpecs parses and validates textual entries.
func FromSpecs(specs []EntrySpec) (Weekly, error) {
	entries := make([]Entry, 0, len(specs))
	for i, s := range specs {
		day, err := ParseWeekday(s.Day)
		if err != nil {
			return Weekly{}, fmt.Errorf("entry[%d].day: %w", i, err)
		}
		open, err := ParseTimeOfDay(s.Open)
		if err != nil {
			return Weekly{}, fmt.Errorf("entry[%d].open: %w", i, err)
		}
		closeAt, err := ParseTimeOfDay(s.Close)
		if err != nil {
			return Weekly{}, fmt.Errorf("entry[%d].close: %w", i, err)
		}
		entries = append(entries, Entry{Day: day, Open: open, Close: closeAt})
	}
	return New(entries...)
}

// Entries returns a copy of the entries ordered Sunday to Saturday.
func (w Weekly) Entries() []Entry {
	return append([]Entry(nil), w.entries...)
}

// Specs returns the textual form of the schedule.
func (w Weekly) Specs() []EntrySpec {
	specs := make([]EntrySpec, 0, len(w.entries))
	for _, e := range w.entries {
		specs = append(specs, EntrySpec{Day: e.Day.String(), Open: e.Open.String(), Close: e.Close.String()})
	}
	return specs
}

// IsEmpty reports whether the schedule has no open day.
func (w Weekly) IsEmpty() bool {
	return len(w.entries) == 0
}

// Entry returns the entry for day, if any.
func (w Weekly) Entry(day time.Weekday) (Entry, bool) {
	for _, e := range w.entries {
		if e.Day == day {
			return e, true
		}
	}
	return Entry{}, false
}

// Fits reports whether [start, end) on day lies within that day's open range.
func (w Weekly) Fits(day time.Weekday, start, end TimeOfDay) bool {
	e, ok := w.Entry(day)
	if !ok {
		return false
	}
	return start >= e.Open && end <= e.Close
}

// FitsInterval checks an absolute range against the schedule in loc.
// The weekday comes from start; a range ending on another local date never fits.
func (w Weekly) FitsInterval(start, end time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	s, e := start.In(loc), end.In(loc)
	sy, sm, sd := s.Date()
	ey, em, ed := e.Date()
	if sy != ey || sm != em || sd != ed {
		return false
	}
	return w.Fits(s.Weekday(), Of(s), Of(e))
}

// MarshalJSON encodes the schedule as a list of EntrySpec.
func (w Weekly) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.Specs())
}

// UnmarshalJSON decodes and validates a list of EntrySpec.
func (w *Weekly) UnmarshalJSON(data []byte) error {
	var specs []EntrySpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return err
	}
	parsed, err := FromSpecs(specs)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}
