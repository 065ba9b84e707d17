package schedule

import (
	"slices"
	"time"
)

// Timeline is the canonical, merged, ordered interval sequence for one group.
// A Timeline is immutable once built: the coordinator replaces it wholesale
// on each successful refresh and never mutates it in place, so concurrent
// readers never observe a half-updated schedule.
type Timeline struct {
	group     string
	intervals []Interval
}

func (t Timeline) Group() string {
	return t.group
}

// Intervals returns a copy of the timeline's intervals.
func (t Timeline) Intervals() []Interval {
	return slices.Clone(t.intervals)
}

func (t Timeline) IsEmpty() bool {
	return len(t.intervals) == 0
}

// Start returns the start of the covered range.
func (t Timeline) Start() time.Time {
	if len(t.intervals) == 0 {
		return time.Time{}
	}
	return t.intervals[0].Start
}

// End returns the end of the covered range.
func (t Timeline) End() time.Time {
	if len(t.intervals) == 0 {
		return time.Time{}
	}
	return t.intervals[len(t.intervals)-1].End
}
