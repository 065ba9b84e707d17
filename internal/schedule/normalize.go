package schedule

import (
	"fmt"
	"sort"
	"time"
)

// NormalizeError reports a violation of the timeline invariant (contiguous,
// non-overlapping intervals). It indicates a defect in the provider data or
// in a parser, never an expected runtime condition.
type NormalizeError struct {
	Kind string // "gap" or "overlap"
	At   time.Time
}

func (e *NormalizeError) Error() string {
	return fmt.Sprintf("timeline %s at %s", e.Kind, e.At.Format(time.RFC3339))
}

// Normalize merges freshly parsed days into the previously cached timeline
// for the group.
//
// Revision policy: a day present in days replaces the cached intervals for
// that calendar day wholesale. Days only present in prev are retained, so a
// refresh that returns future data does not erase what just happened.
// Intervals whose End is more than retention before now are dropped.
//
// Normalize is deterministic: the same inputs always produce an identical
// Timeline.
func Normalize(group string, days []Day, prev Timeline, now time.Time, retention time.Duration) (Timeline, error) {
	merged := make(map[string][]Interval)
	for _, ivs := range splitByDay(prev.intervals) {
		for _, iv := range ivs {
			key := dayKey(iv.Start)
			merged[key] = append(merged[key], iv)
		}
	}
	for _, day := range days {
		merged[dayKey(day.Date)] = day.Intervals
	}

	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	cutoff := now.Add(-retention)
	var intervals []Interval
	for _, key := range keys {
		for _, iv := range merged[key] {
			if iv.End.Before(cutoff) {
				continue
			}
			intervals = append(intervals, iv)
		}
	}
	intervals = compress(intervals)

	if err := validate(intervals); err != nil {
		return Timeline{}, err
	}
	return Timeline{group: group, intervals: intervals}, nil
}

// dayKey identifies the calendar day an instant falls on, in that instant's
// own (provider) time zone.
func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// splitByDay cuts intervals at local midnight boundaries so that revision can
// replace individual days even after intervals were merged across midnight.
func splitByDay(intervals []Interval) [][]Interval {
	out := make([][]Interval, 0, len(intervals))
	for _, iv := range intervals {
		var pieces []Interval
		start := iv.Start
		for start.Before(iv.End) {
			next := startOfNextDay(start)
			if next.After(iv.End) {
				next = iv.End
			}
			pieces = append(pieces, Interval{Start: start, End: next, State: iv.State})
			start = next
		}
		out = append(out, pieces)
	}
	return out
}

func startOfNextDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
}

// compress merges adjacent intervals that share a state. Parsers already
// compress within a day; this joins runs across day boundaries and rejoins
// the pieces cut by splitByDay.
func compress(intervals []Interval) []Interval {
	out := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		if n := len(out); n > 0 && out[n-1].State == iv.State && out[n-1].End.Equal(iv.Start) {
			out[n-1].End = iv.End
			continue
		}
		out = append(out, iv)
	}
	return out
}

func validate(intervals []Interval) error {
	for i, iv := range intervals {
		if !iv.Start.Before(iv.End) {
			return &NormalizeError{Kind: "overlap", At: iv.Start}
		}
		if i == 0 {
			continue
		}
		prevEnd := intervals[i-1].End
		if iv.Start.Before(prevEnd) {
			return &NormalizeError{Kind: "overlap", At: iv.Start}
		}
		if iv.Start.After(prevEnd) {
			return &NormalizeError{Kind: "gap", At: prevEnd}
		}
	}
	return nil
}
