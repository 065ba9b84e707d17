package schedule

import (
	"errors"
	"sort"
	"time"
)

// ErrNoData means the requested instant falls outside the timeline's covered
// range: the cache is stale or not yet populated. Callers must report an
// unknown state rather than guess.
var ErrNoData = errors.New("no schedule data covers the requested instant")

// Snapshot is the answer to "what is happening at this instant". It is
// derived, never stored.
type Snapshot struct {
	State        State
	IntervalEnd  time.Time
	NextState    State
	NextChangeAt time.Time
	// HasNext is false when the timeline's horizon ends at IntervalEnd and
	// the next transition is unknown.
	HasNext bool
}

// Resolve locates the interval covering at and returns the current state and
// the next transition. It is a pure function of its inputs; callers pass
// "now" explicitly.
func Resolve(t Timeline, at time.Time) (Snapshot, error) {
	idx := sort.Search(len(t.intervals), func(i int) bool {
		return at.Before(t.intervals[i].End)
	})
	if idx == len(t.intervals) || !t.intervals[idx].contains(at) {
		return Snapshot{}, ErrNoData
	}

	snapshot := Snapshot{
		State:       t.intervals[idx].State,
		IntervalEnd: t.intervals[idx].End,
	}
	if idx+1 < len(t.intervals) {
		snapshot.NextState = t.intervals[idx+1].State
		snapshot.NextChangeAt = t.intervals[idx+1].Start
		snapshot.HasNext = true
	}
	return snapshot, nil
}
