// Package schedule holds the canonical outage timeline for a group and the
// pure functions that build and query it.
package schedule

import (
	"encoding/json"
	"fmt"
	"time"
)

// State is the power state of a group during one interval.
type State int

const (
	On State = iota
	Off
	// MaybeOff is the providers' "possible outage" designation. It is a
	// state in its own right: callers decide how to render the ambiguity.
	MaybeOff
)

func (s State) String() string {
	switch s {
	case On:
		return "on"
	case Off:
		return "off"
	case MaybeOff:
		return "maybe_off"
	}
	return "unknown"
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(body []byte) error {
	var value string
	if err := json.Unmarshal(body, &value); err != nil {
		return err
	}
	switch value {
	case "on":
		*s = On
	case "off":
		*s = Off
	case "maybe_off":
		*s = MaybeOff
	default:
		return fmt.Errorf("invalid state %q", value)
	}
	return nil
}

// Interval is a contiguous time span with one power state. Start is
// inclusive, End exclusive. Start < End always holds for parsed intervals.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	State State     `json:"state"`
}

func (i Interval) contains(at time.Time) bool {
	return !at.Before(i.Start) && at.Before(i.End)
}

// Day is one calendar day's worth of intervals, as produced by a provider
// parser: Date is midnight in the provider's time zone and Intervals cover
// the full day, run-length compressed.
type Day struct {
	Date      time.Time
	Intervals []Interval
}
