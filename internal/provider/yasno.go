package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/omelnyk/svitlo/internal/schedule"
)

// Yasno fetches schedules in the yasno.com.ua format: per group, a list of
// days, each with 24 hourly state codes.
type Yasno struct {
	URL        string
	HTTPClient *http.Client
	Location   *time.Location
}

var _ Client = &Yasno{}

type yasnoPayload struct {
	UpdatedOn string                `json:"updatedOn"`
	Groups    map[string][]yasnoDay `json:"groups"`
}

type yasnoDay struct {
	Date  string   `json:"date"`
	Slots []string `json:"slots"`
}

func (y *Yasno) GetSchedule(ctx context.Context, group string) ([]schedule.Day, error) {
	body, err := fetchPayload(ctx, y.HTTPClient, y.URL)
	if err != nil {
		return nil, err
	}
	return parseYasno(body, group, y.Location)
}

func parseYasno(body []byte, group string, loc *time.Location) ([]schedule.Day, error) {
	var payload yasnoPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &ParseError{Reason: "invalid payload: " + err.Error()}
	}

	groupDays, ok := payload.Groups[group]
	if !ok {
		return nil, &ParseError{Reason: fmt.Sprintf("group %q not in payload", group)}
	}
	if len(groupDays) == 0 {
		return nil, ErrNotPublished
	}

	days := make([]schedule.Day, 0, len(groupDays))
	for _, day := range groupDays {
		date, err := time.ParseInLocation("2006-01-02", day.Date, loc)
		if err != nil {
			return nil, &ParseError{Reason: fmt.Sprintf("invalid date %q", day.Date)}
		}
		if len(day.Slots) != 24 {
			return nil, &ParseError{Reason: fmt.Sprintf("%s: expected 24 slots, got %d", day.Date, len(day.Slots))}
		}

		states := make([]schedule.State, len(day.Slots))
		for i, code := range day.Slots {
			state, err := yasnoState(code)
			if err != nil {
				return nil, &ParseError{Reason: fmt.Sprintf("%s: slot %d: %s", day.Date, i, err)}
			}
			states[i] = state
		}
		days = append(days, makeDay(date, states))
	}
	return days, nil
}

func yasnoState(code string) (schedule.State, error) {
	switch code {
	case "on":
		return schedule.On, nil
	case "off":
		return schedule.Off, nil
	case "maybe":
		return schedule.MaybeOff, nil
	}
	return schedule.On, fmt.Errorf("unrecognized state code %q", code)
}

// makeDay expands fixed-width slot states into intervals anchored to the
// day's wall clock, collapsing adjacent slots that share a state. Slot
// boundaries use calendar arithmetic, not duration offsets: a DST transition
// day has 23 or 25 wall-clock hours and must still end exactly where the next
// day starts.
func makeDay(date time.Time, states []schedule.State) schedule.Day {
	year, month, dayOfMonth := date.Date()
	slotMinutes := 24 * 60 / len(states)
	boundary := func(i int) time.Time {
		return time.Date(year, month, dayOfMonth, 0, i*slotMinutes, 0, 0, date.Location())
	}

	intervals := make([]schedule.Interval, 0, len(states))
	for i, state := range states {
		start, end := boundary(i), boundary(i+1)
		if !start.Before(end) {
			// the slot falls in the hour skipped when DST starts
			continue
		}
		if n := len(intervals); n > 0 && intervals[n-1].State == state {
			intervals[n-1].End = end
			continue
		}
		intervals = append(intervals, schedule.Interval{Start: start, End: end, State: state})
	}
	return schedule.Day{Date: date, Intervals: intervals}
}
