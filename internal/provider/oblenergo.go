package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/omelnyk/svitlo/internal/schedule"
)

// Oblenergo fetches schedules in the oblenergo format: per queue, a list of
// days carrying only the outage windows as "HH:MM" slots. Time not covered
// by a slot is power on.
type Oblenergo struct {
	URL        string
	HTTPClient *http.Client
	Location   *time.Location
}

var _ Client = &Oblenergo{}

type oblenergoPayload struct {
	Queues map[string][]oblenergoDay `json:"queues"`
}

type oblenergoDay struct {
	Date  string          `json:"date"`
	Slots []oblenergoSlot `json:"slots"`
}

type oblenergoSlot struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Type  string `json:"type"`
}

func (o *Oblenergo) GetSchedule(ctx context.Context, group string) ([]schedule.Day, error) {
	body, err := fetchPayload(ctx, o.HTTPClient, o.URL)
	if err != nil {
		return nil, err
	}
	return parseOblenergo(body, group, o.Location)
}

func parseOblenergo(body []byte, group string, loc *time.Location) ([]schedule.Day, error) {
	var payload oblenergoPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &ParseError{Reason: "invalid payload: " + err.Error()}
	}

	queueDays, ok := payload.Queues[group]
	if !ok {
		return nil, &ParseError{Reason: fmt.Sprintf("queue %q not in payload", group)}
	}
	if len(queueDays) == 0 {
		return nil, ErrNotPublished
	}

	days := make([]schedule.Day, 0, len(queueDays))
	for _, day := range queueDays {
		date, err := time.ParseInLocation("2006-01-02", day.Date, loc)
		if err != nil {
			return nil, &ParseError{Reason: fmt.Sprintf("invalid date %q", day.Date)}
		}
		parsed, err := parseOblenergoDay(date, day)
		if err != nil {
			return nil, err
		}
		days = append(days, parsed)
	}
	return days, nil
}

func parseOblenergoDay(date time.Time, day oblenergoDay) (schedule.Day, error) {
	endOfDay := date.AddDate(0, 0, 1)

	intervals := make([]schedule.Interval, 0, 2*len(day.Slots)+1)
	cursor := date
	for _, slot := range day.Slots {
		start, err := clockTime(date, slot.Start)
		if err != nil {
			return schedule.Day{}, &ParseError{Reason: fmt.Sprintf("%s: %s", day.Date, err)}
		}
		end, err := clockTime(date, slot.End)
		if err != nil {
			return schedule.Day{}, &ParseError{Reason: fmt.Sprintf("%s: %s", day.Date, err)}
		}
		state, err := oblenergoState(slot.Type)
		if err != nil {
			return schedule.Day{}, &ParseError{Reason: fmt.Sprintf("%s: %s", day.Date, err)}
		}

		if end.Before(start) || start.Before(cursor) || end.After(endOfDay) {
			return schedule.Day{}, &ParseError{Reason: fmt.Sprintf("%s: slot %s-%s out of order", day.Date, slot.Start, slot.End)}
		}
		if start.Equal(end) {
			// the slot falls in the hour skipped when DST starts
			continue
		}

		if start.After(cursor) {
			intervals = append(intervals, schedule.Interval{Start: cursor, End: start, State: schedule.On})
		}
		if n := len(intervals); n > 0 && intervals[n-1].State == state && intervals[n-1].End.Equal(start) {
			intervals[n-1].End = end
		} else {
			intervals = append(intervals, schedule.Interval{Start: start, End: end, State: state})
		}
		cursor = end
	}
	if cursor.Before(endOfDay) {
		intervals = append(intervals, schedule.Interval{Start: cursor, End: endOfDay, State: schedule.On})
	}
	return schedule.Day{Date: date, Intervals: intervals}, nil
}

func oblenergoState(code string) (schedule.State, error) {
	switch code {
	case "OFF", "SURE_OFF":
		return schedule.Off, nil
	case "PROBABLY_OFF":
		return schedule.MaybeOff, nil
	}
	return schedule.On, fmt.Errorf("unrecognized outage type %q", code)
}

// clockTime anchors a "HH:MM" wall-clock value to the given day using
// calendar arithmetic, so slots line up with the wall clock on DST transition
// days. "24:00" is the end of the day.
func clockTime(date time.Time, value string) (time.Time, error) {
	hh, mm, ok := strings.Cut(value, ":")
	if !ok {
		return time.Time{}, fmt.Errorf("invalid time %q", value)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 24 {
		return time.Time{}, fmt.Errorf("invalid time %q", value)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 || (hour == 24 && minute != 0) {
		return time.Time{}, fmt.Errorf("invalid time %q", value)
	}
	year, month, dayOfMonth := date.Date()
	return time.Date(year, month, dayOfMonth, hour, minute, 0, 0, date.Location()), nil
}
