package provider

import (
	"testing"
	"time"

	"github.com/omelnyk/svitlo/internal/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOblenergo(t *testing.T) {
	body := `{
  "queues": {
    "3": [
      {
        "date": "2026-08-27",
        "slots": [
          {"start": "08:00", "end": "08:30", "type": "OFF"},
          {"start": "08:30", "end": "10:00", "type": "SURE_OFF"},
          {"start": "18:00", "end": "21:30", "type": "PROBABLY_OFF"}
        ]
      }
    ]
  }
}`

	midnight := time.Date(2026, time.August, 27, 0, 0, 0, 0, time.UTC)
	days, err := parseOblenergo([]byte(body), "3", time.UTC)
	require.NoError(t, err)
	require.Len(t, days, 1)

	// gaps between outage windows are power on, adjacent equal windows merge
	assert.Equal(t, []schedule.Interval{
		{Start: midnight, End: midnight.Add(8 * time.Hour), State: schedule.On},
		{Start: midnight.Add(8 * time.Hour), End: midnight.Add(10 * time.Hour), State: schedule.Off},
		{Start: midnight.Add(10 * time.Hour), End: midnight.Add(18 * time.Hour), State: schedule.On},
		{Start: midnight.Add(18 * time.Hour), End: midnight.Add(21*time.Hour + 30*time.Minute), State: schedule.MaybeOff},
		{Start: midnight.Add(21*time.Hour + 30*time.Minute), End: midnight.Add(24 * time.Hour), State: schedule.On},
	}, days[0].Intervals)
}

func TestParseOblenergo_DayEndsAtMidnight(t *testing.T) {
	body := `{"queues":{"3":[{"date":"2026-08-27","slots":[{"start":"22:00","end":"24:00","type":"OFF"}]}]}}`

	midnight := time.Date(2026, time.August, 27, 0, 0, 0, 0, time.UTC)
	days, err := parseOblenergo([]byte(body), "3", time.UTC)
	require.NoError(t, err)
	require.Len(t, days, 1)
	last := days[0].Intervals[len(days[0].Intervals)-1]
	assert.Equal(t, schedule.Off, last.State)
	assert.Equal(t, midnight.AddDate(0, 0, 1), last.End)
}

func TestParseOblenergo_DSTTransitions(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Kyiv")
	require.NoError(t, err)

	t.Run("clocks forward", func(t *testing.T) {
		// 2026-03-29 has 23 wall-clock hours; a slot ending "24:00" is valid
		body := `{"queues":{"3":[{"date":"2026-03-29","slots":[{"start":"22:00","end":"24:00","type":"OFF"}]}]}}`
		days, err := parseOblenergo([]byte(body), "3", loc)
		require.NoError(t, err)
		require.Len(t, days, 1)

		midnight := time.Date(2026, time.March, 29, 0, 0, 0, 0, loc)
		intervals := days[0].Intervals
		assert.Equal(t, midnight, intervals[0].Start)
		assert.Equal(t, midnight.AddDate(0, 0, 1), intervals[len(intervals)-1].End)
		assert.Equal(t, 23*time.Hour, intervals[len(intervals)-1].End.Sub(intervals[0].Start))
	})

	t.Run("slot erased by the clock jump", func(t *testing.T) {
		// 03:00-04:00 does not exist on the short day: the slot is dropped,
		// not an error
		body := `{"queues":{"3":[{"date":"2026-03-29","slots":[{"start":"03:00","end":"04:00","type":"OFF"}]}]}}`
		days, err := parseOblenergo([]byte(body), "3", loc)
		require.NoError(t, err)
		require.Len(t, days, 1)
		require.Len(t, days[0].Intervals, 1)
		assert.Equal(t, schedule.On, days[0].Intervals[0].State)
	})

	t.Run("clocks back", func(t *testing.T) {
		body := `{"queues":{"3":[{"date":"2026-10-25","slots":[{"start":"03:00","end":"05:00","type":"OFF"}]}]}}`
		days, err := parseOblenergo([]byte(body), "3", loc)
		require.NoError(t, err)
		require.Len(t, days, 1)

		midnight := time.Date(2026, time.October, 25, 0, 0, 0, 0, loc)
		intervals := days[0].Intervals
		assert.Equal(t, midnight, intervals[0].Start)
		assert.Equal(t, midnight.AddDate(0, 0, 1), intervals[len(intervals)-1].End)
		assert.Equal(t, 25*time.Hour, intervals[len(intervals)-1].End.Sub(intervals[0].Start))
		for i := 1; i < len(intervals); i++ {
			assert.True(t, intervals[i].Start.Equal(intervals[i-1].End))
		}
	})
}

func TestParseOblenergo_Errors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		group string
		err   error
	}{
		{
			name:  "unknown queue",
			body:  `{"queues":{}}`,
			group: "3",
			err:   &ParseError{},
		},
		{
			name:  "no days published",
			body:  `{"queues":{"3":[]}}`,
			group: "3",
			err:   ErrNotPublished,
		},
		{
			name:  "slots out of order",
			body:  `{"queues":{"3":[{"date":"2026-08-27","slots":[{"start":"10:00","end":"12:00","type":"OFF"},{"start":"08:00","end":"09:00","type":"OFF"}]}]}}`,
			group: "3",
			err:   &ParseError{},
		},
		{
			name:  "inverted slot",
			body:  `{"queues":{"3":[{"date":"2026-08-27","slots":[{"start":"12:00","end":"10:00","type":"OFF"}]}]}}`,
			group: "3",
			err:   &ParseError{},
		},
		{
			name:  "slot past midnight",
			body:  `{"queues":{"3":[{"date":"2026-08-27","slots":[{"start":"23:00","end":"25:00","type":"OFF"}]}]}}`,
			group: "3",
			err:   &ParseError{},
		},
		{
			name:  "unknown outage type",
			body:  `{"queues":{"3":[{"date":"2026-08-27","slots":[{"start":"08:00","end":"10:00","type":"BROWNOUT"}]}]}}`,
			group: "3",
			err:   &ParseError{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseOblenergo([]byte(tt.body), tt.group, time.UTC)
			require.Error(t, err)
			var parseErr *ParseError
			switch tt.err.(type) {
			case *ParseError:
				assert.ErrorAs(t, err, &parseErr)
			default:
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}

func TestClockTime(t *testing.T) {
	midnight := time.Date(2026, time.August, 27, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		value   string
		want    time.Duration
		wantErr bool
	}{
		{value: "00:00", want: 0},
		{value: "08:30", want: 8*time.Hour + 30*time.Minute},
		{value: "24:00", want: 24 * time.Hour},
		{value: "24:30", wantErr: true},
		{value: "25:00", wantErr: true},
		{value: "08:60", wantErr: true},
		{value: "0830", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := clockTime(midnight, tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, midnight.Add(tt.want), got)
		})
	}
}

func TestNew(t *testing.T) {
	m := NewRequestMetrics("svitlo", "test", nil)

	for _, name := range []string{"yasno", "oblenergo"} {
		client, err := New(name, "http://localhost:8080", time.Second, time.UTC, m)
		require.NoError(t, err)
		assert.NotNil(t, client)
	}

	_, err := New("dtek", "http://localhost:8080", time.Second, time.UTC, m)
	assert.Error(t, err)
}
