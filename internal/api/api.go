// Package api serves the engine's output to the home-automation entity
// layer: current status, countdown to the next change and calendar events
// per group.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/omelnyk/svitlo/internal/coordinator"
	"github.com/omelnyk/svitlo/internal/schedule"
)

// Engine is the part of the coordinator the API reads from. All reads are
// synchronous and non-blocking: they never wait on a refresh in progress.
type Engine interface {
	Groups() []string
	Timeline(group string) (schedule.Timeline, bool)
	Staleness(group string) (coordinator.Staleness, bool)
	CurrentStatus(group string, now time.Time) (schedule.Snapshot, error)
	Countdown(group string, now time.Time) (time.Duration, error)
}

type Server struct {
	engine  Engine
	aliases map[string]string
	logger  *slog.Logger
	router  chi.Router
}

func New(engine Engine, aliases map[string]string, logger *slog.Logger) *Server {
	s := Server{
		engine:  engine,
		aliases: aliases,
		logger:  logger,
		router:  chi.NewRouter(),
	}
	s.router.Use(middleware.Recoverer)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/groups", s.groups)
		r.Route("/groups/{group}", func(r chi.Router) {
			r.Get("/status", s.status)
			r.Get("/countdown", s.countdown)
			r.Get("/calendar", s.calendar)
		})
	})
	return &s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type groupInfo struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

func (s *Server) groups(w http.ResponseWriter, _ *http.Request) {
	groups := make([]groupInfo, 0, len(s.engine.Groups()))
	for _, group := range s.engine.Groups() {
		groups = append(groups, groupInfo{ID: group, Name: s.aliases[group]})
	}
	s.writeJSON(w, http.StatusOK, groups)
}

type statusResponse struct {
	Group        string                `json:"group"`
	State        string                `json:"state"`
	IntervalEnd  *time.Time            `json:"interval_end,omitempty"`
	NextState    *schedule.State       `json:"next_state,omitempty"`
	NextChangeAt *time.Time            `json:"next_change_at,omitempty"`
	Staleness    coordinator.Staleness `json:"staleness"`
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")
	snapshot, err := s.engine.CurrentStatus(group, time.Now())
	if err != nil {
		s.statusError(w, group, err)
		return
	}

	staleness, _ := s.engine.Staleness(group)
	response := statusResponse{
		Group:       group,
		State:       snapshot.State.String(),
		IntervalEnd: &snapshot.IntervalEnd,
		Staleness:   staleness,
	}
	if snapshot.HasNext {
		response.NextState = &snapshot.NextState
		response.NextChangeAt = &snapshot.NextChangeAt
	}
	s.writeJSON(w, http.StatusOK, response)
}

// statusError renders NoData as an explicit "unknown" state: guessing a
// power state without covering data is worse than admitting we don't know.
func (s *Server) statusError(w http.ResponseWriter, group string, err error) {
	switch {
	case errors.Is(err, coordinator.ErrUnknownGroup):
		http.Error(w, "unknown group", http.StatusNotFound)
	case errors.Is(err, schedule.ErrNoData):
		staleness, _ := s.engine.Staleness(group)
		s.writeJSON(w, http.StatusServiceUnavailable, statusResponse{
			Group:     group,
			State:     "unknown",
			Staleness: staleness,
		})
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

type countdownResponse struct {
	Group        string     `json:"group"`
	Seconds      *int64     `json:"seconds,omitempty"`
	NextChangeAt *time.Time `json:"next_change_at,omitempty"`
}

func (s *Server) countdown(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")
	now := time.Now()
	remaining, err := s.engine.Countdown(group, now)
	if err != nil {
		if errors.Is(err, coordinator.ErrNoNextChange) {
			// horizon ends at the current interval: the countdown is unknown
			// but the status is not an error
			s.writeJSON(w, http.StatusOK, countdownResponse{Group: group})
			return
		}
		s.statusError(w, group, err)
		return
	}

	seconds := int64(remaining.Seconds())
	at := now.Add(remaining)
	s.writeJSON(w, http.StatusOK, countdownResponse{Group: group, Seconds: &seconds, NextChangeAt: &at})
}

type calendarEvent struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Title string    `json:"title"`
}

func (s *Server) calendar(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")
	timeline, ok := s.engine.Timeline(group)
	if !ok {
		s.statusError(w, group, schedule.ErrNoData)
		return
	}

	from, to := timeline.Start(), timeline.End()
	var err error
	if from, err = timeParam(r, "from", from); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if to, err = timeParam(r, "to", to); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// only outage intervals become events: an always-on calendar would bury
	// the information the card is there to show
	events := make([]calendarEvent, 0)
	for _, interval := range timeline.Intervals() {
		if interval.State == schedule.On {
			continue
		}
		if !interval.Start.Before(to) || !interval.End.After(from) {
			continue
		}
		events = append(events, calendarEvent{
			Start: interval.Start,
			End:   interval.End,
			Title: eventTitle(interval.State),
		})
	}
	s.writeJSON(w, http.StatusOK, events)
}

func eventTitle(state schedule.State) string {
	if state == schedule.MaybeOff {
		return "Possible outage"
	}
	return "Planned outage"
}

func timeParam(r *http.Request, name string, fallback time.Time) (time.Time, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return fallback, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, errors.New("invalid " + name + " parameter")
	}
	return t, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to write response", slog.Any("err", err))
	}
}
