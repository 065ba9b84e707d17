package coordinator

import (
	"encoding/json"
	"time"
)

// FetchState is the refresh state machine for one group.
type FetchState int

const (
	// StateEmpty: no refresh has been attempted yet.
	StateEmpty FetchState = iota
	// StateFresh: the last refresh succeeded.
	StateFresh
	// StateStale: the last refresh failed but an older timeline is still
	// being served.
	StateStale
	// StateError: refreshes have failed and there is no timeline to serve.
	StateError
)

func (s FetchState) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Staleness records whether the cached timeline for a group is still
// trustworthy.
type Staleness struct {
	State       FetchState
	LastSuccess time.Time
	LastError   error
}

// IsStale reports whether the cached data could not be refreshed on the last
// attempt.
func (s Staleness) IsStale() bool {
	return s.State == StateStale || s.State == StateError
}

func (s Staleness) MarshalJSON() ([]byte, error) {
	out := struct {
		State       string     `json:"state"`
		LastSuccess *time.Time `json:"last_success,omitempty"`
		LastError   string     `json:"last_error,omitempty"`
	}{
		State: s.State.String(),
	}
	if !s.LastSuccess.IsZero() {
		out.LastSuccess = &s.LastSuccess
	}
	if s.LastError != nil {
		out.LastError = s.LastError.Error()
	}
	return json.Marshal(out)
}
