// Package health serves the refresh state of all groups as a JSON health
// endpoint.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"net/http"
	"sync"

	"github.com/omelnyk/svitlo/internal/coordinator"
)

// Poller is the update feed the health endpoint consumes.
type Poller interface {
	Subscribe() chan coordinator.Update
	Unsubscribe(ch chan coordinator.Update)
	Refresh()
}

type Health struct {
	Poller
	logger  *slog.Logger
	lock    sync.RWMutex
	markers map[string]coordinator.Staleness
}

func New(p Poller, logger *slog.Logger) *Health {
	return &Health{
		Poller:  p,
		logger:  logger,
		markers: make(map[string]coordinator.Staleness),
	}
}

func (h *Health) Run(ctx context.Context) error {
	h.logger.Debug("started")
	defer h.logger.Debug("stopped")

	ch := h.Poller.Subscribe()
	defer h.Poller.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-ch:
			h.lock.Lock()
			h.markers[update.Group] = update.Staleness
			h.lock.Unlock()
		}
	}
}

func (h *Health) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	// Refresh must not run under the lock: Run needs it to store the updates
	// that a refresh produces.
	h.lock.RLock()
	markers := make(map[string]coordinator.Staleness, len(h.markers))
	maps.Copy(markers, h.markers)
	h.lock.RUnlock()

	if len(markers) == 0 {
		http.Error(w, "no update yet", http.StatusServiceUnavailable)
		h.Poller.Refresh()
		return
	}

	w.Header().Set("Content-Type", "application/json")

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(markers); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
