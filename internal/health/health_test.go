package health

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/omelnyk/svitlo/internal/coordinator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePoller struct {
	ch        chan coordinator.Update
	onRefresh func()
	refreshed atomic.Bool
}

func (f *fakePoller) Subscribe() chan coordinator.Update    { return f.ch }
func (f *fakePoller) Unsubscribe(_ chan coordinator.Update) {}

func (f *fakePoller) Refresh() {
	f.refreshed.Store(true)
	if f.onRefresh != nil {
		f.onRefresh()
	}
}

func TestHealth(t *testing.T) {
	p := fakePoller{ch: make(chan coordinator.Update)}
	h := New(&p, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error)
	go func() { errCh <- h.Run(ctx) }()

	// no update received yet: unhealthy, and a refresh is requested
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.True(t, p.refreshed.Load())

	p.ch <- coordinator.Update{
		Group:     "1.1",
		Staleness: coordinator.Staleness{State: coordinator.StateFresh, LastSuccess: time.Date(2026, time.August, 27, 9, 0, 0, 0, time.UTC)},
	}

	require.Eventually(t, func() bool {
		resp = httptest.NewRecorder()
		h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))
		return resp.Code == http.StatusOK
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, "application/json", resp.Header().Get("Content-Type"))
	assert.JSONEq(t, `{
  "1.1": {
    "state": "fresh",
    "last_success": "2026-08-27T09:00:00Z"
  }
}`, resp.Body.String())

	cancel()
	assert.NoError(t, <-errCh)
}

func TestHealth_RefreshDuringPublish(t *testing.T) {
	p := fakePoller{ch: make(chan coordinator.Update)}
	h := New(&p, slog.Default())

	// a refresh makes the poller deliver updates for both groups right away,
	// as the coordinator does when a poll is in flight
	p.onRefresh = func() {
		for _, group := range []string{"1.1", "2.1"} {
			p.ch <- coordinator.Update{Group: group, Staleness: coordinator.Staleness{State: coordinator.StateFresh}}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error)
	go func() { errCh <- h.Run(ctx) }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("health endpoint blocked while updates were being delivered")
	}

	assert.Eventually(t, func() bool {
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))
		return resp.Code == http.StatusOK
	}, time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-errCh)
}
