// Package collector exports the cached outage schedules as Prometheus
// metrics.
package collector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/omelnyk/svitlo/internal/coordinator"
	"github.com/omelnyk/svitlo/internal/schedule"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	groupPowerState = prometheus.NewDesc(
		prometheus.BuildFQName("svitlo", "group", "power_state"),
		"Current power state of the group. Always 1. Label 'state' carries the state",
		[]string{"group", "state"},
		nil,
	)
	groupNextChange = prometheus.NewDesc(
		prometheus.BuildFQName("svitlo", "group", "next_change_timestamp_seconds"),
		"Time of the group's next scheduled state change",
		[]string{"group"},
		nil,
	)
	scheduleStale = prometheus.NewDesc(
		prometheus.BuildFQName("svitlo", "schedule", "stale"),
		"1 if the cached schedule could not be refreshed on the last attempt",
		[]string{"group"},
		nil,
	)
	scheduleLastSuccess = prometheus.NewDesc(
		prometheus.BuildFQName("svitlo", "schedule", "last_success_timestamp_seconds"),
		"Time of the last successful schedule refresh",
		[]string{"group"},
		nil,
	)
)

// Poller is the update feed the collector consumes.
type Poller interface {
	Subscribe() chan coordinator.Update
	Unsubscribe(ch chan coordinator.Update)
}

// Collector caches the latest update per group and converts it to metrics on
// scrape.
type Collector struct {
	Poller Poller
	Logger *slog.Logger

	refreshErrors *prometheus.CounterVec
	lock          sync.RWMutex
	updates       map[string]coordinator.Update
}

func New(p Poller, logger *slog.Logger) *Collector {
	return &Collector{
		Poller: p,
		Logger: logger,
		refreshErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prometheus.BuildFQName("svitlo", "schedule", "refresh_errors_total"),
			Help: "Number of failed schedule refresh attempts",
		}, []string{"group"}),
		updates: make(map[string]coordinator.Update),
	}
}

func (c *Collector) Run(ctx context.Context) error {
	c.Logger.Debug("started")
	defer c.Logger.Debug("stopped")

	ch := c.Poller.Subscribe()
	defer c.Poller.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-ch:
			c.process(update)
		}
	}
}

func (c *Collector) process(update coordinator.Update) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.updates[update.Group] = update
	if update.Staleness.IsStale() {
		c.refreshErrors.WithLabelValues(update.Group).Inc()
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- groupPowerState
	ch <- groupNextChange
	ch <- scheduleStale
	ch <- scheduleLastSuccess
	c.refreshErrors.Describe(ch)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	now := time.Now()
	for group, update := range c.updates {
		var stale float64
		if update.Staleness.IsStale() {
			stale = 1
		}
		ch <- prometheus.MustNewConstMetric(scheduleStale, prometheus.GaugeValue, stale, group)
		if !update.Staleness.LastSuccess.IsZero() {
			ch <- prometheus.MustNewConstMetric(scheduleLastSuccess, prometheus.GaugeValue, float64(update.Staleness.LastSuccess.Unix()), group)
		}

		snapshot, err := schedule.Resolve(update.Timeline, now)
		if err != nil {
			// no covering data: the state sensors are unavailable
			continue
		}
		ch <- prometheus.MustNewConstMetric(groupPowerState, prometheus.GaugeValue, 1, group, snapshot.State.String())
		if snapshot.HasNext {
			ch <- prometheus.MustNewConstMetric(groupNextChange, prometheus.GaugeValue, float64(snapshot.NextChangeAt.Unix()), group)
		}
	}
	c.refreshErrors.Collect(ch)
}
