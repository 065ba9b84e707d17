// Package coordinator owns the refresh pipeline: it periodically fetches,
// parses and normalizes the provider schedule for each configured group,
// caches the last good timeline and tracks its staleness.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/clambin/go-common/set"
	"github.com/omelnyk/svitlo/internal/provider"
	"github.com/omelnyk/svitlo/internal/schedule"
	"github.com/omelnyk/svitlo/pkg/pubsub"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownGroup is returned for a group not present in the configuration.
var ErrUnknownGroup = errors.New("unknown group")

// ErrNoNextChange means the timeline's horizon ends at the current interval:
// there is no known next transition yet.
var ErrNoNextChange = errors.New("no next change known")

// Config is the immutable configuration of a Coordinator.
type Config struct {
	Groups     []string
	Interval   time.Duration
	Retention  time.Duration
	MaxBackoff time.Duration
}

// Update is published to subscribers after every refresh attempt for a
// group, successful or not.
type Update struct {
	Group     string
	Timeline  schedule.Timeline
	Staleness Staleness
}

// Coordinator refreshes all configured groups. Refreshes for different
// groups are independent and run concurrently; the cached timeline per group
// is replaced atomically and never mutated in place.
type Coordinator struct {
	client provider.Client
	*pubsub.Publisher[Update]
	cfg     Config
	groups  set.Set[string]
	logger  *slog.Logger
	refresh chan struct{}

	lock  sync.RWMutex
	cache map[string]*groupEntry
}

type groupEntry struct {
	timeline    schedule.Timeline
	hasTimeline bool
	staleness   Staleness
	delay       time.Duration
	nextAttempt time.Time
}

func New(client provider.Client, cfg Config, logger *slog.Logger) *Coordinator {
	cache := make(map[string]*groupEntry, len(cfg.Groups))
	for _, group := range cfg.Groups {
		cache[group] = &groupEntry{staleness: Staleness{State: StateEmpty}}
	}
	return &Coordinator{
		client:    client,
		Publisher: pubsub.New[Update](logger.With(slog.String("component", "registry"))),
		cfg:       cfg,
		groups:    set.New(cfg.Groups...),
		logger:    logger,
		refresh:   make(chan struct{}),
		cache:     cache,
	}
}

// Run refreshes all groups once at startup, then on every tick of the base
// interval (subject to per-group backoff) and on every manual Refresh.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Debug("started", slog.Duration("interval", c.cfg.Interval))
	defer c.logger.Debug("stopped")

	c.poll(ctx, time.Now(), true)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.poll(ctx, time.Now(), false)
		case <-c.refresh:
			c.poll(ctx, time.Now(), true)
		}
	}
}

// Refresh triggers an immediate refresh of all groups, bypassing backoff.
func (c *Coordinator) Refresh() {
	c.refresh <- struct{}{}
}

func (c *Coordinator) poll(ctx context.Context, now time.Time, force bool) {
	var g errgroup.Group
	for _, group := range c.cfg.Groups {
		c.lock.RLock()
		due := force || !now.Before(c.cache[group].nextAttempt)
		c.lock.RUnlock()
		if !due {
			continue
		}
		g.Go(func() error {
			c.refreshGroup(ctx, group, now)
			return nil
		})
	}
	_ = g.Wait()
}

// refreshGroup runs the fetch-parse-normalize pipeline for one group and
// replaces the cached timeline on success. Failures keep the cached timeline
// and only downgrade the staleness marker.
func (c *Coordinator) refreshGroup(ctx context.Context, group string, now time.Time) {
	start := time.Now()
	days, err := c.client.GetSchedule(ctx, group)

	var timeline schedule.Timeline
	if err == nil {
		c.lock.RLock()
		prev := c.cache[group].timeline
		c.lock.RUnlock()
		timeline, err = schedule.Normalize(group, days, prev, now, c.cfg.Retention)
	}

	c.lock.Lock()
	entry := c.cache[group]
	if err == nil {
		entry.timeline = timeline
		entry.hasTimeline = true
		entry.staleness = Staleness{State: StateFresh, LastSuccess: now}
		entry.delay = 0
		entry.nextAttempt = now.Add(c.cfg.Interval)
		c.logger.Debug("schedule refreshed",
			slog.String("group", group),
			slog.Int("intervals", len(timeline.Intervals())),
			slog.Duration("duration", time.Since(start)),
		)
	} else {
		entry.staleness.LastError = err
		if entry.hasTimeline {
			entry.staleness.State = StateStale
		} else {
			entry.staleness.State = StateError
		}
		if entry.delay == 0 {
			entry.delay = c.cfg.Interval
		} else {
			entry.delay = min(2*entry.delay, c.cfg.MaxBackoff)
		}
		entry.nextAttempt = now.Add(entry.delay)

		if errors.Is(err, provider.ErrNotPublished) {
			c.logger.Info("schedule not yet published", slog.String("group", group))
		} else {
			c.logger.Error("failed to refresh schedule", slog.String("group", group), slog.Any("err", err))
		}
	}
	update := Update{Group: group, Timeline: entry.timeline, Staleness: entry.staleness}
	c.lock.Unlock()

	c.Publish(update)
}

// Groups returns the configured groups, in configuration order.
func (c *Coordinator) Groups() []string {
	return c.cfg.Groups
}

// Timeline returns the cached timeline for the group. ok is false when the
// group is unknown or no refresh has succeeded yet.
func (c *Coordinator) Timeline(group string) (schedule.Timeline, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	entry, found := c.cache[group]
	if !found || !entry.hasTimeline {
		return schedule.Timeline{}, false
	}
	return entry.timeline, true
}

// Staleness returns the staleness marker for the group.
func (c *Coordinator) Staleness(group string) (Staleness, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	entry, found := c.cache[group]
	if !found {
		return Staleness{}, false
	}
	return entry.staleness, true
}

// CurrentStatus resolves the power state of the group at the given instant
// against the cached timeline.
func (c *Coordinator) CurrentStatus(group string, now time.Time) (schedule.Snapshot, error) {
	if !c.groups.Contains(group) {
		return schedule.Snapshot{}, ErrUnknownGroup
	}
	timeline, ok := c.Timeline(group)
	if !ok {
		return schedule.Snapshot{}, schedule.ErrNoData
	}
	return schedule.Resolve(timeline, now)
}

// Countdown returns the time remaining until the group's next state change.
// It is recomputed from the timeline on every call, so it never drifts from
// the wall clock.
func (c *Coordinator) Countdown(group string, now time.Time) (time.Duration, error) {
	snapshot, err := c.CurrentStatus(group, now)
	if err != nil {
		return 0, err
	}
	if !snapshot.HasNext {
		return 0, ErrNoNextChange
	}
	return snapshot.NextChangeAt.Sub(now), nil
}
