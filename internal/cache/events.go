// Package cache implements the read-through calendar cache shared by the
// availability engine and the calendar tools.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"calendarbot/internal/domain"
	"calendarbot/internal/logging"
	"calendarbot/internal/metrics"
)

// Tier is one storage level of the cache.
type Tier interface {
	Name() string
	Get(ctx context.Context, key string) ([]domain.Event, bool, error)
	Set(ctx context.Context, key string, events []domain.Event) error
	// Keys lists every key currently held for the user.
	Keys(ctx context.Context, userID string) ([]string, error)
	Delete(ctx context.Context, userID string, keys ...string) error
}

// Source loads events from the calendar service on a miss.
type Source interface {
	ListEvents(ctx context.Context, caller domain.Caller, start, end time.Time) ([]domain.Event, error)
}

// EventCache reads calendar events through one or more tiers. Entries are
// keyed per user and day range; callers get exact-time results.
type EventCache struct {
	tiers   []Tier
	source  Source
	loc     *time.Location
	logger  *slog.Logger
	metrics *metrics.Collector
}

type Option func(*EventCache)

// WithLocation sets the zone used to map instants to cache days.
func WithLocation(loc *time.Location) Option {
	return func(c *EventCache) {
		if loc != nil {
			c.loc = loc
		}
	}
}

func WithMetrics(m *metrics.Collector) Option {
	return func(c *EventCache) { c.metrics = m }
}

// New builds an EventCache. Tiers are consulted in order; the first is
// normally the local tier.
func New(source Source, logger *slog.Logger, tiers []Tier, opts ...Option) *EventCache {
	c := &EventCache{
		tiers:  tiers,
		source: source,
		loc:    time.UTC,
		logger: logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *EventCache) Location() *time.Location {
	return c.loc
}

// Events returns the events of the caller overlapping [start, end), sorted
// by start time.
func (c *EventCache) Events(ctx context.Context, caller domain.Caller, start, end time.Time) ([]domain.Event, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("invalid range: end %s is not after start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	days := NewDayRange(start, end, c.loc)
	key := Key(caller.UserID, days)

	events, ok := c.lookup(ctx, key)
	if !ok {
		from, to, err := days.Bounds(c.loc)
		if err != nil {
			return nil, err
		}
		events, err = c.source.ListEvents(ctx, caller, from, to)
		if err != nil {
			return nil, fmt.Errorf("fetch events: %w", err)
		}
		c.store(ctx, key, events)
	}
	return filterOverlapping(events, domain.Interval{Start: start, End: end}), nil
}

// Busy is Events projected to busy intervals.
func (c *EventCache) Busy(ctx context.Context, caller domain.Caller, start, end time.Time) ([]domain.BusyInterval, error) {
	events, err := c.Events(ctx, caller, start, end)
	if err != nil {
		return nil, err
	}
	busy := make([]domain.BusyInterval, len(events))
	for i, e := range events {
		busy[i] = e.Busy()
	}
	return busy, nil
}

// InvalidateRange removes every entry of the user whose day range overlaps
// the days of [start, end). Safe to call repeatedly.
func (c *EventCache) InvalidateRange(ctx context.Context, userID string, start, end time.Time) error {
	if end.Before(start) {
		start, end = end, start
	}
	target := NewDayRange(start, end, c.loc)

	var errs []error
	for _, t := range c.tiers {
		keys, err := t.Keys(ctx, userID)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s tier: %w", t.Name(), err))
			continue
		}
		var stale []string
		for _, k := range keys {
			owner, r, ok := ParseKey(k)
			if ok && owner == userID && r.Overlaps(target) {
				stale = append(stale, k)
			}
		}
		if len(stale) == 0 {
			continue
		}
		if err := t.Delete(ctx, userID, stale...); err != nil {
			errs = append(errs, fmt.Errorf("%s tier: %w", t.Name(), err))
			continue
		}
		c.metrics.CacheInvalidated(t.Name(), len(stale))
		c.logger.Debug("cache invalidated", "tier", t.Name(), logging.User(userID), "entries", len(stale))
	}
	return errors.Join(errs...)
}

// lookup walks the tiers in order. A hit in a later tier back-fills the
// earlier ones. Tier read errors count as misses.
func (c *EventCache) lookup(ctx context.Context, key string) ([]domain.Event, bool) {
	for i, t := range c.tiers {
		events, ok, err := t.Get(ctx, key)
		if err != nil {
			c.logger.Warn("cache read failed", "tier", t.Name(), "key", key, logging.Err(err))
		}
		c.metrics.CacheLookup(t.Name(), ok)
		if !ok {
			continue
		}
		for _, earlier := range c.tiers[:i] {
			if err := earlier.Set(ctx, key, events); err != nil {
				c.logger.Warn("cache backfill failed", "tier", earlier.Name(), "key", key, logging.Err(err))
			}
		}
		return events, true
	}
	return nil, false
}

func (c *EventCache) store(ctx context.Context, key string, events []domain.Event) {
	for _, t := range c.tiers {
		if err := t.Set(ctx, key, events); err != nil {
			c.logger.Warn("cache write failed", "tier", t.Name(), "key", key, logging.Err(err))
		}
	}
}

func filterOverlapping(events []domain.Event, window domain.Interval) []domain.Event {
	out := make([]domain.Event, 0, len(events))
	for _, e := range events {
		if e.Interval().Overlaps(window) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}
