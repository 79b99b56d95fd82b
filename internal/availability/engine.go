// Package availability decides whether a proposed event collides with the
// calendar and proposes ranked alternative slots.
package availability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"calendarbot/internal/domain"
	"calendarbot/internal/logging"
	"calendarbot/internal/metrics"
)

// EventSource reads events through the calendar cache.
type EventSource interface {
	Events(ctx context.Context, caller domain.Caller, start, end time.Time) ([]domain.Event, error)
}

// ConflictRequest is a candidate interval to check.
type ConflictRequest struct {
	Candidate domain.Interval
	Label     string
	Override  bool
	// ExcludeEventID is ignored during the check, so an event being moved
	// does not collide with itself.
	ExcludeEventID string
}

// ConflictResult is the outcome of a conflict check. When Err is set the
// check failed and Conflict is true.
type ConflictResult struct {
	Conflict      bool                  `json:"conflict"`
	Overridden    bool                  `json:"overridden,omitempty"`
	ConflictCount int                   `json:"conflictCount,omitempty"`
	Conflicts     []domain.BusyInterval `json:"conflicts,omitempty"`
	Suggestions   []domain.Slot         `json:"suggestions"`
	Err           error                 `json:"-"`
}

// Engine runs conflict checks against the calendar cache. It only reads.
type Engine struct {
	events  EventSource
	rules   Rules
	logger  *slog.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

func NewEngine(events EventSource, rules Rules, logger *slog.Logger, m *metrics.Collector) *Engine {
	return &Engine{
		events:  events,
		rules:   rules.withDefaults(),
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// WithClock replaces the time source used to keep suggestions in the future.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) Rules() Rules {
	return e.rules
}

// CheckConflict reports whether the candidate overlaps a blocking event.
// Any failure reads as a conflict.
func (e *Engine) CheckConflict(ctx context.Context, caller domain.Caller, req ConflictRequest) ConflictResult {
	c := req.Candidate
	if !c.Valid() {
		return e.failClosed(fmt.Errorf("invalid candidate interval"))
	}

	events, err := e.events.Events(ctx, caller, c.Start.Add(-time.Hour), c.End.Add(time.Hour))
	if err != nil {
		return e.failClosed(fmt.Errorf("fetch busy intervals: %w", err))
	}

	var conflicts []domain.BusyInterval
	for _, ev := range e.busy(events, req.ExcludeEventID) {
		if ev.Overlaps(c) {
			conflicts = append(conflicts, ev)
		}
	}

	switch {
	case len(conflicts) == 0:
		e.metrics.ConflictChecked("clear")
		return ConflictResult{Suggestions: []domain.Slot{}}
	case req.Override:
		e.metrics.ConflictChecked("overridden")
		e.logger.Info("conflict overridden", logging.User(caller.UserID), "count", len(conflicts))
		return ConflictResult{
			Overridden:    true,
			ConflictCount: len(conflicts),
			Conflicts:     conflicts,
			Suggestions:   []domain.Slot{},
		}
	}

	suggestions, err := e.Suggest(ctx, caller, c, req.Label, req.ExcludeEventID)
	if err != nil {
		// Conflict is already known; a failed suggestion search only
		// loses the alternatives.
		e.logger.Warn("suggestion search failed", logging.User(caller.UserID), logging.Err(err))
		suggestions = []domain.Slot{}
	}
	e.metrics.ConflictChecked("conflict")
	return ConflictResult{
		Conflict:      true,
		ConflictCount: len(conflicts),
		Conflicts:     conflicts,
		Suggestions:   suggestions,
	}
}

// Suggest finds alternatives for a candidate within the suggestion window
// around it, never earlier than now.
func (e *Engine) Suggest(ctx context.Context, caller domain.Caller, c domain.Interval, label, excludeID string) ([]domain.Slot, error) {
	start := c.Start.Add(-e.rules.SuggestionWindow)
	end := c.End.Add(e.rules.SuggestionWindow)
	if now := e.now(); start.Before(now) {
		start = now
	}
	if !end.After(start) {
		return []domain.Slot{}, nil
	}
	events, err := e.events.Events(ctx, caller, start, end)
	if err != nil {
		return nil, err
	}
	slots := FindSlots(e.busy(events, excludeID), SlotRequest{
		Duration:    c.Duration(),
		SearchStart: start,
		SearchEnd:   end,
		Preference:  PreferAny,
		Activity:    label,
	}, e.rules)
	if slots == nil {
		slots = []domain.Slot{}
	}
	return slots, nil
}

// FindSlots reads the busy intervals of the window and ranks free slots.
func (e *Engine) FindSlots(ctx context.Context, caller domain.Caller, req SlotRequest) ([]domain.Slot, error) {
	if !req.SearchEnd.After(req.SearchStart) {
		return nil, fmt.Errorf("search end must be after search start")
	}
	events, err := e.events.Events(ctx, caller, req.SearchStart, req.SearchEnd)
	if err != nil {
		return nil, fmt.Errorf("fetch busy intervals: %w", err)
	}
	return FindSlots(e.busy(events, ""), req, e.rules), nil
}

// busy projects events to blocking busy intervals.
func (e *Engine) busy(events []domain.Event, excludeID string) []domain.BusyInterval {
	out := make([]domain.BusyInterval, 0, len(events))
	for _, ev := range events {
		if excludeID != "" && ev.ID == excludeID {
			continue
		}
		b := ev.Busy()
		if b.AllDay && !e.rules.blocks(b.Label) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func (e *Engine) failClosed(err error) ConflictResult {
	e.metrics.ConflictChecked("error")
	e.logger.Error("conflict check failed, assuming conflict", logging.Err(err))
	return ConflictResult{Conflict: true, Suggestions: []domain.Slot{}, Err: err}
}
