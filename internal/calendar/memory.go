package calendar

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"calendarbot/internal/domain"
)

// Memory is an in-process calendar store keyed by user. It backs the CLI
// when no Google credentials are configured, and the tests.
type Memory struct {
	mu    sync.RWMutex
	users map[string]map[string]domain.Event
}

func NewMemory() *Memory {
	return &Memory{users: make(map[string]map[string]domain.Event)}
}

func (m *Memory) For(_ context.Context, caller domain.Caller) (Backend, error) {
	return &memoryCalendar{store: m, user: caller.UserID}, nil
}

// Seed inserts events for a user as-is, keeping their ids.
func (m *Memory) Seed(userID string, events ...domain.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cal := m.userLocked(userID)
	for _, e := range events {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		cal[e.ID] = e
	}
}

func (m *Memory) userLocked(userID string) map[string]domain.Event {
	cal, ok := m.users[userID]
	if !ok {
		cal = make(map[string]domain.Event)
		m.users[userID] = cal
	}
	return cal
}

type memoryCalendar struct {
	store *Memory
	user  string
}

func (c *memoryCalendar) ListEvents(ctx context.Context, start, end time.Time) ([]domain.Event, error) {
	return c.SearchEvents(ctx, "", start, end)
}

func (c *memoryCalendar) SearchEvents(_ context.Context, query string, start, end time.Time) ([]domain.Event, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	window := domain.Interval{Start: start, End: end}
	q := strings.ToLower(query)
	var out []domain.Event
	for _, e := range c.store.users[c.user] {
		if !e.Interval().Overlaps(window) {
			continue
		}
		if q != "" && !matches(e, q) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}

func matches(e domain.Event, q string) bool {
	return strings.Contains(strings.ToLower(e.Summary), q) ||
		strings.Contains(strings.ToLower(e.Description), q) ||
		strings.Contains(strings.ToLower(e.Location), q)
}

func (c *memoryCalendar) GetEvent(_ context.Context, id string) (domain.Event, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	e, ok := c.store.users[c.user][id]
	if !ok {
		return domain.Event{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

func (c *memoryCalendar) CreateEvent(_ context.Context, in domain.EventInput) (domain.Event, error) {
	if !in.End.After(in.Start) {
		return domain.Event{}, fmt.Errorf("event end must be after start")
	}
	e := domain.Event{
		ID:          uuid.NewString(),
		Summary:     in.Summary,
		Description: in.Description,
		Location:    in.Location,
		Start:       in.Start,
		End:         in.End,
		AllDay:      in.AllDay,
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.userLocked(c.user)[e.ID] = e
	return e, nil
}

func (c *memoryCalendar) UpdateEvent(_ context.Context, id string, in domain.EventInput) (domain.Event, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	cal := c.store.userLocked(c.user)
	e, ok := cal[id]
	if !ok {
		return domain.Event{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e = applyInput(e, in)
	if !e.End.After(e.Start) {
		return domain.Event{}, fmt.Errorf("event end must be after start")
	}
	cal[id] = e
	return e, nil
}

func (c *memoryCalendar) DeleteEvent(_ context.Context, id string) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	cal := c.store.users[c.user]
	if _, ok := cal[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(cal, id)
	return nil
}

// applyInput overlays the non-zero fields of in onto e.
func applyInput(e domain.Event, in domain.EventInput) domain.Event {
	if in.Summary != "" {
		e.Summary = in.Summary
	}
	if in.Description != "" {
		e.Description = in.Description
	}
	if in.Location != "" {
		e.Location = in.Location
	}
	if !in.Start.IsZero() {
		e.Start = in.Start
	}
	if !in.End.IsZero() {
		e.End = in.End
	}
	return e
}
