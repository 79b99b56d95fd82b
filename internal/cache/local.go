package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"calendarbot/internal/domain"
)

type localEntry struct {
	events  []domain.Event
	expires time.Time
}

// LocalTier is the in-process cache tier. Entries expire after the TTL;
// a hit pushes the expiry forward again.
type LocalTier struct {
	mu      sync.Mutex
	entries map[string]localEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewLocalTier(ttl time.Duration) *LocalTier {
	return &LocalTier{
		entries: make(map[string]localEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (t *LocalTier) WithClock(now func() time.Time) *LocalTier {
	t.now = now
	return t
}

func (t *LocalTier) Name() string { return "local" }

func (t *LocalTier) Get(_ context.Context, key string) ([]domain.Event, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key]
	if !ok {
		return nil, false, nil
	}
	now := t.now()
	if !now.Before(e.expires) {
		delete(t.entries, key)
		return nil, false, nil
	}
	e.expires = now.Add(t.ttl)
	t.entries[key] = e
	return cloneEvents(e.events), true, nil
}

func (t *LocalTier) Set(_ context.Context, key string, events []domain.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key] = localEntry{events: cloneEvents(events), expires: t.now().Add(t.ttl)}
	return nil
}

func (t *LocalTier) Keys(_ context.Context, userID string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prefix := userPrefix(userID)
	var keys []string
	for k := range t.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (t *LocalTier) Delete(_ context.Context, userID string, keys ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, k := range keys {
		delete(t.entries, k)
	}
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (t *LocalTier) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func cloneEvents(events []domain.Event) []domain.Event {
	if events == nil {
		return nil
	}
	out := make([]domain.Event, len(events))
	copy(out, events)
	return out
}
