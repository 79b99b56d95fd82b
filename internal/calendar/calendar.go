// Package calendar provides the calendar backends the bot reads from and
// writes to, behind a per-caller resolver.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"calendarbot/internal/domain"
)

// ErrNotFound is returned when an event id does not exist.
var ErrNotFound = errors.New("event not found")

// Backend is one user's calendar.
type Backend interface {
	ListEvents(ctx context.Context, start, end time.Time) ([]domain.Event, error)
	SearchEvents(ctx context.Context, query string, start, end time.Time) ([]domain.Event, error)
	GetEvent(ctx context.Context, id string) (domain.Event, error)
	CreateEvent(ctx context.Context, in domain.EventInput) (domain.Event, error)
	UpdateEvent(ctx context.Context, id string, in domain.EventInput) (domain.Event, error)
	DeleteEvent(ctx context.Context, id string) error
}

// Resolver returns the backend for a caller.
type Resolver interface {
	For(ctx context.Context, caller domain.Caller) (Backend, error)
}

// Service routes calendar operations to the caller's backend.
type Service struct {
	resolver Resolver
}

func NewService(r Resolver) *Service {
	return &Service{resolver: r}
}

func (s *Service) backend(ctx context.Context, caller domain.Caller) (Backend, error) {
	if caller.UserID == "" {
		return nil, fmt.Errorf("calendar: caller has no user id")
	}
	b, err := s.resolver.For(ctx, caller)
	if err != nil {
		return nil, fmt.Errorf("calendar: resolve backend for %s: %w", caller.UserID, err)
	}
	return b, nil
}

func (s *Service) ListEvents(ctx context.Context, caller domain.Caller, start, end time.Time) ([]domain.Event, error) {
	b, err := s.backend(ctx, caller)
	if err != nil {
		return nil, err
	}
	return b.ListEvents(ctx, start, end)
}

func (s *Service) SearchEvents(ctx context.Context, caller domain.Caller, query string, start, end time.Time) ([]domain.Event, error) {
	b, err := s.backend(ctx, caller)
	if err != nil {
		return nil, err
	}
	return b.SearchEvents(ctx, query, start, end)
}

func (s *Service) GetEvent(ctx context.Context, caller domain.Caller, id string) (domain.Event, error) {
	b, err := s.backend(ctx, caller)
	if err != nil {
		return domain.Event{}, err
	}
	return b.GetEvent(ctx, id)
}

func (s *Service) CreateEvent(ctx context.Context, caller domain.Caller, in domain.EventInput) (domain.Event, error) {
	b, err := s.backend(ctx, caller)
	if err != nil {
		return domain.Event{}, err
	}
	return b.CreateEvent(ctx, in)
}

func (s *Service) UpdateEvent(ctx context.Context, caller domain.Caller, id string, in domain.EventInput) (domain.Event, error) {
	b, err := s.backend(ctx, caller)
	if err != nil {
		return domain.Event{}, err
	}
	return b.UpdateEvent(ctx, id, in)
}

func (s *Service) DeleteEvent(ctx context.Context, caller domain.Caller, id string) error {
	b, err := s.backend(ctx, caller)
	if err != nil {
		return err
	}
	return b.DeleteEvent(ctx, id)
}
