package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"calendarbot/internal/domain"
)

const dateLayout = "2006-01-02"

// GoogleConfig configures the Google Calendar backend.
type GoogleConfig struct {
	CalendarID string
	TimeZone   string
	Endpoint   string // overrides the API base URL; empty means production
}

// Google resolves a Google Calendar v3 backend from the caller's
// credentials. Token refresh is the session layer's job.
type Google struct {
	cfg GoogleConfig

	// httpClient, when set, is used instead of an OAuth2 client.
	httpClient *http.Client
}

func NewGoogle(cfg GoogleConfig) *Google {
	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = "UTC"
	}
	return &Google{cfg: cfg}
}

// WithHTTPClient makes every backend use hc unauthenticated. Used by tests.
func (g *Google) WithHTTPClient(hc *http.Client) *Google {
	g.httpClient = hc
	return g
}

func (g *Google) For(ctx context.Context, caller domain.Caller) (Backend, error) {
	opts := []option.ClientOption{}
	switch {
	case g.httpClient != nil:
		opts = append(opts, option.WithHTTPClient(g.httpClient))
	case caller.Credentials != nil && caller.Credentials.AccessToken != "":
		token := &oauth2.Token{
			AccessToken:  caller.Credentials.AccessToken,
			RefreshToken: caller.Credentials.RefreshToken,
			TokenType:    caller.Credentials.TokenType,
			Expiry:       caller.Credentials.Expiry,
		}
		opts = append(opts, option.WithHTTPClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))))
	default:
		return nil, fmt.Errorf("no calendar credentials for user %s", caller.UserID)
	}
	if g.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.cfg.Endpoint))
	}

	loc, err := time.LoadLocation(g.cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("calendar time zone %q: %w", g.cfg.TimeZone, err)
	}
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}
	return &googleCalendar{svc: svc, calendarID: g.cfg.CalendarID, timeZone: g.cfg.TimeZone, loc: loc}, nil
}

type googleCalendar struct {
	svc        *gcal.Service
	calendarID string
	timeZone   string
	loc        *time.Location // anchors all-day dates that carry no zone
}

func (c *googleCalendar) ListEvents(ctx context.Context, start, end time.Time) ([]domain.Event, error) {
	return c.SearchEvents(ctx, "", start, end)
}

func (c *googleCalendar) SearchEvents(ctx context.Context, query string, start, end time.Time) ([]domain.Event, error) {
	call := c.svc.Events.List(c.calendarID).
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime")
	if query != "" {
		call = call.Q(query)
	}

	var out []domain.Event
	err := call.Pages(ctx, func(page *gcal.Events) error {
		for _, item := range page.Items {
			if item.Status == "cancelled" {
				continue
			}
			out = append(out, c.toEvent(item))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return out, nil
}

func (c *googleCalendar) GetEvent(ctx context.Context, id string) (domain.Event, error) {
	item, err := c.svc.Events.Get(c.calendarID, id).Context(ctx).Do()
	if err != nil {
		return domain.Event{}, wrapGoogleErr("get event", id, err)
	}
	return c.toEvent(item), nil
}

func (c *googleCalendar) CreateEvent(ctx context.Context, in domain.EventInput) (domain.Event, error) {
	item, err := c.svc.Events.Insert(c.calendarID, c.fromInput(in)).Context(ctx).Do()
	if err != nil {
		return domain.Event{}, fmt.Errorf("failed to create event: %w", err)
	}
	return c.toEvent(item), nil
}

func (c *googleCalendar) UpdateEvent(ctx context.Context, id string, in domain.EventInput) (domain.Event, error) {
	patch := &gcal.Event{
		Summary:     in.Summary,
		Description: in.Description,
		Location:    in.Location,
	}
	if !in.Start.IsZero() {
		patch.Start = c.dateTime(in.Start, in.AllDay, in.TimeZone)
	}
	if !in.End.IsZero() {
		patch.End = c.dateTime(in.End, in.AllDay, in.TimeZone)
	}
	item, err := c.svc.Events.Patch(c.calendarID, id, patch).Context(ctx).Do()
	if err != nil {
		return domain.Event{}, wrapGoogleErr("update event", id, err)
	}
	return c.toEvent(item), nil
}

func (c *googleCalendar) DeleteEvent(ctx context.Context, id string) error {
	if err := c.svc.Events.Delete(c.calendarID, id).Context(ctx).Do(); err != nil {
		return wrapGoogleErr("delete event", id, err)
	}
	return nil
}

func (c *googleCalendar) fromInput(in domain.EventInput) *gcal.Event {
	return &gcal.Event{
		Summary:     in.Summary,
		Description: in.Description,
		Location:    in.Location,
		Start:       c.dateTime(in.Start, in.AllDay, in.TimeZone),
		End:         c.dateTime(in.End, in.AllDay, in.TimeZone),
	}
}

func (c *googleCalendar) dateTime(t time.Time, allDay bool, tz string) *gcal.EventDateTime {
	if allDay {
		return &gcal.EventDateTime{Date: t.Format(dateLayout)}
	}
	if tz == "" {
		tz = c.timeZone
	}
	return &gcal.EventDateTime{DateTime: t.Format(time.RFC3339), TimeZone: tz}
}

func wrapGoogleErr(op, id string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return fmt.Errorf("failed to %s %s: %w", op, id, err)
}

func (c *googleCalendar) toEvent(item *gcal.Event) domain.Event {
	e := domain.Event{
		ID:          item.Id,
		Summary:     item.Summary,
		Description: item.Description,
		Location:    item.Location,
	}
	e.Start, e.AllDay = parseDateTime(item.Start, c.loc)
	e.End, _ = parseDateTime(item.End, c.loc)
	return e
}

// parseDateTime reads a timed or all-day value. An all-day date is midnight
// in its own time zone, or in loc when the API leaves the zone out.
func parseDateTime(dt *gcal.EventDateTime, loc *time.Location) (time.Time, bool) {
	if dt == nil {
		return time.Time{}, false
	}
	if dt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
			return t, false
		}
	}
	if dt.Date != "" {
		if loc == nil {
			loc = time.UTC
		}
		if dt.TimeZone != "" {
			if l, err := time.LoadLocation(dt.TimeZone); err == nil {
				loc = l
			}
		}
		if t, err := time.ParseInLocation(dateLayout, dt.Date, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
