package tool

import (
	"fmt"
	"log/slog"
	"time"

	"calendarbot/internal/availability"
	"calendarbot/internal/cache"
	"calendarbot/internal/calendar"
	"calendarbot/internal/domain"
	"calendarbot/internal/weather"
)

// Deps are the collaborators the built-in tools need. Weather and
// Preferences are optional; their tools are skipped when nil.
type Deps struct {
	Calendar    *calendar.Service
	Cache       *cache.EventCache
	Engine      *availability.Engine
	Preferences domain.PreferenceStore
	Weather     *weather.Client
	Logger      *slog.Logger
}

// RegisterAll registers every tool the deps can serve.
func RegisterAll(r *Registry, deps Deps) error {
	if deps.Calendar == nil || deps.Cache == nil || deps.Engine == nil {
		return fmt.Errorf("calendar tools need calendar, cache and engine")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	ct := &calendarTools{
		cal:    deps.Calendar,
		cache:  deps.Cache,
		engine: deps.Engine,
		logger: deps.Logger,
	}
	defs := []Definition{
		ct.addEventsDef(),
		ct.getEventsDef(),
		ct.deleteEventDef(),
		ct.updateEventDef(),
		ct.findSlotsDef(),
		ct.deleteByQueryDef(),
	}
	if deps.Preferences != nil {
		defs = append(defs, savePreferenceDef(deps.Preferences))
	}
	if deps.Weather != nil {
		defs = append(defs, getWeatherDef(deps.Weather))
	}
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

func formatEvent(e domain.Event) string {
	if e.AllDay {
		return fmt.Sprintf("%q all day %s (id %s)", e.Summary, e.Start.Format(dateLayout), e.ID)
	}
	return fmt.Sprintf("%q %s to %s (id %s)", e.Summary, formatTime(e.Start), formatTime(e.End), e.ID)
}

func formatSlot(s domain.Slot) string {
	return fmt.Sprintf("%s to %s (score %.1f; pros: %s; cons: %s)",
		formatTime(s.Start), formatTime(s.End), s.Score, joinOr(s.Pros), joinOr(s.Cons))
}

func joinOr(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	out := items[0]
	for _, s := range items[1:] {
		out += ", " + s
	}
	return out
}
