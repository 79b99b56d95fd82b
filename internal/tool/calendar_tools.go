package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"calendarbot/internal/availability"
	"calendarbot/internal/cache"
	"calendarbot/internal/calendar"
	"calendarbot/internal/domain"
	"calendarbot/internal/logging"
)

type calendarTools struct {
	cal    *calendar.Service
	cache  *cache.EventCache
	engine *availability.Engine
	logger *slog.Logger
}

// invalidate drops cached day ranges for every interval touched by a write.
// Failures are logged; the write itself already happened.
func (t *calendarTools) invalidate(ctx context.Context, userID string, ivs ...domain.Interval) {
	for _, iv := range ivs {
		if iv.Start.IsZero() || iv.End.IsZero() {
			continue
		}
		if err := t.cache.InvalidateRange(ctx, userID, iv.Start, iv.End); err != nil {
			t.logger.Warn("cache invalidation failed", logging.User(userID), logging.Err(err))
		}
	}
}

var eventItem = Param{
	Type: "object",
	Properties: map[string]Param{
		"summary":     {Type: "string", Description: "Event title"},
		"start":       {Type: "string", Format: "date-time", Description: "Start time, RFC 3339 with offset"},
		"end":         {Type: "string", Format: "date-time", Description: "End time, RFC 3339 with offset"},
		"description": {Type: "string", Description: "Optional notes"},
		"location":    {Type: "string", Description: "Optional location"},
		"all_day":     {Type: "boolean", Description: "True for an all-day event"},
	},
	Required: []string{"summary", "start", "end"},
}

type eventConflict struct {
	Summary     string                `json:"summary"`
	Start       time.Time             `json:"start"`
	End         time.Time             `json:"end"`
	Conflicts   []domain.BusyInterval `json:"conflicts,omitempty"`
	Suggestions []domain.Slot         `json:"suggestions"`
	Error       string                `json:"error,omitempty"`
}

type eventFailure struct {
	Summary string `json:"summary"`
	Error   string `json:"error"`
}

type overriddenEvent struct {
	ID            string `json:"id"`
	Summary       string `json:"summary"`
	ConflictCount int    `json:"conflictCount"`
}

type addEventsResult struct {
	Created    []domain.Event    `json:"created"`
	Conflicts  []eventConflict   `json:"conflicts,omitempty"`
	Failed     []eventFailure    `json:"failed,omitempty"`
	Overridden []overriddenEvent `json:"overridden,omitempty"`
}

func (t *calendarTools) addEventsDef() Definition {
	return Definition{
		Name:        AddEvents,
		Description: "Create one or more calendar events. Each event is checked for conflicts first; conflicting events are not created unless override_conflicts is true, and alternative slots are suggested instead.",
		Schema: Schema{
			Properties: map[string]Param{
				"events":             {Type: "array", Items: &eventItem, Description: "Events to create"},
				"override_conflicts": {Type: "boolean", Description: "Create events even when they overlap existing ones. Only set after the user confirmed."},
			},
			Required: []string{"events"},
		},
		Handler:   t.addEvents,
		Summarize: summarizeAddEvents,
	}
}

func (t *calendarTools) addEvents(ctx context.Context, args Args, caller domain.Caller) Outcome {
	items := args.Objects("events")
	if len(items) == 0 {
		return Fail(errors.New("events must contain at least one event"))
	}
	override := args.Bool("override_conflicts")

	var res addEventsResult
	for _, item := range items {
		summary := item.String("summary")
		start, end, err := item.Interval("start", "end")
		if err != nil {
			res.Failed = append(res.Failed, eventFailure{Summary: summary, Error: err.Error()})
			continue
		}
		iv := domain.Interval{Start: start, End: end}

		check := t.engine.CheckConflict(ctx, caller, availability.ConflictRequest{
			Candidate: iv,
			Label:     summary,
			Override:  override,
		})
		if check.Conflict {
			c := eventConflict{
				Summary:     summary,
				Start:       start,
				End:         end,
				Conflicts:   check.Conflicts,
				Suggestions: check.Suggestions,
			}
			if check.Err != nil {
				c.Error = "could not verify availability: " + check.Err.Error()
			}
			res.Conflicts = append(res.Conflicts, c)
			continue
		}

		created, err := t.cal.CreateEvent(ctx, caller, domain.EventInput{
			Summary:     summary,
			Description: item.String("description"),
			Location:    item.String("location"),
			Start:       start,
			End:         end,
			AllDay:      item.Bool("all_day"),
		})
		if err != nil {
			res.Failed = append(res.Failed, eventFailure{Summary: summary, Error: err.Error()})
			continue
		}
		// Later events of the same batch must see this one.
		t.invalidate(ctx, caller.UserID, iv)
		res.Created = append(res.Created, created)
		if check.Overridden {
			res.Overridden = append(res.Overridden, overriddenEvent{ID: created.ID, Summary: summary, ConflictCount: check.ConflictCount})
		}
	}

	switch {
	case len(res.Conflicts) > 0:
		return Conflict(res, fmt.Sprintf("%d of %d events conflict with existing events", len(res.Conflicts), len(items)))
	case len(res.Created) == 0:
		msgs := make([]string, len(res.Failed))
		for i, f := range res.Failed {
			msgs[i] = f.Summary + ": " + f.Error
		}
		return Fail(fmt.Errorf("no events created: %s", strings.Join(msgs, "; ")))
	}
	return Ok(res)
}

func summarizeAddEvents(o Outcome) (string, error) {
	res, ok := o.Payload.(addEventsResult)
	if !ok {
		return "", fmt.Errorf("unexpected payload %T", o.Payload)
	}
	var b strings.Builder
	if len(res.Created) > 0 {
		fmt.Fprintf(&b, "Created %d event(s):", len(res.Created))
		for _, e := range res.Created {
			b.WriteString("\n- " + formatEvent(e))
		}
	}
	for _, ov := range res.Overridden {
		fmt.Fprintf(&b, "\nNote: %q was created despite %d conflicting event(s); tell the user.", ov.Summary, ov.ConflictCount)
	}
	for _, c := range res.Conflicts {
		fmt.Fprintf(&b, "\nNot created: %q %s to %s", c.Summary, formatTime(c.Start), formatTime(c.End))
		if c.Error != "" {
			b.WriteString(" (" + c.Error + ")")
		}
		for _, busy := range c.Conflicts {
			fmt.Fprintf(&b, "\n  overlaps %q %s to %s", busy.Label, formatTime(busy.Start), formatTime(busy.End))
		}
		if len(c.Suggestions) > 0 {
			b.WriteString("\n  alternatives:")
			for _, s := range c.Suggestions {
				b.WriteString("\n  * " + formatSlot(s))
			}
		}
	}
	for _, f := range res.Failed {
		fmt.Fprintf(&b, "\nFailed: %q: %s", f.Summary, f.Error)
	}
	if len(res.Conflicts) > 0 {
		b.WriteString("\nAsk the user whether to pick an alternative or keep the original time (override_conflicts).")
	}
	return strings.TrimSpace(b.String()), nil
}

func (t *calendarTools) getEventsDef() Definition {
	return Definition{
		Name:        GetEvents,
		Description: "List calendar events between two times, optionally filtered by a text query.",
		Schema: Schema{
			Properties: map[string]Param{
				"start": {Type: "string", Format: "date-time", Description: "Range start, RFC 3339 with offset"},
				"end":   {Type: "string", Format: "date-time", Description: "Range end, RFC 3339 with offset"},
				"query": {Type: "string", Description: "Optional text to match in title, description or location"},
			},
			Required: []string{"start", "end"},
		},
		Handler: t.getEvents,
		Summarize: func(o Outcome) (string, error) {
			if o.Kind == KindOk {
				events, ok := o.Payload.([]domain.Event)
				if !ok {
					return "", fmt.Errorf("unexpected payload %T", o.Payload)
				}
				lines := make([]string, len(events))
				for i, e := range events {
					lines[i] = "- " + formatEvent(e)
				}
				if len(events) > 0 {
					return fmt.Sprintf("%d event(s):\n%s", len(events), strings.Join(lines, "\n")), nil
				}
			}
			return "no events in that range", nil
		},
	}
}

func (t *calendarTools) getEvents(ctx context.Context, args Args, caller domain.Caller) Outcome {
	start, end, err := args.Interval("start", "end")
	if err != nil {
		return Fail(err)
	}
	var events []domain.Event
	if q := strings.TrimSpace(args.String("query")); q != "" {
		events, err = t.cal.SearchEvents(ctx, caller, q, start, end)
	} else {
		events, err = t.cache.Events(ctx, caller, start, end)
	}
	if err != nil {
		return Fail(err)
	}
	return Ok(events)
}

func (t *calendarTools) deleteEventDef() Definition {
	return Definition{
		Name:        DeleteEvent,
		Description: "Delete a calendar event by id.",
		Schema: Schema{
			Properties: map[string]Param{
				"event_id": {Type: "string", Description: "Id of the event to delete"},
			},
			Required: []string{"event_id"},
		},
		Handler: t.deleteEvent,
		Summarize: func(o Outcome) (string, error) {
			e, ok := o.Payload.(domain.Event)
			if !ok {
				return "", fmt.Errorf("unexpected payload %T", o.Payload)
			}
			return "Deleted " + formatEvent(e), nil
		},
	}
}

func (t *calendarTools) deleteEvent(ctx context.Context, args Args, caller domain.Caller) Outcome {
	id := args.String("event_id")
	existing, err := t.cal.GetEvent(ctx, caller, id)
	if err != nil {
		return Fail(err)
	}
	if err := t.cal.DeleteEvent(ctx, caller, id); err != nil {
		return Fail(err)
	}
	t.invalidate(ctx, caller.UserID, existing.Interval())
	return Ok(existing)
}

type updateResult struct {
	Event       domain.Event `json:"event"`
	Overridden  bool         `json:"overridden,omitempty"`
	ConflictCnt int          `json:"conflictCount,omitempty"`
}

func (t *calendarTools) updateEventDef() Definition {
	return Definition{
		Name:        UpdateEvent,
		Description: "Change an existing event. Only the given fields change. Moving an event checks the new time for conflicts.",
		Schema: Schema{
			Properties: map[string]Param{
				"event_id":           {Type: "string", Description: "Id of the event to change"},
				"summary":            {Type: "string", Description: "New title"},
				"start":              {Type: "string", Format: "date-time", Description: "New start, RFC 3339 with offset"},
				"end":                {Type: "string", Format: "date-time", Description: "New end, RFC 3339 with offset"},
				"description":        {Type: "string", Description: "New notes"},
				"location":           {Type: "string", Description: "New location"},
				"override_conflicts": {Type: "boolean", Description: "Move the event even if the new time overlaps other events"},
			},
			Required: []string{"event_id"},
		},
		Handler: t.updateEvent,
		Summarize: func(o Outcome) (string, error) {
			switch p := o.Payload.(type) {
			case updateResult:
				s := "Updated " + formatEvent(p.Event)
				if p.Overridden {
					s += fmt.Sprintf("\nNote: the new time overlaps %d event(s); tell the user.", p.ConflictCnt)
				}
				return s, nil
			case eventConflict:
				return summarizeAddEvents(Outcome{Payload: addEventsResult{Conflicts: []eventConflict{p}}})
			}
			return "", fmt.Errorf("unexpected payload %T", o.Payload)
		},
	}
}

func (t *calendarTools) updateEvent(ctx context.Context, args Args, caller domain.Caller) Outcome {
	id := args.String("event_id")
	newStart, err := args.Time("start")
	if err != nil {
		return Fail(err)
	}
	newEnd, err := args.Time("end")
	if err != nil {
		return Fail(err)
	}

	existing, err := t.cal.GetEvent(ctx, caller, id)
	if err != nil {
		return Fail(err)
	}
	target := existing.Interval()
	if !newStart.IsZero() {
		target.Start = newStart
	}
	if !newEnd.IsZero() {
		target.End = newEnd
	}
	if !target.Start.Before(target.End) {
		return Fail(errors.New("start must be before end"))
	}

	var res updateResult
	if !target.Start.Equal(existing.Start) || !target.End.Equal(existing.End) {
		summary := args.String("summary")
		if summary == "" {
			summary = existing.Summary
		}
		check := t.engine.CheckConflict(ctx, caller, availability.ConflictRequest{
			Candidate:      target,
			Label:          summary,
			Override:       args.Bool("override_conflicts"),
			ExcludeEventID: id,
		})
		if check.Conflict {
			c := eventConflict{Summary: summary, Start: target.Start, End: target.End, Conflicts: check.Conflicts, Suggestions: check.Suggestions}
			if check.Err != nil {
				c.Error = "could not verify availability: " + check.Err.Error()
			}
			return Conflict(c, "the new time conflicts with existing events")
		}
		res.Overridden, res.ConflictCnt = check.Overridden, check.ConflictCount
	}

	updated, err := t.cal.UpdateEvent(ctx, caller, id, domain.EventInput{
		Summary:     args.String("summary"),
		Description: args.String("description"),
		Location:    args.String("location"),
		Start:       newStart,
		End:         newEnd,
		AllDay:      existing.AllDay,
	})
	if err != nil {
		return Fail(err)
	}
	t.invalidate(ctx, caller.UserID, existing.Interval(), updated.Interval())
	res.Event = updated
	return Ok(res)
}

type deleteByQueryResult struct {
	Deleted []domain.Event `json:"deleted"`
	Failed  []eventFailure `json:"failed,omitempty"`
}

func (t *calendarTools) deleteByQueryDef() Definition {
	return Definition{
		Name:        DeleteEventsByQuery,
		Description: "Delete every event in a time range whose title, description or location matches a query.",
		Schema: Schema{
			Properties: map[string]Param{
				"query": {Type: "string", Description: "Text to match"},
				"start": {Type: "string", Format: "date-time", Description: "Range start, RFC 3339 with offset"},
				"end":   {Type: "string", Format: "date-time", Description: "Range end, RFC 3339 with offset"},
			},
			Required: []string{"query", "start", "end"},
		},
		Handler: t.deleteByQuery,
		Summarize: func(o Outcome) (string, error) {
			if o.Kind == KindNeutral {
				return o.Message, nil
			}
			res, ok := o.Payload.(deleteByQueryResult)
			if !ok {
				return "", fmt.Errorf("unexpected payload %T", o.Payload)
			}
			var b strings.Builder
			fmt.Fprintf(&b, "Deleted %d event(s):", len(res.Deleted))
			for _, e := range res.Deleted {
				b.WriteString("\n- " + formatEvent(e))
			}
			for _, f := range res.Failed {
				fmt.Fprintf(&b, "\nCould not delete %q: %s", f.Summary, f.Error)
			}
			return b.String(), nil
		},
	}
}

func (t *calendarTools) deleteByQuery(ctx context.Context, args Args, caller domain.Caller) Outcome {
	query := strings.TrimSpace(args.String("query"))
	if query == "" {
		return Fail(errors.New("query must not be empty"))
	}
	start, end, err := args.Interval("start", "end")
	if err != nil {
		return Fail(err)
	}
	matches, err := t.cal.SearchEvents(ctx, caller, query, start, end)
	if err != nil {
		return Fail(err)
	}
	if len(matches) == 0 {
		return Neutral(fmt.Sprintf("no events matching %q between %s and %s", query, formatTime(start), formatTime(end)))
	}

	var res deleteByQueryResult
	touched := []domain.Interval{{Start: start, End: end}}
	for _, e := range matches {
		if err := t.cal.DeleteEvent(ctx, caller, e.ID); err != nil {
			res.Failed = append(res.Failed, eventFailure{Summary: e.Summary, Error: err.Error()})
			continue
		}
		res.Deleted = append(res.Deleted, e)
		touched = append(touched, e.Interval())
	}
	t.invalidate(ctx, caller.UserID, touched...)
	if len(res.Deleted) == 0 {
		return Fail(fmt.Errorf("none of the %d matching events could be deleted", len(matches)))
	}
	return Ok(res)
}

func (t *calendarTools) findSlotsDef() Definition {
	return Definition{
		Name:        FindAvailableSlots,
		Description: "Find up to three free time slots of a given length within working hours, ranked with pros and cons.",
		Schema: Schema{
			Properties: map[string]Param{
				"duration_minutes": {Type: "integer", Description: "Slot length in minutes"},
				"search_start":     {Type: "string", Format: "date-time", Description: "Earliest start, RFC 3339 with offset"},
				"search_end":       {Type: "string", Format: "date-time", Description: "Latest end, RFC 3339 with offset"},
				"preference":       {Type: "string", Enum: availability.Preferences, Description: "Preferred time of day"},
				"activity":         {Type: "string", Description: "What the slot is for, e.g. lunch or gym"},
			},
			Required: []string{"duration_minutes", "search_start", "search_end"},
		},
		Handler: t.findSlots,
		Summarize: func(o Outcome) (string, error) {
			slots, _ := o.Payload.([]domain.Slot)
			if len(slots) == 0 {
				return "no free slots match; try a wider range or another preference", nil
			}
			lines := make([]string, len(slots))
			for i, s := range slots {
				lines[i] = fmt.Sprintf("%d. %s", i+1, formatSlot(s))
			}
			return "Best slots:\n" + strings.Join(lines, "\n"), nil
		},
	}
}

func (t *calendarTools) findSlots(ctx context.Context, args Args, caller domain.Caller) Outcome {
	minutes := args.Int("duration_minutes", 0)
	if minutes <= 0 || minutes > 24*60 {
		return Fail(fmt.Errorf("duration_minutes must be between 1 and %d", 24*60))
	}
	start, end, err := args.Interval("search_start", "search_end")
	if err != nil {
		return Fail(err)
	}
	slots, err := t.engine.FindSlots(ctx, caller, availability.SlotRequest{
		Duration:    time.Duration(minutes) * time.Minute,
		SearchStart: start,
		SearchEnd:   end,
		Preference:  availability.ParsePreference(args.String("preference")),
		Activity:    args.String("activity"),
	})
	if err != nil {
		return Fail(err)
	}
	return Ok(slots)
}
