package availability

import (
	"math"
	"sort"
	"strings"
	"time"

	"calendarbot/internal/domain"
)

// SlotRequest describes the slot to search for.
type SlotRequest struct {
	Duration    time.Duration
	SearchStart time.Time
	SearchEnd   time.Time
	Preference  Preference
	Activity    string
}

const (
	fallbackPro = "Free slot available"
	fallbackCon = "No notable drawbacks"
)

var (
	mealWords     = []string{"lunch", "dinner", "breakfast", "brunch", "meal", "coffee", "eat"}
	exerciseWords = []string{"gym", "workout", "exercise", "run", "yoga", "swim", "training", "fitness", "jog"}
)

// FindSlots ranks the free grid slots of the search window and returns the
// best ones. Returned slots never overlap a blocking busy interval.
func FindSlots(busy []domain.BusyInterval, req SlotRequest, rules Rules) []domain.Slot {
	rules = rules.withDefaults()
	if req.Duration <= 0 || !req.SearchEnd.After(req.SearchStart) {
		return nil
	}
	if req.Preference == "" {
		req.Preference = PreferAny
	}
	blocking := blockingOnly(busy, rules)

	var out []domain.Slot
	for _, start := range candidates(req, rules) {
		iv := domain.Interval{Start: start, End: start.Add(req.Duration)}
		if overlapsAny(iv, blocking) || !matchesPreference(iv.Start.In(rules.Location), req.Preference) {
			continue
		}
		out = append(out, score(iv, blocking, req, rules))
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Start.Before(out[j].Start)
	})
	if len(out) > rules.MaxSuggestions {
		out = out[:rules.MaxSuggestions]
	}
	return out
}

// candidates enumerates grid starts inside working windows whose slot ends
// by both the window end and the search end.
func candidates(req SlotRequest, rules Rules) []time.Time {
	loc := rules.Location
	first := req.SearchStart.In(loc)
	day := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc)

	var out []time.Time
	for ; day.Before(req.SearchEnd); day = day.AddDate(0, 0, 1) {
		if !rules.isWorkingDay(day.Weekday()) {
			continue
		}
		open := day.Add(time.Duration(rules.DayStartHour) * time.Hour)
		closing := day.Add(time.Duration(rules.DayEndHour) * time.Hour)

		t := open
		if req.SearchStart.After(t) {
			t = ceilToGrid(req.SearchStart.In(loc), day, rules.Granularity)
		}
		for ; !t.Add(req.Duration).After(closing) && !t.Add(req.Duration).After(req.SearchEnd); t = t.Add(rules.Granularity) {
			out = append(out, t)
		}
	}
	return out
}

// ceilToGrid rounds t up to the next grid point counted from midnight.
func ceilToGrid(t, midnight time.Time, step time.Duration) time.Time {
	offset := t.Sub(midnight)
	if rem := offset % step; rem != 0 {
		offset += step - rem
	}
	return midnight.Add(offset)
}

func blockingOnly(busy []domain.BusyInterval, rules Rules) []domain.BusyInterval {
	out := make([]domain.BusyInterval, 0, len(busy))
	for _, b := range busy {
		if b.AllDay && !rules.blocks(b.Label) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func overlapsAny(iv domain.Interval, busy []domain.BusyInterval) bool {
	for _, b := range busy {
		if iv.Overlaps(b.Interval) {
			return true
		}
	}
	return false
}

func matchesPreference(start time.Time, p Preference) bool {
	from, to, ok := p.window()
	if !ok {
		return true
	}
	h := start.Hour()
	return h >= from && h < to
}

func hourOf(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60
}

func containsAny(s string, words []string) bool {
	l := strings.ToLower(s)
	for _, w := range words {
		if strings.Contains(l, w) {
			return true
		}
	}
	return false
}

func score(iv domain.Interval, busy []domain.BusyInterval, req SlotRequest, rules Rules) domain.Slot {
	loc := rules.Location
	start, end := iv.Start.In(loc), iv.End.In(loc)
	startH, endH := hourOf(start), hourOf(end)
	if end.Day() != start.Day() {
		endH += 24
	}
	var pros, cons []string

	prefMatch := req.Preference != PreferAny && matchesPreference(start, req.Preference)
	if prefMatch {
		pros = append(pros, "Matches your "+string(req.Preference)+" preference")
	}
	standard := startH >= 9 && endH <= 17
	if standard {
		pros = append(pros, "Within standard working hours")
	}

	lunch := domain.Interval{
		Start: time.Date(start.Year(), start.Month(), start.Day(), 12, 0, 0, 0, loc),
		End:   time.Date(start.Year(), start.Month(), start.Day(), 13, 0, 0, 0, loc),
	}
	if iv.Overlaps(lunch) {
		if containsAny(req.Activity, mealWords) {
			pros = append(pros, "Good timing for a meal")
		} else {
			cons = append(cons, "Overlaps typical lunch time")
		}
	}

	for _, b := range busy {
		before := !b.End.After(iv.Start) && iv.Start.Sub(b.End) <= rules.AdjacencyBuffer
		after := !b.Start.Before(iv.End) && b.Start.Sub(iv.End) <= rules.AdjacencyBuffer
		if before || after {
			label := b.Label
			if label == "" {
				label = "another event"
			}
			pros = append(pros, "Back-to-back with "+label)
			break
		}
	}

	switch wd := start.Weekday(); {
	case wd == time.Saturday || wd == time.Sunday:
		cons = append(cons, "Falls on a weekend")
	case wd == time.Monday && startH < 12:
		cons = append(cons, "Monday mornings are often busy")
	case wd == time.Friday && startH >= 15:
		cons = append(cons, "Late Friday afternoon")
	case wd >= time.Tuesday && wd <= time.Thursday:
		pros = append(pros, "Mid-week scheduling")
	}

	if containsAny(req.Activity, exerciseWords) {
		switch {
		case startH < 10:
			pros = append(pros, "Morning exercise sets up the day")
		case startH >= 17:
			pros = append(pros, "Evening exercise helps unwind")
		case startH >= 11 && startH < 14:
			cons = append(cons, "Midday exercise can disrupt the workday")
		}
	}

	if startH < 9 {
		cons = append(cons, "Early start")
	}
	if endH > 18 {
		cons = append(cons, "Runs late")
	}

	// Scored before the fallback statements are added: a placeholder pro or
	// con carries no weight.
	s := 10*float64(len(pros)) - 8*float64(len(cons)) - 0.1*startH
	if prefMatch {
		s += 15
	}
	if standard {
		s += 5
	}

	if len(pros) == 0 {
		pros = []string{fallbackPro}
	}
	if len(cons) == 0 {
		cons = []string{fallbackCon}
	}
	return domain.Slot{
		Interval: iv,
		Pros:     pros,
		Cons:     cons,
		Score:    math.Round(s*100) / 100,
	}
}
