package availability

import (
	"strings"
	"time"
)

// Preference is a time-of-day window a slot's start must fall in.
type Preference string

const (
	PreferAny       Preference = "any"
	PreferMorning   Preference = "morning"
	PreferAfternoon Preference = "afternoon"
	PreferEvening   Preference = "evening"
)

// Preferences lists the accepted values, in schema order.
var Preferences = []string{string(PreferMorning), string(PreferAfternoon), string(PreferEvening), string(PreferAny)}

// window returns the [from, to) hours of the preference.
func (p Preference) window() (int, int, bool) {
	switch p {
	case PreferMorning:
		return 8, 12, true
	case PreferAfternoon:
		return 12, 17, true
	case PreferEvening:
		return 17, 21, true
	}
	return 0, 24, false
}

// ParsePreference maps free text onto a Preference, defaulting to any.
func ParsePreference(s string) Preference {
	switch p := Preference(strings.ToLower(strings.TrimSpace(s))); p {
	case PreferMorning, PreferAfternoon, PreferEvening:
		return p
	}
	return PreferAny
}

// Rules are the working-time settings slot finding runs against.
type Rules struct {
	WorkingDays     []time.Weekday
	DayStartHour    int
	DayEndHour      int
	Granularity     time.Duration
	AdjacencyBuffer time.Duration
	MaxSuggestions  int
	// SuggestionWindow is how far either side of a conflicting candidate
	// alternatives are searched.
	SuggestionWindow time.Duration
	// BlockingKeywords make an all-day event block timed scheduling.
	BlockingKeywords []string
	Location         *time.Location
}

func DefaultRules() Rules {
	return Rules{
		WorkingDays:      []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		DayStartHour:     9,
		DayEndHour:       17,
		Granularity:      30 * time.Minute,
		AdjacencyBuffer:  30 * time.Minute,
		MaxSuggestions:   3,
		SuggestionWindow: 12 * time.Hour,
		BlockingKeywords: []string{"meeting", "appointment", "interview", "call", "conference"},
		Location:         time.UTC,
	}
}

// withDefaults fills zero fields from DefaultRules.
func (r Rules) withDefaults() Rules {
	d := DefaultRules()
	if len(r.WorkingDays) == 0 {
		r.WorkingDays = d.WorkingDays
	}
	if r.DayEndHour <= r.DayStartHour {
		r.DayStartHour, r.DayEndHour = d.DayStartHour, d.DayEndHour
	}
	if r.Granularity <= 0 {
		r.Granularity = d.Granularity
	}
	if r.AdjacencyBuffer <= 0 {
		r.AdjacencyBuffer = d.AdjacencyBuffer
	}
	if r.MaxSuggestions <= 0 {
		r.MaxSuggestions = d.MaxSuggestions
	}
	if r.SuggestionWindow <= 0 {
		r.SuggestionWindow = d.SuggestionWindow
	}
	if r.BlockingKeywords == nil {
		r.BlockingKeywords = d.BlockingKeywords
	}
	if r.Location == nil {
		r.Location = d.Location
	}
	return r
}

func (r Rules) isWorkingDay(d time.Weekday) bool {
	for _, w := range r.WorkingDays {
		if w == d {
			return true
		}
	}
	return false
}

// blocks reports whether an all-day event with this label should still
// block timed events.
func (r Rules) blocks(label string) bool {
	l := strings.ToLower(label)
	for _, k := range r.BlockingKeywords {
		if k != "" && strings.Contains(l, strings.ToLower(k)) {
			return true
		}
	}
	return false
}
