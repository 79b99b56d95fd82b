package domain

import "time"

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether the two half-open intervals share any instant.
// Touching intervals (one ends exactly when the other starts) do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Valid reports whether the interval is non-empty.
func (i Interval) Valid() bool {
	return !i.Start.IsZero() && !i.End.IsZero() && i.Start.Before(i.End)
}

// BusyInterval is the read-only projection of a calendar event used for
// conflict math.
type BusyInterval struct {
	Interval
	Label  string `json:"label"`
	AllDay bool   `json:"all_day"`
}

// Slot is a proposed free interval with its explanation and score.
type Slot struct {
	Interval
	Pros  []string `json:"pros"`
	Cons  []string `json:"cons"`
	Score float64  `json:"score"`
}

// Event is a calendar event as returned by a backend.
type Event struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"all_day,omitempty"`
}

func (e Event) Interval() Interval {
	return Interval{Start: e.Start, End: e.End}
}

func (e Event) Busy() BusyInterval {
	return BusyInterval{Interval: e.Interval(), Label: e.Summary, AllDay: e.AllDay}
}

// EventInput carries the fields of an event to create or update. Zero
// values on update mean "keep the existing value".
type EventInput struct {
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	AllDay      bool
	TimeZone    string
}
