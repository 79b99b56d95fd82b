package cache

import (
	"fmt"
	"strings"
	"time"
)

const (
	keyPrefix  = "calendar:"
	dateLayout = "2006-01-02"
)

// DayRange is an inclusive range of calendar days, formatted YYYY-MM-DD.
type DayRange struct {
	From string
	To   string
}

// NewDayRange returns the days touched by [start, end) in loc. An end at
// exactly midnight does not pull in the following day.
func NewDayRange(start, end time.Time, loc *time.Location) DayRange {
	if loc == nil {
		loc = time.UTC
	}
	last := end
	if end.After(start) {
		last = end.Add(-time.Nanosecond)
	}
	return DayRange{
		From: start.In(loc).Format(dateLayout),
		To:   last.In(loc).Format(dateLayout),
	}
}

// Overlaps reports whether two inclusive day ranges share a day.
func (d DayRange) Overlaps(o DayRange) bool {
	return d.From <= o.To && o.From <= d.To
}

// Bounds returns the instants covering the whole range: midnight of the
// first day up to midnight after the last day.
func (d DayRange) Bounds(loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	from, err := time.ParseInLocation(dateLayout, d.From, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse range start: %w", err)
	}
	to, err := time.ParseInLocation(dateLayout, d.To, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse range end: %w", err)
	}
	return from, to.AddDate(0, 0, 1), nil
}

// Key builds the cache key for a user and day range:
// calendar:<user>:<YYYY-MM-DD>..<YYYY-MM-DD>.
func Key(userID string, r DayRange) string {
	return keyPrefix + userID + ":" + r.From + ".." + r.To
}

// userPrefix is the key prefix shared by every entry of one user.
func userPrefix(userID string) string {
	return keyPrefix + userID + ":"
}

// ParseKey splits a cache key back into user and day range.
func ParseKey(key string) (string, DayRange, bool) {
	rest, ok := strings.CutPrefix(key, keyPrefix)
	if !ok {
		return "", DayRange{}, false
	}
	i := strings.LastIndex(rest, ":")
	if i < 0 {
		return "", DayRange{}, false
	}
	from, to, ok := strings.Cut(rest[i+1:], "..")
	if !ok || len(from) != len(dateLayout) || len(to) != len(dateLayout) {
		return "", DayRange{}, false
	}
	return rest[:i], DayRange{From: from, To: to}, true
}
