package tool

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Args are validated tool arguments.
type Args map[string]any

func (a Args) String(key string) string {
	s, _ := a[key].(string)
	return s
}

func (a Args) Bool(key string) bool {
	b, _ := a[key].(bool)
	return b
}

func (a Args) Int(key string, def int) int {
	f, ok := a[key].(float64)
	if !ok {
		return def
	}
	return int(f)
}

// Time parses an RFC 3339 field. Missing fields give the zero time.
func (a Args) Time(key string) (time.Time, error) {
	s := a.String(key)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %q is not an RFC 3339 timestamp", key, s)
	}
	return t, nil
}

// Interval parses a start/end pair and requires start < end.
func (a Args) Interval(startKey, endKey string) (time.Time, time.Time, error) {
	start, err := a.Time(startKey)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := a.Time(endKey)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if start.IsZero() || end.IsZero() {
		return time.Time{}, time.Time{}, fmt.Errorf("%s and %s are required", startKey, endKey)
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("%s must be before %s", startKey, endKey)
	}
	return start, end, nil
}

// Objects returns the object elements of an array field.
func (a Args) Objects(key string) []Args {
	items, _ := a[key].([]any)
	out := make([]Args, 0, len(items))
	for _, it := range items {
		if m, ok := it.(map[string]any); ok {
			out = append(out, Args(m))
		}
	}
	return out
}
