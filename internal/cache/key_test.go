package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewDayRange(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		from, to   string
	}{
		{"same day", "2025-03-10T09:00:00Z", "2025-03-10T10:00:00Z", "2025-03-10", "2025-03-10"},
		{"ends at midnight", "2025-03-10T22:00:00Z", "2025-03-11T00:00:00Z", "2025-03-10", "2025-03-10"},
		{"spans days", "2025-03-10T23:00:00Z", "2025-03-12T01:00:00Z", "2025-03-10", "2025-03-12"},
		{"offset converted", "2025-03-10T23:30:00-05:00", "2025-03-11T00:30:00-05:00", "2025-03-11", "2025-03-11"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, _ := time.Parse(time.RFC3339, tt.start)
			end, _ := time.Parse(time.RFC3339, tt.end)
			r := NewDayRange(start, end, time.UTC)
			assert.Equal(t, tt.from, r.From)
			assert.Equal(t, tt.to, r.To)
		})
	}
}

func TestKeyRoundTrip(t *testing.T) {
	r := DayRange{From: "2025-03-10", To: "2025-03-12"}
	key := Key("user:42", r)
	assert.Equal(t, "calendar:user:42:2025-03-10..2025-03-12", key)

	user, got, ok := ParseKey(key)
	assert.True(t, ok)
	assert.Equal(t, "user:42", user)
	assert.Equal(t, r, got)

	_, _, ok = ParseKey("calendar:bob:garbage")
	assert.False(t, ok)
	_, _, ok = ParseKey("other:bob:2025-03-10..2025-03-10")
	assert.False(t, ok)
}

func TestDayRangeOverlaps(t *testing.T) {
	a := DayRange{From: "2025-03-10", To: "2025-03-12"}
	assert.True(t, a.Overlaps(DayRange{From: "2025-03-12", To: "2025-03-14"}))
	assert.True(t, a.Overlaps(DayRange{From: "2025-03-11", To: "2025-03-11"}))
	assert.False(t, a.Overlaps(DayRange{From: "2025-03-13", To: "2025-03-14"}))
	assert.False(t, a.Overlaps(DayRange{From: "2025-03-01", To: "2025-03-09"}))
}

func TestDayRangeBounds(t *testing.T) {
	from, to, err := DayRange{From: "2025-03-10", To: "2025-03-11"}.Bounds(time.UTC)
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC), to)
}
