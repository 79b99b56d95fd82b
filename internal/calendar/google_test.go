package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calendarbot/internal/domain"
)

func newGoogleTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/calendars/primary/events"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]any{
					{
						"id":      "evt1",
						"summary": "Team meeting",
						"start":   map[string]any{"dateTime": "2025-03-10T09:00:00Z"},
						"end":     map[string]any{"dateTime": "2025-03-10T10:00:00Z"},
					},
					{
						"id":      "evt2",
						"summary": "Holiday",
						"start":   map[string]any{"date": "2025-03-11"},
						"end":     map[string]any{"date": "2025-03-12"},
					},
					{
						"id":     "evt3",
						"status": "cancelled",
					},
				},
			})
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/calendars/primary/events"):
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			body["id"] = "new1"
			_ = json.NewEncoder(w).Encode(body)
		case r.Method == http.MethodDelete && strings.HasSuffix(r.URL.Path, "/events/missing"):
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Not Found"}}`))
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
}

func TestGoogleBackend(t *testing.T) {
	srv := newGoogleTestServer(t)
	defer srv.Close()

	g := NewGoogle(GoogleConfig{Endpoint: srv.URL + "/"}).WithHTTPClient(srv.Client())
	svc := NewService(g)
	ctx := context.Background()
	caller := domain.Caller{UserID: "alice"}

	events, err := svc.ListEvents(ctx, caller, at("2025-03-10T00:00:00Z"), at("2025-03-12T00:00:00Z"))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Team meeting", events[0].Summary)
	assert.False(t, events[0].AllDay)
	assert.True(t, events[1].AllDay)
	assert.True(t, events[1].Start.Equal(at("2025-03-11T00:00:00Z")))

	created, err := svc.CreateEvent(ctx, caller, domain.EventInput{
		Summary: "Lunch",
		Start:   at("2025-03-10T12:00:00Z"),
		End:     at("2025-03-10T13:00:00Z"),
	})
	require.NoError(t, err)
	assert.Equal(t, "new1", created.ID)
	assert.True(t, created.End.Equal(at("2025-03-10T13:00:00Z")))

	require.NoError(t, svc.DeleteEvent(ctx, caller, "evt1"))
	err = svc.DeleteEvent(ctx, caller, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGoogleAllDayUsesCalendarTimeZone(t *testing.T) {
	srv := newGoogleTestServer(t)
	defer srv.Close()

	g := NewGoogle(GoogleConfig{Endpoint: srv.URL + "/", TimeZone: "Asia/Tokyo"}).WithHTTPClient(srv.Client())
	events, err := NewService(g).ListEvents(context.Background(), domain.Caller{UserID: "alice"},
		at("2025-03-10T00:00:00Z"), at("2025-03-12T00:00:00Z"))
	require.NoError(t, err)
	require.Len(t, events, 2)

	holiday := events[1]
	require.True(t, holiday.AllDay)
	assert.True(t, holiday.Start.Equal(at("2025-03-10T15:00:00Z")), "midnight in Tokyo, got %s", holiday.Start)
	assert.True(t, holiday.End.Equal(at("2025-03-11T15:00:00Z")), "got %s", holiday.End)
	assert.Equal(t, "Asia/Tokyo", holiday.Start.Location().String())

	// A timed event keeps its own offset.
	assert.True(t, events[0].Start.Equal(at("2025-03-10T09:00:00Z")))
}

func TestGoogleRejectsUnknownTimeZone(t *testing.T) {
	g := NewGoogle(GoogleConfig{TimeZone: "Mars/Olympus"}).WithHTTPClient(http.DefaultClient)
	_, err := g.For(context.Background(), domain.Caller{UserID: "alice"})
	assert.Error(t, err)
}

func TestGoogleRequiresCredentials(t *testing.T) {
	_, err := NewGoogle(GoogleConfig{}).For(context.Background(), domain.Caller{UserID: "alice"})
	assert.Error(t, err)
}
