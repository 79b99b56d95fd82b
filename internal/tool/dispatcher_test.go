package tool

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calendarbot/internal/domain"
)

func newStubDispatcher(t *testing.T, defs ...Definition) *Dispatcher {
	t.Helper()
	reg := NewRegistry(testLogger())
	for _, d := range defs {
		require.NoError(t, reg.Register(d))
	}
	return NewDispatcher(reg, testLogger(), nil)
}

var tester = domain.Caller{UserID: "tester"}

func TestDispatchUnknownToolNeverInvokesHandler(t *testing.T) {
	called := false
	def := stubDef(GetEvents, Ok("x"))
	def.Handler = func(context.Context, Args, domain.Caller) Outcome {
		called = true
		return Ok("x")
	}
	d := newStubDispatcher(t, def)

	res := d.Execute(context.Background(), domain.ToolCall{ID: "c1", Name: "rm_rf", RawArguments: "{}"}, tester)
	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.True(t, strings.HasPrefix(res.Text, "FAILED: "))
	assert.Equal(t, "c1", res.ToolCallID)
	assert.False(t, called)
}

func TestDispatchInvalidArgumentsNeverInvokesHandler(t *testing.T) {
	called := false
	def := Definition{
		Name:   DeleteEvent,
		Schema: Schema{Properties: map[string]Param{"event_id": {Type: "string"}}, Required: []string{"event_id"}},
		Handler: func(context.Context, Args, domain.Caller) Outcome {
			called = true
			return Ok("x")
		},
	}
	d := newStubDispatcher(t, def)

	for _, raw := range []string{`{}`, `{"event_id": 7}`, `not json`} {
		res := d.Execute(context.Background(), domain.ToolCall{ID: "c", Name: "delete_event", RawArguments: raw}, tester)
		assert.Equal(t, domain.StatusFailed, res.Status, raw)
		assert.Contains(t, res.Text, "invalid arguments", raw)
	}
	assert.False(t, called)
}

func TestDispatchStatusPrefixes(t *testing.T) {
	tests := []struct {
		name   string
		out    Outcome
		status domain.StatusTag
		text   string
	}{
		{"success", Ok(map[string]int{"n": 1}), domain.StatusSuccess, `SUCCESS: {"n":1}`},
		{"neutral", Neutral("nothing found"), domain.StatusNeutral, "NEUTRAL: nothing found"},
		{"empty ok", Ok([]string{}), domain.StatusNeutral, "NEUTRAL: nothing to report"},
		{"conflict", Conflict(nil, "overlaps Sync"), domain.StatusConflict, "CONFLICT: overlaps Sync"},
		{"failed", Fail(errors.New("calendar down")), domain.StatusFailed, "FAILED: calendar down"},
		{"unknown", Outcome{Message: "odd"}, domain.StatusUnknown, "UNKNOWN: odd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newStubDispatcher(t, stubDef(GetEvents, tt.out))
			res := d.Execute(context.Background(), domain.ToolCall{ID: "c", Name: "get_events"}, tester)
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.text, res.Text)
		})
	}
}

func TestDispatchHandlerPanicBecomesFailure(t *testing.T) {
	def := stubDef(GetEvents, Outcome{})
	def.Handler = func(context.Context, Args, domain.Caller) Outcome { panic("nil map") }
	d := newStubDispatcher(t, def)

	res := d.Execute(context.Background(), domain.ToolCall{ID: "c", Name: "get_events"}, tester)
	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Equal(t, "FAILED: internal error in get_events", res.Text)
}

func TestDispatchFormatterFailures(t *testing.T) {
	failing := stubDef(GetEvents, Ok("payload"))
	failing.Summarize = func(Outcome) (string, error) { return "", errors.New("bad payload") }

	panicking := stubDef(GetWeather, Ok("payload"))
	panicking.Summarize = func(Outcome) (string, error) { panic("boom") }

	unencodable := stubDef(DeleteEvent, Ok(map[string]any{"ch": make(chan int)}))

	d := newStubDispatcher(t, failing, panicking, unencodable)
	for _, name := range []string{"get_events", "get_weather", "delete_event"} {
		res := d.Execute(context.Background(), domain.ToolCall{ID: "c", Name: name}, tester)
		assert.Equal(t, domain.StatusUnknown, res.Status, name)
		assert.Equal(t, "ERROR: could not format result of "+name, res.Text)
	}
}
