package tool

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"calendarbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func stubDef(name Name, out Outcome) Definition {
	return Definition{
		Name:        name,
		Description: "stub: " + string(name),
		Schema:      Schema{Properties: map[string]Param{}},
		Handler: func(context.Context, Args, domain.Caller) Outcome {
			return out
		},
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry(testLogger())
	if err := reg.Register(stubDef(GetEvents, Ok("x"))); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, ok := reg.Get("get_events")
	if !ok {
		t.Fatal("expected to find registered tool")
	}
	if got.Name != GetEvents {
		t.Fatalf("expected get_events, got %q", got.Name)
	}
}

func TestRegistry_GetMissing(t *testing.T) {
	reg := NewRegistry(testLogger())
	if _, ok := reg.Get("nonexistent"); ok {
		t.Fatal("expected no tool for unknown name")
	}
}

func TestRegistry_RejectsUnknownName(t *testing.T) {
	reg := NewRegistry(testLogger())
	err := reg.Register(stubDef("shell", Ok("x")))
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
}

func TestRegistry_RejectsDuplicate(t *testing.T) {
	reg := NewRegistry(testLogger())
	if err := reg.Register(stubDef(GetWeather, Ok("x"))); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := reg.Register(stubDef(GetWeather, Ok("y")))
	if !errors.Is(err, ErrDuplicateTool) {
		t.Fatalf("expected ErrDuplicateTool, got %v", err)
	}
}

func TestRegistry_RejectsMissingHandler(t *testing.T) {
	reg := NewRegistry(testLogger())
	if err := reg.Register(Definition{Name: GetEvents}); err == nil {
		t.Fatal("expected error for definition without handler")
	}
}

func TestRegistry_DefinitionsFollowEnumOrder(t *testing.T) {
	reg := NewRegistry(testLogger())
	for _, n := range []Name{DeleteEventsByQuery, SavePreference, GetEvents} {
		if err := reg.Register(stubDef(n, Ok("x"))); err != nil {
			t.Fatalf("register %s: %v", n, err)
		}
	}

	defs := reg.GetDefinitions()
	want := []string{"save_preference", "get_events", "delete_events_by_query"}
	if len(defs) != len(want) {
		t.Fatalf("expected %d definitions, got %d", len(want), len(defs))
	}
	for i, d := range defs {
		if d.Name != want[i] {
			t.Errorf("definition %d: expected %s, got %s", i, want[i], d.Name)
		}
		if d.Parameters["type"] != "object" {
			t.Errorf("definition %s: expected object schema", d.Name)
		}
	}
}
