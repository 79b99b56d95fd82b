package agent

import (
	"encoding/json"
	"testing"
)

// --- extractToolCallsFromContent ---

func TestExtractToolCalls_SingleObject(t *testing.T) {
	input := `{"name": "get_events", "arguments": {"query": "dentist"}}`
	calls := extractToolCallsFromContent(input)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Name != "get_events" {
		t.Fatalf("expected 'get_events', got %q", calls[0].Name)
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(calls[0].RawArguments), &args); err != nil {
		t.Fatalf("arguments are not JSON: %v", err)
	}
	if args["query"] != "dentist" {
		t.Fatalf("expected 'dentist', got %v", args["query"])
	}
	if calls[0].ID == "" {
		t.Fatal("extracted call has no id")
	}
}

func TestExtractToolCalls_ParametersField(t *testing.T) {
	input := `{"name": "delete_event", "parameters": {"event_id": "e1"}}`
	calls := extractToolCallsFromContent(input)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].RawArguments != `{"event_id": "e1"}` {
		t.Fatalf("expected raw parameters, got %s", calls[0].RawArguments)
	}
}

func TestExtractToolCalls_StringEncodedArguments(t *testing.T) {
	input := `{"name": "delete_event", "arguments": "{\"event_id\": \"e1\"}"}`
	calls := extractToolCallsFromContent(input)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].RawArguments != `{"event_id": "e1"}` {
		t.Fatalf("expected unwrapped arguments, got %s", calls[0].RawArguments)
	}
}

func TestExtractToolCalls_Array(t *testing.T) {
	input := `[{"name": "get_events", "arguments": {}}, {"name": "get_weather", "arguments": {"location": "Oslo"}}]`
	calls := extractToolCallsFromContent(input)
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].ID == calls[1].ID {
		t.Fatal("extracted calls share an id")
	}
}

func TestExtractToolCalls_CodeFenceWrapped(t *testing.T) {
	input := "```json\n{\"name\": \"get_events\", \"arguments\": {}}\n```"
	calls := extractToolCallsFromContent(input)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call from code fence, got %d", len(calls))
	}
}

func TestExtractToolCalls_SurroundingText(t *testing.T) {
	input := "assistant\nSure.\n{\"name\": \"get_weather\", \"arguments\": {\"location\": \"Paris\"}}\nOne moment."
	calls := extractToolCallsFromContent(input)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Name != "get_weather" {
		t.Fatalf("expected 'get_weather', got %q", calls[0].Name)
	}
}

func TestExtractToolCalls_PlainText(t *testing.T) {
	calls := extractToolCallsFromContent("Sure, your meeting is at 3pm!")
	if len(calls) != 0 {
		t.Fatalf("expected 0 calls for plain text, got %d", len(calls))
	}
}

func TestExtractToolCalls_EmptyName(t *testing.T) {
	calls := extractToolCallsFromContent(`{"name": "", "arguments": {}}`)
	if len(calls) != 0 {
		t.Fatalf("expected 0 calls for empty name, got %d", len(calls))
	}
}

func TestExtractToolCalls_EmptyString(t *testing.T) {
	if calls := extractToolCallsFromContent(""); len(calls) != 0 {
		t.Fatalf("expected 0 calls for empty input, got %d", len(calls))
	}
}

func TestExtractToolCalls_NoArguments(t *testing.T) {
	calls := extractToolCallsFromContent(`{"name": "get_events"}`)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].RawArguments != "{}" {
		t.Fatalf("expected empty object, got %q", calls[0].RawArguments)
	}
}

func TestExtractToolCalls_WithInvalidEscapes(t *testing.T) {
	input := `{"name": "save_preference", "arguments": {"content": "100\% remote on fridays"}}`
	calls := extractToolCallsFromContent(input)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call after sanitization, got %d", len(calls))
	}
	if !json.Valid([]byte(calls[0].RawArguments)) {
		t.Fatalf("arguments should be valid JSON, got %s", calls[0].RawArguments)
	}
}

// --- normalizeToolName ---

func TestNormalizeToolName(t *testing.T) {
	cases := map[string]string{
		"addEvents":           "add_events",
		"find-slots":          "find_available_slots",
		"Get Weather":         "get_weather",
		"delete_event":        "delete_event",
		"DeleteEventsByQuery": "delete_events_by_query",
		"something_else":      "something_else",
	}
	for in, want := range cases {
		if got := normalizeToolName(in); got != want {
			t.Errorf("normalizeToolName(%q) = %q, want %q", in, got, want)
		}
	}
}

// --- stripRolePrefix ---

func TestStripRolePrefix(t *testing.T) {
	if got := stripRolePrefix("Assistant: Hello"); got != "Hello" {
		t.Fatalf("got %q", got)
	}
	if got := stripRolePrefix("Hello"); got != "Hello" {
		t.Fatalf("got %q", got)
	}
}

// --- sanitizeJSONEscapes ---

func TestSanitizeJSONEscapes_ValidJSON(t *testing.T) {
	input := `{"key": "value with \"quotes\" and \\backslash"}`
	if result := sanitizeJSONEscapes(input); result != input {
		t.Fatalf("valid JSON should not change:\n  got:  %q\n  want: %q", result, input)
	}
}

func TestSanitizeJSONEscapes_InvalidEscape(t *testing.T) {
	result := sanitizeJSONEscapes(`{"key": "100\% done"}`)
	expected := `{"key": "100% done"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestSanitizeJSONEscapes_MultipleInvalid(t *testing.T) {
	result := sanitizeJSONEscapes(`{"msg": "Hello \World \! \?"}`)
	expected := `{"msg": "Hello World ! ?"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestSanitizeJSONEscapes_PreservesValidEscapes(t *testing.T) {
	input := `{"text": "line1\nline2\ttab"}`
	if result := sanitizeJSONEscapes(input); result != input {
		t.Fatalf("valid escapes should be preserved: got %q", result)
	}
}

func TestSanitizeJSONEscapes_EmptyString(t *testing.T) {
	if result := sanitizeJSONEscapes(""); result != "" {
		t.Fatalf("expected empty, got %q", result)
	}
}
