package agent

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"calendarbot/internal/domain"
)

// extractToolCallsFromContent parses tool calls that a model wrote into its
// content instead of the structured tool_calls field. Small local models do
// this a lot. Accepted shapes:
//   - a bare object: `{"name":"get_events","arguments":{...}}`
//   - an array of such objects
//   - either of the above inside a ```json fence
//   - either of the above surrounded by chatter ("Sure.\n{...}\nOne moment.")
func extractToolCallsFromContent(content string) []domain.ToolCall {
	content = strings.TrimSpace(stripRolePrefix(content))

	if strings.HasPrefix(content, "```") {
		lines := strings.Split(content, "\n")
		if len(lines) >= 3 && strings.HasPrefix(lines[len(lines)-1], "```") {
			content = strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
		}
	}

	if calls := tryParseToolJSON(content); len(calls) > 0 {
		return calls
	}

	if start, end := findJSONBounds(content); start >= 0 && end > start {
		if calls := tryParseToolJSON(content[start:end]); len(calls) > 0 {
			return calls
		}
	}
	return nil
}

// findJSONBounds locates the first top-level JSON object or array in s and
// returns [start, end). It returns (-1, -1) when nothing balanced is found.
func findJSONBounds(s string) (int, int) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return -1, -1
	}

	openChar := s[start]
	closeChar := byte('}')
	if openChar == '[' {
		closeChar = ']'
	}

	depth := 0
	inStr := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			if ch == '\\' {
				i++
				continue
			}
			if ch == '"' {
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case openChar:
			depth++
		case closeChar:
			depth--
			if depth == 0 {
				return start, i + 1
			}
		}
	}
	return -1, -1
}

type contentToolCall struct {
	Name       string          `json:"name"`
	Parameters json.RawMessage `json:"parameters"`
	Arguments  json.RawMessage `json:"arguments"`
}

func tryParseToolJSON(raw string) []domain.ToolCall {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil
	}
	if !json.Valid([]byte(text)) {
		text = sanitizeJSONEscapes(text)
		if !json.Valid([]byte(text)) {
			return nil
		}
	}

	var parsed []contentToolCall
	if text[0] == '[' {
		if err := json.Unmarshal([]byte(text), &parsed); err != nil {
			return nil
		}
	} else {
		var single contentToolCall
		if err := json.Unmarshal([]byte(text), &single); err != nil {
			return nil
		}
		parsed = append(parsed, single)
	}

	var calls []domain.ToolCall
	for _, tc := range parsed {
		if tc.Name == "" {
			continue
		}
		calls = append(calls, domain.ToolCall{
			ID:           "call_" + uuid.NewString(),
			Name:         normalizeToolName(tc.Name),
			RawArguments: rawArguments(tc.Parameters, tc.Arguments),
		})
	}
	return calls
}

// rawArguments picks whichever of the two fields the model filled in. Some
// models double-encode the arguments as a JSON string; that string is
// unwrapped so the dispatcher sees an object.
func rawArguments(candidates ...json.RawMessage) string {
	for _, c := range candidates {
		c = bytes.TrimSpace(c)
		if len(c) == 0 || bytes.Equal(c, []byte("null")) {
			continue
		}
		if c[0] == '"' {
			var inner string
			if err := json.Unmarshal(c, &inner); err == nil {
				return inner
			}
		}
		return string(c)
	}
	return "{}"
}

// normalizeToolName maps the spellings small models tend to invent onto the
// registered tool names.
func normalizeToolName(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	aliases := map[string]string{
		"addevents":           "add_events",
		"add_event":           "add_events",
		"create_event":        "add_events",
		"getevents":           "get_events",
		"get_event":           "get_events",
		"list_events":         "get_events",
		"deleteevent":         "delete_event",
		"remove_event":        "delete_event",
		"updateevent":         "update_event",
		"move_event":          "update_event",
		"find_slots":          "find_available_slots",
		"findavailableslots":  "find_available_slots",
		"find_free_slots":     "find_available_slots",
		"getweather":          "get_weather",
		"weather":             "get_weather",
		"savepreference":      "save_preference",
		"remember":            "save_preference",
		"deleteeventsbyquery": "delete_events_by_query",
		"delete_events":       "delete_events_by_query",
		"delete_events_query": "delete_events_by_query",
	}
	if mapped, ok := aliases[key]; ok {
		return mapped
	}
	return key
}

// stripRolePrefix removes a leaked "assistant" role marker from the start of
// content, e.g. "assistant\nHello" or "Assistant: Hello".
func stripRolePrefix(content string) string {
	prefixes := []string{
		"assistant\n",
		"Assistant\n",
		"assistant:\n",
		"Assistant:\n",
		"assistant: ",
		"Assistant: ",
	}
	for _, p := range prefixes {
		if strings.HasPrefix(content, p) {
			return strings.TrimSpace(content[len(p):])
		}
	}
	return content
}

// sanitizeJSONEscapes drops the backslash of escape sequences JSON does not
// allow (\% or \Y), which some models emit inside strings.
func sanitizeJSONEscapes(s string) string {
	var buf strings.Builder
	buf.Grow(len(s))
	inString := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '"' && (i == 0 || s[i-1] != '\\') {
			inString = !inString
			buf.WriteByte(ch)
			continue
		}
		if inString && ch == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
				buf.WriteByte(ch)
				buf.WriteByte(s[i+1])
				i++
			}
			continue
		}
		buf.WriteByte(ch)
	}
	return buf.String()
}
