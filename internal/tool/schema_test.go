package tool

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSchema = Schema{
	Properties: map[string]Param{
		"events":   {Type: "array", Items: &eventItem},
		"override": {Type: "boolean"},
		"minutes":  {Type: "integer"},
		"pref":     {Type: "string", Enum: []string{"morning", "any"}},
		"day":      {Type: "string", Format: "date"},
	},
	Required: []string{"events"},
}

func TestSchemaParseValid(t *testing.T) {
	args, err := testSchema.Parse(`{"events":[{"summary":"Gym","start":"2025-03-10T07:00:00+01:00","end":"2025-03-10T08:00:00+01:00"}],"override":true,"minutes":30,"pref":"any","day":"2025-03-10","extra":"ignored"}`)
	require.NoError(t, err)
	assert.True(t, args.Bool("override"))
	assert.Equal(t, 30, args.Int("minutes", 0))
	require.Len(t, args.Objects("events"), 1)
	assert.Equal(t, "Gym", args.Objects("events")[0].String("summary"))
}

func TestSchemaParseRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"not json", `{"events":`, "not valid JSON"},
		{"not object", `[1,2]`, "must be a JSON object"},
		{"missing required", `{}`, "missing required field: events"},
		{"null required", `{"events":null}`, "missing required field: events"},
		{"wrong type", `{"events":"today"}`, "expected array but got string"},
		{"item type", `{"events":[42]}`, "events[0]: expected object but got number"},
		{"item missing field", `{"events":[{"summary":"x","start":"2025-03-10T07:00:00Z"}]}`, "missing required field: events[0].end"},
		{"bad date-time", `{"events":[{"summary":"x","start":"tomorrow 9am","end":"2025-03-10T07:00:00Z"}]}`, "not an RFC 3339 timestamp"},
		{"missing offset", `{"events":[{"summary":"x","start":"2025-03-10T07:00:00","end":"2025-03-10T08:00:00Z"}]}`, "not an RFC 3339 timestamp"},
		{"non integer", `{"events":[],"minutes":1.5}`, "expected integer"},
		{"enum", `{"events":[],"pref":"night"}`, "is not one of"},
		{"bad date", `{"events":[],"day":"10/03/2025"}`, "not a YYYY-MM-DD date"},
		{"boolean as string", `{"events":[],"override":"yes"}`, "expected boolean but got string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testSchema.Parse(tt.raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidArguments))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSchemaParseEmptyArguments(t *testing.T) {
	s := Schema{Properties: map[string]Param{"q": {Type: "string"}}}
	args, err := s.Parse("")
	require.NoError(t, err)
	assert.Empty(t, args)
}

func TestSchemaJSON(t *testing.T) {
	js := testSchema.JSON()
	assert.Equal(t, "object", js["type"])
	assert.Equal(t, []string{"events"}, js["required"])
	props := js["properties"].(map[string]any)
	events := props["events"].(map[string]any)
	assert.Equal(t, "array", events["type"])
	items := events["items"].(map[string]any)
	assert.Equal(t, "object", items["type"])
	assert.Equal(t, []string{"summary", "start", "end"}, items["required"])
	pref := props["pref"].(map[string]any)
	assert.Equal(t, []string{"morning", "any"}, pref["enum"])
}

func TestArgsInterval(t *testing.T) {
	args := Args{"start": "2025-03-10T10:00:00Z", "end": "2025-03-10T09:00:00Z"}
	_, _, err := args.Interval("start", "end")
	assert.Error(t, err)

	args["end"] = "2025-03-10T11:00:00Z"
	start, end, err := args.Interval("start", "end")
	require.NoError(t, err)
	assert.True(t, start.Before(end))
}
