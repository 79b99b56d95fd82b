package tool

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Param describes a single tool parameter.
type Param struct {
	Type        string // string | integer | number | boolean | array | object
	Description string
	Enum        []string
	Format      string // "date-time" requires RFC 3339 with offset, "date" YYYY-MM-DD
	Items       *Param // element schema for arrays
	Properties  map[string]Param
	Required    []string
}

// Schema is the parameter schema of a tool: an object with named fields.
type Schema struct {
	Properties map[string]Param
	Required   []string
}

// JSON renders the schema as a JSON Schema "parameters" object.
func (s Schema) JSON() map[string]any {
	return objectJSON(s.Properties, s.Required)
}

func objectJSON(properties map[string]Param, required []string) map[string]any {
	props := make(map[string]any, len(properties))
	for name, p := range properties {
		props[name] = p.json()
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func (p Param) json() map[string]any {
	if p.Type == "object" {
		m := objectJSON(p.Properties, p.Required)
		if p.Description != "" {
			m["description"] = p.Description
		}
		return m
	}
	m := map[string]any{"type": p.Type}
	if p.Description != "" {
		m["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		m["enum"] = p.Enum
	}
	if p.Format != "" {
		m["format"] = p.Format
	}
	if p.Items != nil {
		m["items"] = p.Items.json()
	}
	return m
}

// Parse decodes raw model arguments and validates them. Empty input counts
// as an empty object.
func (s Schema) Parse(raw string) (Args, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		raw = "{}"
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("%w: arguments are not valid JSON: %v", ErrInvalidArguments, err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: arguments must be a JSON object", ErrInvalidArguments)
	}
	if err := validateObject(obj, s.Properties, s.Required, ""); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return Args(obj), nil
}

func validateObject(obj map[string]any, props map[string]Param, required []string, path string) error {
	for _, field := range required {
		v, ok := obj[field]
		if !ok || v == nil {
			return fmt.Errorf("missing required field: %s", path+field)
		}
	}
	for key, value := range obj {
		p, ok := props[key]
		if !ok || value == nil {
			continue
		}
		if err := validateValue(value, p, path+key); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(value any, p Param, path string) error {
	switch p.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return typeError(path, p.Type, value)
		}
		if len(p.Enum) > 0 && !contains(p.Enum, s) {
			return fmt.Errorf("field %s: %q is not one of %s", path, s, strings.Join(p.Enum, ", "))
		}
		return validateFormat(s, p.Format, path)
	case "integer":
		f, ok := value.(float64)
		if !ok || math.Trunc(f) != f {
			return typeError(path, p.Type, value)
		}
	case "number":
		if _, ok := value.(float64); !ok {
			return typeError(path, p.Type, value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return typeError(path, p.Type, value)
		}
	case "array":
		items, ok := value.([]any)
		if !ok {
			return typeError(path, p.Type, value)
		}
		if p.Items == nil {
			return nil
		}
		for i, item := range items {
			if err := validateValue(item, *p.Items, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			return typeError(path, p.Type, value)
		}
		return validateObject(obj, p.Properties, p.Required, path+".")
	default:
		return fmt.Errorf("field %s: unsupported schema type %q", path, p.Type)
	}
	return nil
}

func validateFormat(s, format, path string) error {
	switch format {
	case "date-time":
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			return fmt.Errorf("field %s: %q is not an RFC 3339 timestamp with offset", path, s)
		}
	case "date":
		if _, err := time.Parse(dateLayout, s); err != nil {
			return fmt.Errorf("field %s: %q is not a YYYY-MM-DD date", path, s)
		}
	}
	return nil
}

func typeError(path, expected string, value any) error {
	return fmt.Errorf("field %s: expected %s but got %s", path, expected, jsonKind(value))
}

func jsonKind(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
