package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// tree renders cfg as the generic map its JSON form decodes to. Dotted
// paths address this tree by its camelCase keys.
func tree(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetByPath returns the value at a dotted path such as
// "scheduling.dayStartHour". List elements are addressed by index.
func GetByPath(cfg *Config, path string) (any, error) {
	m, err := tree(cfg)
	if err != nil {
		return nil, err
	}

	var node any = m
	for _, key := range strings.Split(path, ".") {
		switch v := node.(type) {
		case map[string]any:
			next, ok := v[key]
			if !ok {
				return nil, fmt.Errorf("no config value at %s", path)
			}
			node = next
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(v) {
				return nil, fmt.Errorf("%s: index %q out of range", path, key)
			}
			node = v[i]
		default:
			return nil, fmt.Errorf("%s: %q is not a section", path, key)
		}
	}
	return node, nil
}

// SetByPath assigns value at a dotted path. Strings are coerced to the type
// the field already holds: "8" becomes a number for a numeric field and
// stays "8" for a string field, and "mon,tue" fills a list. Missing
// sections along the path are created. The result is not validated.
func SetByPath(cfg *Config, path string, value any) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("empty path")
	}
	m, err := tree(cfg)
	if err != nil {
		return err
	}

	keys := strings.Split(path, ".")
	section := m
	for _, key := range keys[:len(keys)-1] {
		next, ok := section[key]
		if !ok {
			created := make(map[string]any)
			section[key] = created
			section = created
			continue
		}
		nm, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("%s: %q is not a section", path, key)
		}
		section = nm
	}

	leaf := keys[len(keys)-1]
	section[leaf] = coerce(section[leaf], value)
	err = decodeTree(m, cfg)

	// Empty lists are omitted from the tree, so their type is only known
	// once decoding fails.
	var typeErr *json.UnmarshalTypeError
	if s, ok := value.(string); ok && errors.As(err, &typeErr) {
		section[leaf] = splitList(s)
		err = decodeTree(m, cfg)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func decodeTree(m map[string]any, cfg *Config) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

// coerce converts value to match the JSON type of current.
func coerce(current, value any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	switch current.(type) {
	case string:
		return s
	case []any:
		return splitList(s)
	}
	return parseScalar(s)
}

// splitList reads a comma-separated list. An empty string is an empty list.
func splitList(s string) []any {
	items := []any{}
	if strings.TrimSpace(s) == "" {
		return items
	}
	for _, part := range strings.Split(s, ",") {
		items = append(items, strings.TrimSpace(part))
	}
	return items
}

// parseScalar reads booleans and numbers out of s, or returns s unchanged.
func parseScalar(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// Sanitize returns a copy of cfg safe to print: API keys, calendar tokens
// and the Valkey password are masked.
func Sanitize(cfg *Config) *Config {
	out := *cfg
	out.Providers = make(map[string]ProviderConfig, len(cfg.Providers))
	for name, p := range cfg.Providers {
		p.APIKey = maskString(p.APIKey)
		out.Providers[name] = p
	}
	out.Calendar.AccessToken = maskString(cfg.Calendar.AccessToken)
	out.Calendar.RefreshToken = maskString(cfg.Calendar.RefreshToken)
	if cfg.Cache.Valkey.Password != "" {
		out.Cache.Valkey.Password = "***"
	}
	return &out
}

// maskString keeps the first and last four characters of long secrets.
// Empty stays empty.
func maskString(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths flattens cfg into dotted path -> value pairs.
func ListPaths(cfg *Config) map[string]any {
	m, err := tree(cfg)
	if err != nil {
		return nil
	}
	out := make(map[string]any)
	flatten("", m, out)
	return out
}

func flatten(prefix string, m map[string]any, out map[string]any) {
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			flatten(path, child, out)
			continue
		}
		out[path] = v
	}
}
