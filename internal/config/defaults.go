package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:              "info",
			LogFormat:             "text",
			UserID:                "local",
			DefaultProvider:       "ollama",
			MaxIterations:         5,
			MaxParallelTools:      4,
			MaxConcurrentMessages: 3,
			HistoryLimit:          30,
			MaxTokens:             2048,
			Temperature:           0.2,
			ThinkingLevel:         "concise",
			RateLimitBurst:        5,
			RateLimitPerMinute:    30,
		},
		Providers: map[string]ProviderConfig{
			"ollama": {
				Enabled:      true,
				APIBase:      "http://localhost:11434",
				DefaultModel: "llama3.1:8b",
			},
			"openai": {
				Enabled:      false,
				APIBase:      "https://api.openai.com/v1",
				DefaultModel: "gpt-4o-mini",
			},
			"claude": {
				Enabled:      false,
				APIBase:      "https://api.anthropic.com/v1",
				DefaultModel: "claude-sonnet-4-5",
			},
		},
		Memory: MemoryConfig{
			Enabled:       true,
			DBPath:        filepath.Join(DefaultConfigDir(), "calendarbot.db"),
			RetentionDays: 90,
		},
		Cache: CacheConfig{
			TTLSeconds: 300,
			Valkey: ValkeyConfig{
				URL:       "localhost:6379",
				KeyPrefix: "calendarbot:",
			},
		},
		Calendar: CalendarConfig{
			Backend:    "memory",
			CalendarID: "primary",
			TimeZone:   "UTC",
		},
		Scheduling: SchedulingConfig{
			WorkingDays:            []string{"mon", "tue", "wed", "thu", "fri"},
			DayStartHour:           9,
			DayEndHour:             17,
			GranularityMinutes:     30,
			AdjacencyBufferMinutes: 30,
			MaxSuggestions:         3,
			SuggestionWindowHours:  12,
			BlockingKeywords:       []string{"meeting", "appointment", "interview", "call", "conference"},
		},
		Weather: WeatherConfig{
			Enabled:        true,
			TimeoutSeconds: 10,
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9464",
		},
		Tracing: TracingConfig{
			Exporter:     "none",
			SamplingRate: 1,
		},
	}
}

// ParseWeekdays turns short or long English day names into weekdays.
func ParseWeekdays(names []string) ([]time.Weekday, error) {
	out := make([]time.Weekday, 0, len(names))
	for _, n := range names {
		d, ok := parseWeekday(n)
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", n)
		}
		out = append(out, d)
	}
	return out, nil
}

func parseWeekday(name string) (time.Weekday, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, true
		}
	}
	return 0, false
}
