package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration. Field names double as the dot paths used
// by `calendarbot config get|set`.
type Config struct {
	General    GeneralConfig             `json:"general" yaml:"general"`
	Providers  map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Memory     MemoryConfig              `json:"memory" yaml:"memory"`
	Cache      CacheConfig               `json:"cache" yaml:"cache"`
	Calendar   CalendarConfig            `json:"calendar" yaml:"calendar"`
	Scheduling SchedulingConfig          `json:"scheduling" yaml:"scheduling"`
	Weather    WeatherConfig             `json:"weather" yaml:"weather"`
	Metrics    MetricsConfig             `json:"metrics" yaml:"metrics"`
	Tracing    TracingConfig             `json:"tracing" yaml:"tracing"`
}

type GeneralConfig struct {
	LogLevel              string   `json:"logLevel" yaml:"logLevel"`
	LogFormat             string   `json:"logFormat" yaml:"logFormat"` // text | json
	LogFile               string   `json:"logFile" yaml:"logFile"`
	UserID                string   `json:"userId" yaml:"userId"`
	DefaultProvider       string   `json:"defaultProvider" yaml:"defaultProvider"`
	FailoverChain         []string `json:"failoverChain,omitempty" yaml:"failoverChain,omitempty"`
	MaxIterations         int      `json:"maxIterations" yaml:"maxIterations"`
	MaxParallelTools      int      `json:"maxParallelTools" yaml:"maxParallelTools"`
	MaxConcurrentMessages int      `json:"maxConcurrentMessages" yaml:"maxConcurrentMessages"`
	HistoryLimit          int      `json:"historyLimit" yaml:"historyLimit"`
	// TurnTimeoutSeconds bounds a whole turn; 0 disables the deadline.
	TurnTimeoutSeconds int     `json:"turnTimeoutSeconds" yaml:"turnTimeoutSeconds"`
	MaxTokens          int     `json:"maxTokens" yaml:"maxTokens"`
	Temperature        float64 `json:"temperature" yaml:"temperature"`
	ThinkingLevel      string  `json:"thinkingLevel" yaml:"thinkingLevel"` // concise | normal
	SystemPromptExtra  string  `json:"systemPromptExtra,omitempty" yaml:"systemPromptExtra,omitempty"`
	RateLimitBurst     int     `json:"rateLimitBurst" yaml:"rateLimitBurst"`
	RateLimitPerMinute int     `json:"rateLimitPerMinute" yaml:"rateLimitPerMinute"`
}

type ProviderConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Type selects the wire protocol: openai, ollama or claude. Empty means
	// the provider's key in the providers map.
	Type           string `json:"type,omitempty" yaml:"type,omitempty"`
	APIBase        string `json:"apiBase,omitempty" yaml:"apiBase,omitempty"`
	APIKey         string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	DefaultModel   string `json:"defaultModel,omitempty" yaml:"defaultModel,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty" yaml:"timeoutSeconds,omitempty"`
}

type MemoryConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	DBPath  string `json:"dbPath" yaml:"dbPath"`
	// RetentionDays prunes messages older than this on startup; 0 keeps all.
	RetentionDays int `json:"retentionDays" yaml:"retentionDays"`
}

type CacheConfig struct {
	TTLSeconds int          `json:"ttlSeconds" yaml:"ttlSeconds"`
	Valkey     ValkeyConfig `json:"valkey" yaml:"valkey"`
}

type ValkeyConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	URL       string `json:"url" yaml:"url"`
	Password  string `json:"password,omitempty" yaml:"password,omitempty"`
	DB        int    `json:"db" yaml:"db"`
	TLS       bool   `json:"tls" yaml:"tls"`
	KeyPrefix string `json:"keyPrefix" yaml:"keyPrefix"`
}

type CalendarConfig struct {
	Backend    string `json:"backend" yaml:"backend"` // memory | google
	CalendarID string `json:"calendarId" yaml:"calendarId"`
	TimeZone   string `json:"timeZone" yaml:"timeZone"`
	Endpoint   string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	// Static credentials for the local user. Refreshing them is left to
	// whoever writes the file.
	AccessToken  string `json:"accessToken,omitempty" yaml:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty" yaml:"refreshToken,omitempty"`
}

type SchedulingConfig struct {
	WorkingDays            []string `json:"workingDays" yaml:"workingDays"`
	DayStartHour           int      `json:"dayStartHour" yaml:"dayStartHour"`
	DayEndHour             int      `json:"dayEndHour" yaml:"dayEndHour"`
	GranularityMinutes     int      `json:"granularityMinutes" yaml:"granularityMinutes"`
	AdjacencyBufferMinutes int      `json:"adjacencyBufferMinutes" yaml:"adjacencyBufferMinutes"`
	MaxSuggestions         int      `json:"maxSuggestions" yaml:"maxSuggestions"`
	SuggestionWindowHours  int      `json:"suggestionWindowHours" yaml:"suggestionWindowHours"`
	BlockingKeywords       []string `json:"blockingKeywords" yaml:"blockingKeywords"`
}

type WeatherConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled"`
	GeocodeURL     string `json:"geocodeUrl,omitempty" yaml:"geocodeUrl,omitempty"`
	ForecastURL    string `json:"forecastUrl,omitempty" yaml:"forecastUrl,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds" yaml:"timeoutSeconds"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type TracingConfig struct {
	Enabled      bool    `json:"enabled" yaml:"enabled"`
	Exporter     string  `json:"exporter" yaml:"exporter"` // none | stdout
	SamplingRate float64 `json:"samplingRate" yaml:"samplingRate"`
}

func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".calendarbot"
	}
	return filepath.Join(home, ".calendarbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Load reads a config file over the defaults. Files ending in .yaml or .yml
// are decoded as YAML, anything else as JSON.
func Load(path string) (*Config, error) {
	path = expandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Memory.DBPath = expandPath(cfg.Memory.DBPath)
	cfg.General.LogFile = expandPath(cfg.General.LogFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars substitutes ${VAR} and ${VAR:-default}. An unset variable
// without a default is left as written.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		fallback, hasDefault := "", len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			fallback = groups[2]
		}
		if val, ok := os.LookupEnv(groups[1]); ok && val != "" {
			return val
		}
		if hasDefault {
			return fallback
		}
		return match
	})
}

// Save writes cfg to path in the format its extension implies.
func Save(path string, cfg *Config) error {
	path = expandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	// Tokens may live in the file.
	return os.WriteFile(path, data, 0o600)
}

func Validate(cfg *Config) error {
	g := cfg.General
	if g.MaxIterations < 1 || g.MaxIterations > 50 {
		return fmt.Errorf("general.maxIterations must be between 1 and 50, got %d", g.MaxIterations)
	}
	if g.MaxParallelTools < 1 {
		return fmt.Errorf("general.maxParallelTools must be >= 1, got %d", g.MaxParallelTools)
	}
	if g.MaxConcurrentMessages < 1 {
		return fmt.Errorf("general.maxConcurrentMessages must be >= 1, got %d", g.MaxConcurrentMessages)
	}
	if g.HistoryLimit < 1 {
		return fmt.Errorf("general.historyLimit must be >= 1, got %d", g.HistoryLimit)
	}
	if g.TurnTimeoutSeconds < 0 {
		return fmt.Errorf("general.turnTimeoutSeconds must be >= 0, got %d", g.TurnTimeoutSeconds)
	}
	if g.Temperature < 0 || g.Temperature > 2 {
		return fmt.Errorf("general.temperature must be between 0 and 2, got %g", g.Temperature)
	}
	switch g.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("general.logFormat must be text or json, got %q", g.LogFormat)
	}
	switch g.ThinkingLevel {
	case "", "concise", "normal":
	default:
		return fmt.Errorf("general.thinkingLevel must be concise or normal, got %q", g.ThinkingLevel)
	}

	for name, p := range cfg.Providers {
		switch providerType(name, p) {
		case "openai", "ollama", "claude":
		default:
			if p.APIBase == "" {
				return fmt.Errorf("providers.%s: unknown type %q needs an apiBase", name, p.Type)
			}
		}
	}

	if cfg.Memory.Enabled && cfg.Memory.DBPath == "" {
		return fmt.Errorf("memory.dbPath is required when memory is enabled")
	}
	if cfg.Memory.RetentionDays < 0 {
		return fmt.Errorf("memory.retentionDays must be >= 0, got %d", cfg.Memory.RetentionDays)
	}

	if cfg.Cache.TTLSeconds < 1 {
		return fmt.Errorf("cache.ttlSeconds must be >= 1, got %d", cfg.Cache.TTLSeconds)
	}
	if cfg.Cache.Valkey.Enabled && cfg.Cache.Valkey.URL == "" {
		return fmt.Errorf("cache.valkey.url is required when valkey is enabled")
	}

	switch cfg.Calendar.Backend {
	case "memory", "google":
	default:
		return fmt.Errorf("calendar.backend must be memory or google, got %q", cfg.Calendar.Backend)
	}

	s := cfg.Scheduling
	if s.DayStartHour < 0 || s.DayEndHour > 24 || s.DayStartHour >= s.DayEndHour {
		return fmt.Errorf("scheduling: working hours %d-%d are invalid", s.DayStartHour, s.DayEndHour)
	}
	if s.GranularityMinutes < 1 {
		return fmt.Errorf("scheduling.granularityMinutes must be >= 1, got %d", s.GranularityMinutes)
	}
	if _, err := ParseWeekdays(s.WorkingDays); err != nil {
		return fmt.Errorf("scheduling.workingDays: %w", err)
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}
	switch cfg.Tracing.Exporter {
	case "", "none", "stdout":
	default:
		return fmt.Errorf("tracing.exporter must be none or stdout, got %q", cfg.Tracing.Exporter)
	}
	if cfg.Tracing.SamplingRate < 0 || cfg.Tracing.SamplingRate > 1 {
		return fmt.Errorf("tracing.samplingRate must be between 0 and 1, got %g", cfg.Tracing.SamplingRate)
	}
	return nil
}

// ProviderType resolves the wire protocol for the named provider entry.
func (c *Config) ProviderType(name string) string {
	return providerType(name, c.Providers[name])
}

func providerType(name string, p ProviderConfig) string {
	if p.Type != "" {
		return strings.ToLower(p.Type)
	}
	return strings.ToLower(name)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func expandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// ExpandPath resolves a leading ~/ against the home directory.
func ExpandPath(path string) string {
	return expandPath(path)
}
