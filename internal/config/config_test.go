package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_MaxIterations(t *testing.T) {
	for _, n := range []int{0, 51} {
		cfg := Defaults()
		cfg.General.MaxIterations = n
		if err := Validate(cfg); err == nil {
			t.Fatalf("expected error for maxIterations=%d", n)
		}
	}
	for _, n := range []int{1, 50} {
		cfg := Defaults()
		cfg.General.MaxIterations = n
		if err := Validate(cfg); err != nil {
			t.Fatalf("maxIterations=%d should be valid: %v", n, err)
		}
	}
}

func TestValidate_NegativeTurnTimeout(t *testing.T) {
	cfg := Defaults()
	cfg.General.TurnTimeoutSeconds = -1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative turn timeout")
	}
}

func TestValidate_UnknownBackend(t *testing.T) {
	cfg := Defaults()
	cfg.Calendar.Backend = "outlook"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown calendar backend")
	}
}

func TestValidate_WorkingHours(t *testing.T) {
	cfg := Defaults()
	cfg.Scheduling.DayStartHour = 17
	cfg.Scheduling.DayEndHour = 9
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for inverted working hours")
	}

	cfg = Defaults()
	cfg.Scheduling.WorkingDays = []string{"mon", "funday"}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown weekday")
	}
}

func TestValidate_ProviderTypes(t *testing.T) {
	cfg := Defaults()
	cfg.Providers["groq"] = ProviderConfig{Enabled: true}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown provider without apiBase")
	}

	cfg.Providers["groq"] = ProviderConfig{Enabled: true, APIBase: "https://api.groq.com/openai/v1"}
	if err := Validate(cfg); err != nil {
		t.Fatalf("openai-compatible provider with apiBase should be valid: %v", err)
	}

	cfg.Providers["local"] = ProviderConfig{Type: "ollama"}
	if got := cfg.ProviderType("local"); got != "ollama" {
		t.Fatalf("expected type ollama, got %q", got)
	}
	if got := cfg.ProviderType("claude"); got != "claude" {
		t.Fatalf("expected type claude from the key, got %q", got)
	}
}

func TestValidate_ValkeyNeedsURL(t *testing.T) {
	cfg := Defaults()
	cfg.Cache.Valkey.Enabled = true
	cfg.Cache.Valkey.URL = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for valkey without url")
	}
}

func TestValidate_TracingExporter(t *testing.T) {
	cfg := Defaults()
	cfg.Tracing.Exporter = "jaeger"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unsupported exporter")
	}
}

// --- Load / Save ---

func TestLoadSave_RoundTrip(t *testing.T) {
	for _, name := range []string{"config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)

			original := Defaults()
			original.General.DefaultProvider = "openai"
			original.General.FailoverChain = []string{"openai", "ollama"}
			original.Scheduling.DayStartHour = 8

			if err := Save(path, original); err != nil {
				t.Fatalf("save: %v", err)
			}
			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if loaded.General.DefaultProvider != "openai" {
				t.Fatalf("expected 'openai', got %q", loaded.General.DefaultProvider)
			}
			if len(loaded.General.FailoverChain) != 2 || loaded.General.FailoverChain[1] != "ollama" {
				t.Fatalf("failover chain not preserved: %v", loaded.General.FailoverChain)
			}
			if loaded.Scheduling.DayStartHour != 8 {
				t.Fatalf("expected dayStartHour 8, got %d", loaded.Scheduling.DayStartHour)
			}
		})
	}
}

func TestSave_RestrictsPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := Save(path, Defaults()); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600, got %o", perm)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("{not json}"), 0o644)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoad_PartialYAMLKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := `
general:
  defaultProvider: claude
scheduling:
  dayStartHour: 10
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.General.DefaultProvider != "claude" {
		t.Fatalf("expected claude, got %q", cfg.General.DefaultProvider)
	}
	if cfg.Scheduling.DayStartHour != 10 || cfg.Scheduling.DayEndHour != 17 {
		t.Fatalf("expected 10-17, got %d-%d", cfg.Scheduling.DayStartHour, cfg.Scheduling.DayEndHour)
	}
	if cfg.General.MaxIterations != 5 {
		t.Fatalf("expected default maxIterations 5, got %d", cfg.General.MaxIterations)
	}
}

func TestLoad_ValidatesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"general": {"maxIterations": 0}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for maxIterations=0")
	}
}

func TestLoad_WithEnvVarSubstitution(t *testing.T) {
	t.Setenv("TEST_CALENDARBOT_TOKEN", "ya29.token-from-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
calendar:
  backend: google
  accessToken: ${TEST_CALENDARBOT_TOKEN}
  timeZone: ${TEST_CALENDARBOT_UNSET_TZ:-Europe/Oslo}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Calendar.AccessToken != "ya29.token-from-env" {
		t.Fatalf("expected token from env, got %q", cfg.Calendar.AccessToken)
	}
	if cfg.Calendar.TimeZone != "Europe/Oslo" {
		t.Fatalf("expected default time zone, got %q", cfg.Calendar.TimeZone)
	}
}

// --- Accessor ---

func TestGetByPath_ValidPaths(t *testing.T) {
	cfg := Defaults()

	val, err := GetByPath(cfg, "general.defaultProvider")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != "ollama" {
		t.Fatalf("expected 'ollama', got %v", val)
	}

	val, err = GetByPath(cfg, "providers.ollama.apiBase")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != "http://localhost:11434" {
		t.Fatalf("unexpected apiBase %v", val)
	}

	val, err = GetByPath(cfg, "scheduling.workingDays.0")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != "mon" {
		t.Fatalf("expected 'mon', got %v", val)
	}
}

func TestGetByPath_InvalidPath(t *testing.T) {
	if _, err := GetByPath(Defaults(), "nonexistent.path"); err == nil {
		t.Fatal("expected error for nonexistent path")
	}
}

func TestSetByPath_ValidPath(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "general.defaultProvider", "claude"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if cfg.General.DefaultProvider != "claude" {
		t.Fatalf("expected 'claude', got %q", cfg.General.DefaultProvider)
	}
}

func TestSetByPath_EmptyPath(t *testing.T) {
	if err := SetByPath(Defaults(), "", "x"); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestSetByPath_Conversions(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "memory.enabled", "false"); err != nil {
		t.Fatalf("set bool: %v", err)
	}
	if cfg.Memory.Enabled {
		t.Fatal("expected memory.enabled=false")
	}

	if err := SetByPath(cfg, "general.maxIterations", "8"); err != nil {
		t.Fatalf("set int: %v", err)
	}
	if cfg.General.MaxIterations != 8 {
		t.Fatalf("expected 8, got %d", cfg.General.MaxIterations)
	}

	if err := SetByPath(cfg, "general.temperature", "0.7"); err != nil {
		t.Fatalf("set float: %v", err)
	}
	if cfg.General.Temperature != 0.7 {
		t.Fatalf("expected 0.7, got %v", cfg.General.Temperature)
	}
}

func TestSetByPath_NumericStringStaysString(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "general.userId", "12345"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if cfg.General.UserID != "12345" {
		t.Fatalf("expected '12345', got %q", cfg.General.UserID)
	}
}

func TestSetByPath_Lists(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "scheduling.workingDays", "mon, wed,fri"); err != nil {
		t.Fatalf("set list: %v", err)
	}
	if got := cfg.Scheduling.WorkingDays; len(got) != 3 || got[1] != "wed" {
		t.Fatalf("unexpected working days: %v", got)
	}

	// failoverChain is omitted from the tree while empty.
	if err := SetByPath(cfg, "general.failoverChain", "claude"); err != nil {
		t.Fatalf("set empty list: %v", err)
	}
	if got := cfg.General.FailoverChain; len(got) != 1 || got[0] != "claude" {
		t.Fatalf("unexpected failover chain: %v", got)
	}
}

func TestSetByPath_NotASection(t *testing.T) {
	if err := SetByPath(Defaults(), "general.logLevel.deeper", "x"); err == nil {
		t.Fatal("expected error when traversing into a scalar")
	}
}

// --- Sanitize ---

func TestSanitize_MasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Providers["openai"] = ProviderConfig{Enabled: true, APIKey: "sk-1234567890abcdefghijklmnop"}
	cfg.Calendar.AccessToken = "ya29.a0AfH6SMBxxxxxxxxxxxxx"
	cfg.Calendar.RefreshToken = "1//0gxxxxxxxxxxxxxxxxxxx"
	cfg.Cache.Valkey.Password = "hunter2hunter2"

	sanitized := Sanitize(cfg)

	if sanitized.Providers["openai"].APIKey == cfg.Providers["openai"].APIKey {
		t.Fatal("API key should be masked")
	}
	if sanitized.Calendar.AccessToken == cfg.Calendar.AccessToken {
		t.Fatal("access token should be masked")
	}
	if sanitized.Calendar.RefreshToken == cfg.Calendar.RefreshToken {
		t.Fatal("refresh token should be masked")
	}
	if sanitized.Cache.Valkey.Password != "***" {
		t.Fatalf("valkey password should be '***', got %q", sanitized.Cache.Valkey.Password)
	}
	if cfg.Calendar.AccessToken != "ya29.a0AfH6SMBxxxxxxxxxxxxx" {
		t.Fatal("original config should not be modified")
	}
}

func TestSanitize_ShortSecret(t *testing.T) {
	cfg := Defaults()
	cfg.Calendar.AccessToken = "short"
	if got := Sanitize(cfg).Calendar.AccessToken; got != "***" {
		t.Fatalf("short secret should be '***', got %q", got)
	}
}

// --- ListPaths ---

func TestListPaths_ReturnsAllLeaves(t *testing.T) {
	paths := ListPaths(Defaults())
	if len(paths) == 0 {
		t.Fatal("expected non-empty paths")
	}
	for _, expected := range []string{"general.logLevel", "memory.enabled", "cache.valkey.url", "scheduling.dayEndHour"} {
		if _, ok := paths[expected]; !ok {
			t.Errorf("missing expected path: %s", expected)
		}
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("CB_SET", "value")
	t.Setenv("CB_EMPTY", "")

	cases := []struct {
		in, want string
	}{
		{`${CB_SET}`, "value"},
		{`${CB_UNSET_VAR:-fallback}`, "fallback"},
		{`${CB_SET:-fallback}`, "value"},
		{`${CB_EMPTY:-fallback}`, "fallback"},
		{`${CB_UNSET_VAR}`, "${CB_UNSET_VAR}"},
		{`a=${CB_SET} b=${CB_SET}`, "a=value b=value"},
		{`$HOME is not substituted`, "$HOME is not substituted"},
		{`plain`, "plain"},
	}
	for _, c := range cases {
		if got := ExpandEnvVars(c.in); got != c.want {
			t.Errorf("ExpandEnvVars(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

// --- Defaults ---

func TestDefaults_ReturnsValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("defaults should be valid: %v", err)
	}
	if cfg.General.DefaultProvider != "ollama" {
		t.Fatalf("default provider should be 'ollama', got %q", cfg.General.DefaultProvider)
	}
	if cfg.General.MaxIterations != 5 {
		t.Fatalf("default iteration budget should be 5, got %d", cfg.General.MaxIterations)
	}
	if cfg.General.TurnTimeoutSeconds != 0 {
		t.Fatal("turn deadline should be disabled by default")
	}
}

func TestParseWeekdays(t *testing.T) {
	days, err := ParseWeekdays([]string{"Mon", "tuesday", " sun "})
	if err != nil {
		t.Fatal(err)
	}
	want := []time.Weekday{time.Monday, time.Tuesday, time.Sunday}
	for i := range want {
		if days[i] != want[i] {
			t.Fatalf("day %d: expected %v, got %v", i, want[i], days[i])
		}
	}
}
