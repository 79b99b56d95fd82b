package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"calendarbot/internal/availability"
	"calendarbot/internal/domain"
	"calendarbot/internal/logging"
)

const promptPreferenceLimit = 20

// PromptConfig holds configuration for the prompt builder.
type PromptConfig struct {
	Location          *time.Location
	Rules             availability.Rules
	ThinkingLevel     string // concise | normal | detailed
	SystemPromptExtra string
}

// PromptBuilder renders the system message that opens every model call.
type PromptBuilder struct {
	prefs  domain.PreferenceStore
	logger *slog.Logger
	cfg    PromptConfig
	now    func() time.Time
}

// NewPromptBuilder creates a builder. prefs may be nil, in which case no
// remembered preferences are included.
func NewPromptBuilder(cfg PromptConfig, prefs domain.PreferenceStore, logger *slog.Logger) *PromptBuilder {
	if cfg.Rules.DayEndHour == 0 {
		cfg.Rules = availability.DefaultRules()
	}
	if cfg.Location == nil {
		cfg.Location = cfg.Rules.Location
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.ThinkingLevel == "" {
		cfg.ThinkingLevel = "normal"
	}
	return &PromptBuilder{prefs: prefs, logger: logger, cfg: cfg, now: time.Now}
}

// WithClock replaces the wall clock, for tests.
func (p *PromptBuilder) WithClock(now func() time.Time) *PromptBuilder {
	p.now = now
	return p
}

// BuildSystemPrompt renders the system prompt for userID. A preference
// store failure is logged and the prompt is built without preferences.
func (p *PromptBuilder) BuildSystemPrompt(ctx context.Context, userID string) string {
	now := p.now().In(p.cfg.Location)
	rules := p.cfg.Rules

	var b strings.Builder
	fmt.Fprintf(&b, `# Calendar assistant

You are a scheduling assistant with access to the user's calendar. You can:
- List, search, create, move and delete calendar events
- Check new events against existing ones and suggest free slots
- Look up the weather forecast for a place and day
- Remember the user's preferences for later conversations

## Current Time
%s (time zone %s)

## Working Hours
%s, %02d:00 to %02d:00

## RULES
1. Resolve relative dates ("tomorrow", "next Tuesday") against the current time above and pass absolute RFC 3339 timestamps to tools.
2. Before telling the user an event was created, moved or deleted, call the tool and read its result.
3. A result starting with CONFLICT means nothing was written for that event. Offer the suggested slots, or retry with override_conflicts only when the user explicitly agrees to double-book.
4. A result starting with FAILED is an error. Fix the arguments or ask the user for what is missing. Do not invent event ids.
5. When the user states a lasting preference (favourite times, home city, habits), save it.
6. Do NOT output raw JSON in your response. Use the tool calling mechanism.
7. Respond in the same language the user writes in.`,
		now.Format("2006-01-02 15:04 (Monday)"),
		p.cfg.Location.String(),
		workingDays(rules.WorkingDays),
		rules.DayStartHour,
		rules.DayEndHour,
	)

	switch p.cfg.ThinkingLevel {
	case "concise":
		b.WriteString("\n\n## Style\nKeep answers short. One line per event.")
	case "detailed":
		b.WriteString("\n\n## Style\nExplain trade-offs between the options you offer, including the pros and cons returned by tools.")
	default:
		b.WriteString("\n\n## Style\nBe clear and brief. Mention pros and cons of suggested slots when there is a real choice.")
	}

	if p.cfg.SystemPromptExtra != "" {
		b.WriteString("\n\n## Custom Instructions\n")
		b.WriteString(p.cfg.SystemPromptExtra)
	}

	if p.prefs != nil && userID != "" {
		prefs, err := p.prefs.Preferences(ctx, userID, promptPreferenceLimit)
		if err != nil {
			p.logger.Warn("failed to load preferences for prompt", logging.User(userID), logging.Err(err))
		} else if len(prefs) > 0 {
			b.WriteString("\n\n## Remembered Preferences\n")
			for _, pref := range prefs {
				b.WriteString("- [")
				b.WriteString(pref.Category)
				b.WriteString("] ")
				b.WriteString(pref.Content)
				b.WriteByte('\n')
			}
		}
	}

	return b.String()
}

func workingDays(days []time.Weekday) string {
	if len(days) == 0 {
		return "Monday to Friday"
	}
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = d.String()
	}
	return strings.Join(names, ", ")
}
