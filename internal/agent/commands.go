package agent

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"calendarbot/internal/domain"
)

// ChatCommand is a slash command typed into a chat.
type ChatCommand struct {
	Name string   // command name without "/"
	Args []string // arguments after the command
	Raw  string   // original full text
}

// CommandResult holds the response for a handled command.
type CommandResult struct {
	Response string
	Handled  bool // false: forward the text to the model as a normal message
}

// startTime records when the process started for /uptime.
var startTime = time.Now()

// version is set at build time through SetVersion.
var version = "dev"

func SetVersion(v string) {
	version = v
}

// ParseCommand returns nil unless text starts with "/".
func ParseCommand(text string) *ChatCommand {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return nil
	}
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return nil
	}
	cmd := &ChatCommand{
		Name: strings.ToLower(strings.TrimPrefix(parts[0], "/")),
		Raw:  text,
	}
	if len(parts) > 1 {
		cmd.Args = parts[1:]
	}
	return cmd
}

// HandleCommand answers the commands it knows without calling the model.
func (l *Loop) HandleCommand(ctx context.Context, cmd *ChatCommand, msg domain.InboundMessage) CommandResult {
	switch cmd.Name {
	case "help":
		return CommandResult{Response: helpText(), Handled: true}

	case "new", "clear":
		if l.sessions == nil {
			return CommandResult{Response: "Nothing to clear: history is not kept.", Handled: true}
		}
		if err := l.sessions.ClearSession(ctx, msg.Channel+":"+msg.ChatID); err != nil {
			return CommandResult{Response: fmt.Sprintf("Could not clear the conversation: %v", err), Handled: true}
		}
		return CommandResult{Response: "Conversation cleared. Starting fresh.", Handled: true}

	case "status":
		return CommandResult{Response: l.statusText(), Handled: true}

	case "uptime":
		return CommandResult{Response: fmt.Sprintf("Uptime: %s", time.Since(startTime).Round(time.Second)), Handled: true}

	case "version":
		return CommandResult{Response: fmt.Sprintf("calendarbot %s (%s/%s, Go %s)", version, runtime.GOOS, runtime.GOARCH, runtime.Version()), Handled: true}

	case "tools":
		return CommandResult{Response: l.toolsText(), Handled: true}

	case "prefs", "preferences":
		return CommandResult{Response: l.preferencesText(ctx, msg.UserID), Handled: true}

	default:
		return CommandResult{Handled: false}
	}
}

func helpText() string {
	return `**Commands**

/help     Show this help message
/new      Start a new conversation (clear history)
/clear    Same as /new
/status   Show bot status
/uptime   Show uptime
/version  Show version info
/tools    List available tools
/prefs    List remembered preferences`
}

func (l *Loop) statusText() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**calendarbot %s**\n\n", version)
	if l.provider != nil {
		fmt.Fprintf(&sb, "Provider: %s\n", l.provider.Name())
	}
	if l.tools != nil {
		fmt.Fprintf(&sb, "Tools: %d registered\n", len(l.tools.Definitions()))
	}
	fmt.Fprintf(&sb, "Max iterations: %d\n", l.maxIterations)
	fmt.Fprintf(&sb, "Uptime: %s\n", time.Since(startTime).Round(time.Second))
	if l.recorder != nil {
		fmt.Fprintf(&sb, "Unsaved messages: %d failed, %d dropped\n", l.recorder.Failed(), l.recorder.Dropped())
	}
	return sb.String()
}

func (l *Loop) toolsText() string {
	if l.tools == nil {
		return "No tools are available."
	}
	defs := l.tools.Definitions()
	var sb strings.Builder
	fmt.Fprintf(&sb, "**Available Tools** (%d)\n\n", len(defs))
	for _, d := range defs {
		fmt.Fprintf(&sb, "• **%s**: %s\n", d.Name, d.Description)
	}
	return sb.String()
}

func (l *Loop) preferencesText(ctx context.Context, userID string) string {
	if l.prefs == nil {
		return "Preferences are not stored."
	}
	prefs, err := l.prefs.Preferences(ctx, userID, promptPreferenceLimit)
	if err != nil {
		return fmt.Sprintf("Could not load preferences: %v", err)
	}
	if len(prefs) == 0 {
		return "No preferences remembered yet."
	}
	var sb strings.Builder
	sb.WriteString("**Remembered Preferences**\n\n")
	for _, p := range prefs {
		fmt.Fprintf(&sb, "• [%s] %s\n", p.Category, p.Content)
	}
	return sb.String()
}
