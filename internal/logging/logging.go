// Package logging builds the root slog logger from configuration and holds
// the attribute helpers used across calendarbot so keys stay consistent.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Attribute keys.
const (
	KeyTool         = "tool"
	KeyUser         = "user"
	KeyConversation = "conversation"
	KeyStatus       = "status"
	KeyError        = "err"
	KeyProvider     = "provider"
)

// Options selects level, format and destination of the root logger.
type Options struct {
	Level  string // debug | info | warn | error
	Format string // text | json
	File   string // empty means stderr
}

// New returns the root logger and a closer for its output. The closer is a
// no-op when logging to stderr.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	var (
		w      io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w, closer = f, f
	}
	return slog.New(NewHandler(w, opts.Format, level)), closer, nil
}

// NewHandler builds a text or JSON handler writing to w.
func NewHandler(w io.Writer, format string, level slog.Leveler) slog.Handler {
	ho := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, ho)
	}
	return slog.NewTextHandler(w, ho)
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func Tool(name string) slog.Attr {
	return slog.String(KeyTool, name)
}

func User(id string) slog.Attr {
	return slog.String(KeyUser, id)
}

func Conversation(id string) slog.Attr {
	return slog.String(KeyConversation, id)
}

func Provider(name string) slog.Attr {
	return slog.String(KeyProvider, name)
}

func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Err returns an error attribute. A nil error yields an empty group, which
// slog leaves out of the output.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}
