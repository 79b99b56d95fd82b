package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"calendarbot/internal/domain"
)

const cliChannel = "cli"

var _ domain.Channel = (*CLI)(nil)

// CLI is the interactive terminal chat. Each line typed is one turn; the
// next prompt is shown once the reply for the previous line has arrived.
type CLI struct {
	bus            domain.MessageBus
	logger         *slog.Logger
	in             io.Reader
	out            io.Writer
	userID         string
	chatID         string
	spinner        bool
	showToolEvents bool

	outMu     sync.Mutex
	replies   chan struct{}
	thinkMu   sync.Mutex
	thinkStop chan struct{}
}

type CLIConfig struct {
	Logger *slog.Logger
	In     io.Reader
	Out    io.Writer
	UserID string
	ChatID string
	// Spinner animates a "Thinking..." line while a turn runs.
	Spinner bool
	// ShowToolEvents prints a line per tool call as it starts and ends.
	ShowToolEvents bool
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ChatID == "" {
		cfg.ChatID = "direct"
	}
	return &CLI{
		logger:         cfg.Logger,
		in:             cfg.In,
		out:            cfg.Out,
		userID:         cfg.UserID,
		chatID:         cfg.ChatID,
		spinner:        cfg.Spinner,
		showToolEvents: cfg.ShowToolEvents,
		replies:        make(chan struct{}, 1),
	}
}

func (c *CLI) Name() string { return cliChannel }

// Start runs the REPL until EOF, /quit, or ctx is cancelled.
func (c *CLI) Start(ctx context.Context, bus domain.MessageBus) error {
	c.bus = bus
	bus.OnOutbound(cliChannel, c.handleOutbound)

	c.printf("calendarbot. Ask about your calendar, /help for commands, /quit to exit.\n")
	c.printf("You> ")

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			line = strings.TrimSpace(l)
		}

		if line == "" {
			c.printf("You> ")
			continue
		}
		if line == "/quit" || line == "/exit" || line == "/q" {
			c.logger.Info("user requested quit")
			return nil
		}

		c.startThinking()
		c.bus.Publish(domain.InboundMessage{
			Channel:   cliChannel,
			ChatID:    c.chatID,
			UserID:    c.userID,
			Content:   line,
			Timestamp: time.Now(),
		})

		select {
		case <-c.replies:
		case <-ctx.Done():
			c.stopThinking()
			return nil
		}
	}
}

func (c *CLI) handleOutbound(msg domain.OutboundMessage) {
	evt := msg.StreamEvent
	if evt == nil {
		evt = &domain.StreamEvent{Type: domain.StreamDone, Content: msg.Content}
	}

	switch evt.Type {
	case domain.StreamToolStart:
		if c.showToolEvents {
			c.printf("\r\033[K  -> %s\n", evt.Tool)
		}
	case domain.StreamToolEnd:
		if c.showToolEvents {
			c.printf("\r\033[K  <- %s %s\n", evt.Tool, evt.Status)
		}
	case domain.StreamError:
		c.logger.Debug("turn reported an error", "content", evt.Content)
	case domain.StreamDone:
		c.stopThinking()
		content := msg.Content
		if content == "" {
			content = evt.Content
		}
		c.printf("\r\033[K%s\n\nYou> ", content)
		select {
		case c.replies <- struct{}{}:
		default:
		}
	}
}

func (c *CLI) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, _ = fmt.Fprintf(c.out, format, args...)
}

func (c *CLI) startThinking() {
	if !c.spinner {
		return
	}
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if c.thinkStop != nil {
		return
	}
	stop := make(chan struct{})
	c.thinkStop = stop
	go func() {
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.printf("\r%s Thinking...", frames[i%len(frames)])
			}
		}
	}()
}

func (c *CLI) stopThinking() {
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if c.thinkStop == nil {
		return
	}
	close(c.thinkStop)
	c.thinkStop = nil
}

// Stop is a no-op; the REPL ends when Start returns.
func (c *CLI) Stop() error { return nil }

func (c *CLI) Send(_ context.Context, _ string, content string) error {
	c.printf("%s\n", content)
	return nil
}
