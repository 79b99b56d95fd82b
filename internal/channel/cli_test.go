package channel

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calendarbot/internal/bus"
	"calendarbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// echoAgent answers every inbound message with one tool call and a reply.
func echoAgent(ctx context.Context, b *bus.InMemoryBus, seen chan<- domain.InboundMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-b.Subscribe():
			if !ok {
				return
			}
			seen <- msg
			b.SendOutbound(domain.OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID,
				StreamEvent: &domain.StreamEvent{Type: domain.StreamToolStart, Tool: "get_events"}})
			b.SendOutbound(domain.OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID,
				StreamEvent: &domain.StreamEvent{Type: domain.StreamToolEnd, Tool: "get_events", Status: domain.StatusSuccess}})
			b.SendOutbound(domain.OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID,
				Content: "reply to " + msg.Content, StreamEvent: &domain.StreamEvent{Type: domain.StreamDone}})
		}
	}
}

func TestCLI_ConversationRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	b := bus.New(4, testLogger())
	seen := make(chan domain.InboundMessage, 4)
	go echoAgent(ctx, b, seen)

	var out bytes.Buffer
	cli := NewCLI(CLIConfig{
		Logger:         testLogger(),
		In:             strings.NewReader("\nwhat's on monday?\nmove it\n/quit\nnever sent\n"),
		Out:            &out,
		UserID:         "u1",
		ShowToolEvents: true,
	})
	require.NoError(t, cli.Start(ctx, b))

	require.Len(t, seen, 2)
	first := <-seen
	assert.Equal(t, "cli", first.Channel)
	assert.Equal(t, "direct", first.ChatID)
	assert.Equal(t, "u1", first.UserID)
	assert.Equal(t, "what's on monday?", first.Content)
	assert.False(t, first.Timestamp.IsZero())

	text := out.String()
	assert.Contains(t, text, "reply to what's on monday?")
	assert.Contains(t, text, "reply to move it")
	assert.Contains(t, text, "-> get_events")
	assert.Contains(t, text, "<- get_events SUCCESS")
	assert.NotContains(t, text, "never sent")
}

func TestCLI_HidesToolEventsByDefault(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	b := bus.New(4, testLogger())
	go echoAgent(ctx, b, make(chan domain.InboundMessage, 4))

	var out bytes.Buffer
	cli := NewCLI(CLIConfig{Logger: testLogger(), In: strings.NewReader("hello\n"), Out: &out})
	require.NoError(t, cli.Start(ctx, b))

	assert.Contains(t, out.String(), "reply to hello")
	assert.NotContains(t, out.String(), "get_events")
}

func TestCLI_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := bus.New(4, testLogger())

	// Nothing answers, so Start blocks waiting for the reply.
	done := make(chan error, 1)
	cli := NewCLI(CLIConfig{Logger: testLogger(), In: strings.NewReader("hello\n"), Out: &bytes.Buffer{}})
	go func() { done <- cli.Start(ctx, b) }()

	select {
	case msg := <-b.Subscribe():
		assert.Equal(t, "hello", msg.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("message not published")
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
