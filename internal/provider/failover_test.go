package provider

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"calendarbot/internal/domain"
)

type mockProvider struct {
	name     string
	healthy  bool
	chatErr  error
	chatResp *domain.ChatResponse
	calls    int
	lastReq  domain.ChatRequest
}

func (m *mockProvider) Name() string     { return m.name }
func (m *mockProvider) Models() []string { return []string{m.name + "-model"} }

func (m *mockProvider) Healthy(ctx context.Context) error {
	if !m.healthy {
		return errors.New("unhealthy")
	}
	return nil
}

func (m *mockProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.calls++
	m.lastReq = req
	if m.chatErr != nil {
		return nil, m.chatErr
	}
	return m.chatResp, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestFailoverProvider_UsesFirstProvider(t *testing.T) {
	p1 := &mockProvider{name: "primary", chatResp: &domain.ChatResponse{Content: "from-primary"}}
	p2 := &mockProvider{name: "secondary", chatResp: &domain.ChatResponse{Content: "from-secondary"}}
	fp := NewFailoverProvider([]domain.Provider{p1, p2}, testLogger())

	resp, err := fp.Chat(context.Background(), domain.ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "from-primary" {
		t.Fatalf("expected 'from-primary', got %q", resp.Content)
	}
	if p2.calls != 0 {
		t.Fatalf("secondary should not be called, got %d calls", p2.calls)
	}
}

func TestFailoverProvider_FallsBackOnError(t *testing.T) {
	p1 := &mockProvider{name: "primary", chatErr: errors.New("api error")}
	p2 := &mockProvider{name: "secondary", chatResp: &domain.ChatResponse{Content: "from-secondary"}}
	fp := NewFailoverProvider([]domain.Provider{p1, p2}, testLogger())

	resp, err := fp.Chat(context.Background(), domain.ChatRequest{Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "from-secondary" {
		t.Fatalf("expected 'from-secondary', got %q", resp.Content)
	}
	if p1.lastReq.Model != "gpt-4o" {
		t.Fatalf("primary should get the requested model, got %q", p1.lastReq.Model)
	}
	if p2.lastReq.Model != "" {
		t.Fatalf("fallback should use its own model, got %q", p2.lastReq.Model)
	}
}

func TestFailoverProvider_AllProvidersFail(t *testing.T) {
	last := errors.New("fail 2")
	p1 := &mockProvider{name: "p1", chatErr: errors.New("fail 1")}
	p2 := &mockProvider{name: "p2", chatErr: last}
	fp := NewFailoverProvider([]domain.Provider{p1, p2}, testLogger())

	_, err := fp.Chat(context.Background(), domain.ChatRequest{})
	if !errors.Is(err, last) {
		t.Fatalf("expected the last error to be wrapped, got %v", err)
	}
}

func TestFailoverProvider_StopsOnCancelledContext(t *testing.T) {
	p1 := &mockProvider{name: "p1", chatErr: context.Canceled}
	p2 := &mockProvider{name: "p2", chatResp: &domain.ChatResponse{Content: "late"}}
	fp := NewFailoverProvider([]domain.Provider{p1, p2}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fp.Chat(ctx, domain.ChatRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if p2.calls != 0 {
		t.Fatal("chain should stop once the context is done")
	}
}

func TestFailoverProvider_Healthy(t *testing.T) {
	fp := NewFailoverProvider([]domain.Provider{
		&mockProvider{name: "sick"},
		&mockProvider{name: "well", healthy: true},
	}, testLogger())
	if err := fp.Healthy(context.Background()); err != nil {
		t.Fatalf("expected healthy, got: %v", err)
	}

	fp = NewFailoverProvider([]domain.Provider{
		&mockProvider{name: "sick1"},
		&mockProvider{name: "sick2"},
	}, testLogger())
	err := fp.Healthy(context.Background())
	if err == nil {
		t.Fatal("expected unhealthy error")
	}
	if msg := err.Error(); !strings.Contains(msg, "sick1: unhealthy") || !strings.Contains(msg, "sick2: unhealthy") {
		t.Fatalf("error should name every provider, got %q", msg)
	}
}

func TestFailoverProvider_NameAndModels(t *testing.T) {
	fp := NewFailoverProvider([]domain.Provider{
		&mockProvider{name: "ollama"},
		&mockProvider{name: "openai"},
		&mockProvider{name: "ollama"},
	}, testLogger())

	if name := fp.Name(); name != "failover(ollama,openai,ollama)" {
		t.Fatalf("unexpected name %q", name)
	}
	models := fp.Models()
	if len(models) != 2 {
		t.Fatalf("expected 2 deduplicated models, got %v", models)
	}
}
