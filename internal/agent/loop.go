package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"calendarbot/internal/domain"
	"calendarbot/internal/logging"
	"calendarbot/internal/metrics"
	"calendarbot/internal/telemetry"
)

const (
	defaultMaxIterations    = 5
	defaultHistoryLimit     = 30
	defaultLLMMaxTokens     = 2048
	defaultTemperature      = 0.2
	defaultConcurrency      = 3
	defaultMaxParallelTools = 4
)

// ExhaustedReply is the answer of a turn that ran out of iterations before
// the model produced any text.
const ExhaustedReply = "Sorry, I wasn't able to finish that request. Please try rephrasing it."

// ErrModel wraps any failure of the model call that ended a turn.
var ErrModel = errors.New("agent: model request failed")

// ToolExecutor runs tool calls. Execute reports every failure inside the
// returned result.
type ToolExecutor interface {
	Definitions() []domain.ToolDefinition
	Execute(ctx context.Context, call domain.ToolCall, caller domain.Caller) domain.ToolResult
}

// ProviderResolver resolves a provider by name. Used for per-message switching.
type ProviderResolver interface {
	Get(name string) (domain.Provider, error)
}

// CallerResolver attaches calendar credentials to a user id.
type CallerResolver func(ctx context.Context, userID string) (domain.Caller, error)

// EventSink receives the incremental events of a turn. RunTurn serializes
// calls, so a sink does not need its own locking.
type EventSink func(domain.StreamEvent)

// TurnRequest is one user input plus the conversation it belongs to.
type TurnRequest struct {
	ConversationID string
	History        []domain.Message
	Input          string
	Caller         domain.Caller
	// Provider overrides the loop's default provider when set.
	Provider domain.Provider
}

// TurnResult is the outcome of a completed turn.
type TurnResult struct {
	Content    string
	Iterations int
	// Exhausted is set when the iteration ceiling was hit.
	Exhausted bool
	// Messages holds everything the turn added to the conversation, starting
	// with the user input, in transcript order.
	Messages []domain.Message
}

// Loop is the conversation engine: call the model, run the tools it asks
// for, feed the results back, repeat until it answers in plain text.
type Loop struct {
	provider  domain.Provider
	providers ProviderResolver
	tools     ToolExecutor
	prompt    *PromptBuilder
	sessions  *SessionManager
	recorder  *Recorder
	prefs     domain.PreferenceStore
	callers   CallerResolver
	bus       domain.MessageBus
	logger    *slog.Logger
	metrics   *metrics.Collector

	model            string
	maxIterations    int
	maxParallelTools int
	historyLimit     int
	concurrency      int
	turnTimeout      time.Duration
	maxTokens        int
	temperature      float64
	rateLimiter      *RateLimiter
}

// LoopConfig holds all dependencies and tuning parameters for the loop.
type LoopConfig struct {
	Provider  domain.Provider
	Providers ProviderResolver // optional: per-message provider switching
	Tools     ToolExecutor
	Prompt    *PromptBuilder   // optional: no system message when nil
	Sessions  *SessionManager  // optional: no history or titles when nil
	Recorder  *Recorder        // optional: turns are not persisted when nil
	Prefs     domain.PreferenceStore
	Callers   CallerResolver
	Bus       domain.MessageBus
	Logger    *slog.Logger
	Metrics   *metrics.Collector

	Model            string
	MaxIterations    int
	MaxParallelTools int
	HistoryLimit     int
	Concurrency      int           // max messages processed at once by Run
	TurnTimeout      time.Duration // 0 disables the turn deadline
	MaxTokens        int
	Temperature      float64
	RateLimiter      *RateLimiter // nil disables rate limiting
}

// NewLoop creates a new loop with the given configuration.
func NewLoop(cfg LoopConfig) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	if cfg.MaxParallelTools <= 0 {
		cfg.MaxParallelTools = defaultMaxParallelTools
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultLLMMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Callers == nil {
		cfg.Callers = func(_ context.Context, userID string) (domain.Caller, error) {
			return domain.Caller{UserID: userID}, nil
		}
	}
	return &Loop{
		provider:         cfg.Provider,
		providers:        cfg.Providers,
		tools:            cfg.Tools,
		prompt:           cfg.Prompt,
		sessions:         cfg.Sessions,
		recorder:         cfg.Recorder,
		prefs:            cfg.Prefs,
		callers:          cfg.Callers,
		bus:              cfg.Bus,
		logger:           cfg.Logger,
		metrics:          cfg.Metrics,
		model:            cfg.Model,
		maxIterations:    cfg.MaxIterations,
		maxParallelTools: cfg.MaxParallelTools,
		historyLimit:     cfg.HistoryLimit,
		concurrency:      cfg.Concurrency,
		turnTimeout:      cfg.TurnTimeout,
		maxTokens:        cfg.MaxTokens,
		temperature:      cfg.Temperature,
		rateLimiter:      cfg.RateLimiter,
	}
}

// RunTurn runs one user input to completion. History is the prior
// conversation without a system message; it is not modified.
//
// A model failure emits an error event and returns an error wrapping
// ErrModel, together with a result holding the messages the turn produced
// before the failure so tool calls that already ran can be recorded. Running out of iterations is not an error: the result carries
// the last assistant text, or ExhaustedReply, with Exhausted set.
func (l *Loop) RunTurn(ctx context.Context, req TurnRequest, sink EventSink) (*TurnResult, error) {
	emit := serialize(sink)

	if l.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.turnTimeout)
		defer cancel()
	}

	ctx, span := telemetry.StartTurnSpan(ctx, req.ConversationID, req.Caller.UserID)
	defer span.End()

	provider := req.Provider
	if provider == nil {
		provider = l.provider
	}

	messages := make([]domain.Message, 0, len(req.History)+2)
	if l.prompt != nil {
		messages = append(messages, domain.Message{
			Role:    domain.RoleSystem,
			Content: l.prompt.BuildSystemPrompt(ctx, req.Caller.UserID),
		})
	}
	messages = append(messages, req.History...)
	turnStart := len(messages)
	if strings.TrimSpace(req.Input) != "" {
		messages = append(messages, domain.Message{Role: domain.RoleUser, Content: req.Input})
	}

	var toolDefs []domain.ToolDefinition
	if l.tools != nil {
		toolDefs = l.tools.Definitions()
	}

	emit(domain.StreamEvent{Type: domain.StreamThinking})

	result := &TurnResult{}
	var lastText string
	for iteration := 1; iteration <= l.maxIterations; iteration++ {
		result.Iterations = iteration

		history, err := normalizeHistory(messages)
		if err != nil {
			emit(domain.StreamEvent{Type: domain.StreamError, Content: err.Error()})
			telemetry.SetSpanError(span, err)
			l.metrics.TurnFinished("empty_history", iteration)
			return nil, err
		}

		resp, err := l.callModel(ctx, provider, history, toolDefs, iteration)
		if err != nil {
			l.logger.Error("model call failed", logging.Conversation(req.ConversationID), "iteration", iteration, logging.Err(err))
			emit(domain.StreamEvent{Type: domain.StreamError, Content: err.Error()})
			err = fmt.Errorf("%w: %w", ErrModel, err)
			telemetry.SetSpanError(span, err)
			l.metrics.TurnFinished("model_error", iteration)
			result.Messages = cloneMessages(messages[turnStart:])
			return result, err
		}

		content := stripRolePrefix(resp.Content)
		calls := resp.ToolCalls
		if len(calls) == 0 && content != "" {
			if extracted := extractToolCallsFromContent(content); len(extracted) > 0 {
				l.logger.Info("extracted tool calls from content text", "count", len(extracted))
				calls = extracted
				content = ""
			}
		}

		messages = append(messages, domain.Message{
			Role:      domain.RoleAssistant,
			Content:   content,
			ToolCalls: calls,
		})
		if strings.TrimSpace(content) != "" {
			lastText = content
		}

		if len(calls) == 0 {
			result.Content = content
			if strings.TrimSpace(content) == "" {
				result.Content = fallbackReply(lastText)
			}
			result.Messages = cloneMessages(messages[turnStart:])
			emit(domain.StreamEvent{Type: domain.StreamDone, Content: result.Content})
			l.metrics.TurnFinished("done", iteration)
			return result, nil
		}

		if content != "" {
			emit(domain.StreamEvent{Type: domain.StreamThinking, Content: content})
		}

		for _, r := range l.runTools(ctx, calls, req.Caller, emit) {
			messages = append(messages, r.Message())
		}
	}

	l.logger.Warn("turn hit iteration ceiling",
		logging.Conversation(req.ConversationID),
		"iterations", l.maxIterations,
	)
	result.Exhausted = true
	result.Content = fallbackReply(lastText)
	result.Messages = append(cloneMessages(messages[turnStart:]), domain.Message{
		Role:    domain.RoleAssistant,
		Content: result.Content,
	})
	emit(domain.StreamEvent{Type: domain.StreamDone, Content: result.Content})
	telemetry.SetSpanStatus(span, "exhausted")
	l.metrics.TurnFinished("exhausted", l.maxIterations)
	return result, nil
}

func (l *Loop) callModel(ctx context.Context, provider domain.Provider, history []domain.Message, tools []domain.ToolDefinition, iteration int) (*domain.ChatResponse, error) {
	if provider == nil {
		return nil, errors.New("no provider configured")
	}

	ctx, span := telemetry.StartModelSpan(ctx, iteration)
	defer span.End()

	if err := l.rateLimiter.Wait(ctx); err != nil {
		err = fmt.Errorf("rate limit: %w", err)
		telemetry.SetSpanError(span, err)
		return nil, err
	}

	l.logger.Debug("model call", logging.Provider(provider.Name()), "iteration", iteration, "messages", len(history))

	start := time.Now()
	resp, err := provider.Chat(ctx, domain.ChatRequest{
		Messages:    history,
		Tools:       tools,
		Model:       l.model,
		MaxTokens:   l.maxTokens,
		Temperature: l.temperature,
	})
	elapsed := time.Since(start)
	if err == nil && resp == nil {
		err = fmt.Errorf("%s returned an empty response", provider.Name())
	}
	l.metrics.LLMRequest(elapsed, err)
	if err != nil {
		telemetry.SetSpanError(span, err)
		return nil, err
	}
	resp.LatencyMs = elapsed.Milliseconds()
	return resp, nil
}

// runTools executes the calls concurrently, at most maxParallelTools at a
// time. Every call runs to completion whatever its siblings do, and results
// come back in the order of calls.
func (l *Loop) runTools(ctx context.Context, calls []domain.ToolCall, caller domain.Caller, emit EventSink) []domain.ToolResult {
	results := make([]domain.ToolResult, len(calls))

	var g errgroup.Group
	g.SetLimit(l.maxParallelTools)
	for i, call := range calls {
		emit(domain.StreamEvent{Type: domain.StreamToolStart, Tool: call.Name, ToolID: call.ID})
		g.Go(func() error {
			res := l.executeTool(ctx, call, caller)
			results[i] = res
			emit(domain.StreamEvent{
				Type:   domain.StreamToolEnd,
				Tool:   call.Name,
				ToolID: call.ID,
				Status: res.Status,
			})
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (l *Loop) executeTool(ctx context.Context, call domain.ToolCall, caller domain.Caller) domain.ToolResult {
	if l.tools == nil {
		return domain.ToolResult{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Status:     domain.StatusFailed,
			Text:       fmt.Sprintf("%s: no tools are available", domain.StatusFailed),
		}
	}
	l.logger.Debug("tool arguments", logging.Tool(call.Name), "args", call.RawArguments)
	return l.tools.Execute(ctx, call, caller)
}

// Run consumes inbound messages from the bus with bounded concurrency.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("agent loop started", "concurrency", l.concurrency)

	sem := make(chan struct{}, l.concurrency)
	inbound := l.bus.Subscribe()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("agent loop stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				l.logger.Info("inbound channel closed, agent loop stopping")
				return
			}
			sem <- struct{}{}
			wg.Add(1)
			go func(m domain.InboundMessage) {
				defer wg.Done()
				defer func() { <-sem }()
				l.processMessage(ctx, m)
			}(msg)
		}
	}
}

// ProcessDirect handles a message synchronously and returns the reply.
// Used by the CLI and other callers that need a blocking answer.
func (l *Loop) ProcessDirect(ctx context.Context, msg domain.InboundMessage, sink EventSink) (string, error) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return l.handleMessage(ctx, msg, sink)
}

// processMessage handles one bus message and publishes the events and the
// reply back through the bus.
func (l *Loop) processMessage(ctx context.Context, msg domain.InboundMessage) {
	l.logger.Info("processing message",
		"channel", msg.Channel,
		logging.User(msg.UserID),
		"content_len", len(msg.Content),
	)

	sink := func(evt domain.StreamEvent) {
		if evt.Type == domain.StreamDone {
			return
		}
		l.bus.SendOutbound(domain.OutboundMessage{
			Channel:     msg.Channel,
			ChatID:      msg.ChatID,
			StreamEvent: &evt,
		})
	}

	response, err := l.handleMessage(ctx, msg, sink)
	if err != nil {
		l.logger.Error("message processing failed", logging.Err(err))
		response = fmt.Sprintf("Sorry, I encountered an error: %s", err.Error())
	}

	l.bus.SendOutbound(domain.OutboundMessage{
		Channel:     msg.Channel,
		ChatID:      msg.ChatID,
		Content:     response,
		StreamEvent: &domain.StreamEvent{Type: domain.StreamDone, Content: response},
	})
}

// resolveProvider returns the provider for this message, supporting per-message switching.
func (l *Loop) resolveProvider(msg domain.InboundMessage) domain.Provider {
	if msg.Provider != "" && l.providers != nil {
		if p, err := l.providers.Get(msg.Provider); err == nil {
			return p
		}
		l.logger.Warn("requested provider not available, using default", "requested", msg.Provider)
	}
	return l.provider
}

func (l *Loop) handleMessage(ctx context.Context, msg domain.InboundMessage, sink EventSink) (string, error) {
	if cmd := ParseCommand(msg.Content); cmd != nil {
		if res := l.HandleCommand(ctx, cmd, msg); res.Handled {
			return res.Response, nil
		}
	}

	sessionKey := fmt.Sprintf("%s:%s", msg.Channel, msg.ChatID)
	provider := l.resolveProvider(msg)
	providerName := ""
	if provider != nil {
		providerName = provider.Name()
	}

	convID := sessionKey
	var history []domain.Message
	if l.sessions != nil {
		var err error
		convID, err = l.sessions.GetOrCreateConversation(ctx, sessionKey, msg.UserID, providerName)
		if err != nil {
			return "", fmt.Errorf("session error: %w", err)
		}
		if l.recorder != nil {
			wctx, cancel := context.WithTimeout(ctx, recordTimeout)
			if err := l.recorder.Wait(wctx, convID); err != nil {
				l.logger.Warn("earlier messages still being written", logging.Conversation(convID), logging.Err(err))
			}
			cancel()
		}
		history, err = l.sessions.History(ctx, convID, l.historyLimit)
		if err != nil {
			l.logger.Warn("failed to load history, continuing without it", logging.Conversation(convID), logging.Err(err))
			history = nil
		}
	}

	caller, err := l.callers(ctx, msg.UserID)
	if err != nil {
		return "", fmt.Errorf("resolve caller: %w", err)
	}

	result, err := l.RunTurn(ctx, TurnRequest{
		ConversationID: convID,
		History:        history,
		Input:          msg.Content,
		Caller:         caller,
		Provider:       provider,
	}, sink)
	if result != nil && l.recorder != nil {
		l.recorder.Record(convID, result.Messages...)
	}
	if err != nil {
		return "", err
	}
	if l.sessions != nil && len(history) == 0 {
		l.sessions.UpdateTitle(ctx, convID, msg.Content)
	}

	l.logger.Info("turn finished",
		logging.Conversation(convID),
		"iterations", result.Iterations,
		"exhausted", result.Exhausted,
	)
	return result.Content, nil
}

func fallbackReply(lastText string) string {
	if strings.TrimSpace(lastText) != "" {
		return lastText
	}
	return ExhaustedReply
}

func cloneMessages(msgs []domain.Message) []domain.Message {
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out
}

func serialize(sink EventSink) EventSink {
	if sink == nil {
		return func(domain.StreamEvent) {}
	}
	var mu sync.Mutex
	return func(evt domain.StreamEvent) {
		mu.Lock()
		defer mu.Unlock()
		sink(evt)
	}
}
