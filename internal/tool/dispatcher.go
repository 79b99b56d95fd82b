package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"calendarbot/internal/domain"
	"calendarbot/internal/logging"
	"calendarbot/internal/metrics"
	"calendarbot/internal/telemetry"
)

// Dispatcher validates and runs tool calls and renders their results.
// Execute never panics and never returns an error: every failure becomes
// a FAILED or UNKNOWN result.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
	metrics  *metrics.Collector
}

func NewDispatcher(registry *Registry, logger *slog.Logger, m *metrics.Collector) *Dispatcher {
	return &Dispatcher{registry: registry, logger: logger, metrics: m}
}

func (d *Dispatcher) Definitions() []domain.ToolDefinition {
	return d.registry.GetDefinitions()
}

func (d *Dispatcher) Execute(ctx context.Context, call domain.ToolCall, caller domain.Caller) domain.ToolResult {
	start := time.Now()
	ctx, span := telemetry.StartToolSpan(ctx, call.Name, call.ID)
	defer span.End()

	status, text := d.run(ctx, call, caller)

	telemetry.SetSpanStatus(span, string(status))
	d.metrics.ToolExecuted(call.Name, string(status), time.Since(start))
	d.logger.Info("tool executed",
		logging.Tool(call.Name),
		"id", call.ID,
		logging.User(caller.UserID),
		"status", status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return domain.ToolResult{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Status:     status,
		Text:       text,
	}
}

func (d *Dispatcher) run(ctx context.Context, call domain.ToolCall, caller domain.Caller) (domain.StatusTag, string) {
	def, ok := d.registry.Get(call.Name)
	if !ok {
		d.logger.Warn("model called unknown tool", logging.Tool(call.Name), logging.Err(ErrUnknownTool))
		return domain.StatusFailed, fmt.Sprintf("%s: unknown tool %q (available: %v)", domain.StatusFailed, call.Name, d.registry.Names())
	}

	args, err := def.Schema.Parse(call.RawArguments)
	if err != nil {
		d.logger.Warn("tool arguments rejected", logging.Tool(call.Name), logging.Err(err))
		return domain.StatusFailed, fmt.Sprintf("%s: %v", domain.StatusFailed, err)
	}

	out := d.invoke(ctx, def, args, caller)
	status := out.Status()

	summary, err := d.summarize(def, out)
	if err != nil {
		d.logger.Error("tool result formatting failed", logging.Tool(call.Name), logging.Err(err))
		return domain.StatusUnknown, "ERROR: could not format result of " + call.Name
	}
	return status, fmt.Sprintf("%s: %s", status, summary)
}

func (d *Dispatcher) invoke(ctx context.Context, def Definition, args Args, caller domain.Caller) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool handler panicked", logging.Tool(string(def.Name)), "panic", r, "stack", string(debug.Stack()))
			out = Fail(fmt.Errorf("internal error in %s", def.Name))
		}
	}()
	return def.Handler(ctx, args, caller)
}

func (d *Dispatcher) summarize(def Definition, out Outcome) (summary string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("formatter panicked: %v", r)
		}
	}()
	if out.Status() == domain.StatusFailed {
		return failureText(out), nil
	}
	if def.Summarize != nil {
		return def.Summarize(out)
	}
	return defaultSummary(out)
}

func failureText(out Outcome) string {
	if out.Err != nil {
		return out.Err.Error()
	}
	if out.Message != "" {
		return out.Message
	}
	return "the operation failed"
}

// defaultSummary prefers the outcome message, then the JSON payload.
func defaultSummary(out Outcome) (string, error) {
	if out.Payload == nil || isEmpty(out.Payload) {
		if out.Message != "" {
			return out.Message, nil
		}
		return "nothing to report", nil
	}
	b, err := json.Marshal(out.Payload)
	if err != nil {
		return "", err
	}
	if out.Message != "" {
		return out.Message + " " + string(b), nil
	}
	return string(b), nil
}
