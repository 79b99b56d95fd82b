package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"calendarbot/internal/domain"
	"calendarbot/internal/logging"
)

// FailoverProvider is the general.failoverChain: each model call goes to the
// first provider, then to the next one while calls keep failing. A cancelled
// or expired context stops the chain.
type FailoverProvider struct {
	providers []domain.Provider
	logger    *slog.Logger
}

// NewFailoverProvider wraps at least one provider.
func NewFailoverProvider(providers []domain.Provider, logger *slog.Logger) *FailoverProvider {
	return &FailoverProvider{providers: providers, logger: logger}
}

func (fp *FailoverProvider) Name() string {
	var sb strings.Builder
	sb.WriteString("failover(")
	for i, p := range fp.providers {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(p.Name())
	}
	sb.WriteByte(')')
	return sb.String()
}

// Models lists every model of the chain once, in chain order.
func (fp *FailoverProvider) Models() []string {
	var models []string
	for _, p := range fp.providers {
		for _, m := range p.Models() {
			if !slices.Contains(models, m) {
				models = append(models, m)
			}
		}
	}
	return models
}

// Healthy succeeds as soon as one provider answers. Otherwise the error
// names every provider's failure.
func (fp *FailoverProvider) Healthy(ctx context.Context) error {
	var errs []error
	for _, p := range fp.providers {
		err := p.Healthy(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}
	return fmt.Errorf("no healthy provider in failover chain: %w", errors.Join(errs...))
}

// Chat returns the first successful response. The request's Model is only
// honoured by the first provider; fallbacks use their own default model.
func (fp *FailoverProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	var lastErr error
	for attempt, p := range fp.providers {
		if attempt > 0 {
			req.Model = ""
		}
		resp, err := p.Chat(ctx, req)
		if err == nil {
			if attempt > 0 {
				fp.logger.Info("model call served by fallback", logging.Provider(p.Name()), "attempt", attempt+1)
			}
			return resp, nil
		}
		lastErr = err
		if contextDone(ctx, err) {
			break
		}
		fp.logger.Warn("model call failed, trying next provider", logging.Provider(p.Name()), "attempt", attempt+1, logging.Err(err))
	}
	return nil, fmt.Errorf("all providers in failover chain failed: %w", lastErr)
}

func contextDone(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
