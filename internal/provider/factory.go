package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"calendarbot/internal/config"
	"calendarbot/internal/domain"
	"calendarbot/internal/logging"
)

// Constructor builds a provider from its config entry.
type Constructor func(name string, pc config.ProviderConfig, logger *slog.Logger) domain.Provider

// Factory creates and caches LLM providers from config.
type Factory struct {
	cfg          *config.Config
	logger       *slog.Logger
	constructors map[string]Constructor
	cache        map[string]domain.Provider
	mu           sync.RWMutex
}

func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	f := &Factory{
		cfg:          cfg,
		logger:       logger,
		constructors: make(map[string]Constructor),
		cache:        make(map[string]domain.Provider),
	}
	f.registerDefaults()
	return f
}

// RegisterConstructor adds or replaces the constructor for a provider type.
func (f *Factory) RegisterConstructor(providerType string, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[providerType] = ctor
}

func (f *Factory) registerDefaults() {
	f.constructors["openai"] = func(name string, pc config.ProviderConfig, logger *slog.Logger) domain.Provider {
		return NewOpenAI(OpenAIConfig{
			Name:    name,
			APIKey:  pc.APIKey,
			APIBase: pc.APIBase,
			Model:   pc.DefaultModel,
			Timeout: timeout(pc),
			Logger:  logger,
		})
	}
	f.constructors["ollama"] = func(_ string, pc config.ProviderConfig, logger *slog.Logger) domain.Provider {
		return NewOllama(OllamaConfig{
			APIBase:      pc.APIBase,
			DefaultModel: pc.DefaultModel,
			Timeout:      timeout(pc),
			Logger:       logger,
		})
	}
	f.constructors["claude"] = func(_ string, pc config.ProviderConfig, logger *slog.Logger) domain.Provider {
		return NewClaude(ClaudeConfig{
			APIKey:  pc.APIKey,
			APIBase: pc.APIBase,
			Model:   pc.DefaultModel,
			Timeout: timeout(pc),
			Logger:  logger,
		})
	}
}

func timeout(pc config.ProviderConfig) time.Duration {
	return time.Duration(pc.TimeoutSeconds) * time.Second
}

// Get returns the provider with the given name, or the default if name is
// empty. Instances are cached so connections are reused across turns.
func (f *Factory) Get(name string) (domain.Provider, error) {
	if name == "" {
		name = f.cfg.General.DefaultProvider
	}

	f.mu.RLock()
	if cached, ok := f.cache[name]; ok {
		f.mu.RUnlock()
		return cached, nil
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()
	if cached, ok := f.cache[name]; ok {
		return cached, nil
	}

	pc, ok := f.cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
	if !pc.Enabled {
		return nil, fmt.Errorf("provider %s is disabled", name)
	}

	var p domain.Provider
	if ctor, found := f.constructors[f.cfg.ProviderType(name)]; found {
		p = ctor(name, pc, f.logger)
	} else if pc.APIBase != "" {
		// Unknown types with an endpoint are treated as OpenAI-compatible.
		p = f.constructors["openai"](name, pc, f.logger)
	} else {
		return nil, fmt.Errorf("provider %s: no constructor for type %q and no apiBase", name, f.cfg.ProviderType(name))
	}

	f.cache[name] = p
	return p, nil
}

func (f *Factory) DefaultProvider() (domain.Provider, error) {
	return f.Get("")
}

// Chain returns the provider the orchestrator should talk to. With a
// failover chain configured the named providers are wrapped in order;
// disabled or unknown entries are skipped with a warning.
func (f *Factory) Chain() (domain.Provider, error) {
	names := f.cfg.General.FailoverChain
	if len(names) == 0 {
		return f.DefaultProvider()
	}

	var chain []domain.Provider
	for _, name := range names {
		p, err := f.Get(name)
		if err != nil {
			f.logger.Warn("skipping provider in failover chain", logging.Provider(name), logging.Err(err))
			continue
		}
		chain = append(chain, p)
	}
	switch len(chain) {
	case 0:
		return nil, fmt.Errorf("failover chain %v has no usable provider", names)
	case 1:
		return chain[0], nil
	}
	return NewFailoverProvider(chain, f.logger), nil
}

// HealthyProvider returns the first enabled provider, in name order, that
// passes a health check, or nil.
func (f *Factory) HealthyProvider(ctx context.Context) domain.Provider {
	names := make([]string, 0, len(f.cfg.Providers))
	for name := range f.cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p, err := f.Get(name)
		if err != nil {
			continue
		}
		if p.Healthy(ctx) == nil {
			return p
		}
	}
	return nil
}
