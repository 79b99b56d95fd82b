package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"calendarbot/internal/agent"
	"calendarbot/internal/availability"
	"calendarbot/internal/bus"
	"calendarbot/internal/cache"
	"calendarbot/internal/calendar"
	"calendarbot/internal/config"
	"calendarbot/internal/domain"
	"calendarbot/internal/logging"
	"calendarbot/internal/memory"
	"calendarbot/internal/metrics"
	"calendarbot/internal/provider"
	"calendarbot/internal/telemetry"
	"calendarbot/internal/tool"
	"calendarbot/internal/weather"
)

const shutdownTimeout = 10 * time.Second

// app is the fully wired assistant: calendar access through the cache,
// the availability engine, the tools, and the conversation loop.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Collector
	bus      *bus.InMemoryBus
	store    *memory.SQLiteStore
	calendar *calendar.Service
	cache    *cache.EventCache
	engine   *availability.Engine
	factory  *provider.Factory
	loop     *agent.Loop
	recorder *agent.Recorder
	callers  agent.CallerResolver
	tracing  *telemetry.Provider
	valkey   *cache.ValkeyTier
}

// buildApp wires every component from cfg. Nothing here talks to the
// model provider; the first network calls happen when a turn runs.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger, metrics: metrics.NewCollector()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	loc, err := time.LoadLocation(cfg.Calendar.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("calendar time zone: %w", err)
	}
	rules, err := schedulingRules(cfg.Scheduling, loc)
	if err != nil {
		return nil, err
	}

	a.tracing, err = telemetry.Setup(ctx, telemetry.Config{
		Enabled:        cfg.Tracing.Enabled,
		Exporter:       cfg.Tracing.Exporter,
		SamplingRate:   cfg.Tracing.SamplingRate,
		ServiceVersion: version,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	var prefs domain.PreferenceStore
	if cfg.Memory.Enabled {
		a.store, err = memory.NewSQLiteStore(config.ExpandPath(cfg.Memory.DBPath), logger)
		if err != nil {
			return nil, fmt.Errorf("memory store: %w", err)
		}
		prefs = a.store
		a.pruneHistory(ctx)
	}

	resolver, err := calendarResolver(cfg.Calendar)
	if err != nil {
		return nil, err
	}
	a.calendar = calendar.NewService(resolver)

	tiers, err := a.cacheTiers()
	if err != nil {
		return nil, err
	}
	a.cache = cache.New(a.calendar, logger, tiers, cache.WithLocation(loc), cache.WithMetrics(a.metrics))
	a.engine = availability.NewEngine(a.cache, rules, logger, a.metrics)

	deps := tool.Deps{
		Calendar:    a.calendar,
		Cache:       a.cache,
		Engine:      a.engine,
		Preferences: prefs,
		Logger:      logger,
	}
	if cfg.Weather.Enabled {
		deps.Weather = weather.NewClient(weather.Config{
			GeocodeURL:  cfg.Weather.GeocodeURL,
			ForecastURL: cfg.Weather.ForecastURL,
			Timeout:     time.Duration(cfg.Weather.TimeoutSeconds) * time.Second,
		})
	}
	registry := tool.NewRegistry(logger)
	if err := tool.RegisterAll(registry, deps); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}

	a.factory = provider.NewFactory(cfg, logger)
	prov, err := a.factory.Chain()
	if err != nil {
		return nil, fmt.Errorf("provider: %w", err)
	}

	a.callers = staticCallers(cfg.Calendar)
	a.bus = bus.New(100, logger)

	var sessions *agent.SessionManager
	if a.store != nil {
		sessions = agent.NewSessionManager(a.store, logger)
		a.recorder = agent.NewRecorder(a.store, logger, 0)
	}

	prompt := agent.NewPromptBuilder(agent.PromptConfig{
		Location:          loc,
		Rules:             rules,
		ThinkingLevel:     cfg.General.ThinkingLevel,
		SystemPromptExtra: cfg.General.SystemPromptExtra,
	}, prefs, logger)

	a.loop = agent.NewLoop(agent.LoopConfig{
		Provider:         prov,
		Providers:        a.factory,
		Tools:            tool.NewDispatcher(registry, logger, a.metrics),
		Prompt:           prompt,
		Sessions:         sessions,
		Recorder:         a.recorder,
		Prefs:            prefs,
		Callers:          a.callers,
		Bus:              a.bus,
		Logger:           logger,
		Metrics:          a.metrics,
		MaxIterations:    cfg.General.MaxIterations,
		MaxParallelTools: cfg.General.MaxParallelTools,
		HistoryLimit:     cfg.General.HistoryLimit,
		Concurrency:      cfg.General.MaxConcurrentMessages,
		TurnTimeout:      time.Duration(cfg.General.TurnTimeoutSeconds) * time.Second,
		MaxTokens:        cfg.General.MaxTokens,
		Temperature:      cfg.General.Temperature,
		RateLimiter:      agent.NewRateLimiter(cfg.General.RateLimitBurst, float64(cfg.General.RateLimitPerMinute)),
	})

	logger.Info("calendarbot ready",
		logging.Provider(prov.Name()),
		"backend", cfg.Calendar.Backend,
		"cache_tiers", len(tiers),
		"memory", a.store != nil,
	)
	return a, nil
}

func (a *app) cacheTiers() ([]cache.Tier, error) {
	ttl := time.Duration(a.cfg.Cache.TTLSeconds) * time.Second
	tiers := []cache.Tier{cache.NewLocalTier(ttl)}

	vc := a.cfg.Cache.Valkey
	if !vc.Enabled {
		return tiers, nil
	}
	tier, err := cache.NewValkeyTier(cache.ValkeyConfig{
		URL:        vc.URL,
		Password:   vc.Password,
		DB:         vc.DB,
		TLSEnabled: vc.TLS,
		KeyPrefix:  vc.KeyPrefix,
	}, ttl)
	if err != nil {
		return nil, fmt.Errorf("valkey cache: %w", err)
	}
	a.valkey = tier
	return append(tiers, tier), nil
}

// pruneHistory drops messages older than the retention window. Failures
// are logged; an unpruned log is still usable.
func (a *app) pruneHistory(ctx context.Context) {
	days := a.cfg.Memory.RetentionDays
	if days <= 0 {
		return
	}
	n, err := a.store.PruneMessages(ctx, time.Now().AddDate(0, 0, -days))
	if err != nil {
		a.logger.Warn("failed to prune message history", logging.Err(err))
		return
	}
	if n > 0 {
		a.logger.Info("pruned message history", "deleted", n, "retention_days", days)
	}
}

// caller resolves the configured local user.
func (a *app) caller(ctx context.Context) (domain.Caller, error) {
	return a.callers(ctx, a.cfg.General.UserID)
}

// serveMetrics exposes /metrics until ctx is done.
func (a *app) serveMetrics(ctx context.Context) {
	if !a.cfg.Metrics.Enabled {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		a.logger.Info("metrics server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", logging.Err(err))
		}
	}()
}

// Close drains pending writes and releases every resource. It is safe on
// a partially built app.
func (a *app) Close() {
	if a.bus != nil {
		a.bus.Close()
	}
	if a.recorder != nil {
		a.recorder.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("failed to close memory store", logging.Err(err))
		}
	}
	if a.valkey != nil {
		a.valkey.Close()
	}
	if a.tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.tracing.Shutdown(ctx); err != nil {
			a.logger.Warn("failed to flush traces", logging.Err(err))
		}
	}
}

// schedulingRules turns the scheduling section into engine rules.
func schedulingRules(sc config.SchedulingConfig, loc *time.Location) (availability.Rules, error) {
	days, err := config.ParseWeekdays(sc.WorkingDays)
	if err != nil {
		return availability.Rules{}, err
	}
	return availability.Rules{
		WorkingDays:      days,
		DayStartHour:     sc.DayStartHour,
		DayEndHour:       sc.DayEndHour,
		Granularity:      time.Duration(sc.GranularityMinutes) * time.Minute,
		AdjacencyBuffer:  time.Duration(sc.AdjacencyBufferMinutes) * time.Minute,
		MaxSuggestions:   sc.MaxSuggestions,
		SuggestionWindow: time.Duration(sc.SuggestionWindowHours) * time.Hour,
		BlockingKeywords: sc.BlockingKeywords,
		Location:         loc,
	}, nil
}

func calendarResolver(cc config.CalendarConfig) (calendar.Resolver, error) {
	switch cc.Backend {
	case "", "memory":
		return calendar.NewMemory(), nil
	case "google":
		return calendar.NewGoogle(calendar.GoogleConfig{
			CalendarID: cc.CalendarID,
			TimeZone:   cc.TimeZone,
			Endpoint:   cc.Endpoint,
		}), nil
	}
	return nil, fmt.Errorf("unknown calendar backend %q", cc.Backend)
}

// staticCallers attaches the credentials from the config file to every
// caller. The file is the only session layer a local install has.
func staticCallers(cc config.CalendarConfig) agent.CallerResolver {
	return func(_ context.Context, userID string) (domain.Caller, error) {
		caller := domain.Caller{UserID: userID}
		if cc.AccessToken != "" {
			caller.Credentials = &domain.Credentials{
				AccessToken:  cc.AccessToken,
				RefreshToken: cc.RefreshToken,
				TokenType:    "Bearer",
			}
		}
		return caller, nil
	}
}
