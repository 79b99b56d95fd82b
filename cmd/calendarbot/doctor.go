package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"calendarbot/internal/cache"
	"calendarbot/internal/config"
	"calendarbot/internal/logging"
	"calendarbot/internal/memory"
	"calendarbot/internal/provider"
)

const doctorCheckTimeout = 5 * time.Second

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your calendarbot installation",
		Long: `Verifies that the configuration, database, providers, calendar
credentials and cache are set up. Reports pass/warn/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := &report{out: cmd.OutOrStdout()}
			fmt.Fprintf(r.out, "calendarbot doctor v%s\n\n", version)

			cfgPath := resolveConfigPath()
			if _, err := os.Stat(config.ExpandPath(cfgPath)); err != nil {
				r.fail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Fprintf(r.out, "\nRun 'calendarbot init' to create a default configuration.\n")
				return r.result()
			}
			r.pass("Config file", cfgPath)

			cfg, err := config.Load(cfgPath)
			if err != nil {
				r.fail("Config validation", err.Error())
				return r.result()
			}
			r.pass("Config validation", "valid")

			ctx := cmd.Context()
			checkDatabase(r, cfg)
			checkProviders(ctx, r, cfg)
			checkCalendar(r, cfg)
			checkValkey(ctx, r, cfg)
			if cfg.Metrics.Enabled {
				if err := checkPort(cfg.Metrics.Addr); err != nil {
					r.warn("Metrics address", fmt.Sprintf("%s may be in use: %v", cfg.Metrics.Addr, err))
				} else {
					r.pass("Metrics address", cfg.Metrics.Addr+" available")
				}
			}
			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					r.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
				} else {
					r.pass("Log file", cfg.General.LogFile)
				}
			}
			return r.result()
		},
	}
}

type report struct {
	out                    io.Writer
	passed, warned, failed int
}

func (r *report) pass(check, detail string) {
	r.passed++
	fmt.Fprintf(r.out, "  [PASS] %-20s %s\n", check, detail)
}

func (r *report) warn(check, detail string) {
	r.warned++
	fmt.Fprintf(r.out, "  [WARN] %-20s %s\n", check, detail)
}

func (r *report) fail(check, detail string) {
	r.failed++
	fmt.Fprintf(r.out, "  [FAIL] %-20s %s\n", check, detail)
}

func (r *report) result() error {
	fmt.Fprintf(r.out, "\nResults: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	return nil
}

// checkDatabase opens the store, which creates and migrates the file.
func checkDatabase(r *report, cfg *config.Config) {
	if !cfg.Memory.Enabled {
		r.warn("Database", "memory disabled: history and preferences are not kept")
		return
	}
	store, err := memory.NewSQLiteStore(cfg.Memory.DBPath, logging.Discard())
	if err != nil {
		r.fail("Database", err.Error())
		return
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), doctorCheckTimeout)
	defer cancel()
	schema, err := memory.GetSchemaVersion(store.DB())
	if err != nil {
		r.fail("Database", fmt.Sprintf("cannot read schema version: %v", err))
		return
	}
	st, err := store.Stats(ctx)
	if err != nil {
		r.fail("Database", err.Error())
		return
	}
	r.pass("Database", fmt.Sprintf("%s (schema v%d, %d messages)", cfg.Memory.DBPath, schema, st.Messages))
}

func checkProviders(ctx context.Context, r *report, cfg *config.Config) {
	names := make([]string, 0, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		if pc.Enabled {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		r.fail("Providers", "no providers enabled")
		return
	}
	sort.Strings(names)

	factory := provider.NewFactory(cfg, logging.Discard())
	for _, name := range names {
		check := "Provider: " + name
		p, err := factory.Get(name)
		if err != nil {
			r.fail(check, err.Error())
			continue
		}
		hctx, cancel := context.WithTimeout(ctx, doctorCheckTimeout)
		err = p.Healthy(hctx)
		cancel()
		if err != nil {
			r.warn(check, fmt.Sprintf("configured but unhealthy: %v", err))
			continue
		}
		r.pass(check, "healthy")
	}
}

func checkCalendar(r *report, cfg *config.Config) {
	switch cfg.Calendar.Backend {
	case "google":
		if cfg.Calendar.AccessToken == "" {
			r.fail("Calendar", "google backend needs calendar.accessToken")
			return
		}
		r.pass("Calendar", "google, calendar "+cfg.Calendar.CalendarID)
	default:
		r.warn("Calendar", "in-memory backend: events are lost on exit")
	}
}

func checkValkey(ctx context.Context, r *report, cfg *config.Config) {
	vc := cfg.Cache.Valkey
	if !vc.Enabled {
		return
	}
	tier, err := cache.NewValkeyTier(cache.ValkeyConfig{
		URL:        vc.URL,
		Password:   vc.Password,
		DB:         vc.DB,
		TLSEnabled: vc.TLS,
		KeyPrefix:  vc.KeyPrefix,
	}, time.Minute)
	if err != nil {
		r.fail("Valkey", err.Error())
		return
	}
	defer tier.Close()

	pctx, cancel := context.WithTimeout(ctx, doctorCheckTimeout)
	defer cancel()
	if err := tier.Ping(pctx); err != nil {
		r.fail("Valkey", fmt.Sprintf("%s unreachable: %v", vc.URL, err))
		return
	}
	r.pass("Valkey", vc.URL)
}

func checkPort(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}
