package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"calendarbot/internal/agent"
	"calendarbot/internal/channel"
	"calendarbot/internal/config"
	"calendarbot/internal/domain"
	"calendarbot/internal/logging"
)

var (
	version    = "0.1.0"
	logger     = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	configPath string // overridable via --config
)

func main() {
	agent.SetVersion(version)
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "calendarbot",
		Short:        "calendarbot: a calendar assistant you talk to",
		Long:         "calendarbot reads and edits your calendar through an LLM that calls calendar tools, checking conflicts before anything is booked.",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: ~/.calendarbot/config.yaml)")

	root.AddCommand(initCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(askCmd())
	root.AddCommand(slotsCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	return root
}

// resolveConfigPath returns the config path from --config or the default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig reads the config file, falling back to defaults when there is
// none yet. Any other error is returned.
func loadConfig() (*config.Config, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("config not found, using defaults", "path", cfgPath)
		return config.Defaults(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// setupLogging replaces the bootstrap logger with the configured one.
func setupLogging(cfg *config.Config) (io.Closer, error) {
	l, closer, err := logging.New(logging.Options{
		Level:  cfg.General.LogLevel,
		Format: cfg.General.LogFormat,
		File:   cfg.General.LogFile,
	})
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	logger = l
	slog.SetDefault(l)
	return closer, nil
}

// startApp loads config, sets up logging and wires the app. The returned
// cleanup must be called once the command is done.
func startApp(ctx context.Context) (*app, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logCloser, err := setupLogging(cfg)
	if err != nil {
		return nil, nil, err
	}
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logCloser.Close()
		return nil, nil, err
	}
	return a, func() {
		a.Close()
		logCloser.Close()
	}, nil
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(config.ExpandPath(cfgPath)); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "database", cfg.Memory.DBPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func chatCmd() *cobra.Command {
	var showTools bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, cleanup, err := startApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()
			a.serveMetrics(ctx)

			loopDone := make(chan struct{})
			go func() {
				defer close(loopDone)
				a.loop.Run(ctx)
			}()

			cli := channel.NewCLI(channel.CLIConfig{
				Logger:         logger,
				In:             cmd.InOrStdin(),
				Out:            cmd.OutOrStdout(),
				UserID:         a.cfg.General.UserID,
				Spinner:        isatty.IsTerminal(os.Stdout.Fd()),
				ShowToolEvents: showTools,
			})
			err = cli.Start(ctx, a.bus)

			stop()
			<-loopDone
			return err
		},
	}
	cmd.Flags().BoolVar(&showTools, "show-tools", false, "print each tool call as it runs")
	return cmd
}

func askCmd() *cobra.Command {
	var showTools bool
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask one question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, cleanup, err := startApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			out := cmd.OutOrStdout()
			sink := func(evt domain.StreamEvent) {
				if !showTools {
					return
				}
				switch evt.Type {
				case domain.StreamToolStart:
					fmt.Fprintf(out, "  -> %s\n", evt.Tool)
				case domain.StreamToolEnd:
					fmt.Fprintf(out, "  <- %s %s\n", evt.Tool, evt.Status)
				}
			}
			reply, err := a.loop.ProcessDirect(ctx, domain.InboundMessage{
				Channel: "cli",
				ChatID:  "direct",
				UserID:  a.cfg.General.UserID,
				Content: strings.Join(args, " "),
			}, sink)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, reply)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showTools, "show-tools", false, "print each tool call as it runs")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show provider, memory and cache status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			a, cleanup, err := startApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "calendarbot %s\n", version)
			fmt.Fprintf(out, "config:    %s\n", resolveConfigPath())
			fmt.Fprintf(out, "calendar:  %s (%s)\n", a.cfg.Calendar.Backend, a.cfg.Calendar.TimeZone)

			if prov := a.factory.HealthyProvider(ctx); prov != nil {
				fmt.Fprintf(out, "provider:  %s (healthy)\n", prov.Name())
			} else {
				fmt.Fprintf(out, "provider:  none healthy\n")
			}

			if a.store != nil {
				st, err := a.store.Stats(ctx)
				if err != nil {
					fmt.Fprintf(out, "memory:    error: %v\n", err)
				} else {
					fmt.Fprintf(out, "memory:    %d conversations, %d messages, %d preferences\n",
						st.Conversations, st.Messages, st.Preferences)
				}
			} else {
				fmt.Fprintf(out, "memory:    disabled\n")
			}

			if a.valkey != nil {
				if err := a.valkey.Ping(ctx); err != nil {
					fmt.Fprintf(out, "cache:     local + valkey (unreachable: %v)\n", err)
				} else {
					fmt.Fprintf(out, "cache:     local + valkey\n")
				}
			} else {
				fmt.Fprintf(out, "cache:     local\n")
			}
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. scheduling.dayStartHour)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. general.defaultProvider claude)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("invalid value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := json.MarshalIndent(config.ListPaths(config.Sanitize(cfg)), "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), resolveConfigPath())
		},
	})

	return cmd
}
