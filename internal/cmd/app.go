// Package cmd provides the CLI commands for vaultbridge.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/obsidian-tools/vaultbridge/internal/apperrors"
	"github.com/obsidian-tools/vaultbridge/internal/config"
	"github.com/obsidian-tools/vaultbridge/internal/ledger"
	"github.com/obsidian-tools/vaultbridge/internal/server"
	"github.com/obsidian-tools/vaultbridge/internal/vault"
	"github.com/obsidian-tools/vaultbridge/internal/version"
)

// verboseFlag is the shared verbose flag for all commands.
var verboseFlag = &cli.BoolFlag{
	Name:  "verbose",
	Usage: "Enable verbose logging",
}

// LogFormat represents the log output format.
type LogFormat string

const (
	// LogFormatText is the human-readable text format (default).
	LogFormatText LogFormat = "text"
	// LogFormatJSON is the JSON-formatted structured logs.
	LogFormatJSON LogFormat = "json"
)

// getLogFormat returns the configured log format from VB_LOG_FORMAT.
func getLogFormat() LogFormat {
	val := strings.ToLower(os.Getenv("VB_LOG_FORMAT"))
	switch val {
	case "json":
		return LogFormatJSON
	case "text", "":
		return LogFormatText
	default:
		return LogFormatText
	}
}

// setupLogging configures the global logger based on the verbose flag and
// VB_LOG_FORMAT.
func setupLogging(cmd *cli.Command) {
	level := slog.LevelInfo
	if cmd.Bool("verbose") {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch getLogFormat() {
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))

	envVal := strings.ToLower(os.Getenv("VB_LOG_FORMAT"))
	if envVal != "" && envVal != "text" && envVal != "json" {
		slog.Warn("Invalid VB_LOG_FORMAT value, using text format", "value", envVal)
	}

	if level == slog.LevelDebug {
		slog.Debug("Verbose logging enabled")
	}
}

// loadConfig loads the environment configuration and applies flag overrides.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if cmd.IsSet("host") {
		cfg.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("obsidian-url") {
		cfg.ObsidianURL = strings.TrimSuffix(cmd.String("obsidian-url"), "/")
	}
	if cmd.IsSet("obsidian-token") {
		cfg.ObsidianToken = cmd.String("obsidian-token")
	}
	if cmd.IsSet("api-key") {
		cfg.APIKey = cmd.String("api-key")
	}
	if cmd.IsSet("history-max") {
		cfg.HistoryMax = int(cmd.Int("history-max"))
	}
	if cfg.HistoryMax < 0 {
		return nil, fmt.Errorf("history-max must not be negative, got %d", cfg.HistoryMax)
	}
	if cmd.IsSet("history-path") {
		cfg.HistoryPath = cmd.String("history-path")
	}

	return cfg, nil
}

// newGateway builds the gateway client from the configuration.
func newGateway(cfg *config.Config) (*vault.Client, error) {
	if cfg.ObsidianToken == "" {
		return nil, apperrors.ErrTokenRequired
	}
	return vault.NewClient(
		cfg.ObsidianURL,
		cfg.ObsidianToken,
		vault.WithTimeout(cfg.RequestTimeout),
		vault.WithLogger(slog.Default()),
	), nil
}

// NewApp creates the CLI application.
func NewApp() *cli.Command {
	return &cli.Command{
		Name:    "vaultbridge",
		Usage:   "Bridge an Obsidian vault to a REST API with an audit trail of write operations",
		Version: version.Version,
		Commands: []*cli.Command{
			serveCommand(),
			statusCommand(),
			historyCommand(),
			genkeyCommand(),
		},
	}
}

// serveCommand creates the serve subcommand.
func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Listen host",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Listen port",
			},
			&cli.StringFlag{
				Name:  "obsidian-url",
				Usage: "Base URL of the Obsidian Local REST API",
			},
			&cli.StringFlag{
				Name:  "obsidian-token",
				Usage: "Bearer token for the Obsidian Local REST API",
			},
			&cli.StringFlag{
				Name:  "api-key",
				Usage: "Shared secret required in the X-API-Key header",
			},
			&cli.IntFlag{
				Name:  "history-max",
				Usage: "Operation history capacity (0 disables history)",
			},
			&cli.StringFlag{
				Name:  "history-path",
				Usage: "Operation history storage file",
			},
			verboseFlag,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			client, err := newGateway(cfg)
			if err != nil {
				return err
			}

			if cfg.APIKey == "" {
				key, err := config.GenerateAPIKey()
				if err != nil {
					return err
				}
				cfg.APIKey = key
				slog.Warn("VB_API_KEY not set, generated a key for this run", "api_key", key)
			}

			ledg := ledger.New(cfg.HistoryPath, cfg.HistoryMax, ledger.WithLogger(slog.Default()))
			slog.Info("operation history",
				"enabled", ledg.Enabled(),
				"max_entries", ledg.MaxEntries(),
				"path", cfg.HistoryPath)

			// Probe the remote; the server starts either way, requests
			// just fail with BadGateway until Obsidian is reachable.
			health := client.Health(ctx)
			if health.Connected {
				slog.Info("connected to Obsidian REST API",
					"obsidian_version", health.ObsidianVersion,
					"plugin_version", health.PluginVersion)
			} else {
				slog.Warn("could not connect to Obsidian REST API", "error", health.Error)
			}

			srv := server.NewServer(&server.Config{
				Host:   cfg.Host,
				Port:   cfg.Port,
				APIKey: cfg.APIKey,
			}, client, ledg, slog.Default())

			return srv.Start(ctx)
		},
	}
}

// statusCommand creates the status subcommand.
func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Check the connection to the Obsidian REST API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "obsidian-url",
				Usage: "Base URL of the Obsidian Local REST API",
			},
			&cli.StringFlag{
				Name:  "obsidian-token",
				Usage: "Bearer token for the Obsidian Local REST API",
			},
			verboseFlag,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			client, err := newGateway(cfg)
			if err != nil {
				return err
			}

			health := client.Health(ctx)
			if !health.Connected {
				fmt.Printf("✗ Not connected to %s\n", cfg.ObsidianURL)
				fmt.Printf("  Error: %s\n", health.Error)
				return fmt.Errorf("obsidian API unreachable at %s", cfg.ObsidianURL)
			}

			fmt.Printf("✓ Connected to %s\n", cfg.ObsidianURL)
			fmt.Printf("  Obsidian version: %s\n", orUnknown(health.ObsidianVersion))
			fmt.Printf("  Plugin version:   %s\n", orUnknown(health.PluginVersion))
			return nil
		},
	}
}

// historyCommand creates the history subcommand.
func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Inspect or clear the local operation history",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recorded operations, most recent first",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of operations to show",
						Value: 20,
					},
					verboseFlag,
				},
				Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
					setupLogging(cmd)
					return ctx, nil
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					ledg := ledger.New(cfg.HistoryPath, cfg.HistoryMax)
					if !ledg.Enabled() {
						return apperrors.ErrLedgerDisabled
					}
					printHistory(ledg.Get(int(cmd.Int("limit"))))
					return nil
				},
			},
			{
				Name:  "clear",
				Usage: "Clear all recorded operations",
				Flags: []cli.Flag{verboseFlag},
				Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
					setupLogging(cmd)
					return ctx, nil
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					ledg := ledger.New(cfg.HistoryPath, cfg.HistoryMax)
					if !ledg.Enabled() {
						return apperrors.ErrLedgerDisabled
					}
					ledg.Clear()
					fmt.Println("Operation history cleared")
					return nil
				},
			},
		},
	}
}

// genkeyCommand creates the genkey subcommand.
func genkeyCommand() *cli.Command {
	return &cli.Command{
		Name:  "genkey",
		Usage: "Generate a random API key for VB_API_KEY",
		Action: func(_ context.Context, _ *cli.Command) error {
			key, err := config.GenerateAPIKey()
			if err != nil {
				return err
			}
			fmt.Println(key)
			return nil
		},
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
