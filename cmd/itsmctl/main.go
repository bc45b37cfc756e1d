package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/tjfontaine/itsm-client/internal/config"
	"github.com/tjfontaine/itsm-client/pkg/itsm"
)

type globalFlags struct {
	configPath string
	baseURL    string
	sessionDB  string
	logLevel   string
	jsonLogs   bool
	trace      bool
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// Load .env file if it exists
	_ = godotenv.Load()

	var g globalFlags
	flagSet := pflag.NewFlagSet("itsmctl", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.StringVarP(&g.configPath, "config", "c", "", "config file (default: itsm.yaml)")
	flagSet.StringVar(&g.baseURL, "base-url", "", "ITSM API origin, overrides api.base_url")
	flagSet.StringVar(&g.sessionDB, "session-db", "", "SQLite file holding the session (default: user config dir)")
	flagSet.StringVar(&g.logLevel, "log-level", "", "debug, info, warn or error, overrides log.level")
	flagSet.BoolVar(&g.jsonLogs, "json-logs", false, "emit JSON log records")
	flagSet.BoolVar(&g.trace, "trace", false, "print OpenTelemetry spans to stdout")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help || flagSet.NArg() == 0 {
		printHelp(flagSet)
		return nil
	}

	cfg, err := config.Load(g.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := applyGlobalFlags(cfg, g); err != nil {
		return err
	}

	// Initialize structured logger
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	if g.jsonLogs || cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, err := itsm.New(
		itsm.WithConfig(cfg),
		itsm.WithLogger(logger),
		itsm.WithSessionExpired(func(reason string) {
			logger.Warn("session ended, run itsmctl login", slog.String("reason", reason))
		}),
	)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer func() {
		if err := client.Close(context.Background()); err != nil {
			logger.Error("failed to close client", slog.String("error", err.Error()))
		}
	}()

	cmdArgs := flagSet.Args()
	cmd, ok := commands[cmdArgs[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", cmdArgs[0])
	}
	return cmd.run(ctx, &env{client: client, cfg: cfg, out: os.Stdout}, cmdArgs[1:])
}

func applyGlobalFlags(cfg *config.Config, g globalFlags) error {
	if g.baseURL != "" {
		cfg.API.BaseURL = g.baseURL
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.trace {
		cfg.Telemetry.Enabled = true
	}

	// The CLI runs one command per process, so the session has to outlive it.
	switch {
	case g.sessionDB != "":
		cfg.Storage.Type = "sqlite"
		cfg.Storage.SQLite.Path = g.sessionDB
	case cfg.Storage.Type == "memory":
		dir, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("locate config dir: %w", err)
		}
		dir = filepath.Join(dir, "itsmctl")
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
		cfg.Storage.Type = "sqlite"
		cfg.Storage.SQLite.Path = filepath.Join(dir, "session.db")
	}
	return nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `itsmctl talks to an ITSM API with a persisted, auto-refreshing session.

Usage:
  itsmctl [flags] <command> [args]

Commands:
  login      authenticate and store the session
  logout     clear the stored session
  status     show the stored session
  request    send an authenticated JSON request
  upload     upload a file as multipart/form-data
  download   fetch a binary resource

Examples:
  itsmctl login --username admin --tenant default
  itsmctl request GET /api/v1/tickets --query status=open
  itsmctl request POST /api/v1/tickets --data '{"title":"Printer down"}'
  itsmctl upload /api/v1/attachments ./log.txt --field ticket_id=42
  itsmctl download /api/v1/reports/export --out report.xlsx

Flags:
`)
	flagSet.PrintDefaults()
}
