// Package main provides the otrank binary entry point.
// otrank derives Optimality Theory constraint rankings from tableaux with
// Recursive Constraint Demotion.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/c360studio/otrank/config"
	"github.com/c360studio/otrank/export"
	"github.com/c360studio/otrank/rcd"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "otrank"
)

// Exit codes.
const (
	exitOK         = 0
	exitError      = 1
	exitPanic      = 2
	exitUnrankable = 3
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(exitPanic)
		}
	}()

	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the CLI and maps its error to an exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	cmd := rootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cmd.ExecuteContext(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, rcd.ErrUnrankable):
		return exitUnrankable
	default:
		return exitError
	}
}

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath     string
	logLevel       string
	format         string
	outputDir      string
	markednessBias bool
	delimiter      string
	glyph          string
	natsURL        string
}

func rootCmd() *cobra.Command {
	var flags globalFlags

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Constraint ranking for Optimality Theory tableaux",
		Long: `otrank derives a stratified constraint hierarchy from tableaux of
winning and losing candidates using Recursive Constraint Demotion.

Each input file is a delimited table: a header row of constraint names, rows
naming an input form (containing "/"), and candidate rows with "1" in the
second column for the winner and violation marks in the constraint columns.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Config file path (YAML); skips user and project config")
	pf.StringVar(&flags.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	pf.StringVarP(&flags.format, "format", "f", "", "Output format ("+strings.Join(export.FormatNames(), ", ")+")")
	pf.StringVarP(&flags.outputDir, "output-dir", "o", "", "Write one report file per dataset into this directory")
	pf.BoolVarP(&flags.markednessBias, "markedness-bias", "m", false, "Rank markedness constraints above faithfulness within each stratum")
	pf.StringVar(&flags.delimiter, "delimiter", "", `Cell delimiter (default ",")`)
	pf.StringVar(&flags.glyph, "glyph", "", `Violation mark (default "*")`)
	pf.StringVar(&flags.natsURL, "nats-url", "", "Publish reports to this NATS server")

	cmd.AddCommand(
		rankCmd(&flags),
		batchCmd(&flags),
		watchCmd(&flags),
		reportsCmd(&flags),
		configCmd(&flags),
		versionCmd(),
	)

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	}
}

// setupLogger configures logging and installs it as the default logger.
func setupLogger(logLevel string, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// loadConfig resolves the effective configuration: an explicit file or the
// layered user and project files, then command-line flags.
func loadConfig(cmd *cobra.Command, flags *globalFlags, logger *slog.Logger) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flags.configPath != "" {
		cfg, err = config.LoadFromFile(flags.configPath)
	} else {
		cfg, err = config.NewLoader(logger).Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	override := &config.Config{}
	override.Output.Format = flags.format
	override.Output.Dir = flags.outputDir
	override.Input.Delimiter = flags.delimiter
	override.Input.Glyph = flags.glyph
	override.NATS.URL = flags.natsURL
	cfg.Merge(override)

	if cmd.Flags().Changed("markedness-bias") {
		cfg.Rank.MarkednessBias = flags.markednessBias
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newApp builds the App for a subcommand from the global flags.
func newApp(cmd *cobra.Command, flags *globalFlags) (*App, error) {
	logger := setupLogger(flags.logLevel, cmd.ErrOrStderr())

	cfg, err := loadConfig(cmd, flags, logger)
	if err != nil {
		return nil, err
	}
	return NewApp(cfg, logger, cmd.OutOrStdout())
}
