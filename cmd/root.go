// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for reportforge. It implements
// subcommands for running report pipelines, validating run files, managing secrets
// in the OS keychain and inspecting the database connection, using Cobra.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"reportforge/cli/internal/config"
	"reportforge/cli/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Exit codes.
const (
	exitOK          = 0
	exitRunFailed   = 1
	exitConfigError = 2
)

var (
	showVersion bool
	configPath  string
	verbose     bool
	logLevel    string
	logFormat   string

	// logger is built in PersistentPreRunE; commands use it after that point.
	logger   = zap.NewNop()
	settings = config.DefaultSettings()
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:           "reportforge",
	Short:         "Build spreadsheet and slide deck reports from SQL and publish them",
	Long:          `reportforge resolves credentials from a vault, queries a database, transforms the results and publishes spreadsheets and slide decks to a file share or object storage.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := config.LoadSettings()
		if err != nil {
			fmt.Fprintln(os.Stderr, logging.PresentError("ignoring unreadable settings", err))
		}
		settings = s

		opts := logging.Options{Level: settings.LogLevel, Format: settings.LogFormat, Verbose: verbose}
		if cmd.Flags().Changed("log-level") {
			opts.Level = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			opts.Format = logFormat
		}
		l, err := logging.New(opts)
		if err != nil {
			return &exitError{code: exitConfigError, err: err}
		}
		logger = l
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			printVersion(cmd.OutOrStdout())
			return nil
		}
		return cmd.Help()
	},
}

// exitError carries a process exit code. A nil err means the failure was
// already presented.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// Execute runs the CLI and returns the process exit code. SIGINT and SIGTERM
// cancel the command context.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	_ = logger.Sync()
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(os.Stderr, logging.PresentError("Error", ee.err))
		}
		return ee.code
	}
	fmt.Fprintln(os.Stderr, logging.PresentError("Error", err))
	return exitRunFailed
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show version information")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Run file (default $XDG_CONFIG_HOME/reportforge/report.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level and disable the progress display")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: console or json")
}

// loadRunConfig resolves the run file path and loads it. Failures are ConfigErrors.
func loadRunConfig() (*config.RunConfig, error) {
	path := configPath
	if path == "" {
		path = settings.ConfigPath
	}
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplySettings(settings)
	logger.Debug("run file loaded", zap.String("path", path), zap.String("report", cfg.Report))
	return cfg, nil
}

// configFailure presents a configuration problem and maps it to exit code 2.
func configFailure(err error) error {
	logging.PresentFailure("loading configuration", err)
	return &exitError{code: exitConfigError}
}
