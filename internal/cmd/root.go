/*
Package cmd provides the CLI commands for postmail.
*/
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/shineum/postmail/internal/config"
)

// app carries state shared by the subcommands of one invocation.
type app struct {
	cfgFile   string
	envFiles  []string
	logLevel  string
	logFormat string

	cfg *config.Config
}

// Execute runs the root command with the process arguments.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "postmail",
		Short: "Deliver email through a Postal HTTP API or SMTP",
		Long: `postmail delivers email through one of two transports, selected by
POSTMAIL_DELIVERY_METHOD: "api" posts JSON to a Postal-compatible HTTP
endpoint, anything else submits over SMTP.

Example:
  postmail send message.eml           # Deliver a raw RFC 5322 message
  postmail send --to a@x.com --text hi
  postmail config                     # Show the resolved configuration
  postmail serve                      # Run the local SMTP relay`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "YAML config file; environment variables override it")
	rootCmd.PersistentFlags().StringArrayVar(&a.envFiles, "env-file", nil, "load variables from a .env file (repeatable, default .env if present)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "text", "log format: text, json or logfmt")

	rootCmd.AddCommand(newSendCmd(a))
	rootCmd.AddCommand(newConfigCmd(a))
	rootCmd.AddCommand(newServeCmd(a))

	return rootCmd
}

// init loads .env files, resolves configuration and installs the logger.
func (a *app) init(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(a.envFiles...); err != nil {
		return err
	}

	cfg, err := loadConfig(a.cfgFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		level := a.logLevel
		cfg = cfg.Reconfigure(func(c *config.Config) { c.Logging.Level = strings.ToLower(level) })
	}
	a.cfg = cfg

	logger, err := newLogger(cmd.ErrOrStderr(), cfg.Logging.Level, a.logFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(logger))

	slog.Debug("configuration resolved",
		"delivery_method", string(cfg.DeliveryMethod),
		"disable_default_smtp", cfg.DisableDefaultSMTPEnabled(),
	)
	return nil
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// newLogger builds a charm logger usable as a slog handler.
// An unknown level falls back to info.
func newLogger(w io.Writer, level, format string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}

	var formatter log.Formatter
	switch format {
	case "", "text":
		formatter = log.TextFormatter
	case "json":
		formatter = log.JSONFormatter
	case "logfmt":
		formatter = log.LogfmtFormatter
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	return log.NewWithOptions(w, log.Options{
		Level:           lvl,
		Formatter:       formatter,
		ReportTimestamp: true,
	}), nil
}

// stdinName is the file argument that reads a message from standard input.
const stdinName = "-"

func openInput(cmd *cobra.Command, name string) (io.ReadCloser, error) {
	if name == stdinName {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open message file: %w", err)
	}
	return f, nil
}
