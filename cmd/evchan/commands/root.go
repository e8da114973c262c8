// Package commands provides the CLI commands for evchan.
package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/telnet2/evchan/internal/config"
	"github.com/telnet2/evchan/internal/event"
	"github.com/telnet2/evchan/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	printLogs bool
	logLevel  string
	noColor   bool
)

// appConfig is loaded before every command runs.
var appConfig = &config.Config{}

var rootCmd = &cobra.Command{
	Use:   "evchan",
	Short: "evchan - inspect and exercise event channel graphs",
	Long: `evchan builds graphs of synchronous event channels from topology files,
fires them, and prints the order in which listeners were notified.

Run 'evchan demo' for the built-in scenarios, or 'evchan trace' against a
topology file.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR|OFF)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.SetVersionTemplate(fmt.Sprintf("evchan %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
}

// ExecuteContext runs the root command with ctx as every command's context.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// setup loads .env and the config files, initializes logging and colors, and
// resets the process-wide event bus.
func setup(cmd *cobra.Command) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	cfg, err := config.Load(wd)
	if err != nil {
		return err
	}
	appConfig = cfg

	level, err := logging.Resolve(logLevel, cfg.LogLevel, printLogs)
	if err != nil {
		return err
	}

	logging.Init(logging.Config{
		Level:   level,
		Output:  cmd.ErrOrStderr(),
		Pretty:  cfg.Pretty(),
		NoColor: noColor || cfg.ColorDisabled(),
	})

	if noColor || cfg.ColorDisabled() {
		color.NoColor = true
	}

	event.Reset()
	return nil
}

// topologyPath returns the topology file from the [file] argument or the config.
func topologyPath(arg string) (string, error) {
	if arg != "" {
		return arg, nil
	}
	if appConfig.Topology != "" {
		return appConfig.Topology, nil
	}
	return "", errors.New("no topology file: pass it as the [file] argument or set \"topology\" in evchan.json")
}
