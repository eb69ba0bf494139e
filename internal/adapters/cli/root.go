// Package cli implements the Cobra-based command-line interface for firebridge.
package cli

import (
	"fmt"

	"github.com/forge-platform/firebridge/internal/config"
	"github.com/forge-platform/firebridge/internal/core/ports"
	"github.com/forge-platform/firebridge/internal/core/services"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	cfgFile  string
	verbose  bool
	jsonLogs bool
	dataDir  string
	logLevel string

	cfg    *config.Config
	logger ports.Logger
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "firebridge",
	Short: "firebridge - Firebase services for single-threaded scripting hosts",
	Long: `firebridge exposes sign-in, analytics, crash reporting, performance
tracing and HTTP requests to a single-threaded scripting host.

Asynchronous calls return immediately; their outcome arrives later as a
signal on the host context.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initializeConfig(cmd)
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.firebridge/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit logs as JSON")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override core.data_dir")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override core.log_level (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(methodsCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(reportsCmd)
	rootCmd.AddCommand(analyticsCmd)
}

// initializeConfig loads configuration and sets up the logger.
func initializeConfig(cmd *cobra.Command) error {
	loaded, err := config.LoadFile(cfgFile)
	if err != nil {
		return err
	}
	applyFlagOverrides(cmd, loaded)
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level := loaded.Core.LogLevel
	if verbose {
		level = "debug"
	}
	cfg = loaded
	logger = services.NewSlogLogger(level, loaded.Core.LogJSON)
	return nil
}

// applyFlagOverrides copies explicitly set flags over the loaded configuration.
func applyFlagOverrides(cmd *cobra.Command, c *config.Config) {
	cmd.Flags().Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "data-dir":
			c.Core.DataDir = f.Value.String()
		case "log-level":
			c.Core.LogLevel = f.Value.String()
		case "json-logs":
			c.Core.LogJSON = jsonLogs
		}
	})
}
