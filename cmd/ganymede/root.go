package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"mercator-hq/ganymede/pkg/cli"
)

var (
	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "ganymede",
	Short: "Mercator Ganymede - LLM upstream admission gateway",
	Long: `Mercator Ganymede is an admission gateway that fronts a rate-limited,
quota-constrained LLM upstream on behalf of many concurrent feature endpoints.

It decides, per request, whether to serve from cache, which upstream
credential to spend, or whether to queue the work for deferred processing:
  - Credential pool with per-key quotas and circuit breaking
  - Exact and semantic response caching
  - Asynchronous job queue with a dead-letter path
  - Health aggregation and Prometheus metrics

For more information, visit: https://github.com/mercator-hq/ganymede`,
	Version: Version,
}

// Execute runs the root command. Exit codes follow pkg/cli: 2 for
// configuration problems, 1 for everything else.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override log format (text, json)")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
