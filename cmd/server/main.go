package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	saveResult bool

	rootCmd = &cobra.Command{
		Use:   "nightlies",
		Short: "Nightly end-to-end CI status aggregator",
		Long: `nightlies aggregates the recent runs of the nightly end-to-end workflows of every
well-lit-path guide into one status feed: pass rate, trend and failure classification
per guide, cached with an adaptive TTL and served over HTTP.

Configuration is read from an optional YAML file and the environment. GITHUB_TOKEN
must hold a token with read access to the monitored repositories.`,
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the nightly status API",
		RunE:  runServe,
	}

	snapshotCmd = &cobra.Command{
		Use:   "snapshot",
		Short: "Run one aggregation and print the status feed as JSON",
		Long: `snapshot fetches and classifies the nightly runs once, bypassing the cache, and
writes the same body the status endpoint would serve to stdout. With --save the
result is also written to the configured cache backend.`,
		RunE: runSnapshot,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	snapshotCmd.Flags().BoolVar(&saveResult, "save", false, "Also write the snapshot to the cache backend")

	rootCmd.AddCommand(serveCmd, snapshotCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
