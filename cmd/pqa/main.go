// Package main implements pqa, a command-line client for the productqa HTTP API.
package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

// version information
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// globalOptions are shared by every subcommand.
type globalOptions struct {
	serverURL string
	timeout   time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "pqa",
		Short: "CLI for the productqa HTTP API",
		Long: `pqa is a command-line interface for a running productqa server.
It asks product questions and reports server health and ingestion status.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.serverURL, "server", "http://127.0.0.1:5001", "productqa server URL")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 60*time.Second, "request timeout")

	root.AddCommand(newAskCmd(opts))
	root.AddCommand(newHealthCmd(opts))
	root.AddCommand(newStatusCmd(opts))
	return root
}
