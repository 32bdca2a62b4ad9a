package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func newHealthCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server liveness and readiness",
		Long: `Health calls /health and /ready on the productqa server.

The command fails when the server is not ready to answer questions.

Examples:
  pqa health
  pqa --server http://qa.internal:5001 health`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := newClient(opts)
			out := cmd.OutOrStdout()

			var health struct {
				Status  string `json:"status"`
				Version string `json:"version"`
			}
			if err := c.do(ctx, http.MethodGet, "/health", nil, &health); err != nil {
				fmt.Fprintln(out, row("Server", errorStyle.Render("[✗] unreachable")))
				return err
			}
			fmt.Fprintln(out, row("Server", healthyStyle.Render("[✓] "+health.Status)))
			fmt.Fprintln(out, row("Version", health.Version))

			var ready struct {
				Ready  bool   `json:"ready"`
				Ingest string `json:"ingest"`
			}
			err := c.do(ctx, http.MethodGet, "/ready", nil, &ready)
			var apiErr *apiError
			if err != nil && !errors.As(err, &apiErr) {
				return err
			}
			if ready.Ingest != "" {
				fmt.Fprintln(out, row("Ingestion", stateBadge(ready.Ingest)))
			}
			if !ready.Ready {
				fmt.Fprintln(out, row("Ready", warningStyle.Render("[⚠] no")))
				return errors.New("server is not ready")
			}
			fmt.Fprintln(out, row("Ready", healthyStyle.Render("[✓] yes")))
			return nil
		},
	}
}
