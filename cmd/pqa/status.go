package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show catalog ingestion status",
		Long: `Status reports the progress of catalog ingestion on the server:
how many records were indexed, which were skipped and how many entries
the vector index holds.

Examples:
  pqa status
  pqa status --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var st ingestStatus
			if err := newClient(opts).do(cmd.Context(), http.MethodGet, "/api/v1/ingest/status", nil, &st); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			printStatus(out, st)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw status as JSON")
	return cmd
}

func printStatus(w io.Writer, st ingestStatus) {
	fmt.Fprintln(w, row("State", stateBadge(st.State)))
	fmt.Fprintln(w, row("Indexed", fmt.Sprintf("%d / %d", st.Indexed, st.Total)))
	if st.Duplicates > 0 {
		fmt.Fprintln(w, row("Duplicates", fmt.Sprintf("%d", st.Duplicates)))
	}
	if len(st.FailedIDs) > 0 {
		fmt.Fprintln(w, row("Skipped", warningStyle.Render(strings.Join(st.FailedIDs, ", "))))
	}
	if st.IndexEntries >= 0 {
		fmt.Fprintln(w, row("Index entries", fmt.Sprintf("%d", st.IndexEntries)))
	} else {
		fmt.Fprintln(w, row("Index entries", dimStyle.Render("unavailable")))
	}
	if !st.StartedAt.IsZero() {
		fmt.Fprintln(w, row("Started", st.StartedAt.Local().Format(time.DateTime)))
	}
	if !st.FinishedAt.IsZero() {
		fmt.Fprintln(w, row("Duration", st.FinishedAt.Sub(st.StartedAt).Round(time.Millisecond).String()))
	}
	if st.Error != "" {
		fmt.Fprintln(w, row("Error", errorStyle.Render(st.Error)))
	}
}
