package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shuttle/internal/ipc"
	"shuttle/internal/journal"
	"shuttle/internal/phase"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var req ipc.HistoryRequest
	var since time.Duration
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show journaled sync events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if since > 0 {
				req.Since = time.Now().Add(-since).UTC().Format(time.RFC3339)
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.History(req)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Entries)
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Entries) == 0 {
					fmt.Fprintln(stdout, "No journal entries")
					return nil
				}
				fmt.Fprintln(stdout, renderHistory(resp.Entries))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&req.Phase, "phase", "p", "", "Only show entries for this phase (images, products, 1, 2)")
	cmd.Flags().StringVarP(&req.Event, "event", "e", "", "Only show entries for this event type")
	cmd.Flags().IntVarP(&req.Limit, "limit", "n", journal.DefaultListLimit, "Maximum entries to show")
	cmd.Flags().DurationVar(&since, "since", 0, "Only show entries newer than this duration (e.g. 24h)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON")
	return cmd
}

func renderHistory(entries []journal.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		phaseName := "-"
		if p, ok := phase.Parse(entry.Phase); ok {
			phaseName = p.Label()
		}
		batch := "-"
		if entry.BatchIndex > 0 {
			batch = strconv.Itoa(entry.BatchIndex)
		}
		rows = append(rows, []string{
			entry.RecordedAt.Local().Format(time.DateTime),
			phaseName,
			entry.Event,
			batch,
			strings.TrimSpace(entry.Message),
		})
	}
	return renderTable(historyColumns, rows)
}
