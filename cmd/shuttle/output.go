package main

import (
	"encoding/json"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// column describes one table column. Numeric columns are right aligned.
type column struct {
	title   string
	numeric bool
}

var (
	phaseColumns = []column{
		{title: "Phase"},
		{title: "State"},
		{title: "Batch", numeric: true},
		{title: "Items", numeric: true},
		{title: "Remote"},
		{title: "Errors", numeric: true},
		{title: "Stall limit", numeric: true},
	}
	taskColumns = []column{
		{title: "Task"},
		{title: "Interval", numeric: true},
		{title: "Adaptive"},
		{title: "Runs", numeric: true},
		{title: "Failures", numeric: true},
	}
	historyColumns = []column{
		{title: "Time"},
		{title: "Phase"},
		{title: "Event"},
		{title: "Batch", numeric: true},
		{title: "Message"},
	}
)

// renderTable draws rows under columns without a trailing newline. Short rows
// are padded with empty cells.
func renderTable(columns []column, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, col := range columns {
		header[i] = col.title
		align := text.AlignLeft
		if col.numeric {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(columns))
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}
	return strings.TrimRight(tw.Render(), "\n")
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
