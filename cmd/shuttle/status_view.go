package main

import (
	"fmt"
	"strconv"
	"time"

	"shuttle/internal/ipc"
	"shuttle/internal/orchestrator"
	"shuttle/internal/telemetry"
)

func renderStatus(status *ipc.StatusResponse, online, colorize bool) []string {
	var lines []string
	lines = append(lines, renderSectionHeader("System Status", colorize)...)
	kind, detail := daemonStatus(status, online)
	lines = append(lines, renderStatusLine("Daemon", kind, detail, colorize))
	wf := status.Workflow
	if online {
		lines = append(lines, renderStatusLine("Polling", statusInfo, fmt.Sprintf("%s every %s", wf.Mode, wf.Interval), colorize))
		if wf.InactiveProgress > 0 {
			lines = append(lines, renderStatusLine("Inactive ticks", statusWarn, strconv.Itoa(wf.InactiveProgress), colorize))
		}
		if !wf.SyncStartedAt.IsZero() {
			lines = append(lines, renderStatusLine("Sync started", statusInfo, wf.SyncStartedAt.Local().Format(time.DateTime), colorize))
		}
		if status.APIAddress != "" {
			lines = append(lines, renderStatusLine("HTTP API", statusInfo, status.APIAddress, colorize))
		}
	}
	if wf.LastError != "" {
		lines = append(lines, renderStatusLine("Last error", statusError, wf.LastError, colorize))
	}

	if len(wf.Preflight) > 0 {
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("Preflight", colorize)...)
		for _, check := range wf.Preflight {
			lines = append(lines, renderStatusLine(check.Name, preflightStatus(check), check.Detail, colorize))
		}
	}

	if len(wf.Phases) > 0 {
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("Phases", colorize)...)
		rows := make([][]string, 0, len(wf.Phases))
		for _, ph := range wf.Phases {
			kind, summary := phaseStatus(ph)
			lines = append(lines, renderStatusLine(ph.Phase.Label(), kind, summary, colorize))
			rows = append(rows, phaseRow(ph))
		}
		lines = append(lines, renderTable(phaseColumns, rows))
	}

	if len(wf.Tasks) > 0 {
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("Polling Tasks", colorize)...)
		rows := make([][]string, 0, len(wf.Tasks))
		for _, task := range wf.Tasks {
			rows = append(rows, []string{
				task.Name,
				task.Interval.String(),
				yesNo(task.Adaptive),
				strconv.Itoa(task.Runs),
				strconv.Itoa(task.Failures),
			})
		}
		lines = append(lines, renderTable(taskColumns, rows))
	}

	if len(wf.Metrics) > 0 {
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("Metrics", colorize)...)
		for _, reading := range wf.Metrics {
			lines = append(lines, statusIndent+telemetry.FormatReading(reading))
		}
	}
	return lines
}

func phaseRow(ph orchestrator.Status) []string {
	name := ph.Phase.Label()
	if ph.Label != "" {
		name = fmt.Sprintf("%s [%s]", name, ph.Label)
	}
	batch, items, remote := "-", "-", "-"
	if snap := ph.Snapshot; snap != nil {
		if snap.TotalBatches > 0 {
			batch = fmt.Sprintf("%d/%d", snap.BatchIndex, snap.TotalBatches)
		} else if snap.BatchIndex > 0 {
			batch = strconv.Itoa(snap.BatchIndex)
		}
		if snap.ItemsTotal > 0 {
			items = fmt.Sprintf("%d/%d (%.0f%%)", snap.ItemsProcessed, snap.ItemsTotal, snap.Percent())
		} else if snap.ItemsProcessed > 0 {
			items = strconv.Itoa(snap.ItemsProcessed)
		}
		if snap.Status != "" {
			remote = snap.Status
		}
	}
	limit := "-"
	if ph.Stall != nil && ph.Stall.Threshold > 0 {
		limit = ph.Stall.Threshold.Round(time.Second).String()
	}
	return []string{name, stateLabel(ph.State), batch, items, remote, strconv.Itoa(ph.ErrorCount), limit}
}

func stateLabel(state orchestrator.State) string {
	if state == "" {
		return string(orchestrator.StatePending)
	}
	return string(state)
}
