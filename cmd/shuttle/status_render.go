package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"shuttle/internal/ipc"
	"shuttle/internal/orchestrator"
	"shuttle/internal/preflight"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

var statusKinds = map[statusKind]struct {
	label string
	color string
}{
	statusInfo:  {"INFO", ansiBlue},
	statusOK:    {"OK", ansiGreen},
	statusWarn:  {"WARN", ansiYellow},
	statusError: {"ERROR", ansiRed},
}

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	style, ok := statusKinds[kind]
	if !ok {
		style = statusKinds[statusInfo]
	}
	statusText := "[" + style.label + "]"
	if message != "" {
		statusText += " " + message
	}
	line := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		return style.color + line + ansiReset
	}
	return line
}

// daemonStatus describes the daemon process for the status header.
func daemonStatus(status *ipc.StatusResponse, online bool) (statusKind, string) {
	switch {
	case !online && status.PID > 0:
		return statusWarn, fmt.Sprintf("Not reachable (stale pid %d)", status.PID)
	case !online:
		return statusWarn, "Not running (run `shuttle start`)"
	case status.Running:
		return statusOK, fmt.Sprintf("Running (pid %d)", status.PID)
	default:
		return statusWarn, "Idle (workflow stopped)"
	}
}

// phaseStatus summarizes one phase. A phase whose stall remediation already
// fired is flagged even while it still reports running.
func phaseStatus(ph orchestrator.Status) (statusKind, string) {
	state := stateLabel(ph.State)
	var kind statusKind
	switch ph.State {
	case orchestrator.StateRunning, orchestrator.StateCompleted:
		kind = statusOK
	case orchestrator.StateStarting, orchestrator.StatePaused, orchestrator.StateCancelled:
		kind = statusWarn
	case orchestrator.StateError:
		kind = statusError
	default:
		kind = statusInfo
	}
	if ph.State == orchestrator.StateRunning && ph.Stall != nil && ph.Stall.Remediated {
		return statusWarn, state + ", stalled (next batch requested)"
	}
	if ph.ErrorCount > 0 && kind != statusError {
		return statusWarn, fmt.Sprintf("%s, %d failed progress checks", state, ph.ErrorCount)
	}
	return kind, state
}

func preflightStatus(check preflight.Result) statusKind {
	if check.Passed {
		return statusOK
	}
	return statusError
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
