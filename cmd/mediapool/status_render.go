package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"mediapool/internal/deps"
	"mediapool/internal/preflight"
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

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
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

// checkLines renders preflight results as status lines.
func checkLines(results []preflight.Result, colorize bool) []string {
	lines := make([]string, 0, len(results))
	for _, res := range results {
		kind := statusOK
		if !res.Passed {
			kind = statusError
		}
		lines = append(lines, renderStatusLine(res.Name, kind, res.Detail, colorize))
	}
	return lines
}

// dependencyLines renders external tool availability with a leading summary
// and, when required tools are absent, a trailing list of their names.
func dependencyLines(statuses []deps.Status, colorize bool) []string {
	lines := make([]string, 0, len(statuses)+2)
	var missing []string
	for _, st := range statuses {
		if !st.Available && !st.Optional {
			missing = append(missing, st.Name)
		}
	}

	summaryKind := statusOK
	summaryText := "All required tools present"
	if len(missing) > 0 {
		summaryKind = statusError
		summaryText = fmt.Sprintf("%d required tools missing", len(missing))
	}
	lines = append(lines, renderStatusLine("Summary", summaryKind, summaryText, colorize))

	for _, st := range statuses {
		var kind statusKind
		var message string
		switch {
		case st.Available:
			kind = statusOK
			message = fmt.Sprintf("Ready (command: %s)", st.Command)
		case st.Optional:
			kind = statusWarn
			message = st.Detail
			if message == "" {
				message = "not available"
			}
		default:
			kind = statusError
			message = st.Detail
			if message == "" {
				message = "not available"
			}
		}
		lines = append(lines, renderStatusLine(st.Name, kind, message, colorize))
	}

	if len(missing) > 0 {
		lines = append(lines, fmt.Sprintf("%sMissing dependencies: %s", statusIndent, strings.Join(missing, ", ")))
	}
	return lines
}
