package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"hotswap/internal/compiler"
	"hotswap/internal/engine"
	"hotswap/internal/session"
	"hotswap/internal/store"
)

// Semantic colors
var (
	successColor = lipgloss.Color("#8BC34A")
	errorColor   = lipgloss.Color("#e53935")
	warningColor = lipgloss.Color("#FFC107")
	infoColor    = lipgloss.Color("#2196F3")
	mutedColor   = lipgloss.Color("#6b7280")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor)
	infoStyle    = lipgloss.NewStyle().Foreground(infoColor)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	indentStyle  = lipgloss.NewStyle().PaddingLeft(2)
)

func statusStyle(status string) lipgloss.Style {
	switch status {
	case store.StatusOK:
		return okStyle
	case store.StatusRejected, store.StatusCancelled:
		return warningStyle
	default:
		return errorStyle
	}
}

func severityStyle(s compiler.Severity) lipgloss.Style {
	switch s {
	case compiler.SeverityError:
		return errorStyle
	case compiler.SeverityWarning:
		return warningStyle
	default:
		return infoStyle
	}
}

// renderReport renders one reload cycle: a status line, the diagnostics of
// every compiled unit and the cycle's warnings.
func renderReport(rep *engine.Report) string {
	var b strings.Builder
	status := rep.Status()
	fmt.Fprintf(&b, "%s %s\n", statusStyle(status).Render(strings.ToUpper(status)), rep.Summary())
	b.WriteString(renderDiagnostics(rep.Results))
	for _, w := range rep.Warnings {
		b.WriteString(indentStyle.Render(warningStyle.Render("warning: ")+w.Error()) + "\n")
	}
	return b.String()
}

// renderDiagnostics lists diagnostics per unit; clean units get one line.
func renderDiagnostics(results []*compiler.Result) string {
	var b strings.Builder
	for _, res := range results {
		if res == nil {
			continue
		}
		name := titleStyle.Render(res.Source.Label())
		if len(res.Diagnostics) == 0 {
			fmt.Fprintf(&b, "  %s %s\n", name, okStyle.Render("ok"))
			continue
		}
		fmt.Fprintf(&b, "  %s\n", name)
		for _, d := range res.Diagnostics {
			sev := d.Severity.String()
			if d.Escalated {
				sev += "(as error)"
			}
			fmt.Fprintf(&b, "    %s %s[%s] %s\n",
				mutedStyle.Render(fmt.Sprintf("%d:%d", d.Line, d.Column)),
				severityStyle(d.Severity).Render(sev), d.Code, d.Message)
		}
	}
	return b.String()
}

// renderCalls lists call outcomes, one per line.
func renderCalls(calls []session.CallOutcome) string {
	var b strings.Builder
	for _, c := range calls {
		target := fmt.Sprintf("%s.%s", c.Object, c.Call)
		if c.Err != nil {
			fmt.Fprintf(&b, "  %s %s %s\n", errorStyle.Render("✗"), target, errorStyle.Render(c.Err.Error()))
			continue
		}
		fmt.Fprintf(&b, "  %s %s %s\n", okStyle.Render("✓"), target, formatValues(c.Values))
	}
	return b.String()
}

func formatValues(values []interface{}) string {
	if len(values) == 0 {
		return mutedStyle.Render("(no result)")
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%v", v)
	}
	return "→ " + strings.Join(parts, ", ")
}

// renderHistory renders a table of cycles, newest first.
func renderHistory(cycles []store.Cycle) string {
	if len(cycles) == 0 {
		return "No reload cycles recorded.\n"
	}
	var b strings.Builder
	header := fmt.Sprintf("%-8s  %-19s  %-9s  %-7s  %5s  %8s  %5s  %8s  %8s",
		"CYCLE", "STARTED", "STATUS", "TRIGGER", "UNITS", "MIGRATED", "STALE", "REPLACED", "DURATION")
	b.WriteString(titleStyle.Render(header) + "\n")
	for _, c := range cycles {
		status := statusStyle(c.Status).Render(fmt.Sprintf("%-9s", c.Status))
		fmt.Fprintf(&b, "%-8s  %-19s  %s  %-7s  %5d  %8d  %5d  %8d  %8s\n",
			shortID(c.ID), c.StartedAt.Local().Format("2006-01-02 15:04:05"), status, c.Trigger,
			len(c.Units), c.Migrated, c.Stale, c.Replaced, c.Duration().Round(time.Millisecond))
	}
	fmt.Fprintf(&b, "%s\n", mutedStyle.Render(fmt.Sprintf("%d cycle(s)", len(cycles))))
	return b.String()
}

// renderCycle renders one stored cycle in detail.
func renderCycle(c store.Cycle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", titleStyle.Render("cycle"), c.ID)
	fmt.Fprintf(&b, "  status:   %s\n", statusStyle(c.Status).Render(c.Status))
	fmt.Fprintf(&b, "  trigger:  %s\n", c.Trigger)
	fmt.Fprintf(&b, "  started:  %s (%s)\n", c.StartedAt.Local().Format(time.RFC3339), c.Duration().Round(time.Millisecond))
	fmt.Fprintf(&b, "  units:    %s\n", strings.Join(c.Units, ", "))
	fmt.Fprintf(&b, "  migrated: %d  stale: %d  replaced: %d  warnings: %d\n", c.Migrated, c.Stale, c.Replaced, len(c.Warnings))
	if c.Error != "" {
		fmt.Fprintf(&b, "  error:    %s\n", errorStyle.Render(c.Error))
	}
	for _, w := range c.Warnings {
		fmt.Fprintf(&b, "    %s %s\n", warningStyle.Render("warning:"), w)
	}
	for _, d := range c.Diagnostics {
		fmt.Fprintf(&b, "    %s %s:%d %s[%s] %s\n", mutedStyle.Render("•"), d.Unit, d.Line, d.Severity, d.Code, d.Message)
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
