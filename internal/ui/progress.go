package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/kylegalloway/applyflow/internal/session"
	"github.com/kylegalloway/applyflow/internal/store"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5B8DEF"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)

	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	waitStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B"))
)

// RunSummary holds the final report of one session.
type RunSummary struct {
	SessionID       string
	Profile         string
	Status          session.Status
	Error           string
	Discovered      int
	Attempted       int
	Applied         int
	MaxApplications int
	Duration        time.Duration
}

// StatusText renders a session status with its color.
func StatusText(s session.Status) string {
	switch s {
	case session.StatusCompleted:
		return okStyle.Render(string(s))
	case session.StatusFailed:
		return failStyle.Render(string(s))
	default:
		return waitStyle.Render(string(s))
	}
}

// FormatProgress returns a single-line progress string for a polled session.
func FormatProgress(snap session.Snapshot, elapsed time.Duration) string {
	line := fmt.Sprintf("[%s] session %s | %d submitted | %v elapsed",
		StatusText(snap.Status), snap.ID, snap.ApplicationsSubmitted, elapsed.Truncate(time.Second))
	if snap.Error != "" {
		line += " | " + failStyle.Render(snap.Error)
	}
	return line
}

// FormatRunSummary returns a boxed end-of-session summary.
func FormatRunSummary(rs RunSummary) string {
	rows := [][2]string{
		{"Session", rs.SessionID},
		{"Profile", rs.Profile},
		{"Status", StatusText(rs.Status)},
		{"Duration", rs.Duration.Truncate(time.Second).String()},
		{"Found", fmt.Sprintf("%d", rs.Discovered)},
		{"Attempted", fmt.Sprintf("%d", rs.Attempted)},
		{"Submitted", fmt.Sprintf("%d", rs.Applied)},
	}
	if rs.MaxApplications > 0 {
		rows = append(rows, [2]string{"Limit", fmt.Sprintf("%d", rs.MaxApplications)})
	}
	if rs.Error != "" {
		rows = append(rows, [2]string{"Error", failStyle.Render(rs.Error)})
	}

	lines := []string{titleStyle.Render("Session Summary"), ""}
	for _, r := range rows {
		lines = append(lines, labelStyle.Render(fmt.Sprintf("%-10s", r[0]))+" "+r[1])
	}
	return boxStyle.Render(strings.Join(lines, "\n")) + "\n"
}

// FormatHistory renders recorded sessions newest first as a table.
func FormatHistory(records []store.SessionRecord) string {
	if len(records) == 0 {
		return "No recorded sessions.\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%-15s %-20s %-12s %9s  %s", "SESSION", "STARTED", "STATUS", "SUBMITTED", "PROFILE")))
	b.WriteString("\n")
	for _, r := range records {
		started := "-"
		if !r.StartedAt.IsZero() {
			started = r.StartedAt.Local().Format("2006-01-02 15:04:05")
		}
		status := session.Status(r.Status)
		// pad before styling so escape codes do not break alignment
		padded := fmt.Sprintf("%-12s", status)
		styled := strings.Replace(padded, string(status), StatusText(status), 1)
		fmt.Fprintf(&b, "%-15s %-20s %s %9d  %s\n", r.ID, started, styled, r.ApplicationsSubmitted, r.Profile)
		if r.Error != "" {
			b.WriteString(labelStyle.Render("  └ "+r.Error) + "\n")
		}
	}
	return b.String()
}
