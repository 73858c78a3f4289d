package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/stackmesh/runboard/internal/domain"
	"github.com/stackmesh/runboard/internal/monitor"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	runningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	completedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255"))

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Underline(true)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("244"))

	batchHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39"))

	dimmedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	b.WriteString(headerStyle.Width(m.width).Render(m.headerLine()))
	b.WriteString("\n")

	b.WriteString(m.renderTabs())
	b.WriteString("\n")

	if m.snap.Run.Status == domain.RunReconnecting {
		banner := fmt.Sprintf(" ⚠ Connection lost, retry %d/%d, next attempt in %ds ",
			m.snap.RetryCount, m.snap.MaxRetries, m.snap.Countdown)
		b.WriteString(warningStyle.Width(m.width).Render(banner))
		b.WriteString("\n")
	}

	switch m.activeTab {
	case tabRun:
		b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderBatches()))
		b.WriteString("\n")
		b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderLogPane()))
		b.WriteString("\n")
		if m.snap.Summary != nil {
			b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderSummary()))
			b.WriteString("\n")
		}
	case tabLogs:
		b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderAllLogs()))
		b.WriteString("\n")
	case tabPlan:
		b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderPlan()))
		b.WriteString("\n")
	}

	if m.statusMsg != "" && time.Now().Before(m.statusMsgExp) {
		style := pendingStyle
		if strings.HasPrefix(m.statusMsg, "Error") {
			style = errorStyle
		}
		b.WriteString(style.Width(m.width).Render(" " + m.statusMsg + " "))
		b.WriteString("\n")
	}

	b.WriteString(statusBarStyle.Width(m.width).Render(m.statusBar()))

	return b.String()
}

func (m Model) headerLine() string {
	run := m.snap.Run

	spec := run.Spec
	if spec == "" {
		spec = m.spec
	}
	if spec == "" {
		spec = "(no spec)"
	}

	status := strings.ToUpper(string(run.Status))
	if run.DryRun && run.Status.Active() {
		status += " (DRY RUN)"
	}

	done := 0
	for _, bt := range m.snap.Batches {
		if bt.Status == domain.BatchCompleted {
			done++
		}
	}

	header := fmt.Sprintf(" Runboard │ %s │ %s │ %s │ Batches: %d/%d ",
		spec, status, formatClock(run.ElapsedSecs), done, len(m.snap.Batches))
	if run.Status.Active() && !run.StartedAt.IsZero() {
		header += fmt.Sprintf("│ started %s ", humanize.Time(run.StartedAt))
	}
	return header
}

func (m Model) renderTabs() string {
	names := []string{"Run", "Logs", "Plan"}
	parts := make([]string, 0, len(names))
	for i, name := range names {
		if i == m.activeTab {
			parts = append(parts, tabActiveStyle.Render(" "+name+" "))
		} else {
			parts = append(parts, tabInactiveStyle.Render(" "+name+" "))
		}
	}
	return strings.Join(parts, "│")
}

func (m Model) renderBatches() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("BATCHES"))
	b.WriteString("\n")

	if len(m.snap.Batches) == 0 {
		b.WriteString(pendingStyle.Render("  No plan loaded"))
		return b.String()
	}

	for _, bt := range m.snap.Batches {
		marker := " "
		if bt.ID == m.snap.Current {
			marker = "▶"
		}

		line := fmt.Sprintf("%s %s %-10s %-24s %s",
			marker, statusIcon(bt.Status), bt.Status,
			truncate(bt.Name, 24), batchDetail(bt))

		style := batchStyle(bt.Status)
		if m.snap.IsActive(bt.ID) {
			style = style.Bold(true)
		}
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}

	return strings.TrimSuffix(b.String(), "\n")
}

func batchDetail(bt monitor.BatchSnapshot) string {
	switch bt.Status {
	case domain.BatchFailed:
		if bt.Error != "" {
			return truncate(bt.Error, 40)
		}
		return "failed"
	case domain.BatchCompleted:
		if !bt.CompletedAt.IsZero() {
			return "done " + humanize.Time(bt.CompletedAt)
		}
		return "done"
	default:
		if len(bt.Tasks) > 0 {
			return fmt.Sprintf("%d tasks", len(bt.Tasks))
		}
		return ""
	}
}

// renderLogPane shows the tail of the most relevant log: the current
// batch while one is active, the orchestrator log otherwise.
func (m Model) renderLogPane() string {
	var b strings.Builder

	entries := m.snap.Orchestrator
	title := "ORCHESTRATOR"
	if m.snap.Current != "" {
		if bt := m.snap.Batch(m.snap.Current); bt != nil {
			entries = bt.Logs
			title = "LOG │ " + strings.ToUpper(truncate(bt.Name, 30))
		}
	}

	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")

	if len(entries) == 0 {
		b.WriteString(pendingStyle.Render("  No output yet"))
		return b.String()
	}

	start := 0
	if len(entries) > m.logLines {
		start = len(entries) - m.logLines
	}
	for _, e := range entries[start:] {
		b.WriteString(renderLogEntry(e, m.width-6))
		b.WriteString("\n")
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// renderAllLogs merges the orchestrator log with every batch's log
// into one chronological stream.
func (m Model) renderAllLogs() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("ALL LOGS"))
	b.WriteString("\n")

	type tagged struct {
		entry domain.LogEntry
		batch string
	}

	var all []tagged
	for _, e := range m.snap.Orchestrator {
		all = append(all, tagged{entry: e})
	}
	for _, bt := range m.snap.Batches {
		for _, e := range bt.Logs {
			all = append(all, tagged{entry: e, batch: bt.Name})
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].entry.Timestamp.Before(all[j].entry.Timestamp)
	})

	if len(all) == 0 {
		b.WriteString(pendingStyle.Render("  No output yet"))
		return b.String()
	}

	visible := m.height - 8
	if visible < 5 {
		visible = 5
	}

	maxScroll := len(all) - visible
	if maxScroll < 0 {
		maxScroll = 0
	}
	scroll := m.logScroll
	if scroll > maxScroll {
		scroll = maxScroll
	}

	end := len(all) - scroll
	start := end - visible
	if start < 0 {
		start = 0
	}

	for _, t := range all[start:end] {
		prefix := ""
		if t.batch != "" {
			prefix = "[" + truncate(t.batch, 12) + "] "
		}
		e := t.entry
		e.Message = prefix + e.Message
		b.WriteString(renderLogEntry(e, m.width-6))
		b.WriteString("\n")
	}

	if scroll > 0 {
		b.WriteString(dimmedStyle.Render(fmt.Sprintf("  ↓ %d newer lines", scroll)))
		b.WriteString("\n")
	}

	return strings.TrimSuffix(b.String(), "\n")
}

func (m Model) renderPlan() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("PLAN"))
	b.WriteString("\n")

	if len(m.snap.Batches) == 0 {
		b.WriteString(pendingStyle.Render("  No plan loaded"))
		return b.String()
	}

	sel := m.selectedBatch
	if sel >= len(m.snap.Batches) {
		sel = len(m.snap.Batches) - 1
	}

	for i, bt := range m.snap.Batches {
		marker := "  "
		if i == sel {
			marker = "> "
		}
		line := fmt.Sprintf("%s%s %-24s %s", marker, statusIcon(bt.Status), truncate(bt.Name, 24), bt.ID)
		if i == sel {
			b.WriteString(batchHeaderStyle.Render(line))
		} else {
			b.WriteString(batchStyle(bt.Status).Render(line))
		}
		b.WriteString("\n")
	}

	bt := m.snap.Batches[sel]
	b.WriteString("\n")
	b.WriteString(batchHeaderStyle.Render("  " + bt.Name))
	b.WriteString("\n")
	if bt.Model != "" {
		b.WriteString(fmt.Sprintf("  Model:      %s\n", bt.Model))
	}
	if len(bt.DependsOn) > 0 {
		b.WriteString(fmt.Sprintf("  Depends on: %s\n", strings.Join(bt.DependsOn, ", ")))
	}
	if bt.EstimatedCost > 0 {
		b.WriteString(fmt.Sprintf("  Estimate:   $%s, %d min\n",
			humanize.FormatFloat("#,###.##", bt.EstimatedCost), bt.EstimatedMins))
	}
	for _, task := range bt.Tasks {
		b.WriteString(dimmedStyle.Render("    • " + truncate(task, m.width-10)))
		b.WriteString("\n")
	}

	return strings.TrimSuffix(b.String(), "\n")
}

func (m Model) renderSummary() string {
	sum := m.snap.Summary

	var b strings.Builder
	switch m.snap.Run.Status {
	case domain.RunCompleted:
		b.WriteString(completedStyle.Render("✓ RUN COMPLETED"))
	case domain.RunFailed:
		b.WriteString(errorStyle.Render("✗ RUN FAILED"))
	case domain.RunAborted:
		b.WriteString(warningStyle.Render("■ RUN ABORTED"))
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  Completed: %d   Failed: %d   Pending: %d   Elapsed: %s",
		sum.Completed, sum.Failed, sum.Pending, formatDuration(sum.Elapsed)))
	return b.String()
}

func (m Model) statusBar() string {
	switch {
	case m.snap.Run.Status.Active():
		return " [a]bort [tab]switch [j/k]scroll [q]uit "
	case m.snap.Run.Status.Terminal():
		return " [r]eset [s]tart again [tab]switch [q]uit "
	default:
		return " [s]tart [d]ry-run [tab]switch [j/k]scroll [q]uit "
	}
}

func renderLogEntry(e domain.LogEntry, maxWidth int) string {
	line := fmt.Sprintf("  %s %s", e.Timestamp.Format("15:04:05"), truncate(e.Message, maxWidth))
	switch e.Type {
	case domain.LogError, domain.LogBatchError:
		return errorStyle.Render(line)
	case domain.LogSuccess, domain.LogBatchComplete:
		return completedStyle.Render(line)
	case domain.LogStart, domain.LogBatchStart:
		return runningStyle.Render(line)
	default:
		return line
	}
}

func statusIcon(s domain.BatchStatus) string {
	switch s {
	case domain.BatchPending:
		return "○"
	case domain.BatchWaiting:
		return "◌"
	case domain.BatchRunning:
		return "●"
	case domain.BatchCompleted:
		return "✓"
	case domain.BatchFailed:
		return "✗"
	}
	return "?"
}

func batchStyle(s domain.BatchStatus) lipgloss.Style {
	switch s {
	case domain.BatchRunning:
		return runningStyle
	case domain.BatchCompleted:
		return completedStyle
	case domain.BatchFailed:
		return errorStyle
	case domain.BatchWaiting:
		return warningStyle
	}
	return pendingStyle
}

// formatClock renders elapsed seconds as mm:ss, or h:mm:ss past an
// hour.
func formatClock(secs int) string {
	if secs >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
	}
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d >= time.Hour {
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
	if d >= time.Minute {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%ds", int(d.Seconds()))
}

func truncate(s string, max int) string {
	if max <= 3 {
		max = 3
	}
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
