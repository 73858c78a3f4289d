package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// ControlDoneMsg is sent when a start or abort request finished
type ControlDoneMsg struct {
	Action string
	Err    error
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.mon != nil {
				m.mon.Close()
			}
			return m, tea.Quit
		case "s":
			if m.canStart() {
				return m, m.startCmd(false)
			}
		case "d":
			if m.canStart() {
				return m, m.startCmd(true)
			}
		case "a":
			if m.snap.Run.Status.Active() {
				return m, m.abortCmd()
			}
		case "r":
			if m.snap.Run.Status.Terminal() {
				m.mon.Reset()
				m.snap = m.mon.Snapshot()
				m.statusMsg = ""
				m.logScroll = 0
			}
		case "tab":
			m.activeTab = (m.activeTab + 1) % tabCount
			m.logScroll = 0
		case "j", "down":
			switch m.activeTab {
			case tabLogs:
				m.logScroll++
			case tabPlan:
				if m.selectedBatch < len(m.snap.Batches)-1 {
					m.selectedBatch++
				}
			}
		case "k", "up":
			switch m.activeTab {
			case tabLogs:
				if m.logScroll > 0 {
					m.logScroll--
				}
			case tabPlan:
				if m.selectedBatch > 0 {
					m.selectedBatch--
				}
			}
		case "g":
			if m.activeTab == tabLogs {
				m.logScroll = 0
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		if m.mon != nil {
			m.snap = m.mon.Snapshot()
		}
		return m, tickCmd()

	case MonitorUpdateMsg:
		m.snap = m.mon.Snapshot()
		return m, waitForMonitor(m.mon)

	case ControlDoneMsg:
		if msg.Err != nil {
			m.setStatus("Error: " + msg.Err.Error())
		} else if msg.Action == "abort" {
			m.setStatus("Abort requested")
		}
		if m.mon != nil {
			m.snap = m.mon.Snapshot()
		}
		return m, nil
	}

	return m, nil
}

func (m Model) canStart() bool {
	return m.mon != nil && !m.snap.Run.Status.Active()
}

func (m Model) startCmd(dryRun bool) tea.Cmd {
	mon := m.mon
	return func() tea.Msg {
		err := mon.Start(context.Background(), dryRun)
		return ControlDoneMsg{Action: "start", Err: err}
	}
}

func (m Model) abortCmd() tea.Cmd {
	mon := m.mon
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := mon.Abort(ctx)
		return ControlDoneMsg{Action: "abort", Err: err}
	}
}

func (m *Model) setStatus(msg string) {
	m.statusMsg = msg
	m.statusMsgExp = time.Now().Add(5 * time.Second)
}
