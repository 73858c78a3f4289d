package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/stackmesh/runboard/internal/monitor"
)

// Tab indexes
const (
	tabRun = iota
	tabLogs
	tabPlan
	tabCount
)

// Model is the TUI application model
type Model struct {
	mon  *monitor.Monitor
	spec string

	// Latest display state pulled from the monitor
	snap monitor.Snapshot

	// UI state
	width         int
	height        int
	activeTab     int
	selectedBatch int
	logScroll     int
	logLines      int
	statusMsg     string
	statusMsgExp  time.Time
}

// ModelConfig holds initial data for the TUI model
type ModelConfig struct {
	Monitor *monitor.Monitor
	Spec    string
	// LogLines caps the log pane on the run tab.
	LogLines int
}

// NewModel creates a new TUI model
func NewModel(cfg ModelConfig) Model {
	logLines := cfg.LogLines
	if logLines <= 0 {
		logLines = 12
	}

	m := Model{
		mon:      cfg.Monitor,
		spec:     cfg.Spec,
		logLines: logLines,
	}
	if cfg.Monitor != nil {
		m.snap = cfg.Monitor.Snapshot()
	}
	return m
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		waitForMonitor(m.mon),
	)
}

// TickMsg triggers a periodic re-render
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// MonitorUpdateMsg is sent when the monitor's state changed
type MonitorUpdateMsg struct{}

func waitForMonitor(mon *monitor.Monitor) tea.Cmd {
	if mon == nil {
		return nil
	}
	return func() tea.Msg {
		<-mon.Updates()
		return MonitorUpdateMsg{}
	}
}
