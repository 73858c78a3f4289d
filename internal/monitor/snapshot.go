package monitor

import (
	"time"

	"github.com/stackmesh/runboard/internal/domain"
)

// BatchSnapshot is a copy of one batch's display state
type BatchSnapshot struct {
	domain.Batch
	Status      domain.BatchStatus
	Logs        []domain.LogEntry
	Error       string
	CompletedAt time.Time
}

// Snapshot is a point-in-time copy of the derived display state.
// Safe to read from any goroutine; the monitor's own state never
// escapes.
type Snapshot struct {
	Run          domain.Run
	Batches      []BatchSnapshot
	Orchestrator []domain.LogEntry
	// Active holds the ids of batches in the active display set,
	// including just-finished batches inside the retention window.
	Active     []string
	Current    string
	RetryCount int
	Countdown  int
	MaxRetries int
	// Summary is set once the run reaches a terminal state
	Summary *domain.Summary
}

// Snapshot returns a copy of the current display state
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		Run:          m.state.Run,
		Orchestrator: append([]domain.LogEntry(nil), m.state.Orchestrator...),
		Current:      m.state.Current,
		RetryCount:   m.state.RetryCount,
		Countdown:    m.state.Countdown,
		MaxRetries:   m.cfg.MaxRetries,
		Active:       m.state.ActiveBatches(time.Now(), m.cfg.Retention),
	}

	snap.Batches = make([]BatchSnapshot, 0, len(m.state.Batches))
	for _, b := range m.state.Batches {
		snap.Batches = append(snap.Batches, BatchSnapshot{
			Batch:       b.Batch,
			Status:      b.Status,
			Logs:        append([]domain.LogEntry(nil), b.Logs...),
			Error:       b.Error,
			CompletedAt: b.CompletedAt,
		})
	}

	if m.state.Run.Status.Terminal() {
		sum := m.state.Summary()
		snap.Summary = &sum
	}
	return snap
}

// Batch returns the snapshot entry with the given id, if present
func (s *Snapshot) Batch(id string) *BatchSnapshot {
	for i := range s.Batches {
		if s.Batches[i].ID == id {
			return &s.Batches[i]
		}
	}
	return nil
}

// IsActive reports whether a batch id is in the active display set
func (s *Snapshot) IsActive(id string) bool {
	for _, a := range s.Active {
		if a == id {
			return true
		}
	}
	return false
}
