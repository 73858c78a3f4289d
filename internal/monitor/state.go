package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/stackmesh/runboard/internal/domain"
)

// BatchState is the mutable per-batch view the monitor maintains.
// Batch identity and plan metadata never change during a run.
type BatchState struct {
	Batch       domain.Batch
	Status      domain.BatchStatus
	Logs        []domain.LogEntry
	CompletedAt time.Time
	Error       string
}

// MonitorState holds everything the monitor derives from the stream.
// All mutation goes through the reducer methods below; callers hold
// the monitor lock, so the methods themselves take no locks.
type MonitorState struct {
	Run          domain.Run
	Batches      []*BatchState
	Orchestrator []domain.LogEntry

	// Current is the id of the "current active batch" used to
	// attribute unmatched log lines. Best-effort heuristic only.
	Current string

	RetryCount int
	Countdown  int // seconds until the next reconnect attempt
}

// applyResult reports side effects the monitor must act on after a
// reducer pass: terminal runs tear down resources, completed batches
// arm retention timers.
type applyResult struct {
	RunTerminal      bool
	CompletedBatches []string
}

// NewState returns an idle state with no plan loaded
func NewState() *MonitorState {
	return &MonitorState{Run: domain.Run{Status: domain.RunIdle}}
}

// SetPlan installs the batches of a fetched execution plan
func (s *MonitorState) SetPlan(spec string, batches []domain.Batch) {
	s.Run = domain.Run{Spec: spec, Status: domain.RunIdle}
	s.Batches = make([]*BatchState, 0, len(batches))
	for _, b := range batches {
		s.Batches = append(s.Batches, &BatchState{Batch: b, Status: domain.BatchPending})
	}
	s.Orchestrator = nil
	s.Current = ""
	s.RetryCount = 0
	s.Countdown = 0
}

// BeginRun resets per-batch state and moves the run to starting
func (s *MonitorState) BeginRun(runID string, dryRun bool, now time.Time) {
	for _, b := range s.Batches {
		b.Status = domain.BatchPending
		b.Logs = nil
		b.CompletedAt = time.Time{}
		b.Error = ""
	}
	s.Orchestrator = nil
	s.Current = ""
	s.RetryCount = 0
	s.Countdown = 0
	s.Run = domain.Run{
		ID:        runID,
		Spec:      s.Run.Spec,
		Status:    domain.RunStarting,
		DryRun:    dryRun,
		StartedAt: now,
	}
	s.appendOrch(now, fmt.Sprintf("Starting execution of %s (run %s)", s.Run.Spec, runID), domain.LogStart)
}

// Reset returns to idle, keeping the loaded plan
func (s *MonitorState) Reset() {
	for _, b := range s.Batches {
		b.Status = domain.BatchPending
		b.Logs = nil
		b.CompletedAt = time.Time{}
		b.Error = ""
	}
	s.Run = domain.Run{Spec: s.Run.Spec, Status: domain.RunIdle}
	s.Orchestrator = nil
	s.Current = ""
	s.RetryCount = 0
	s.Countdown = 0
}

// Apply folds one interpreted event into the state
func (s *MonitorState) Apply(ev Event, now time.Time) applyResult {
	var res applyResult

	switch ev.Kind {
	case EventRunStatus:
		res = s.applyRunStatus(ev, now)

	case EventBatchStatus:
		b := s.FindBatch(ev.BatchID)
		if b == nil {
			s.appendOrch(now, ev.textOr("batch_status for unknown batch "+ev.BatchID), domain.LogInfo)
			break
		}
		res.CompletedBatches = s.setBatchStatus(b, ev.Status, ev.Err, now, res.CompletedBatches)

	case EventBatchStart:
		b := s.findByName(ev.BatchName)
		if b == nil {
			s.appendOrch(now, ev.Text, domain.LogInfo)
			break
		}
		s.appendBatchLog(b, now, ev.Text, domain.LogBatchStart)
		res.CompletedBatches = s.setBatchStatus(b, domain.BatchRunning, "", now, res.CompletedBatches)
		if !b.Status.Terminal() {
			s.Current = b.Batch.ID
		}

	case EventBatchComplete:
		var b *BatchState
		if ev.BatchID != "" {
			b = s.FindBatch(ev.BatchID)
		} else {
			b = s.findByName(ev.BatchName)
		}
		if b == nil {
			s.appendOrch(now, ev.Text, domain.LogInfo)
			break
		}
		s.appendBatchLog(b, now, ev.Text, domain.LogBatchComplete)
		res.CompletedBatches = s.setBatchStatus(b, domain.BatchCompleted, "", now, res.CompletedBatches)

	case EventUnattributed:
		if ev.Text == "" {
			break
		}
		if ev.BatchID != "" {
			if b := s.FindBatch(ev.BatchID); b != nil {
				s.appendBatchLog(b, now, ev.Text, domain.LogInfo)
				break
			}
		}
		if cur := s.currentBatch(); cur != nil {
			s.appendBatchLog(cur, now, ev.Text, domain.LogInfo)
		} else {
			s.appendOrch(now, ev.Text, domain.LogInfo)
		}
	}

	return res
}

func (s *MonitorState) applyRunStatus(ev Event, now time.Time) applyResult {
	var res applyResult

	switch ev.RunStatus {
	case domain.RunRunning:
		if s.Run.Status == domain.RunStarting {
			s.Run.Status = domain.RunRunning
			s.appendOrch(now, ev.textOr("Execution running"), domain.LogStart)
		}

	case domain.RunCompleted, domain.RunFailed, domain.RunAborted:
		if !s.Run.Status.Active() {
			break
		}
		s.Run.Status = ev.RunStatus
		s.Run.ElapsedSecs = s.elapsed(now)
		s.Current = ""
		res.RunTerminal = true

		switch ev.RunStatus {
		case domain.RunCompleted:
			s.appendOrch(now, ev.textOr("Execution completed"), domain.LogSuccess)
		case domain.RunAborted:
			s.appendOrch(now, ev.textOr("Execution aborted"), domain.LogError)
		default:
			msg := ev.textOr("Execution failed")
			if ev.Err != "" {
				msg = fmt.Sprintf("%s: %s", msg, ev.Err)
			}
			s.appendOrch(now, msg, domain.LogError)
		}
	}

	return res
}

// setBatchStatus assigns a batch status, enforcing monotonicity:
// a batch never moves backwards, and a terminal batch never changes
// again short of a full reset.
func (s *MonitorState) setBatchStatus(b *BatchState, status domain.BatchStatus, errText string, now time.Time, completed []string) []string {
	if b.Status.Terminal() || status.Rank() < b.Status.Rank() {
		return completed
	}
	if b.Status == status {
		return completed
	}

	b.Status = status
	if status == domain.BatchFailed {
		b.Error = errText
		s.appendBatchLog(b, now, fmt.Sprintf("Batch %s failed%s", b.Batch.Name, suffix(errText)), domain.LogBatchError)
	}
	if status.Terminal() {
		b.CompletedAt = now
		if s.Current == b.Batch.ID {
			s.Current = ""
		}
		completed = append(completed, b.Batch.ID)
	}
	return completed
}

// FindBatch resolves a batch reference: exact id match first, then a
// case-insensitive substring match against display names for legacy
// producers. When two display names share the substring, the first
// batch in plan order wins.
func (s *MonitorState) FindBatch(ref string) *BatchState {
	for _, b := range s.Batches {
		if b.Batch.ID == ref {
			return b
		}
	}
	lower := strings.ToLower(ref)
	for _, b := range s.Batches {
		if strings.Contains(strings.ToLower(b.Batch.Name), lower) {
			return b
		}
	}
	return nil
}

// findByName matches a display name exactly, case-insensitive, trimmed
func (s *MonitorState) findByName(name string) *BatchState {
	want := strings.ToLower(strings.TrimSpace(name))
	for _, b := range s.Batches {
		if strings.ToLower(strings.TrimSpace(b.Batch.Name)) == want {
			return b
		}
	}
	return nil
}

func (s *MonitorState) currentBatch() *BatchState {
	if s.Current == "" {
		return nil
	}
	for _, b := range s.Batches {
		if b.Batch.ID == s.Current {
			return b
		}
	}
	return nil
}

// ElapsedTick refreshes the derived elapsed counter
func (s *MonitorState) ElapsedTick(now time.Time) {
	if s.Run.Status.Active() {
		s.Run.ElapsedSecs = s.elapsed(now)
	}
}

// CountdownTick decrements the reconnect countdown toward zero
func (s *MonitorState) CountdownTick() {
	if s.Countdown > 0 {
		s.Countdown--
	}
}

// MarkConnected records a successful transport open
func (s *MonitorState) MarkConnected(reconnected bool, now time.Time) {
	s.RetryCount = 0
	s.Countdown = 0
	switch s.Run.Status {
	case domain.RunStarting:
		s.Run.Status = domain.RunRunning
		s.appendOrch(now, "Connected to runner", domain.LogInfo)
	case domain.RunReconnecting:
		s.Run.Status = domain.RunRunning
		if reconnected {
			s.appendOrch(now, "Reconnected to runner", domain.LogSuccess)
		}
	}
}

// MarkReconnecting records a scheduled retry
func (s *MonitorState) MarkReconnecting(retry int, delay time.Duration, now time.Time) {
	s.Run.Status = domain.RunReconnecting
	s.RetryCount = retry
	s.Countdown = int(delay.Seconds())
	s.appendOrch(now, fmt.Sprintf("Connection lost, retrying in %ds (attempt %d)", s.Countdown, retry), domain.LogError)
}

// MarkAborted records a user-initiated cancellation
func (s *MonitorState) MarkAborted(now time.Time) {
	if !s.Run.Status.Active() {
		return
	}
	s.Run.Status = domain.RunAborted
	s.Run.ElapsedSecs = s.elapsed(now)
	s.Current = ""
	s.Countdown = 0
	s.appendOrch(now, "Abort requested, stopping execution", domain.LogError)
}

// MarkRetriesExhausted moves the run to failed after the last retry
func (s *MonitorState) MarkRetriesExhausted(attempts int, now time.Time) {
	s.Run.Status = domain.RunFailed
	s.Run.ElapsedSecs = s.elapsed(now)
	s.Countdown = 0
	s.Current = ""
	s.appendOrch(now, fmt.Sprintf("Connection lost, giving up after %d attempts", attempts), domain.LogError)
}

// ActiveBatches returns the ids of batches in the active display set:
// waiting or running batches, plus finished batches still inside the
// retention window.
func (s *MonitorState) ActiveBatches(now time.Time, retention time.Duration) []string {
	var ids []string
	for _, b := range s.Batches {
		switch {
		case b.Status == domain.BatchWaiting || b.Status == domain.BatchRunning:
			ids = append(ids, b.Batch.ID)
		case b.Status.Terminal() && now.Sub(b.CompletedAt) < retention:
			ids = append(ids, b.Batch.ID)
		}
	}
	return ids
}

// Summary derives the completion summary from final batch counts
func (s *MonitorState) Summary() domain.Summary {
	sum := domain.Summary{Elapsed: time.Duration(s.Run.ElapsedSecs) * time.Second}
	for _, b := range s.Batches {
		switch b.Status {
		case domain.BatchCompleted:
			sum.Completed++
		case domain.BatchFailed:
			sum.Failed++
		default:
			sum.Pending++
		}
	}
	return sum
}

func (s *MonitorState) elapsed(now time.Time) int {
	if s.Run.StartedAt.IsZero() {
		return 0
	}
	return int(now.Sub(s.Run.StartedAt).Seconds())
}

func (s *MonitorState) appendOrch(now time.Time, msg string, typ domain.LogType) {
	s.Orchestrator = append(s.Orchestrator, domain.LogEntry{Timestamp: now, Message: msg, Type: typ})
}

func (s *MonitorState) appendBatchLog(b *BatchState, now time.Time, msg string, typ domain.LogType) {
	b.Logs = append(b.Logs, domain.LogEntry{Timestamp: now, Message: msg, Type: typ, BatchID: b.Batch.ID})
}

func (ev Event) textOr(fallback string) string {
	if ev.Text != "" {
		return ev.Text
	}
	return fallback
}

func suffix(errText string) string {
	if errText == "" {
		return ""
	}
	return ": " + errText
}
