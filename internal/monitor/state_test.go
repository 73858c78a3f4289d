package monitor

import (
	"testing"
	"time"

	"github.com/stackmesh/runboard/internal/domain"
	"github.com/stackmesh/runboard/internal/runnerwire"
)

func testState() *MonitorState {
	s := NewState()
	s.SetPlan("checkout-refactor", []domain.Batch{
		{ID: "b1", Name: "Stage 1"},
		{ID: "b2", Name: "Stage b2 — refactor"},
		{ID: "b3", Name: "Stage 3"},
	})
	return s
}

var t0 = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func TestState_BeginRunResetsBatches(t *testing.T) {
	s := testState()
	s.BeginRun("run-1", false, t0)
	s.Apply(Event{Kind: EventBatchStart, BatchName: "Stage 1", Text: "Spawning batch: Stage 1"}, t0)

	if s.Batches[0].Status != domain.BatchRunning {
		t.Fatalf("b1 status = %s, want running", s.Batches[0].Status)
	}
	if len(s.Batches[0].Logs) == 0 {
		t.Fatal("b1 should have a log entry")
	}

	s.BeginRun("run-2", true, t0.Add(time.Minute))

	if s.Run.ID != "run-2" || !s.Run.DryRun {
		t.Errorf("Run = %+v, want run-2 dry-run", s.Run)
	}
	if s.Run.Status != domain.RunStarting {
		t.Errorf("status = %s, want starting", s.Run.Status)
	}
	if s.Batches[0].Status != domain.BatchPending || len(s.Batches[0].Logs) != 0 {
		t.Errorf("b1 not reset: status=%s logs=%d", s.Batches[0].Status, len(s.Batches[0].Logs))
	}
	if s.Run.ElapsedSecs != 0 {
		t.Errorf("elapsed = %d, want 0", s.Run.ElapsedSecs)
	}
}

func TestState_MonotonicBatchStatus(t *testing.T) {
	s := testState()
	s.BeginRun("run-1", false, t0)

	s.Apply(Event{Kind: EventBatchStatus, BatchID: "b1", Status: domain.BatchCompleted}, t0)
	if s.Batches[0].Status != domain.BatchCompleted {
		t.Fatalf("status = %s, want completed", s.Batches[0].Status)
	}

	// Later lower-ranked messages must not move the batch back.
	s.Apply(Event{Kind: EventBatchStatus, BatchID: "b1", Status: domain.BatchWaiting}, t0)
	s.Apply(Event{Kind: EventBatchStatus, BatchID: "b1", Status: domain.BatchRunning}, t0)
	s.Apply(Event{Kind: EventBatchStart, BatchName: "Stage 1", Text: "Spawning batch: Stage 1"}, t0)

	if s.Batches[0].Status != domain.BatchCompleted {
		t.Errorf("status = %s after stale messages, want completed", s.Batches[0].Status)
	}
	if s.Current == "b1" {
		t.Error("completed batch must not become the current active batch")
	}

	// Terminal states never flip either.
	s.Apply(Event{Kind: EventBatchStatus, BatchID: "b1", Status: domain.BatchFailed}, t0)
	if s.Batches[0].Status != domain.BatchCompleted {
		t.Errorf("status = %s, completed must not become failed", s.Batches[0].Status)
	}
}

func TestState_FuzzyBatchMatching(t *testing.T) {
	s := testState()
	s.BeginRun("run-1", false, t0)

	// "b2" matches the batch with id b2 exactly, even though the name
	// of that batch also contains the substring.
	s.Apply(Event{Kind: EventBatchStatus, BatchID: "b2", Status: domain.BatchRunning}, t0)
	if s.Batches[1].Status != domain.BatchRunning {
		t.Errorf("b2 status = %s, want running", s.Batches[1].Status)
	}
	if s.Batches[0].Status != domain.BatchPending || s.Batches[2].Status != domain.BatchPending {
		t.Error("fuzzy match touched the wrong batch")
	}

	// Case-insensitive substring match against display names.
	s2 := NewState()
	s2.SetPlan("spec", []domain.Batch{
		{ID: "alpha", Name: "Stage One"},
		{ID: "beta", Name: "Stage B2 — refactor"},
	})
	s2.BeginRun("run-1", false, t0)
	s2.Apply(Event{Kind: EventBatchStatus, BatchID: "b2", Status: domain.BatchRunning}, t0)
	if s2.Batches[1].Status != domain.BatchRunning {
		t.Errorf("name-substring match failed: %s", s2.Batches[1].Status)
	}
	if s2.Batches[0].Status != domain.BatchPending {
		t.Error("substring match touched the wrong batch")
	}

	// Unknown references land in the orchestrator log, not an error.
	before := len(s.Orchestrator)
	s.Apply(Event{Kind: EventBatchStatus, BatchID: "nope", Status: domain.BatchRunning}, t0)
	if len(s.Orchestrator) != before+1 {
		t.Error("unknown batch reference should append to orchestrator log")
	}
}

func TestState_LogAttribution(t *testing.T) {
	s := testState()
	s.BeginRun("run-1", false, t0)

	// No current batch yet: line goes to the orchestrator log.
	s.Apply(Event{Kind: EventUnattributed, Text: "warming up"}, t0)
	if got := s.Orchestrator[len(s.Orchestrator)-1].Message; got != "warming up" {
		t.Errorf("orchestrator tail = %q", got)
	}

	// M1, M2, M3 within one window: attribution and order hold.
	s.Apply(Event{Kind: EventBatchStart, BatchName: "Stage 1", Text: "Spawning batch: Stage 1"}, t0)
	s.Apply(Event{Kind: EventUnattributed, Text: "working..."}, t0)
	s.Apply(Event{Kind: EventBatchComplete, BatchName: "Stage 1", Text: "Mission completed: Stage 1"}, t0)

	b1 := s.Batches[0]
	if b1.Status != domain.BatchCompleted {
		t.Fatalf("b1 status = %s, want completed", b1.Status)
	}
	if len(b1.Logs) != 3 {
		t.Fatalf("b1 log count = %d, want 3", len(b1.Logs))
	}
	wantTypes := []domain.LogType{domain.LogBatchStart, domain.LogInfo, domain.LogBatchComplete}
	for i, want := range wantTypes {
		if b1.Logs[i].Type != want {
			t.Errorf("log[%d].Type = %s, want %s", i, b1.Logs[i].Type, want)
		}
	}
	if b1.Logs[1].Message != "working..." {
		t.Errorf("log[1] = %q, want the unattributed line between start and complete", b1.Logs[1].Message)
	}

	// Completion cleared the pointer: the next stray line is
	// orchestrator-level again.
	if s.Current != "" {
		t.Fatalf("Current = %q, want empty after completion", s.Current)
	}
	s.Apply(Event{Kind: EventUnattributed, Text: "stray"}, t0)
	if got := s.Orchestrator[len(s.Orchestrator)-1].Message; got != "stray" {
		t.Errorf("orchestrator tail = %q, want stray", got)
	}
}

func TestState_ExplicitLogAttribution(t *testing.T) {
	s := testState()
	s.BeginRun("run-1", false, t0)

	// b1 is the current batch, but the log line names b2 explicitly.
	s.Apply(Event{Kind: EventBatchStart, BatchName: "Stage 1", Text: "Spawning batch: Stage 1"}, t0)
	ev := Interpret(runnerwire.Message{Type: runnerwire.TypeLog, BatchID: "b2", Message: "Working on refactor"})
	s.Apply(ev, t0)

	b2 := s.Batches[1]
	if len(b2.Logs) != 1 || b2.Logs[0].Message != "Working on refactor" {
		t.Fatalf("b2 logs = %v, want the explicitly addressed line", b2.Logs)
	}
	b1 := s.Batches[0]
	for _, e := range b1.Logs {
		if e.Message == "Working on refactor" {
			t.Error("line with explicit id must not land on the current batch")
		}
	}

	// Unknown explicit id falls back to the current-batch heuristic.
	ev = Interpret(runnerwire.Message{Type: runnerwire.TypeLog, BatchID: "nope", Message: "still here"})
	s.Apply(ev, t0)
	if got := b1.Logs[len(b1.Logs)-1].Message; got != "still here" {
		t.Errorf("b1 tail = %q, want heuristic fallback for unknown id", got)
	}
}

func TestState_CompleteByBranchPattern(t *testing.T) {
	s := testState()
	s.BeginRun("run-1", false, t0)

	s.Apply(ClassifyText("Batch b3 completed on branch feature/b3"), t0)
	if s.Batches[2].Status != domain.BatchCompleted {
		t.Errorf("b3 status = %s, want completed", s.Batches[2].Status)
	}
}

func TestState_RetentionWindow(t *testing.T) {
	s := testState()
	s.BeginRun("run-1", false, t0)
	s.Apply(Event{Kind: EventBatchStatus, BatchID: "b2", Status: domain.BatchRunning}, t0)
	s.Apply(Event{Kind: EventBatchStatus, BatchID: "b1", Status: domain.BatchCompleted}, t0)

	retention := 5 * time.Second

	active := s.ActiveBatches(t0.Add(4900*time.Millisecond), retention)
	if !contains(active, "b1") || !contains(active, "b2") {
		t.Errorf("active at T+4.9s = %v, want b1 and b2", active)
	}

	active = s.ActiveBatches(t0.Add(5100*time.Millisecond), retention)
	if contains(active, "b1") {
		t.Errorf("active at T+5.1s = %v, b1 should have dropped out", active)
	}
	if !contains(active, "b2") {
		t.Errorf("active at T+5.1s = %v, running b2 must remain", active)
	}
}

func TestState_RunLifecycle(t *testing.T) {
	s := testState()

	if s.Run.Status != domain.RunIdle {
		t.Fatalf("initial status = %s, want idle", s.Run.Status)
	}

	s.BeginRun("run-1", false, t0)
	s.MarkConnected(false, t0)
	if s.Run.Status != domain.RunRunning {
		t.Fatalf("status after open = %s, want running", s.Run.Status)
	}

	s.MarkReconnecting(1, 5*time.Second, t0)
	if s.Run.Status != domain.RunReconnecting || s.RetryCount != 1 || s.Countdown != 5 {
		t.Fatalf("reconnecting state = %s retry=%d countdown=%d", s.Run.Status, s.RetryCount, s.Countdown)
	}

	// Reopen recovers running and resets the retry bookkeeping.
	s.MarkConnected(true, t0)
	if s.Run.Status != domain.RunRunning || s.RetryCount != 0 || s.Countdown != 0 {
		t.Fatalf("recovered state = %s retry=%d countdown=%d", s.Run.Status, s.RetryCount, s.Countdown)
	}

	s.Apply(Event{Kind: EventBatchStatus, BatchID: "b1", Status: domain.BatchCompleted}, t0)
	s.Apply(Event{Kind: EventBatchStatus, BatchID: "b2", Status: domain.BatchFailed, Err: "merge conflict"}, t0)
	res := s.Apply(Event{Kind: EventRunStatus, RunStatus: domain.RunCompleted}, t0.Add(90*time.Second))
	if !res.RunTerminal {
		t.Fatal("terminal status event should report RunTerminal")
	}

	sum := s.Summary()
	if sum.Completed != 1 || sum.Failed != 1 || sum.Pending != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.Elapsed != 90*time.Second {
		t.Errorf("elapsed = %s, want 90s", sum.Elapsed)
	}
	if s.Batches[1].Error != "merge conflict" {
		t.Errorf("b2 error = %q", s.Batches[1].Error)
	}

	// Terminal runs ignore further status events.
	s.Apply(Event{Kind: EventRunStatus, RunStatus: domain.RunFailed}, t0)
	if s.Run.Status != domain.RunCompleted {
		t.Errorf("status = %s, terminal state must not change", s.Run.Status)
	}

	s.Reset()
	if s.Run.Status != domain.RunIdle || s.Run.Spec != "checkout-refactor" {
		t.Errorf("after reset: %+v", s.Run)
	}
	if s.Batches[0].Status != domain.BatchPending {
		t.Errorf("after reset b1 = %s, want pending", s.Batches[0].Status)
	}
}

func TestState_RetriesExhausted(t *testing.T) {
	s := testState()
	s.BeginRun("run-1", false, t0)
	s.MarkConnected(false, t0)

	s.MarkRetriesExhausted(3, t0.Add(35*time.Second))
	if s.Run.Status != domain.RunFailed {
		t.Errorf("status = %s, want failed", s.Run.Status)
	}
	tail := s.Orchestrator[len(s.Orchestrator)-1]
	if tail.Type != domain.LogError {
		t.Errorf("terminal log type = %s, want error", tail.Type)
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
