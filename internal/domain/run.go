package domain

import "time"

// Run represents a single execution attempt of a pipeline
type Run struct {
	ID          string
	Spec        string
	Status      RunStatus
	DryRun      bool
	StartedAt   time.Time
	ElapsedSecs int
}

// Batch is an independently schedulable group of tasks. Identity and
// plan metadata are fixed for the duration of a run; only status and
// the log buffer mutate.
type Batch struct {
	ID            string
	Name          string
	Tasks         []string
	DependsOn     []string
	Model         string
	EstimatedCost float64
	EstimatedMins int
}

// LogEntry is one line of run output. Append-only.
type LogEntry struct {
	Timestamp time.Time
	Message   string
	Type      LogType
	BatchID   string
}

// Summary aggregates final batch counts for a finished run
type Summary struct {
	Completed int
	Failed    int
	Pending   int
	Elapsed   time.Duration
}
