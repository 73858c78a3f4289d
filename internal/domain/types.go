package domain

// RunStatus represents the lifecycle state of a run
type RunStatus string

const (
	RunIdle         RunStatus = "idle"
	RunStarting     RunStatus = "starting"
	RunRunning      RunStatus = "running"
	RunReconnecting RunStatus = "reconnecting"
	RunCompleted    RunStatus = "completed"
	RunFailed       RunStatus = "failed"
	RunAborted      RunStatus = "aborted"
)

// Terminal returns true if the run has reached a final state
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunAborted
}

// Active returns true while the run is in flight
func (s RunStatus) Active() bool {
	return s == RunStarting || s == RunRunning || s == RunReconnecting
}

// BatchStatus represents the lifecycle state of a batch
type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchWaiting   BatchStatus = "waiting"
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
)

// statusRank orders batch states along the lifecycle. A batch never
// moves to a lower rank within one run attempt.
var statusRank = map[BatchStatus]int{
	BatchPending:   0,
	BatchWaiting:   1,
	BatchRunning:   2,
	BatchCompleted: 3,
	BatchFailed:    3,
}

// Rank returns the lifecycle ordering of a batch status
func (s BatchStatus) Rank() int {
	return statusRank[s]
}

// Terminal returns true if the batch has finished
func (s BatchStatus) Terminal() bool {
	return s == BatchCompleted || s == BatchFailed
}

// LogType classifies a log entry
type LogType string

const (
	LogInfo          LogType = "info"
	LogSuccess       LogType = "success"
	LogError         LogType = "error"
	LogStart         LogType = "start"
	LogBatchStart    LogType = "batch_start"
	LogBatchComplete LogType = "batch_complete"
	LogBatchError    LogType = "batch_error"
)
