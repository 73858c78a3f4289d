package monitor

import (
	"regexp"
	"strings"

	"github.com/stackmesh/runboard/internal/domain"
	"github.com/stackmesh/runboard/internal/runnerwire"
)

// EventKind tags an interpreted stream event
type EventKind int

const (
	// EventNone means the message carried nothing actionable
	EventNone EventKind = iota
	// EventRunStatus is a run-level lifecycle transition
	EventRunStatus
	// EventBatchStatus is a direct batch status assignment by id
	EventBatchStatus
	// EventBatchStart names a batch entering running; it becomes the
	// current active batch
	EventBatchStart
	// EventBatchComplete names a batch entering completed
	EventBatchComplete
	// EventUnattributed is a free-text line with no recognized
	// pattern; it lands on the explicitly named batch when the message
	// carried one, else on the current active batch
	EventUnattributed
)

// Event is the interpreted form of one stream message
type Event struct {
	Kind      EventKind
	RunStatus domain.RunStatus
	Status    domain.BatchStatus
	BatchID   string // id reference, matched fuzzily against batches
	BatchName string // display-name reference from a text pattern
	Text      string // original message text, kept for the log buffer
	Err       string
}

// runStatuses maps wire status values to run states
var runStatuses = map[string]domain.RunStatus{
	runnerwire.StatusRunning:   domain.RunRunning,
	runnerwire.StatusCompleted: domain.RunCompleted,
	runnerwire.StatusFailed:    domain.RunFailed,
	runnerwire.StatusAborted:   domain.RunAborted,
}

// batchStatuses maps wire status values to batch states
var batchStatuses = map[string]domain.BatchStatus{
	"pending":   domain.BatchPending,
	"waiting":   domain.BatchWaiting,
	"running":   domain.BatchRunning,
	"completed": domain.BatchCompleted,
	"failed":    domain.BatchFailed,
}

// Interpret classifies a decoded message. Explicit type fields win;
// anything carrying only free text falls through to the text-pattern
// classifier.
func Interpret(msg runnerwire.Message) Event {
	switch msg.Type {
	case runnerwire.TypeStatus:
		if rs, ok := runStatuses[msg.Status]; ok {
			return Event{Kind: EventRunStatus, RunStatus: rs, Text: msg.Message, Err: msg.Error}
		}

	case runnerwire.TypeBatchStatus:
		if msg.BatchID != "" {
			st, ok := batchStatuses[msg.Status]
			if !ok {
				st = domain.BatchRunning
			}
			return Event{Kind: EventBatchStatus, Status: st, BatchID: msg.BatchID, Text: msg.Message, Err: msg.Error}
		}

	// Legacy producers emit bare start/success events instead of
	// status messages.
	case runnerwire.TypeStart:
		return Event{Kind: EventRunStatus, RunStatus: domain.RunRunning, Text: msg.Message}
	case runnerwire.TypeSuccess:
		return Event{Kind: EventRunStatus, RunStatus: domain.RunCompleted, Text: msg.Message}
	}

	if msg.Message != "" {
		ev := ClassifyText(msg.Message)
		// An explicit identifier on the message beats the
		// current-active-batch heuristic for unmatched lines.
		if ev.Kind == EventUnattributed && ev.BatchID == "" {
			ev.BatchID = msg.BatchID
		}
		return ev
	}
	return Event{Kind: EventNone}
}

// textRule pairs a pattern with the event it produces
type textRule struct {
	re    *regexp.Regexp
	event func(m []string, text string) Event
}

// textRules are evaluated in priority order. First match wins.
var textRules = []textRule{
	{
		re: regexp.MustCompile(`(?i)Spawning batch:\s*(.+)`),
		event: func(m []string, text string) Event {
			return Event{Kind: EventBatchStart, BatchName: strings.TrimSpace(m[1]), Text: text}
		},
	},
	{
		re: regexp.MustCompile(`(?i)Mission completed:\s*(.+)`),
		event: func(m []string, text string) Event {
			return Event{Kind: EventBatchComplete, BatchName: strings.TrimSpace(m[1]), Text: text}
		},
	},
	{
		re: regexp.MustCompile(`(?i)Successfully merged batch '?([^']+)'?`),
		event: func(m []string, text string) Event {
			return Event{Kind: EventBatchComplete, BatchName: strings.TrimSpace(m[1]), Text: text}
		},
	},
	{
		re: regexp.MustCompile(`(?i)Batch\s+(\S+)\s+completed on branch\s+(\S+)`),
		event: func(m []string, text string) Event {
			return Event{Kind: EventBatchComplete, BatchID: m[1], Text: text}
		},
	},
}

// ClassifyText runs the ordered pattern rules over a free-text line.
// Lines matching no rule come back as EventUnattributed and are later
// assigned to the current active batch, if any.
func ClassifyText(text string) Event {
	for _, rule := range textRules {
		if m := rule.re.FindStringSubmatch(text); m != nil {
			return rule.event(m, text)
		}
	}
	return Event{Kind: EventUnattributed, Text: text}
}
