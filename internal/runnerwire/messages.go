// Package runnerwire defines the stream message types exchanged with
// the backend job runner. Messages flow over a WebSocket connection;
// the runner is a heterogeneous producer that mixes structured events
// with free-form log lines.
package runnerwire

import (
	"encoding/json"
	"strings"
)

// Message is one decoded inbound stream message. Only Type is
// guaranteed; every other field is producer-dependent.
type Message struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message,omitempty"`
	Status  string `json:"status,omitempty"`
	BatchID string `json:"batch_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Message type constants
const (
	TypeStatus      = "status"
	TypeBatchStatus = "batch_status"
	TypeStart       = "start"
	TypeSuccess     = "success"
	TypeLog         = "log"
)

// Run status values carried by TypeStatus messages
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusAborted   = "aborted"
)

// Decode parses a raw frame into a Message. Unparseable payloads are
// never an error: the frame text is kept verbatim as a log message so
// the monitor can still display it.
func Decode(data []byte) Message {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{Type: TypeLog, Message: strings.TrimRight(string(data), "\n")}
	}
	return m
}

// AbortRequest is the outbound control message requesting cancellation
type AbortRequest struct {
	Action string `json:"action"`
}

// NewAbortRequest builds the abort control message
func NewAbortRequest() AbortRequest {
	return AbortRequest{Action: "abort"}
}
