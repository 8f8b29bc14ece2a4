package storage

import "time"

// EventWriter is the interface for writing operation audit events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *OperationEvent)
	Close()
}

// OperationEvent records one dispatch or confirmation outcome.
type OperationEvent struct {
	RequestID         string
	WorkspaceID       string
	SessionID         string
	Timestamp         time.Time
	Operation         string
	Category          string
	Mode              string // "auto", "confirm_before_execution", "confirm_after_execution"
	Outcome           string // "executed", "pending", "confirmed", "declined", "failed"
	ConfirmationState string
	InputJSON         string
	Error             string
	LatencyMs         float32
	Source            string
}
