package ports

import (
	"time"

	"goprep/domain/core"
	"goprep/domain/preprocess"
)

// Submission event types
const (
	EventSubmissionStarted   = "submission_started"
	EventSubmissionProgress  = "submission_progress"
	EventSubmissionSucceeded = "submission_succeeded"
	EventSubmissionFailed    = "submission_failed"
)

// SubmissionEvent is a side-channel update about a running submission
type SubmissionEvent struct {
	SessionID    string            `json:"session_id"`
	SubmissionID core.SubmissionID `json:"submission_id"`
	Type         string            `json:"event_type"`
	Progress     int               `json:"progress"`
	Result       preprocess.Result `json:"result,omitempty"`
	Error        string            `json:"error,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// EventPublisher delivers submission events to interested clients.
// Publish must not block.
type EventPublisher interface {
	Publish(event SubmissionEvent)
}
