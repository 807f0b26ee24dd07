package api

import (
	"encoding/json"
	"log"
	"time"

	"goprep/ports"
)

// SSEEventBroadcaster adapts the SSEHub to ports.EventPublisher
type SSEEventBroadcaster struct {
	sseHub *SSEHub
}

// NewSSEEventBroadcaster creates a new SSE event broadcaster
func NewSSEEventBroadcaster(sseHub *SSEHub) *SSEEventBroadcaster {
	return &SSEEventBroadcaster{sseHub: sseHub}
}

var _ ports.EventPublisher = (*SSEEventBroadcaster)(nil)

// Publish converts a submission event to a stream event and broadcasts it
func (b *SSEEventBroadcaster) Publish(event ports.SubmissionEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("[SSE] Failed to encode %s event: %v", event.Type, err)
		return
	}
	b.sseHub.Broadcast(StreamEvent{
		SessionID: event.SessionID,
		EventType: event.Type,
		Payload:   payload,
		Timestamp: event.Timestamp,
	})
}
