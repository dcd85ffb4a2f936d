// Package events carries pipeline progress notifications: stage
// transitions, verification outcomes and escalation activity, observable by
// CLI reporters and tests without coupling them to the pipeline internals.
package events

import "time"

// EventType identifies the kind of event emitted by the pipeline.
type EventType string

const (
	EventPipelineStart EventType = "pipeline.start"
	EventPipelineEnd   EventType = "pipeline.end"

	EventSpecValidated EventType = "spec.validated"
	EventSpecRejected  EventType = "spec.rejected"
	EventSpecAssembled EventType = "spec.assembled"

	EventVerifyStart  EventType = "verify.start"
	EventVerifyResult EventType = "verify.result"

	EventSpecPass      EventType = "spec.pass"
	EventSpecEscalated EventType = "spec.escalated"
	EventSpecExhausted EventType = "spec.exhausted"

	EventConverterRegistered EventType = "converter.registered"
)

// Event is a single pipeline notification. Spec names the mapping document
// the event belongs to; Attempt counts verification rounds for that spec.
type Event struct {
	Type      EventType     `json:"type"`
	Spec      string        `json:"spec,omitempty"`
	Attempt   int           `json:"attempt,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Data      any           `json:"data,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// NewEvent creates an Event with the current timestamp.
func NewEvent(typ EventType, specName string, data any) Event {
	return Event{
		Type:      typ,
		Spec:      specName,
		Timestamp: time.Now(),
		Data:      data,
	}
}
