package main

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuditEventType names a recorded pipeline event
type AuditEventType string

const (
	EventPipelineStarted      AuditEventType = "pipeline_started"
	EventTriageCompleted      AuditEventType = "triage_completed"
	EventPacketsGenerated     AuditEventType = "packets_generated"
	EventReviewReceived       AuditEventType = "review_received"
	EventReviewMalformed      AuditEventType = "review_malformed"
	EventReviewNoResponse     AuditEventType = "review_no_response"
	EventAggregationCompleted AuditEventType = "aggregation_completed"
	EventPanelConvened        AuditEventType = "panel_convened"
	EventPanelFallback        AuditEventType = "panel_fallback"
	EventRatificationRecorded AuditEventType = "ratification_recorded"
	EventPipelineCompleted    AuditEventType = "pipeline_completed"
)

// Valid reports whether the event type is one of the known values
func (t AuditEventType) Valid() bool {
	switch t {
	case EventPipelineStarted, EventTriageCompleted, EventPacketsGenerated,
		EventReviewReceived, EventReviewMalformed, EventReviewNoResponse,
		EventAggregationCompleted, EventPanelConvened, EventPanelFallback,
		EventRatificationRecorded, EventPipelineCompleted:
		return true
	}
	return false
}

// AuditEvent represents one entry of a session's audit trail
type AuditEvent struct {
	ID           string         `json:"id"`
	EventType    AuditEventType `json:"event_type"`
	OccurredAt   time.Time      `json:"occurred_at"`
	SessionID    string         `json:"session_id"`
	AttributedTo []string       `json:"attributed_to"`
	Details      map[string]any `json:"details"`
}

// AuditTrail is an append-only, concurrency-safe event log owned by one run
type AuditTrail struct {
	mu        sync.Mutex
	sessionID string
	events    []AuditEvent
	now       func() time.Time
}

// NewAuditTrail creates an empty trail for a session
func NewAuditTrail(sessionID string, now func() time.Time) *AuditTrail {
	if now == nil {
		now = time.Now
	}
	return &AuditTrail{sessionID: sessionID, now: now}
}

// Record appends an event and returns it
func (a *AuditTrail) Record(eventType AuditEventType, attributedTo []string, details map[string]any) AuditEvent {
	if attributedTo == nil {
		attributedTo = []string{}
	}
	if details == nil {
		details = map[string]any{}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	event := AuditEvent{
		ID:           uuid.New().String(),
		EventType:    eventType,
		OccurredAt:   a.now().UTC(),
		SessionID:    a.sessionID,
		AttributedTo: attributedTo,
		Details:      details,
	}
	a.events = append(a.events, event)
	return event
}

// Events returns a snapshot copy of the trail
func (a *AuditTrail) Events() []AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]AuditEvent, len(a.events))
	copy(out, a.events)
	return out
}

// Count returns the number of events of the given type
func (a *AuditTrail) Count(eventType AuditEventType) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for _, e := range a.events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}
