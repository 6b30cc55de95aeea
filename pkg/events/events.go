// Package events defines the event types flowing through the engine: contact
// events in (they drive trigger matching and unsubscribe exits), enrollment
// lifecycle events out (they feed downstream consumers such as analytics).
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Kafka topics.
const ContactTopic = "slimail.contact.events"       // inbound contact activity
const EnrollmentTopic = "slimail.enrollment.events" // outbound enrollment lifecycle

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Inbound contact events.
	ContactSubscribedToListEvent EventType = "contact.subscribed_to_list"
	ContactTagAddedEvent         EventType = "contact.tag_added"
	ContactTagRemovedEvent       EventType = "contact.tag_removed"
	ContactUnsubscribedEvent     EventType = "contact.unsubscribed"

	// Outbound enrollment lifecycle events.
	EnrollmentCreatedEvent   EventType = "enrollment.created"
	EnrollmentAdvancedEvent  EventType = "enrollment.advanced"
	EnrollmentCompletedEvent EventType = "enrollment.completed"
	EnrollmentExitedEvent    EventType = "enrollment.exited"
	EnrollmentFailedEvent    EventType = "enrollment.failed"
)

// TopicFor maps an event type to the topic it is published on.
func TopicFor(eventType EventType) string {
	switch eventType {
	case ContactSubscribedToListEvent, ContactTagAddedEvent,
		ContactTagRemovedEvent, ContactUnsubscribedEvent:
		return ContactTopic
	default:
		return EnrollmentTopic
	}
}

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	TenantID  string         `json:"tenant_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, tenantID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		TenantID:  tenantID,
		Metadata:  make(map[string]any),
	}
}

// Inbound contact events

type ContactSubscribedToList struct {
	BaseEvent

	ContactID string `json:"contact_id"`
	ListID    string `json:"list_id"`
}

func (c ContactSubscribedToList) GetType() EventType {
	return ContactSubscribedToListEvent
}

type ContactTagAdded struct {
	BaseEvent

	ContactID string `json:"contact_id"`
	TagID     string `json:"tag_id"`
}

func (c ContactTagAdded) GetType() EventType {
	return ContactTagAddedEvent
}

type ContactTagRemoved struct {
	BaseEvent

	ContactID string `json:"contact_id"`
	TagID     string `json:"tag_id"`
}

func (c ContactTagRemoved) GetType() EventType {
	return ContactTagRemovedEvent
}

type ContactUnsubscribed struct {
	BaseEvent

	ContactID string `json:"contact_id"`
}

func (c ContactUnsubscribed) GetType() EventType {
	return ContactUnsubscribedEvent
}

// Outbound enrollment lifecycle events

type EnrollmentCreated struct {
	BaseEvent

	EnrollmentID string `json:"enrollment_id"`
	WorkflowID   string `json:"workflow_id"`
	ContactID    string `json:"contact_id"`
	Source       string `json:"source"`
}

func (e EnrollmentCreated) GetType() EventType {
	return EnrollmentCreatedEvent
}

type EnrollmentAdvanced struct {
	BaseEvent

	EnrollmentID string `json:"enrollment_id"`
	WorkflowID   string `json:"workflow_id"`
	ContactID    string `json:"contact_id"`
	StepID       string `json:"step_id"`
	StepType     string `json:"step_type"`
	Outcome      string `json:"outcome"`
}

func (e EnrollmentAdvanced) GetType() EventType {
	return EnrollmentAdvancedEvent
}

type EnrollmentCompleted struct {
	BaseEvent

	EnrollmentID string `json:"enrollment_id"`
	WorkflowID   string `json:"workflow_id"`
	ContactID    string `json:"contact_id"`
}

func (e EnrollmentCompleted) GetType() EventType {
	return EnrollmentCompletedEvent
}

type EnrollmentExited struct {
	BaseEvent

	EnrollmentID string `json:"enrollment_id"`
	WorkflowID   string `json:"workflow_id"`
	ContactID    string `json:"contact_id"`
	Reason       string `json:"reason"`
}

func (e EnrollmentExited) GetType() EventType {
	return EnrollmentExitedEvent
}

type EnrollmentFailed struct {
	BaseEvent

	EnrollmentID string `json:"enrollment_id"`
	WorkflowID   string `json:"workflow_id"`
	ContactID    string `json:"contact_id"`
	StepID       string `json:"step_id,omitempty"`
	Error        string `json:"error"`
}

func (e EnrollmentFailed) GetType() EventType {
	return EnrollmentFailedEvent
}
