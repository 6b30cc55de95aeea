package models

import "time"

// ActivityStatus classifies the outcome recorded in an activity log entry.
type ActivityStatus string

const (
	ActivityStatusSuccess ActivityStatus = "success"
	ActivityStatusSkipped ActivityStatus = "skipped"
	ActivityStatusFailed  ActivityStatus = "failed"
)

// ActivityLogEntry is one append-only audit record produced by the processor
// for every enrollment transition. Entries are never updated or deleted.
type ActivityLogEntry struct {
	ID           string         `json:"id"`
	EnrollmentID string         `json:"enrollment_id" validate:"required"`
	StepID       *string        `json:"step_id,omitempty"`
	Action       string         `json:"action"        validate:"required"`
	Status       ActivityStatus `json:"status"        validate:"required"`
	Message      string         `json:"message,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}
