package models

import (
	"errors"
	"fmt"
	"time"
)

// EnrollmentStatus represents the runtime state of a contact inside a workflow.
type EnrollmentStatus string

const (
	EnrollmentStatusActive    EnrollmentStatus = "active"    // ready for immediate processing
	EnrollmentStatusWaiting   EnrollmentStatus = "waiting"   // scheduled for next_action_at
	EnrollmentStatusCompleted EnrollmentStatus = "completed" // reached the end of the tree
	EnrollmentStatusExited    EnrollmentStatus = "exited"    // terminated early
	EnrollmentStatusFailed    EnrollmentStatus = "failed"    // retry budget exhausted
)

// ExitReason records why an enrollment was terminated early.
type ExitReason string

const (
	ExitReasonGoalMet          ExitReason = "goal_met"
	ExitReasonManual           ExitReason = "manual"
	ExitReasonUnsubscribed     ExitReason = "unsubscribed"
	ExitReasonReentryBlocked   ExitReason = "reentry_blocked"
	ExitReasonWorkflowArchived ExitReason = "workflow_archived"
	ExitReasonError            ExitReason = "error"
)

// ErrTerminalState is returned when a transition is attempted on an
// enrollment that already reached a terminal status. That is a programming
// error on the caller's side, never a user-facing condition.
var ErrTerminalState = errors.New("enrollment is in a terminal state")

// HistoryEntry records one executed step of an enrollment, in order.
type HistoryEntry struct {
	StepID     string    `json:"step_id"`
	ExecutedAt time.Time `json:"executed_at"`
	Outcome    string    `json:"outcome"`
}

// Enrollment is the per-(workflow, contact) runtime instance of a workflow.
// It is created by the trigger matcher and mutated exclusively by the
// processor holding its claim; it is never deleted, only soft-exited.
type Enrollment struct {
	ID            string           `json:"id"`
	WorkflowID    string           `json:"workflow_id" validate:"required"`
	ContactID     string           `json:"contact_id"  validate:"required"`
	Status        EnrollmentStatus `json:"status"`
	CurrentStepID *string          `json:"current_step_id,omitempty"`
	EnrolledAt    time.Time        `json:"enrolled_at"`
	NextActionAt  *time.Time       `json:"next_action_at,omitempty"`
	EndedAt       *time.Time       `json:"ended_at,omitempty"`
	ExitReason    *ExitReason      `json:"exit_reason,omitempty"`
	RetryCount    int              `json:"retry_count"`
	StopRequested bool             `json:"stop_requested"`
	Source        string           `json:"source,omitempty"` // trigger event or "manual"
	History       []HistoryEntry   `json:"history,omitempty"`

	// Claim bookkeeping, owned by the enrollment store.
	ClaimToken     *string    `json:"claim_token,omitempty"`
	ClaimExpiresAt *time.Time `json:"claim_expires_at,omitempty"`
}

// IsTerminal reports whether no further transitions are allowed.
func (e *Enrollment) IsTerminal() bool {
	switch e.Status {
	case EnrollmentStatusCompleted, EnrollmentStatusExited, EnrollmentStatusFailed:
		return true
	default:
		return false
	}
}

// IsLive reports whether the enrollment still occupies the (workflow,
// contact) slot for eligibility purposes.
func (e *Enrollment) IsLive() bool {
	return e.Status == EnrollmentStatusActive || e.Status == EnrollmentStatusWaiting
}

// RecordStep appends an executed step to the enrollment history.
func (e *Enrollment) RecordStep(stepID string, executedAt time.Time, outcome string) {
	e.History = append(e.History, HistoryEntry{
		StepID:     stepID,
		ExecutedAt: executedAt,
		Outcome:    outcome,
	})
}

// AdvanceTo moves the enrollment to the given step for immediate processing.
func (e *Enrollment) AdvanceTo(stepID string, now time.Time) error {
	if e.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrTerminalState, e.ID)
	}

	e.Status = EnrollmentStatusActive
	e.CurrentStepID = &stepID
	e.NextActionAt = &now

	return nil
}

// WaitUntil parks the enrollment until the given time.
func (e *Enrollment) WaitUntil(until time.Time) error {
	if e.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrTerminalState, e.ID)
	}

	e.Status = EnrollmentStatusWaiting
	e.NextActionAt = &until

	return nil
}

// Complete marks the enrollment as having exhausted the tree.
func (e *Enrollment) Complete(now time.Time) error {
	if e.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrTerminalState, e.ID)
	}

	e.Status = EnrollmentStatusCompleted
	e.CurrentStepID = nil
	e.NextActionAt = nil
	e.EndedAt = &now

	return nil
}

// Exit terminates the enrollment early with the given reason.
func (e *Enrollment) Exit(reason ExitReason, now time.Time) error {
	if e.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrTerminalState, e.ID)
	}

	e.Status = EnrollmentStatusExited
	e.CurrentStepID = nil
	e.NextActionAt = nil
	e.ExitReason = &reason
	e.EndedAt = &now

	return nil
}

// Fail terminalizes the enrollment after its retry budget is exhausted. The
// current step id is kept for diagnosis.
func (e *Enrollment) Fail(now time.Time) error {
	if e.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrTerminalState, e.ID)
	}

	e.Status = EnrollmentStatusFailed
	e.NextActionAt = nil
	e.EndedAt = &now

	return nil
}
