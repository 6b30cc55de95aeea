// Package models defines the core domain models for the automation engine.
package models

import (
	"errors"
	"fmt"
	"time"
)

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"    // Editable, never enrolls
	WorkflowStatusActive   WorkflowStatus = "active"   // Enrolls and advances contacts
	WorkflowStatusPaused   WorkflowStatus = "paused"   // Enrollments frozen, no new enrollments
	WorkflowStatusArchived WorkflowStatus = "archived" // Terminal, live enrollments exited
)

// TriggerType identifies the event kind that enrolls contacts automatically.
type TriggerType string

const (
	TriggerTypeManual           TriggerType = "manual"
	TriggerTypeListSubscription TriggerType = "list_subscription"
	TriggerTypeTagAdded         TriggerType = "tag_added"
	TriggerTypeTagRemoved       TriggerType = "tag_removed"
	TriggerTypeDateBased        TriggerType = "date_based"
)

var (
	ErrNoRootStep          = errors.New("workflow has no root step")
	ErrRootStepNotFound    = errors.New("root step not present in step table")
	ErrStepCycle           = errors.New("step tree contains a cycle")
	ErrMissingBranch       = errors.New("condition step is missing a branch")
	ErrUnexpectedBranch    = errors.New("non-condition step carries yes/no branches")
	ErrBranchTargetMissing = errors.New("branch target not present in step table")
	ErrInvalidTransition   = errors.New("invalid workflow status transition")
)

// WorkflowCounters tracks aggregate enrollment totals for a workflow.
type WorkflowCounters struct {
	TotalEnrolled int `json:"total_enrolled"`
	Active        int `json:"active"`
	Completed     int `json:"completed"`
	Exited        int `json:"exited"`
}

// Workflow represents a tenant-owned automation: a trigger, a step tree and
// the enrollment policy applied to contacts flowing through it.
type Workflow struct {
	ID            string               `json:"id"`
	TenantID      string               `json:"tenant_id"     validate:"required"`
	Name          string               `json:"name"          validate:"required,min=3"`
	Description   string               `json:"description"`
	Status        WorkflowStatus       `json:"status"        validate:"required"`
	TriggerType   TriggerType          `json:"trigger_type"  validate:"required"`
	TriggerConfig map[string]any       `json:"trigger_config,omitempty"`
	RootStepID    *string              `json:"root_step_id,omitempty"`
	Steps         map[string]*StepNode `json:"steps"` // arena of nodes by id, tombstones included
	AllowReentry  bool                 `json:"allow_reentry"`
	ReentryDelay  time.Duration        `json:"reentry_delay"`
	ExitOnGoal    bool                 `json:"exit_on_goal"`
	Goal          *ConditionGroup      `json:"goal,omitempty"`
	Counters      WorkflowCounters     `json:"counters"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
	DeletedAt     *time.Time           `json:"deleted_at,omitempty"`
}

// statusTransitions lists the allowed forward moves. Archived is terminal.
var statusTransitions = map[WorkflowStatus][]WorkflowStatus{
	WorkflowStatusDraft:    {WorkflowStatusActive},
	WorkflowStatusActive:   {WorkflowStatusPaused, WorkflowStatusArchived},
	WorkflowStatusPaused:   {WorkflowStatusActive, WorkflowStatusArchived},
	WorkflowStatusArchived: {},
}

// CanTransitionTo reports whether the workflow may move to the target status.
func (w *Workflow) CanTransitionTo(target WorkflowStatus) bool {
	for _, allowed := range statusTransitions[w.Status] {
		if allowed == target {
			return true
		}
	}

	return false
}

// TransitionTo moves the workflow to the target status or fails with
// ErrInvalidTransition.
func (w *Workflow) TransitionTo(target WorkflowStatus) error {
	if !w.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, w.Status, target)
	}

	w.Status = target
	w.UpdatedAt = time.Now().UTC()

	return nil
}

// Step resolves a step id against the arena. Tombstoned nodes resolve too, so
// enrollments created before a tree edit keep working.
func (w *Workflow) Step(id string) (*StepNode, bool) {
	step, ok := w.Steps[id]

	return step, ok
}

// ValidateTree checks the structural invariants of the step tree reachable
// from the root: the root exists, every condition node carries both branches,
// branch targets resolve, and the walk terminates (visited-set cycle check).
// Per-type config validation is schema-driven and lives with the step
// executors, not here.
func (w *Workflow) ValidateTree() error {
	if w.RootStepID == nil {
		if w.Status == WorkflowStatusDraft {
			return nil // empty drafts are fine
		}

		return ErrNoRootStep
	}

	root, ok := w.Steps[*w.RootStepID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRootStepNotFound, *w.RootStepID)
	}

	visited := make(map[string]bool)

	return w.walk(root, visited)
}

func (w *Workflow) walk(step *StepNode, visited map[string]bool) error {
	if visited[step.ID] {
		return fmt.Errorf("%w: step %s reached twice", ErrStepCycle, step.ID)
	}

	visited[step.ID] = true

	if step.Type == StepTypeCondition {
		if step.Yes == nil || step.No == nil {
			return fmt.Errorf("%w: step %s", ErrMissingBranch, step.ID)
		}
	} else if step.Yes != nil || step.No != nil {
		return fmt.Errorf("%w: step %s", ErrUnexpectedBranch, step.ID)
	}

	for _, childID := range step.childIDs() {
		child, ok := w.Steps[childID]
		if !ok {
			return fmt.Errorf("%w: step %s -> %s", ErrBranchTargetMissing, step.ID, childID)
		}

		if err := w.walk(child, visited); err != nil {
			return err
		}
	}

	return nil
}

// CanActivate reports whether the workflow is ready to enroll contacts: it
// needs at least one step and a structurally valid tree.
func (w *Workflow) CanActivate() error {
	if w.RootStepID == nil {
		return ErrNoRootStep
	}

	return w.ValidateTree()
}

// ReplaceTree swaps the active tree wholesale. Steps from the previous tree
// that survive by id are overwritten; the rest are kept as tombstones so
// mid-flight enrollments can still resolve them.
func (w *Workflow) ReplaceTree(rootID *string, steps map[string]*StepNode) {
	if w.Steps == nil {
		w.Steps = make(map[string]*StepNode)
	}

	for _, old := range w.Steps {
		old.Replaced = true
	}

	for id, step := range steps {
		step.Replaced = false
		w.Steps[id] = step
	}

	w.RootStepID = rootID
	w.UpdatedAt = time.Now().UTC()
}
