// Package protocol defines the contracts between the engine and its step
// executors and external collaborators.
package protocol

import (
	"context"
	"log/slog"
	"time"

	"github.com/sleng75/slimail/pkg/models"
)

// StepContext carries everything a step executor may need for one execution.
type StepContext struct {
	Workflow   *models.Workflow
	Enrollment *models.Enrollment
	Step       *models.StepNode
	Contact    *models.ContactSnapshot
	Logger     *slog.Logger
}

// StepResult describes what the processor should do after a step executed.
type StepResult struct {
	// Branch to follow out of the step (next, or yes/no for conditions).
	Branch models.Branch

	// WaitFor delays the follow-up branch; zero means advance immediately.
	WaitFor time.Duration

	// ExitEnrollment ends the enrollment instead of following a branch.
	ExitEnrollment bool

	// Skipped marks steps whose effect was a no-op (logged as skipped).
	Skipped bool

	// Output is recorded on the activity log entry.
	Output map[string]any
}

// StepExecutor is the uniform capability every step kind implements. The set
// of kinds is closed; new behavior is added by registering a new executor,
// never by branching on type strings inside the processor.
type StepExecutor interface {
	Execute(ctx context.Context, stepCtx StepContext) (StepResult, error)
}

// StepFactory builds executors for one step type and validates its config.
type StepFactory interface {
	Type() models.StepType
	ValidateConfig(config map[string]any) error
	Create(deps Collaborators) (StepExecutor, error)
}
