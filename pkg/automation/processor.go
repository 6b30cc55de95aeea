package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sleng75/slimail/pkg/conditions"
	"github.com/sleng75/slimail/pkg/eventbus"
	"github.com/sleng75/slimail/pkg/events"
	"github.com/sleng75/slimail/pkg/models"
	"github.com/sleng75/slimail/pkg/persistence"
	"github.com/sleng75/slimail/pkg/protocol"
	"github.com/sleng75/slimail/pkg/registry"
)

const (
	DefaultClaimTTL    = 5 * time.Minute
	DefaultMaxRetries  = 3
	DefaultBackoffBase = time.Minute
	DefaultBatchLimit  = 100

	// maxChainedSteps bounds how many immediate steps one claim may execute
	// in a row, so a long run of synchronous steps cannot hold the claim
	// past its TTL. The enrollment stays active and resumes next tick.
	maxChainedSteps = 25
)

// ProcessorConfig carries the tunables of the enrollment processor.
type ProcessorConfig struct {
	WorkerID    string
	ClaimTTL    time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	BatchLimit  int
}

func (c ProcessorConfig) withDefaults() ProcessorConfig {
	if c.ClaimTTL <= 0 {
		c.ClaimTTL = DefaultClaimTTL
	}

	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}

	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}

	if c.BatchLimit <= 0 {
		c.BatchLimit = DefaultBatchLimit
	}

	return c
}

// EnrollmentProcessor advances due enrollments through their workflow trees.
// It is the only component that mutates an enrollment, and only while holding
// its claim; running any number of processors against the same store is safe.
type EnrollmentProcessor struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	deps        protocol.Collaborators
	bus         eventbus.EventPublisher
	evaluator   *conditions.Evaluator
	config      ProcessorConfig
	now         func() time.Time
}

func NewEnrollmentProcessor(
	logger *slog.Logger,
	persist persistence.Persistence,
	reg *registry.Registry,
	deps protocol.Collaborators,
	bus eventbus.EventPublisher,
	config ProcessorConfig,
) *EnrollmentProcessor {
	return &EnrollmentProcessor{
		logger:      logger.With("module", "enrollment_processor", "worker_id", config.WorkerID),
		persistence: persist,
		registry:    reg,
		deps:        deps,
		bus:         bus,
		evaluator:   conditions.NewEvaluator(),
		config:      config.withDefaults(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Tick claims and processes every due enrollment once. One enrollment's
// failure never stops the batch. Returns the number of enrollments processed.
func (p *EnrollmentProcessor) Tick(ctx context.Context) (int, error) {
	now := p.now()

	due, err := p.persistence.EnrollmentRepository().ListDue(ctx, now, p.config.BatchLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to list due enrollments: %w", err)
	}

	processed := 0

	for _, enrollment := range due {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		if err := p.process(ctx, enrollment); err != nil {
			if persistence.IsClaimConflict(err) {
				continue // another worker got there first
			}

			p.logger.Error("Failed to process enrollment",
				"enrollment_id", enrollment.ID, "error", err)

			continue
		}

		processed++
	}

	return processed, nil
}

func (p *EnrollmentProcessor) process(ctx context.Context, due *models.Enrollment) error {
	workflow, err := p.persistence.WorkflowRepository().GetByID(ctx, due.WorkflowID)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			p.logger.Warn("Enrollment references missing workflow, skipping",
				"enrollment_id", due.ID, "workflow_id", due.WorkflowID)

			return nil
		}

		return err
	}

	// Paused and draft workflows are skipped before claiming, so their
	// enrollments stay frozen without churn.
	if workflow.Status == models.WorkflowStatusPaused || workflow.Status == models.WorkflowStatusDraft {
		return nil
	}

	token := uuid.New().String()

	enrollment, err := p.persistence.EnrollmentRepository().Claim(ctx, due.ID, token, p.config.ClaimTTL)
	if err != nil {
		return err
	}

	if enrollment.IsTerminal() {
		// raced with another worker between listing and claiming
		return p.release(ctx, enrollment, token)
	}

	if err := p.advance(ctx, workflow, enrollment); err != nil {
		// release the claim even when advancement failed, so the
		// enrollment does not stay locked until the TTL expires
		if releaseErr := p.release(ctx, enrollment, token); releaseErr != nil {
			p.logger.Error("Failed to release claim",
				"enrollment_id", enrollment.ID, "error", releaseErr)
		}

		return err
	}

	return p.release(ctx, enrollment, token)
}

func (p *EnrollmentProcessor) release(ctx context.Context, enrollment *models.Enrollment, token string) error {
	return p.persistence.EnrollmentRepository().UpdateClaimed(ctx, enrollment, token)
}

// advance runs the enrollment forward while it stays immediately actionable:
// synchronous steps chain within one claim, a wait or retry parks it, and a
// terminal transition ends it.
func (p *EnrollmentProcessor) advance(ctx context.Context, workflow *models.Workflow, enrollment *models.Enrollment) error {
	now := p.now()

	if workflow.Status == models.WorkflowStatusArchived {
		return p.exit(ctx, workflow, enrollment, models.ExitReasonWorkflowArchived, now)
	}

	contact, err := p.deps.Contacts.GetContact(ctx, enrollment.ContactID)
	if err != nil {
		return p.handleStepFailure(ctx, workflow, enrollment, nil,
			NewCollaboratorError("get_contact", err), now)
	}

	if contact.Status == models.ContactStatusUnsubscribed {
		return p.exit(ctx, workflow, enrollment, models.ExitReasonUnsubscribed, now)
	}

	if enrollment.StopRequested {
		return p.exit(ctx, workflow, enrollment, models.ExitReasonManual, now)
	}

	for chained := 0; chained < maxChainedSteps; chained++ {
		now = p.now()

		// The goal is re-checked before every step execution, so a goal met
		// out-of-band during a wait ends the enrollment without running the
		// pending step.
		if workflow.ExitOnGoal && workflow.Goal != nil {
			met, err := p.evaluator.EvaluateGroup(contact, workflow.Goal)
			if err != nil {
				conditions.LogEvaluationError(p.logger, "goal", err)

				met = false
			}

			if met {
				return p.exit(ctx, workflow, enrollment, models.ExitReasonGoalMet, now)
			}
		}

		if enrollment.CurrentStepID == nil {
			return p.complete(ctx, workflow, enrollment, now)
		}

		step, ok := workflow.Step(*enrollment.CurrentStepID)
		if !ok {
			return p.fail(ctx, workflow, enrollment, nil,
				fmt.Sprintf("step %s not found in workflow tree", *enrollment.CurrentStepID), now)
		}

		done, err := p.executeStep(ctx, workflow, enrollment, step, contact, now)
		if err != nil {
			return err
		}

		if done {
			return nil
		}
	}

	// chain budget exhausted: the enrollment is still active and will be
	// picked up again on the next tick
	return nil
}

// executeStep runs one step and applies its result. It returns done=true when
// the enrollment is parked or terminal, done=false when the next step should
// run within the same claim.
func (p *EnrollmentProcessor) executeStep(
	ctx context.Context,
	workflow *models.Workflow,
	enrollment *models.Enrollment,
	step *models.StepNode,
	contact *models.ContactSnapshot,
	now time.Time,
) (bool, error) {
	executor, err := p.registry.CreateExecutor(step.Type, p.deps)
	if err != nil {
		return true, p.fail(ctx, workflow, enrollment, &step.ID, err.Error(), now)
	}

	result, execErr := executor.Execute(ctx, protocol.StepContext{
		Workflow:   workflow,
		Enrollment: enrollment,
		Step:       step,
		Contact:    contact,
		Logger:     p.logger,
	})

	if execErr != nil {
		if errors.Is(execErr, conditions.ErrConditionEvaluation) {
			// fail-safe: a broken condition takes the "no" branch instead
			// of halting the enrollment
			conditions.LogEvaluationError(p.logger, step.ID, execErr)

			result.Skipped = true
			result.Branch = models.BranchNo
		} else {
			return true, p.handleStepFailure(ctx, workflow, enrollment, step, execErr, now)
		}
	}

	enrollment.RetryCount = 0

	if result.ExitEnrollment {
		// exit nodes do not record a history entry of their own
		return true, p.complete(ctx, workflow, enrollment, now)
	}

	outcome := "success"
	if step.IsCondition() {
		outcome = string(result.Branch)
	}

	enrollment.RecordStep(step.ID, now, outcome)

	status := models.ActivityStatusSuccess
	if result.Skipped {
		status = models.ActivityStatusSkipped
	}

	p.logActivity(ctx, &models.ActivityLogEntry{
		EnrollmentID: enrollment.ID,
		StepID:       &step.ID,
		Action:       string(step.Type),
		Status:       status,
		Data:         result.Output,
		Timestamp:    now,
	})

	p.publish(ctx, enrollment.ID, events.EnrollmentAdvanced{
		BaseEvent:    events.NewBaseEvent(events.EnrollmentAdvancedEvent, workflow.TenantID),
		EnrollmentID: enrollment.ID,
		WorkflowID:   workflow.ID,
		ContactID:    enrollment.ContactID,
		StepID:       step.ID,
		StepType:     string(step.Type),
		Outcome:      outcome,
	})

	childID := step.ChildID(result.Branch)

	if result.WaitFor > 0 {
		// a trailing wait has no step to resume into, so there is nothing
		// to wait for
		if childID == nil {
			return true, p.complete(ctx, workflow, enrollment, now)
		}

		enrollment.CurrentStepID = childID

		if err := enrollment.WaitUntil(now.Add(result.WaitFor)); err != nil {
			return true, err
		}

		return true, nil
	}

	if childID == nil {
		return true, p.complete(ctx, workflow, enrollment, now)
	}

	if err := enrollment.AdvanceTo(*childID, now); err != nil {
		return true, err
	}

	return false, nil
}

// handleStepFailure applies the retry policy: exponential backoff until the
// retry budget is spent, then the enrollment is terminalized as failed.
func (p *EnrollmentProcessor) handleStepFailure(
	ctx context.Context,
	workflow *models.Workflow,
	enrollment *models.Enrollment,
	step *models.StepNode,
	execErr error,
	now time.Time,
) error {
	var stepID *string
	if step != nil {
		stepID = &step.ID
	}

	enrollment.RetryCount++

	action := "step_execution"
	if step != nil {
		action = string(step.Type)
	}

	p.logActivity(ctx, &models.ActivityLogEntry{
		EnrollmentID: enrollment.ID,
		StepID:       stepID,
		Action:       action,
		Status:       models.ActivityStatusFailed,
		Message:      execErr.Error(),
		Data:         map[string]any{"attempt": enrollment.RetryCount},
		Timestamp:    now,
	})

	if enrollment.RetryCount >= p.config.MaxRetries || !IsRetryable(execErr) {
		message := fmt.Sprintf("retry budget exhausted after %d attempts: %v", enrollment.RetryCount, execErr)

		return p.fail(ctx, workflow, enrollment, stepID, message, now)
	}

	backoff := p.config.BackoffBase << (enrollment.RetryCount - 1)

	p.logger.Warn("Step failed, scheduling retry",
		"enrollment_id", enrollment.ID,
		"attempt", enrollment.RetryCount,
		"retry_in", backoff,
		"error", execErr)

	return enrollment.WaitUntil(now.Add(backoff))
}

func (p *EnrollmentProcessor) complete(ctx context.Context, workflow *models.Workflow, enrollment *models.Enrollment, now time.Time) error {
	if err := enrollment.Complete(now); err != nil {
		return err
	}

	p.logActivity(ctx, &models.ActivityLogEntry{
		EnrollmentID: enrollment.ID,
		Action:       "completed",
		Status:       models.ActivityStatusSuccess,
		Timestamp:    now,
	})

	p.updateCounters(ctx, workflow.ID, models.WorkflowCounters{Active: -1, Completed: 1})

	p.publish(ctx, enrollment.ID, events.EnrollmentCompleted{
		BaseEvent:    events.NewBaseEvent(events.EnrollmentCompletedEvent, workflow.TenantID),
		EnrollmentID: enrollment.ID,
		WorkflowID:   workflow.ID,
		ContactID:    enrollment.ContactID,
	})

	return nil
}

func (p *EnrollmentProcessor) exit(ctx context.Context, workflow *models.Workflow, enrollment *models.Enrollment, reason models.ExitReason, now time.Time) error {
	if err := enrollment.Exit(reason, now); err != nil {
		return err
	}

	p.logActivity(ctx, &models.ActivityLogEntry{
		EnrollmentID: enrollment.ID,
		Action:       "exited",
		Status:       models.ActivityStatusSuccess,
		Message:      string(reason),
		Timestamp:    now,
	})

	p.updateCounters(ctx, workflow.ID, models.WorkflowCounters{Active: -1, Exited: 1})

	p.publish(ctx, enrollment.ID, events.EnrollmentExited{
		BaseEvent:    events.NewBaseEvent(events.EnrollmentExitedEvent, workflow.TenantID),
		EnrollmentID: enrollment.ID,
		WorkflowID:   workflow.ID,
		ContactID:    enrollment.ContactID,
		Reason:       string(reason),
	})

	return nil
}

func (p *EnrollmentProcessor) fail(ctx context.Context, workflow *models.Workflow, enrollment *models.Enrollment, stepID *string, message string, now time.Time) error {
	if err := enrollment.Fail(now); err != nil {
		return err
	}

	p.logActivity(ctx, &models.ActivityLogEntry{
		EnrollmentID: enrollment.ID,
		StepID:       stepID,
		Action:       "failed",
		Status:       models.ActivityStatusFailed,
		Message:      message,
		Timestamp:    now,
	})

	p.updateCounters(ctx, workflow.ID, models.WorkflowCounters{Active: -1, Exited: 1})

	failedStepID := ""
	if stepID != nil {
		failedStepID = *stepID
	}

	p.publish(ctx, enrollment.ID, events.EnrollmentFailed{
		BaseEvent:    events.NewBaseEvent(events.EnrollmentFailedEvent, workflow.TenantID),
		EnrollmentID: enrollment.ID,
		WorkflowID:   workflow.ID,
		ContactID:    enrollment.ContactID,
		StepID:       failedStepID,
		Error:        message,
	})

	p.logger.Error("Enrollment terminalized as failed",
		"enrollment_id", enrollment.ID,
		"workflow_id", workflow.ID,
		"message", message)

	return nil
}

func (p *EnrollmentProcessor) updateCounters(ctx context.Context, workflowID string, delta models.WorkflowCounters) {
	if err := p.persistence.WorkflowRepository().IncrementCounters(ctx, workflowID, delta); err != nil {
		p.logger.Warn("Failed to update workflow counters",
			"workflow_id", workflowID, "error", err)
	}
}

func (p *EnrollmentProcessor) logActivity(ctx context.Context, entry *models.ActivityLogEntry) {
	sink := protocol.AuditSink(p.persistence.ActivityLogRepository())
	if p.deps.Audit != nil {
		sink = p.deps.Audit
	}

	if err := sink.Append(ctx, entry); err != nil {
		p.logger.Error("Failed to append activity log entry",
			"enrollment_id", entry.EnrollmentID, "error", err)
	}
}

func (p *EnrollmentProcessor) publish(ctx context.Context, key string, event eventbus.Event) {
	if p.bus == nil {
		return
	}

	if err := p.bus.Publish(ctx, key, event); err != nil {
		p.logger.Warn("Failed to publish event",
			"event_type", event.GetType(), "error", err)
	}
}
