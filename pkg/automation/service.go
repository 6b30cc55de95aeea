package automation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/sleng75/slimail/pkg/models"
	"github.com/sleng75/slimail/pkg/persistence"
	"github.com/sleng75/slimail/pkg/registry"
)

// WorkflowService is the editing and lifecycle surface for workflows.
// Validation failures here are surfaced synchronously to the editor; nothing
// invalid ever reaches the processor.
type WorkflowService struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	validator   *validator.Validate
}

func NewWorkflowService(logger *slog.Logger, persist persistence.Persistence, reg *registry.Registry) *WorkflowService {
	return &WorkflowService{
		logger:      logger.With("module", "workflow_service"),
		persistence: persist,
		registry:    reg,
		validator:   validator.New(),
	}
}

func (s *WorkflowService) List(ctx context.Context) ([]*models.Workflow, error) {
	return s.persistence.WorkflowRepository().GetAll(ctx)
}

func (s *WorkflowService) Get(ctx context.Context, id string) (*models.Workflow, error) {
	return s.persistence.WorkflowRepository().GetByID(ctx, id)
}

// Create stores a new workflow in draft status after validating it.
func (s *WorkflowService) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	workflow.ID = ""
	workflow.Status = models.WorkflowStatusDraft
	workflow.Counters = models.WorkflowCounters{}

	if err := s.Validate(workflow); err != nil {
		return nil, err
	}

	if err := s.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, err
	}

	s.logger.Info("Workflow created", "workflow_id", workflow.ID, "name", workflow.Name)

	return workflow, nil
}

// Update applies edits to an existing workflow. The step tree is replaced
// wholesale; nodes from the previous tree survive as tombstones so mid-flight
// enrollments keep resolving their step ids.
func (s *WorkflowService) Update(ctx context.Context, id string, updated *models.Workflow) (*models.Workflow, error) {
	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	workflow.Name = updated.Name
	workflow.Description = updated.Description
	workflow.TriggerType = updated.TriggerType
	workflow.TriggerConfig = updated.TriggerConfig
	workflow.AllowReentry = updated.AllowReentry
	workflow.ReentryDelay = updated.ReentryDelay
	workflow.ExitOnGoal = updated.ExitOnGoal
	workflow.Goal = updated.Goal

	if updated.Steps != nil {
		workflow.ReplaceTree(updated.RootStepID, updated.Steps)
	}

	if err := s.Validate(workflow); err != nil {
		return nil, err
	}

	if err := s.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, err
	}

	s.logger.Info("Workflow updated", "workflow_id", workflow.ID)

	return workflow, nil
}

func (s *WorkflowService) Delete(ctx context.Context, id string) error {
	return s.persistence.WorkflowRepository().Delete(ctx, id)
}

// Validate checks the workflow record, its tree structure and every current
// (non-tombstoned) step's config schema.
func (s *WorkflowService) Validate(workflow *models.Workflow) error {
	if err := s.validator.Struct(workflow); err != nil {
		return fmt.Errorf("workflow validation failed: %w", err)
	}

	if err := workflow.ValidateTree(); err != nil {
		return err
	}

	for _, step := range workflow.Steps {
		if step.Replaced {
			continue
		}

		if err := s.registry.ValidateStepConfig(step); err != nil {
			return err
		}
	}

	return nil
}

// Activate moves a workflow into active status so it starts enrolling.
func (s *WorkflowService) Activate(ctx context.Context, id string) (*models.Workflow, error) {
	return s.transition(ctx, id, models.WorkflowStatusActive, func(workflow *models.Workflow) error {
		if err := workflow.CanActivate(); err != nil {
			return err
		}

		return s.Validate(workflow)
	})
}

// Pause freezes a workflow: its enrollments stop advancing and no new
// contacts enroll until it is re-activated.
func (s *WorkflowService) Pause(ctx context.Context, id string) (*models.Workflow, error) {
	return s.transition(ctx, id, models.WorkflowStatusPaused, nil)
}

// Archive terminalizes a workflow. Live enrollments are exited with the
// workflow_archived reason on the processor's next pass.
func (s *WorkflowService) Archive(ctx context.Context, id string) (*models.Workflow, error) {
	return s.transition(ctx, id, models.WorkflowStatusArchived, nil)
}

func (s *WorkflowService) transition(
	ctx context.Context,
	id string,
	target models.WorkflowStatus,
	check func(*models.Workflow) error,
) (*models.Workflow, error) {
	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if check != nil {
		if err := check(workflow); err != nil {
			return nil, err
		}
	}

	if err := workflow.TransitionTo(target); err != nil {
		return nil, err
	}

	if err := s.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, err
	}

	s.logger.Info("Workflow status changed", "workflow_id", id, "status", target)

	return workflow, nil
}

// RequestRemoval flags an enrollment for manual removal. The processor exits
// it with the manual reason at its next tick.
func (s *WorkflowService) RequestRemoval(ctx context.Context, enrollmentID string) error {
	return s.persistence.EnrollmentRepository().RequestStop(ctx, enrollmentID)
}
