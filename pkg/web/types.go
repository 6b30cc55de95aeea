// Package web provides the HTTP surface of the engine: workflow CRUD and
// lifecycle, manual enrollment, enrollment inspection.
package web

import (
	"time"

	"github.com/sleng75/slimail/pkg/models"
)

// StepNodeRequest is one node of the tree in a create/update request.
type StepNodeRequest struct {
	ID     string         `json:"id"     validate:"required"`
	Type   string         `json:"type"   validate:"required"`
	Config map[string]any `json:"config,omitempty"`
	Next   *string        `json:"next,omitempty"`
	Yes    *string        `json:"yes,omitempty"`
	No     *string        `json:"no,omitempty"`
}

// CreateWorkflowRequest is the body for creating a workflow. New workflows
// always start in draft status.
type CreateWorkflowRequest struct {
	TenantID            string                 `json:"tenant_id"      validate:"required"`
	Name                string                 `json:"name"           validate:"required,min=3"`
	Description         string                 `json:"description"`
	TriggerType         string                 `json:"trigger_type"   validate:"required"`
	TriggerConfig       map[string]any         `json:"trigger_config,omitempty"`
	RootStepID          *string                `json:"root_step_id,omitempty"`
	Steps               []StepNodeRequest      `json:"steps,omitempty"`
	AllowReentry        bool                   `json:"allow_reentry"`
	ReentryDelaySeconds int64                  `json:"reentry_delay_seconds" validate:"gte=0"`
	ExitOnGoal          bool                   `json:"exit_on_goal"`
	Goal                *models.ConditionGroup `json:"goal,omitempty"`
}

// UpdateWorkflowRequest mirrors the create body; a non-nil Steps slice
// replaces the tree wholesale.
type UpdateWorkflowRequest = CreateWorkflowRequest

// EnrollRequest is the body for manual enrollment.
type EnrollRequest struct {
	ContactID string `json:"contact_id" validate:"required"`
}

// ToModel converts the request into a workflow record with the step tree
// laid out as a node arena.
func (r *CreateWorkflowRequest) ToModel() *models.Workflow {
	workflow := &models.Workflow{
		TenantID:      r.TenantID,
		Name:          r.Name,
		Description:   r.Description,
		TriggerType:   models.TriggerType(r.TriggerType),
		TriggerConfig: r.TriggerConfig,
		RootStepID:    r.RootStepID,
		Steps:         make(map[string]*models.StepNode, len(r.Steps)),
		AllowReentry:  r.AllowReentry,
		ReentryDelay:  time.Duration(r.ReentryDelaySeconds) * time.Second,
		ExitOnGoal:    r.ExitOnGoal,
		Goal:          r.Goal,
	}

	now := time.Now().UTC()

	for _, step := range r.Steps {
		workflow.Steps[step.ID] = &models.StepNode{
			ID:        step.ID,
			Type:      models.StepType(step.Type),
			Config:    step.Config,
			Next:      step.Next,
			Yes:       step.Yes,
			No:        step.No,
			CreatedAt: now,
		}
	}

	return workflow
}
