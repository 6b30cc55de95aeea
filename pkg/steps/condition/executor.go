// Package condition implements the branching step: it evaluates a condition
// group against the contact snapshot and picks the yes or no branch.
package condition

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sleng75/slimail/pkg/conditions"
	"github.com/sleng75/slimail/pkg/models"
	"github.com/sleng75/slimail/pkg/protocol"
	"github.com/sleng75/slimail/pkg/steps/schema"
)

var configSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"match": map[string]any{"type": "string", "enum": []any{"all", "any"}},
		"conditions": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"field":    map[string]any{"type": "string", "minLength": 1},
					"operator": map[string]any{"type": "string", "minLength": 1},
				},
				"required": []any{"field", "operator"},
			},
		},
	},
	"required": []any{"conditions"},
}

type Executor struct {
	evaluator *conditions.Evaluator
}

// Execute picks yes or no. An evaluation error is surfaced to the processor,
// which falls back to the no branch (fail-safe) rather than halting the
// enrollment; the error return carries the detail for the activity log.
func (e *Executor) Execute(_ context.Context, stepCtx protocol.StepContext) (protocol.StepResult, error) {
	group, err := GroupFromConfig(stepCtx.Step.Config)
	if err != nil {
		return protocol.StepResult{Branch: models.BranchNo}, err
	}

	met, err := e.evaluator.EvaluateGroup(stepCtx.Contact, group)
	if err != nil {
		return protocol.StepResult{Branch: models.BranchNo}, err
	}

	branch := models.BranchNo
	if met {
		branch = models.BranchYes
	}

	stepCtx.Logger.Debug("Condition evaluated",
		"step_id", stepCtx.Step.ID,
		"branch", branch)

	return protocol.StepResult{
		Branch: branch,
		Output: map[string]any{"result": met, "branch": string(branch)},
	}, nil
}

// GroupFromConfig decodes the condition group embedded in a step config.
func GroupFromConfig(config map[string]any) (*models.ConditionGroup, error) {
	raw, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("cannot encode condition config: %w", err)
	}

	var group models.ConditionGroup
	if err := json.Unmarshal(raw, &group); err != nil {
		return nil, fmt.Errorf("cannot decode condition config: %w", err)
	}

	return &group, nil
}

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Type() models.StepType {
	return models.StepTypeCondition
}

func (f *Factory) ValidateConfig(config map[string]any) error {
	return schema.Validate(config, configSchema)
}

func (f *Factory) Create(_ protocol.Collaborators) (protocol.StepExecutor, error) {
	return &Executor{evaluator: conditions.NewEvaluator()}, nil
}
