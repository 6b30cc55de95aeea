// Package list implements the add_to_list and remove_from_list steps.
package list

import (
	"context"
	"errors"
	"fmt"

	"github.com/sleng75/slimail/pkg/models"
	"github.com/sleng75/slimail/pkg/protocol"
	"github.com/sleng75/slimail/pkg/steps/schema"
)

var configSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"list_id": map[string]any{"type": "string", "minLength": 1},
	},
	"required": []any{"list_id"},
}

type Executor struct {
	mutator protocol.ContactMutator
	remove  bool
}

func (e *Executor) Execute(ctx context.Context, stepCtx protocol.StepContext) (protocol.StepResult, error) {
	listID, _ := stepCtx.Step.Config["list_id"].(string)

	action := "add_to_list"
	err := error(nil)

	if e.remove {
		action = "remove_from_list"
		err = e.mutator.RemoveFromList(ctx, stepCtx.Contact.ID, listID)
	} else {
		err = e.mutator.AddToList(ctx, stepCtx.Contact.ID, listID)
	}

	if err != nil {
		return protocol.StepResult{}, fmt.Errorf("%s failed for list %s: %w", action, listID, err)
	}

	return protocol.StepResult{
		Branch: models.BranchNext,
		Output: map[string]any{"list_id": listID},
	}, nil
}

type Factory struct {
	remove bool
}

func NewAddFactory() *Factory {
	return &Factory{}
}

func NewRemoveFactory() *Factory {
	return &Factory{remove: true}
}

func (f *Factory) Type() models.StepType {
	if f.remove {
		return models.StepTypeRemoveFromList
	}

	return models.StepTypeAddToList
}

func (f *Factory) ValidateConfig(config map[string]any) error {
	return schema.Validate(config, configSchema)
}

func (f *Factory) Create(deps protocol.Collaborators) (protocol.StepExecutor, error) {
	if deps.Mutator == nil {
		return nil, errors.New("list steps require a contact mutator")
	}

	return &Executor{mutator: deps.Mutator, remove: f.remove}, nil
}
