// Package tag implements the add_tag and remove_tag steps.
package tag

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
		"tag_id": map[string]any{"type": "string", "minLength": 1},
	},
	"required": []any{"tag_id"},
}

// Executor mutates the contact's tag set. The mutation is idempotent on the
// collaborator side, so a retry after a partial failure is safe.
type Executor struct {
	mutator protocol.ContactMutator
	remove  bool
}

func (e *Executor) Execute(ctx context.Context, stepCtx protocol.StepContext) (protocol.StepResult, error) {
	tagID, _ := stepCtx.Step.Config["tag_id"].(string)

	action := "add_tag"
	err := error(nil)

	if e.remove {
		action = "remove_tag"
		err = e.mutator.RemoveTag(ctx, stepCtx.Contact.ID, tagID)
	} else {
		err = e.mutator.AddTag(ctx, stepCtx.Contact.ID, tagID)
	}

	if err != nil {
		return protocol.StepResult{}, fmt.Errorf("%s failed for tag %s: %w", action, tagID, err)
	}

	return protocol.StepResult{
		Branch: models.BranchNext,
		Output: map[string]any{"tag_id": tagID},
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
		return models.StepTypeRemoveTag
	}

	return models.StepTypeAddTag
}

func (f *Factory) ValidateConfig(config map[string]any) error {
	return schema.Validate(config, configSchema)
}

func (f *Factory) Create(deps protocol.Collaborators) (protocol.StepExecutor, error) {
	if deps.Mutator == nil {
		return nil, errors.New("tag steps require a contact mutator")
	}

	return &Executor{mutator: deps.Mutator, remove: f.remove}, nil
}
