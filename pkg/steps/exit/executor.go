// Package exit implements the terminal step that ends an enrollment.
package exit

import (
	"context"

	"github.com/sleng75/slimail/pkg/models"
	"github.com/sleng75/slimail/pkg/protocol"
	"github.com/sleng75/slimail/pkg/steps/schema"
)

var configSchema = map[string]any{
	"type":       "object",
	"properties": map[string]any{},
}

type Executor struct{}

func (e *Executor) Execute(_ context.Context, stepCtx protocol.StepContext) (protocol.StepResult, error) {
	stepCtx.Logger.Debug("Exit step reached", "enrollment_id", stepCtx.Enrollment.ID)

	return protocol.StepResult{ExitEnrollment: true}, nil
}

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Type() models.StepType {
	return models.StepTypeExit
}

func (f *Factory) ValidateConfig(config map[string]any) error {
	return schema.Validate(config, configSchema)
}

func (f *Factory) Create(_ protocol.Collaborators) (protocol.StepExecutor, error) {
	return &Executor{}, nil
}
