// Package wait implements the wait step: it parks the enrollment and
// schedules the follow-up branch for later.
package wait

import (
	"context"
	"fmt"
	"time"

	"github.com/sleng75/slimail/pkg/models"
	"github.com/sleng75/slimail/pkg/protocol"
	"github.com/sleng75/slimail/pkg/steps/schema"
)

var configSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"duration_seconds": map[string]any{"type": "number", "minimum": 1},
	},
	"required": []any{"duration_seconds"},
}

type Executor struct{}

func (e *Executor) Execute(_ context.Context, stepCtx protocol.StepContext) (protocol.StepResult, error) {
	duration, err := DurationFromConfig(stepCtx.Step.Config)
	if err != nil {
		return protocol.StepResult{}, err
	}

	stepCtx.Logger.Debug("Scheduling wait", "duration", duration)

	return protocol.StepResult{
		Branch:  models.BranchNext,
		WaitFor: duration,
		Output:  map[string]any{"duration_seconds": duration.Seconds()},
	}, nil
}

// DurationFromConfig extracts the wait duration from a step config.
func DurationFromConfig(config map[string]any) (time.Duration, error) {
	seconds, ok := config["duration_seconds"].(float64)
	if !ok {
		if asInt, intOK := config["duration_seconds"].(int); intOK {
			seconds = float64(asInt)
			ok = true
		}
	}

	if !ok || seconds <= 0 {
		return 0, fmt.Errorf("wait step needs a positive duration_seconds, got %v",
			config["duration_seconds"])
	}

	return time.Duration(seconds * float64(time.Second)), nil
}

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Type() models.StepType {
	return models.StepTypeWait
}

func (f *Factory) ValidateConfig(config map[string]any) error {
	return schema.Validate(config, configSchema)
}

func (f *Factory) Create(_ protocol.Collaborators) (protocol.StepExecutor, error) {
	return &Executor{}, nil
}
