// Package registry holds the closed set of step executor factories.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/sleng75/slimail/pkg/models"
	"github.com/sleng75/slimail/pkg/protocol"
)

// Registry maps step types to their factories. The set is fixed at startup;
// there is no plugin loading for step kinds.
type Registry struct {
	logger    *slog.Logger
	factories map[models.StepType]protocol.StepFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		factories: make(map[models.StepType]protocol.StepFactory),
	}
}

func (r *Registry) RegisterStep(factory protocol.StepFactory) {
	r.factories[factory.Type()] = factory
}

// CreateExecutor builds the executor for a step type with the given
// collaborators wired in.
func (r *Registry) CreateExecutor(stepType models.StepType, deps protocol.Collaborators) (protocol.StepExecutor, error) {
	factory, ok := r.factories[stepType]
	if !ok {
		return nil, fmt.Errorf("step type %q not registered", stepType)
	}

	return factory.Create(deps)
}

// ValidateStepConfig runs the per-type schema validation for a step node.
func (r *Registry) ValidateStepConfig(step *models.StepNode) error {
	factory, ok := r.factories[step.Type]
	if !ok {
		return fmt.Errorf("step type %q not registered", step.Type)
	}

	if err := factory.ValidateConfig(step.Config); err != nil {
		return fmt.Errorf("step %s (%s): %w", step.ID, step.Type, err)
	}

	return nil
}

// RegisteredTypes lists the known step types, for diagnostics.
func (r *Registry) RegisteredTypes() []models.StepType {
	types := make([]models.StepType, 0, len(r.factories))
	for stepType := range r.factories {
		types = append(types, stepType)
	}

	return types
}

// HealthCheck reports whether the registry is usable.
func (r *Registry) HealthCheck() (string, bool) {
	if len(r.factories) == 0 {
		return "No step executors registered", false
	}

	return fmt.Sprintf("%d step executors registered", len(r.factories)), true
}
