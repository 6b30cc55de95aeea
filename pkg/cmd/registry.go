package cmd

import (
	"log/slog"

	"github.com/sleng75/slimail/pkg/registry"
	"github.com/sleng75/slimail/pkg/steps"
)

// NewRegistry builds the step executor registry with every native step kind
// registered. The set is closed; there is no plugin loading.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)
	steps.RegisterDefaults(reg)

	return reg
}
