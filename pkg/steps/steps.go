// Package steps wires the built-in step executors into a registry.
package steps

import (
	"github.com/sleng75/slimail/pkg/registry"
	"github.com/sleng75/slimail/pkg/steps/condition"
	"github.com/sleng75/slimail/pkg/steps/exit"
	"github.com/sleng75/slimail/pkg/steps/list"
	"github.com/sleng75/slimail/pkg/steps/sendemail"
	"github.com/sleng75/slimail/pkg/steps/tag"
	"github.com/sleng75/slimail/pkg/steps/wait"
	"github.com/sleng75/slimail/pkg/steps/webhook"
)

// RegisterDefaults registers every built-in step kind. The processor only
// ever sees step types through the registry; this is the single place the
// closed set is assembled.
func RegisterDefaults(r *registry.Registry) {
	r.RegisterStep(sendemail.NewFactory())
	r.RegisterStep(wait.NewFactory())
	r.RegisterStep(condition.NewFactory())
	r.RegisterStep(tag.NewAddFactory())
	r.RegisterStep(tag.NewRemoveFactory())
	r.RegisterStep(list.NewAddFactory())
	r.RegisterStep(list.NewRemoveFactory())
	r.RegisterStep(webhook.NewFactory())
	r.RegisterStep(exit.NewFactory())
}
