// Package webhook implements the webhook step: a JSON POST with an explicit
// timeout to a tenant-configured URL.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sleng75/slimail/pkg/models"
	"github.com/sleng75/slimail/pkg/protocol"
	"github.com/sleng75/slimail/pkg/steps/schema"
)

const defaultTimeout = 10 * time.Second

var configSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"url":             map[string]any{"type": "string", "minLength": 1, "format": "uri"},
		"timeout_seconds": map[string]any{"type": "number", "minimum": 1, "maximum": 60},
		"payload":         map[string]any{"type": "object"},
	},
	"required": []any{"url"},
}

type Executor struct {
	caller protocol.WebhookCaller
}

func (e *Executor) Execute(ctx context.Context, stepCtx protocol.StepContext) (protocol.StepResult, error) {
	url, _ := stepCtx.Step.Config["url"].(string)

	timeout := defaultTimeout
	if seconds, ok := stepCtx.Step.Config["timeout_seconds"].(float64); ok {
		timeout = time.Duration(seconds * float64(time.Second))
	}

	payload := map[string]any{
		"workflow_id":   stepCtx.Workflow.ID,
		"enrollment_id": stepCtx.Enrollment.ID,
		"contact_id":    stepCtx.Contact.ID,
		"contact_email": stepCtx.Contact.Email,
		"step_id":       stepCtx.Step.ID,
	}

	if extra, ok := stepCtx.Step.Config["payload"].(map[string]any); ok {
		for key, value := range extra {
			payload[key] = value
		}
	}

	status, err := e.caller.PostJSON(ctx, url, payload, timeout)
	if err != nil {
		return protocol.StepResult{}, fmt.Errorf("webhook call failed: %w", err)
	}

	if status >= 400 {
		return protocol.StepResult{}, fmt.Errorf("webhook returned status %d", status)
	}

	stepCtx.Logger.Info("Webhook delivered", "url", url, "status", status)

	return protocol.StepResult{
		Branch: models.BranchNext,
		Output: map[string]any{"url": url, "status_code": status},
	}, nil
}

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Type() models.StepType {
	return models.StepTypeWebhook
}

func (f *Factory) ValidateConfig(config map[string]any) error {
	return schema.Validate(config, configSchema)
}

func (f *Factory) Create(deps protocol.Collaborators) (protocol.StepExecutor, error) {
	if deps.Webhooks == nil {
		return nil, errors.New("webhook step requires a webhook caller")
	}

	return &Executor{caller: deps.Webhooks}, nil
}
