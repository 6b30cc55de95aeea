package sendemail

import (
	"errors"

	"github.com/sleng75/slimail/pkg/models"
	"github.com/sleng75/slimail/pkg/protocol"
	"github.com/sleng75/slimail/pkg/steps/schema"
)

var configSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"subject":   map[string]any{"type": "string", "minLength": 1},
		"html_body": map[string]any{"type": "string"},
	},
	"required": []any{"subject", "html_body"},
}

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Type() models.StepType {
	return models.StepTypeSendEmail
}

func (f *Factory) ValidateConfig(config map[string]any) error {
	return schema.Validate(config, configSchema)
}

func (f *Factory) Create(deps protocol.Collaborators) (protocol.StepExecutor, error) {
	if deps.Email == nil {
		return nil, errors.New("send_email step requires an email sender")
	}

	return &Executor{sender: deps.Email}, nil
}
