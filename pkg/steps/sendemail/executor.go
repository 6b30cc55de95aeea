// Package sendemail implements the send_email step.
package sendemail

import (
	"context"
	"fmt"

	"github.com/sleng75/slimail/pkg/models"
	"github.com/sleng75/slimail/pkg/protocol"
)

// Executor sends one email to the enrolled contact through the email sender
// collaborator. Subject and body arrive with template variables already
// substituted; the engine does no rendering.
type Executor struct {
	sender protocol.EmailSender
}

func (e *Executor) Execute(ctx context.Context, stepCtx protocol.StepContext) (protocol.StepResult, error) {
	subject, _ := stepCtx.Step.Config["subject"].(string)
	htmlBody, _ := stepCtx.Step.Config["html_body"].(string)

	messageID, err := e.sender.Send(ctx, stepCtx.Contact, subject, htmlBody)
	if err != nil {
		return protocol.StepResult{}, fmt.Errorf("email send failed: %w", err)
	}

	stepCtx.Logger.Info("Email sent",
		"contact_id", stepCtx.Contact.ID,
		"message_id", messageID)

	return protocol.StepResult{
		Branch: models.BranchNext,
		Output: map[string]any{
			"message_id": messageID,
			"subject":    subject,
		},
	}, nil
}
