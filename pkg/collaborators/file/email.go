package file

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/sleng75/slimail/pkg/models"
)

// LogEmailSender records sends in the log instead of delivering anything.
// Development and test use only.
type LogEmailSender struct {
	logger *slog.Logger
}

func NewLogEmailSender(logger *slog.Logger) *LogEmailSender {
	return &LogEmailSender{logger: logger.With("module", "log_email_sender")}
}

func (s *LogEmailSender) Send(ctx context.Context, contact *models.ContactSnapshot, subject, htmlBody string) (string, error) {
	messageID := uuid.New().String()

	s.logger.InfoContext(ctx, "Email send (not delivered)",
		"message_id", messageID,
		"to", contact.Email,
		"subject", subject,
		"body_bytes", len(htmlBody))

	return messageID, nil
}
