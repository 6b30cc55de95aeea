package protocol

import (
	"context"
	"time"

	"github.com/sleng75/slimail/pkg/models"
)

// ContactProvider supplies read-only contact snapshots.
type ContactProvider interface {
	GetContact(ctx context.Context, contactID string) (*models.ContactSnapshot, error)
}

// EmailSender delivers a single message. Template variables are substituted
// by the caller; the engine never renders HTML.
type EmailSender interface {
	Send(ctx context.Context, contact *models.ContactSnapshot, subject, htmlBody string) (messageID string, err error)
}

// ContactMutator applies tag and list changes. Mutations are
// at-least-once-idempotent: adding an existing tag is a no-op.
type ContactMutator interface {
	AddTag(ctx context.Context, contactID, tagID string) error
	RemoveTag(ctx context.Context, contactID, tagID string) error
	AddToList(ctx context.Context, contactID, listID string) error
	RemoveFromList(ctx context.Context, contactID, listID string) error
}

// WebhookCaller posts a JSON payload with an explicit timeout.
type WebhookCaller interface {
	PostJSON(ctx context.Context, url string, payload map[string]any, timeout time.Duration) (statusCode int, err error)
}

// AuditSink is the append-only writer for activity log entries.
type AuditSink interface {
	Append(ctx context.Context, entry *models.ActivityLogEntry) error
}

// Collaborators bundles the external capabilities injected into the engine.
type Collaborators struct {
	Contacts ContactProvider
	Email    EmailSender
	Mutator  ContactMutator
	Webhooks WebhookCaller
	Audit    AuditSink
}
