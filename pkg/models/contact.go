package models

import "time"

// ContactStatus mirrors the subscription state maintained by the surrounding
// application. The engine only ever reads it.
type ContactStatus string

const (
	ContactStatusSubscribed   ContactStatus = "subscribed"
	ContactStatusUnsubscribed ContactStatus = "unsubscribed"
	ContactStatusBounced      ContactStatus = "bounced"
)

// ContactSnapshot is a read-only view of a contact at evaluation time,
// provided by the contact snapshot collaborator.
type ContactSnapshot struct {
	ID           string          `json:"id"`
	Email        string          `json:"email"`
	Status       ContactStatus   `json:"status"`
	Attributes   map[string]any  `json:"attributes,omitempty"`
	CustomFields map[string]any  `json:"custom_fields,omitempty"`
	Tags         map[string]bool `json:"tags,omitempty"`
	Lists        map[string]bool `json:"lists,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// HasTag reports tag membership.
func (c *ContactSnapshot) HasTag(tagID string) bool {
	return c.Tags[tagID]
}

// InList reports list membership.
func (c *ContactSnapshot) InList(listID string) bool {
	return c.Lists[listID]
}
