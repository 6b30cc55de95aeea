// Package persistence provides the storage abstraction for workflows,
// enrollments and activity log entries.
package persistence

import (
	"context"
	"time"

	"github.com/sleng75/slimail/pkg/models"
)

// WorkflowRepository stores workflow definitions with their step trees.
type WorkflowRepository interface {
	GetAll(ctx context.Context) ([]*models.Workflow, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	GetByStatus(ctx context.Context, status models.WorkflowStatus) ([]*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error // soft delete

	// IncrementCounters applies the delta to the stored counters in one
	// atomic write, so concurrent workers never lose increments. The active
	// counter is floored at zero.
	IncrementCounters(ctx context.Context, id string, delta models.WorkflowCounters) error
}

// EnrollmentRepository stores per-contact enrollments. All mutation of a
// claimed enrollment goes through UpdateClaimed with the claim token; no
// other write path touches a live enrollment's state.
type EnrollmentRepository interface {
	GetByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindByWorkflowAndContact(ctx context.Context, workflowID, contactID string) ([]*models.Enrollment, error)

	// ListDue returns enrollments that are active, or waiting with
	// next_action_at in the past, excluding those under an unexpired claim.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Enrollment, error)

	Create(ctx context.Context, enrollment *models.Enrollment) error

	// Claim atomically marks an enrollment in-flight for one worker. It
	// fails with ErrClaimConflict when another worker holds an unexpired
	// claim, and with ErrEnrollmentNotFound for unknown ids. An expired
	// claim is treated as abandoned and taken over.
	Claim(ctx context.Context, id, token string, ttl time.Duration) (*models.Enrollment, error)

	// UpdateClaimed persists the enrollment and releases the claim. It fails
	// with ErrClaimConflict when the token no longer matches.
	UpdateClaimed(ctx context.Context, enrollment *models.Enrollment, token string) error

	// RequestStop flags the enrollment for exit at its next tick. It never
	// mutates enrollment state directly.
	RequestStop(ctx context.Context, id string) error
}

// ActivityLogRepository is the append-only audit store.
type ActivityLogRepository interface {
	Append(ctx context.Context, entry *models.ActivityLogEntry) error
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]*models.ActivityLogEntry, error)
}

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	EnrollmentRepository() EnrollmentRepository
	ActivityLogRepository() ActivityLogRepository
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
