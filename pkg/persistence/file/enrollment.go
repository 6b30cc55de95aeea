package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sleng75/slimail/pkg/models"
	"github.com/sleng75/slimail/pkg/persistence"
)

// EnrollmentRepository stores one JSON file per enrollment. The mutex makes
// claim/update sequences atomic within the process.
type EnrollmentRepository struct {
	dir string
	mu  sync.Mutex
}

func NewEnrollmentRepository(root string) *EnrollmentRepository {
	return &EnrollmentRepository{dir: filepath.Join(root, "enrollments")}
}

func (r *EnrollmentRepository) GetByID(_ context.Context, id string) (*models.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.getLocked(id)
}

func (r *EnrollmentRepository) getLocked(id string) (*models.Enrollment, error) {
	var enrollment models.Enrollment

	err := readJSON(r.path(id), &enrollment)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewEnrollmentError("GetByID", id, persistence.ErrEnrollmentNotFound)
		}

		return nil, err
	}

	return &enrollment, nil
}

func (r *EnrollmentRepository) FindByWorkflowAndContact(_ context.Context, workflowID, contactID string) ([]*models.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.listLocked()
	if err != nil {
		return nil, err
	}

	matched := make([]*models.Enrollment, 0)

	for _, enrollment := range all {
		if enrollment.WorkflowID == workflowID && enrollment.ContactID == contactID {
			matched = append(matched, enrollment)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].EnrolledAt.Before(matched[j].EnrolledAt)
	})

	return matched, nil
}

func (r *EnrollmentRepository) ListDue(_ context.Context, now time.Time, limit int) ([]*models.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.listLocked()
	if err != nil {
		return nil, err
	}

	due := make([]*models.Enrollment, 0)

	for _, enrollment := range all {
		if !isDue(enrollment, now) {
			continue
		}

		if enrollment.ClaimToken != nil && enrollment.ClaimExpiresAt != nil && enrollment.ClaimExpiresAt.After(now) {
			continue // someone else is working on it
		}

		due = append(due, enrollment)

		if limit > 0 && len(due) >= limit {
			break
		}
	}

	return due, nil
}

func isDue(enrollment *models.Enrollment, now time.Time) bool {
	switch enrollment.Status {
	case models.EnrollmentStatusActive:
		return true
	case models.EnrollmentStatusWaiting:
		return enrollment.NextActionAt != nil && !enrollment.NextActionAt.After(now)
	default:
		return false
	}
}

func (r *EnrollmentRepository) Create(_ context.Context, enrollment *models.Enrollment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if enrollment.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate enrollment ID: %w", err)
		}

		enrollment.ID = id.String()
	}

	return writeJSON(r.path(enrollment.ID), enrollment)
}

func (r *EnrollmentRepository) Claim(_ context.Context, id, token string, ttl time.Duration) (*models.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	enrollment, err := r.getLocked(id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	if enrollment.ClaimToken != nil && enrollment.ClaimExpiresAt != nil && enrollment.ClaimExpiresAt.After(now) {
		return nil, persistence.NewEnrollmentError("Claim", id, persistence.ErrClaimConflict)
	}

	expires := now.Add(ttl)
	enrollment.ClaimToken = &token
	enrollment.ClaimExpiresAt = &expires

	if err := writeJSON(r.path(id), enrollment); err != nil {
		return nil, err
	}

	return enrollment, nil
}

func (r *EnrollmentRepository) UpdateClaimed(_ context.Context, enrollment *models.Enrollment, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.getLocked(enrollment.ID)
	if err != nil {
		return err
	}

	if stored.ClaimToken == nil || *stored.ClaimToken != token {
		return persistence.NewEnrollmentError("UpdateClaimed", enrollment.ID, persistence.ErrClaimConflict)
	}

	enrollment.ClaimToken = nil
	enrollment.ClaimExpiresAt = nil

	return writeJSON(r.path(enrollment.ID), enrollment)
}

func (r *EnrollmentRepository) RequestStop(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	enrollment, err := r.getLocked(id)
	if err != nil {
		return err
	}

	enrollment.StopRequested = true

	return writeJSON(r.path(id), enrollment)
}

func (r *EnrollmentRepository) listLocked() ([]*models.Enrollment, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*models.Enrollment{}, nil
		}

		return nil, fmt.Errorf("failed to read enrollments directory: %w", err)
	}

	enrollments := make([]*models.Enrollment, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		var enrollment models.Enrollment
		if err := readJSON(filepath.Join(r.dir, entry.Name()), &enrollment); err != nil {
			return nil, err
		}

		enrollments = append(enrollments, &enrollment)
	}

	sort.Slice(enrollments, func(i, j int) bool {
		return enrollments[i].EnrolledAt.Before(enrollments[j].EnrolledAt)
	})

	return enrollments, nil
}

func (r *EnrollmentRepository) path(id string) string {
	return filepath.Join(r.dir, id+".json")
}
