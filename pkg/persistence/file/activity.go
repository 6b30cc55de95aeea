package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sleng75/slimail/pkg/models"
)

// ActivityLogRepository appends entries to one JSON file per enrollment.
type ActivityLogRepository struct {
	dir string
	mu  sync.Mutex
}

func NewActivityLogRepository(root string) *ActivityLogRepository {
	return &ActivityLogRepository{dir: filepath.Join(root, "activity")}
}

func (r *ActivityLogRepository) Append(_ context.Context, entry *models.ActivityLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate activity log ID: %w", err)
		}

		entry.ID = id.String()
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	entries, err := r.readLocked(entry.EnrollmentID)
	if err != nil {
		return err
	}

	entries = append(entries, entry)

	return writeJSON(r.path(entry.EnrollmentID), entries)
}

func (r *ActivityLogRepository) ListByEnrollment(_ context.Context, enrollmentID string) ([]*models.ActivityLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.readLocked(enrollmentID)
}

func (r *ActivityLogRepository) readLocked(enrollmentID string) ([]*models.ActivityLogEntry, error) {
	var entries []*models.ActivityLogEntry

	err := readJSON(r.path(enrollmentID), &entries)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*models.ActivityLogEntry{}, nil
		}

		return nil, err
	}

	return entries, nil
}

func (r *ActivityLogRepository) path(enrollmentID string) string {
	return filepath.Join(r.dir, enrollmentID+".json")
}
