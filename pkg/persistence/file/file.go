// Package file provides a JSON-file persistence implementation, used for
// development and tests. Claim atomicity is process-local (mutex-guarded);
// multi-process deployments use the postgresql implementation.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sleng75/slimail/pkg/persistence"
)

// Persistence implements persistence.Persistence on top of a directory tree:
// workflows/<id>.json, enrollments/<id>.json, activity/<enrollment_id>.json.
type Persistence struct {
	root           string
	workflowRepo   *WorkflowRepository
	enrollmentRepo *EnrollmentRepository
	activityRepo   *ActivityLogRepository
}

// NewPersistence creates a file persistence rooted at the given directory,
// accepting both plain paths and file:// URLs.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:           cleanRoot,
		workflowRepo:   NewWorkflowRepository(cleanRoot),
		enrollmentRepo: NewEnrollmentRepository(cleanRoot),
		activityRepo:   NewActivityLogRepository(cleanRoot),
	}
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

func (fp *Persistence) EnrollmentRepository() persistence.EnrollmentRepository {
	return fp.enrollmentRepo
}

func (fp *Persistence) ActivityLogRepository() persistence.ActivityLogRepository {
	return fp.activityRepo
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. Nothing to do for files.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// readJSON loads a JSON document, reporting os.ErrNotExist for missing files.
func readJSON(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}

	return nil
}

// writeJSON persists a JSON document, creating the parent directory.
func writeJSON(path string, value any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}
