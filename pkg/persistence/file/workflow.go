package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sleng75/slimail/pkg/models"
	"github.com/sleng75/slimail/pkg/persistence"
)

// WorkflowRepository stores one JSON file per workflow.
type WorkflowRepository struct {
	dir string
	mu  sync.RWMutex
}

func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{dir: filepath.Join(root, "workflows")}
}

func (r *WorkflowRepository) GetAll(_ context.Context) ([]*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*models.Workflow{}, nil
		}

		return nil, fmt.Errorf("failed to read workflows directory: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		var workflow models.Workflow
		if err := readJSON(filepath.Join(r.dir, entry.Name()), &workflow); err != nil {
			return nil, err
		}

		if workflow.DeletedAt != nil {
			continue
		}

		workflows = append(workflows, &workflow)
	}

	return workflows, nil
}

func (r *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.getLocked(id)
}

func (r *WorkflowRepository) getLocked(id string) (*models.Workflow, error) {
	var workflow models.Workflow

	err := readJSON(r.path(id), &workflow)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, err
	}

	if workflow.DeletedAt != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	return &workflow, nil
}

func (r *WorkflowRepository) GetByStatus(ctx context.Context, status models.WorkflowStatus) ([]*models.Workflow, error) {
	all, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.Workflow, 0, len(all))

	for _, workflow := range all {
		if workflow.Status == status {
			filtered = append(filtered, workflow)
		}
	}

	return filtered, nil
}

func (r *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	return writeJSON(r.path(workflow.ID), workflow)
}

func (r *WorkflowRepository) IncrementCounters(_ context.Context, id string, delta models.WorkflowCounters) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	workflow, err := r.getLocked(id)
	if err != nil {
		return err
	}

	workflow.Counters.TotalEnrolled += delta.TotalEnrolled
	workflow.Counters.Active += delta.Active
	workflow.Counters.Completed += delta.Completed
	workflow.Counters.Exited += delta.Exited

	if workflow.Counters.Active < 0 {
		workflow.Counters.Active = 0
	}

	workflow.UpdatedAt = time.Now().UTC()

	return writeJSON(r.path(id), workflow)
}

func (r *WorkflowRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	workflow, err := r.getLocked(id)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return nil // already gone, not an error
		}

		return err
	}

	now := time.Now().UTC()
	workflow.DeletedAt = &now

	return writeJSON(r.path(id), workflow)
}

func (r *WorkflowRepository) path(id string) string {
	return filepath.Join(r.dir, id+".json")
}
