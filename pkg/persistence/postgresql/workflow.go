package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sleng75/slimail/pkg/models"
	"github.com/sleng75/slimail/pkg/persistence"
)

const workflowColumns = `id, tenant_id, name, description, status, trigger_type,
	trigger_config, root_step_id, steps, allow_reentry, reentry_delay,
	exit_on_goal, goal, counters, created_at, updated_at`

// WorkflowRepository persists workflows with the step tree, trigger config,
// goal and counters held as JSONB documents.
type WorkflowRepository struct {
	db *sql.DB
}

func (r *WorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE deleted_at IS NULL ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}
	defer rows.Close()

	return scanWorkflows(rows)
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1 AND deleted_at IS NULL`

	workflow, err := scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, err
	}

	return workflow, nil
}

func (r *WorkflowRepository) GetByStatus(ctx context.Context, status models.WorkflowStatus) ([]*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE status = $1 AND deleted_at IS NULL ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows by status: %w", err)
	}
	defer rows.Close()

	return scanWorkflows(rows)
}

func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
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

	triggerConfig, err := json.Marshal(workflow.TriggerConfig)
	if err != nil {
		return fmt.Errorf("failed to encode trigger config: %w", err)
	}

	steps, err := json.Marshal(workflow.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode steps: %w", err)
	}

	goal, err := json.Marshal(workflow.Goal)
	if err != nil {
		return fmt.Errorf("failed to encode goal: %w", err)
	}

	counters, err := json.Marshal(workflow.Counters)
	if err != nil {
		return fmt.Errorf("failed to encode counters: %w", err)
	}

	query := `
		INSERT INTO workflows (id, tenant_id, name, description, status, trigger_type,
			trigger_config, root_step_id, steps, allow_reentry, reentry_delay,
			exit_on_goal, goal, counters, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			trigger_type = EXCLUDED.trigger_type,
			trigger_config = EXCLUDED.trigger_config,
			root_step_id = EXCLUDED.root_step_id,
			steps = EXCLUDED.steps,
			allow_reentry = EXCLUDED.allow_reentry,
			reentry_delay = EXCLUDED.reentry_delay,
			exit_on_goal = EXCLUDED.exit_on_goal,
			goal = EXCLUDED.goal,
			counters = EXCLUDED.counters,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		workflow.ID, workflow.TenantID, workflow.Name, workflow.Description,
		workflow.Status, workflow.TriggerType, triggerConfig, workflow.RootStepID,
		steps, workflow.AllowReentry, int64(workflow.ReentryDelay), workflow.ExitOnGoal,
		goal, counters, workflow.CreatedAt, workflow.UpdatedAt)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

// IncrementCounters adds the delta to the counters document in one UPDATE,
// so concurrent workers never lose increments to a read-modify-write race.
func (r *WorkflowRepository) IncrementCounters(ctx context.Context, id string, delta models.WorkflowCounters) error {
	query := `
		UPDATE workflows SET counters = jsonb_build_object(
			'total_enrolled', COALESCE((counters->>'total_enrolled')::BIGINT, 0) + $2,
			'active', GREATEST(COALESCE((counters->>'active')::BIGINT, 0) + $3, 0),
			'completed', COALESCE((counters->>'completed')::BIGINT, 0) + $4,
			'exited', COALESCE((counters->>'exited')::BIGINT, 0) + $5
		), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, id,
		delta.TotalEnrolled, delta.Active, delta.Completed, delta.Exited)
	if err != nil {
		return persistence.NewWorkflowError("IncrementCounters", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}

	if affected == 0 {
		return persistence.NewWorkflowError("IncrementCounters", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	query := `UPDATE workflows SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		workflow      models.Workflow
		triggerConfig []byte
		steps         []byte
		goal          []byte
		counters      []byte
		reentryDelay  int64
	)

	err := row.Scan(&workflow.ID, &workflow.TenantID, &workflow.Name,
		&workflow.Description, &workflow.Status, &workflow.TriggerType,
		&triggerConfig, &workflow.RootStepID, &steps, &workflow.AllowReentry,
		&reentryDelay, &workflow.ExitOnGoal, &goal, &counters,
		&workflow.CreatedAt, &workflow.UpdatedAt)
	if err != nil {
		return nil, err
	}

	workflow.ReentryDelay = time.Duration(reentryDelay)

	if len(triggerConfig) > 0 {
		if err := json.Unmarshal(triggerConfig, &workflow.TriggerConfig); err != nil {
			return nil, fmt.Errorf("failed to decode trigger config: %w", err)
		}
	}

	if err := json.Unmarshal(steps, &workflow.Steps); err != nil {
		return nil, fmt.Errorf("failed to decode steps: %w", err)
	}

	if len(goal) > 0 {
		if err := json.Unmarshal(goal, &workflow.Goal); err != nil {
			return nil, fmt.Errorf("failed to decode goal: %w", err)
		}
	}

	if len(counters) > 0 {
		if err := json.Unmarshal(counters, &workflow.Counters); err != nil {
			return nil, fmt.Errorf("failed to decode counters: %w", err)
		}
	}

	return &workflow, nil
}

func scanWorkflows(rows *sql.Rows) ([]*models.Workflow, error) {
	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate workflows: %w", err)
	}

	return workflows, nil
}
