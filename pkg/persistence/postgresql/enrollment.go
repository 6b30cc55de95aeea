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

const enrollmentColumns = `id, workflow_id, contact_id, status, current_step_id,
	enrolled_at, next_action_at, ended_at, exit_reason, retry_count,
	stop_requested, source, history, claim_token, claim_expires_at`

// EnrollmentRepository persists enrollments. The claim is a conditional
// UPDATE, so concurrent engine processes never pick up the same enrollment.
type EnrollmentRepository struct {
	db *sql.DB
}

func (r *EnrollmentRepository) GetByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`

	enrollment, err := scanEnrollment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEnrollmentError("GetByID", id, persistence.ErrEnrollmentNotFound)
		}

		return nil, err
	}

	return enrollment, nil
}

func (r *EnrollmentRepository) FindByWorkflowAndContact(ctx context.Context, workflowID, contactID string) ([]*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments
		WHERE workflow_id = $1 AND contact_id = $2 ORDER BY enrolled_at`

	rows, err := r.db.QueryContext(ctx, query, workflowID, contactID)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrollments: %w", err)
	}
	defer rows.Close()

	return scanEnrollments(rows)
}

func (r *EnrollmentRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments
		WHERE (status = 'active' OR (status = 'waiting' AND next_action_at <= $1))
		AND (claim_token IS NULL OR claim_expires_at <= $1)
		ORDER BY next_action_at NULLS FIRST`

	args := []any{now}

	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query due enrollments: %w", err)
	}
	defer rows.Close()

	return scanEnrollments(rows)
}

func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate enrollment ID: %w", err)
		}

		enrollment.ID = id.String()
	}

	history, err := json.Marshal(enrollment.History)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	query := `
		INSERT INTO enrollments (id, workflow_id, contact_id, status, current_step_id,
			enrolled_at, next_action_at, ended_at, exit_reason, retry_count,
			stop_requested, source, history)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = r.db.ExecContext(ctx, query,
		enrollment.ID, enrollment.WorkflowID, enrollment.ContactID,
		enrollment.Status, enrollment.CurrentStepID, enrollment.EnrolledAt,
		enrollment.NextActionAt, enrollment.EndedAt, enrollment.ExitReason,
		enrollment.RetryCount, enrollment.StopRequested, enrollment.Source, history)
	if err != nil {
		return persistence.NewEnrollmentError("Create", enrollment.ID, err)
	}

	return nil
}

// Claim takes exclusive ownership of the enrollment for the TTL window. It
// succeeds only when no other live claim exists.
func (r *EnrollmentRepository) Claim(ctx context.Context, id, token string, ttl time.Duration) (*models.Enrollment, error) {
	now := time.Now().UTC()

	query := `
		UPDATE enrollments SET claim_token = $2, claim_expires_at = $3
		WHERE id = $1 AND (claim_token IS NULL OR claim_expires_at <= $4)
		RETURNING ` + enrollmentColumns

	enrollment, err := scanEnrollment(r.db.QueryRowContext(ctx, query, id, token, now.Add(ttl), now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// either the row is missing or someone else holds the claim
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return nil, getErr
			}

			return nil, persistence.NewEnrollmentError("Claim", id, persistence.ErrClaimConflict)
		}

		return nil, err
	}

	return enrollment, nil
}

// UpdateClaimed writes back the mutated enrollment and releases the claim,
// provided the caller still holds it.
func (r *EnrollmentRepository) UpdateClaimed(ctx context.Context, enrollment *models.Enrollment, token string) error {
	history, err := json.Marshal(enrollment.History)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	query := `
		UPDATE enrollments SET status = $2, current_step_id = $3, next_action_at = $4,
			ended_at = $5, exit_reason = $6, retry_count = $7, stop_requested = $8,
			history = $9, claim_token = NULL, claim_expires_at = NULL
		WHERE id = $1 AND claim_token = $10
	`

	result, err := r.db.ExecContext(ctx, query,
		enrollment.ID, enrollment.Status, enrollment.CurrentStepID,
		enrollment.NextActionAt, enrollment.EndedAt, enrollment.ExitReason,
		enrollment.RetryCount, enrollment.StopRequested, history, token)
	if err != nil {
		return persistence.NewEnrollmentError("UpdateClaimed", enrollment.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}

	if affected == 0 {
		return persistence.NewEnrollmentError("UpdateClaimed", enrollment.ID, persistence.ErrClaimConflict)
	}

	enrollment.ClaimToken = nil
	enrollment.ClaimExpiresAt = nil

	return nil
}

func (r *EnrollmentRepository) RequestStop(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE enrollments SET stop_requested = TRUE WHERE id = $1`, id)
	if err != nil {
		return persistence.NewEnrollmentError("RequestStop", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}

	if affected == 0 {
		return persistence.NewEnrollmentError("RequestStop", id, persistence.ErrEnrollmentNotFound)
	}

	return nil
}

func scanEnrollment(row rowScanner) (*models.Enrollment, error) {
	var (
		enrollment models.Enrollment
		history    []byte
	)

	err := row.Scan(&enrollment.ID, &enrollment.WorkflowID, &enrollment.ContactID,
		&enrollment.Status, &enrollment.CurrentStepID, &enrollment.EnrolledAt,
		&enrollment.NextActionAt, &enrollment.EndedAt, &enrollment.ExitReason,
		&enrollment.RetryCount, &enrollment.StopRequested, &enrollment.Source,
		&history, &enrollment.ClaimToken, &enrollment.ClaimExpiresAt)
	if err != nil {
		return nil, err
	}

	if len(history) > 0 {
		if err := json.Unmarshal(history, &enrollment.History); err != nil {
			return nil, fmt.Errorf("failed to decode history: %w", err)
		}
	}

	return &enrollment, nil
}

func scanEnrollments(rows *sql.Rows) ([]*models.Enrollment, error) {
	enrollments := make([]*models.Enrollment, 0)

	for rows.Next() {
		enrollment, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}

		enrollments = append(enrollments, enrollment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate enrollments: %w", err)
	}

	return enrollments, nil
}
