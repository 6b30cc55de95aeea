package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sleng75/slimail/pkg/models"
)

// ActivityLogRepository persists the append-only audit log.
type ActivityLogRepository struct {
	db *sql.DB
}

func (r *ActivityLogRepository) Append(ctx context.Context, entry *models.ActivityLogEntry) error {
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

	data, err := json.Marshal(entry.Data)
	if err != nil {
		return fmt.Errorf("failed to encode activity data: %w", err)
	}

	query := `
		INSERT INTO activity_log (id, enrollment_id, step_id, action, status, message, data, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.ExecContext(ctx, query, entry.ID, entry.EnrollmentID,
		entry.StepID, entry.Action, entry.Status, entry.Message, data, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert activity log entry: %w", err)
	}

	return nil
}

func (r *ActivityLogRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]*models.ActivityLogEntry, error) {
	query := `SELECT id, enrollment_id, step_id, action, status, message, data, timestamp
		FROM activity_log WHERE enrollment_id = $1 ORDER BY timestamp, id`

	rows, err := r.db.QueryContext(ctx, query, enrollmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity log: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.ActivityLogEntry, 0)

	for rows.Next() {
		var (
			entry models.ActivityLogEntry
			data  []byte
		)

		err := rows.Scan(&entry.ID, &entry.EnrollmentID, &entry.StepID,
			&entry.Action, &entry.Status, &entry.Message, &data, &entry.Timestamp)
		if err != nil {
			return nil, err
		}

		if len(data) > 0 {
			if err := json.Unmarshal(data, &entry.Data); err != nil {
				return nil, fmt.Errorf("failed to decode activity data: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activity log: %w", err)
	}

	return entries, nil
}
