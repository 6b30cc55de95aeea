// Package postgresql provides the production persistence implementation.
// Claim handoff is a conditional UPDATE, so any number of engine processes
// can share one database without double-processing enrollments.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/sleng75/slimail/pkg/persistence"
	"github.com/sleng75/slimail/pkg/persistence/sqlbase"
)

// Persistence implements persistence.Persistence backed by PostgreSQL.
type Persistence struct {
	db             *sql.DB
	logger         *slog.Logger
	workflowRepo   *WorkflowRepository
	enrollmentRepo *EnrollmentRepository
	activityRepo   *ActivityLogRepository
}

// NewPersistence creates a PostgreSQL persistence, connecting to the given
// database URL and running pending migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	p := &Persistence{
		db:             db,
		logger:         logger.With("module", "postgresql"),
		workflowRepo:   &WorkflowRepository{db: db},
		enrollmentRepo: &EnrollmentRepository{db: db},
		activityRepo:   &ActivityLogRepository{db: db},
	}

	manager := sqlbase.NewMigrationManager(p.logger, db, migrations)
	if err := manager.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return p, nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) EnrollmentRepository() persistence.EnrollmentRepository {
	return p.enrollmentRepo
}

func (p *Persistence) ActivityLogRepository() persistence.ActivityLogRepository {
	return p.activityRepo
}

// HealthCheck verifies the database connection is alive.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	return p.db.Close()
}
