package postgresql

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sleng75/slimail/pkg/models"
	"github.com/sleng75/slimail/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestPersistence connects to the database named in TEST_DATABASE_URL and
// skips the test when it is unset.
func newTestPersistence(t *testing.T) *Persistence {
	t.Helper()

	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	persist, err := NewPersistence(context.Background(), logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = persist.Close(context.Background())
	})

	return persist
}

func TestWorkflowRoundTrip(t *testing.T) {
	ctx := context.Background()
	persist := newTestPersistence(t)
	repo := persist.WorkflowRepository()

	root := "tag1"
	workflow := &models.Workflow{
		TenantID:    "tenant-" + uuid.NewString(),
		Name:        "Postgres round trip",
		Status:      models.WorkflowStatusDraft,
		TriggerType: models.TriggerTypeManual,
		RootStepID:  &root,
		Steps: map[string]*models.StepNode{
			"tag1": {ID: "tag1", Type: models.StepTypeAddTag, Config: map[string]any{"tag_id": "x"}},
		},
		ReentryDelay: 48 * time.Hour,
	}

	require.NoError(t, repo.Save(ctx, workflow))
	require.NotEmpty(t, workflow.ID)

	stored, err := repo.GetByID(ctx, workflow.ID)
	require.NoError(t, err)

	assert.Equal(t, workflow.Name, stored.Name)
	assert.Equal(t, 48*time.Hour, stored.ReentryDelay)
	require.Contains(t, stored.Steps, "tag1")
	assert.Equal(t, models.StepTypeAddTag, stored.Steps["tag1"].Type)

	require.NoError(t, repo.Delete(ctx, workflow.ID))

	_, err = repo.GetByID(ctx, workflow.ID)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestIncrementCounters(t *testing.T) {
	ctx := context.Background()
	persist := newTestPersistence(t)
	repo := persist.WorkflowRepository()

	workflow := &models.Workflow{
		TenantID:    "tenant-" + uuid.NewString(),
		Name:        "Counter deltas",
		Status:      models.WorkflowStatusActive,
		TriggerType: models.TriggerTypeManual,
	}
	require.NoError(t, repo.Save(ctx, workflow))

	require.NoError(t, repo.IncrementCounters(ctx, workflow.ID, models.WorkflowCounters{TotalEnrolled: 1, Active: 1}))
	require.NoError(t, repo.IncrementCounters(ctx, workflow.ID, models.WorkflowCounters{Active: -1, Completed: 1}))

	stored, err := repo.GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Counters.TotalEnrolled)
	assert.Zero(t, stored.Counters.Active)
	assert.Equal(t, 1, stored.Counters.Completed)

	err = repo.IncrementCounters(ctx, uuid.NewString(), models.WorkflowCounters{Active: 1})
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestEnrollmentClaimCycle(t *testing.T) {
	ctx := context.Background()
	persist := newTestPersistence(t)
	repo := persist.EnrollmentRepository()

	enrollment := &models.Enrollment{
		WorkflowID: uuid.NewString(),
		ContactID:  uuid.NewString(),
		Status:     models.EnrollmentStatusActive,
		EnrolledAt: time.Now().UTC(),
	}
	require.NoError(t, repo.Create(ctx, enrollment))

	claimed, err := repo.Claim(ctx, enrollment.ID, "token-a", 5*time.Minute)
	require.NoError(t, err)

	_, err = repo.Claim(ctx, enrollment.ID, "token-b", 5*time.Minute)
	require.Error(t, err)
	assert.True(t, persistence.IsClaimConflict(err))

	require.NoError(t, claimed.Complete(time.Now().UTC()))

	err = repo.UpdateClaimed(ctx, claimed, "token-b")
	require.Error(t, err)
	assert.True(t, persistence.IsClaimConflict(err))

	require.NoError(t, repo.UpdateClaimed(ctx, claimed, "token-a"))

	stored, err := repo.GetByID(ctx, enrollment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCompleted, stored.Status)
	assert.Nil(t, stored.ClaimToken)
}

func TestListDueSkipsClaimed(t *testing.T) {
	ctx := context.Background()
	persist := newTestPersistence(t)
	repo := persist.EnrollmentRepository()

	enrollment := &models.Enrollment{
		WorkflowID: uuid.NewString(),
		ContactID:  uuid.NewString(),
		Status:     models.EnrollmentStatusActive,
		EnrolledAt: time.Now().UTC(),
	}
	require.NoError(t, repo.Create(ctx, enrollment))

	_, err := repo.Claim(ctx, enrollment.ID, "held", 5*time.Minute)
	require.NoError(t, err)

	due, err := repo.ListDue(ctx, time.Now().UTC(), 0)
	require.NoError(t, err)

	for _, candidate := range due {
		assert.NotEqual(t, enrollment.ID, candidate.ID)
	}
}
