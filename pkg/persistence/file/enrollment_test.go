package file

import (
	"context"
	"testing"
	"time"

	"github.com/sleng75/slimail/pkg/models"
	"github.com/sleng75/slimail/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string {
	return &s
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func TestClaimBlocksSecondWorker(t *testing.T) {
	ctx := context.Background()
	repo := NewEnrollmentRepository(t.TempDir())

	require.NoError(t, repo.Create(ctx, &models.Enrollment{
		ID:         "e1",
		WorkflowID: "w1",
		ContactID:  "c1",
		Status:     models.EnrollmentStatusActive,
	}))

	claimed, err := repo.Claim(ctx, "e1", "token-a", 5*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claimed.ClaimToken)
	assert.Equal(t, "token-a", *claimed.ClaimToken)

	_, err = repo.Claim(ctx, "e1", "token-b", 5*time.Minute)
	require.Error(t, err)
	assert.True(t, persistence.IsClaimConflict(err))
}

func TestClaimReclaimsAfterExpiry(t *testing.T) {
	ctx := context.Background()
	repo := NewEnrollmentRepository(t.TempDir())

	expired := time.Now().UTC().Add(-time.Minute)

	require.NoError(t, repo.Create(ctx, &models.Enrollment{
		ID:             "e1",
		WorkflowID:     "w1",
		ContactID:      "c1",
		Status:         models.EnrollmentStatusActive,
		ClaimToken:     strPtr("stale-token"),
		ClaimExpiresAt: &expired,
	}))

	claimed, err := repo.Claim(ctx, "e1", "fresh-token", 5*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claimed.ClaimToken)
	assert.Equal(t, "fresh-token", *claimed.ClaimToken)
}

func TestClaimMissingEnrollment(t *testing.T) {
	repo := NewEnrollmentRepository(t.TempDir())

	_, err := repo.Claim(context.Background(), "nope", "token", time.Minute)
	require.Error(t, err)
	assert.True(t, persistence.IsEnrollmentNotFound(err))
}

func TestUpdateClaimedRejectsWrongToken(t *testing.T) {
	ctx := context.Background()
	repo := NewEnrollmentRepository(t.TempDir())

	require.NoError(t, repo.Create(ctx, &models.Enrollment{
		ID:         "e1",
		WorkflowID: "w1",
		ContactID:  "c1",
		Status:     models.EnrollmentStatusActive,
	}))

	claimed, err := repo.Claim(ctx, "e1", "token-a", 5*time.Minute)
	require.NoError(t, err)

	err = repo.UpdateClaimed(ctx, claimed, "token-b")
	require.Error(t, err)
	assert.True(t, persistence.IsClaimConflict(err))

	// the right token wins and clears the claim
	require.NoError(t, repo.UpdateClaimed(ctx, claimed, "token-a"))

	stored, err := repo.GetByID(ctx, "e1")
	require.NoError(t, err)
	assert.Nil(t, stored.ClaimToken)
	assert.Nil(t, stored.ClaimExpiresAt)
}

func TestListDueSemantics(t *testing.T) {
	ctx := context.Background()
	repo := NewEnrollmentRepository(t.TempDir())
	now := time.Now().UTC()

	enrollments := []*models.Enrollment{
		{ID: "active", WorkflowID: "w1", ContactID: "c1", Status: models.EnrollmentStatusActive},
		{ID: "waiting-due", WorkflowID: "w1", ContactID: "c2", Status: models.EnrollmentStatusWaiting, NextActionAt: timePtr(now.Add(-time.Minute))},
		{ID: "waiting-later", WorkflowID: "w1", ContactID: "c3", Status: models.EnrollmentStatusWaiting, NextActionAt: timePtr(now.Add(time.Hour))},
		{ID: "completed", WorkflowID: "w1", ContactID: "c4", Status: models.EnrollmentStatusCompleted},
		{
			ID: "claimed", WorkflowID: "w1", ContactID: "c5", Status: models.EnrollmentStatusActive,
			ClaimToken: strPtr("held"), ClaimExpiresAt: timePtr(now.Add(time.Minute)),
		},
	}

	for _, enrollment := range enrollments {
		require.NoError(t, repo.Create(ctx, enrollment))
	}

	due, err := repo.ListDue(ctx, now, 0)
	require.NoError(t, err)

	dueIDs := make(map[string]bool, len(due))
	for _, enrollment := range due {
		dueIDs[enrollment.ID] = true
	}

	assert.True(t, dueIDs["active"])
	assert.True(t, dueIDs["waiting-due"])
	assert.False(t, dueIDs["waiting-later"])
	assert.False(t, dueIDs["completed"])
	assert.False(t, dueIDs["claimed"])
}

func TestListDueHonorsLimit(t *testing.T) {
	ctx := context.Background()
	repo := NewEnrollmentRepository(t.TempDir())

	for _, id := range []string{"e1", "e2", "e3"} {
		require.NoError(t, repo.Create(ctx, &models.Enrollment{
			ID:         id,
			WorkflowID: "w1",
			ContactID:  id,
			Status:     models.EnrollmentStatusActive,
		}))
	}

	due, err := repo.ListDue(ctx, time.Now().UTC(), 2)
	require.NoError(t, err)
	assert.Len(t, due, 2)
}

func TestRequestStopFlagsEnrollment(t *testing.T) {
	ctx := context.Background()
	repo := NewEnrollmentRepository(t.TempDir())

	require.NoError(t, repo.Create(ctx, &models.Enrollment{
		ID:         "e1",
		WorkflowID: "w1",
		ContactID:  "c1",
		Status:     models.EnrollmentStatusWaiting,
	}))

	require.NoError(t, repo.RequestStop(ctx, "e1"))

	stored, err := repo.GetByID(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, stored.StopRequested)

	err = repo.RequestStop(ctx, "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsEnrollmentNotFound(err))
}

func TestCreateGeneratesID(t *testing.T) {
	ctx := context.Background()
	repo := NewEnrollmentRepository(t.TempDir())

	enrollment := &models.Enrollment{WorkflowID: "w1", ContactID: "c1", Status: models.EnrollmentStatusActive}
	require.NoError(t, repo.Create(ctx, enrollment))
	assert.NotEmpty(t, enrollment.ID)
}
