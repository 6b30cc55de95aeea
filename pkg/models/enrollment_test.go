package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrollmentTerminalGuards(t *testing.T) {
	now := time.Now().UTC()

	terminalize := map[string]func(e *Enrollment) error{
		"completed": func(e *Enrollment) error { return e.Complete(now) },
		"exited":    func(e *Enrollment) error { return e.Exit(ExitReasonManual, now) },
		"failed":    func(e *Enrollment) error { return e.Fail(now) },
	}

	for name, makeTerminal := range terminalize {
		t.Run(name, func(t *testing.T) {
			enrollment := &Enrollment{ID: "e1", Status: EnrollmentStatusActive}
			require.NoError(t, makeTerminal(enrollment))
			require.True(t, enrollment.IsTerminal())

			assert.ErrorIs(t, enrollment.AdvanceTo("step", now), ErrTerminalState)
			assert.ErrorIs(t, enrollment.WaitUntil(now.Add(time.Hour)), ErrTerminalState)
			assert.ErrorIs(t, enrollment.Complete(now), ErrTerminalState)
			assert.ErrorIs(t, enrollment.Exit(ExitReasonManual, now), ErrTerminalState)
			assert.ErrorIs(t, enrollment.Fail(now), ErrTerminalState)
		})
	}
}

func TestCompleteClearsStepAndSchedule(t *testing.T) {
	now := time.Now().UTC()
	stepID := "s1"
	enrollment := &Enrollment{
		Status:        EnrollmentStatusActive,
		CurrentStepID: &stepID,
		NextActionAt:  &now,
	}

	require.NoError(t, enrollment.Complete(now))

	assert.Equal(t, EnrollmentStatusCompleted, enrollment.Status)
	assert.Nil(t, enrollment.CurrentStepID)
	assert.Nil(t, enrollment.NextActionAt)
	require.NotNil(t, enrollment.EndedAt)
}

func TestExitRecordsReason(t *testing.T) {
	now := time.Now().UTC()
	stepID := "s1"
	enrollment := &Enrollment{
		Status:        EnrollmentStatusWaiting,
		CurrentStepID: &stepID,
	}

	require.NoError(t, enrollment.Exit(ExitReasonGoalMet, now))

	assert.Equal(t, EnrollmentStatusExited, enrollment.Status)
	assert.Nil(t, enrollment.CurrentStepID)
	require.NotNil(t, enrollment.ExitReason)
	assert.Equal(t, ExitReasonGoalMet, *enrollment.ExitReason)
}

func TestFailKeepsCurrentStepForDiagnosis(t *testing.T) {
	now := time.Now().UTC()
	stepID := "s1"
	enrollment := &Enrollment{
		Status:        EnrollmentStatusActive,
		CurrentStepID: &stepID,
	}

	require.NoError(t, enrollment.Fail(now))

	assert.Equal(t, EnrollmentStatusFailed, enrollment.Status)
	require.NotNil(t, enrollment.CurrentStepID)
	assert.Equal(t, "s1", *enrollment.CurrentStepID)
	assert.Nil(t, enrollment.NextActionAt)
}

func TestWaitUntilSchedules(t *testing.T) {
	until := time.Now().UTC().Add(48 * time.Hour)
	enrollment := &Enrollment{Status: EnrollmentStatusActive}

	require.NoError(t, enrollment.WaitUntil(until))

	assert.Equal(t, EnrollmentStatusWaiting, enrollment.Status)
	require.NotNil(t, enrollment.NextActionAt)
	assert.True(t, enrollment.NextActionAt.Equal(until))
}

func TestRecordStepAppendsInOrder(t *testing.T) {
	now := time.Now().UTC()
	enrollment := &Enrollment{Status: EnrollmentStatusActive}

	enrollment.RecordStep("a", now, "success")
	enrollment.RecordStep("b", now.Add(time.Second), "yes")

	require.Len(t, enrollment.History, 2)
	assert.Equal(t, "a", enrollment.History[0].StepID)
	assert.Equal(t, "b", enrollment.History[1].StepID)
	assert.Equal(t, "yes", enrollment.History[1].Outcome)
}

func TestIsLive(t *testing.T) {
	assert.True(t, (&Enrollment{Status: EnrollmentStatusActive}).IsLive())
	assert.True(t, (&Enrollment{Status: EnrollmentStatusWaiting}).IsLive())
	assert.False(t, (&Enrollment{Status: EnrollmentStatusCompleted}).IsLive())
	assert.False(t, (&Enrollment{Status: EnrollmentStatusExited}).IsLive())
	assert.False(t, (&Enrollment{Status: EnrollmentStatusFailed}).IsLive())
}
