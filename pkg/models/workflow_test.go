package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string {
	return &s
}

func TestWorkflowStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    WorkflowStatus
		to      WorkflowStatus
		allowed bool
	}{
		{"draft to active", WorkflowStatusDraft, WorkflowStatusActive, true},
		{"draft to paused", WorkflowStatusDraft, WorkflowStatusPaused, false},
		{"draft to archived", WorkflowStatusDraft, WorkflowStatusArchived, false},
		{"active to paused", WorkflowStatusActive, WorkflowStatusPaused, true},
		{"active to archived", WorkflowStatusActive, WorkflowStatusArchived, true},
		{"active to draft", WorkflowStatusActive, WorkflowStatusDraft, false},
		{"paused to active", WorkflowStatusPaused, WorkflowStatusActive, true},
		{"paused to archived", WorkflowStatusPaused, WorkflowStatusArchived, true},
		{"archived to active", WorkflowStatusArchived, WorkflowStatusActive, false},
		{"archived to paused", WorkflowStatusArchived, WorkflowStatusPaused, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workflow := &Workflow{Status: tt.from}

			err := workflow.TransitionTo(tt.to)
			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, tt.to, workflow.Status)
			} else {
				require.ErrorIs(t, err, ErrInvalidTransition)
				assert.Equal(t, tt.from, workflow.Status)
			}
		})
	}
}

func TestValidateTreeEmptyDraft(t *testing.T) {
	workflow := &Workflow{Status: WorkflowStatusDraft}

	require.NoError(t, workflow.ValidateTree())
}

func TestValidateTreeNoRootOutsideDraft(t *testing.T) {
	workflow := &Workflow{Status: WorkflowStatusActive}

	require.ErrorIs(t, workflow.ValidateTree(), ErrNoRootStep)
}

func TestValidateTreeRootNotInArena(t *testing.T) {
	workflow := &Workflow{
		Status:     WorkflowStatusDraft,
		RootStepID: strPtr("missing"),
		Steps:      map[string]*StepNode{},
	}

	require.ErrorIs(t, workflow.ValidateTree(), ErrRootStepNotFound)
}

func TestValidateTreeDetectsCycle(t *testing.T) {
	workflow := &Workflow{
		Status:     WorkflowStatusDraft,
		RootStepID: strPtr("a"),
		Steps: map[string]*StepNode{
			"a": {ID: "a", Type: StepTypeAddTag, Next: strPtr("b")},
			"b": {ID: "b", Type: StepTypeAddTag, Next: strPtr("a")},
		},
	}

	require.ErrorIs(t, workflow.ValidateTree(), ErrStepCycle)
}

func TestValidateTreeConditionBranches(t *testing.T) {
	workflow := &Workflow{
		Status:     WorkflowStatusDraft,
		RootStepID: strPtr("cond"),
		Steps: map[string]*StepNode{
			"cond": {ID: "cond", Type: StepTypeCondition, Yes: strPtr("yes")},
			"yes":  {ID: "yes", Type: StepTypeExit},
		},
	}

	require.ErrorIs(t, workflow.ValidateTree(), ErrMissingBranch)

	workflow.Steps["cond"].No = strPtr("no")
	workflow.Steps["no"] = &StepNode{ID: "no", Type: StepTypeExit}

	require.NoError(t, workflow.ValidateTree())
}

func TestValidateTreeBranchTargetMissing(t *testing.T) {
	workflow := &Workflow{
		Status:     WorkflowStatusDraft,
		RootStepID: strPtr("a"),
		Steps: map[string]*StepNode{
			"a": {ID: "a", Type: StepTypeWait, Next: strPtr("gone")},
		},
	}

	require.ErrorIs(t, workflow.ValidateTree(), ErrBranchTargetMissing)
}

func TestValidateTreeRejectsBranchesOnNonCondition(t *testing.T) {
	workflow := &Workflow{
		Status:     WorkflowStatusDraft,
		RootStepID: strPtr("a"),
		Steps: map[string]*StepNode{
			"a": {ID: "a", Type: StepTypeWait, Yes: strPtr("b")},
			"b": {ID: "b", Type: StepTypeExit},
		},
	}

	require.ErrorIs(t, workflow.ValidateTree(), ErrUnexpectedBranch)
}

func TestCanActivateRequiresRoot(t *testing.T) {
	workflow := &Workflow{Status: WorkflowStatusDraft}

	require.ErrorIs(t, workflow.CanActivate(), ErrNoRootStep)
}

func TestReplaceTreeTombstonesOldSteps(t *testing.T) {
	workflow := &Workflow{
		Status:     WorkflowStatusActive,
		RootStepID: strPtr("old-root"),
		Steps: map[string]*StepNode{
			"old-root": {ID: "old-root", Type: StepTypeWait},
		},
	}

	workflow.ReplaceTree(strPtr("new-root"), map[string]*StepNode{
		"new-root": {ID: "new-root", Type: StepTypeAddTag},
	})

	require.Equal(t, "new-root", *workflow.RootStepID)

	// old nodes remain resolvable for mid-flight enrollments
	old, ok := workflow.Step("old-root")
	require.True(t, ok)
	assert.True(t, old.Replaced)

	current, ok := workflow.Step("new-root")
	require.True(t, ok)
	assert.False(t, current.Replaced)
}

func TestReplaceTreeKeepsSurvivingStepCurrent(t *testing.T) {
	workflow := &Workflow{
		RootStepID: strPtr("a"),
		Steps: map[string]*StepNode{
			"a": {ID: "a", Type: StepTypeWait},
			"b": {ID: "b", Type: StepTypeExit},
		},
	}

	workflow.ReplaceTree(strPtr("a"), map[string]*StepNode{
		"a": {ID: "a", Type: StepTypeWait},
	})

	a, _ := workflow.Step("a")
	assert.False(t, a.Replaced)

	b, _ := workflow.Step("b")
	assert.True(t, b.Replaced)
}

func TestStepChildID(t *testing.T) {
	step := &StepNode{
		ID:   "cond",
		Type: StepTypeCondition,
		Yes:  strPtr("y"),
		No:   strPtr("n"),
	}

	assert.Equal(t, "y", *step.ChildID(BranchYes))
	assert.Equal(t, "n", *step.ChildID(BranchNo))
	assert.Nil(t, step.ChildID(BranchNext))
}

func TestWorkflowUpdatedAtOnTransition(t *testing.T) {
	workflow := &Workflow{Status: WorkflowStatusDraft, UpdatedAt: time.Time{}}

	require.NoError(t, workflow.TransitionTo(WorkflowStatusActive))
	assert.False(t, workflow.UpdatedAt.IsZero())
}
