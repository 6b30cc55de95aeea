package conditions

import (
	"testing"
	"time"

	"github.com/sleng75/slimail/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContact() *models.ContactSnapshot {
	return &models.ContactSnapshot{
		ID:     "c1",
		Email:  "ada@example.com",
		Status: models.ContactStatusSubscribed,
		Attributes: map[string]any{
			"first_name": "Ada",
			"score":      42.0,
			"country":    "PT",
		},
		CustomFields: map[string]any{
			"plan": map[string]any{
				"tier": "gold",
				"seats": 5.0,
			},
		},
		Tags:      map[string]bool{"vip": true},
		Lists:     map[string]bool{"newsletter": true},
		CreatedAt: time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
	}
}

func TestEvaluateOperators(t *testing.T) {
	evaluator := NewEvaluatorAt(time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC))
	contact := testContact()

	tests := []struct {
		name string
		cond models.Condition
		want bool
	}{
		{"equals match", models.Condition{Field: "first_name", Operator: models.OperatorEquals, Value: "Ada"}, true},
		{"equals mismatch", models.Condition{Field: "first_name", Operator: models.OperatorEquals, Value: "Grace"}, false},
		{"equals numeric coercion", models.Condition{Field: "score", Operator: models.OperatorEquals, Value: 42}, true},
		{"not equals", models.Condition{Field: "country", Operator: models.OperatorNotEquals, Value: "BR"}, true},
		{"contains case insensitive", models.Condition{Field: "country", Operator: models.OperatorContains, Value: "pt"}, true},
		{"attribute prefix", models.Condition{Field: "attribute.country", Operator: models.OperatorEquals, Value: "PT"}, true},
		{"custom dotted path", models.Condition{Field: "custom.plan.tier", Operator: models.OperatorEquals, Value: "gold"}, true},
		{"custom numeric greater than", models.Condition{Field: "custom.plan.seats", Operator: models.OperatorGreaterThan, Value: 3}, true},
		{"numeric less than", models.Condition{Field: "score", Operator: models.OperatorLessThan, Value: 100}, true},
		{"has tag", models.Condition{Field: "tags", Operator: models.OperatorHasTag, Value: "vip"}, true},
		{"has tag missing", models.Condition{Field: "tags", Operator: models.OperatorHasTag, Value: "gold"}, false},
		{"not has tag", models.Condition{Field: "tags", Operator: models.OperatorNotHasTag, Value: "gold"}, true},
		{"list membership", models.Condition{Field: "lists", Operator: models.OperatorContains, Value: "newsletter"}, true},
		{"list not member", models.Condition{Field: "lists", Operator: models.OperatorNotEquals, Value: "digest"}, true},
		{"created within days", models.Condition{Field: "created_at", Operator: models.OperatorWithinDays, Value: 7}, true},
		{"created not within days", models.Condition{Field: "created_at", Operator: models.OperatorWithinDays, Value: 2}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evaluator.Evaluate(contact, &tt.cond)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateContainsOnAttribute(t *testing.T) {
	evaluator := NewEvaluator()
	contact := testContact()

	got, err := evaluator.Evaluate(contact, &models.Condition{
		Field:    "first_name",
		Operator: models.OperatorContains,
		Value:    "ad",
	})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvaluateUnknownFieldFails(t *testing.T) {
	evaluator := NewEvaluator()

	_, err := evaluator.Evaluate(testContact(), &models.Condition{
		Field:    "no_such_field",
		Operator: models.OperatorEquals,
		Value:    "x",
	})

	require.ErrorIs(t, err, ErrConditionEvaluation)
}

func TestEvaluateUnknownOperatorFails(t *testing.T) {
	evaluator := NewEvaluator()

	_, err := evaluator.Evaluate(testContact(), &models.Condition{
		Field:    "first_name",
		Operator: models.Operator("regex"),
		Value:    ".*",
	})

	require.ErrorIs(t, err, ErrConditionEvaluation)
}

func TestEvaluateTagOperatorOnWrongField(t *testing.T) {
	evaluator := NewEvaluator()

	_, err := evaluator.Evaluate(testContact(), &models.Condition{
		Field:    "first_name",
		Operator: models.OperatorHasTag,
		Value:    "vip",
	})

	require.ErrorIs(t, err, ErrConditionEvaluation)
}

func TestEvaluateGroupAllShortCircuits(t *testing.T) {
	evaluator := NewEvaluator()
	contact := testContact()

	group := &models.ConditionGroup{
		Match: models.MatchAll,
		Conditions: []models.Condition{
			{Field: "first_name", Operator: models.OperatorEquals, Value: "Grace"},
			// would error, but the first false short-circuits
			{Field: "no_such_field", Operator: models.OperatorEquals, Value: "x"},
		},
	}

	got, err := evaluator.EvaluateGroup(contact, group)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestEvaluateGroupAnyShortCircuits(t *testing.T) {
	evaluator := NewEvaluator()
	contact := testContact()

	group := &models.ConditionGroup{
		Match: models.MatchAny,
		Conditions: []models.Condition{
			{Field: "tags", Operator: models.OperatorHasTag, Value: "vip"},
			{Field: "no_such_field", Operator: models.OperatorEquals, Value: "x"},
		},
	}

	got, err := evaluator.EvaluateGroup(contact, group)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvaluateGroupEmptyIsTrue(t *testing.T) {
	evaluator := NewEvaluator()

	got, err := evaluator.EvaluateGroup(testContact(), nil)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = evaluator.EvaluateGroup(testContact(), &models.ConditionGroup{})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvaluateGroupDefaultsToAll(t *testing.T) {
	evaluator := NewEvaluator()

	group := &models.ConditionGroup{
		Conditions: []models.Condition{
			{Field: "first_name", Operator: models.OperatorEquals, Value: "Ada"},
			{Field: "country", Operator: models.OperatorEquals, Value: "PT"},
		},
	}

	got, err := evaluator.EvaluateGroup(testContact(), group)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvaluateGroupPropagatesError(t *testing.T) {
	evaluator := NewEvaluator()

	group := &models.ConditionGroup{
		Match: models.MatchAll,
		Conditions: []models.Condition{
			{Field: "no_such_field", Operator: models.OperatorEquals, Value: "x"},
		},
	}

	_, err := evaluator.EvaluateGroup(testContact(), group)
	require.ErrorIs(t, err, ErrConditionEvaluation)
}

func TestEvaluateGroupAnyAbortsOnError(t *testing.T) {
	evaluator := NewEvaluator()

	// an evaluation error aborts the group even when a later condition
	// would satisfy it; the caller's fail-safe branch handles the rest
	group := &models.ConditionGroup{
		Match: models.MatchAny,
		Conditions: []models.Condition{
			{Field: "no_such_field", Operator: models.OperatorEquals, Value: "x"},
			{Field: "tags", Operator: models.OperatorHasTag, Value: "vip"},
		},
	}

	_, err := evaluator.EvaluateGroup(testContact(), group)
	require.ErrorIs(t, err, ErrConditionEvaluation)
}

func TestEvaluateDateComparisons(t *testing.T) {
	evaluator := NewEvaluator()
	contact := testContact()

	got, err := evaluator.Evaluate(contact, &models.Condition{
		Field:    "created_at",
		Operator: models.OperatorGreaterThan,
		Value:    "2026-01-01",
	})
	require.NoError(t, err)
	assert.True(t, got)

	got, err = evaluator.Evaluate(contact, &models.Condition{
		Field:    "created_at",
		Operator: models.OperatorLessThan,
		Value:    "2026-01-01",
	})
	require.NoError(t, err)
	assert.False(t, got)
}
