// Package conditions evaluates condition groups against contact snapshots.
package conditions

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sleng75/slimail/pkg/models"
)

// ErrConditionEvaluation indicates an unknown field or an operator that does
// not apply to the addressed field. Callers treat it as "condition not met"
// rather than aborting the enrollment.
var ErrConditionEvaluation = errors.New("condition evaluation failed")

// Evaluator is a pure mapper from (contact snapshot, condition config) to a
// boolean. It carries a clock so age-based operators stay testable.
type Evaluator struct {
	now func() time.Time
}

func NewEvaluator() *Evaluator {
	return &Evaluator{now: func() time.Time { return time.Now().UTC() }}
}

// NewEvaluatorAt pins the evaluator's clock, for tests.
func NewEvaluatorAt(now time.Time) *Evaluator {
	return &Evaluator{now: func() time.Time { return now }}
}

// EvaluateGroup combines the group's conditions with all/any semantics.
// "all" short-circuits on the first false, "any" on the first true. An empty
// group is vacuously true.
func (ev *Evaluator) EvaluateGroup(contact *models.ContactSnapshot, group *models.ConditionGroup) (bool, error) {
	if group == nil || len(group.Conditions) == 0 {
		return true, nil
	}

	mode := group.Match
	if mode == "" {
		mode = models.MatchAll
	}

	for i := range group.Conditions {
		ok, err := ev.Evaluate(contact, &group.Conditions[i])
		if err != nil {
			return false, err
		}

		if mode == models.MatchAll && !ok {
			return false, nil
		}

		if mode == models.MatchAny && ok {
			return true, nil
		}
	}

	return mode == models.MatchAll, nil
}

// Evaluate resolves a single condition against the contact.
func (ev *Evaluator) Evaluate(contact *models.ContactSnapshot, cond *models.Condition) (bool, error) {
	switch cond.Operator {
	case models.OperatorHasTag, models.OperatorNotHasTag:
		return ev.evaluateTag(contact, cond)
	}

	switch {
	case cond.Field == "lists":
		return ev.evaluateList(contact, cond)
	case cond.Field == "created_at":
		return ev.evaluateDate(contact.CreatedAt, cond)
	default:
		value, ok := ev.resolveField(contact, cond.Field)
		if !ok {
			return false, fmt.Errorf("%w: unknown field %q", ErrConditionEvaluation, cond.Field)
		}

		return ev.compare(value, cond)
	}
}

func (ev *Evaluator) evaluateTag(contact *models.ContactSnapshot, cond *models.Condition) (bool, error) {
	if cond.Field != "tags" {
		return false, fmt.Errorf("%w: operator %s applies to field \"tags\", got %q",
			ErrConditionEvaluation, cond.Operator, cond.Field)
	}

	tagID := fmt.Sprintf("%v", cond.Value)
	has := contact.HasTag(tagID)

	if cond.Operator == models.OperatorNotHasTag {
		return !has, nil
	}

	return has, nil
}

func (ev *Evaluator) evaluateList(contact *models.ContactSnapshot, cond *models.Condition) (bool, error) {
	listID := fmt.Sprintf("%v", cond.Value)

	switch cond.Operator {
	case models.OperatorEquals, models.OperatorContains:
		return contact.InList(listID), nil
	case models.OperatorNotEquals:
		return !contact.InList(listID), nil
	default:
		return false, fmt.Errorf("%w: operator %s does not apply to lists",
			ErrConditionEvaluation, cond.Operator)
	}
}

func (ev *Evaluator) evaluateDate(value time.Time, cond *models.Condition) (bool, error) {
	switch cond.Operator {
	case models.OperatorWithinDays:
		days, ok := toFloat(cond.Value)
		if !ok {
			return false, fmt.Errorf("%w: within_days needs a numeric value, got %T",
				ErrConditionEvaluation, cond.Value)
		}

		age := ev.now().Sub(value)

		return age >= 0 && age <= time.Duration(days*float64(24*time.Hour)), nil
	case models.OperatorGreaterThan, models.OperatorLessThan:
		other, err := toTime(cond.Value)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrConditionEvaluation, err)
		}

		if cond.Operator == models.OperatorGreaterThan {
			return value.After(other), nil
		}

		return value.Before(other), nil
	case models.OperatorEquals:
		other, err := toTime(cond.Value)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrConditionEvaluation, err)
		}

		return value.Equal(other), nil
	default:
		return false, fmt.Errorf("%w: operator %s does not apply to dates",
			ErrConditionEvaluation, cond.Operator)
	}
}

// resolveField looks a field up in attributes or custom fields. Prefixes
// "attribute." and "custom." disambiguate; bare names resolve to attributes.
func (ev *Evaluator) resolveField(contact *models.ContactSnapshot, field string) (any, bool) {
	if name, ok := strings.CutPrefix(field, "attribute."); ok {
		value, found := contact.Attributes[name]

		return value, found
	}

	if path, ok := strings.CutPrefix(field, "custom."); ok {
		return lookupPath(contact.CustomFields, path)
	}

	value, found := contact.Attributes[field]

	return value, found
}

// lookupPath walks a dotted path through nested maps.
func lookupPath(fields map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")

	var current any = fields

	for _, part := range parts {
		asMap, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = asMap[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func (ev *Evaluator) compare(value any, cond *models.Condition) (bool, error) {
	switch cond.Operator {
	case models.OperatorEquals:
		return equalValues(value, cond.Value), nil
	case models.OperatorNotEquals:
		return !equalValues(value, cond.Value), nil
	case models.OperatorContains:
		return strings.Contains(
			strings.ToLower(fmt.Sprintf("%v", value)),
			strings.ToLower(fmt.Sprintf("%v", cond.Value)),
		), nil
	case models.OperatorGreaterThan, models.OperatorLessThan:
		left, leftOK := toFloat(value)
		right, rightOK := toFloat(cond.Value)

		if leftOK && rightOK {
			if cond.Operator == models.OperatorGreaterThan {
				return left > right, nil
			}

			return left < right, nil
		}

		// Both sides may be dates.
		leftTime, leftErr := toTime(value)
		rightTime, rightErr := toTime(cond.Value)

		if leftErr == nil && rightErr == nil {
			if cond.Operator == models.OperatorGreaterThan {
				return leftTime.After(rightTime), nil
			}

			return leftTime.Before(rightTime), nil
		}

		return false, fmt.Errorf("%w: %s needs numeric or date operands",
			ErrConditionEvaluation, cond.Operator)
	case models.OperatorWithinDays:
		asTime, err := toTime(value)
		if err != nil {
			return false, fmt.Errorf("%w: within_days needs a date field", ErrConditionEvaluation)
		}

		return ev.evaluateDate(asTime, cond)
	default:
		return false, fmt.Errorf("%w: unknown operator %q", ErrConditionEvaluation, cond.Operator)
	}
}

func equalValues(left, right any) bool {
	if leftNum, ok := toFloat(left); ok {
		if rightNum, ok := toFloat(right); ok {
			return leftNum == rightNum
		}
	}

	return fmt.Sprintf("%v", left) == fmt.Sprintf("%v", right)
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(v, 64)

		return parsed, err == nil
	default:
		return 0, false
	}
}

func toTime(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		if parsed, err := time.Parse(time.RFC3339, v); err == nil {
			return parsed, nil
		}

		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return time.Time{}, fmt.Errorf("cannot parse %q as a date", v)
		}

		return parsed, nil
	default:
		return time.Time{}, fmt.Errorf("cannot interpret %T as a date", value)
	}
}

// LogEvaluationError records a failed evaluation the way the processor
// expects: a warning, never a halt.
func LogEvaluationError(logger *slog.Logger, stepID string, err error) {
	logger.Warn("Condition evaluation failed, treating as not met",
		"step_id", stepID,
		"error", err)
}
