package models

// Operator is the closed set of comparison operators a condition may use.
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "not_equals"
	OperatorContains    Operator = "contains"
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
	OperatorWithinDays  Operator = "within_days"
	OperatorHasTag      Operator = "has_tag"
	OperatorNotHasTag   Operator = "not_has_tag"
)

// MatchMode selects how the conditions of a group combine.
type MatchMode string

const (
	MatchAll MatchMode = "all" // AND, short-circuits on first false
	MatchAny MatchMode = "any" // OR, short-circuits on first true
)

// Condition is a single field/operator/value criterion evaluated against a
// contact snapshot. Field addressing:
//
//	"attribute.<name>"  contact attribute (plain names resolve here too)
//	"custom.<path>"     custom field, dotted path into nested maps
//	"tags"              tag set, has_tag/not_has_tag only
//	"lists"             list set, contains/not variants via equals/contains
//	"created_at"        contact age, within_days and date comparisons
type Condition struct {
	Field    string   `json:"field"    validate:"required"`
	Operator Operator `json:"operator" validate:"required"`
	Value    any      `json:"value,omitempty"`
}

// ConditionGroup combines criteria with all/any semantics. Used both by
// condition steps and by workflow goals.
type ConditionGroup struct {
	Match      MatchMode   `json:"match"`
	Conditions []Condition `json:"conditions" validate:"required,min=1,dive"`
}
