package models

import "time"

// StepType is the closed set of step kinds a workflow tree may contain.
type StepType string

const (
	StepTypeSendEmail      StepType = "send_email"
	StepTypeWait           StepType = "wait"
	StepTypeCondition      StepType = "condition"
	StepTypeAddTag         StepType = "add_tag"
	StepTypeRemoveTag      StepType = "remove_tag"
	StepTypeAddToList      StepType = "add_to_list"
	StepTypeRemoveFromList StepType = "remove_from_list"
	StepTypeWebhook        StepType = "webhook"
	StepTypeExit           StepType = "exit"
)

// Branch names the outgoing edges of a step.
type Branch string

const (
	BranchNext Branch = "next"
	BranchYes  Branch = "yes"
	BranchNo   Branch = "no"
)

// StepNode is one node of a workflow's step tree. Condition nodes carry
// exactly the yes/no branches; every other type has at most a next pointer.
type StepNode struct {
	ID         string         `json:"id"          validate:"required"`
	WorkflowID string         `json:"workflow_id"`
	Type       StepType       `json:"type"        validate:"required"`
	Config     map[string]any `json:"config,omitempty"`
	Next       *string        `json:"next,omitempty"`
	Yes        *string        `json:"yes,omitempty"`
	No         *string        `json:"no,omitempty"`
	Replaced   bool           `json:"replaced,omitempty"` // tombstone from a superseded tree
	CreatedAt  time.Time      `json:"created_at"`
}

func (s *StepNode) IsCondition() bool {
	return s.Type == StepTypeCondition
}

// ChildID returns the target of the named branch, nil when the branch ends
// the tree.
func (s *StepNode) ChildID(branch Branch) *string {
	switch branch {
	case BranchYes:
		return s.Yes
	case BranchNo:
		return s.No
	default:
		return s.Next
	}
}

func (s *StepNode) childIDs() []string {
	ids := make([]string, 0, 2)

	if s.Next != nil {
		ids = append(ids, *s.Next)
	}

	if s.Yes != nil {
		ids = append(ids, *s.Yes)
	}

	if s.No != nil {
		ids = append(ids, *s.No)
	}

	return ids
}
