package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ComponentType is one level of the OGSM taxonomy.
type ComponentType string

const (
	TypeObjective ComponentType = "objective"
	TypeGoal      ComponentType = "goal"
	TypeStrategy  ComponentType = "strategy"
	TypeMeasure   ComponentType = "measure"
)

// ComponentTypes lists every type in hierarchy order, top first.
var ComponentTypes = []ComponentType{TypeObjective, TypeGoal, TypeStrategy, TypeMeasure}

// Valid reports whether t is one of the four OGSM types.
func (t ComponentType) Valid() bool {
	switch t {
	case TypeObjective, TypeGoal, TypeStrategy, TypeMeasure:
		return true
	}
	return false
}

// ParseComponentType normalizes user input ("  Goal ") into a ComponentType.
func ParseComponentType(s string) (ComponentType, error) {
	t := ComponentType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("invalid component_type %q: must be one of objective, goal, strategy, measure", s)
	}
	return t, nil
}

// Component is a single node of the OGSM hierarchy.
type Component struct {
	ID          uuid.UUID     `json:"id"`
	Type        ComponentType `json:"component_type"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	ParentID    uuid.NullUUID `json:"parent_id"` // null for root components
	OrderIndex  int           `json:"order_index"`
	DocumentID  uuid.NullUUID `json:"document_id"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// IsRoot reports whether the component has no parent.
func (c *Component) IsRoot() bool {
	return !c.ParentID.Valid
}

// TreeNode is a component flattened into the forest view with its depth.
type TreeNode struct {
	ID          uuid.UUID     `json:"id"`
	Type        ComponentType `json:"component_type"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	ParentID    uuid.NullUUID `json:"parent_id"`
	OrderIndex  int           `json:"order_index"`
	Level       int           `json:"level"`
}

// NewTreeNode projects c at the given level.
func NewTreeNode(c *Component, level int) TreeNode {
	return TreeNode{
		ID:          c.ID,
		Type:        c.Type,
		Title:       c.Title,
		Description: c.Description,
		ParentID:    c.ParentID,
		OrderIndex:  c.OrderIndex,
		Level:       level,
	}
}

// ComponentFilter narrows a component listing. Zero values match everything.
type ComponentFilter struct {
	Type       ComponentType
	DocumentID uuid.NullUUID
}

// NewComponent carries the fields accepted on creation.
type NewComponent struct {
	Type        ComponentType `json:"component_type"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	ParentID    uuid.NullUUID `json:"parent_id"`
	OrderIndex  int           `json:"order_index"`
	DocumentID  uuid.NullUUID `json:"document_id"`
}

// ComponentPatch is a coalesce-style update: nil fields are left unchanged.
type ComponentPatch struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	OrderIndex  *int      `json:"order_index"`
	Parent      ParentRef `json:"parent_id"`
}

// Empty reports whether the patch changes nothing.
func (p ComponentPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.OrderIndex == nil && !p.Parent.Present
}

// ReorderEntry is one row of a bulk reorder request.
type ReorderEntry struct {
	ID         uuid.UUID `json:"id"`
	OrderIndex *int      `json:"order_index"`
	Parent     ParentRef `json:"parent_id"`
}

// ValidationResult is the outcome of a parent/child check.
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// ParentRef distinguishes "leave the parent alone" from "detach to root" from
// "move under X". A JSON null, an empty string or the string "null" all mean detach.
type ParentRef struct {
	Present bool
	ID      uuid.NullUUID
}

// Detach returns a ParentRef that moves a component to the root.
func Detach() ParentRef {
	return ParentRef{Present: true}
}

// Under returns a ParentRef that moves a component below id.
func Under(id uuid.UUID) ParentRef {
	return ParentRef{Present: true, ID: uuid.NullUUID{UUID: id, Valid: true}}
}

// IsDetach reports whether the ref explicitly clears the parent.
func (p ParentRef) IsDetach() bool {
	return p.Present && !p.ID.Valid
}

func (p *ParentRef) UnmarshalJSON(data []byte) error {
	p.Present = true
	p.ID = uuid.NullUUID{}
	if strings.TrimSpace(string(data)) == "null" {
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parent_id must be a uuid string or null")
	}
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "null") {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return fmt.Errorf("parent_id %q is not a valid uuid", raw)
	}
	p.ID = uuid.NullUUID{UUID: id, Valid: true}
	return nil
}

func (p ParentRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.ID)
}
