package hierarchy

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"ogsm-service/apierr"
	"ogsm-service/models"
)

// DefaultMaxDepth bounds the ancestor walk. It is a safety cap, not a limit
// on how deep a plan may be.
const DefaultMaxDepth = 10

const (
	MsgParentNotFound = "Parent component not found."
	MsgCircular       = "Circular dependency detected: component cannot be its own ancestor."
)

// Reader is the lookup the validator needs. Both stores and Index satisfy it.
type Reader interface {
	GetComponent(ctx context.Context, id uuid.UUID) (*models.Component, error)
}

// Validator checks proposed parent assignments. It never writes.
type Validator struct {
	rules    Rules
	maxDepth int
}

func NewValidator(rules Rules, maxDepth int) *Validator {
	if rules == nil {
		rules = DefaultRules()
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Validator{rules: rules, maxDepth: maxDepth}
}

// Rules returns the allow-list in use.
func (v *Validator) Rules() Rules {
	return v.rules
}

// ValidateParentChild decides whether componentID may be placed under
// parentID. Rule violations come back in the result; the error is reserved
// for lookups that failed for reasons other than a missing row.
func (v *Validator) ValidateParentChild(ctx context.Context, r Reader, componentID uuid.UUID, parentID uuid.NullUUID) (models.ValidationResult, error) {
	if !parentID.Valid {
		return valid(), nil
	}

	parent, err := r.GetComponent(ctx, parentID.UUID)
	if err != nil {
		if errors.Is(err, apierr.ErrNotFound) {
			return invalid(MsgParentNotFound), nil
		}
		return models.ValidationResult{}, fmt.Errorf("load parent %s: %w", parentID.UUID, err)
	}

	cyclic, err := v.reachesAncestor(ctx, r, parent, componentID)
	if err != nil {
		return models.ValidationResult{}, err
	}
	if cyclic {
		return invalid(MsgCircular), nil
	}

	child, err := r.GetComponent(ctx, componentID)
	switch {
	case errors.Is(err, apierr.ErrNotFound):
		// Not stored yet: nothing to compare the parent type against.
		return valid(), nil
	case err != nil:
		return models.ValidationResult{}, fmt.Errorf("load component %s: %w", componentID, err)
	}
	return v.checkTypes(child.Type, parent.Type), nil
}

// ValidateNewChild covers creation, where the child has no id yet and so
// cannot close a cycle.
func (v *Validator) ValidateNewChild(ctx context.Context, r Reader, childType models.ComponentType, parentID uuid.NullUUID) (models.ValidationResult, error) {
	if !parentID.Valid {
		return valid(), nil
	}
	parent, err := r.GetComponent(ctx, parentID.UUID)
	if err != nil {
		if errors.Is(err, apierr.ErrNotFound) {
			return invalid(MsgParentNotFound), nil
		}
		return models.ValidationResult{}, fmt.Errorf("load parent %s: %w", parentID.UUID, err)
	}
	return v.checkTypes(childType, parent.Type), nil
}

// reachesAncestor walks up from start for at most maxDepth nodes looking for target.
func (v *Validator) reachesAncestor(ctx context.Context, r Reader, start *models.Component, target uuid.UUID) (bool, error) {
	visited := make(map[uuid.UUID]struct{}, v.maxDepth)
	current := start
	for depth := 0; depth < v.maxDepth; depth++ {
		if current.ID == target {
			return true, nil
		}
		if _, seen := visited[current.ID]; seen {
			// A loop that does not pass through target; stop walking.
			return false, nil
		}
		visited[current.ID] = struct{}{}
		if !current.ParentID.Valid {
			return false, nil
		}
		next, err := r.GetComponent(ctx, current.ParentID.UUID)
		if err != nil {
			if errors.Is(err, apierr.ErrNotFound) {
				return false, nil
			}
			return false, fmt.Errorf("load ancestor %s: %w", current.ParentID.UUID, err)
		}
		current = next
	}
	return false, nil
}

func (v *Validator) checkTypes(child, parent models.ComponentType) models.ValidationResult {
	if !v.rules.Allows(child, parent) {
		return invalid(fmt.Sprintf("Invalid hierarchy: %s cannot be a child of %s", child, parent))
	}
	return valid()
}

func valid() models.ValidationResult {
	return models.ValidationResult{Valid: true}
}

func invalid(msg string) models.ValidationResult {
	return models.ValidationResult{Valid: false, Error: msg}
}
