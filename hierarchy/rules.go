package hierarchy

import (
	"slices"

	"ogsm-service/models"
)

// Rules maps a child type to the parent types it may sit under.
// Types without an entry accept any parent.
type Rules map[models.ComponentType][]models.ComponentType

// DefaultRules is the OGSM allow-list: goals under objectives, strategies
// under goals or objectives, measures under anything above them.
func DefaultRules() Rules {
	return Rules{
		models.TypeGoal:     {models.TypeObjective},
		models.TypeStrategy: {models.TypeGoal, models.TypeObjective},
		models.TypeMeasure:  {models.TypeStrategy, models.TypeGoal, models.TypeObjective},
	}
}

// Allows reports whether child may be placed under parent.
func (r Rules) Allows(child, parent models.ComponentType) bool {
	allowed, constrained := r[child]
	if !constrained {
		return true
	}
	return slices.Contains(allowed, parent)
}
