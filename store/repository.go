package store

import (
	"context"

	"github.com/google/uuid"

	"ogsm-service/models"
)

// Repository is the persisted component relation. Lookups that miss return
// an error wrapping apierr.ErrNotFound; writes that reference a missing
// parent or break a column constraint wrap apierr.ErrInvalidArgument.
type Repository interface {
	ListComponents(ctx context.Context, filter models.ComponentFilter) ([]*models.Component, error)
	GetComponent(ctx context.Context, id uuid.UUID) (*models.Component, error)
	ListChildren(ctx context.Context, parentID uuid.UUID) ([]*models.Component, error)
	CreateComponent(ctx context.Context, in models.NewComponent) (*models.Component, error)
	UpdateComponent(ctx context.Context, id uuid.UUID, patch models.ComponentPatch) (*models.Component, error)
	// DeleteComponent removes id and, through the cascade, its descendants.
	// It returns the row as it was before deletion.
	DeleteComponent(ctx context.Context, id uuid.UUID) (*models.Component, error)

	// SiblingIndexTaken reports whether another child of parentID already uses orderIndex.
	SiblingIndexTaken(ctx context.Context, parentID uuid.NullUUID, orderIndex int, excludeID uuid.UUID) (bool, error)
	// ShiftSiblings moves every child of parentID at or after fromIndex one slot down.
	ShiftSiblings(ctx context.Context, parentID uuid.NullUUID, fromIndex int, excludeID uuid.UUID) (int64, error)

	// LockHierarchy serializes parent reassignments for the rest of the
	// current transaction. Outside a transaction it is a no-op.
	LockHierarchy(ctx context.Context) error
	// WithTx runs fn against a transactional view. fn's error rolls
	// everything back; a nil return commits.
	WithTx(ctx context.Context, fn func(Repository) error) error
}
