package service

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"ogsm-service/apierr"
	"ogsm-service/cache"
	"ogsm-service/hierarchy"
	"ogsm-service/logger"
	"ogsm-service/models"
	"ogsm-service/store"
)

const CodeInvalidHierarchy = "INVALID_HIERARCHY"

// ComponentService is the only writer of the component relation. Every
// parent-affecting write is validated inside the transaction that performs it.
type ComponentService struct {
	repo      store.Repository
	validator *hierarchy.Validator
	trees     cache.TreeCache
	log       *logger.Logger
	treeDepth int
}

type Option func(*ComponentService)

// WithTreeDepth caps how many levels Tree expands.
func WithTreeDepth(depth int) Option {
	return func(s *ComponentService) { s.treeDepth = depth }
}

func NewComponentService(repo store.Repository, validator *hierarchy.Validator, trees cache.TreeCache, log *logger.Logger, opts ...Option) *ComponentService {
	if validator == nil {
		validator = hierarchy.NewValidator(nil, 0)
	}
	if trees == nil {
		trees = cache.NopTreeCache{}
	}
	if log == nil {
		log = logger.Nop()
	}
	s := &ComponentService{
		repo:      repo,
		validator: validator,
		trees:     trees,
		log:       log.With("service", "ComponentService"),
		treeDepth: hierarchy.DefaultTreeDepth,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ComponentService) List(ctx context.Context, filter models.ComponentFilter) ([]*models.Component, error) {
	components, err := s.repo.ListComponents(ctx, filter)
	if err != nil {
		return nil, apierr.From(err)
	}
	return components, nil
}

func (s *ComponentService) Get(ctx context.Context, id uuid.UUID) (*models.Component, error) {
	c, err := s.repo.GetComponent(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "Component not found")
	}
	return c, nil
}

// Children lists the direct children of id, which must exist.
func (s *ComponentService) Children(ctx context.Context, id uuid.UUID) ([]*models.Component, error) {
	if _, err := s.repo.GetComponent(ctx, id); err != nil {
		return nil, notFoundOr(err, "Parent component not found")
	}
	children, err := s.repo.ListChildren(ctx, id)
	if err != nil {
		return nil, apierr.From(err)
	}
	return children, nil
}

// Create inserts a component. When a parent is given it is validated the
// same way an update would be.
func (s *ComponentService) Create(ctx context.Context, in models.NewComponent) (*models.Component, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Type == "" {
		return nil, apierr.Validation("MISSING_FIELD", "component_type is required")
	}
	if !in.Type.Valid() {
		return nil, apierr.Validation("INVALID_COMPONENT_TYPE", "invalid component_type %q: must be one of objective, goal, strategy, measure", in.Type)
	}
	if in.Title == "" {
		return nil, apierr.Validation("MISSING_FIELD", "title is required")
	}

	var created *models.Component
	err := s.repo.WithTx(ctx, func(tx store.Repository) error {
		if in.ParentID.Valid {
			if err := tx.LockHierarchy(ctx); err != nil {
				return err
			}
			res, err := s.validator.ValidateNewChild(ctx, tx, in.Type, in.ParentID)
			if err != nil {
				return err
			}
			if !res.Valid {
				return apierr.Validation(CodeInvalidHierarchy, "%s", res.Error)
			}
		}
		c, err := tx.CreateComponent(ctx, in)
		if err != nil {
			return err
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, apierr.From(err)
	}

	s.invalidateTree(ctx)
	s.log.Info("Component created", "id", created.ID, "type", created.Type, "parent_id", created.ParentID)
	return created, nil
}

// Update applies a coalesce-style patch. A present parent is validated
// first; a collision on the target order_index shifts later siblings down.
func (s *ComponentService) Update(ctx context.Context, id uuid.UUID, patch models.ComponentPatch) (*models.Component, error) {
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, apierr.Validation("MISSING_FIELD", "title cannot be empty")
		}
		patch.Title = &title
	}

	var updated *models.Component
	err := s.repo.WithTx(ctx, func(tx store.Repository) error {
		existing, err := tx.GetComponent(ctx, id)
		if err != nil {
			return notFoundOr(err, "Component not found")
		}

		if patch.Parent.Present {
			if err := tx.LockHierarchy(ctx); err != nil {
				return err
			}
			res, err := s.validator.ValidateParentChild(ctx, tx, id, patch.Parent.ID)
			if err != nil {
				return err
			}
			if !res.Valid {
				return apierr.Validation(CodeInvalidHierarchy, "%s", res.Error)
			}
		}

		if err := s.makeRoom(ctx, tx, existing, patch); err != nil {
			return err
		}

		c, err := tx.UpdateComponent(ctx, id, patch)
		if err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, apierr.From(err)
	}

	s.invalidateTree(ctx)
	s.log.Info("Component updated", "id", id, "parent_changed", patch.Parent.Present)
	return updated, nil
}

// makeRoom renumbers siblings when the component's new slot is already taken.
func (s *ComponentService) makeRoom(ctx context.Context, tx store.Repository, existing *models.Component, patch models.ComponentPatch) error {
	parent := existing.ParentID
	if patch.Parent.Present {
		parent = patch.Parent.ID
	}
	index := existing.OrderIndex
	if patch.OrderIndex != nil {
		index = *patch.OrderIndex
	}
	if parent == existing.ParentID && index == existing.OrderIndex {
		return nil
	}
	taken, err := tx.SiblingIndexTaken(ctx, parent, index, existing.ID)
	if err != nil || !taken {
		return err
	}
	_, err = tx.ShiftSiblings(ctx, parent, index, existing.ID)
	return err
}

// Delete removes id; its descendants go with it through the storage cascade.
func (s *ComponentService) Delete(ctx context.Context, id uuid.UUID) (*models.Component, error) {
	deleted, err := s.repo.DeleteComponent(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "Component not found")
	}
	s.invalidateTree(ctx)
	s.log.Info("Component deleted", "id", id, "type", deleted.Type)
	return deleted, nil
}

// ValidateParentChild runs the validator without writing anything.
func (s *ComponentService) ValidateParentChild(ctx context.Context, componentID uuid.UUID, parentID uuid.NullUUID) (models.ValidationResult, error) {
	res, err := s.validator.ValidateParentChild(ctx, s.repo, componentID, parentID)
	if err != nil {
		return models.ValidationResult{}, apierr.From(err)
	}
	return res, nil
}

// Tree returns the whole forest ordered by level, then order_index.
func (s *ComponentService) Tree(ctx context.Context) ([]models.TreeNode, error) {
	if nodes, ok, err := s.trees.Get(ctx); err != nil {
		s.log.Warn("Tree cache read failed", "error", err)
	} else if ok {
		return nodes, nil
	}

	// Taken before the read so a write committed in between discards our Set.
	gen, genErr := s.trees.Generation(ctx)
	if genErr != nil {
		s.log.Warn("Tree cache generation read failed", "error", genErr)
	}

	components, err := s.repo.ListComponents(ctx, models.ComponentFilter{})
	if err != nil {
		return nil, apierr.From(err)
	}
	nodes := hierarchy.BuildTree(components, s.treeDepth)

	if genErr == nil {
		if err := s.trees.Set(ctx, gen, nodes); err != nil {
			s.log.Warn("Tree cache write failed", "error", err)
		}
	}
	return nodes, nil
}

func (s *ComponentService) invalidateTree(ctx context.Context) {
	if err := s.trees.Invalidate(ctx); err != nil {
		s.log.Warn("Tree cache invalidation failed", "error", err)
	}
}

// notFoundOr reports a missing row as a 404 with msg and passes anything else through.
func notFoundOr(err error, msg string) error {
	if errors.Is(err, apierr.ErrNotFound) {
		return apierr.New(http.StatusNotFound, "NOT_FOUND", errors.New(msg))
	}
	return apierr.From(err)
}
