package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"ogsm-service/apierr"
	"ogsm-service/models"
	"ogsm-service/store"
)

const copySuffix = " (Copy)"

// Duplicate copies id as a new sibling placed one slot after the source.
// With includeChildren the whole subtree is copied and every copied child
// keeps its original order_index. Nothing is written unless the whole copy
// succeeds.
func (s *ComponentService) Duplicate(ctx context.Context, id uuid.UUID, includeChildren bool) (*models.Component, error) {
	var root *models.Component
	copied := 0
	err := s.repo.WithTx(ctx, func(tx store.Repository) error {
		// Keeps the source's parent and subtree still while they are copied.
		if err := tx.LockHierarchy(ctx); err != nil {
			return err
		}
		src, err := tx.GetComponent(ctx, id)
		if err != nil {
			return notFoundOr(err, "Component not found")
		}

		root, err = tx.CreateComponent(ctx, copyOf(src, src.ParentID, src.OrderIndex+1))
		if err != nil {
			return err
		}
		copied++
		if !includeChildren {
			return nil
		}

		n, err := s.copyChildren(ctx, tx, src.ID, root.ID, map[uuid.UUID]bool{src.ID: true, root.ID: true}, 1)
		copied += n
		return err
	})
	if err != nil {
		return nil, apierr.From(err)
	}

	s.invalidateTree(ctx)
	s.log.Info("Component duplicated", "source_id", id, "id", root.ID, "include_children", includeChildren, "copied", copied)
	return root, nil
}

// copyChildren recreates the children of from under to, depth first.
// seen guards against a corrupted relation that loops back on itself.
func (s *ComponentService) copyChildren(ctx context.Context, tx store.Repository, from, to uuid.UUID, seen map[uuid.UUID]bool, depth int) (int, error) {
	if depth > s.treeDepth {
		return 0, fmt.Errorf("duplicate %s: subtree deeper than %d levels", from, s.treeDepth)
	}
	children, err := tx.ListChildren(ctx, from)
	if err != nil {
		return 0, err
	}

	copied := 0
	for _, child := range children {
		if seen[child.ID] {
			continue
		}
		seen[child.ID] = true

		dup, err := tx.CreateComponent(ctx, copyOf(child, uuid.NullUUID{UUID: to, Valid: true}, child.OrderIndex))
		if err != nil {
			return copied, err
		}
		seen[dup.ID] = true
		copied++

		n, err := s.copyChildren(ctx, tx, child.ID, dup.ID, seen, depth+1)
		copied += n
		if err != nil {
			return copied, err
		}
	}
	return copied, nil
}

func copyOf(src *models.Component, parent uuid.NullUUID, orderIndex int) models.NewComponent {
	return models.NewComponent{
		Type:        src.Type,
		Title:       src.Title + copySuffix,
		Description: src.Description,
		ParentID:    parent,
		OrderIndex:  orderIndex,
		DocumentID:  src.DocumentID,
	}
}
