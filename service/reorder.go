package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"ogsm-service/apierr"
	"ogsm-service/models"
	"ogsm-service/store"
)

const CodeReorderFailed = "REORDER_VALIDATION_FAILED"

// ReorderFailure names the entry that stopped a bulk reorder.
type ReorderFailure struct {
	ID     uuid.UUID
	Reason string
}

func (e *ReorderFailure) Error() string {
	return fmt.Sprintf("Validation failed for component %s: %s", e.ID, e.Reason)
}

// ReorderResult reports what a committed bulk reorder changed.
type ReorderResult struct {
	UpdatedCount int                 `json:"updated_count"`
	Components   []*models.Component `json:"components"`
}

// BulkReorder applies every entry in order inside one transaction. Each
// entry that moves a component is validated against the state left by the
// entries before it; the first failure rolls the whole batch back.
// Unlike Update, order_index values are stored as sent and siblings are not
// shifted: the batch is the caller's complete intended ordering.
func (s *ComponentService) BulkReorder(ctx context.Context, entries []models.ReorderEntry) (*ReorderResult, error) {
	if len(entries) == 0 {
		return nil, apierr.Validation("INVALID_REQUEST", "updates must be a non-empty array")
	}

	result := &ReorderResult{Components: make([]*models.Component, 0, len(entries))}
	err := s.repo.WithTx(ctx, func(tx store.Repository) error {
		if err := tx.LockHierarchy(ctx); err != nil {
			return err
		}
		for i, e := range entries {
			if e.ID == uuid.Nil {
				return apierr.Validation("INVALID_REQUEST", "updates[%d]: id is required", i)
			}
			if _, err := tx.GetComponent(ctx, e.ID); err != nil {
				if errors.Is(err, apierr.ErrNotFound) {
					return reorderFailure(http.StatusNotFound, e.ID, "Component not found.")
				}
				return err
			}

			if e.Parent.Present {
				res, err := s.validator.ValidateParentChild(ctx, tx, e.ID, e.Parent.ID)
				if err != nil {
					return err
				}
				if !res.Valid {
					return reorderFailure(http.StatusBadRequest, e.ID, res.Error)
				}
			}

			c, err := tx.UpdateComponent(ctx, e.ID, models.ComponentPatch{OrderIndex: e.OrderIndex, Parent: e.Parent})
			if err != nil {
				return err
			}
			result.Components = append(result.Components, c)
		}
		return nil
	})
	if err != nil {
		return nil, apierr.From(err)
	}

	result.UpdatedCount = len(result.Components)
	s.invalidateTree(ctx)
	s.log.Info("Bulk reorder applied", "updated_count", result.UpdatedCount)
	return result, nil
}

func reorderFailure(status int, id uuid.UUID, reason string) *apierr.Error {
	return apierr.New(status, CodeReorderFailed, &ReorderFailure{ID: id, Reason: reason})
}
