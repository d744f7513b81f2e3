package hierarchy

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"ogsm-service/apierr"
	"ogsm-service/models"
)

// rootKey is the childrenByParent key for components without a parent.
var rootKey = uuid.Nil

// Index is a read-only snapshot of the component relation keyed by id and by
// parent id. Every accessor returns copies so callers cannot mutate the snapshot.
type Index struct {
	byID             map[uuid.UUID]*models.Component
	childrenByParent map[uuid.UUID][]*models.Component
	all              []*models.Component
}

// NewIndex builds a snapshot from a flat component list. Siblings are kept
// in display order (order_index, then creation time, then id).
func NewIndex(components []*models.Component) *Index {
	ix := &Index{
		byID:             make(map[uuid.UUID]*models.Component, len(components)),
		childrenByParent: make(map[uuid.UUID][]*models.Component),
		all:              make([]*models.Component, 0, len(components)),
	}
	for _, c := range components {
		if c == nil {
			continue
		}
		cp := *c
		ix.byID[cp.ID] = &cp
		ix.all = append(ix.all, &cp)
		key := parentKey(cp.ParentID)
		ix.childrenByParent[key] = append(ix.childrenByParent[key], &cp)
	}
	for _, siblings := range ix.childrenByParent {
		SortSiblings(siblings)
	}
	return ix
}

// SortSiblings orders components for display within one parent.
func SortSiblings(siblings []*models.Component) {
	sort.SliceStable(siblings, func(i, j int) bool {
		a, b := siblings[i], siblings[j]
		if a.OrderIndex != b.OrderIndex {
			return a.OrderIndex < b.OrderIndex
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}

func (ix *Index) Len() int {
	return len(ix.all)
}

// Get returns a copy of the component with the given id.
func (ix *Index) Get(id uuid.UUID) (*models.Component, bool) {
	c, ok := ix.byID[id]
	if !ok {
		return nil, false
	}
	cp := *c
	return &cp, true
}

// GetComponent lets the validator run against a loaded snapshot.
func (ix *Index) GetComponent(_ context.Context, id uuid.UUID) (*models.Component, error) {
	c, ok := ix.Get(id)
	if !ok {
		return nil, fmt.Errorf("component %s: %w", id, apierr.ErrNotFound)
	}
	return c, nil
}

// Roots returns every component without a parent, in display order.
func (ix *Index) Roots() []*models.Component {
	return copyAll(ix.childrenByParent[rootKey])
}

// Children returns the direct children of parentID in display order.
func (ix *Index) Children(parentID uuid.UUID) []*models.Component {
	if parentID == rootKey {
		return nil
	}
	return copyAll(ix.childrenByParent[parentID])
}

// Subtree returns id and all its descendants, parents before children.
// The walk stops at components already visited so a corrupt relation cannot loop.
func (ix *Index) Subtree(id uuid.UUID) []*models.Component {
	start, ok := ix.byID[id]
	if !ok {
		return nil
	}
	visited := map[uuid.UUID]struct{}{start.ID: {}}
	out := []*models.Component{start}
	for i := 0; i < len(out); i++ {
		for _, child := range ix.childrenByParent[out[i].ID] {
			if _, seen := visited[child.ID]; seen {
				continue
			}
			visited[child.ID] = struct{}{}
			out = append(out, child)
		}
	}
	return copyAll(out)
}

func parentKey(parentID uuid.NullUUID) uuid.UUID {
	if parentID.Valid {
		return parentID.UUID
	}
	return rootKey
}

func copyAll(in []*models.Component) []*models.Component {
	out := make([]*models.Component, 0, len(in))
	for _, c := range in {
		cp := *c
		out = append(out, &cp)
	}
	return out
}
