package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ogsm-service/apierr"
	"ogsm-service/hierarchy"
	"ogsm-service/models"
)

type memState struct {
	rows map[uuid.UUID]models.Component
}

func (st *memState) clone() *memState {
	rows := make(map[uuid.UUID]models.Component, len(st.rows))
	for id, c := range st.rows {
		rows[id] = c
	}
	return &memState{rows: rows}
}

// MemStore is an in-memory Repository. Transactions work on a private copy
// of the state that replaces the shared one on commit; they hold the write
// lock for their whole duration.
type MemStore struct {
	mu    *sync.RWMutex
	state *memState
	tx    *memState
	now   func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		mu:    &sync.RWMutex{},
		state: &memState{rows: map[uuid.UUID]models.Component{}},
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemStore) read(fn func(st *memState) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.state)
}

func (s *MemStore) write(fn func(st *memState) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

func (s *MemStore) WithTx(ctx context.Context, fn func(Repository) error) error {
	if s.tx != nil {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&MemStore{mu: s.mu, state: s.state, tx: work, now: s.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	s.state.rows = work.rows
	return nil
}

// LockHierarchy is a no-op: transactions already hold the write lock.
func (s *MemStore) LockHierarchy(context.Context) error {
	return nil
}

func (s *MemStore) CreateComponent(_ context.Context, in models.NewComponent) (*models.Component, error) {
	var out models.Component
	err := s.write(func(st *memState) error {
		if err := checkRow(st, in.Type, in.Title, in.ParentID); err != nil {
			return fmt.Errorf("error creating component: %w", err)
		}
		now := s.now()
		out = models.Component{
			ID:          uuid.New(),
			Type:        in.Type,
			Title:       in.Title,
			Description: in.Description,
			ParentID:    in.ParentID,
			OrderIndex:  in.OrderIndex,
			DocumentID:  in.DocumentID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		st.rows[out.ID] = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *MemStore) GetComponent(_ context.Context, id uuid.UUID) (*models.Component, error) {
	var out models.Component
	err := s.read(func(st *memState) error {
		c, ok := st.rows[id]
		if !ok {
			return fmt.Errorf("component with ID %s: %w", id, apierr.ErrNotFound)
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *MemStore) UpdateComponent(_ context.Context, id uuid.UUID, patch models.ComponentPatch) (*models.Component, error) {
	var out models.Component
	err := s.write(func(st *memState) error {
		c, ok := st.rows[id]
		if !ok {
			return fmt.Errorf("component with ID %s not found for update: %w", id, apierr.ErrNotFound)
		}
		if patch.Title != nil {
			c.Title = *patch.Title
		}
		if patch.Description != nil {
			c.Description = *patch.Description
		}
		if patch.OrderIndex != nil {
			c.OrderIndex = *patch.OrderIndex
		}
		if patch.Parent.Present {
			c.ParentID = patch.Parent.ID
		}
		if err := checkRow(st, c.Type, c.Title, c.ParentID); err != nil {
			return fmt.Errorf("error updating component with ID %s: %w", id, err)
		}
		c.UpdatedAt = s.now()
		st.rows[id] = c
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteComponent removes id and every descendant, like ON DELETE CASCADE.
func (s *MemStore) DeleteComponent(_ context.Context, id uuid.UUID) (*models.Component, error) {
	var out models.Component
	err := s.write(func(st *memState) error {
		c, ok := st.rows[id]
		if !ok {
			return fmt.Errorf("component with ID %s not found for deletion: %w", id, apierr.ErrNotFound)
		}
		out = c
		for _, victim := range hierarchy.NewIndex(st.list()).Subtree(id) {
			delete(st.rows, victim.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *MemStore) ListComponents(_ context.Context, filter models.ComponentFilter) ([]*models.Component, error) {
	out := []*models.Component{}
	err := s.read(func(st *memState) error {
		for _, c := range st.list() {
			if filter.Type != "" && c.Type != filter.Type {
				continue
			}
			if filter.DocumentID.Valid && (!c.DocumentID.Valid || c.DocumentID.UUID != filter.DocumentID.UUID) {
				continue
			}
			out = append(out, c)
		}
		return nil
	})
	hierarchy.SortSiblings(out)
	return out, err
}

func (s *MemStore) ListChildren(_ context.Context, parentID uuid.UUID) ([]*models.Component, error) {
	out := []*models.Component{}
	err := s.read(func(st *memState) error {
		for _, c := range st.list() {
			if c.ParentID.Valid && c.ParentID.UUID == parentID {
				out = append(out, c)
			}
		}
		return nil
	})
	hierarchy.SortSiblings(out)
	return out, err
}

func (s *MemStore) SiblingIndexTaken(_ context.Context, parentID uuid.NullUUID, orderIndex int, excludeID uuid.UUID) (bool, error) {
	taken := false
	err := s.read(func(st *memState) error {
		for _, c := range st.rows {
			if c.ID != excludeID && c.ParentID == parentID && c.OrderIndex == orderIndex {
				taken = true
				return nil
			}
		}
		return nil
	})
	return taken, err
}

func (s *MemStore) ShiftSiblings(_ context.Context, parentID uuid.NullUUID, fromIndex int, excludeID uuid.UUID) (int64, error) {
	var n int64
	err := s.write(func(st *memState) error {
		now := s.now()
		for id, c := range st.rows {
			if c.ID != excludeID && c.ParentID == parentID && c.OrderIndex >= fromIndex {
				c.OrderIndex++
				c.UpdatedAt = now
				st.rows[id] = c
				n++
			}
		}
		return nil
	})
	return n, err
}

func (st *memState) list() []*models.Component {
	out := make([]*models.Component, 0, len(st.rows))
	for _, c := range st.rows {
		out = append(out, &c)
	}
	return out
}

// checkRow enforces what the SQL schema enforces: a known type, a non-blank
// title and an existing parent.
func checkRow(st *memState, t models.ComponentType, title string, parentID uuid.NullUUID) error {
	if !t.Valid() {
		return fmt.Errorf("invalid component_type %q: %w", t, apierr.ErrInvalidArgument)
	}
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("title must not be blank: %w", apierr.ErrInvalidArgument)
	}
	if parentID.Valid {
		if _, ok := st.rows[parentID.UUID]; !ok {
			return fmt.Errorf("referenced parent component does not exist: %w", apierr.ErrInvalidArgument)
		}
	}
	return nil
}
