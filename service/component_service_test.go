package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ogsm-service/apierr"
	"ogsm-service/cache"
	"ogsm-service/hierarchy"
	"ogsm-service/logger"
	"ogsm-service/models"
	"ogsm-service/store"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func under(c *models.Component) uuid.NullUUID {
	return uuid.NullUUID{UUID: c.ID, Valid: true}
}

func newTestService(t *testing.T) (*ComponentService, *store.MemStore) {
	t.Helper()
	repo := store.NewMemStore()
	return NewComponentService(repo, hierarchy.NewValidator(nil, 0), cache.NewMemoryTreeCache(0), logger.Nop()), repo
}

func create(t *testing.T, s *ComponentService, typ models.ComponentType, title string, parent *models.Component, order int) *models.Component {
	t.Helper()
	in := models.NewComponent{Type: typ, Title: title, OrderIndex: order}
	if parent != nil {
		in.ParentID = under(parent)
	}
	c, err := s.Create(context.Background(), in)
	require.NoError(t, err)
	return c
}

func requireAPIError(t *testing.T, err error, status int) *apierr.Error {
	t.Helper()
	require.Error(t, err)
	var ae *apierr.Error
	require.True(t, errors.As(err, &ae), "expected *apierr.Error, got %T", err)
	assert.Equal(t, status, ae.Status)
	return ae
}

// ogsmChain builds O1 > G1 > S1 > M1.
func ogsmChain(t *testing.T, s *ComponentService) (o1, g1, s1, m1 *models.Component) {
	t.Helper()
	o1 = create(t, s, models.TypeObjective, "O1", nil, 0)
	g1 = create(t, s, models.TypeGoal, "G1", o1, 0)
	s1 = create(t, s, models.TypeStrategy, "S1", g1, 0)
	m1 = create(t, s, models.TypeMeasure, "M1", s1, 0)
	return
}

func TestCreate_RootAndChild(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	o1 := create(t, s, models.TypeObjective, "O1", nil, 0)
	assert.False(t, o1.ParentID.Valid)
	assert.Equal(t, "", o1.Description)

	g1 := create(t, s, models.TypeGoal, "G1", o1, 0)
	assert.Equal(t, o1.ID, g1.ParentID.UUID)

	tree, err := s.Tree(ctx)
	require.NoError(t, err)
	require.Len(t, tree, 2)
	assert.Equal(t, o1.ID, tree[0].ID)
	assert.Equal(t, 0, tree[0].Level)
	assert.Equal(t, 1, tree[1].Level)
}

func TestCreate_Rejects(t *testing.T) {
	ctx := context.Background()
	s, repo := newTestService(t)
	_, _, _, m1 := ogsmChain(t, s)

	tests := []struct {
		name    string
		in      models.NewComponent
		status  int
		message string
	}{
		{"missing type", models.NewComponent{Title: "x"}, http.StatusBadRequest, "component_type is required"},
		{"unknown type", models.NewComponent{Type: "vision", Title: "x"}, http.StatusBadRequest, ""},
		{"blank title", models.NewComponent{Type: models.TypeGoal, Title: "   "}, http.StatusBadRequest, "title is required"},
		{"strategy under measure", models.NewComponent{Type: models.TypeStrategy, Title: "S", ParentID: under(m1)}, http.StatusBadRequest, "Invalid hierarchy: strategy cannot be a child of measure"},
		{"missing parent", models.NewComponent{Type: models.TypeGoal, Title: "G", ParentID: uuid.NullUUID{UUID: uuid.New(), Valid: true}}, http.StatusBadRequest, hierarchy.MsgParentNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Create(ctx, tt.in)
			ae := requireAPIError(t, err, tt.status)
			if tt.message != "" {
				assert.Contains(t, ae.Error(), tt.message)
			}
		})
	}

	all, err := repo.ListComponents(ctx, models.ComponentFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4, "rejected creates must not write")
}

func TestUpdate_CoalesceAndTimestamps(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	o1 := create(t, s, models.TypeObjective, "O1", nil, 0)
	g1 := create(t, s, models.TypeGoal, "G1", o1, 3)

	updated, err := s.Update(ctx, g1.ID, models.ComponentPatch{Description: strPtr("why")})
	require.NoError(t, err)
	assert.Equal(t, "G1", updated.Title)
	assert.Equal(t, "why", updated.Description)
	assert.Equal(t, 3, updated.OrderIndex)
	assert.Equal(t, o1.ID, updated.ParentID.UUID)
	assert.False(t, updated.UpdatedAt.Before(g1.UpdatedAt))
	assert.Equal(t, models.TypeGoal, updated.Type)
}

func TestUpdate_ParentValidation(t *testing.T) {
	ctx := context.Background()
	s, repo := newTestService(t)
	o1, g1, _, m1 := ogsmChain(t, s)
	m2 := create(t, s, models.TypeMeasure, "M2", o1, 1)

	t.Run("cycle through descendant", func(t *testing.T) {
		_, err := s.Update(ctx, o1.ID, models.ComponentPatch{Parent: models.Under(m1.ID)})
		ae := requireAPIError(t, err, http.StatusBadRequest)
		assert.Equal(t, CodeInvalidHierarchy, ae.Code)
		assert.Contains(t, ae.Error(), "Circular dependency")

		stored, err := repo.GetComponent(ctx, o1.ID)
		require.NoError(t, err)
		assert.False(t, stored.ParentID.Valid, "no write on rejection")
	})

	t.Run("self parent", func(t *testing.T) {
		_, err := s.Update(ctx, g1.ID, models.ComponentPatch{Parent: models.Under(g1.ID)})
		requireAPIError(t, err, http.StatusBadRequest)
	})

	t.Run("type violation", func(t *testing.T) {
		_, err := s.Update(ctx, g1.ID, models.ComponentPatch{Parent: models.Under(m2.ID), Title: strPtr("renamed")})
		ae := requireAPIError(t, err, http.StatusBadRequest)
		assert.Contains(t, ae.Error(), "goal cannot be a child of measure")

		stored, err := repo.GetComponent(ctx, g1.ID)
		require.NoError(t, err)
		assert.Equal(t, "G1", stored.Title, "patch is all or nothing")
	})

	t.Run("detach", func(t *testing.T) {
		c, err := s.Update(ctx, m1.ID, models.ComponentPatch{Parent: models.Detach()})
		require.NoError(t, err)
		assert.False(t, c.ParentID.Valid)
	})

	t.Run("missing component", func(t *testing.T) {
		_, err := s.Update(ctx, uuid.New(), models.ComponentPatch{Title: strPtr("x")})
		requireAPIError(t, err, http.StatusNotFound)
	})

	t.Run("blank title", func(t *testing.T) {
		_, err := s.Update(ctx, g1.ID, models.ComponentPatch{Title: strPtr(" ")})
		requireAPIError(t, err, http.StatusBadRequest)
	})
}

func TestUpdate_ShiftsCollidingSiblings(t *testing.T) {
	ctx := context.Background()
	s, repo := newTestService(t)
	o1 := create(t, s, models.TypeObjective, "O1", nil, 0)
	a := create(t, s, models.TypeGoal, "A", o1, 0)
	b := create(t, s, models.TypeGoal, "B", o1, 1)
	c := create(t, s, models.TypeGoal, "C", o1, 2)

	_, err := s.Update(ctx, c.ID, models.ComponentPatch{OrderIndex: intPtr(0)})
	require.NoError(t, err)

	children, err := repo.ListChildren(ctx, o1.ID)
	require.NoError(t, err)
	got := map[uuid.UUID]int{}
	for _, ch := range children {
		got[ch.ID] = ch.OrderIndex
	}
	assert.Equal(t, 0, got[c.ID])
	assert.Equal(t, 1, got[a.ID])
	assert.Equal(t, 2, got[b.ID])
}

func TestDelete_CascadesAndReturnsPriorRow(t *testing.T) {
	ctx := context.Background()
	s, repo := newTestService(t)
	o1, g1, _, _ := ogsmChain(t, s)
	other := create(t, s, models.TypeObjective, "O2", nil, 1)

	deleted, err := s.Delete(ctx, g1.ID)
	require.NoError(t, err)
	assert.Equal(t, "G1", deleted.Title)

	all, err := repo.ListComponents(ctx, models.ComponentFilter{})
	require.NoError(t, err)
	var ids []uuid.UUID
	for _, c := range all {
		ids = append(ids, c.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{o1.ID, other.ID}, ids)

	_, err = s.Delete(ctx, g1.ID)
	requireAPIError(t, err, http.StatusNotFound)
}

func TestChildren(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	o1 := create(t, s, models.TypeObjective, "O1", nil, 0)
	create(t, s, models.TypeGoal, "G2", o1, 2)
	create(t, s, models.TypeGoal, "G1", o1, 1)

	children, err := s.Children(ctx, o1.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "G1", children[0].Title)

	_, err = s.Children(ctx, uuid.New())
	requireAPIError(t, err, http.StatusNotFound)
}

func TestValidateParentChild_Service(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	o1, _, _, m1 := ogsmChain(t, s)

	first, err := s.ValidateParentChild(ctx, o1.ID, under(m1))
	require.NoError(t, err)
	second, err := s.ValidateParentChild(ctx, o1.ID, under(m1))
	require.NoError(t, err)
	assert.False(t, first.Valid)
	assert.Equal(t, first, second)

	root, err := s.ValidateParentChild(ctx, m1.ID, uuid.NullUUID{})
	require.NoError(t, err)
	assert.True(t, root.Valid)
}

func TestTree_Ordering(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	o2 := create(t, s, models.TypeObjective, "O2", nil, 1)
	o1 := create(t, s, models.TypeObjective, "O1", nil, 0)
	create(t, s, models.TypeGoal, "G-b", o2, 0)
	create(t, s, models.TypeGoal, "G-a", o1, 5)
	g := create(t, s, models.TypeGoal, "G-c", o1, 1)
	create(t, s, models.TypeStrategy, "S", g, 0)

	tree, err := s.Tree(ctx)
	require.NoError(t, err)
	require.Len(t, tree, 6)
	for i := 1; i < len(tree); i++ {
		prev, cur := tree[i-1], tree[i]
		require.LessOrEqual(t, prev.Level, cur.Level)
		if prev.Level == cur.Level {
			assert.LessOrEqual(t, prev.OrderIndex, cur.OrderIndex)
		}
	}
}

func TestTree_CacheInvalidatedOnWrite(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	o1 := create(t, s, models.TypeObjective, "O1", nil, 0)

	tree, err := s.Tree(ctx)
	require.NoError(t, err)
	require.Len(t, tree, 1)

	g1 := create(t, s, models.TypeGoal, "G1", o1, 0)
	tree, err = s.Tree(ctx)
	require.NoError(t, err)
	assert.Len(t, tree, 2, "create must invalidate")

	_, err = s.Update(ctx, g1.ID, models.ComponentPatch{Title: strPtr("Goal one")})
	require.NoError(t, err)
	tree, err = s.Tree(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Goal one", tree[1].Title, "update must invalidate")

	_, err = s.Duplicate(ctx, g1.ID, false)
	require.NoError(t, err)
	tree, err = s.Tree(ctx)
	require.NoError(t, err)
	assert.Len(t, tree, 3, "duplicate must invalidate")

	_, err = s.Delete(ctx, o1.ID)
	require.NoError(t, err)
	tree, err = s.Tree(ctx)
	require.NoError(t, err)
	assert.Empty(t, tree, "delete must invalidate")
}

// writeDuringRead commits a write right after the forest snapshot is taken,
// before Tree gets to fill the cache.
type writeDuringRead struct {
	*store.MemStore
	write func()
}

func (r *writeDuringRead) ListComponents(ctx context.Context, filter models.ComponentFilter) ([]*models.Component, error) {
	components, err := r.MemStore.ListComponents(ctx, filter)
	if r.write != nil {
		write := r.write
		r.write = nil
		write()
	}
	return components, err
}

func TestTree_WriteDuringReadIsNotHiddenByCache(t *testing.T) {
	ctx := context.Background()
	repo := &writeDuringRead{MemStore: store.NewMemStore()}
	s := NewComponentService(repo, hierarchy.NewValidator(nil, 0), cache.NewMemoryTreeCache(0), logger.Nop())
	o1 := create(t, s, models.TypeObjective, "O1", nil, 0)

	repo.write = func() {
		_, err := s.Create(ctx, models.NewComponent{Type: models.TypeGoal, Title: "G1", ParentID: under(o1)})
		require.NoError(t, err)
	}
	tree, err := s.Tree(ctx)
	require.NoError(t, err)
	assert.Len(t, tree, 1, "the read saw the relation before the write")

	tree, err = s.Tree(ctx)
	require.NoError(t, err)
	assert.Len(t, tree, 2, "a committed write must show up in the next tree")
}

type failingCache struct{}

func (failingCache) Get(context.Context) ([]models.TreeNode, bool, error) {
	return nil, false, errors.New("cache down")
}
func (failingCache) Generation(context.Context) (uint64, error) { return 0, errors.New("cache down") }
func (failingCache) Set(context.Context, uint64, []models.TreeNode) error {
	return errors.New("cache down")
}
func (failingCache) Invalidate(context.Context) error { return errors.New("cache down") }

func TestCacheFailuresAreNotFatal(t *testing.T) {
	ctx := context.Background()
	s := NewComponentService(store.NewMemStore(), nil, failingCache{}, logger.Nop())

	o1, err := s.Create(ctx, models.NewComponent{Type: models.TypeObjective, Title: "O1"})
	require.NoError(t, err)
	tree, err := s.Tree(ctx)
	require.NoError(t, err)
	require.Len(t, tree, 1)
	assert.Equal(t, o1.ID, tree[0].ID)
}

func TestConcurrentMovesKeepForest(t *testing.T) {
	ctx := context.Background()
	s, repo := newTestService(t)
	o1 := create(t, s, models.TypeObjective, "O1", nil, 0)
	o2 := create(t, s, models.TypeObjective, "O2", nil, 1)

	// Each move alone is valid; together they would form a cycle.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = s.Update(ctx, o1.ID, models.ComponentPatch{Parent: models.Under(o2.ID)})
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = s.Update(ctx, o2.ID, models.ComponentPatch{Parent: models.Under(o1.ID)})
	}()
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			failures++
		}
	}
	assert.Equal(t, 1, failures, "exactly one move must lose")

	all, err := repo.ListComponents(ctx, models.ComponentFilter{})
	require.NoError(t, err)
	roots := 0
	for _, c := range all {
		if !c.ParentID.Valid {
			roots++
		}
	}
	assert.Equal(t, 1, roots)
}
