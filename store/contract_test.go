package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ogsm-service/apierr"
	"ogsm-service/models"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func under(c *models.Component) uuid.NullUUID {
	return uuid.NullUUID{UUID: c.ID, Valid: true}
}

func mustCreate(t *testing.T, repo Repository, in models.NewComponent) *models.Component {
	t.Helper()
	c, err := repo.CreateComponent(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, c)
	return c
}

// runRepositoryContract exercises behavior every Repository must share.
// newRepo must return an empty repository.
func runRepositoryContract(t *testing.T, newRepo func(t *testing.T) Repository) {
	ctx := context.Background()

	t.Run("Create root and child", func(t *testing.T) {
		repo := newRepo(t)
		doc := uuid.New()
		root := mustCreate(t, repo, models.NewComponent{Type: models.TypeObjective, Title: "Grow", Description: "top", DocumentID: uuid.NullUUID{UUID: doc, Valid: true}})
		assert.NotEqual(t, uuid.Nil, root.ID)
		assert.False(t, root.ParentID.Valid)
		assert.False(t, root.CreatedAt.IsZero())
		assert.Equal(t, doc, root.DocumentID.UUID)

		child := mustCreate(t, repo, models.NewComponent{Type: models.TypeGoal, Title: "Revenue", ParentID: under(root), OrderIndex: 3})
		got, err := repo.GetComponent(ctx, child.ID)
		require.NoError(t, err)
		assert.Equal(t, root.ID, got.ParentID.UUID)
		assert.Equal(t, 3, got.OrderIndex)
		assert.Equal(t, models.TypeGoal, got.Type)
	})

	t.Run("Create with missing parent is invalid", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.CreateComponent(ctx, models.NewComponent{Type: models.TypeGoal, Title: "x", ParentID: uuid.NullUUID{UUID: uuid.New(), Valid: true}})
		assert.ErrorIs(t, err, apierr.ErrInvalidArgument)
	})

	t.Run("Get missing", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetComponent(ctx, uuid.New())
		assert.ErrorIs(t, err, apierr.ErrNotFound)
	})

	t.Run("Update coalesces", func(t *testing.T) {
		repo := newRepo(t)
		o1 := mustCreate(t, repo, models.NewComponent{Type: models.TypeObjective, Title: "O1"})
		o2 := mustCreate(t, repo, models.NewComponent{Type: models.TypeObjective, Title: "O2"})
		g := mustCreate(t, repo, models.NewComponent{Type: models.TypeGoal, Title: "G", Description: "keep", ParentID: under(o1), OrderIndex: 2})

		updated, err := repo.UpdateComponent(ctx, g.ID, models.ComponentPatch{Title: strPtr("G renamed")})
		require.NoError(t, err)
		assert.Equal(t, "G renamed", updated.Title)
		assert.Equal(t, "keep", updated.Description)
		assert.Equal(t, 2, updated.OrderIndex)
		assert.Equal(t, o1.ID, updated.ParentID.UUID)
		assert.False(t, updated.UpdatedAt.Before(g.UpdatedAt))

		moved, err := repo.UpdateComponent(ctx, g.ID, models.ComponentPatch{Parent: models.Under(o2.ID), OrderIndex: intPtr(0)})
		require.NoError(t, err)
		assert.Equal(t, o2.ID, moved.ParentID.UUID)
		assert.Equal(t, 0, moved.OrderIndex)

		detached, err := repo.UpdateComponent(ctx, g.ID, models.ComponentPatch{Parent: models.Detach()})
		require.NoError(t, err)
		assert.False(t, detached.ParentID.Valid)
		assert.Equal(t, "G renamed", detached.Title)
	})

	t.Run("Update missing", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.UpdateComponent(ctx, uuid.New(), models.ComponentPatch{Title: strPtr("x")})
		assert.ErrorIs(t, err, apierr.ErrNotFound)
	})

	t.Run("Delete cascades and returns prior row", func(t *testing.T) {
		repo := newRepo(t)
		o := mustCreate(t, repo, models.NewComponent{Type: models.TypeObjective, Title: "O"})
		g := mustCreate(t, repo, models.NewComponent{Type: models.TypeGoal, Title: "G", ParentID: under(o)})
		s := mustCreate(t, repo, models.NewComponent{Type: models.TypeStrategy, Title: "S", ParentID: under(g)})
		other := mustCreate(t, repo, models.NewComponent{Type: models.TypeObjective, Title: "other"})

		deleted, err := repo.DeleteComponent(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, "O", deleted.Title)

		for _, id := range []uuid.UUID{o.ID, g.ID, s.ID} {
			_, err := repo.GetComponent(ctx, id)
			assert.ErrorIs(t, err, apierr.ErrNotFound)
		}
		_, err = repo.GetComponent(ctx, other.ID)
		assert.NoError(t, err)

		_, err = repo.DeleteComponent(ctx, o.ID)
		assert.ErrorIs(t, err, apierr.ErrNotFound)
	})

	t.Run("List filters and orders", func(t *testing.T) {
		repo := newRepo(t)
		doc := uuid.New()
		o := mustCreate(t, repo, models.NewComponent{Type: models.TypeObjective, Title: "O", OrderIndex: 5})
		mustCreate(t, repo, models.NewComponent{Type: models.TypeGoal, Title: "G2", ParentID: under(o), OrderIndex: 2, DocumentID: uuid.NullUUID{UUID: doc, Valid: true}})
		mustCreate(t, repo, models.NewComponent{Type: models.TypeGoal, Title: "G1", ParentID: under(o), OrderIndex: 1})

		all, err := repo.ListComponents(ctx, models.ComponentFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"G1", "G2", "O"}, []string{all[0].Title, all[1].Title, all[2].Title})

		goals, err := repo.ListComponents(ctx, models.ComponentFilter{Type: models.TypeGoal})
		require.NoError(t, err)
		assert.Len(t, goals, 2)

		byDoc, err := repo.ListComponents(ctx, models.ComponentFilter{DocumentID: uuid.NullUUID{UUID: doc, Valid: true}})
		require.NoError(t, err)
		require.Len(t, byDoc, 1)
		assert.Equal(t, "G2", byDoc[0].Title)

		none, err := repo.ListComponents(ctx, models.ComponentFilter{Type: models.TypeMeasure})
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)

		children, err := repo.ListChildren(ctx, o.ID)
		require.NoError(t, err)
		require.Len(t, children, 2)
		assert.Equal(t, "G1", children[0].Title)
	})

	t.Run("Sibling shift", func(t *testing.T) {
		repo := newRepo(t)
		o := mustCreate(t, repo, models.NewComponent{Type: models.TypeObjective, Title: "O"})
		a := mustCreate(t, repo, models.NewComponent{Type: models.TypeGoal, Title: "A", ParentID: under(o), OrderIndex: 0})
		b := mustCreate(t, repo, models.NewComponent{Type: models.TypeGoal, Title: "B", ParentID: under(o), OrderIndex: 1})
		c := mustCreate(t, repo, models.NewComponent{Type: models.TypeGoal, Title: "C", ParentID: under(o), OrderIndex: 2})

		taken, err := repo.SiblingIndexTaken(ctx, under(o), 1, a.ID)
		require.NoError(t, err)
		assert.True(t, taken)
		taken, err = repo.SiblingIndexTaken(ctx, under(o), 1, b.ID)
		require.NoError(t, err)
		assert.False(t, taken)

		n, err := repo.ShiftSiblings(ctx, under(o), 1, a.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		gotB, _ := repo.GetComponent(ctx, b.ID)
		gotC, _ := repo.GetComponent(ctx, c.ID)
		gotA, _ := repo.GetComponent(ctx, a.ID)
		assert.Equal(t, 0, gotA.OrderIndex)
		assert.Equal(t, 2, gotB.OrderIndex)
		assert.Equal(t, 3, gotC.OrderIndex)

		rootTaken, err := repo.SiblingIndexTaken(ctx, uuid.NullUUID{}, 0, uuid.Nil)
		require.NoError(t, err)
		assert.True(t, rootTaken, "root components share the null parent")
	})

	t.Run("Transaction rollback", func(t *testing.T) {
		repo := newRepo(t)
		o := mustCreate(t, repo, models.NewComponent{Type: models.TypeObjective, Title: "O"})
		boom := errors.New("boom")

		err := repo.WithTx(ctx, func(tx Repository) error {
			require.NoError(t, tx.LockHierarchy(ctx))
			if _, err := tx.UpdateComponent(ctx, o.ID, models.ComponentPatch{Title: strPtr("changed")}); err != nil {
				return err
			}
			if _, err := tx.CreateComponent(ctx, models.NewComponent{Type: models.TypeGoal, Title: "G", ParentID: under(o)}); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := repo.GetComponent(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, "O", got.Title)
		children, err := repo.ListChildren(ctx, o.ID)
		require.NoError(t, err)
		assert.Empty(t, children)
	})

	t.Run("Transaction commit", func(t *testing.T) {
		repo := newRepo(t)
		var created *models.Component
		err := repo.WithTx(ctx, func(tx Repository) error {
			o, err := tx.CreateComponent(ctx, models.NewComponent{Type: models.TypeObjective, Title: "O"})
			if err != nil {
				return err
			}
			// Reads inside the transaction see its own writes.
			if _, err := tx.GetComponent(ctx, o.ID); err != nil {
				return err
			}
			created = o
			return tx.WithTx(ctx, func(inner Repository) error {
				_, err := inner.CreateComponent(ctx, models.NewComponent{Type: models.TypeGoal, Title: "G", ParentID: under(o)})
				return err
			})
		})
		require.NoError(t, err)
		children, err := repo.ListChildren(ctx, created.ID)
		require.NoError(t, err)
		assert.Len(t, children, 1)
	})
}
