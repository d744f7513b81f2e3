package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"ogsm-service/apierr"
	"ogsm-service/models"
)

// hierarchyLockKey is the pg_advisory_xact_lock key guarding parent reassignment.
const hierarchyLockKey int64 = 0x6f67736d // "ogsm"

const componentColumns = `id, component_type, title, description, parent_id, order_index, document_id, created_at, updated_at`

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ComponentStore handles database operations for components.
type ComponentStore struct {
	db *sql.DB
	q  DBTX
}

func NewComponentStore(db *sql.DB) *ComponentStore {
	return &ComponentStore{db: db, q: db}
}

func (s *ComponentStore) inTx() bool {
	_, ok := s.q.(*sql.Tx)
	return ok
}

// WithTx begins a transaction unless one is already open, in which case fn
// joins it.
func (s *ComponentStore) WithTx(ctx context.Context, fn func(Repository) error) error {
	if s.inTx() {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&ComponentStore{db: s.db, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *ComponentStore) LockHierarchy(ctx context.Context) error {
	if !s.inTx() {
		return nil
	}
	if _, err := s.q.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, hierarchyLockKey); err != nil {
		return fmt.Errorf("error acquiring hierarchy lock: %w", err)
	}
	return nil
}

// CreateComponent inserts a new component under a freshly generated id.
func (s *ComponentStore) CreateComponent(ctx context.Context, in models.NewComponent) (*models.Component, error) {
	query := `INSERT INTO ogsm_components (id, component_type, title, description, parent_id, order_index, document_id, created_at, updated_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
              RETURNING ` + componentColumns

	row := s.q.QueryRowContext(ctx, query,
		uuid.New(),
		string(in.Type),
		in.Title,
		in.Description,
		in.ParentID,
		in.OrderIndex,
		in.DocumentID,
	)
	c, err := scanComponent(row)
	if err != nil {
		return nil, mapError("error creating component", err)
	}
	return c, nil
}

// GetComponent retrieves a component by its ID.
func (s *ComponentStore) GetComponent(ctx context.Context, id uuid.UUID) (*models.Component, error) {
	query := `SELECT ` + componentColumns + ` FROM ogsm_components WHERE id = $1`
	c, err := scanComponent(s.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("component with ID %s: %w", id, apierr.ErrNotFound)
		}
		return nil, fmt.Errorf("error getting component by ID %s: %w", id, err)
	}
	return c, nil
}

// UpdateComponent applies a coalesce-style patch and refreshes updated_at.
func (s *ComponentStore) UpdateComponent(ctx context.Context, id uuid.UUID, patch models.ComponentPatch) (*models.Component, error) {
	query := `UPDATE ogsm_components
              SET title       = COALESCE($2::text, title),
                  description = COALESCE($3::text, description),
                  order_index = COALESCE($4::integer, order_index),
                  parent_id   = CASE WHEN $5::boolean THEN $6::uuid ELSE parent_id END,
                  updated_at  = NOW()
              WHERE id = $1
              RETURNING ` + componentColumns

	row := s.q.QueryRowContext(ctx, query,
		id,
		patch.Title,
		patch.Description,
		patch.OrderIndex,
		patch.Parent.Present,
		patch.Parent.ID,
	)
	c, err := scanComponent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("component with ID %s not found for update: %w", id, apierr.ErrNotFound)
		}
		return nil, mapError(fmt.Sprintf("error updating component with ID %s", id), err)
	}
	return c, nil
}

// DeleteComponent removes a component; children go with it via ON DELETE CASCADE.
func (s *ComponentStore) DeleteComponent(ctx context.Context, id uuid.UUID) (*models.Component, error) {
	query := `DELETE FROM ogsm_components WHERE id = $1 RETURNING ` + componentColumns
	c, err := scanComponent(s.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("component with ID %s not found for deletion: %w", id, apierr.ErrNotFound)
		}
		return nil, fmt.Errorf("error deleting component with ID %s: %w", id, err)
	}
	return c, nil
}

// ListComponents retrieves components matching filter in display order.
func (s *ComponentStore) ListComponents(ctx context.Context, filter models.ComponentFilter) ([]*models.Component, error) {
	var (
		where []string
		args  []any
	)
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		where = append(where, fmt.Sprintf("component_type = $%d", len(args)))
	}
	if filter.DocumentID.Valid {
		args = append(args, filter.DocumentID.UUID)
		where = append(where, fmt.Sprintf("document_id = $%d", len(args)))
	}

	query := `SELECT ` + componentColumns + ` FROM ogsm_components`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY order_index ASC, created_at ASC, id ASC"

	return s.queryComponents(ctx, "error listing components", query, args...)
}

// ListChildren retrieves all direct children of a given parent component ID.
func (s *ComponentStore) ListChildren(ctx context.Context, parentID uuid.UUID) ([]*models.Component, error) {
	query := `SELECT ` + componentColumns + ` FROM ogsm_components
              WHERE parent_id = $1 ORDER BY order_index ASC, created_at ASC, id ASC`
	return s.queryComponents(ctx, fmt.Sprintf("error listing child components for parent ID %s", parentID), query, parentID)
}

func (s *ComponentStore) SiblingIndexTaken(ctx context.Context, parentID uuid.NullUUID, orderIndex int, excludeID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (
                SELECT 1 FROM ogsm_components
                WHERE parent_id IS NOT DISTINCT FROM $1::uuid AND order_index = $2 AND id <> $3
              )`
	var taken bool
	if err := s.q.QueryRowContext(ctx, query, parentID, orderIndex, excludeID).Scan(&taken); err != nil {
		return false, fmt.Errorf("error checking sibling order: %w", err)
	}
	return taken, nil
}

func (s *ComponentStore) ShiftSiblings(ctx context.Context, parentID uuid.NullUUID, fromIndex int, excludeID uuid.UUID) (int64, error) {
	query := `UPDATE ogsm_components
              SET order_index = order_index + 1, updated_at = NOW()
              WHERE parent_id IS NOT DISTINCT FROM $1::uuid AND order_index >= $2 AND id <> $3`
	result, err := s.q.ExecContext(ctx, query, parentID, fromIndex, excludeID)
	if err != nil {
		return 0, fmt.Errorf("error shifting siblings: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error getting rows affected for sibling shift: %w", err)
	}
	return n, nil
}

// HierarchyTree assembles the forest in the database with a recursive query.
// It orders like hierarchy.BuildTree and stops expanding after maxDepth levels.
func (s *ComponentStore) HierarchyTree(ctx context.Context, maxDepth int) ([]models.TreeNode, error) {
	query := `WITH RECURSIVE tree AS (
                SELECT id, component_type, title, description, parent_id, order_index, 0 AS level
                FROM ogsm_components
                WHERE parent_id IS NULL
                UNION ALL
                SELECT c.id, c.component_type, c.title, c.description, c.parent_id, c.order_index, t.level + 1
                FROM ogsm_components c
                JOIN tree t ON c.parent_id = t.id
                WHERE t.level + 1 < $1
              )
              SELECT id, component_type, title, description, parent_id, order_index, level
              FROM tree
              ORDER BY level ASC, order_index ASC`

	rows, err := s.q.QueryContext(ctx, query, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("error building hierarchy tree: %w", err)
	}
	defer rows.Close()

	var nodes []models.TreeNode
	for rows.Next() {
		var (
			n     models.TreeNode
			ctype string
		)
		if err := rows.Scan(&n.ID, &ctype, &n.Title, &n.Description, &n.ParentID, &n.OrderIndex, &n.Level); err != nil {
			return nil, fmt.Errorf("error scanning tree row: %w", err)
		}
		n.Type = models.ComponentType(ctype)
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tree rows: %w", err)
	}
	return nodes, nil
}

func (s *ComponentStore) queryComponents(ctx context.Context, op, query string, args ...any) ([]*models.Component, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	components := []*models.Component{}
	for rows.Next() {
		c, err := scanComponent(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: error scanning component row: %w", op, err)
		}
		components = append(components, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: error iterating component rows: %w", op, err)
	}
	return components, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComponent(row rowScanner) (*models.Component, error) {
	var (
		c     models.Component
		ctype string
	)
	err := row.Scan(
		&c.ID,
		&ctype,
		&c.Title,
		&c.Description,
		&c.ParentID,
		&c.OrderIndex,
		&c.DocumentID,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Type = models.ComponentType(ctype)
	return &c, nil
}

// mapError turns constraint violations into client errors. Everything else
// stays a storage failure.
func mapError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "foreign_key_violation":
			return fmt.Errorf("%s: referenced parent component does not exist: %w", op, apierr.ErrInvalidArgument)
		case "check_violation", "not_null_violation", "invalid_text_representation":
			return fmt.Errorf("%s: %s: %w", op, pqErr.Message, apierr.ErrInvalidArgument)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
