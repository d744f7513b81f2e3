package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"ogsm-service/apierr"
	"ogsm-service/models"
	"ogsm-service/store"
)

// Template is a nested plan outline that ApplyTemplate expands into
// components. Root nodes attach under ParentID when it is set.
type Template struct {
	ParentID   uuid.NullUUID  `json:"parent_id" yaml:"-"`
	DocumentID uuid.NullUUID  `json:"document_id" yaml:"-"`
	Nodes      []TemplateNode `json:"nodes" yaml:"nodes"`

	// Parent and Document are the YAML spellings of the ids above.
	Parent   string `json:"-" yaml:"parent_id,omitempty"`
	Document string `json:"-" yaml:"document_id,omitempty"`
}

type TemplateNode struct {
	Type        models.ComponentType `json:"component_type" yaml:"type"`
	Title       string               `json:"title" yaml:"title"`
	Description string               `json:"description" yaml:"description,omitempty"`
	OrderIndex  *int                 `json:"order_index" yaml:"order_index,omitempty"`
	Children    []TemplateNode       `json:"children" yaml:"children,omitempty"`

	// ComponentType lets YAML and JSON files use the API's field name.
	ComponentType models.ComponentType `json:"-" yaml:"component_type,omitempty"`
}

// LoadTemplate decodes a YAML or JSON template. A node names its type with
// either "type" or the API's "component_type".
func LoadTemplate(r io.Reader) (*Template, error) {
	var tpl Template
	if err := yaml.NewDecoder(r).Decode(&tpl); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("template is empty")
		}
		return nil, fmt.Errorf("decode template: %w", err)
	}
	var err error
	if tpl.ParentID, err = parseOptionalID("parent_id", tpl.Parent); err != nil {
		return nil, err
	}
	if tpl.DocumentID, err = parseOptionalID("document_id", tpl.Document); err != nil {
		return nil, err
	}
	for i := range tpl.Nodes {
		normalizeNode(&tpl.Nodes[i])
	}
	return &tpl, nil
}

func parseOptionalID(field, raw string) (uuid.NullUUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.NullUUID{}, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.NullUUID{}, fmt.Errorf("%s %q is not a valid uuid", field, raw)
	}
	return uuid.NullUUID{UUID: id, Valid: true}, nil
}

func normalizeNode(n *TemplateNode) {
	if n.Type == "" {
		n.Type = n.ComponentType
	}
	n.ComponentType = ""
	n.Type = models.ComponentType(strings.ToLower(strings.TrimSpace(string(n.Type))))
	for i := range n.Children {
		normalizeNode(&n.Children[i])
	}
}

// ApplyTemplate creates every node of tpl in one transaction, parents before
// children. Each edge is checked by the validator, so a template can never
// produce a relation that a single create would have been refused.
func (s *ComponentService) ApplyTemplate(ctx context.Context, tpl Template) ([]*models.Component, error) {
	if len(tpl.Nodes) == 0 {
		return nil, apierr.Validation("INVALID_REQUEST", "template has no nodes")
	}

	var created []*models.Component
	err := s.repo.WithTx(ctx, func(tx store.Repository) error {
		if err := tx.LockHierarchy(ctx); err != nil {
			return err
		}
		return s.applyNodes(ctx, tx, tpl.Nodes, tpl.ParentID, tpl.DocumentID, "nodes", 1, &created)
	})
	if err != nil {
		return nil, apierr.From(err)
	}

	s.invalidateTree(ctx)
	s.log.Info("Template applied", "created", len(created), "parent_id", tpl.ParentID)
	return created, nil
}

func (s *ComponentService) applyNodes(ctx context.Context, tx store.Repository, nodes []TemplateNode, parent, document uuid.NullUUID, path string, depth int, created *[]*models.Component) error {
	if depth > s.treeDepth {
		return apierr.Validation("INVALID_REQUEST", "%s: template deeper than %d levels", path, s.treeDepth)
	}
	for i, n := range nodes {
		at := fmt.Sprintf("%s[%d]", path, i)
		title := strings.TrimSpace(n.Title)
		if title == "" {
			return apierr.Validation("MISSING_FIELD", "%s: title is required", at)
		}
		if !n.Type.Valid() {
			return apierr.Validation("INVALID_COMPONENT_TYPE", "%s: invalid component_type %q", at, n.Type)
		}

		res, err := s.validator.ValidateNewChild(ctx, tx, n.Type, parent)
		if err != nil {
			return err
		}
		if !res.Valid {
			return apierr.Validation(CodeInvalidHierarchy, "%s: %s", at, res.Error)
		}

		order := i
		if n.OrderIndex != nil {
			order = *n.OrderIndex
		}
		c, err := tx.CreateComponent(ctx, models.NewComponent{
			Type:        n.Type,
			Title:       title,
			Description: n.Description,
			ParentID:    parent,
			OrderIndex:  order,
			DocumentID:  document,
		})
		if err != nil {
			return err
		}
		*created = append(*created, c)

		if err := s.applyNodes(ctx, tx, n.Children, uuid.NullUUID{UUID: c.ID, Valid: true}, document, at+".children", depth+1, created); err != nil {
			return err
		}
	}
	return nil
}
