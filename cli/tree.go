package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"ogsm-service/models"
	"ogsm-service/store"
)

// TreeCmd returns the tree command
func TreeCmd() *cobra.Command {
	var (
		useSQL   bool
		maxDepth int
	)

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the OGSM forest",
		Long: `Print every component as an indented forest, objectives first.

With --sql the forest is assembled by a recursive query inside PostgreSQL
instead of in the service.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), configPath(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			var nodes []models.TreeNode
			if useSQL {
				conn, err := a.postgres()
				if err != nil {
					return err
				}
				nodes, err = store.NewComponentStore(conn).HierarchyTree(cmd.Context(), maxDepth)
				if err != nil {
					return err
				}
			} else {
				nodes, err = a.components.Tree(cmd.Context())
				if err != nil {
					return err
				}
			}

			if len(nodes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No components.")
				return nil
			}
			renderTree(cmd.OutOrStdout(), nodes)
			return nil
		},
	}

	cmd.Flags().BoolVar(&useSQL, "sql", false, "assemble the tree in PostgreSQL")
	cmd.Flags().IntVar(&maxDepth, "depth", 64, "maximum number of levels to expand with --sql")
	return cmd
}

var typeColors = map[models.ComponentType]*color.Color{
	models.TypeObjective: color.New(color.FgHiMagenta, color.Bold),
	models.TypeGoal:      color.New(color.FgCyan),
	models.TypeStrategy:  color.New(color.FgGreen),
	models.TypeMeasure:   color.New(color.FgYellow),
}

// renderTree prints nodes depth first. nodes must be ordered by level then
// order_index, which keeps siblings in display order.
func renderTree(w io.Writer, nodes []models.TreeNode) {
	children := make(map[uuid.UUID][]models.TreeNode)
	var roots []models.TreeNode
	for _, n := range nodes {
		if n.Level == 0 {
			roots = append(roots, n)
			continue
		}
		children[n.ParentID.UUID] = append(children[n.ParentID.UUID], n)
	}

	var walk func(n models.TreeNode)
	walk = func(n models.TreeNode) {
		label := strings.ToUpper(string(n.Type))
		if c, ok := typeColors[n.Type]; ok {
			label = c.Sprint(label)
		}
		fmt.Fprintf(w, "%s%s %s %s\n", strings.Repeat("  ", n.Level), label, n.Title, color.New(color.Faint).Sprintf("(%s)", n.ID))
		for _, child := range children[n.ID] {
			walk(child)
		}
	}
	for _, r := range roots {
		walk(r)
	}
}
