package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"ogsm-service/service"
)

// ImportCmd returns the import command
func ImportCmd() *cobra.Command {
	var parent string

	cmd := &cobra.Command{
		Use:   "import <template.yaml>",
		Short: "Create components from a YAML plan template",
		Long: `Create a nested set of components from a YAML template in one transaction.
Every parent/child edge is validated; if any edge is rejected nothing is created.

Example template:

  nodes:
    - type: objective
      title: Become the regional leader
      children:
        - type: goal
          title: Grow revenue 20%`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open template: %w", err)
			}
			defer f.Close()

			tpl, err := service.LoadTemplate(f)
			if err != nil {
				return err
			}
			if parent != "" {
				id, err := uuid.Parse(parent)
				if err != nil {
					return fmt.Errorf("--parent %q is not a valid uuid", parent)
				}
				tpl.ParentID = uuid.NullUUID{UUID: id, Valid: true}
			}

			a, err := newApp(cmd.Context(), configPath(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			created, err := a.components.ApplyTemplate(cmd.Context(), *tpl)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d components from %s\n", color.New(color.FgGreen).Sprint("Created"), len(created), args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&parent, "parent", "", "attach the template's root nodes under this component id")
	return cmd
}
