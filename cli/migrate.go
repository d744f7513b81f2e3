package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ogsm-service/db"
)

// MigrateCmd returns the migrate command
func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the component schema to PostgreSQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), configPath(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			conn, err := a.postgres()
			if err != nil {
				return err
			}
			if err := db.Migrate(cmd.Context(), conn, a.log); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema applied.")
			return nil
		},
	}
}
