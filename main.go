package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ogsm-service/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ogsm",
		Short: "OGSM hierarchy service",
		Long: `ogsm manages the Objectives, Goals, Strategies and Measures of a strategic plan
as a validated forest of components, served over an HTTP JSON API.

Configuration comes from an optional YAML file (--config) overridden by
environment variables such as DB_HOST, PORT, STORAGE_DRIVER and REDIS_ADDR.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", "", "path to a YAML config file")

	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.MigrateCmd())
	rootCmd.AddCommand(cli.TreeCmd())
	rootCmd.AddCommand(cli.ImportCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
