// Package main provides the entry point for the reportsync CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AnandSundar/go-reportsync/cmd/reportsync/commands"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "reportsync",
		Short: "Cost-management report cache and fetch dispatcher",
		Long: `reportsync fetches cost-management reports, de-duplicates in-flight
requests and serves cached reports while they are revalidated.

Commands:
  serve       HTTP host for the report cache
  fetch       Fetch one report and print its cached view
  export      Download a report as CSV
  categories  List report categories and their API paths
  notify      Publish a refresh notification for a provider`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String(commands.FlagConfig, "", "config file (default ./reportsync.yaml)")

	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewFetchCommand())
	rootCmd.AddCommand(commands.NewExportCommand())
	rootCmd.AddCommand(commands.NewCategoriesCommand())
	rootCmd.AddCommand(commands.NewNotifyCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
