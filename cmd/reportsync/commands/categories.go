package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AnandSundar/go-reportsync/report"
)

// NewCategoriesCommand creates the categories command.
func NewCategoriesCommand() *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List report categories and their API paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printCategories(cmd, report.NewRegistry(), report.Provider(provider))
		},
	}

	cmd.Flags().StringVarP(&provider, "provider", "p", "", "only list this provider")

	return cmd
}

func printCategories(cmd *cobra.Command, r *report.Registry, provider report.Provider) error {
	w := cmd.OutOrStdout()
	for _, c := range r.Categories() {
		if provider != "" && c.Provider != provider {
			continue
		}
		e, err := r.Lookup(c)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%-10s %-14s %s\n", c.Provider, c.Type, e.Path); err != nil {
			return err
		}
	}
	return nil
}
