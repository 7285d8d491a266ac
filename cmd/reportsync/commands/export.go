package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/AnandSundar/go-reportsync/internal/log"
	"github.com/AnandSundar/go-reportsync/query"
)

// NewExportCommand creates the export command.
func NewExportCommand() *cobra.Command {
	var (
		qf     queryFlags
		output string
	)

	cmd := &cobra.Command{
		Use:     "export <provider> <type>",
		Short:   "Download a report as CSV",
		Example: `  reportsync export ocp-aws cost --filter resolution=monthly --group-by service=* -o costs.csv`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			endpoint, err := a.endpoint(args[0], args[1])
			if err != nil {
				return err
			}
			q, err := qf.build()
			if err != nil {
				return err
			}
			canonical, err := query.Canonicalize(q)
			if err != nil {
				return err
			}

			data, err := a.client.Export(cmd.Context(), endpoint.Path, canonical)
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}

			if err := os.WriteFile(output, data, 0o644); err != nil {
				return err
			}
			a.logger.Info("Report exported",
				log.FieldOperation, log.OpExport,
				log.FieldPath, output,
				"bytes", len(data))
			return nil
		},
	}

	qf.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "write CSV to file instead of stdout")

	return cmd
}
