package commands

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	reportsync "github.com/AnandSundar/go-reportsync"
	"github.com/AnandSundar/go-reportsync/report"
)

// ErrFetchFailed is returned when the backend request settled in error
var ErrFetchFailed = errors.New("report fetch failed")

type fetchOutput struct {
	Key    string            `json:"key"`
	Status reportsync.Status `json:"status"`
	Data   *report.Report    `json:"data,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// NewFetchCommand creates the fetch command.
func NewFetchCommand() *cobra.Command {
	var qf queryFlags

	cmd := &cobra.Command{
		Use:   "fetch <provider> <type>",
		Short: "Fetch one report and print its cached view as JSON",
		Example: `  reportsync fetch aws cost --filter resolution=monthly --filter time_scope_value=-1
  reportsync fetch ocp cpu --group-by project=* --param limit=5`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			category, err := report.ParseCategory(args[0], args[1])
			if err != nil {
				return err
			}
			q, err := qf.build()
			if err != nil {
				return err
			}

			s, closeStore, err := a.newStore()
			if err != nil {
				return err
			}
			defer closeStore()

			d, err := a.newDispatcher(s, nil)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := d.Fetch(ctx, category, q); err != nil {
				return err
			}
			d.Wait()

			key, err := reportsync.NewKey(category, q)
			if err != nil {
				return err
			}
			view, err := reportsync.Select(ctx, s, key)
			if err != nil {
				return err
			}

			out := fetchOutput{Key: key.String(), Status: view.Status, Data: view.Report}
			if view.Err != nil {
				out.Error = view.Err.Error()
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return err
			}

			if view.Status == reportsync.StatusError {
				return fmt.Errorf("%w: %s", ErrFetchFailed, out.Error)
			}
			return nil
		},
	}

	qf.register(cmd)

	return cmd
}
