package commands

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AnandSundar/go-reportsync/internal/events"
	"github.com/AnandSundar/go-reportsync/report"
)

// NewNotifyCommand creates the notify command.
func NewNotifyCommand() *cobra.Command {
	var sourceUUID string

	cmd := &cobra.Command{
		Use:   "notify <provider>",
		Short: "Publish a refresh notification so serving hosts revalidate a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if a.cfg.AMQP.URL == "" {
				return errors.New("amqp.url is not configured")
			}

			provider := report.Provider(strings.ToLower(strings.TrimSpace(args[0])))

			client, err := events.NewClient(a.cfg.AMQP.URL, a.cfg.AMQP.Exchange, a.cfg.AMQP.Queue, a.logger)
			if err != nil {
				return err
			}
			defer client.Close()

			return client.PublishRefresh(cmd.Context(), provider, sourceUUID)
		},
	}

	cmd.Flags().StringVar(&sourceUUID, "source", "", "UUID of the source that finished processing")

	return cmd
}
