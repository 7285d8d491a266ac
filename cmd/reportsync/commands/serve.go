package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AnandSundar/go-reportsync/internal/events"
	"github.com/AnandSundar/go-reportsync/internal/log"
	"github.com/AnandSundar/go-reportsync/internal/observability"
	"github.com/AnandSundar/go-reportsync/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the report cache over HTTP",
		Long: `Serve the report cache over HTTP.

  GET    /api/reports/{provider}/{type}?<query>  fetch and return the cached view
  DELETE /api/reports                            drop every cached report
  GET    /api/categories                         list categories
  GET    /healthz, /metrics

When amqp.url is set, refresh messages on amqp.queue revalidate the cached
reports of their provider.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd)
		},
	}
}

func runServe(ctx context.Context, cmd *cobra.Command) error {
	a, err := newApp(cmd, os.Stdout)
	if err != nil {
		return err
	}
	logger := a.logger

	mp, metricsHandler, err := observability.NewPrometheus()
	if err != nil {
		return err
	}
	defer func() {
		if err := mp.Shutdown(context.Background()); err != nil {
			logger.Warn("Metrics shutdown failed", log.FieldError, err)
		}
	}()

	s, closeStore, err := a.newStore()
	if err != nil {
		return err
	}
	defer closeStore()

	d, err := a.newDispatcher(s, mp.Meter("reportsync"))
	if err != nil {
		return err
	}

	srv := server.New(d, s, a.registry,
		server.WithLogger(logger),
		server.WithMetricsHandler(metricsHandler),
	)
	httpServer := &http.Server{
		Addr:    a.cfg.Server.Addr,
		Handler: srv.Handler(),
	}

	var consumer *events.Client
	if a.cfg.AMQP.URL != "" {
		consumer, err = events.NewClient(a.cfg.AMQP.URL, a.cfg.AMQP.Exchange, a.cfg.AMQP.Queue, logger)
		if err != nil {
			return err
		}
		defer consumer.Close()
	}

	g, ctx := errgroup.WithContext(ctx)

	if consumer != nil {
		g.Go(func() error {
			if err := consumer.Consume(ctx, d); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.InfoContext(ctx, "HTTP server listening",
			log.FieldOperation, log.OpStartup,
			"addr", a.cfg.Server.Addr,
			"store", a.cfg.Store.Backend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down", log.FieldOperation, log.OpShutdown)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		d.Wait()
		return err
	})

	return g.Wait()
}
