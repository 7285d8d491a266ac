// Package commands implements the reportsync CLI commands.
package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"

	reportsync "github.com/AnandSundar/go-reportsync"
	"github.com/AnandSundar/go-reportsync/api"
	"github.com/AnandSundar/go-reportsync/internal/config"
	"github.com/AnandSundar/go-reportsync/internal/log"
	"github.com/AnandSundar/go-reportsync/query"
	"github.com/AnandSundar/go-reportsync/report"
	"github.com/AnandSundar/go-reportsync/store"
)

// FlagConfig is the persistent flag naming the config file
const FlagConfig = "config"

// app holds what every command builds from configuration
type app struct {
	cfg      *config.Config
	logger   *log.Logger
	registry *report.Registry
	client   *api.Client
}

func newApp(cmd *cobra.Command, logOut io.Writer) (*app, error) {
	path, _ := cmd.Flags().GetString(FlagConfig)

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logger := log.New(log.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Component: log.ComponentApp,
		Output:    logOut,
	})
	log.SetDefault(logger)

	client := api.NewClient(cfg.API.BaseURL, cfg.API.Token,
		api.WithTimeout(cfg.API.Timeout),
		api.WithLogger(logger.Logger),
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: report.NewRegistry(),
		client:   client,
	}, nil
}

// newStore opens the configured store; the returned func releases it
func (a *app) newStore() (reportsync.Store, func() error, error) {
	switch a.cfg.Store.Backend {
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: a.cfg.Store.RedisAddr})
		s := store.NewRedisStore(rdb,
			store.WithPrefix(a.cfg.Store.RedisPrefix),
			store.WithTTL(a.cfg.Store.TTL),
		)
		return s, rdb.Close, nil
	case config.BackendMemory:
		s := store.NewMemoryStore()
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: store backend %q", config.ErrInvalidConfig, a.cfg.Store.Backend)
	}
}

func (a *app) newDispatcher(s reportsync.Store, meter metric.Meter) (*reportsync.Dispatcher, error) {
	opts := []reportsync.Option{
		reportsync.WithMaxAge(a.cfg.Dispatch.MaxAge),
		reportsync.WithInFlightTimeout(a.cfg.Dispatch.InFlightTimeout),
		reportsync.WithRequestTimeout(a.cfg.Dispatch.RequestTimeout),
		reportsync.WithMaxConcurrent(a.cfg.Dispatch.MaxConcurrent),
		reportsync.WithLogger(a.logger.Logger),
	}
	if meter != nil {
		opts = append(opts, reportsync.WithMeter(meter))
	}
	return reportsync.NewDispatcher(s, a.client, a.registry, opts...)
}

func (a *app) endpoint(provider, reportType string) (report.Endpoint, error) {
	category, err := report.ParseCategory(provider, reportType)
	if err != nil {
		return report.Endpoint{}, err
	}
	return a.registry.Lookup(category)
}

// queryFlags are the flags that shape a report query
type queryFlags struct {
	filters []string
	groupBy []string
	orderBy []string
	params  []string
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.filters, "filter", nil, "filter as key=value, e.g. resolution=monthly (repeatable)")
	cmd.Flags().StringArrayVar(&f.groupBy, "group-by", nil, "group by as key=value, e.g. account=* (repeatable)")
	cmd.Flags().StringArrayVar(&f.orderBy, "order-by", nil, "order by as key=asc|desc (repeatable)")
	cmd.Flags().StringArrayVar(&f.params, "param", nil, "top-level parameter as key=value, e.g. limit=10 (repeatable)")
}

var errBadPair = errors.New("expected key=value")

// build assembles the query; repeated keys become multi-value filters
func (f *queryFlags) build() (query.Query, error) {
	q := query.Query{}
	sections := []struct {
		name  string
		pairs []string
	}{
		{"filter", f.filters},
		{"group_by", f.groupBy},
		{"order_by", f.orderBy},
	}
	for _, s := range sections {
		if len(s.pairs) == 0 {
			continue
		}
		sub := query.Query{}
		if err := addPairs(sub, s.pairs); err != nil {
			return nil, fmt.Errorf("--%s: %w", strings.ReplaceAll(s.name, "_", "-"), err)
		}
		q[s.name] = sub
	}
	if err := addPairs(q, f.params); err != nil {
		return nil, fmt.Errorf("--param: %w", err)
	}
	return q, nil
}

func addPairs(into query.Query, pairs []string) error {
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return fmt.Errorf("%w: %q", errBadPair, pair)
		}
		switch existing := into[k].(type) {
		case nil:
			into[k] = v
		case string:
			into[k] = []string{existing, v}
		case []string:
			into[k] = append(existing, v)
		default:
			return fmt.Errorf("%w: %q repeats a nested key", errBadPair, pair)
		}
	}
	return nil
}
