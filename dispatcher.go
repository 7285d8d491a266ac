package reportsync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/sync/semaphore"

	"github.com/AnandSundar/go-reportsync/internal/log"
	"github.com/AnandSundar/go-reportsync/internal/observability"
	"github.com/AnandSundar/go-reportsync/query"
	"github.com/AnandSundar/go-reportsync/report"
)

// settleTimeout bounds the store write that records a fetch result.
const settleTimeout = 5 * time.Second

// Dispatcher issues report fetches and records their lifecycle in a Store.
// It is the only writer of the store it is given.
type Dispatcher struct {
	store    Store
	fetcher  Fetcher
	registry *report.Registry
	config   Config
	logger   *log.Logger
	metrics  *observability.FetchMetrics
	sem      *semaphore.Weighted

	// mu serializes every read-check-write on the store, so two fetches for
	// one key cannot both see it idle
	mu    sync.Mutex
	token uint64
	known map[Key]report.Endpoint

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher. A nil registry uses report.NewRegistry().
func NewDispatcher(store Store, fetcher Fetcher, registry *report.Registry, opts ...Option) (*Dispatcher, error) {
	if store == nil {
		return nil, errors.New("reportsync: nil store")
	}
	if fetcher == nil {
		return nil, errors.New("reportsync: nil fetcher")
	}
	if registry == nil {
		registry = report.NewRegistry()
	}

	config := Config{
		InFlightTimeout: DefaultInFlightTimeout,
		RequestTimeout:  DefaultRequestTimeout,
		MaxConcurrent:   DefaultMaxConcurrent,
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.InFlightTimeout <= 0 {
		config.InFlightTimeout = DefaultInFlightTimeout
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = DefaultMaxConcurrent
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.Meter == nil {
		config.Meter = noop.NewMeterProvider().Meter("reportsync")
	}

	metrics, err := observability.NewFetchMetrics(config.Meter)
	if err != nil {
		return nil, fmt.Errorf("reportsync: %w", err)
	}

	return &Dispatcher{
		store:    store,
		fetcher:  fetcher,
		registry: registry,
		config:   config,
		logger:   log.FromSlog(config.Logger, log.ComponentDispatcher),
		metrics:  metrics,
		sem:      semaphore.NewWeighted(config.MaxConcurrent),
		// Seeded from the clock so dispatchers sharing a Redis store do not
		// hand out the same generations.
		token: uint64(config.Clock().UnixNano()),
		known: make(map[Key]report.Endpoint),
	}, nil
}

// Fetch starts a backend request for category and q unless an equivalent
// request is in flight or a fresh result is cached. It returns once the
// entry is marked in progress; the outcome is observed through the store.
//
// Fetch fails only for an unknown category, a query that cannot be
// canonicalized, or a store error. Backend failures are recorded in the entry.
func (d *Dispatcher) Fetch(ctx context.Context, category report.Category, q query.Query) error {
	endpoint, err := d.registry.Lookup(category)
	if err != nil {
		return err
	}

	key, err := NewKey(category, q)
	if err != nil {
		return fmt.Errorf("canonicalize %s query: %w", category, err)
	}

	return d.dispatch(ctx, key, endpoint, false)
}

// Revalidate refetches every key this dispatcher has dispatched for provider,
// ignoring the freshness window. Keys already in flight are not refetched.
func (d *Dispatcher) Revalidate(ctx context.Context, provider report.Provider) error {
	d.mu.Lock()
	var keys []Key
	for key := range d.known {
		if key.Category.Provider == provider {
			keys = append(keys, key)
		}
	}
	endpoints := make(map[Key]report.Endpoint, len(keys))
	for _, key := range keys {
		endpoints[key] = d.known[key]
	}
	d.mu.Unlock()

	slices.SortFunc(keys, func(a, b Key) int {
		return strings.Compare(a.String(), b.String())
	})

	d.logger.InfoContext(ctx, "Revalidating reports",
		log.FieldOperation, log.OpRevalidate,
		log.FieldProvider, string(provider),
		"keys", len(keys),
	)

	var errs []error
	for _, key := range keys {
		if err := d.dispatch(ctx, key, endpoints[key], true); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reset drops every entry. Requests still in flight settle into nothing.
func (d *Dispatcher) Reset(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.store.Reset(ctx); err != nil {
		return fmt.Errorf("reset store: %w", err)
	}
	d.known = make(map[Key]report.Endpoint)

	d.logger.InfoContext(ctx, "Report cache reset", log.FieldOperation, log.OpReset)
	return nil
}

// Wait blocks until every request started so far has settled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(ctx context.Context, key Key, endpoint report.Endpoint, force bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	category := key.Category.String()
	now := d.config.Clock()

	prev, err := d.store.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("get %s: %w", key, err)
	}
	d.known[key] = endpoint

	if prev != nil {
		switch {
		case prev.Status == StatusInProgress && now.Sub(prev.RequestedAt) < d.config.InFlightTimeout:
			d.metrics.RecordDeduplicated(ctx, category, observability.ReasonInFlight)
			return nil
		case !force && prev.Status == StatusComplete && d.config.MaxAge > 0 && now.Sub(prev.SettledAt) < d.config.MaxAge:
			d.metrics.RecordDeduplicated(ctx, category, observability.ReasonFresh)
			return nil
		}
	}

	var release func()
	if claimer, ok := d.store.(Claimer); ok {
		release, err = claimer.Claim(ctx, key, d.config.InFlightTimeout)
		if errors.Is(err, ErrRequestInProgress) {
			d.metrics.RecordDeduplicated(ctx, category, observability.ReasonClaimed)
			return nil
		}
		if err != nil {
			return fmt.Errorf("claim %s: %w", key, err)
		}
	}

	d.token++
	entry := &Entry{
		Status:      StatusInProgress,
		RequestedAt: now,
		Token:       d.token,
	}
	if prev != nil {
		entry.Data = prev.Data
	}

	if err := d.store.Put(ctx, key, entry); err != nil {
		if release != nil {
			release()
		}
		return fmt.Errorf("put %s: %w", key, err)
	}

	d.logger.DebugContext(ctx, "Report fetch started",
		log.NewFields().WithOperation(log.OpFetch).WithReport(category, key.String(), entry.Token).ToSlice()...)

	d.wg.Add(1)
	go d.run(context.WithoutCancel(ctx), key, endpoint, entry.Token, release)

	return nil
}

func (d *Dispatcher) run(ctx context.Context, key Key, endpoint report.Endpoint, token uint64, release func()) {
	defer d.wg.Done()
	if release != nil {
		defer release()
	}

	ctx, cancel := context.WithTimeout(ctx, d.config.RequestTimeout)
	defer cancel()

	category := key.Category.String()

	var data *report.Report
	err := d.sem.Acquire(ctx, 1)
	if err == nil {
		done := d.metrics.TrackInflight(ctx, category)
		start := time.Now()

		data, err = d.fetcher.Fetch(ctx, endpoint.Path, key.Query)
		if err == nil && data == nil {
			err = fmt.Errorf("%s: empty report", endpoint.URL(key.Query))
		}

		status := observability.StatusOK
		if err != nil {
			status = observability.StatusError
		}
		d.metrics.RecordFetch(ctx, category, status, time.Since(start))
		done()
		d.sem.Release(1)
	}

	d.settle(key, token, data, err)
}

// settle records the outcome of the request with the given token. Results of
// superseded requests, or of requests whose entry was reset, are dropped.
func (d *Dispatcher) settle(key Key, token uint64, data *report.Report, fetchErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()

	d.mu.Lock()
	defer d.mu.Unlock()

	category := key.Category.String()
	fields := log.NewFields().WithOperation(log.OpSettle).WithReport(category, key.String(), token)

	cur, err := d.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		d.metrics.RecordDiscarded(ctx, category, observability.ReasonReset)
		d.logger.DebugContext(ctx, "Dropped result for reset entry", fields.ToSlice()...)
		return
	}
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to read entry for settle", fields.WithError(err).ToSlice()...)
		return
	}
	if cur.Token != token {
		d.metrics.RecordDiscarded(ctx, category, observability.ReasonSuperseded)
		d.logger.DebugContext(ctx, "Dropped superseded result", fields.ToSlice()...)
		return
	}

	next := &Entry{
		RequestedAt: cur.RequestedAt,
		SettledAt:   d.config.Clock(),
		Token:       token,
	}
	if fetchErr != nil {
		next.Status = StatusError
		next.Data = cur.Data
		next.Err = fetchErr
	} else {
		next.Status = StatusComplete
		next.Data = data
	}

	if err := d.store.Put(ctx, key, next); err != nil {
		d.logger.ErrorContext(ctx, "Failed to store fetch result", fields.WithError(err).ToSlice()...)
		return
	}

	fields.WithStatus(next.Status.String()).WithError(fetchErr)
	if fetchErr != nil {
		d.logger.WarnContext(ctx, "Report fetch failed", fields.ToSlice()...)
		return
	}
	d.logger.DebugContext(ctx, "Report fetch complete", fields.ToSlice()...)
}
