package reportsync

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
)

const (
	// DefaultInFlightTimeout is how long an in-progress entry blocks new fetches for its key
	DefaultInFlightTimeout = 30 * time.Second
	// DefaultRequestTimeout bounds a single backend call
	DefaultRequestTimeout = 60 * time.Second
	// DefaultMaxConcurrent bounds concurrent backend calls per dispatcher
	DefaultMaxConcurrent = 8
)

// Config holds dispatcher configuration
type Config struct {
	// MaxAge is how long a complete entry is reused without a new request.
	// Zero revalidates on every fetch.
	MaxAge          time.Duration
	InFlightTimeout time.Duration
	RequestTimeout  time.Duration
	MaxConcurrent   int64
	Logger          *slog.Logger
	Meter           metric.Meter
	Clock           func() time.Time
}

// Option is a functional option for configuring the dispatcher
type Option func(*Config)

// WithMaxAge sets the freshness window for complete entries
func WithMaxAge(d time.Duration) Option {
	return func(c *Config) {
		c.MaxAge = d
	}
}

// WithInFlightTimeout sets how long an unsettled request keeps de-duplicating
// fetches before a new request may supersede it
func WithInFlightTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.InFlightTimeout = d
	}
}

// WithRequestTimeout sets the timeout of each backend call
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.RequestTimeout = d
	}
}

// WithMaxConcurrent sets the number of backend calls that may run at once
func WithMaxConcurrent(n int64) Option {
	return func(c *Config) {
		c.MaxConcurrent = n
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithMeter sets the OpenTelemetry meter used for fetch metrics
func WithMeter(m metric.Meter) Option {
	return func(c *Config) {
		c.Meter = m
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		c.Clock = now
	}
}
