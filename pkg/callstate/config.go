package callstate

import (
	"log/slog"
	"time"
)

// Config holds registry settings.
type Config struct {
	// IdleTimeout evicts sessions with no activity for this long.
	IdleTimeout time.Duration

	// SweepInterval is how often Run checks for idle sessions.
	SweepInterval time.Duration

	// GracePeriod delays eviction after a stop event so late provider
	// callbacks still find the session (and see it closed).
	GracePeriod time.Duration

	// Now returns the current time. Tests inject a fake clock.
	Now func() time.Time

	Logger *slog.Logger
}

// Option configures a Registry.
type Option func(*Config)

// WithIdleTimeout sets the idle eviction timeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Config) { c.IdleTimeout = d }
}

// WithSweepInterval sets how often idle sessions are swept.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Config) { c.SweepInterval = d }
}

// WithGracePeriod sets the delay between stop and eviction.
func WithGracePeriod(d time.Duration) Option {
	return func(c *Config) { c.GracePeriod = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Config) { c.Now = now }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		IdleTimeout:   10 * time.Minute,
		SweepInterval: time.Minute,
		GracePeriod:   5 * time.Second,
		Now:           time.Now,
		Logger:        slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
