package session

import (
	"log/slog"
	"time"

	"github.com/teslashibe/go-callbridge/pkg/audioio"
	"github.com/teslashibe/go-callbridge/pkg/bargein"
)

// Config holds pipeline tuning.
type Config struct {
	// ConnectTimeout bounds the transcription handshake.
	ConnectTimeout time.Duration

	// SynthTimeout bounds one synthesis: connect plus convert.
	SynthTimeout time.Duration

	// GracePeriod delays eviction after a call ends so late collaborator
	// replies find a Closed session instead of nothing.
	GracePeriod time.Duration

	// RelayChunk is the outbound media frame size in bytes.
	RelayChunk int

	// Credentials maps a provider kind to its credential.
	Credentials func(kind string) string

	// BargeIn overrides the interrupt controller. Nil builds one over the
	// pipeline's registry.
	BargeIn *bargein.Controller

	Logger *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Config)

// WithConnectTimeout bounds the transcription handshake.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Config) { c.ConnectTimeout = d }
}

// WithSynthTimeout bounds one synthesis.
func WithSynthTimeout(d time.Duration) Option {
	return func(c *Config) { c.SynthTimeout = d }
}

// WithGracePeriod sets the post-call eviction delay.
func WithGracePeriod(d time.Duration) Option {
	return func(c *Config) { c.GracePeriod = d }
}

// WithRelayChunk sets the outbound media frame size.
func WithRelayChunk(n int) Option {
	return func(c *Config) { c.RelayChunk = n }
}

// WithCredentials sets the per-kind credential lookup.
func WithCredentials(fn func(kind string) string) Option {
	return func(c *Config) { c.Credentials = fn }
}

// WithBargeIn uses an existing interrupt controller.
func WithBargeIn(ctrl *bargein.Controller) Option {
	return func(c *Config) { c.BargeIn = ctrl }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// DefaultConfig returns the defaults.
func DefaultConfig() *Config {
	return &Config{
		ConnectTimeout: 10 * time.Second,
		SynthTimeout:   20 * time.Second,
		GracePeriod:    5 * time.Second,
		RelayChunk:     audioio.FrameBytes,
		Credentials:    func(string) string { return "" },
		Logger:         slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
