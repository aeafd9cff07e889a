package stt

import (
	"log/slog"
	"time"
)

// Config holds provider configuration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// BaseURL overrides the backend endpoint. Tests point it at a local server.
	BaseURL string

	Model    string
	Language string

	// KeepAlive is the interval of the liveness signal sent independently of
	// audio flow.
	KeepAlive time.Duration

	// EventBuffer is the capacity of the event channel.
	EventBuffer int

	DialTimeout time.Duration

	// Google only: a speech segment is recognized for a partial every
	// InterimEvery of voiced audio, and closed after SilenceHold of silence.
	InterimEvery time.Duration
	SilenceHold  time.Duration
	VoiceLevel   float64

	Logger *slog.Logger
}

// Option is a functional option for configuring providers.
type Option func(*Config)

// WithBaseURL overrides the backend endpoint.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithModel sets the recognition model.
func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

// WithLanguage sets the recognition language.
func WithLanguage(lang string) Option {
	return func(c *Config) {
		c.Language = lang
	}
}

// WithKeepAlive sets the keep-alive interval. Zero disables it.
func WithKeepAlive(d time.Duration) Option {
	return func(c *Config) {
		c.KeepAlive = d
	}
}

// WithEventBuffer sets the event channel capacity.
func WithEventBuffer(n int) Option {
	return func(c *Config) {
		c.EventBuffer = n
	}
}

// WithDialTimeout bounds the connection handshake.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.DialTimeout = d
	}
}

// WithSegmentation tunes the Google variant's voice segmentation.
func WithSegmentation(interimEvery, silenceHold time.Duration, voiceLevel float64) Option {
	return func(c *Config) {
		c.InterimEvery = interimEvery
		c.SilenceHold = silenceHold
		c.VoiceLevel = voiceLevel
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		KeepAlive:    10 * time.Second,
		EventBuffer:  64,
		DialTimeout:  10 * time.Second,
		InterimEvery: 800 * time.Millisecond,
		SilenceHold:  700 * time.Millisecond,
		VoiceLevel:   0.0004,
		Logger:       slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
