package stt

import (
	"fmt"
	"strings"
)

// Kinds lists the provider kinds New understands.
func Kinds() []string {
	return []string{providerDeepgram, providerAssemblyAI, providerGoogle}
}

// New creates a provider of the given kind.
func New(kind string, opts ...Option) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case providerDeepgram:
		return NewDeepgram(opts...), nil
	case providerAssemblyAI:
		return NewAssemblyAI(opts...), nil
	case providerGoogle:
		return NewGoogle(opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, kind)
	}
}

// Factory builds one provider per call. Each call gets its own instance:
// providers hold per-session accumulation state.
type Factory func() (Provider, error)

// NewFactory validates kind once and returns a Factory for it.
func NewFactory(kind string, opts ...Option) (Factory, error) {
	if _, err := New(kind, opts...); err != nil {
		return nil, err
	}
	return func() (Provider, error) {
		return New(kind, opts...)
	}, nil
}
