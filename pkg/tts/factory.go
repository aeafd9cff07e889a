package tts

import (
	"fmt"
	"strings"
)

const chainPrefix = providerChain + ":"

// Kinds lists the single-provider kinds New understands. A chain is
// written "chain:<kind>,<kind>".
func Kinds() []string {
	return []string{providerDeepgram, providerElevenLabs, providerOpenAI, providerPolly, providerGoogle, providerAzure}
}

// New creates a provider of the given kind. Chain members share opts, so
// a voice option applies to each of them.
func New(kind string, opts ...Option) (Provider, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))

	if members, ok := strings.CutPrefix(kind, chainPrefix); ok {
		return newChain(members, opts)
	}

	switch kind {
	case providerDeepgram:
		return NewDeepgram(opts...)
	case providerElevenLabs:
		return NewElevenLabs(opts...)
	case providerOpenAI:
		return NewOpenAI(opts...)
	case providerPolly:
		return NewPolly(opts...)
	case providerGoogle:
		return NewGoogle(opts...)
	case providerAzure:
		return NewAzure(opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, kind)
	}
}

func newChain(members string, opts []Option) (Provider, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	var providers []Provider
	for _, kind := range strings.Split(members, ",") {
		kind = strings.TrimSpace(kind)
		if kind == "" {
			continue
		}
		if strings.HasPrefix(kind, providerChain) {
			return nil, fmt.Errorf("%w: nested chain %q", ErrUnknownProvider, kind)
		}
		p, err := New(kind, opts...)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	chain, err := NewChainWithLogger(cfg.Logger, providers...)
	if err != nil {
		return nil, err
	}
	chain.credentials = cfg.Credentials
	return chain, nil
}

// Factory builds one provider per synthesis.
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
