package tts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const providerChain = "chain"

// Chain implements Provider by trying multiple providers in order.
// The first successful provider wins; if all fail, returns an aggregate error.
type Chain struct {
	providers   []Provider
	credentials func(kind string) string
	logger      *slog.Logger
}

// NewChain creates a provider chain that tries providers in order.
// At least one provider is required.
func NewChain(providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrProviderUnavailable
	}

	return &Chain{
		providers: providers,
		logger:    slog.Default().With("component", "tts.chain"),
	}, nil
}

// NewChainWithLogger creates a provider chain with a custom logger.
func NewChainWithLogger(logger *slog.Logger, providers ...Provider) (*Chain, error) {
	chain, err := NewChain(providers...)
	if err != nil {
		return nil, err
	}
	chain.logger = logger.With("component", "tts.chain")
	return chain, nil
}

// Name returns "chain".
func (c *Chain) Name() string {
	return providerChain
}

// Connect connects every member. Members look up their own credential
// when a resolver was configured with WithCredentials; otherwise all of
// them receive credential. It fails only if no member connects.
func (c *Chain) Connect(ctx context.Context, credential, sessionID string) error {
	var errs []error
	connected := 0

	for _, p := range c.providers {
		cred := credential
		if c.credentials != nil {
			cred = c.credentials(p.Name())
		}
		if err := p.Connect(ctx, cred, sessionID); err != nil {
			errs = append(errs, err)
			c.logger.Warn("member failed to connect",
				"provider", p.Name(),
				"session_id", sessionID,
				"error", err,
			)
			continue
		}
		connected++
	}

	if connected == 0 {
		return &ConnectionError{
			Provider: providerChain,
			Reason:   "no member connected",
			Err:      &ChainError{Errors: errs},
		}
	}
	return nil
}

// Convert tries each provider until one succeeds.
func (c *Chain) Convert(ctx context.Context, text string) (*AudioResult, error) {
	var errs []error

	for i, p := range c.providers {
		result, err := p.Convert(ctx, text)
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback provider succeeded",
					"provider", p.Name(),
					"chars", len(text),
				)
			}
			return result, nil
		}

		errs = append(errs, err)
		c.logger.Warn("provider failed, trying next",
			"provider", p.Name(),
			"error", err,
		)

		if ctx.Err() != nil {
			return nil, WrapError(providerChain, ctx.Err())
		}
	}

	return nil, &SynthesisError{Provider: providerChain, Err: &ChainError{Errors: errs}}
}

// Providers returns the list of providers in the chain.
func (c *Chain) Providers() []Provider {
	return c.providers
}

// ChainError aggregates errors from all providers in a chain.
type ChainError struct {
	Errors []error
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	if len(e.Errors) == 0 {
		return "tts chain: no errors recorded"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("tts chain: %v", e.Errors[0])
	}
	names := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		names[i] = err.Error()
	}
	return fmt.Sprintf("tts chain: all %d providers failed: %s", len(e.Errors), strings.Join(names, "; "))
}

// Unwrap returns the last error in the chain.
func (e *ChainError) Unwrap() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}

// Verify Chain implements Provider at compile time.
var _ Provider = (*Chain)(nil)
