package tts

import (
	"context"
	"sync"
	"time"

	"github.com/teslashibe/go-callbridge/pkg/audioio"
)

const providerMock = "mock"

// Mock implements Provider for testing.
// All methods can be customized via function fields.
type Mock struct {
	// ConnectFunc is called when Connect is invoked.
	// If nil, Connect succeeds.
	ConnectFunc func(ctx context.Context, credential, sessionID string) error

	// ConvertFunc is called when Convert is invoked on a connected mock.
	// If nil, returns 20ms of mu-law silence per character.
	ConvertFunc func(ctx context.Context, text string) (*AudioResult, error)

	// Tracking
	mu        sync.Mutex
	calls     []MockCall
	connected bool
}

// MockCall records a method invocation for verification.
type MockCall struct {
	Method string
	Text   string
	Time   time.Time
}

// NewMock creates a new mock provider with sensible defaults.
func NewMock() *Mock {
	return &Mock{}
}

// Name returns "mock".
func (m *Mock) Name() string {
	return providerMock
}

// Connect calls ConnectFunc and records the call.
func (m *Mock) Connect(ctx context.Context, credential, sessionID string) error {
	m.recordCall("Connect", credential)
	if m.ConnectFunc != nil {
		if err := m.ConnectFunc(ctx, credential, sessionID); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	return nil
}

// Convert calls ConvertFunc and records the call. Errors are wrapped
// like a real provider's.
func (m *Mock) Convert(ctx context.Context, text string) (*AudioResult, error) {
	m.recordCall("Convert", text)

	m.mu.Lock()
	connected := m.connected
	m.mu.Unlock()
	if !connected {
		return nil, WrapError(providerMock, ErrNotConnected)
	}

	if m.ConvertFunc != nil {
		result, err := m.ConvertFunc(ctx, text)
		if err != nil {
			return nil, WrapError(providerMock, err)
		}
		return result, nil
	}

	return newResult(audioio.Silence(20*len(text)), text, time.Now()), nil
}

// recordCall adds a call to the tracking list.
func (m *Mock) recordCall(method, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{
		Method: method,
		Text:   text,
		Time:   time.Now(),
	})
}

// Calls returns all recorded method calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of times a method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// LastCall returns the most recent call, or nil if none.
func (m *Mock) LastCall() *MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	call := m.calls[len(m.calls)-1]
	return &call
}

// Reset clears all recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// WithError returns a mock whose conversions always fail with err.
func WithError(err error) *Mock {
	return &Mock{
		ConvertFunc: func(ctx context.Context, text string) (*AudioResult, error) {
			return nil, err
		},
	}
}

// WithAudio returns a mock whose conversions always return audio.
func WithAudio(audio []byte) *Mock {
	return &Mock{
		ConvertFunc: func(ctx context.Context, text string) (*AudioResult, error) {
			return newResult(audio, text, time.Now()), nil
		},
	}
}

// WithLatency wraps a mock to add artificial latency.
func WithLatency(m *Mock, delay time.Duration) *Mock {
	original := m.ConvertFunc
	m.ConvertFunc = func(ctx context.Context, text string) (*AudioResult, error) {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if original != nil {
			return original(ctx, text)
		}
		return newResult(audioio.Silence(20*len(text)), text, time.Now()), nil
	}
	return m
}

// Verify Mock implements Provider at compile time.
var _ Provider = (*Mock)(nil)
