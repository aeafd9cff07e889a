package stt

import (
	"context"
	"sync"
	"time"
)

// Fragment is one scripted backend result.
type Fragment struct {
	Text string

	// Final marks the fragment for accumulation.
	Final bool

	// SpeechFinal flushes the accumulated utterance after this fragment.
	SpeechFinal bool
}

// Mock implements Provider for testing.
//
// Each processed frame consumes the next scripted Fragment and runs it
// through the same partial/accumulate/flush policy the real backends use.
// Frames beyond the script produce no events.
type Mock struct {
	// ConnectFunc is called when Connect is invoked.
	// If nil, Connect succeeds.
	ConnectFunc func(ctx context.Context, credential, sessionID string) error

	// Script is consumed one fragment per processed frame.
	Script []Fragment

	*base

	mu     sync.Mutex
	calls  []MockCall
	frames [][]byte
	next   int
}

// MockCall records a method invocation for verification.
type MockCall struct {
	Method string
	Arg    string
	Time   time.Time
}

// NewMock creates a mock provider with the given script.
func NewMock(script ...Fragment) *Mock {
	return &Mock{
		Script: script,
		base:   newBase("mock", nil),
	}
}

// Connect records the call and, unless ConnectFunc fails, starts a session.
func (m *Mock) Connect(ctx context.Context, credential, sessionID string) error {
	m.record("Connect", sessionID)

	if m.ConnectFunc != nil {
		if err := m.ConnectFunc(ctx, credential, sessionID); err != nil {
			return err
		}
	}

	m.base.mu.Lock()
	defer m.base.mu.Unlock()
	if m.active {
		return ErrAlreadyConnected
	}
	m.begin(sessionID)
	m.connected.Store(true)
	return nil
}

// ProcessAudio records the frame and plays the next scripted fragment.
func (m *Mock) ProcessAudio(frame []byte) error {
	if !m.connected.Load() {
		m.drop()
		return nil
	}

	m.mu.Lock()
	m.frames = append(m.frames, append([]byte(nil), frame...))
	var (
		f  Fragment
		ok bool
	)
	if m.next < len(m.Script) {
		f, ok = m.Script[m.next], true
		m.next++
	}
	m.mu.Unlock()

	m.framesSent.Add(1)
	if ok {
		m.Play(f)
	}
	return nil
}

// Play emits events for one fragment as a backend result would.
func (m *Mock) Play(f Fragment) {
	if f.Text != "" {
		m.partial(f.Text)
		m.acc.Add(f.Text, f.Final)
	}
	if f.SpeechFinal {
		m.flush()
	}
}

// Emit sends a raw event. It returns false once disconnected.
func (m *Mock) Emit(kind EventKind, text string) bool {
	return m.em.Load().emit(Event{Kind: kind, Text: text, SessionID: m.sessionID})
}

// Disconnect ends the session. It is idempotent.
func (m *Mock) Disconnect() error {
	m.record("Disconnect", "")

	m.base.mu.Lock()
	defer m.base.mu.Unlock()
	if !m.active {
		return nil
	}
	m.end()
	return nil
}

// Frames returns copies of the frames processed while connected.
func (m *Mock) Frames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.frames))
	copy(out, m.frames)
	return out
}

func (m *Mock) record(method, arg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Arg: arg, Time: time.Now()})
}

// Calls returns all recorded method calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of times a method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

var _ Provider = (*Mock)(nil)
