package stt

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// base is the lifecycle and event plumbing shared by every variant.
type base struct {
	name   string
	cfg    *Config
	logger *slog.Logger

	// mu serializes Connect and Disconnect.
	mu        sync.Mutex
	active    bool
	sessionID string
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	// connected gates ProcessAudio without taking mu, so frames arriving
	// during a slow handshake are dropped instead of queued.
	connected atomic.Bool

	em  atomic.Pointer[emitter]
	acc Accumulator

	framesSent    atomic.Uint64
	framesDropped atomic.Uint64
	partials      atomic.Uint64
	finals        atomic.Uint64
}

func newBase(name string, opts []Option) *base {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	b := &base{
		name:   name,
		cfg:    cfg,
		logger: cfg.Logger.With("component", "stt."+name),
	}
	b.em.Store(newEmitter(cfg.EventBuffer))
	return b
}

// Name returns the provider kind.
func (b *base) Name() string {
	return b.name
}

// Events returns the current session's event stream.
func (b *base) Events() <-chan Event {
	return b.em.Load().ch
}

// IsConnected reports whether audio is being forwarded.
func (b *base) IsConnected() bool {
	return b.connected.Load()
}

// Stats returns the instance counters.
func (b *base) Stats() Stats {
	return Stats{
		FramesSent:    b.framesSent.Load(),
		FramesDropped: b.framesDropped.Load(),
		Partials:      b.partials.Load(),
		Finals:        b.finals.Load(),
	}
}

// begin prepares a fresh logical stream. Caller holds mu.
func (b *base) begin(sessionID string) context.Context {
	if b.em.Load().isSealed() {
		b.em.Store(newEmitter(b.cfg.EventBuffer))
	}
	b.acc.Reset()
	b.sessionID = sessionID

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.active = true
	return ctx
}

// end cancels background tasks, seals the emitter and waits for the
// variant's goroutines. The variant must have closed its socket first so
// blocked reads return. Caller holds mu.
func (b *base) end() {
	b.connected.Store(false)
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.em.Load().seal()
	b.wg.Wait()
	b.acc.Reset()
	b.active = false
}

func (b *base) drop() {
	b.framesDropped.Add(1)
}

func (b *base) partial(text string) {
	if text == "" {
		return
	}
	if b.em.Load().emit(Event{Kind: Partial, Text: text, SessionID: b.sessionID}) {
		b.partials.Add(1)
	}
}

// flush emits the accumulated utterance, if any.
func (b *base) flush() {
	utterance := b.acc.Flush()
	if utterance == "" {
		return
	}
	b.logger.Debug("utterance", "session_id", b.sessionID, "text", utterance)
	if b.em.Load().emit(Event{Kind: FinalUtterance, Text: utterance, SessionID: b.sessionID}) {
		b.finals.Add(1)
	}
}
