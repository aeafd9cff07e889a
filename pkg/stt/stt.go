// Package stt provides a uniform interface over streaming speech-to-text
// backends for telephony audio.
//
// Every provider consumes 8 kHz mu-law frames exactly as they arrive from the
// media stream and produces a lazy sequence of transcript events. Partial
// events signal ongoing speech; FinalUtterance events carry a completed
// utterance assembled from the backend's final-flagged fragments.
//
// Example usage:
//
//	p, _ := stt.New("deepgram")
//	if err := p.Connect(ctx, apiKey, callID); err != nil {
//	    // degraded: ProcessAudio keeps dropping frames
//	}
//	defer p.Disconnect()
//
//	go func() {
//	    for ev := range p.Events() {
//	        fmt.Println(ev.Kind, ev.Text)
//	    }
//	}()
//	p.ProcessAudio(frame)
package stt

import "context"

// Provider is the transcription capability shared by all variants.
type Provider interface {
	// Connect opens a streaming session with the backend. Failures are
	// *ConnectionError. A new Connect after Disconnect starts a fresh stream
	// with empty accumulation state.
	Connect(ctx context.Context, credential, sessionID string) error

	// ProcessAudio forwards one mu-law frame. It is a no-op, not an error,
	// while the provider is not connected.
	ProcessAudio(frame []byte) error

	// Disconnect releases backend resources. It is idempotent; once it
	// returns no further events are emitted.
	Disconnect() error

	// Events returns the transcript event stream for the current session.
	// The channel is never closed; consumers stop on their own context.
	Events() <-chan Event

	// Name returns the provider kind ("deepgram", "assemblyai", "google").
	Name() string
}

// EventKind discriminates transcript events.
type EventKind int

const (
	// Partial signals ongoing speech. It drives barge-in.
	Partial EventKind = iota

	// FinalUtterance carries a completed utterance.
	FinalUtterance
)

// String returns the kind name.
func (k EventKind) String() string {
	switch k {
	case Partial:
		return "partial"
	case FinalUtterance:
		return "final"
	default:
		return "unknown"
	}
}

// Event is one transcript result. SessionID is the call the provider was
// connected for.
type Event struct {
	Kind      EventKind
	Text      string
	SessionID string
}

// Stats are per-instance counters.
type Stats struct {
	FramesSent    uint64
	FramesDropped uint64
	Partials      uint64
	Finals        uint64
}
