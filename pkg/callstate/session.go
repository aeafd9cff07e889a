package callstate

import (
	"time"

	"github.com/teslashibe/go-callbridge/pkg/protocol"
)

// State is the per-call pipeline state.
type State int

const (
	StateIdle State = iota
	StateAwaitingConnect
	StateStreaming
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingConnect:
		return "awaiting_connect"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ProviderState is the per-call bookkeeping for the active transcription
// backend. Kind names the variant; the remaining fields are shared by all
// variants.
type ProviderState struct {
	Kind      string // "deepgram", "assemblyai", "google"
	Connected bool
	Degraded  bool   // connect failed, audio is dropped
	LastError string // most recent backend error, for diagnostics
}

// Session is one active call.
type Session struct {
	CallID   string
	StreamID string

	// Link is the transport handle. The registry never closes it.
	Link protocol.Link

	State    State
	Provider ProviderState

	// PlaybackEpoch is bumped by every interrupt. Relays captured under an
	// older epoch are suppressed.
	PlaybackEpoch uint64

	// Speaking latches on the first partial transcript of an utterance and
	// clears on the final one.
	Speaking bool

	// PendingMarks are playback markers sent but not yet echoed back.
	PendingMarks []string

	Started      time.Time
	LastActivity time.Time
}

// clone returns a copy that shares no mutable memory with s.
func (s *Session) clone() Session {
	c := *s
	if s.PendingMarks != nil {
		c.PendingMarks = append([]string(nil), s.PendingMarks...)
	}
	return c
}

// Playing reports whether synthesized audio is queued on the transport.
func (s *Session) Playing() bool {
	return len(s.PendingMarks) > 0
}
