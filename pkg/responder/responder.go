// Package responder provides text-handling collaborators for the call
// pipeline: something that turns what the caller said into what the
// bridge says back.
//
// Available responders:
//   - Echo: repeats the utterance
//   - Chat: any OpenAI-compatible /chat/completions endpoint
//   - Gemini: Google Gemini through the genai SDK
//
// All of them satisfy session.TextHandler. Chat and Gemini keep a bounded
// per-call history and implement session.CallEnder to drop it.
package responder

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-callbridge/pkg/session"
)

// Role identifies the speaker of a history message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Echo speaks every utterance back to the caller.
type Echo struct {
	logger *slog.Logger
}

// NewEcho creates an Echo responder.
func NewEcho(logger *slog.Logger) *Echo {
	if logger == nil {
		logger = slog.Default()
	}
	return &Echo{logger: logger.With("component", "responder.echo")}
}

// HandleUtterance repeats text into the call.
func (e *Echo) HandleUtterance(ctx context.Context, callID, text string, r session.Replier) {
	say(ctx, e.logger, r, callID, text)
}

func say(ctx context.Context, logger *slog.Logger, r session.Replier, callID, text string) {
	if text == "" {
		return
	}
	err := r.Say(ctx, callID, text)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrSessionClosed):
		logger.Debug("reply dropped, call closed", "call_id", callID)
	default:
		logger.Warn("reply failed", "call_id", callID, "error", err)
	}
}

// history is the per-call conversation memory.
type history struct {
	mu    sync.Mutex
	max   int
	turns map[string][]Message
}

func newHistory(max int) *history {
	return &history{max: max, turns: make(map[string][]Message)}
}

// get returns a copy of the call's turns.
func (h *history) get(callID string) []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	turns := h.turns[callID]
	out := make([]Message, len(turns))
	copy(out, turns)
	return out
}

// add appends turns, keeping at most max messages.
func (h *history) add(callID string, msgs ...Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	turns := append(h.turns[callID], msgs...)
	if h.max > 0 && len(turns) > h.max {
		turns = append([]Message(nil), turns[len(turns)-h.max:]...)
	}
	h.turns[callID] = turns
}

func (h *history) drop(callID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.turns, callID)
}

func (h *history) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

var (
	_ session.TextHandler = (*Echo)(nil)
	_ session.TextHandler = (*Chat)(nil)
	_ session.CallEnder   = (*Chat)(nil)
	_ session.TextHandler = (*Gemini)(nil)
	_ session.CallEnder   = (*Gemini)(nil)
)
