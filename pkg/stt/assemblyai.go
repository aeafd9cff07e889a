package stt

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	assemblyAIStreamURL = "wss://streaming.assemblyai.com/v3/ws"
	providerAssemblyAI  = "assemblyai"
)

// AssemblyAI streams audio to AssemblyAI's v3 universal streaming API.
//
// A Turn that is still open emits a Partial. When the backend closes the
// turn, its transcript is accumulated and flushed as one utterance.
type AssemblyAI struct {
	*wsStream
}

type assemblyAIMessage struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	ExpiresAt  int64  `json:"expires_at"`
	Transcript string `json:"transcript"`
	EndOfTurn  bool   `json:"end_of_turn"`
	TurnOrder  int    `json:"turn_order"`
	Error      string `json:"error"`
}

// NewAssemblyAI creates an AssemblyAI provider.
func NewAssemblyAI(opts ...Option) *AssemblyAI {
	a := &AssemblyAI{wsStream: &wsStream{base: newBase(providerAssemblyAI, opts)}}
	a.request = a.streamRequest
	a.handle = a.handleMessage
	a.keepAlive = a.ws.ping
	a.closing = map[string]string{"type": "Terminate"}
	return a
}

func (a *AssemblyAI) streamRequest(apiKey string) (string, http.Header) {
	params := url.Values{}
	params.Set("encoding", "pcm_mulaw")
	params.Set("sample_rate", "8000")
	params.Set("format_turns", "false")
	params.Set("max_turn_silence", "1000")

	base := a.cfg.BaseURL
	if base == "" {
		base = assemblyAIStreamURL
	}

	header := http.Header{}
	header.Set("Authorization", apiKey)
	return base + "?" + params.Encode(), header
}

func (a *AssemblyAI) handleMessage(data []byte) {
	var msg assemblyAIMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		a.logger.Debug("unparseable message", "error", err)
		return
	}

	switch msg.Type {
	case "Begin":
		a.logger.Debug("session began",
			"session_id", a.sessionID,
			"backend_id", msg.ID,
			"expires_at", time.Unix(msg.ExpiresAt, 0).Format(time.RFC3339),
		)
	case "Turn":
		text := strings.TrimSpace(msg.Transcript)
		if text == "" {
			return
		}
		if !msg.EndOfTurn {
			a.partial(text)
			return
		}
		a.acc.Add(text, true)
		a.flush()
	case "Termination":
		a.flush()
	case "Error":
		a.logger.Warn("backend error", "session_id", a.sessionID, "error", msg.Error)
	}
}

var _ Provider = (*AssemblyAI)(nil)
