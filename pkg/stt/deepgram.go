package stt

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

const (
	deepgramListenURL = "wss://api.deepgram.com/v1/listen"
	providerDeepgram  = "deepgram"

	// DeepgramModel is tuned for narrow-band phone audio.
	DeepgramModel = "nova-2-phonecall"
)

// Deepgram streams audio to Deepgram's live transcription endpoint.
//
// Every non-empty transcript emits a Partial. Fragments marked is_final are
// accumulated; speech_final flushes the utterance, and an UtteranceEnd
// message flushes whatever is left when endpointing missed it.
type Deepgram struct {
	*wsStream
}

// deepgramMessage covers the Results and UtteranceEnd messages.
type deepgramMessage struct {
	Type    string `json:"type"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
	IsFinal     bool `json:"is_final"`
	SpeechFinal bool `json:"speech_final"`
}

// NewDeepgram creates a Deepgram provider.
func NewDeepgram(opts ...Option) *Deepgram {
	d := &Deepgram{wsStream: &wsStream{base: newBase(providerDeepgram, opts)}}
	d.request = d.listenRequest
	d.handle = d.handleMessage
	d.keepAlive = func() error {
		return d.ws.writeJSON(map[string]string{"type": "KeepAlive"})
	}
	d.closing = map[string]string{"type": "CloseStream"}
	return d
}

func (d *Deepgram) listenRequest(apiKey string) (string, http.Header) {
	model := d.cfg.Model
	if model == "" {
		model = DeepgramModel
	}
	lang := d.cfg.Language
	if lang == "" {
		lang = "en"
	}

	params := url.Values{}
	params.Set("model", model)
	params.Set("language", lang)
	params.Set("encoding", "mulaw")
	params.Set("sample_rate", "8000")
	params.Set("channels", "1")
	params.Set("punctuate", "true")
	params.Set("smart_format", "true")
	params.Set("filler_words", "true")
	params.Set("interim_results", "true")
	params.Set("endpointing", "700")
	params.Set("utterance_end_ms", "1000")

	base := d.cfg.BaseURL
	if base == "" {
		base = deepgramListenURL
	}

	header := http.Header{}
	header.Set("Authorization", "Token "+apiKey)
	return base + "?" + params.Encode(), header
}

func (d *Deepgram) handleMessage(data []byte) {
	var msg deepgramMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		d.logger.Debug("unparseable message", "error", err)
		return
	}

	switch msg.Type {
	case "Results":
		if len(msg.Channel.Alternatives) == 0 {
			return
		}
		text := strings.TrimSpace(msg.Channel.Alternatives[0].Transcript)
		if text == "" {
			return
		}
		d.partial(text)
		d.acc.Add(text, msg.IsFinal)
		if msg.SpeechFinal {
			d.flush()
		}
	case "UtteranceEnd":
		d.flush()
	case "Error":
		d.logger.Warn("backend error", "session_id", d.sessionID, "message", string(data))
	}
}

var _ Provider = (*Deepgram)(nil)
