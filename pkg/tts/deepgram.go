package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/speak"
)

const (
	providerDeepgram = "deepgram"

	// DeepgramModel is the default Aura voice.
	DeepgramModel = "aura-asteria-en"
)

// Deepgram implements Provider over the Deepgram Aura speak WebSocket.
// Each Convert opens a socket, sends the text with a flush and collects
// binary frames until the server acknowledges the flush.
type Deepgram struct {
	config *Config
	logger *slog.Logger

	mu        sync.RWMutex
	apiKey    string
	sessionID string
	connected bool
}

// NewDeepgram creates a new Deepgram TTS provider.
func NewDeepgram(opts ...Option) (*Deepgram, error) {
	cfg := DefaultConfig()
	cfg.ModelID = DeepgramModel
	cfg.Apply(opts...)

	if cfg.ModelID == "" {
		cfg.ModelID = DeepgramModel
	}

	return &Deepgram{
		config: cfg,
		logger: cfg.Logger.With("component", "tts.deepgram"),
	}, nil
}

// Name returns "deepgram".
func (d *Deepgram) Name() string {
	return providerDeepgram
}

// Connect records the API key.
func (d *Deepgram) Connect(ctx context.Context, apiKey, sessionID string) error {
	if apiKey == "" {
		return &ConnectionError{Provider: providerDeepgram, Reason: "missing API key", Err: ErrNoAPIKey}
	}
	d.mu.Lock()
	d.apiKey = apiKey
	d.sessionID = sessionID
	d.connected = true
	d.mu.Unlock()
	return nil
}

// Convert synthesizes text to mu-law audio.
func (d *Deepgram) Convert(ctx context.Context, text string) (*AudioResult, error) {
	d.mu.RLock()
	apiKey, sessionID, connected := d.apiKey, d.sessionID, d.connected
	d.mu.RUnlock()

	if !connected {
		return nil, WrapError(providerDeepgram, ErrNotConnected)
	}
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerDeepgram, ErrEmptyText)
	}

	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	cb := newSpeakCollector()
	options := &clientinterfaces.WSSpeakOptions{
		Model:      d.config.ModelID,
		Encoding:   "mulaw",
		SampleRate: 8000,
	}
	clientOpts := &clientinterfaces.ClientOptions{}
	if d.config.BaseURL != "" {
		clientOpts.Host = d.config.BaseURL
	}

	dg, err := speak.NewWSUsingCallback(ctx, apiKey, clientOpts, options, cb)
	if err != nil {
		return nil, WrapError(providerDeepgram, fmt.Errorf("create ws client: %w", err))
	}
	defer dg.Stop()

	if ok := dg.Connect(); !ok {
		return nil, WrapError(providerDeepgram, errors.New("speak socket connect failed"))
	}

	if err := dg.SpeakWithText(text); err != nil {
		return nil, WrapError(providerDeepgram, fmt.Errorf("speak text: %w", err))
	}
	if err := dg.Flush(); err != nil {
		return nil, WrapError(providerDeepgram, fmt.Errorf("flush: %w", err))
	}

	select {
	case <-cb.flushed:
	case err := <-cb.failed:
		return nil, WrapError(providerDeepgram, err)
	case <-ctx.Done():
		// No flush acknowledgement; keep whatever arrived.
		if cb.len() == 0 {
			return nil, WrapError(providerDeepgram, ctx.Err())
		}
		d.logger.Warn("flush not acknowledged, using partial audio",
			"session_id", sessionID,
			"bytes", cb.len(),
		)
	}

	audio := cb.audio()
	if len(audio) == 0 {
		return nil, WrapError(providerDeepgram, ErrEmptyAudio)
	}

	result := newResult(audio, text, start)
	d.logger.Debug("synthesized audio",
		"session_id", sessionID,
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", result.LatencyMs,
	)
	return result, nil
}

// speakCollector gathers binary frames for one conversion.
type speakCollector struct {
	mu  sync.Mutex
	buf bytes.Buffer

	flushed chan struct{}
	failed  chan error
	once    sync.Once
}

func newSpeakCollector() *speakCollector {
	return &speakCollector{
		flushed: make(chan struct{}),
		failed:  make(chan error, 1),
	}
}

func (s *speakCollector) audio() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Clone(s.buf.Bytes())
}

func (s *speakCollector) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

func (s *speakCollector) Open(*msginterfaces.OpenResponse) error         { return nil }
func (s *speakCollector) Metadata(*msginterfaces.MetadataResponse) error { return nil }
func (s *speakCollector) Clear(*msginterfaces.ClearedResponse) error     { return nil }
func (s *speakCollector) Close(*msginterfaces.CloseResponse) error       { return nil }
func (s *speakCollector) Warning(*msginterfaces.WarningResponse) error   { return nil }
func (s *speakCollector) UnhandledEvent([]byte) error                    { return nil }

func (s *speakCollector) Flush(*msginterfaces.FlushedResponse) error {
	s.once.Do(func() { close(s.flushed) })
	return nil
}

func (s *speakCollector) Error(e *msginterfaces.ErrorResponse) error {
	select {
	case s.failed <- fmt.Errorf("speak error: %+v", e):
	default:
	}
	return nil
}

func (s *speakCollector) Binary(data []byte) error {
	s.mu.Lock()
	s.buf.Write(data)
	s.mu.Unlock()
	return nil
}

// Verify Deepgram implements Provider at compile time.
var _ Provider = (*Deepgram)(nil)
