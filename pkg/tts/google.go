package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	texttospeech "google.golang.org/api/texttospeech/v1"
)

const (
	providerGoogle = "google"

	// GoogleVoice is the default Cloud Text-to-Speech voice.
	GoogleVoice    = "en-GB-Neural2-A"
	googleLanguage = "en-GB"
)

// Google implements Provider for Cloud Text-to-Speech. The credential is
// a service-account JSON file path; empty uses application default
// credentials.
type Google struct {
	config *Config
	logger *slog.Logger

	mu        sync.RWMutex
	svc       *texttospeech.Service
	sessionID string
}

// NewGoogle creates a Google provider.
func NewGoogle(opts ...Option) (*Google, error) {
	cfg := DefaultConfig()
	cfg.VoiceID = GoogleVoice
	cfg.Apply(opts...)

	if cfg.VoiceID == "" {
		cfg.VoiceID = GoogleVoice
	}

	return &Google{
		config: cfg,
		logger: cfg.Logger.With("component", "tts.google"),
	}, nil
}

// Name returns "google".
func (g *Google) Name() string {
	return providerGoogle
}

// Connect builds an authenticated client.
func (g *Google) Connect(ctx context.Context, credential, sessionID string) error {
	svc, err := g.newService(ctx, credential)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.svc = svc
	g.sessionID = sessionID
	g.mu.Unlock()
	return nil
}

func (g *Google) newService(ctx context.Context, credential string) (*texttospeech.Service, error) {
	if g.config.BaseURL != "" {
		endpoint := strings.TrimSuffix(g.config.BaseURL, "/") + "/"
		svc, err := texttospeech.NewService(ctx, option.WithEndpoint(endpoint), option.WithoutAuthentication())
		if err != nil {
			return nil, &ConnectionError{Provider: providerGoogle, Reason: "create client", Err: err}
		}
		return svc, nil
	}

	var (
		creds *google.Credentials
		err   error
	)
	if credential != "" {
		data, readErr := os.ReadFile(credential)
		if readErr != nil {
			return nil, &ConnectionError{Provider: providerGoogle, Reason: "read credentials", Err: readErr}
		}
		creds, err = google.CredentialsFromJSON(ctx, data, texttospeech.CloudPlatformScope)
	} else {
		creds, err = google.FindDefaultCredentials(ctx, texttospeech.CloudPlatformScope)
	}
	if err != nil {
		return nil, &ConnectionError{Provider: providerGoogle, Reason: "load credentials", Err: err}
	}

	svc, err := texttospeech.NewService(ctx, option.WithTokenSource(creds.TokenSource))
	if err != nil {
		return nil, &ConnectionError{Provider: providerGoogle, Reason: "create client", Err: err}
	}
	return svc, nil
}

// Convert synthesizes text to mu-law audio.
func (g *Google) Convert(ctx context.Context, text string) (*AudioResult, error) {
	g.mu.RLock()
	svc, sessionID := g.svc, g.sessionID
	g.mu.RUnlock()

	if svc == nil {
		return nil, WrapError(providerGoogle, ErrNotConnected)
	}
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerGoogle, ErrEmptyText)
	}

	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	resp, err := svc.Text.Synthesize(&texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: languageFromVoice(g.config.VoiceID),
			Name:         g.config.VoiceID,
		},
		AudioConfig: &texttospeech.AudioConfig{
			AudioEncoding:   "MULAW",
			SampleRateHertz: 8000,
		},
	}).Context(ctx).Do()
	if err != nil {
		return nil, WrapError(providerGoogle, normalizeGoogleError(err))
	}

	raw, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("decode audio content: %w", err))
	}

	audio := stripWAVHeader(raw)
	if len(audio) == 0 {
		return nil, WrapError(providerGoogle, ErrEmptyAudio)
	}

	result := newResult(audio, text, start)
	g.logger.Debug("synthesized audio",
		"session_id", sessionID,
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", result.LatencyMs,
		"voice", g.config.VoiceID,
	)
	return result, nil
}

// languageFromVoice derives the language code from a voice name such as
// "en-GB-Neural2-A".
func languageFromVoice(voice string) string {
	parts := strings.SplitN(voice, "-", 3)
	if len(parts) < 3 {
		return googleLanguage
	}
	return parts[0] + "-" + parts[1]
}

// stripWAVHeader returns the data chunk of a RIFF/WAVE buffer. MULAW
// responses carry one; anything else is returned unchanged.
func stripWAVHeader(b []byte) []byte {
	if len(b) < 12 || !bytes.Equal(b[0:4], []byte("RIFF")) || !bytes.Equal(b[8:12], []byte("WAVE")) {
		return b
	}
	pos := 12
	for pos+8 <= len(b) {
		id := b[pos : pos+4]
		size := int(binary.LittleEndian.Uint32(b[pos+4 : pos+8]))
		body := pos + 8
		if bytes.Equal(id, []byte("data")) {
			end := min(body+size, len(b))
			return b[body:end]
		}
		pos = body + size + size%2
	}
	return nil
}

func normalizeGoogleError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &APIError{
			StatusCode: gerr.Code,
			Message:    gerr.Message,
			Provider:   providerGoogle,
		}
	}
	return err
}

// Verify Google implements Provider at compile time.
var _ Provider = (*Google)(nil)
