package tts

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	providerAzure = "azure"

	// DefaultAzureRegion is the Speech resource region used when none is set.
	DefaultAzureRegion = "eastus"

	// DefaultAzureVoice is the neural voice used when none is set.
	DefaultAzureVoice = "en-US-AvaNeural"

	// azureOutputFormat is 8 kHz mu-law, the phone line's own encoding.
	azureOutputFormat = "raw-8khz-8bit-mono-mulaw"
)

// Azure implements Provider for Azure AI Speech over its REST endpoint.
// The credential is the Speech resource key; the region comes from the config.
type Azure struct {
	httpSession
	endpoint string
}

// NewAzure creates a new Azure TTS provider.
func NewAzure(opts ...Option) (*Azure, error) {
	cfg := DefaultConfig()
	cfg.Region = DefaultAzureRegion
	cfg.VoiceID = DefaultAzureVoice
	cfg.Apply(opts...)

	if cfg.VoiceID == "" {
		return nil, ErrNoVoiceID
	}

	endpoint := fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", cfg.Region)
	if cfg.BaseURL != "" {
		endpoint = strings.TrimSuffix(cfg.BaseURL, "/") + "/cognitiveservices/v1"
	}

	return &Azure{
		httpSession: newHTTPSession(providerAzure, cfg),
		endpoint:    endpoint,
	}, nil
}

// Connect records the resource key.
func (a *Azure) Connect(ctx context.Context, apiKey, sessionID string) error {
	return a.connect(apiKey, sessionID)
}

// Convert synthesizes text to mu-law audio.
func (a *Azure) Convert(ctx context.Context, text string) (*AudioResult, error) {
	apiKey, err := a.key()
	if err != nil {
		return nil, WrapError(providerAzure, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerAzure, ErrEmptyText)
	}

	start := time.Now()

	body, err := a.buildSSML(text)
	if err != nil {
		return nil, WrapError(providerAzure, fmt.Errorf("build ssml: %w", err))
	}

	resp, err := a.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Ocp-Apim-Subscription-Key", apiKey)
		req.Header.Set("Content-Type", "application/ssml+xml")
		req.Header.Set("X-Microsoft-OutputFormat", azureOutputFormat)
		req.Header.Set("User-Agent", "callbridge")
		return req, nil
	}, a.parseError)
	if err != nil {
		return nil, WrapError(providerAzure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, WrapError(providerAzure, a.parseError(resp))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(providerAzure, fmt.Errorf("read response: %w", err))
	}
	if len(audio) == 0 {
		return nil, WrapError(providerAzure, ErrEmptyAudio)
	}

	result := newResult(audio, text, start)
	a.logger.Debug("synthesized audio",
		"session_id", a.sessionID,
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", result.LatencyMs,
		"voice", a.config.VoiceID,
	)
	return result, nil
}

// buildSSML wraps text in a speak document for the configured voice.
// The telephony EQ effect tunes the voice for an 8 kHz line.
func (a *Azure) buildSSML(text string) ([]byte, error) {
	var escaped bytes.Buffer
	if err := xml.EscapeText(&escaped, []byte(strings.TrimSpace(text))); err != nil {
		return nil, err
	}
	var voice bytes.Buffer
	if err := xml.EscapeText(&voice, []byte(a.config.VoiceID)); err != nil {
		return nil, err
	}
	lang := voiceLocale(a.config.VoiceID)

	var b bytes.Buffer
	fmt.Fprintf(&b, "<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='%s'>", lang)
	fmt.Fprintf(&b, "<voice name='%s' effect='eq_telecomhp8k'>", voice.String())
	fmt.Fprintf(&b, "<prosody rate='+8.00%%'>%s</prosody>", escaped.String())
	b.WriteString("</voice></speak>")
	return b.Bytes(), nil
}

// voiceLocale returns the locale prefix of a voice name like en-US-AvaNeural.
func voiceLocale(voice string) string {
	parts := strings.SplitN(voice, "-", 3)
	if len(parts) < 3 {
		return "en-US"
	}
	return parts[0] + "-" + parts[1]
}

// parseError reads an error response. Azure mostly answers with an empty
// body, so the status text stands in for the message.
func (a *Azure) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	message := strings.TrimSpace(string(body))
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Provider:   providerAzure,
	}
}

var _ Provider = (*Azure)(nil)
