package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"

	"github.com/teslashibe/go-callbridge/pkg/audioio"
)

const (
	providerPolly = "polly"

	// PollyVoice is the default Polly voice.
	PollyVoice = "Joanna"
)

type synthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// Polly implements Provider for Amazon Polly. Polly's only telephony
// friendly output is 8kHz linear PCM, which is encoded to mu-law here.
type Polly struct {
	config *Config
	logger *slog.Logger

	mu        sync.RWMutex
	client    synthClient
	sessionID string
	connected bool
}

// NewPolly creates a Polly provider. The model option selects the engine
// ("neural" or "standard").
func NewPolly(opts ...Option) (*Polly, error) {
	cfg := DefaultConfig()
	cfg.VoiceID = PollyVoice
	cfg.ModelID = string(pollytypes.EngineNeural)
	cfg.Apply(opts...)

	if cfg.VoiceID == "" {
		cfg.VoiceID = PollyVoice
	}

	return &Polly{
		config: cfg,
		logger: cfg.Logger.With("component", "tts.polly"),
	}, nil
}

// NewPollyWithClient creates a Polly provider over an existing client.
// Connect then only marks the provider connected.
func NewPollyWithClient(client synthClient, opts ...Option) (*Polly, error) {
	p, err := NewPolly(opts...)
	if err != nil {
		return nil, err
	}
	p.client = client
	return p, nil
}

// Name returns "polly".
func (p *Polly) Name() string {
	return providerPolly
}

// Connect loads AWS configuration. profile names an optional shared
// config profile; empty uses the default credential chain.
func (p *Polly) Connect(ctx context.Context, profile, sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil {
		loadOpts := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(p.config.Region),
		}
		if profile != "" {
			loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(profile))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return &ConnectionError{Provider: providerPolly, Reason: "load aws config", Err: err}
		}
		p.client = polly.NewFromConfig(awsCfg, func(o *polly.Options) {
			if p.config.BaseURL != "" {
				o.BaseEndpoint = aws.String(p.config.BaseURL)
			}
		})
	}

	p.sessionID = sessionID
	p.connected = true
	return nil
}

// Convert synthesizes text to mu-law audio.
func (p *Polly) Convert(ctx context.Context, text string) (*AudioResult, error) {
	p.mu.RLock()
	client, sessionID, connected := p.client, p.sessionID, p.connected
	p.mu.RUnlock()

	if !connected {
		return nil, WrapError(providerPolly, ErrNotConnected)
	}
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerPolly, ErrEmptyText)
	}

	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	engine := pollytypes.EngineStandard
	if strings.EqualFold(p.config.ModelID, string(pollytypes.EngineNeural)) {
		engine = pollytypes.EngineNeural
	}

	out, err := client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatPcm,
		SampleRate:   aws.String("8000"),
		Text:         aws.String(text),
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(p.config.VoiceID),
	})
	if err != nil {
		return nil, WrapError(providerPolly, normalizePollyError(err))
	}
	if out == nil || out.AudioStream == nil {
		return nil, WrapError(providerPolly, ErrEmptyAudio)
	}
	defer out.AudioStream.Close()

	pcm, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return nil, WrapError(providerPolly, fmt.Errorf("read audio stream: %w", err))
	}

	audio := audioio.PCM16ToULaw8k(pcm, audioio.SampleRate)
	if len(audio) == 0 {
		return nil, WrapError(providerPolly, ErrEmptyAudio)
	}

	result := newResult(audio, text, start)
	p.logger.Debug("synthesized audio",
		"session_id", sessionID,
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", result.LatencyMs,
		"voice", p.config.VoiceID,
	)
	return result, nil
}

// normalizePollyError maps smithy API errors onto APIError status classes.
func normalizePollyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	status := http.StatusInternalServerError
	switch apiErr.ErrorCode() {
	case "TooManyRequestsException", "ThrottlingException":
		status = http.StatusTooManyRequests
	case "InvalidSsmlException", "TextLengthExceededException", "LexiconNotFoundException",
		"MarksNotSupportedForFormatException", "InvalidSampleRateException", "ValidationException":
		status = http.StatusBadRequest
	case "UnrecognizedClientException", "InvalidSignatureException", "AccessDeniedException":
		status = http.StatusUnauthorized
	}

	return &APIError{
		StatusCode: status,
		Message:    apiErr.ErrorMessage(),
		Code:       apiErr.ErrorCode(),
		Provider:   providerPolly,
	}
}

// Verify Polly implements Provider at compile time.
var _ Provider = (*Polly)(nil)
