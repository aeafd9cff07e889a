// Package tts provides a unified interface for text-to-speech providers
// that speak to a phone line.
//
// The package supports Deepgram Aura (streaming WebSocket), ElevenLabs,
// OpenAI, Amazon Polly and Google Cloud Text-to-Speech. Every provider
// returns a complete 8 kHz mu-law buffer, the encoding the media stream
// plays, so callers never convert audio themselves. Backends that cannot
// emit mu-law natively are asked for linear PCM and converted here.
//
// Example usage:
//
//	provider, _ := tts.New("elevenlabs", tts.WithVoice("rachel"))
//	if err := provider.Connect(ctx, apiKey, callID); err != nil {
//	    // the call carries on without speech
//	}
//
//	result, err := provider.Convert(ctx, "Hello world")
//	// result.Audio is mu-law at 8kHz
package tts

import (
	"context"
	"time"

	"github.com/teslashibe/go-callbridge/pkg/audioio"
)

// Provider defines the TTS provider interface.
// All implementations must satisfy this interface for seamless provider switching.
type Provider interface {
	// Connect prepares the backend channel with a provider-specific
	// credential. Failures are *ConnectionError.
	Connect(ctx context.Context, credential, sessionID string) error

	// Convert synthesizes text and waits for the complete buffer.
	// All failures are *SynthesisError; calling it before Connect fails
	// with ErrNotConnected.
	Convert(ctx context.Context, text string) (*AudioResult, error)

	// Name returns the provider kind.
	Name() string
}

// AudioResult represents a complete audio synthesis result.
type AudioResult struct {
	// Audio contains the raw audio data in the specified format.
	Audio []byte

	// Format describes the audio encoding and sample rate.
	Format AudioFormat

	// Duration is the audio playback duration.
	Duration time.Duration

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the time until the full buffer was available.
	LatencyMs int64
}

// AudioFormat describes the audio encoding parameters.
type AudioFormat struct {
	// Encoding specifies the audio codec (e.g., ulaw_8000, pcm_24000).
	Encoding Encoding

	// SampleRate in Hz.
	SampleRate int

	// Channels is 1 for mono, 2 for stereo.
	Channels int

	// BitDepth for PCM formats; 8 for mu-law.
	BitDepth int
}

// Encoding represents audio encoding types.
// These match ElevenLabs output format options.
type Encoding string

// EncodingULaw is μ-law 8kHz, the only encoding providers return.
const EncodingULaw Encoding = "ulaw_8000"

// TelephonyFormat is the format every provider returns.
var TelephonyFormat = AudioFormat{
	Encoding:   EncodingULaw,
	SampleRate: audioio.SampleRate,
	Channels:   1,
	BitDepth:   8,
}

// VoiceSettings controls voice characteristics for providers that support it.
// These settings affect the expressiveness and consistency of the generated speech.
type VoiceSettings struct {
	// Stability controls voice consistency (0.0-1.0).
	// Lower values = more expressive/variable, higher = more consistent.
	Stability float64

	// SimilarityBoost controls how closely the voice matches the original (0.0-1.0).
	SimilarityBoost float64

	// Style controls style exaggeration (0.0-1.0).
	Style float64

	// SpeakerBoost enhances speaker clarity.
	SpeakerBoost bool
}

// DefaultVoiceSettings returns sensible defaults for voice synthesis.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.5,
		SimilarityBoost: 0.75,
		Style:           0.0,
		SpeakerBoost:    true,
	}
}

// ulawDuration is the playback length of a mu-law buffer.
func ulawDuration(n int) time.Duration {
	return time.Duration(n) * time.Second / audioio.SampleRate
}

// newResult wraps a mu-law buffer.
func newResult(audio []byte, text string, start time.Time) *AudioResult {
	return &AudioResult{
		Audio:     audio,
		Format:    TelephonyFormat,
		Duration:  ulawDuration(len(audio)),
		CharCount: len(text),
		LatencyMs: time.Since(start).Milliseconds(),
	}
}
