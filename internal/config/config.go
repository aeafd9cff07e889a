// Package config loads go-callbridge settings from the environment.
// A .env file in the working directory is read first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults.
const (
	DefaultPort         = 8080
	DefaultSTT          = "deepgram"
	DefaultTTS          = "deepgram"
	DefaultResponder    = "echo"
	DefaultGrace        = 5 * time.Second
	DefaultIdleTimeout  = 10 * time.Minute
	DefaultSynthTimeout = 20 * time.Second
	DefaultAWSRegion    = "us-east-1"
	DefaultPollyVoice   = "Joanna"
	DefaultAzureRegion  = "eastus"
)

// Config holds process configuration. It is static for the process lifetime.
type Config struct {
	Port     int
	LogLevel string
	Debug    bool

	// Public hostname used in the TwiML stream URL. Empty means the request Host.
	PublicHost      string
	TwilioAuthToken string

	STTProvider string
	TTSProvider string

	DeepgramKey       string
	AssemblyAIKey     string
	ElevenLabsKey     string
	ElevenLabsVoiceID string
	OpenAIKey         string
	GoogleCredentials string
	AWSRegion         string
	AWSProfile        string
	PollyVoice        string
	AzureSpeechKey    string
	AzureRegion       string
	AzureVoice        string

	Responder    string
	LLMBaseURL   string
	LLMAPIKey    string
	LLMModel     string
	GeminiKey    string
	SystemPrompt string

	SessionGrace       time.Duration
	SessionIdleTimeout time.Duration
	SynthTimeout       time.Duration
}

// Load reads .env (if any) and the environment.
// The returned error only reports a malformed .env file; a missing one is fine.
func Load() (Config, error) {
	var loadErr error
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		loadErr = fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(), loadErr
}

// FromEnv builds a Config from the current environment only.
func FromEnv() Config {
	return Config{
		Port:     Int("PORT", DefaultPort),
		LogLevel: String("LOG_LEVEL", "info"),
		Debug:    Bool("DEBUG", false),

		PublicHost:      String("PUBLIC_HOST", ""),
		TwilioAuthToken: String("TWILIO_AUTH_TOKEN", ""),

		STTProvider: strings.ToLower(String("STT_PROVIDER", DefaultSTT)),
		TTSProvider: strings.ToLower(String("TTS_PROVIDER", DefaultTTS)),

		DeepgramKey:       String("DEEPGRAM_API_KEY", ""),
		AssemblyAIKey:     String("ASSEMBLYAI_API_KEY", ""),
		ElevenLabsKey:     String("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID: String("ELEVENLABS_VOICE_ID", ""),
		OpenAIKey:         String("OPENAI_API_KEY", ""),
		GoogleCredentials: String("GOOGLE_APPLICATION_CREDENTIALS", ""),
		AWSRegion:         String("AWS_REGION", DefaultAWSRegion),
		AWSProfile:        String("AWS_PROFILE", ""),
		PollyVoice:        String("POLLY_VOICE", DefaultPollyVoice),
		AzureSpeechKey:    String("AZURE_SPEECH_KEY", ""),
		AzureRegion:       String("AZURE_SPEECH_REGION", DefaultAzureRegion),
		AzureVoice:        String("AZURE_SPEECH_VOICE", ""),

		Responder:    strings.ToLower(String("RESPONDER", DefaultResponder)),
		LLMBaseURL:   String("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:    String("LLM_API_KEY", ""),
		LLMModel:     String("LLM_MODEL", "gpt-4o-mini"),
		GeminiKey:    String("GEMINI_API_KEY", ""),
		SystemPrompt: String("SYSTEM_PROMPT", ""),

		SessionGrace:       Duration("SESSION_GRACE", DefaultGrace),
		SessionIdleTimeout: Duration("SESSION_IDLE_TIMEOUT", DefaultIdleTimeout),
		SynthTimeout:       Duration("SYNTH_TIMEOUT", DefaultSynthTimeout),
	}
}

// Credential returns the credential string a provider kind connects with.
// Google kinds take a service-account file path, Polly an AWS profile name.
func (c Config) Credential(kind string) string {
	switch strings.ToLower(kind) {
	case "deepgram":
		return c.DeepgramKey
	case "assemblyai":
		return c.AssemblyAIKey
	case "elevenlabs":
		return c.ElevenLabsKey
	case "openai":
		return c.OpenAIKey
	case "google":
		return c.GoogleCredentials
	case "polly":
		return c.AWSProfile
	case "azure":
		return c.AzureSpeechKey
	default:
		return ""
	}
}

// Warnings lists settings that will leave the call degraded at runtime.
// Nothing here is fatal: a call without a backend still connects.
func (c Config) Warnings() []string {
	var out []string
	for _, kind := range []string{c.STTProvider, c.TTSProvider} {
		switch kind {
		case "deepgram", "assemblyai", "elevenlabs", "openai", "azure":
			if c.Credential(kind) == "" {
				out = append(out, fmt.Sprintf("%s: API key not set", kind))
			}
		}
	}
	if c.TTSProvider == "elevenlabs" && c.ElevenLabsVoiceID == "" {
		out = append(out, "elevenlabs: ELEVENLABS_VOICE_ID not set")
	}
	if c.TwilioAuthToken == "" {
		out = append(out, "TWILIO_AUTH_TOKEN not set, webhook signatures are not checked")
	}
	return out
}

// String returns the env var or the fallback when unset or blank.
func String(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// Int parses an integer env var, falling back on absence or parse error.
func Int(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

// Bool parses a boolean env var.
func Bool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}

// Duration parses a Go duration ("5s") or a bare number of milliseconds.
func Duration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
